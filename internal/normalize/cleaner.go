// Package normalize repairs structural defects in raw billing records:
// malformed dates, numeric drift in money fields, stray whitespace and
// exact-duplicate rows.
package normalize

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/waterbill-audit/internal/billing"
	"github.com/waterbill-audit/internal/changelog"
)

// Stats tracks what one cleaning pass changed.
type Stats struct {
	RowsIn            int
	RowsOut           int
	DuplicatesRemoved int
	DatesNormalized   int
}

// Cleaner canonicalizes raw billing records in place. Year-first date
// corrections are reported to the change tracker as a side effect.
type Cleaner struct {
	tracker *changelog.Tracker
	log     zerolog.Logger
}

// NewCleaner creates a cleaner reporting audited fixes to the given tracker.
func NewCleaner(tracker *changelog.Tracker, log zerolog.Logger) *Cleaner {
	return &Cleaner{
		tracker: tracker,
		log:     log.With().Str("component", "cleaner").Logger(),
	}
}

// Clean normalizes the table in place: exact-duplicate rows removed first,
// then whitespace trimmed from every text field, date fields parsed under the
// dual-attempt policy and money fields rounded to 2 decimals. Deduplication
// runs on the raw rows so each surviving row is normalized and audited once.
func (c *Cleaner) Clean(t *billing.Table) (*Stats, error) {
	if err := t.RequireColumns(billing.ColAddress, billing.ColAccountNumber); err != nil {
		return nil, err
	}

	stats := &Stats{RowsIn: len(t.Rows)}

	stats.DuplicatesRemoved = c.dropDuplicates(t)
	c.trimStrings(t)
	stats.DatesNormalized = c.normalizeDates(t)
	c.roundMoney(t)
	stats.RowsOut = len(t.Rows)

	c.log.Info().
		Int("rows_in", stats.RowsIn).
		Int("rows_out", stats.RowsOut).
		Int("duplicates_removed", stats.DuplicatesRemoved).
		Int("dates_normalized", stats.DatesNormalized).
		Msg("cleaning pass complete")

	return stats, nil
}

func (c *Cleaner) trimStrings(t *billing.Table) {
	for i := range t.Rows {
		rec := &t.Rows[i]
		for _, col := range t.Header {
			if isMoneyColumn(col) {
				continue // parsed numerically, trimming handled there
			}
			rec.Set(col, strings.TrimSpace(rec.Get(col)))
		}
	}
}

func (c *Cleaner) normalizeDates(t *billing.Table) int {
	fixed := 0
	for i := range t.Rows {
		rec := &t.Rows[i]
		// bill_date first so audit entries carry the corrected bill date
		for _, col := range billing.DateColumns {
			if !t.HasColumn(col) {
				continue
			}
			field := rec.Date(col)
			raw := *field
			canonical := CanonicalDate(raw)
			if canonical == raw {
				continue
			}
			*field = canonical
			fixed++
			if canonical != "" {
				c.tracker.RecordDateFix(rec.AccountNumber, rec.BillDate, col, raw, canonical)
			}
		}
	}
	return fixed
}

func (c *Cleaner) roundMoney(t *billing.Table) {
	for i := range t.Rows {
		rec := &t.Rows[i]
		for _, col := range billing.MoneyColumns {
			if !t.HasColumn(col) {
				continue
			}
			field := rec.Money(col)
			if field.Valid {
				field.Decimal = field.Decimal.Round(2)
			}
		}
	}
}

// dropDuplicates removes exact-duplicate rows, keeping the first occurrence.
// The dedup key is full row equality in header order.
func (c *Cleaner) dropDuplicates(t *billing.Table) int {
	seen := make(map[string]struct{}, len(t.Rows))
	kept := t.Rows[:0]
	removed := 0
	for i := range t.Rows {
		key := strings.Join(t.RowValues(i), "\x1f")
		if _, dup := seen[key]; dup {
			removed++
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, t.Rows[i])
	}
	t.Rows = kept
	return removed
}

func isMoneyColumn(col string) bool {
	for _, c := range billing.MoneyColumns {
		if c == col {
			return true
		}
	}
	return false
}

// Package changelog collects an auditable, append-only record of every
// nontrivial correction the cleaning stages make to billing data.
package changelog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

// Change types recorded by the pipeline.
const (
	ChangeDateFormatYearFirst = "date_format_year_first"
	ChangeAddressSpelling     = "address_spelling_correction"
)

// Entry is one audited correction. Entries are never mutated after creation.
type Entry struct {
	AccountNumber string `json:"account_number"`
	BillDate      string `json:"bill_date"`
	ChangeType    string `json:"change_type"`
	Field         string `json:"field"`
	OriginalValue string `json:"original_value"`
	FixedValue    string `json:"fixed_value"`
	Timestamp     string `json:"timestamp"`
}

// Date fixes are audited only when the original representation began with a
// 4-digit year token; other malformed formats are corrected silently.
var yearFirstPattern = regexp.MustCompile(`^\d{4}[/-]`)

// Tracker accumulates change entries for one pipeline run. It is not safe for
// concurrent writers; parallel stages keep a shard each and combine them with
// Merge before flushing.
type Tracker struct {
	entries   []Entry
	seenPairs map[[2]string]struct{}
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{seenPairs: make(map[[2]string]struct{})}
}

// RecordDateFix audits a date normalization. Only year-first originals
// (e.g. 2019/02/01) are kept.
func (t *Tracker) RecordDateFix(accountNumber, billDate, field, original, fixed string) {
	if !yearFirstPattern.MatchString(original) {
		return
	}
	t.entries = append(t.entries, Entry{
		AccountNumber: accountNumber,
		BillDate:      billDate,
		ChangeType:    ChangeDateFormatYearFirst,
		Field:         field,
		OriginalValue: original,
		FixedValue:    fixed,
		Timestamp:     time.Now().Format(time.RFC3339),
	})
}

// RecordAddressFix audits a street spelling correction. Each unique
// (original, fixed) pair is logged exactly once across the whole dataset; the
// first occurrence wins.
func (t *Tracker) RecordAddressFix(accountNumber, billDate, originalStreet, fixedStreet string) {
	if originalStreet == fixedStreet {
		return
	}
	pair := [2]string{originalStreet, fixedStreet}
	if _, seen := t.seenPairs[pair]; seen {
		return
	}
	t.seenPairs[pair] = struct{}{}
	t.entries = append(t.entries, Entry{
		AccountNumber: accountNumber,
		BillDate:      billDate,
		ChangeType:    ChangeAddressSpelling,
		Field:         "address",
		OriginalValue: originalStreet,
		FixedValue:    fixedStreet,
		Timestamp:     time.Now().Format(time.RFC3339),
	})
}

// Merge appends the entries of the given shards, preserving shard order and
// re-applying the address-pair deduplication across shard boundaries.
func (t *Tracker) Merge(shards ...*Tracker) {
	for _, shard := range shards {
		for _, e := range shard.entries {
			if e.ChangeType == ChangeAddressSpelling {
				pair := [2]string{e.OriginalValue, e.FixedValue}
				if _, seen := t.seenPairs[pair]; seen {
					continue
				}
				t.seenPairs[pair] = struct{}{}
			}
			t.entries = append(t.entries, e)
		}
	}
}

// Entries returns the accumulated log in insertion order.
func (t *Tracker) Entries() []Entry {
	return t.entries
}

// Len returns the number of entries recorded so far.
func (t *Tracker) Len() int {
	return len(t.entries)
}

// Summarize counts entries grouped by change type.
func (t *Tracker) Summarize() map[string]int {
	summary := make(map[string]int)
	for _, e := range t.entries {
		summary[e.ChangeType]++
	}
	return summary
}

// Flush serializes the full log as a JSON array to the destination path and
// returns the number of entries written. An empty log writes an empty array,
// which is a valid result, not an error.
func (t *Tracker) Flush(path string) (int, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("failed to create change log directory: %w", err)
		}
	}
	entries := t.entries
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("failed to encode change log: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, fmt.Errorf("failed to write change log: %w", err)
	}
	return len(entries), nil
}

package normalize

import (
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"github.com/waterbill-audit/internal/billing"
	"github.com/waterbill-audit/internal/changelog"
)

func makeTable(header []string, rows [][]string) *billing.Table {
	table := &billing.Table{Header: header}
	for _, row := range rows {
		var rec billing.Record
		for i, col := range header {
			rec.Set(col, row[i])
		}
		table.Rows = append(table.Rows, rec)
	}
	return table
}

var testHeader = []string{
	billing.ColAddress,
	billing.ColAccountNumber,
	billing.ColBillDate,
	billing.ColFreshRate,
	billing.ColLatestCharges,
}

func TestCleanNormalizesAndDeduplicates(t *testing.T) {
	table := makeTable(testHeader, [][]string{
		{"  12 High Street, Alton, GU34 1AA ", "CUST0001", "2019/02/01", "2.475", "585.224"},
		{"  12 High Street, Alton, GU34 1AA ", "CUST0001", "2019/02/01", "2.475", "585.224"},
		{"3 Mill Lane, Petersfield, GU31 4HX", "CUST0002", "02/13/2019", "not a number", "100.00"},
	})

	tracker := changelog.New()
	cleaner := NewCleaner(tracker, zerolog.Nop())
	stats, err := cleaner.Clean(table)
	if err != nil {
		t.Fatalf("Clean() error = %v", err)
	}

	// rows 0 and 1 are exact duplicates; only the survivor is normalized
	if stats.DuplicatesRemoved != 1 {
		t.Errorf("DuplicatesRemoved = %d, want 1", stats.DuplicatesRemoved)
	}
	if len(table.Rows) != 2 {
		t.Fatalf("rows after clean = %d, want 2", len(table.Rows))
	}
	if stats.DatesNormalized != 2 {
		t.Errorf("DatesNormalized = %d, want 2", stats.DatesNormalized)
	}

	first := table.Rows[0]
	if first.Address != "12 High Street, Alton, GU34 1AA" {
		t.Errorf("address not trimmed: %q", first.Address)
	}
	if first.BillDate != "01-02-2019" {
		t.Errorf("bill date = %q, want 01-02-2019", first.BillDate)
	}
	if got := first.Get(billing.ColFreshRate); got != "2.48" {
		t.Errorf("fresh rate = %q, want 2.48", got)
	}
	if got := first.Get(billing.ColLatestCharges); got != "585.22" {
		t.Errorf("latest charges = %q, want 585.22", got)
	}

	second := table.Rows[1]
	if second.BillDate != "13-02-2019" {
		t.Errorf("month-first fallback date = %q, want 13-02-2019", second.BillDate)
	}
	if got := second.Get(billing.ColFreshRate); got != "" {
		t.Errorf("unparseable rate = %q, want empty sentinel", got)
	}
}

func TestCleanTracksOnlyYearFirstDates(t *testing.T) {
	table := makeTable(testHeader, [][]string{
		{"1 Main Street, Alton", "CUST0001", "2019/02/01", "1.00", "1.00"},
		{"1 Main Street, Alton", "CUST0002", "02/13/2019", "1.00", "1.00"},
	})

	tracker := changelog.New()
	cleaner := NewCleaner(tracker, zerolog.Nop())
	if _, err := cleaner.Clean(table); err != nil {
		t.Fatalf("Clean() error = %v", err)
	}

	entries := tracker.Entries()
	if len(entries) != 1 {
		t.Fatalf("tracked entries = %d, want 1 (only the year-first fix)", len(entries))
	}
	e := entries[0]
	if e.ChangeType != changelog.ChangeDateFormatYearFirst {
		t.Errorf("change type = %q", e.ChangeType)
	}
	if e.OriginalValue != "2019/02/01" || e.FixedValue != "01-02-2019" {
		t.Errorf("entry = %q -> %q", e.OriginalValue, e.FixedValue)
	}
	if e.BillDate != "01-02-2019" {
		t.Errorf("entry bill date = %q, want corrected value", e.BillDate)
	}
}

func TestCleanUnparseableDateBecomesEmptyNotTracked(t *testing.T) {
	table := makeTable(testHeader, [][]string{
		{"1 Main Street, Alton", "CUST0001", "never", "1.00", "1.00"},
	})

	tracker := changelog.New()
	cleaner := NewCleaner(tracker, zerolog.Nop())
	if _, err := cleaner.Clean(table); err != nil {
		t.Fatalf("Clean() error = %v", err)
	}
	if table.Rows[0].BillDate != "" {
		t.Errorf("bill date = %q, want empty sentinel", table.Rows[0].BillDate)
	}
	if tracker.Len() != 0 {
		t.Errorf("tracked entries = %d, want 0", tracker.Len())
	}
}

func TestCleanIdempotent(t *testing.T) {
	table := makeTable(testHeader, [][]string{
		{" 12 High Street, Alton ", "CUST0001", "2019/02/01", "2.475", "585.22"},
		{" 12 High Street, Alton ", "CUST0001", "2019/02/01", "2.475", "585.22"},
		{"3 Mill Lane, Petersfield", "CUST0002", "junk", "bad", "100.005"},
	})

	cleaner := NewCleaner(changelog.New(), zerolog.Nop())
	if _, err := cleaner.Clean(table); err != nil {
		t.Fatalf("first Clean() error = %v", err)
	}

	var firstPass [][]string
	for i := range table.Rows {
		firstPass = append(firstPass, table.RowValues(i))
	}

	stats, err := cleaner.Clean(table)
	if err != nil {
		t.Fatalf("second Clean() error = %v", err)
	}
	if stats.DuplicatesRemoved != 0 || stats.DatesNormalized != 0 {
		t.Errorf("second pass changed data: %+v", stats)
	}

	var secondPass [][]string
	for i := range table.Rows {
		secondPass = append(secondPass, table.RowValues(i))
	}
	if !reflect.DeepEqual(firstPass, secondPass) {
		t.Errorf("second pass rows differ:\nfirst  %v\nsecond %v", firstPass, secondPass)
	}
}

func TestCleanMissingRequiredColumnFails(t *testing.T) {
	table := makeTable([]string{billing.ColAddress, billing.ColBillDate}, [][]string{
		{"1 Main Street, Alton", "01-02-2019"},
	})
	cleaner := NewCleaner(changelog.New(), zerolog.Nop())
	if _, err := cleaner.Clean(table); err == nil {
		t.Fatal("Clean() without account_number column should fail")
	}
}

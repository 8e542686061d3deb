package streets

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/waterbill-audit/internal/billing"
	"github.com/waterbill-audit/internal/changelog"
	"github.com/waterbill-audit/internal/gazetteer"
)

func testGazetteer(t *testing.T, names ...string) *gazetteer.Gazetteer {
	t.Helper()
	dir := t.TempDir()
	var sb strings.Builder
	sb.WriteString("ID,TYPE,NAME1\n")
	for _, name := range names {
		sb.WriteString("osgb1000,namedPlace,")
		sb.WriteString(name)
		sb.WriteString("\n")
	}
	if err := os.WriteFile(filepath.Join(dir, "names.csv"), []byte(sb.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	g, err := gazetteer.Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func billTable(rows ...[3]string) *billing.Table {
	table := &billing.Table{Header: []string{billing.ColAddress, billing.ColAccountNumber, billing.ColBillDate}}
	for _, row := range rows {
		table.Rows = append(table.Rows, billing.Record{
			Address:       row[0],
			AccountNumber: row[1],
			BillDate:      row[2],
		})
	}
	return table
}

func TestStreetToken(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"12 High Street, Alton, GU34 1AA", "12 High Street"},
		{"No commas here", "No commas here"},
		{"  Spaced Street , Town", "Spaced Street"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := StreetToken(tt.input); got != tt.want {
			t.Errorf("StreetToken(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestClusterStreetsGreedySinglePass(t *testing.T) {
	streets := []string{"High Street", "Hgh Street", "Mill Lane", "High Street"}
	clusters := clusterStreets(streets, DefaultThreshold)

	want := [][]string{
		{"High Street", "Hgh Street", "High Street"},
		{"Mill Lane"},
	}
	if !reflect.DeepEqual(clusters, want) {
		t.Errorf("clusterStreets() = %v, want %v", clusters, want)
	}
}

func TestCorrectionPrefersGazetteerVariant(t *testing.T) {
	// the misspelling is the most frequent variant, but frequency only breaks
	// ties among gazetteer-attested forms
	gaz := testGazetteer(t, "High Street", "Mill Lane")
	table := billTable(
		[3]string{"Hgh Street, Alton, GU34 1AA", "CUST0001", "01-01-2019"},
		[3]string{"Hgh Street, Alton, GU34 1AA", "CUST0001", "01-02-2019"},
		[3]string{"High Street, Alton, GU34 1AA", "CUST0001", "01-03-2019"},
	)

	c := NewCorrector(gaz, 0, 1, zerolog.Nop())
	corrections := c.BuildCorrections(table)
	tracker := changelog.New()
	changed := c.Apply(table, corrections, tracker)

	if changed != 2 {
		t.Errorf("rows changed = %d, want 2", changed)
	}
	for i, rec := range table.Rows {
		if got := StreetToken(rec.Address); got != "High Street" {
			t.Errorf("row %d street = %q, want gazetteer form", i, got)
		}
	}
	if tracker.Len() != 1 {
		t.Fatalf("change entries = %d, want 1 deduplicated pair", tracker.Len())
	}
	e := tracker.Entries()[0]
	if e.OriginalValue != "Hgh Street" || e.FixedValue != "High Street" {
		t.Errorf("entry = %q -> %q", e.OriginalValue, e.FixedValue)
	}
}

func TestCorrectionFallsBackToMostFrequent(t *testing.T) {
	// no variant is gazetteer-attested: the most frequent one wins
	gaz := testGazetteer(t, "Station Approach")
	table := billTable(
		[3]string{"4 Mian Street, Liss", "CUST0002", "01-01-2019"},
		[3]string{"4 Mian Street, Liss", "CUST0002", "01-02-2019"},
		[3]string{"4 Main Street, Liss", "CUST0002", "01-03-2019"},
	)

	c := NewCorrector(gaz, 0, 1, zerolog.Nop())
	corrections := c.BuildCorrections(table)
	c.Apply(table, corrections, changelog.New())

	for i, rec := range table.Rows {
		if got := StreetToken(rec.Address); got != "4 Mian Street" {
			t.Errorf("row %d street = %q, want most frequent variant", i, got)
		}
	}
}

func TestCorrectionOnlyChangesLeadingSegment(t *testing.T) {
	gaz := testGazetteer(t, "High Street")
	table := billTable(
		[3]string{"12 Hgh Street,  Alton , GU34 1AA", "CUST0001", "01-01-2019"},
		[3]string{"12 High Street, Alton, GU34 1AA", "CUST0001", "01-02-2019"},
		[3]string{"12 High Street, Alton, GU34 1AA", "CUST0001", "01-03-2019"},
	)

	c := NewCorrector(gaz, 0, 1, zerolog.Nop())
	c.Apply(table, c.BuildCorrections(table), changelog.New())

	for i := range table.Rows {
		parts := strings.Split(table.Rows[i].Address, ", ")
		if len(parts) != 3 || parts[1] != "Alton" || parts[2] != "GU34 1AA" {
			t.Errorf("row %d trailing segments altered: %q", i, table.Rows[i].Address)
		}
	}
}

func TestSingleBillCustomerIsNoOp(t *testing.T) {
	gaz := testGazetteer(t, "High Street")
	table := billTable(
		[3]string{"9 Lone Lane, Steep", "CUST0003", "01-01-2019"},
	)

	c := NewCorrector(gaz, 0, 1, zerolog.Nop())
	tracker := changelog.New()
	changed := c.Apply(table, c.BuildCorrections(table), tracker)

	if changed != 0 || tracker.Len() != 0 {
		t.Errorf("singleton customer should be untouched: changed=%d entries=%d", changed, tracker.Len())
	}
	if table.Rows[0].Address != "9 Lone Lane, Steep" {
		t.Errorf("address = %q", table.Rows[0].Address)
	}
}

func TestParallelCorrectionMatchesSerial(t *testing.T) {
	gaz := testGazetteer(t, "High Street", "Mill Lane", "Church Road")
	build := func(workers int) *billing.Table {
		table := billTable(
			[3]string{"12 Hgh Street, Alton", "CUST0001", "01-01-2019"},
			[3]string{"12 High Street, Alton", "CUST0001", "01-02-2019"},
			[3]string{"3 Mill Lane, Liss", "CUST0002", "01-01-2019"},
			[3]string{"3 Mil Lane, Liss", "CUST0002", "01-02-2019"},
			[3]string{"7 Church Road, Steep", "CUST0003", "01-01-2019"},
			[3]string{"7 Chruch Road, Steep", "CUST0003", "01-02-2019"},
		)
		c := NewCorrector(gaz, 0, workers, zerolog.Nop())
		c.Apply(table, c.BuildCorrections(table), changelog.New())
		return table
	}

	serial := build(1)
	parallel := build(4)
	for i := range serial.Rows {
		if serial.Rows[i].Address != parallel.Rows[i].Address {
			t.Errorf("row %d differs: serial %q parallel %q",
				i, serial.Rows[i].Address, parallel.Rows[i].Address)
		}
	}
}

package billing

import (
	"math"
	"testing"
)

func TestParseMoney(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		invalid bool
	}{
		{name: "plain", input: "585.22", want: "585.22"},
		{name: "whitespace", input: " 31.0 ", want: "31.00"},
		{name: "integer", input: "65", want: "65.00"},
		{name: "negative", input: "-1.5", want: "-1.50"},
		{name: "empty", input: "", invalid: true},
		{name: "text", input: "n/a", invalid: true},
		{name: "currency symbol", input: "£12.00", invalid: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseMoney(tt.input)
			if got.Valid == tt.invalid {
				t.Fatalf("ParseMoney(%q).Valid = %v", tt.input, got.Valid)
			}
			if tt.invalid {
				if s := MoneyString(got); s != "" {
					t.Errorf("MoneyString of null = %q, want empty", s)
				}
				return
			}
			if s := MoneyString(got); s != tt.want {
				t.Errorf("MoneyString(ParseMoney(%q)) = %q, want %q", tt.input, s, tt.want)
			}
		})
	}
}

func TestUsageValue(t *testing.T) {
	if v := UsageValue("122"); v != 122 {
		t.Errorf("UsageValue(122) = %v", v)
	}
	if v := UsageValue(" 99.5 "); v != 99.5 {
		t.Errorf("UsageValue trimmed = %v", v)
	}
	if v := UsageValue("many"); !math.IsNaN(v) {
		t.Errorf("UsageValue of text = %v, want NaN", v)
	}
}

func TestRecordRoundTripPreservesUnknownColumns(t *testing.T) {
	header := []string{ColAddress, ColAccountNumber, "meter_serial", ColLatestCharges}
	var rec Record
	rec.Set(ColAddress, "1 Main Street, Alton")
	rec.Set(ColAccountNumber, "CUST0001")
	rec.Set("meter_serial", "MS-991")
	rec.Set(ColLatestCharges, "585.22")

	table := &Table{Header: header, Rows: []Record{rec}}
	values := table.RowValues(0)
	want := []string{"1 Main Street, Alton", "CUST0001", "MS-991", "585.22"}
	for i := range want {
		if values[i] != want[i] {
			t.Errorf("column %q = %q, want %q", header[i], values[i], want[i])
		}
	}
}

func TestRequireColumns(t *testing.T) {
	table := &Table{Header: []string{ColAddress, ColAccountNumber}}
	if err := table.RequireColumns(ColAddress, ColAccountNumber); err != nil {
		t.Errorf("RequireColumns on present columns = %v", err)
	}
	err := table.RequireColumns(ColLatestCharges)
	if err == nil {
		t.Fatal("RequireColumns should fail for a missing column")
	}
	if _, ok := err.(*ConfigError); !ok {
		t.Errorf("error type = %T, want *ConfigError", err)
	}
}

package billing

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Column names as they appear in billing CSV headers.
const (
	ColAddress       = "address"
	ColAccountNumber = "account_number"
	ColBillDate      = "bill_date"
	ColPeriodStart   = "billing_period_start"
	ColPeriodEnd     = "billing_period_end"
	ColFreshUsage    = "fresh_water_usage"
	ColWasteUsage    = "waste_water_usage"
	ColFreshRate     = "fresh_water_rate"
	ColFreshFixed    = "fresh_water_fixed_charge"
	ColWasteRate     = "waste_water_rate"
	ColWasteFixed    = "waste_water_fixed_charge"
	ColLatestCharges = "latest_charges"
	ColBedrooms      = "number_of_bedrooms"
)

// DateColumns are the fields the cleaner normalizes to DD-MM-YYYY.
var DateColumns = []string{ColBillDate, ColPeriodStart, ColPeriodEnd}

// MoneyColumns are the fields carrying 2-decimal money semantics.
var MoneyColumns = []string{ColFreshRate, ColFreshFixed, ColWasteRate, ColWasteFixed, ColLatestCharges}

// Record is one bill for one customer and billing period. Date fields hold
// either a DD-MM-YYYY string or the empty sentinel once normalized. Money
// fields are null when the source value could not be coerced to a number.
// Usage fields stay textual so that un-normalized values pass through the
// cleaning stage untouched; consumers parse them on demand with UsageValue.
type Record struct {
	Address       string
	AccountNumber string
	BillDate      string
	PeriodStart   string
	PeriodEnd     string
	FreshUsage    string
	WasteUsage    string
	FreshRate     decimal.NullDecimal
	FreshFixed    decimal.NullDecimal
	WasteRate     decimal.NullDecimal
	WasteFixed    decimal.NullDecimal
	LatestCharges decimal.NullDecimal
	Bedrooms      string

	// Extra preserves columns this system does not model, keyed by header name.
	Extra map[string]string
}

// Key identifies a bill across pipeline stages.
type Key struct {
	AccountNumber string
	BillDate      string
}

// Key returns the (account_number, bill_date) identity of the record.
func (r *Record) Key() Key {
	return Key{AccountNumber: r.AccountNumber, BillDate: r.BillDate}
}

// Get returns the textual value of a column for serialization. Money columns
// render as fixed 2-decimal strings, or empty when null.
func (r *Record) Get(col string) string {
	switch col {
	case ColAddress:
		return r.Address
	case ColAccountNumber:
		return r.AccountNumber
	case ColBillDate:
		return r.BillDate
	case ColPeriodStart:
		return r.PeriodStart
	case ColPeriodEnd:
		return r.PeriodEnd
	case ColFreshUsage:
		return r.FreshUsage
	case ColWasteUsage:
		return r.WasteUsage
	case ColBedrooms:
		return r.Bedrooms
	case ColFreshRate, ColFreshFixed, ColWasteRate, ColWasteFixed, ColLatestCharges:
		return MoneyString(*r.Money(col))
	default:
		return r.Extra[col]
	}
}

// Set stores the textual value of a column, coercing money columns.
func (r *Record) Set(col, value string) {
	switch col {
	case ColAddress:
		r.Address = value
	case ColAccountNumber:
		r.AccountNumber = value
	case ColBillDate:
		r.BillDate = value
	case ColPeriodStart:
		r.PeriodStart = value
	case ColPeriodEnd:
		r.PeriodEnd = value
	case ColFreshUsage:
		r.FreshUsage = value
	case ColWasteUsage:
		r.WasteUsage = value
	case ColBedrooms:
		r.Bedrooms = value
	case ColFreshRate, ColFreshFixed, ColWasteRate, ColWasteFixed, ColLatestCharges:
		*r.Money(col) = ParseMoney(value)
	default:
		if r.Extra == nil {
			r.Extra = make(map[string]string)
		}
		r.Extra[col] = value
	}
}

// Money returns a pointer to the named money field. The column must be one of
// MoneyColumns.
func (r *Record) Money(col string) *decimal.NullDecimal {
	switch col {
	case ColFreshRate:
		return &r.FreshRate
	case ColFreshFixed:
		return &r.FreshFixed
	case ColWasteRate:
		return &r.WasteRate
	case ColWasteFixed:
		return &r.WasteFixed
	case ColLatestCharges:
		return &r.LatestCharges
	}
	panic("billing: not a money column: " + col)
}

// Date returns a pointer to the named date field. The column must be one of
// DateColumns.
func (r *Record) Date(col string) *string {
	switch col {
	case ColBillDate:
		return &r.BillDate
	case ColPeriodStart:
		return &r.PeriodStart
	case ColPeriodEnd:
		return &r.PeriodEnd
	}
	panic("billing: not a date column: " + col)
}

// ParseMoney coerces a CSV cell to a money value. Values that do not parse
// become the null sentinel rather than an error.
func ParseMoney(s string) decimal.NullDecimal {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// MoneyString renders a money value for output: fixed 2 decimals, or the
// empty string for the null sentinel.
func MoneyString(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.StringFixed(2)
}

// UsageValue parses a usage cell as a float. Unparseable values become NaN so
// that downstream comparisons and models can recognize them.
func UsageValue(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// MoneyValue converts a money field to a float for feature engineering,
// NaN when null.
func MoneyValue(d decimal.NullDecimal) float64 {
	if !d.Valid {
		return math.NaN()
	}
	f, _ := d.Decimal.Float64()
	return f
}

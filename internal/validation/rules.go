// Package validation runs deterministic billing checks: fresh/waste usage
// agreement and the billed total against the closed-form expected charge.
package validation

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/waterbill-audit/internal/billing"
)

// Issue strings appended to flagged records, in check order.
const (
	IssueUsageMismatch  = "Fresh/Waste water usage mismatch"
	IssueChargeMismatch = "Charge mismatch"

	noteUsageMismatch = "Price likely incorrect due to usage mismatch"
)

// Result is the outcome of the rule checks for one flagged record.
type Result struct {
	AccountNumber string                 `json:"account_number"`
	BillDate      string                 `json:"bill_date"`
	Issues        []string               `json:"issues"`
	Corrections   map[string]interface{} `json:"corrections"`
}

// ExpectedCharge computes the closed-form expected total,
// round(fresh_usage*fresh_rate + waste_usage*waste_rate + fresh_fixed + waste_fixed, 2).
// ok is false when any component is missing or non-numeric.
func ExpectedCharge(r *billing.Record) (decimal.Decimal, bool) {
	freshUsage := billing.UsageValue(r.FreshUsage)
	wasteUsage := billing.UsageValue(r.WasteUsage)
	if math.IsNaN(freshUsage) || math.IsNaN(wasteUsage) ||
		!r.FreshRate.Valid || !r.WasteRate.Valid || !r.FreshFixed.Valid || !r.WasteFixed.Valid {
		return decimal.Decimal{}, false
	}
	expected := decimal.NewFromFloat(freshUsage).Mul(r.FreshRate.Decimal).
		Add(decimal.NewFromFloat(wasteUsage).Mul(r.WasteRate.Decimal)).
		Add(r.FreshFixed.Decimal).
		Add(r.WasteFixed.Decimal)
	return expected.Round(2), true
}

// CheckRecord runs the checks in order against a single record. The boolean
// reports whether the record was flagged; unflagged records are dropped from
// the output stream.
func CheckRecord(r *billing.Record) (Result, bool) {
	result := Result{
		AccountNumber: r.AccountNumber,
		BillDate:      r.BillDate,
		Issues:        []string{},
		Corrections:   map[string]interface{}{},
	}

	freshUsage := billing.UsageValue(r.FreshUsage)
	wasteUsage := billing.UsageValue(r.WasteUsage)
	usageMismatch := freshUsage != wasteUsage // NaN compares unequal, as intended
	if usageMismatch {
		result.Issues = append(result.Issues, IssueUsageMismatch)
	}

	expected, ok := ExpectedCharge(r)
	chargeMismatch := true
	if ok && r.LatestCharges.Valid {
		// exact equality on the 2-decimal value; both sides carry money
		// semantics so no epsilon is needed
		chargeMismatch = !expected.Equal(r.LatestCharges.Decimal)
	}
	if chargeMismatch {
		result.Issues = append(result.Issues, IssueChargeMismatch)
		if ok {
			result.Corrections["expected_charges"] = expected.InexactFloat64()
		} else {
			result.Corrections["expected_charges"] = nil
		}
		if usageMismatch {
			result.Corrections["note"] = noteUsageMismatch
		}
	}

	return result, len(result.Issues) > 0
}

// CheckAll validates every record, emitting only flagged ones in input order.
func CheckAll(t *billing.Table) []Result {
	results := []Result{}
	for i := range t.Rows {
		if result, flagged := CheckRecord(&t.Rows[i]); flagged {
			results = append(results, result)
		}
	}
	return results
}

// RequiredColumns are the columns the rule checks read. Their absence is a
// fatal configuration error for the detection stage.
var RequiredColumns = []string{
	billing.ColAccountNumber,
	billing.ColBillDate,
	billing.ColFreshUsage,
	billing.ColWasteUsage,
	billing.ColFreshRate,
	billing.ColFreshFixed,
	billing.ColWasteRate,
	billing.ColWasteFixed,
	billing.ColLatestCharges,
}

package anomaly

import (
	"math"

	"github.com/waterbill-audit/internal/billing"
	"github.com/waterbill-audit/internal/validation"
)

// IssueMLAnomaly marks records flagged only by the statistical detector.
const IssueMLAnomaly = "ML anomaly detected"

// Record is the unified anomaly output consumed by explanation and API
// collaborators.
type Record struct {
	AccountNumber string                 `json:"account_number"`
	BillDate      string                 `json:"bill_date"`
	Address       string                 `json:"address"`
	FreshUsage    *float64               `json:"fresh_water_usage"`
	WasteUsage    *float64               `json:"waste_water_usage"`
	LatestCharges *float64               `json:"latest_charges"`
	Issues        []string               `json:"issues"`
	Corrections   map[string]interface{} `json:"corrections"`
}

// ProjectionRecord is the detector's fixed output projection: descriptive
// billing fields only, never the raw anomaly score.
type ProjectionRecord struct {
	Address       string   `json:"address"`
	AccountNumber string   `json:"account_number"`
	BillDate      string   `json:"bill_date"`
	PeriodStart   string   `json:"billing_period_start"`
	PeriodEnd     string   `json:"billing_period_end"`
	FreshUsage    *float64 `json:"fresh_water_usage"`
	WasteUsage    *float64 `json:"waste_water_usage"`
	FreshRate     *float64 `json:"fresh_water_rate"`
	FreshFixed    *float64 `json:"fresh_water_fixed_charge"`
	WasteRate     *float64 `json:"waste_water_rate"`
	WasteFixed    *float64 `json:"waste_water_fixed_charge"`
	LatestCharges *float64 `json:"latest_charges"`
}

// Projection renders the flagged rows under the fixed column projection.
func Projection(t *billing.Table, rows []int) []ProjectionRecord {
	out := []ProjectionRecord{}
	for _, row := range rows {
		rec := &t.Rows[row]
		out = append(out, ProjectionRecord{
			Address:       rec.Address,
			AccountNumber: rec.AccountNumber,
			BillDate:      rec.BillDate,
			PeriodStart:   rec.PeriodStart,
			PeriodEnd:     rec.PeriodEnd,
			FreshUsage:    floatPtr(billing.UsageValue(rec.FreshUsage)),
			WasteUsage:    floatPtr(billing.UsageValue(rec.WasteUsage)),
			FreshRate:     floatPtr(billing.MoneyValue(rec.FreshRate)),
			FreshFixed:    floatPtr(billing.MoneyValue(rec.FreshFixed)),
			WasteRate:     floatPtr(billing.MoneyValue(rec.WasteRate)),
			WasteFixed:    floatPtr(billing.MoneyValue(rec.WasteFixed)),
			LatestCharges: floatPtr(billing.MoneyValue(rec.LatestCharges)),
		})
	}
	return out
}

// Merge unifies rule-based and detector output keyed by (account_number,
// bill_date). Rule-based explanations take precedence when both regimes flag
// the same bill; detector-only rows carry the ML issue marker and empty
// corrections.
func Merge(t *billing.Table, ruleResults []validation.Result, detectorRows []int) []Record {
	rowByKey := make(map[billing.Key]int)
	for i := range t.Rows {
		key := t.Rows[i].Key()
		if _, seen := rowByKey[key]; !seen {
			rowByKey[key] = i
		}
	}

	merged := []Record{}
	covered := make(map[billing.Key]struct{})

	for _, result := range ruleResults {
		key := billing.Key{AccountNumber: result.AccountNumber, BillDate: result.BillDate}
		covered[key] = struct{}{}
		rec := recordAt(t, rowByKey, key)
		merged = append(merged, Record{
			AccountNumber: result.AccountNumber,
			BillDate:      result.BillDate,
			Address:       rec.Address,
			FreshUsage:    floatPtr(billing.UsageValue(rec.FreshUsage)),
			WasteUsage:    floatPtr(billing.UsageValue(rec.WasteUsage)),
			LatestCharges: floatPtr(billing.MoneyValue(rec.LatestCharges)),
			Issues:        result.Issues,
			Corrections:   result.Corrections,
		})
	}

	for _, row := range detectorRows {
		rec := &t.Rows[row]
		if _, done := covered[rec.Key()]; done {
			continue
		}
		merged = append(merged, Record{
			AccountNumber: rec.AccountNumber,
			BillDate:      rec.BillDate,
			Address:       rec.Address,
			FreshUsage:    floatPtr(billing.UsageValue(rec.FreshUsage)),
			WasteUsage:    floatPtr(billing.UsageValue(rec.WasteUsage)),
			LatestCharges: floatPtr(billing.MoneyValue(rec.LatestCharges)),
			Issues:        []string{IssueMLAnomaly},
			Corrections:   map[string]interface{}{},
		})
	}
	return merged
}

func recordAt(t *billing.Table, rowByKey map[billing.Key]int, key billing.Key) *billing.Record {
	if i, ok := rowByKey[key]; ok {
		return &t.Rows[i]
	}
	return &billing.Record{AccountNumber: key.AccountNumber, BillDate: key.BillDate}
}

func floatPtr(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

package pipeline

import (
	"path/filepath"

	"github.com/google/uuid"

	"github.com/waterbill-audit/internal/anomaly"
	"github.com/waterbill-audit/internal/billing"
	"github.com/waterbill-audit/internal/validation"
)

// DetectResult summarizes one detection run and names the artifacts written.
type DetectResult struct {
	RunID        string
	RulePath     string
	MLPath       string
	CombinedPath string
	RuleFlagged  int
	MLFlagged    int
	Combined     int
}

// Detect runs the rule validator and the statistical detector independently
// over a cleaned CSV, then merges their outputs. Three JSON artifacts are
// written to outDir; an empty array in any of them means no anomalies found,
// not failure.
func (r *Runner) Detect(inputPath, outDir string) (*DetectResult, error) {
	runID := uuid.NewString()
	log := r.log.With().Str("run_id", runID).Logger()
	log.Info().Str("input", inputPath).Msg("anomaly detection started")

	table, err := billing.ReadTable(inputPath)
	if err != nil {
		return nil, err
	}
	if err := table.RequireColumns(validation.RequiredColumns...); err != nil {
		return nil, err
	}

	ruleResults := validation.CheckAll(table)
	rulePath := filepath.Join(outDir, RuleAnomaliesFile)
	if err := writeJSON(rulePath, ruleResults); err != nil {
		return nil, err
	}

	detector := anomaly.NewDetector(anomaly.Config{
		MinBillsPerCustomer: r.cfg.MinBillsPerCustomer,
		LowVolumeClusters:   r.cfg.LowVolumeClusters,
		Trees:               r.cfg.IsolationTrees,
		Quantile:            r.cfg.AnomalyQuantile,
		Workers:             r.cfg.Workers,
	}, log)
	flaggedRows, err := detector.Detect(table)
	if err != nil {
		return nil, err
	}
	mlPath := filepath.Join(outDir, MLAnomaliesFile)
	if err := writeJSON(mlPath, anomaly.Projection(table, flaggedRows)); err != nil {
		return nil, err
	}

	merged := anomaly.Merge(table, ruleResults, flaggedRows)
	combinedPath := filepath.Join(outDir, CombinedAnomaliesFile)
	if err := writeJSON(combinedPath, merged); err != nil {
		return nil, err
	}

	result := &DetectResult{
		RunID:        runID,
		RulePath:     rulePath,
		MLPath:       mlPath,
		CombinedPath: combinedPath,
		RuleFlagged:  len(ruleResults),
		MLFlagged:    len(flaggedRows),
		Combined:     len(merged),
	}
	log.Info().
		Int("rule_flagged", result.RuleFlagged).
		Int("ml_flagged", result.MLFlagged).
		Int("combined", result.Combined).
		Str("out_dir", outDir).
		Msg("anomaly detection complete")
	return result, nil
}

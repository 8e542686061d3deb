// Package pipeline wires the cleaning and detection stages into the two
// batch operations collaborators invoke: autofix and detect, each taking a
// file path in and producing file paths out.
package pipeline

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/waterbill-audit/internal/billing"
	"github.com/waterbill-audit/internal/changelog"
	"github.com/waterbill-audit/internal/config"
	"github.com/waterbill-audit/internal/gazetteer"
	"github.com/waterbill-audit/internal/normalize"
	"github.com/waterbill-audit/internal/streets"
)

// Runner executes pipeline operations under one configuration.
type Runner struct {
	cfg *config.Config
	log zerolog.Logger
}

// NewRunner creates a pipeline runner.
func NewRunner(cfg *config.Config, log zerolog.Logger) *Runner {
	return &Runner{cfg: cfg, log: log}
}

// AutofixResult summarizes one autofix run.
type AutofixResult struct {
	RunID             string
	OutputPath        string
	ChangeLogPath     string
	RowsIn            int
	RowsOut           int
	DuplicatesRemoved int
	DatesNormalized   int
	StreetsCorrected  int
	ChangesLogged     int
}

// Autofix cleans the raw billing CSV and corrects street spellings against
// the gazetteer, writing the cleaned CSV and the change-log artifact.
func (r *Runner) Autofix(inputPath, gazetteerDir, outputPath, changesPath string) (*AutofixResult, error) {
	runID := uuid.NewString()
	log := r.log.With().Str("run_id", runID).Logger()
	log.Info().Str("input", inputPath).Msg("autofix started")

	table, err := billing.ReadTable(inputPath)
	if err != nil {
		return nil, err
	}

	tracker := changelog.New()
	cleaner := normalize.NewCleaner(tracker, log)
	stats, err := cleaner.Clean(table)
	if err != nil {
		return nil, err
	}

	gaz, err := gazetteer.Load(gazetteerDir)
	if err != nil {
		return nil, err
	}
	log.Info().Int("street_names", gaz.Len()).Msg("gazetteer loaded")

	corrector := streets.NewCorrector(gaz, r.cfg.StreetMatchThreshold, r.cfg.Workers, log)
	corrections := corrector.BuildCorrections(table)
	corrected := corrector.Apply(table, corrections, tracker)

	if err := table.WriteCSV(outputPath); err != nil {
		return nil, err
	}
	logged, err := tracker.Flush(changesPath)
	if err != nil {
		return nil, err
	}

	result := &AutofixResult{
		RunID:             runID,
		OutputPath:        outputPath,
		ChangeLogPath:     changesPath,
		RowsIn:            stats.RowsIn,
		RowsOut:           stats.RowsOut,
		DuplicatesRemoved: stats.DuplicatesRemoved,
		DatesNormalized:   stats.DatesNormalized,
		StreetsCorrected:  corrected,
		ChangesLogged:     logged,
	}
	log.Info().
		Int("rows_out", result.RowsOut).
		Int("streets_corrected", result.StreetsCorrected).
		Int("changes_logged", result.ChangesLogged).
		Str("output", outputPath).
		Msg("autofix complete")
	return result, nil
}

package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Artifact file names under the output directory.
const (
	RuleAnomaliesFile     = "rule_based_anomalies.json"
	MLAnomaliesFile       = "ml_based_anomalies.json"
	CombinedAnomaliesFile = "combined_anomalies.json"
	ChangeLogFile         = "changes.json"
)

// writeJSON serializes an artifact, creating parent directories as needed.
// An empty slice is a valid artifact; failure to produce the file is the
// error case.
func writeJSON(path string, v interface{}) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create artifact directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode artifact %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	return nil
}

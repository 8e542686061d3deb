package web

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/waterbill-audit/internal/changelog"
	"github.com/waterbill-audit/internal/pipeline"
)

// ArtifactHandler serves the pipeline's JSON artifacts. A missing artifact
// file reads as an empty array: "no anomalies found" is a valid state.
type ArtifactHandler struct {
	DataDir string
	Log     zerolog.Logger
}

var anomalyFiles = map[string]string{
	"rule":     pipeline.RuleAnomaliesFile,
	"ml":       pipeline.MLAnomaliesFile,
	"combined": pipeline.CombinedAnomaliesFile,
}

// Health reports server liveness.
func (h *ArtifactHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetCombinedAnomalies returns the merged anomaly artifact.
func (h *ArtifactHandler) GetCombinedAnomalies(w http.ResponseWriter, r *http.Request) {
	h.serveArray(w, pipeline.CombinedAnomaliesFile)
}

// GetAnomalies returns the rule, ml or combined anomaly artifact.
func (h *ArtifactHandler) GetAnomalies(w http.ResponseWriter, r *http.Request) {
	kind := mux.Vars(r)["kind"]
	h.serveArray(w, anomalyFiles[kind])
}

// DeleteAnomaly removes one entry from an anomaly artifact by array index
// and rewrites the file.
func (h *ArtifactHandler) DeleteAnomaly(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	index, err := strconv.Atoi(vars["index"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid index")
		return
	}
	path := filepath.Join(h.DataDir, anomalyFiles[vars["kind"]])

	entries, err := readArray(path)
	if err != nil {
		h.Log.Error().Err(err).Str("path", path).Msg("failed to read artifact")
		writeError(w, http.StatusInternalServerError, "failed to read artifact")
		return
	}
	if index < 0 || index >= len(entries) {
		writeError(w, http.StatusNotFound, "index out of range")
		return
	}
	entries = append(entries[:index], entries[index+1:]...)

	data, err := json.MarshalIndent(entries, "", "  ")
	if err == nil {
		err = os.WriteFile(path, data, 0o644)
	}
	if err != nil {
		h.Log.Error().Err(err).Str("path", path).Msg("failed to rewrite artifact")
		writeError(w, http.StatusInternalServerError, "failed to rewrite artifact")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"remaining": len(entries)})
}

// GetChanges returns the change-log artifact.
func (h *ArtifactHandler) GetChanges(w http.ResponseWriter, r *http.Request) {
	h.serveArray(w, pipeline.ChangeLogFile)
}

// GetChangeSummary returns change-log entry counts grouped by change type.
func (h *ArtifactHandler) GetChangeSummary(w http.ResponseWriter, r *http.Request) {
	path := filepath.Join(h.DataDir, pipeline.ChangeLogFile)
	summary := map[string]int{}
	data, err := os.ReadFile(path)
	if err == nil {
		var entries []changelog.Entry
		if err := json.Unmarshal(data, &entries); err != nil {
			writeError(w, http.StatusInternalServerError, "malformed change log")
			return
		}
		for _, e := range entries {
			summary[e.ChangeType]++
		}
	} else if !os.IsNotExist(err) {
		writeError(w, http.StatusInternalServerError, "failed to read change log")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *ArtifactHandler) serveArray(w http.ResponseWriter, name string) {
	entries, err := readArray(filepath.Join(h.DataDir, name))
	if err != nil {
		h.Log.Error().Err(err).Str("artifact", name).Msg("failed to read artifact")
		writeError(w, http.StatusInternalServerError, "failed to read artifact")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// readArray loads a JSON array artifact without reshaping its entries.
// A missing file is an empty array.
func readArray(path string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return []json.RawMessage{}, nil
	}
	if err != nil {
		return nil, err
	}
	entries := []json.RawMessage{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

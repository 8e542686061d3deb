package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/waterbill-audit/internal/pipeline"
)

func testServer(t *testing.T) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	return NewServer(":0", dir, zerolog.Nop()), dir
}

func writeArtifact(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func doRequest(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decodeArray(t *testing.T, rec *httptest.ResponseRecorder) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding response: %v\nbody: %s", err, rec.Body.String())
	}
	return out
}

func TestHealth(t *testing.T) {
	s, _ := testServer(t)
	rec := doRequest(t, s, "GET", "/api/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestGetAnomaliesMissingArtifactIsEmptyArray(t *testing.T) {
	s, _ := testServer(t)
	rec := doRequest(t, s, "GET", "/api/anomalies")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if out := decodeArray(t, rec); len(out) != 0 {
		t.Errorf("body = %s, want empty array", rec.Body.String())
	}
}

func TestGetAnomaliesByKind(t *testing.T) {
	s, dir := testServer(t)
	writeArtifact(t, dir, pipeline.RuleAnomaliesFile,
		`[{"account_number":"CUST0001","bill_date":"15-01-2019","issues":["Charge mismatch"]}]`)

	rec := doRequest(t, s, "GET", "/api/anomalies/rule")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	out := decodeArray(t, rec)
	if len(out) != 1 || out[0]["account_number"] != "CUST0001" {
		t.Errorf("body = %s", rec.Body.String())
	}

	if rec := doRequest(t, s, "GET", "/api/anomalies/bogus"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown kind status = %d, want 404 from route constraint", rec.Code)
	}
}

func TestDeleteAnomalyByIndex(t *testing.T) {
	s, dir := testServer(t)
	writeArtifact(t, dir, pipeline.CombinedAnomaliesFile,
		`[{"account_number":"CUST0001"},{"account_number":"CUST0002"},{"account_number":"CUST0003"}]`)

	rec := doRequest(t, s, "DELETE", "/api/anomalies/combined/1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, s, "GET", "/api/anomalies/combined")
	out := decodeArray(t, rec)
	if len(out) != 2 {
		t.Fatalf("remaining = %d, want 2", len(out))
	}
	if out[0]["account_number"] != "CUST0001" || out[1]["account_number"] != "CUST0003" {
		t.Errorf("remaining entries = %s", rec.Body.String())
	}
}

func TestDeleteAnomalyIndexOutOfRange(t *testing.T) {
	s, dir := testServer(t)
	writeArtifact(t, dir, pipeline.CombinedAnomaliesFile, `[{"account_number":"CUST0001"}]`)

	if rec := doRequest(t, s, "DELETE", "/api/anomalies/combined/5"); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestGetChangeSummary(t *testing.T) {
	s, dir := testServer(t)
	writeArtifact(t, dir, pipeline.ChangeLogFile, `[
		{"change_type":"date_format_year_first","field":"bill_date"},
		{"change_type":"date_format_year_first","field":"billing_period_start"},
		{"change_type":"address_spelling_correction","field":"address"}
	]`)

	rec := doRequest(t, s, "GET", "/api/changes/summary")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var summary map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatal(err)
	}
	if summary["date_format_year_first"] != 2 || summary["address_spelling_correction"] != 1 {
		t.Errorf("summary = %v", summary)
	}
}

func TestCORSPreflight(t *testing.T) {
	s, _ := testServer(t)
	rec := doRequest(t, s, "OPTIONS", "/api/anomalies")
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("allow-origin = %q", got)
	}
}

package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gcbaptista/medlex-spotter/config"
	"github.com/gcbaptista/medlex-spotter/internal/engine"
	"github.com/gcbaptista/medlex-spotter/internal/jobs"
	"github.com/gcbaptista/medlex-spotter/internal/metrics"
	"github.com/gcbaptista/medlex-spotter/model"
	"github.com/gcbaptista/medlex-spotter/services"
)

type testServer struct {
	router  *gin.Engine
	jobs    *jobs.Manager
	metrics *metrics.Metrics
}

// scannerOnly hides the batch capability of the wrapped scanner
type scannerOnly struct {
	services.Scanner
}

func testConfig() *config.Config {
	fuzzy := 85
	return &config.Config{
		Targets: []config.Target{
			{Canonical: "METFORMIN", Terms: []string{"metformin", "glucophage"}},
			{Canonical: "INSULIN", Terms: []string{"insulin"}, Fuzzy: &fuzzy},
			{Canonical: "TYLENOL", Terms: []string{"tylenol"}, GeneratePhonetic: true},
		},
	}
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	eng, err := engine.New(testConfig())
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	m := metrics.New()
	jm := jobs.NewManager(2, jobs.WithMetrics(m))
	jm.Start()
	t.Cleanup(jm.Stop)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	SetupRoutes(router, engine.NewService(eng, jm, 2, m, nil), m, nil)

	return &testServer{router: router, jobs: jm, metrics: m}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, _ := http.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
}

func TestHealthCheckHandler(t *testing.T) {
	s := setupTestServer(t)

	w := s.do(t, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body map[string]interface{}
	decode(t, w, &body)
	if body["status"] != "healthy" {
		t.Errorf("expected healthy status, got %v", body["status"])
	}
	if body["targets"] != float64(3) {
		t.Errorf("expected 3 targets, got %v", body["targets"])
	}
}

func TestListTargetsHandler(t *testing.T) {
	s := setupTestServer(t)

	w := s.do(t, http.MethodGet, "/targets", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body struct {
		Canonicals []string `json:"canonicals"`
		FlagKeys   []string `json:"flag_keys"`
		Total      int      `json:"total"`
	}
	decode(t, w, &body)

	wantKeys := []string{"has_insulin", "has_metformin", "has_tylenol"}
	if strings.Join(body.FlagKeys, ",") != strings.Join(wantKeys, ",") {
		t.Errorf("expected flag keys %v, got %v", wantKeys, body.FlagKeys)
	}
	if body.Canonicals[0] != "METFORMIN" || body.Total != 3 {
		t.Errorf("unexpected canonicals %v (total %d)", body.Canonicals, body.Total)
	}
}

func TestScanHandler(t *testing.T) {
	s := setupTestServer(t)

	tests := []struct {
		name        string
		text        string
		wantFlag    int
		wantSpans   int
		wantNegated bool
	}{
		{"exact mention", "Patient on metformin 500mg twice daily", 1, 1, false},
		{"negated mention", "Patient denies metformin use", 0, 1, true},
		{"no mention", "Aspirin 81mg daily", 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := int64(7)
			w := s.do(t, http.MethodPost, "/scan", ScanRequest{NoteID: &id, Text: tt.text})
			if w.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
			}

			var resp ScanResponse
			decode(t, w, &resp)
			if resp.NoteID == nil || *resp.NoteID != 7 {
				t.Errorf("expected note_id 7 to be echoed, got %v", resp.NoteID)
			}
			if got := resp.Flags["has_metformin"]; got != tt.wantFlag {
				t.Errorf("expected has_metformin=%d, got %d", tt.wantFlag, got)
			}
			if len(resp.Flags) != 3 {
				t.Errorf("expected every flag to be present, got %v", resp.Flags)
			}
			if len(resp.Spans) != tt.wantSpans {
				t.Fatalf("expected %d spans, got %d", tt.wantSpans, len(resp.Spans))
			}
			if tt.wantSpans > 0 {
				span := resp.Spans[0]
				if span.Matched != "metformin" || span.Source != "METFORMIN" || span.Method != "exact" {
					t.Errorf("unexpected span %+v", span)
				}
				if span.IsNegated != tt.wantNegated {
					t.Errorf("expected is_negated=%v, got %v", tt.wantNegated, span.IsNegated)
				}
			}
		})
	}
}

func TestScanHandler_InvalidJSON(t *testing.T) {
	s := setupTestServer(t)

	w := s.do(t, http.MethodPost, "/scan", `{"text": `)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	var apiErr APIError
	decode(t, w, &apiErr)
	if apiErr.Code != ErrorCodeInvalidJSON {
		t.Errorf("expected code %s, got %s", ErrorCodeInvalidJSON, apiErr.Code)
	}
	if apiErr.RequestID == "" {
		t.Error("expected the request ID in the error body")
	}
}

func TestBatchLifecycle(t *testing.T) {
	s := setupTestServer(t)

	id := func(v int64) *int64 { return &v }
	w := s.do(t, http.MethodPost, "/batches", BatchRequest{Notes: []BatchNote{
		{NoteID: id(3), Text: "no glucophage today"},
		{NoteID: id(1), Text: "took tilenol for pain"},
		{NoteID: id(2), Text: "insluin 10 units"},
	}})
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}

	var accepted struct {
		Status string `json:"status"`
		JobID  string `json:"job_id"`
	}
	decode(t, w, &accepted)
	if accepted.JobID == "" {
		t.Fatal("expected a job ID")
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		w = s.do(t, http.MethodGet, "/jobs/"+accepted.JobID, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200 polling job, got %d", w.Code)
		}
		var job model.Job
		decode(t, w, &job)
		if job.Status == model.JobStatusCompleted {
			break
		}
		if job.Status.IsTerminal() {
			t.Fatalf("job ended with status %s: %s", job.Status, job.Error)
		}
		if time.Now().After(deadline) {
			t.Fatalf("job did not complete, last status %s", job.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}

	w = s.do(t, http.MethodGet, "/jobs/"+accepted.JobID+"/results", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var results struct {
		Results []model.Row `json:"results"`
		Total   int         `json:"total"`
	}
	decode(t, w, &results)
	if results.Total != 3 {
		t.Fatalf("expected 3 rows, got %d", results.Total)
	}
	for i, want := range []int64{1, 2, 3} {
		if results.Results[i].NoteID != want {
			t.Errorf("row %d: expected note_id %d, got %d", i, want, results.Results[i].NoteID)
		}
	}
	if results.Results[0].Flags["has_tylenol"] != 1 {
		t.Errorf("expected phonetic hit on note 1, got %v", results.Results[0].Flags)
	}
	if results.Results[1].Flags["has_insulin"] != 1 {
		t.Errorf("expected fuzzy hit on note 2, got %v", results.Results[1].Flags)
	}
	if results.Results[2].Flags["has_metformin"] != 0 || len(results.Results[2].Spans) != 1 {
		t.Errorf("expected a negated span only on note 3, got %+v", results.Results[2])
	}

	w = s.do(t, http.MethodGet, "/jobs?status=completed", nil)
	var listed struct {
		Total int `json:"total"`
	}
	decode(t, w, &listed)
	if listed.Total != 1 {
		t.Errorf("expected 1 completed job, got %d", listed.Total)
	}

	w = s.do(t, http.MethodPost, "/jobs/"+accepted.JobID+"/cancel", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 cancelling a finished job, got %d", w.Code)
	}

	w = s.do(t, http.MethodGet, "/jobs/metrics", nil)
	var jobMetrics struct {
		Metrics     jobs.JobMetricsData `json:"metrics"`
		SuccessRate float64             `json:"success_rate"`
	}
	decode(t, w, &jobMetrics)
	if jobMetrics.Metrics.NotesScanned != 3 || jobMetrics.SuccessRate != 1.0 {
		t.Errorf("unexpected job metrics %+v", jobMetrics)
	}
}

func TestCreateBatchHandler_Validation(t *testing.T) {
	s := setupTestServer(t)

	tests := []struct {
		name      string
		body      interface{}
		wantCode  int
		wantField string
	}{
		{"invalid json", `{"notes": [`, http.StatusBadRequest, ""},
		{"no notes", BatchRequest{}, http.StatusBadRequest, "notes"},
		{"missing note_id", BatchRequest{Notes: []BatchNote{{Text: "metformin"}}}, http.StatusBadRequest, "notes[0].note_id"},
		{"too many notes", BatchRequest{Notes: make([]BatchNote, services.MaxBatchNotes+1)}, http.StatusBadRequest, "notes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/batches", tt.body)
			if w.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, w.Code)
			}
			if tt.wantField == "" {
				return
			}
			var apiErr APIError
			decode(t, w, &apiErr)
			if len(apiErr.Details) == 0 || apiErr.Details[0].Field != tt.wantField {
				t.Errorf("expected detail on field %s, got %+v", tt.wantField, apiErr.Details)
			}
		})
	}
}

func TestJobHandlers_Errors(t *testing.T) {
	s := setupTestServer(t)
	pending := s.jobs.CreateJob(model.JobTypeScanBatch, nil)

	tests := []struct {
		name     string
		method   string
		path     string
		wantCode int
		wantErr  ErrorCode
	}{
		{"malformed ID", http.MethodGet, "/jobs/not-a-uuid", http.StatusBadRequest, ErrorCodeValidationFailed},
		{"unknown job", http.MethodGet, "/jobs/00000000-0000-4000-8000-000000000000", http.StatusNotFound, ErrorCodeJobNotFound},
		{"unknown job results", http.MethodGet, "/jobs/00000000-0000-4000-8000-000000000000/results", http.StatusNotFound, ErrorCodeJobNotFound},
		{"results not ready", http.MethodGet, "/jobs/" + pending + "/results", http.StatusConflict, ErrorCodeJobNotFinished},
		{"unknown status filter", http.MethodGet, "/jobs?status=paused", http.StatusBadRequest, ErrorCodeValidationFailed},
		{"cancel unknown job", http.MethodPost, "/jobs/00000000-0000-4000-8000-000000000000/cancel", http.StatusNotFound, ErrorCodeJobNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, tt.method, tt.path, nil)
			if w.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d: %s", tt.wantCode, w.Code, w.Body.String())
			}
			var apiErr APIError
			decode(t, w, &apiErr)
			if apiErr.Code != tt.wantErr {
				t.Errorf("expected code %s, got %s", tt.wantErr, apiErr.Code)
			}
		})
	}

	w := s.do(t, http.MethodPost, "/jobs/"+pending+"/cancel", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202 cancelling a pending job, got %d", w.Code)
	}
	job, err := s.jobs.GetJob(pending)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != model.JobStatusCancelling {
		t.Errorf("expected status cancelling, got %s", job.Status)
	}
}

func TestBatchRoutes_NotImplementedForPlainScanner(t *testing.T) {
	eng, err := engine.New(testConfig())
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	gin.SetMode(gin.TestMode)
	router := gin.New()
	SetupRoutes(router, scannerOnly{eng}, nil, nil)

	for _, tc := range []struct{ method, path, body string }{
		{http.MethodPost, "/batches", `{"notes":[{"note_id":1,"text":"x"}]}`},
		{http.MethodGet, "/jobs", ""},
		{http.MethodGet, "/jobs/metrics", ""},
	} {
		req, _ := http.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusNotImplemented {
			t.Errorf("%s %s: expected 501, got %d", tc.method, tc.path, w.Code)
		}
	}

	req, _ := http.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected no /metrics route without a registry, got %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := setupTestServer(t)

	s.do(t, http.MethodPost, "/scan", ScanRequest{Text: "metformin"})

	w := s.do(t, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, name := range []string{
		"medlex_scan_notes_total 1",
		`medlex_scan_flags_total{flag="has_metformin"} 1`,
		`medlex_http_requests_total{method="POST",route="/scan",status="200"} 1`,
	} {
		if !strings.Contains(body, name) {
			t.Errorf("expected exposition to contain %q", name)
		}
	}
}

func TestRequestIDHeader(t *testing.T) {
	s := setupTestServer(t)

	w := s.do(t, http.MethodGet, "/health", nil)
	generated := w.Header().Get(requestIDHeader)
	if generated == "" {
		t.Fatal("expected a generated request ID")
	}

	const incoming = "6f1c1e0e-8a4e-4d6b-9c59-0d2f1f3b2a10"
	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, incoming)
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if got := w.Header().Get(requestIDHeader); got != incoming {
		t.Errorf("expected incoming ID to be kept, got %s", got)
	}

	req, _ = http.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "not-a-uuid")
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if got := w.Header().Get(requestIDHeader); got == "not-a-uuid" || got == "" {
		t.Errorf("expected a fresh ID for a malformed header, got %q", got)
	}
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/contractops/msa-extractor/constants"
	"github.com/contractops/msa-extractor/internal/common"
	"github.com/contractops/msa-extractor/internal/content"
	"github.com/contractops/msa-extractor/internal/export"
	"github.com/contractops/msa-extractor/internal/extractor"
	"github.com/contractops/msa-extractor/internal/llm"
	"github.com/contractops/msa-extractor/internal/ocr"
	"github.com/contractops/msa-extractor/internal/repository"
	"github.com/contractops/msa-extractor/internal/schema"
)

type stubTransport struct{}

func (stubTransport) GenerateText(context.Context, string) (string, error) {
	return "{}", nil
}

func (stubTransport) GenerateVision(context.Context, string, [][]byte) (string, error) {
	return "{}", nil
}

type stubOCR struct{}

func (stubOCR) Recognize(context.Context, []byte) (string, error) { return "", nil }

func newTestServer(t *testing.T, apiKey string) *Server {
	t.Helper()
	db, err := repository.Open(context.Background(), filepath.Join(t.TempDir(), "jobs.db"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	jobs := repository.NewJobRepository(db, nil)

	validator, err := schema.NewValidator(1000, nil)
	if err != nil {
		t.Fatal(err)
	}
	retrier := llm.NewRetrier(0, time.Millisecond, time.Millisecond, nil)
	invoker := llm.NewInvoker(stubTransport{}, retrier, validator, 50000, 1000, nil)

	routerFor := func(engine constants.OCREngine) (*content.Router, error) {
		adapter := ocr.NewAdapter(engine, stubOCR{}, nil)
		return content.NewRouter(adapter, nil, 300, nil), nil
	}
	defaults := common.ExtractionConfig{
		Method:         constants.MethodHybrid,
		Mode:           constants.ModeMultimodal,
		OCREngine:      constants.EngineTesseract,
		RenderDPI:      300,
		MaxTextLength:  50000,
		MaxFieldLength: 1000,
	}
	coordinator := extractor.NewCoordinator(routerFor, invoker, defaults, nil)

	cfg := common.ServerConfig{
		Addr:                     ":0",
		MaxUploadBytes:           5 * 1024 * 1024,
		MaxConcurrentExtractions: 2,
		APIKey:                   apiKey,
		UploadsDir:               t.TempDir(),
	}
	return NewServer(cfg, coordinator, jobs, export.NewService(jobs, nil), db, nil)
}

func multipartUpload(t *testing.T, filename, body string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte(body)); err != nil {
		t.Fatal(err)
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func contractText() string {
	return strings.Repeat("This Master Service Agreement sets out binding terms. ", 60)
}

func waitForTerminal(t *testing.T, s *Server, id string) jobResponse {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+id, nil)
		s.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("GET job = %d: %s", rec.Code, rec.Body.String())
		}
		var job jobResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
			t.Fatal(err)
		}
		if job.Status == string(constants.JobStatusCompleted) || job.Status == string(constants.JobStatusFailed) {
			return job
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("job did not reach a terminal status in time")
	return jobResponse{}
}

func TestExtractEndToEnd(t *testing.T) {
	s := newTestServer(t, "")
	router := s.Router()

	body, contentType := multipartUpload(t, "agreement.txt", contractText(), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/extract", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("POST /extract = %d: %s", rec.Code, rec.Body.String())
	}
	var created jobResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.Status != string(constants.JobStatusPending) {
		t.Fatalf("created status = %q, want pending", created.Status)
	}

	job := waitForTerminal(t, s, created.ID)
	if job.Status != string(constants.JobStatusCompleted) {
		t.Fatalf("job ended %q (%s), want completed", job.Status, job.ErrorMessage)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+created.ID+"/result", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET result = %d: %s", rec.Code, rec.Body.String())
	}
	var result map[string]map[string]map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("result is not valid JSON: %v", err)
	}
	if len(result) != len(schema.Categories) {
		t.Fatalf("result has %d categories, want %d", len(result), len(schema.Categories))
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+created.ID+"/logs", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET logs = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "extraction started") {
		t.Fatal("logs missing the extraction start line")
	}
}

func TestExtractRejectsUnsupportedExtension(t *testing.T) {
	s := newTestServer(t, "")

	body, contentType := multipartUpload(t, "agreement.exe", "MZ", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/extract", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status = %d, want 415", rec.Code)
	}
}

func TestExtractRejectsUnknownOverride(t *testing.T) {
	s := newTestServer(t, "")

	body, contentType := multipartUpload(t, "agreement.txt", contractText(),
		map[string]string{"extraction_method": "telepathy"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/extract", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	s := newTestServer(t, "secret-key")
	router := s.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("without key = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
	req.Header.Set("X-API-Key", "wrong")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong key = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
	req.Header.Set("X-API-Key", "secret-key")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("correct key = %d, want 200", rec.Code)
	}

	// healthz stays open
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d, want 200", rec.Code)
	}
}

func TestGetUnknownJobIs404(t *testing.T) {
	s := newTestServer(t, "")

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/v1/jobs/7b00bb10-95b8-4f6b-9f0a-d7a2f39f1c9e", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/not-a-uuid", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for malformed id", rec.Code)
	}
}

func TestResultConflictWhileRunning(t *testing.T) {
	s := newTestServer(t, "")
	ctx := context.Background()

	job, err := s.jobs.Create(ctx, "msa.pdf", "/nope.pdf",
		constants.MethodHybrid, constants.ModeMultimodal, constants.EngineTesseract)
	if err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		fmt.Sprintf("/api/v1/jobs/%s/result", job.ID), nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409 for pending job", rec.Code)
	}
}

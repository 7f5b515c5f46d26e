package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/contractops/msa-extractor/constants"
	"github.com/contractops/msa-extractor/internal/extractor"
	"github.com/contractops/msa-extractor/internal/repository"
)

type jobResponse struct {
	ID           string     `json:"id"`
	Filename     string     `json:"filename"`
	Method       string     `json:"extraction_method"`
	Mode         string     `json:"llm_mode"`
	OCREngine    string     `json:"ocr_engine"`
	Status       string     `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	PageCount    int        `json:"page_count,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

func toJobResponse(j *repository.Job) jobResponse {
	return jobResponse{
		ID:           j.ID.String(),
		Filename:     j.Filename,
		Method:       string(j.Method),
		Mode:         string(j.Mode),
		OCREngine:    string(j.OCREngine),
		Status:       string(j.Status),
		ErrorMessage: j.ErrorMessage,
		PageCount:    j.PageCount,
		CreatedAt:    j.CreatedAt,
		StartedAt:    j.StartedAt,
		FinishedAt:   j.FinishedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := repository.HealthCheck(r.Context(), s.db, 2*time.Second); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleExtract accepts a multipart upload, persists it, creates a pending
// job, and schedules extraction on a bounded worker.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "upload too large or malformed")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	ext := constants.NormalizeExt(filepath.Ext(header.Filename))
	if _, ok := constants.AllowedExtensions[ext]; !ok {
		writeError(w, http.StatusUnsupportedMediaType,
			fmt.Sprintf("unsupported file type %q", ext))
		return
	}

	opts, err := parseOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := os.MkdirAll(s.cfg.UploadsDir, 0o755); err != nil {
		s.logger.Error("upload.dir_failed", "dir", s.cfg.UploadsDir, "error", err)
		writeError(w, http.StatusInternalServerError, "cannot store upload")
		return
	}
	storedPath := filepath.Join(s.cfg.UploadsDir, uuid.New().String()+"."+ext)
	dst, err := os.Create(storedPath)
	if err != nil {
		s.logger.Error("upload.store_failed", "path", storedPath, "error", err)
		writeError(w, http.StatusInternalServerError, "cannot store upload")
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		os.Remove(storedPath)
		writeError(w, http.StatusInternalServerError, "cannot store upload")
		return
	}
	if err := dst.Close(); err != nil {
		os.Remove(storedPath)
		writeError(w, http.StatusInternalServerError, "cannot store upload")
		return
	}

	job, err := s.jobs.Create(r.Context(), header.Filename, storedPath,
		opts.Method, opts.Mode, opts.OCREngine)
	if err != nil {
		os.Remove(storedPath)
		writeError(w, http.StatusInternalServerError, "cannot create job")
		return
	}
	_ = s.jobs.AppendLog(r.Context(), job.ID, "info",
		fmt.Sprintf("upload received: %s (%d bytes)", header.Filename, header.Size))

	go s.runExtraction(job.ID, storedPath, opts)

	writeJSON(w, http.StatusAccepted, toJobResponse(job))
}

// parseOptions reads optional per-request pipeline overrides from the form.
// Empty values defer to the configured defaults.
func parseOptions(r *http.Request) (extractor.Options, error) {
	var opts extractor.Options
	if v := r.FormValue("extraction_method"); v != "" {
		m, err := constants.ParseExtractionMethod(v)
		if err != nil {
			return opts, err
		}
		opts.Method = m
	}
	if v := r.FormValue("llm_mode"); v != "" {
		m, err := constants.ParseLLMMode(v)
		if err != nil {
			return opts, err
		}
		opts.Mode = m
	}
	if v := r.FormValue("ocr_engine"); v != "" {
		e, err := constants.ParseOCREngine(v)
		if err != nil {
			return opts, err
		}
		opts.OCREngine = e
	}
	return opts, nil
}

// runExtraction executes the pipeline for one job on a worker slot. Fatal
// pipeline conditions become a failed job; everything else completes.
func (s *Server) runExtraction(jobID uuid.UUID, path string, opts extractor.Options) {
	s.sem <- struct{}{}
	defer func() { <-s.sem }()

	ctx := context.Background()
	if err := s.jobs.MarkProcessing(ctx, jobID); err != nil {
		s.logger.Error("job.start_failed", "job_id", jobID, "error", err)
		return
	}
	_ = s.jobs.AppendLog(ctx, jobID, "info", "extraction started")

	result, err := s.coordinator.ExtractMetadata(ctx, path, opts)
	if err != nil {
		_ = s.jobs.AppendLog(ctx, jobID, "error", err.Error())
		if ferr := s.jobs.Fail(ctx, jobID, err.Error()); ferr != nil {
			s.logger.Error("job.fail_update_failed", "job_id", jobID, "error", ferr)
		}
		return
	}

	for _, warning := range result.Warnings {
		_ = s.jobs.AppendLog(ctx, jobID, "warn", warning)
	}
	_ = s.jobs.AppendLog(ctx, jobID, "info",
		fmt.Sprintf("extraction finished in %dms over %d pages",
			result.Elapsed.Milliseconds(), result.PageCount))

	if err := s.jobs.Complete(ctx, jobID, result.Metadata, result.PageCount); err != nil {
		s.logger.Error("job.complete_update_failed", "job_id", jobID, "error", err)
	}
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	var (
		jobs []*repository.Job
		err  error
	)
	if statusParam := r.URL.Query().Get("status"); statusParam != "" {
		status := constants.JobStatus(statusParam)
		switch status {
		case constants.JobStatusPending, constants.JobStatusProcessing,
			constants.JobStatusCompleted, constants.JobStatusFailed:
		default:
			writeError(w, http.StatusBadRequest, "unknown status filter")
			return
		}
		jobs, err = s.jobs.ListByStatus(r.Context(), status, limit)
	} else {
		jobs, err = s.jobs.List(r.Context(), limit)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "cannot list jobs")
		return
	}

	out := make([]jobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, toJobResponse(j))
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": out})
}

func (s *Server) jobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	job, err := s.jobs.Get(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "cannot load job")
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	job, err := s.jobs.Get(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "cannot load job")
		return
	}
	if job.Status != constants.JobStatusCompleted {
		writeError(w, http.StatusConflict,
			fmt.Sprintf("job is %s, result available only for completed jobs", job.Status))
		return
	}
	raw, err := s.jobs.Result(r.Context(), id)
	if err != nil || raw == nil {
		writeError(w, http.StatusInternalServerError, "result payload missing")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	if _, err := s.jobs.Get(r.Context(), id); errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	} else if err != nil {
		writeError(w, http.StatusInternalServerError, "cannot load job")
		return
	}
	logs, err := s.jobs.Logs(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "cannot load logs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	job, err := s.jobs.Get(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "cannot load job")
		return
	}
	if !job.Status.Terminal() {
		writeError(w, http.StatusConflict, "job is still running")
		return
	}
	if err := s.jobs.Delete(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "cannot delete job")
		return
	}
	if job.FilePath != "" {
		if err := os.Remove(job.FilePath); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("upload.remove_failed", "path", job.FilePath, "error", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", "msa_metadata_"+time.Now().Format("20060102")+".xlsx"))
	if err := s.exporter.WriteXLSX(r.Context(), w); err != nil {
		s.logger.Error("export.failed", "error", err)
		writeError(w, http.StatusInternalServerError, "export failed")
	}
}

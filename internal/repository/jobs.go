package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/contractops/msa-extractor/constants"
	"github.com/contractops/msa-extractor/internal/schema"
)

// ErrNotFound is returned when a job ID does not exist.
var ErrNotFound = errors.New("job not found")

// ErrInvalidTransition is returned when a status update does not match the
// job's current lifecycle state.
var ErrInvalidTransition = errors.New("invalid job status transition")

// Job is one extraction job row.
type Job struct {
	ID           uuid.UUID
	Filename     string
	FilePath     string
	Method       constants.ExtractionMethod
	Mode         constants.LLMMode
	OCREngine    constants.OCREngine
	Status       constants.JobStatus
	ErrorMessage string
	PageCount    int
	CreatedAt    time.Time
	StartedAt    *time.Time
	FinishedAt   *time.Time
}

// LogLine is one job log entry.
type LogLine struct {
	At    time.Time
	Level string
	Line  string
}

// JobRepository persists extraction jobs and their logs.
type JobRepository interface {
	Create(ctx context.Context, filename, filePath string, method constants.ExtractionMethod, mode constants.LLMMode, engine constants.OCREngine) (*Job, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	Complete(ctx context.Context, id uuid.UUID, result schema.Metadata, pageCount int) error
	Fail(ctx context.Context, id uuid.UUID, message string) error
	Get(ctx context.Context, id uuid.UUID) (*Job, error)
	Result(ctx context.Context, id uuid.UUID) (json.RawMessage, error)
	List(ctx context.Context, limit int) ([]*Job, error)
	ListByStatus(ctx context.Context, status constants.JobStatus, limit int) ([]*Job, error)
	AppendLog(ctx context.Context, id uuid.UUID, level, line string) error
	Logs(ctx context.Context, id uuid.UUID) ([]LogLine, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error)
}

type jobRepo struct {
	db  *sql.DB
	log *slog.Logger
}

func NewJobRepository(db *sql.DB, log *slog.Logger) JobRepository {
	if log == nil {
		log = slog.Default()
	}
	return &jobRepo{db: db, log: log}
}

const jobColumns = `id, filename, file_path, method, mode, ocr_engine, status,
	error_message, page_count, created_at, started_at, finished_at`

func (r *jobRepo) Create(ctx context.Context, filename, filePath string, method constants.ExtractionMethod, mode constants.LLMMode, engine constants.OCREngine) (*Job, error) {
	job := &Job{
		ID:        uuid.New(),
		Filename:  filename,
		FilePath:  filePath,
		Method:    method,
		Mode:      mode,
		OCREngine: engine,
		Status:    constants.JobStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO extraction_jobs
			(id, filename, file_path, method, mode, ocr_engine, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID.String(), job.Filename, job.FilePath,
		string(job.Method), string(job.Mode), string(job.OCREngine),
		string(job.Status), job.CreatedAt,
	)
	if err != nil {
		r.log.Error("job.create_failed", "filename", filename, "error", err)
		return nil, err
	}
	r.log.Info("job.created", "job_id", job.ID, "filename", filename,
		"method", string(method), "mode", string(mode))
	return job, nil
}

func (r *jobRepo) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	return r.transition(ctx, id, constants.JobStatusPending, `
		UPDATE extraction_jobs SET status = ?, started_at = ?
		WHERE id = ? AND status = ?`,
		string(constants.JobStatusProcessing), time.Now().UTC(), id.String(), string(constants.JobStatusPending))
}

func (r *jobRepo) Complete(ctx context.Context, id uuid.UUID, result schema.Metadata, pageCount int) error {
	payload, err := json.Marshal(result.ToMap())
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	err = r.transition(ctx, id, constants.JobStatusProcessing, `
		UPDATE extraction_jobs
		SET status = ?, result_json = ?, page_count = ?, finished_at = ?
		WHERE id = ? AND status = ?`,
		string(constants.JobStatusCompleted), string(payload), pageCount, time.Now().UTC(),
		id.String(), string(constants.JobStatusProcessing))
	if err != nil {
		return err
	}
	r.log.Info("job.completed", "job_id", id, "page_count", pageCount)
	return nil
}

func (r *jobRepo) Fail(ctx context.Context, id uuid.UUID, message string) error {
	err := r.transition(ctx, id, constants.JobStatusProcessing, `
		UPDATE extraction_jobs
		SET status = ?, error_message = ?, finished_at = ?
		WHERE id = ? AND status = ?`,
		string(constants.JobStatusFailed), message, time.Now().UTC(),
		id.String(), string(constants.JobStatusProcessing))
	if err != nil {
		return err
	}
	r.log.Warn("job.failed", "job_id", id, "error", message)
	return nil
}

// transition runs a guarded status update and distinguishes a missing job
// from a lifecycle violation.
func (r *jobRepo) transition(ctx context.Context, id uuid.UUID, from constants.JobStatus, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: job %s is not %s", ErrInvalidTransition, id, from)
	}
	return nil
}

func (r *jobRepo) Get(ctx context.Context, id uuid.UUID) (*Job, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM extraction_jobs WHERE id = ?`, id.String())
	return scanJob(row)
}

func (r *jobRepo) Result(ctx context.Context, id uuid.UUID) (json.RawMessage, error) {
	var result sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT result_json FROM extraction_jobs WHERE id = ?`, id.String()).Scan(&result)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !result.Valid {
		return nil, nil
	}
	return json.RawMessage(result.String), nil
}

func (r *jobRepo) List(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM extraction_jobs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (r *jobRepo) ListByStatus(ctx context.Context, status constants.JobStatus, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM extraction_jobs WHERE status = ? ORDER BY created_at DESC LIMIT ?`,
		string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (r *jobRepo) AppendLog(ctx context.Context, id uuid.UUID, level, line string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO job_logs (job_id, at, level, line) VALUES (?, ?, ?, ?)`,
		id.String(), time.Now().UTC(), level, line)
	return err
}

func (r *jobRepo) Logs(ctx context.Context, id uuid.UUID) ([]LogLine, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT at, level, line FROM job_logs WHERE job_id = ? ORDER BY id`, id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LogLine
	for rows.Next() {
		var l LogLine
		if err := rows.Scan(&l.At, &l.Level, &l.Line); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *jobRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM extraction_jobs WHERE id = ?`, id.String())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTerminalBefore prunes completed and failed jobs that finished before
// the cutoff. Log lines go with them through the cascade.
func (r *jobRepo) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM extraction_jobs
		WHERE status IN (?, ?) AND finished_at < ?`,
		string(constants.JobStatusCompleted), string(constants.JobStatusFailed), cutoff.UTC())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.log.Info("job.pruned", "count", n, "cutoff", cutoff.UTC())
	}
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		job        Job
		id         string
		method     string
		mode       string
		engine     string
		status     string
		startedAt  sql.NullTime
		finishedAt sql.NullTime
	)
	err := row.Scan(&id, &job.Filename, &job.FilePath, &method, &mode, &engine,
		&status, &job.ErrorMessage, &job.PageCount, &job.CreatedAt, &startedAt, &finishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	job.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse job id: %w", err)
	}
	job.Method = constants.ExtractionMethod(method)
	job.Mode = constants.LLMMode(mode)
	job.OCREngine = constants.OCREngine(engine)
	job.Status = constants.JobStatus(status)
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		job.FinishedAt = &t
	}
	return &job, nil
}

func scanJobs(rows *sql.Rows) ([]*Job, error) {
	var out []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

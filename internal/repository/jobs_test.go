package repository

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/contractops/msa-extractor/constants"
	"github.com/contractops/msa-extractor/internal/schema"
)

func newTestRepo(t *testing.T) JobRepository {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "jobs.db"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewJobRepository(db, nil)
}

func createJob(t *testing.T, repo JobRepository) *Job {
	t.Helper()
	job, err := repo.Create(context.Background(), "msa.pdf", "/uploads/msa.pdf",
		constants.MethodHybrid, constants.ModeMultimodal, constants.EngineTesseract)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return job
}

func testResult(t *testing.T) schema.Metadata {
	t.Helper()
	v, err := schema.NewValidator(1000, nil)
	if err != nil {
		t.Fatal(err)
	}
	return v.Empty()
}

func TestJobLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	job := createJob(t, repo)

	if job.Status != constants.JobStatusPending {
		t.Fatalf("new job status = %v, want pending", job.Status)
	}

	if err := repo.MarkProcessing(ctx, job.ID); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	got, err := repo.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != constants.JobStatusProcessing {
		t.Fatalf("status = %v, want processing", got.Status)
	}
	if got.StartedAt == nil {
		t.Fatal("StartedAt not set after MarkProcessing")
	}

	if err := repo.Complete(ctx, job.ID, testResult(t), 12); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	got, err = repo.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != constants.JobStatusCompleted {
		t.Fatalf("status = %v, want completed", got.Status)
	}
	if got.PageCount != 12 {
		t.Fatalf("page count = %d, want 12", got.PageCount)
	}
	if got.FinishedAt == nil {
		t.Fatal("FinishedAt not set after Complete")
	}
}

func TestJobResultRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	job := createJob(t, repo)

	if err := repo.MarkProcessing(ctx, job.ID); err != nil {
		t.Fatal(err)
	}
	if err := repo.Complete(ctx, job.ID, testResult(t), 1); err != nil {
		t.Fatal(err)
	}

	raw, err := repo.Result(ctx, job.ID)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	var decoded map[string]map[string]map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("stored result is not valid JSON: %v", err)
	}
	if len(decoded) != len(schema.Categories) {
		t.Fatalf("stored result has %d categories, want %d", len(decoded), len(schema.Categories))
	}
}

func TestJobFailureStoresMessage(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	job := createJob(t, repo)

	if err := repo.MarkProcessing(ctx, job.ID); err != nil {
		t.Fatal(err)
	}
	if err := repo.Fail(ctx, job.ID, "text_llm failed after 4 attempts"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	got, err := repo.Get(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != constants.JobStatusFailed {
		t.Fatalf("status = %v, want failed", got.Status)
	}
	if got.ErrorMessage != "text_llm failed after 4 attempts" {
		t.Fatalf("error message = %q", got.ErrorMessage)
	}

	raw, err := repo.Result(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if raw != nil {
		t.Fatal("failed job must have no result payload")
	}
}

func TestInvalidTransitionsRejected(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	job := createJob(t, repo)

	// pending → completed skips processing
	if err := repo.Complete(ctx, job.ID, testResult(t), 1); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Complete on pending = %v, want ErrInvalidTransition", err)
	}

	if err := repo.MarkProcessing(ctx, job.ID); err != nil {
		t.Fatal(err)
	}
	// double MarkProcessing
	if err := repo.MarkProcessing(ctx, job.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second MarkProcessing = %v, want ErrInvalidTransition", err)
	}

	if err := repo.Complete(ctx, job.ID, testResult(t), 1); err != nil {
		t.Fatal(err)
	}
	// terminal → failed
	if err := repo.Fail(ctx, job.ID, "late failure"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Fail on completed = %v, want ErrInvalidTransition", err)
	}
}

func TestGetUnknownJob(t *testing.T) {
	repo := newTestRepo(t)

	if _, err := repo.Get(context.Background(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get unknown = %v, want ErrNotFound", err)
	}
	if err := repo.MarkProcessing(context.Background(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("MarkProcessing unknown = %v, want ErrNotFound", err)
	}
}

func TestListOrderingAndFilter(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	first := createJob(t, repo)
	time.Sleep(5 * time.Millisecond)
	second := createJob(t, repo)

	if err := repo.MarkProcessing(ctx, second.ID); err != nil {
		t.Fatal(err)
	}

	jobs, err := repo.List(ctx, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("List returned %d jobs, want 2", len(jobs))
	}
	if jobs[0].ID != second.ID {
		t.Fatal("List must order newest first")
	}

	pending, err := repo.ListByStatus(ctx, constants.JobStatusPending, 10)
	if err != nil {
		t.Fatalf("ListByStatus: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != first.ID {
		t.Fatalf("ListByStatus(pending) = %d jobs, want the first job only", len(pending))
	}
}

func TestJobLogs(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	job := createJob(t, repo)

	for _, line := range []string{"upload received", "extraction started", "ocr queued 3 pages"} {
		if err := repo.AppendLog(ctx, job.ID, "info", line); err != nil {
			t.Fatalf("AppendLog: %v", err)
		}
	}
	logs, err := repo.Logs(ctx, job.ID)
	if err != nil {
		t.Fatalf("Logs: %v", err)
	}
	if len(logs) != 3 {
		t.Fatalf("got %d log lines, want 3", len(logs))
	}
	if logs[2].Line != "ocr queued 3 pages" {
		t.Fatal("logs must preserve append order")
	}
}

func TestDeleteCascadesLogs(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	job := createJob(t, repo)

	if err := repo.AppendLog(ctx, job.ID, "info", "upload received"); err != nil {
		t.Fatal(err)
	}
	if err := repo.Delete(ctx, job.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.Get(ctx, job.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after delete = %v, want ErrNotFound", err)
	}
	logs, err := repo.Logs(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 0 {
		t.Fatalf("got %d orphaned log lines, want 0", len(logs))
	}
}

func TestDeleteTerminalBefore(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	completed := createJob(t, repo)
	if err := repo.MarkProcessing(ctx, completed.ID); err != nil {
		t.Fatal(err)
	}
	if err := repo.Complete(ctx, completed.ID, testResult(t), 3); err != nil {
		t.Fatal(err)
	}
	pending := createJob(t, repo)

	// A cutoff in the past keeps everything.
	n, err := repo.DeleteTerminalBefore(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("DeleteTerminalBefore: %v", err)
	}
	if n != 0 {
		t.Fatalf("pruned %d jobs before cutoff, want 0", n)
	}

	// A cutoff in the future prunes the terminal job but never the pending one.
	n, err = repo.DeleteTerminalBefore(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("DeleteTerminalBefore: %v", err)
	}
	if n != 1 {
		t.Fatalf("pruned %d jobs, want 1", n)
	}
	if _, err := repo.Get(ctx, completed.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get pruned job = %v, want ErrNotFound", err)
	}
	if _, err := repo.Get(ctx, pending.ID); err != nil {
		t.Fatalf("pending job was pruned: %v", err)
	}
}

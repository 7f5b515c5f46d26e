package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/contractops/msa-extractor/constants"
	"github.com/contractops/msa-extractor/internal/repository"
	"github.com/contractops/msa-extractor/internal/schema"
)

// Service produces XLSX workbooks from completed extraction jobs: one row
// per job and field, categories in canonical schema order.
type Service struct {
	jobs   repository.JobRepository
	logger *slog.Logger
}

func NewService(jobs repository.JobRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{jobs: jobs, logger: logger}
}

var headers = []string{
	"Job ID",
	"Filename",
	"Completed At",
	"Category",
	"Field",
	"Extracted Value",
	"Match Flag",
	"Validation Score",
	"Validation Status",
	"Validation Notes",
}

// WriteXLSX streams a workbook of all completed jobs to w.
func (s *Service) WriteXLSX(ctx context.Context, w io.Writer) error {
	start := time.Now()

	jobs, err := s.jobs.ListByStatus(ctx, constants.JobStatusCompleted, 10000)
	if err != nil {
		return fmt.Errorf("list completed jobs: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "MSA Metadata"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return err
	}
	index, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(index)

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, job := range jobs {
		raw, err := s.jobs.Result(ctx, job.ID)
		if err != nil || raw == nil {
			s.logger.Warn("export.result_missing", "job_id", job.ID, "error", err)
			continue
		}
		var metadata map[string]map[string]schema.FieldValue
		if err := json.Unmarshal(raw, &metadata); err != nil {
			s.logger.Warn("export.result_malformed", "job_id", job.ID, "error", err)
			continue
		}

		finished := ""
		if job.FinishedAt != nil {
			finished = job.FinishedAt.Format("2006-01-02 15:04:05")
		}

		for _, cat := range schema.Categories {
			for _, name := range cat.Fields {
				fv := metadata[cat.Name][name]
				values := []any{
					job.ID.String(),
					job.Filename,
					finished,
					cat.Name,
					name,
					fv.ExtractedValue,
					fv.MatchFlag,
					fv.Validation.Score,
					fv.Validation.Status,
					fv.Validation.Notes,
				}
				for col, v := range values {
					cell, _ := excelize.CoordinatesToCellName(col+1, row)
					_ = f.SetCellValue(sheet, cell, v)
				}
				row++
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	s.logger.Info("export.done",
		"jobs", len(jobs),
		"rows", row-2,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/contractops/msa-extractor/constants"
	"github.com/contractops/msa-extractor/internal/common"
	"github.com/contractops/msa-extractor/internal/content"
	"github.com/contractops/msa-extractor/internal/export"
	"github.com/contractops/msa-extractor/internal/extractor"
	"github.com/contractops/msa-extractor/internal/imaging"
	"github.com/contractops/msa-extractor/internal/llm"
	llmopenai "github.com/contractops/msa-extractor/internal/llm/openai"
	"github.com/contractops/msa-extractor/internal/ocr"
	"github.com/contractops/msa-extractor/internal/repository"
	"github.com/contractops/msa-extractor/internal/schema"
	"github.com/contractops/msa-extractor/internal/server"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := common.LoadConfig()
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("config invalid", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repository.Open(ctx, cfg.Database.Path, logger)
	if err != nil {
		logger.Error("db open failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := repository.HealthCheck(ctx, db, 0); err != nil {
		logger.Error("db health failed", "error", err)
		os.Exit(1)
	}
	jobs := repository.NewJobRepository(db, logger)

	transport := llmopenai.NewClient(llmopenai.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		TextModel:   cfg.LLM.TextModel,
		VisionModel: cfg.LLM.VisionModel,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}, logger)

	validator, err := schema.NewValidator(cfg.Extraction.MaxFieldLength, logger)
	if err != nil {
		logger.Error("schema validator failed", "error", err)
		os.Exit(1)
	}
	retrier := llm.NewRetrier(cfg.Retry.MaxRetries, cfg.Retry.InitialDelay, cfg.Retry.MaxDelay, logger)
	invoker := llm.NewInvoker(transport, retrier, validator,
		cfg.Extraction.MaxTextLength, cfg.Extraction.MaxFieldLength, logger)

	var pre *imaging.Preprocessor
	if cfg.Preprocess.Enabled {
		pre = imaging.NewPreprocessor(imaging.Config{
			Deskew:   cfg.Preprocess.Deskew,
			Denoise:  cfg.Preprocess.Denoise,
			Enhance:  cfg.Preprocess.Enhance,
			Binarize: cfg.Preprocess.Binarize,
		}, logger)
	}

	tesseract := ocr.TesseractConfig{
		Language:    os.Getenv("OCR_LANGUAGE"),
		TessdataDir: os.Getenv("TESSDATA_PREFIX"),
	}
	routerFor := func(engine constants.OCREngine) (*content.Router, error) {
		eng, err := ocr.SelectEngine(engine, tesseract, transport)
		if err != nil {
			return nil, err
		}
		adapter := ocr.NewAdapter(engine, eng, logger)
		return content.NewRouter(adapter, pre, cfg.Extraction.RenderDPI, logger), nil
	}

	// Fail fast on a misconfigured default engine instead of at first upload.
	if _, err := routerFor(cfg.Extraction.OCREngine); err != nil {
		logger.Error("ocr engine invalid", "error", err)
		os.Exit(1)
	}

	coordinator := extractor.NewCoordinator(routerFor, invoker, cfg.Extraction, logger)
	exporter := export.NewService(jobs, logger)
	srv := server.NewServer(cfg.Server, coordinator, jobs, exporter, db, logger)

	go srv.RunCleanup(ctx)

	if err := srv.ListenAndServe(ctx); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

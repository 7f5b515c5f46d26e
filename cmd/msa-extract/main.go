package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"

	"github.com/contractops/msa-extractor/constants"
	"github.com/contractops/msa-extractor/internal/common"
	"github.com/contractops/msa-extractor/internal/content"
	"github.com/contractops/msa-extractor/internal/extractor"
	"github.com/contractops/msa-extractor/internal/imaging"
	"github.com/contractops/msa-extractor/internal/llm"
	llmopenai "github.com/contractops/msa-extractor/internal/llm/openai"
	"github.com/contractops/msa-extractor/internal/ocr"
	"github.com/contractops/msa-extractor/internal/schema"
)

// msa-extract runs the extraction pipeline over one document and prints the
// normalized metadata as JSON. Useful for smoke-testing a deployment's
// configuration without going through the HTTP API.
func main() {
	var (
		filePath = flag.String("file", "", "path to the MSA document (pdf, docx, txt)")
		method   = flag.String("method", "", "extraction method override")
		mode     = flag.String("mode", "", "llm processing mode override")
		engine   = flag.String("ocr-engine", "", "ocr engine override")
		pretty   = flag.Bool("pretty", false, "indent the JSON output")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if *filePath == "" {
		logger.Error("-file is required")
		os.Exit(2)
	}

	cfg, err := common.LoadConfig()
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}
	if cfg.LLM.APIKey == "" {
		logger.Error("LLM_API_KEY env var is required")
		os.Exit(1)
	}

	var opts extractor.Options
	if *method != "" {
		m, err := constants.ParseExtractionMethod(*method)
		if err != nil {
			logger.Error("bad -method", "error", err)
			os.Exit(2)
		}
		opts.Method = m
	}
	if *mode != "" {
		m, err := constants.ParseLLMMode(*mode)
		if err != nil {
			logger.Error("bad -mode", "error", err)
			os.Exit(2)
		}
		opts.Mode = m
	}
	if *engine != "" {
		e, err := constants.ParseOCREngine(*engine)
		if err != nil {
			logger.Error("bad -ocr-engine", "error", err)
			os.Exit(2)
		}
		opts.OCREngine = e
	}

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

	coordinator := extractor.NewCoordinator(routerFor, invoker, cfg.Extraction, logger)

	result, err := coordinator.ExtractMetadata(context.Background(), *filePath, opts)
	if err != nil {
		logger.Error("extraction failed", "file", *filePath, "error", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	if *pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(result.Metadata.ToMap()); err != nil {
		logger.Error("encode result failed", "error", err)
		os.Exit(1)
	}
}

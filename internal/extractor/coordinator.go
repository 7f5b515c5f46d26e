package extractor

import (
	"context"
	"log/slog"
	"time"

	"github.com/contractops/msa-extractor/constants"
	"github.com/contractops/msa-extractor/internal/common"
	"github.com/contractops/msa-extractor/internal/content"
	"github.com/contractops/msa-extractor/internal/document"
	"github.com/contractops/msa-extractor/internal/llm"
	"github.com/contractops/msa-extractor/internal/schema"
)

// RouterFor returns a content router wired for the given OCR engine. The
// default router is reused when the engine override is empty; building a
// router for an unknown engine is a configuration error.
type RouterFor func(engine constants.OCREngine) (*content.Router, error)

// Options are per-call overrides. Zero values fall back to the configured
// defaults.
type Options struct {
	Method    constants.ExtractionMethod
	Mode      constants.LLMMode
	OCREngine constants.OCREngine
}

// Result is a completed extraction: the normalized metadata plus what the
// pipeline observed along the way.
type Result struct {
	Metadata  schema.Metadata
	Method    constants.ExtractionMethod
	Mode      constants.LLMMode
	PageCount int
	Warnings  []string
	Elapsed   time.Duration
}

// Coordinator sequences content extraction, LLM invocation, and
// normalization for one document. It adds no error handling of its own;
// fatal conditions from the stages propagate to the caller.
type Coordinator struct {
	routerFor RouterFor
	invoker   *llm.Invoker
	defaults  common.ExtractionConfig
	logger    *slog.Logger
}

func NewCoordinator(routerFor RouterFor, invoker *llm.Invoker, defaults common.ExtractionConfig, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		routerFor: routerFor,
		invoker:   invoker,
		defaults:  defaults,
		logger:    logger,
	}
}

// ExtractMetadata runs the full pipeline over the document at path and
// returns a schema-complete result.
func (c *Coordinator) ExtractMetadata(ctx context.Context, path string, opts Options) (*Result, error) {
	method := opts.Method
	if method == "" {
		method = c.defaults.Method
	}
	mode := opts.Mode
	if mode == "" {
		mode = c.defaults.Mode
	}
	engine := opts.OCREngine
	if engine == "" {
		engine = c.defaults.OCREngine
	}

	start := time.Now()
	c.logger.Info("extract.start",
		"file_path", path,
		"method", string(method),
		"mode", string(mode),
		"ocr_engine", string(engine),
	)

	router, err := c.routerFor(engine)
	if err != nil {
		return nil, err
	}

	doc, err := document.Open(path)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	bundle, err := router.Extract(ctx, doc, method, mode)
	if err != nil {
		return nil, err
	}

	metadata, err := c.invoker.Invoke(ctx, bundle, mode)
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	c.logger.Info("extract.done",
		"file_path", path,
		"page_count", doc.PageCount(),
		"text_len", len(bundle.Text),
		"image_count", len(bundle.Images),
		"warnings", len(bundle.Warnings),
		"elapsed_ms", elapsed.Milliseconds(),
	)
	return &Result{
		Metadata:  metadata,
		Method:    method,
		Mode:      mode,
		PageCount: doc.PageCount(),
		Warnings:  bundle.Warnings,
		Elapsed:   elapsed,
	}, nil
}

package ocr

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/contractops/msa-extractor/constants"
	"github.com/contractops/msa-extractor/internal/common"
)

// Engine recognizes text in a single encoded page image.
type Engine interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

// Adapter is the uniform interface over text-recognition engines. Engine
// selection happens at construction; per-image failures degrade to an empty
// string and never abort a batch.
type Adapter struct {
	engine Engine
	name   constants.OCREngine
	logger *slog.Logger
}

// SelectEngine builds the configured engine. An unrecognized engine name is
// a fatal configuration error here, not at call time.
func SelectEngine(name constants.OCREngine, tesseract TesseractConfig, vision VisionTransport) (Engine, error) {
	switch name {
	case constants.EngineTesseract:
		return NewTesseractEngine(tesseract), nil
	case constants.EngineVision:
		if vision == nil {
			return nil, common.ConfigError("vision OCR engine requires an LLM transport", nil)
		}
		return NewVisionEngine(vision), nil
	default:
		return nil, common.ConfigError(
			fmt.Sprintf("unknown OCR engine: %q", name),
			map[string]any{"ocr_engine": string(name)},
		)
	}
}

func NewAdapter(name constants.OCREngine, engine Engine, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{engine: engine, name: name, logger: logger}
}

// Recognize extracts text from one image. Failures are logged and yield "".
func (a *Adapter) Recognize(ctx context.Context, image []byte) string {
	text, err := a.engine.Recognize(ctx, image)
	if err != nil {
		a.logger.Error("ocr.recognize_failed", "engine", a.name, "error", err)
		return ""
	}
	return text
}

// RecognizeMany extracts text from each image in order. The result has the
// same length as the input; a failed image contributes an empty string.
func (a *Adapter) RecognizeMany(ctx context.Context, images [][]byte) []string {
	out := make([]string, len(images))
	for i, img := range images {
		text, err := a.engine.Recognize(ctx, img)
		if err != nil {
			a.logger.Error("ocr.recognize_failed",
				"engine", a.name,
				"image_index", i,
				"image_count", len(images),
				"error", err,
			)
			continue
		}
		out[i] = text
		a.logger.Debug("ocr.recognize_ok", "image_index", i, "image_count", len(images), "text_len", len(text))
	}
	return out
}

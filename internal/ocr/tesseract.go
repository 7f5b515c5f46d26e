package ocr

import (
	"context"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// TesseractConfig holds local tesseract settings.
type TesseractConfig struct {
	Language    string // default "eng"
	TessdataDir string // optional TESSDATA_PREFIX override
}

// TesseractEngine recognizes text with the local tesseract library.
type TesseractEngine struct {
	cfg TesseractConfig
}

func NewTesseractEngine(cfg TesseractConfig) *TesseractEngine {
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	return &TesseractEngine{cfg: cfg}
}

// Recognize runs OCR over one encoded image. A fresh client per call keeps
// the engine safe under concurrent batches.
func (e *TesseractEngine) Recognize(ctx context.Context, image []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if e.cfg.TessdataDir != "" {
		if err := client.SetTessdataPrefix(e.cfg.TessdataDir); err != nil {
			return "", err
		}
	}
	if err := client.SetLanguage(e.cfg.Language); err != nil {
		return "", err
	}
	if err := client.SetImageFromBytes(image); err != nil {
		return "", err
	}

	text, err := client.Text()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

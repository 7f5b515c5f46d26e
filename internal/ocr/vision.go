package ocr

import (
	"context"
	"strings"
)

const visionOCRPrompt = "Extract all text from this image. Return only the text, no formatting."

// VisionTransport is the subset of the LLM backend the vision OCR engine
// needs. The concrete LLM client satisfies it.
type VisionTransport interface {
	GenerateVision(ctx context.Context, prompt string, images [][]byte) (string, error)
}

// VisionEngine uses the cloud vision model as a plain OCR service. The model
// can do more than recognition; this engine deliberately asks for raw text
// only, so downstream behaves identically across engines.
type VisionEngine struct {
	transport VisionTransport
}

func NewVisionEngine(transport VisionTransport) *VisionEngine {
	return &VisionEngine{transport: transport}
}

func (e *VisionEngine) Recognize(ctx context.Context, image []byte) (string, error) {
	text, err := e.transport.GenerateVision(ctx, visionOCRPrompt, [][]byte{image})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

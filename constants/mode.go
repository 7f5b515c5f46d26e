package constants

import "fmt"

// LLMMode selects the invocation strategy for a content bundle.
type LLMMode string

const (
	ModeTextLLM    LLMMode = "text_llm"   // text completion only, images dropped with a warning
	ModeVisionLLM  LLMMode = "vision_llm" // first image to the vision model
	ModeMultimodal LLMMode = "multimodal" // text + all images in one vision call
	ModeDualLLM    LLMMode = "dual_llm"   // text and vision independently, merged
)

// ParseLLMMode validates a mode name.
func ParseLLMMode(s string) (LLMMode, error) {
	switch m := LLMMode(s); m {
	case ModeTextLLM, ModeVisionLLM, ModeMultimodal, ModeDualLLM:
		return m, nil
	default:
		return "", fmt.Errorf("unknown LLM processing mode: %q", s)
	}
}

// OCREngine selects the text-recognition backend.
type OCREngine string

const (
	EngineTesseract OCREngine = "tesseract" // local tesseract binary
	EngineVision    OCREngine = "vision"    // cloud vision model used as plain OCR
)

// ParseOCREngine validates an engine name.
func ParseOCREngine(s string) (OCREngine, error) {
	switch e := OCREngine(s); e {
	case EngineTesseract, EngineVision:
		return e, nil
	default:
		return "", fmt.Errorf("unknown OCR engine: %q", s)
	}
}

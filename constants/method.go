package constants

import "fmt"

// ExtractionMethod selects how document pages are turned into LLM content.
type ExtractionMethod string

// Stable values (stored in job records, accepted in API requests).
const (
	MethodTextDirect    ExtractionMethod = "text_direct"     // native text only, image pages skipped
	MethodOCRAll        ExtractionMethod = "ocr_all"         // render every page and OCR it
	MethodOCRImagesOnly ExtractionMethod = "ocr_images_only" // native text + OCR for image pages
	MethodVisionAll     ExtractionMethod = "vision_all"      // render every page for the vision model
	MethodHybrid        ExtractionMethod = "hybrid"          // per-page routing driven by the LLM mode
)

// ParseExtractionMethod validates a method name. Unknown names are a
// construction-time error, never a silent fallback.
func ParseExtractionMethod(s string) (ExtractionMethod, error) {
	switch m := ExtractionMethod(s); m {
	case MethodTextDirect, MethodOCRAll, MethodOCRImagesOnly, MethodVisionAll, MethodHybrid:
		return m, nil
	default:
		return "", fmt.Errorf("unknown extraction method: %q", s)
	}
}

// NeedsOCR reports whether the method queues page rasters for OCR.
func (m ExtractionMethod) NeedsOCR() bool {
	return m == MethodOCRAll || m == MethodOCRImagesOnly
}

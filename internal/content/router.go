package content

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"strings"

	"github.com/contractops/msa-extractor/constants"
	"github.com/contractops/msa-extractor/internal/common"
	"github.com/contractops/msa-extractor/internal/document"
	"github.com/contractops/msa-extractor/internal/imaging"
	"github.com/contractops/msa-extractor/internal/ocr"
)

// Router walks a document page by page and builds a Bundle according to
// the configured extraction method. Page-level failures degrade to empty
// contributions; only document-level conditions surface as errors.
type Router struct {
	ocr    *ocr.Adapter
	pre    *imaging.Preprocessor
	dpi    int
	logger *slog.Logger
}

func NewRouter(ocrAdapter *ocr.Adapter, pre *imaging.Preprocessor, dpi int, logger *slog.Logger) *Router {
	if dpi <= 0 {
		dpi = 300
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{ocr: ocrAdapter, pre: pre, dpi: dpi, logger: logger}
}

// ocrRequest ties a queued raster to the text slot its result splices into.
type ocrRequest struct {
	partIndex  int
	pageNumber int
	data       []byte
}

// Extract applies method over every page of doc. Hybrid routing depends on
// the downstream LLM mode, so the mode travels alongside the method.
func (r *Router) Extract(ctx context.Context, doc document.Document, method constants.ExtractionMethod, mode constants.LLMMode) (*Bundle, error) {
	bundle := &Bundle{Method: method}
	var parts []string
	var queue []ocrRequest

	warn := func(msg string, args ...any) {
		r.logger.Warn(msg, args...)
		bundle.Warnings = append(bundle.Warnings, msg)
	}

	for n := 1; n <= doc.PageCount(); n++ {
		page := doc.Page(n)
		text, err := page.Text()
		if err != nil {
			warn("content.page_text_failed", "page", n, "error", err)
			text = ""
		}
		pageType := document.Classify(text)

		switch method {
		case constants.MethodTextDirect:
			if pageType == document.PageNativeText {
				parts = append(parts, text)
			}

		case constants.MethodOCRAll:
			data, ok := r.renderForOCR(page, warn)
			if !ok {
				// No raster representation. Native text is the best
				// remaining contribution for this page.
				if strings.TrimSpace(text) != "" {
					parts = append(parts, text)
				}
				continue
			}
			parts = append(parts, "")
			queue = append(queue, ocrRequest{partIndex: len(parts) - 1, pageNumber: n, data: data})

		case constants.MethodOCRImagesOnly:
			if pageType == document.PageNativeText {
				parts = append(parts, text)
				continue
			}
			data, ok := r.renderForOCR(page, warn)
			if !ok {
				continue
			}
			parts = append(parts, "")
			queue = append(queue, ocrRequest{partIndex: len(parts) - 1, pageNumber: n, data: data})

		case constants.MethodVisionAll:
			r.renderForVision(page, text, bundle, &parts, warn)

		case constants.MethodHybrid:
			if pageType == document.PageNativeText && mode != constants.ModeVisionLLM {
				parts = append(parts, text)
				continue
			}
			rendered := r.renderForVision(page, text, bundle, &parts, warn)
			if rendered && pageType == document.PageImage && mode == constants.ModeTextLLM {
				data, ok := r.renderForOCR(page, warn)
				if !ok {
					continue
				}
				parts = append(parts, "")
				queue = append(queue, ocrRequest{partIndex: len(parts) - 1, pageNumber: n, data: data})
			}

		default:
			return nil, common.ConfigError("unrecognized extraction method",
				map[string]any{"method": string(method)})
		}
	}

	if len(queue) > 0 {
		images := make([][]byte, len(queue))
		for i, q := range queue {
			images[i] = q.data
		}
		texts := r.ocr.RecognizeMany(ctx, images)
		for i, q := range queue {
			parts[q.partIndex] = texts[i]
			if texts[i] == "" {
				bundle.Warnings = append(bundle.Warnings,
					fmt.Sprintf("ocr produced no text for page %d", q.pageNumber))
			}
			// Release raster buffers as soon as each result is spliced
			// to bound peak memory on large documents.
			queue[i].data = nil
			images[i] = nil
		}
	}

	bundle.Text = joinParts(parts)
	return bundle, nil
}

// renderForVision renders a page as PNG into bundle.Images. Pages with no
// raster representation fall back to a native-text contribution.
func (r *Router) renderForVision(page document.Page, text string, bundle *Bundle, parts *[]string, warn func(string, ...any)) bool {
	data, err := page.RenderPNG(r.dpi)
	if err != nil {
		if errors.Is(err, document.ErrNoRaster) {
			warn("content.page_no_raster", "page", page.Number())
			if strings.TrimSpace(text) != "" {
				*parts = append(*parts, text)
			}
			return false
		}
		warn("content.page_render_failed", "page", page.Number(), "error", err)
		return false
	}
	bundle.Images = append(bundle.Images, PageImage{PageNumber: page.Number(), Data: data})
	return true
}

// renderForOCR produces the encoded raster handed to the OCR adapter,
// preprocessed when a preprocessor is configured.
func (r *Router) renderForOCR(page document.Page, warn func(string, ...any)) ([]byte, bool) {
	if r.pre == nil {
		data, err := page.RenderPNG(r.dpi)
		if err != nil {
			if errors.Is(err, document.ErrNoRaster) {
				warn("content.page_no_raster", "page", page.Number())
			} else {
				warn("content.page_render_failed", "page", page.Number(), "error", err)
			}
			return nil, false
		}
		return data, true
	}

	img, err := page.Render(r.dpi)
	if err != nil {
		if errors.Is(err, document.ErrNoRaster) {
			warn("content.page_no_raster", "page", page.Number())
		} else {
			warn("content.page_render_failed", "page", page.Number(), "error", err)
		}
		return nil, false
	}
	data, err := encodePNG(r.pre.Preprocess(img))
	if err != nil {
		warn("content.page_encode_failed", "page", page.Number(), "error", err)
		return nil, false
	}
	return data, true
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func joinParts(parts []string) string {
	kept := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n")
}

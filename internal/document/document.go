package document

import (
	"errors"
	"image"
	"strings"

	"github.com/contractops/msa-extractor/constants"
	"github.com/contractops/msa-extractor/internal/common"
)

// MinTextLength is the native-text threshold: a page whose stripped
// extractable text is longer than this classifies as a native-text page.
const MinTextLength = 50

// ErrNoRaster is returned by Render on documents with no per-page image
// concept (single text flows). Callers degrade to text-only handling.
var ErrNoRaster = errors.New("document has no raster representation")

// Page is one page of a document at a fixed 1-based index.
type Page interface {
	Number() int
	// Text returns the page's native extractable text, possibly empty.
	Text() (string, error)
	// Render rasterizes the page at the given DPI.
	Render(dpi int) (image.Image, error)
	// RenderPNG rasterizes the page at the given DPI as encoded PNG,
	// suitable for direct transmission to a vision model.
	RenderPNG(dpi int) ([]byte, error)
}

// Document is an ordered sequence of pages identified by a file path.
type Document interface {
	Path() string
	Format() constants.FileFormat
	PageCount() int
	// Page returns the page at 1-based index n.
	Page(n int) Page
	Close() error
}

// PageType classifies a page for content routing.
type PageType int

const (
	PageNativeText PageType = iota
	PageImage
)

func (t PageType) String() string {
	if t == PageNativeText {
		return "native_text"
	}
	return "image"
}

// Classify decides a page's type from its already-extracted native text.
// The stripped-length threshold is the only signal.
func Classify(text string) PageType {
	if len(strings.TrimSpace(text)) > MinTextLength {
		return PageNativeText
	}
	return PageImage
}

// Open validates path and opens it as the right document kind. Missing,
// empty, unreadable, and encrypted files are fatal file conditions raised
// before any page is touched.
func Open(path string) (Document, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}
	switch format := formatOf(path); format {
	case constants.PDF:
		return openPDF(path)
	case constants.FLOW:
		return openFlow(path)
	default:
		return nil, common.FileError(
			"unsupported file type",
			map[string]any{"file_path": path},
		)
	}
}

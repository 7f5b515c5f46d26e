package document

import (
	"image"
	"os"
	"strings"
	"sync"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/contractops/msa-extractor/constants"
	"github.com/contractops/msa-extractor/internal/common"
)

// pdfDocument wraps a go-fitz document. Page access is serialized because
// MuPDF contexts are not safe for concurrent use.
type pdfDocument struct {
	path string
	doc  *fitz.Document
	mu   sync.Mutex
}

func openPDF(path string) (Document, error) {
	if err := checkPDFStructure(path); err != nil {
		return nil, err
	}
	doc, err := fitz.New(path)
	if err != nil {
		return nil, common.FileError("cannot open PDF",
			map[string]any{"file_path": path, "cause": err.Error()})
	}
	if doc.NumPage() == 0 {
		doc.Close()
		return nil, common.FileError("PDF has no pages",
			map[string]any{"file_path": path})
	}
	return &pdfDocument{path: path, doc: doc}, nil
}

// checkPDFStructure parses the cross-reference structure up front so that
// encrypted and corrupt files fail before any page work starts.
func checkPDFStructure(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return common.FileError("file is not readable",
			map[string]any{"file_path": path, "cause": err.Error()})
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	ctx, err := api.ReadValidateAndOptimize(f, conf)
	if err != nil {
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "password") || strings.Contains(msg, "encrypt") {
			return common.FileError("PDF is encrypted",
				map[string]any{"file_path": path})
		}
		return common.FileError("PDF cannot be parsed",
			map[string]any{"file_path": path, "cause": err.Error()})
	}
	if ctx.PageCount == 0 {
		return common.FileError("PDF has no pages",
			map[string]any{"file_path": path})
	}
	return nil
}

func (d *pdfDocument) Path() string { return d.path }

func (d *pdfDocument) Format() constants.FileFormat { return constants.PDF }

func (d *pdfDocument) PageCount() int { return d.doc.NumPage() }

func (d *pdfDocument) Page(n int) Page { return &pdfPage{doc: d, number: n} }

func (d *pdfDocument) Close() error { return d.doc.Close() }

type pdfPage struct {
	doc    *pdfDocument
	number int
}

func (p *pdfPage) Number() int { return p.number }

func (p *pdfPage) Text() (string, error) {
	p.doc.mu.Lock()
	defer p.doc.mu.Unlock()
	return p.doc.doc.Text(p.number - 1)
}

func (p *pdfPage) Render(dpi int) (image.Image, error) {
	p.doc.mu.Lock()
	defer p.doc.mu.Unlock()
	return p.doc.doc.ImageDPI(p.number-1, float64(dpi))
}

func (p *pdfPage) RenderPNG(dpi int) ([]byte, error) {
	p.doc.mu.Lock()
	defer p.doc.mu.Unlock()
	return p.doc.doc.ImagePNG(p.number-1, float64(dpi))
}

package document

import (
	"archive/zip"
	"encoding/xml"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/contractops/msa-extractor/constants"
	"github.com/contractops/msa-extractor/internal/common"
)

// flowDocument is a single text flow (DOCX, TXT). It presents as one page
// with no raster representation.
type flowDocument struct {
	path string
	text string
}

func openFlow(path string) (Document, error) {
	var text string
	var err error
	switch constants.NormalizeExt(filepath.Ext(path)) {
	case "docx":
		text, err = readDOCX(path)
	default:
		text, err = readTXT(path)
	}
	if err != nil {
		return nil, err
	}
	return &flowDocument{path: path, text: text}, nil
}

func readTXT(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", common.FileError("file is not readable",
			map[string]any{"file_path": path, "cause": err.Error()})
	}
	return string(data), nil
}

// readDOCX pulls the run text out of word/document.xml. Paragraph ends and
// explicit breaks become newlines, tabs become tabs.
func readDOCX(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", common.FileError("DOCX archive cannot be opened",
			map[string]any{"file_path": path, "cause": err.Error()})
	}
	defer zr.Close()

	var docXML io.ReadCloser
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docXML, err = f.Open()
			if err != nil {
				return "", common.FileError("DOCX document part cannot be read",
					map[string]any{"file_path": path, "cause": err.Error()})
			}
			break
		}
	}
	if docXML == nil {
		return "", common.FileError("DOCX has no word/document.xml part",
			map[string]any{"file_path": path})
	}
	defer docXML.Close()

	var b strings.Builder
	dec := xml.NewDecoder(docXML)
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", common.FileError("DOCX document part is malformed",
				map[string]any{"file_path": path, "cause": err.Error()})
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br", "cr":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return b.String(), nil
}

func (d *flowDocument) Path() string { return d.path }

func (d *flowDocument) Format() constants.FileFormat { return constants.FLOW }

func (d *flowDocument) PageCount() int { return 1 }

func (d *flowDocument) Page(n int) Page { return &flowPage{doc: d, number: n} }

func (d *flowDocument) Close() error { return nil }

type flowPage struct {
	doc    *flowDocument
	number int
}

func (p *flowPage) Number() int { return p.number }

func (p *flowPage) Text() (string, error) { return p.doc.text, nil }

func (p *flowPage) Render(int) (image.Image, error) { return nil, ErrNoRaster }

func (p *flowPage) RenderPNG(int) ([]byte, error) { return nil, ErrNoRaster }

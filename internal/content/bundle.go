package content

import "github.com/contractops/msa-extractor/constants"

// PageImage is an encoded raster tagged with its 1-based source page.
type PageImage struct {
	PageNumber int
	Data       []byte
}

// Bundle is the unit handed from content extraction to LLM invocation:
// concatenated native text plus the page images the chosen method produced.
type Bundle struct {
	Text     string
	Images   []PageImage
	Method   constants.ExtractionMethod
	Warnings []string
}

package constants

import "strings"

// FileFormat is the coarse document kind driving coordinator dispatch.
type FileFormat string

const (
	PDF     FileFormat = "PDF"  // paginated, pages render to images
	FLOW    FileFormat = "FLOW" // single text flow, no page/image concept
	UNKNOWN FileFormat = ""
)

// AllowedExtensions holds the file extensions accepted for upload.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"docx": {},
	"txt":  {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToFormat maps a normalized extension to its document format.
func MapExtToFormat(ext string) FileFormat {
	switch NormalizeExt(ext) {
	case "pdf":
		return PDF
	case "docx", "txt":
		return FLOW
	default:
		return UNKNOWN
	}
}

package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/contractops/msa-extractor/internal/schema"
)

// BuildExtractionPrompt assembles the metadata extraction prompt. When text
// is empty the prompt targets the vision model, which reads the attached
// page images instead.
func BuildExtractionPrompt(text string, maxFieldLength int) string {
	schemaJSON, _ := json.MarshalIndent(schema.BuildJSONSchema(maxFieldLength), "", "  ")

	var b strings.Builder
	if text != "" {
		b.WriteString("You are a contract analyst. Extract the following metadata fields from the given Master Service Agreement and return VALID JSON ONLY matching this schema:\n\n")
	} else {
		b.WriteString("You are a contract analyst. Extract the following metadata fields from the given Master Service Agreement image and return VALID JSON ONLY matching this schema:\n\n")
	}
	b.Write(schemaJSON)
	b.WriteString("\n\nFIELD DEFINITIONS:\n")
	b.WriteString(buildFieldDefinitions())
	b.WriteString(fmt.Sprintf(`
EXTRACTION RULES:
1. If a field cannot be determined, use %q (never null, empty list, or other placeholders).
2. For dates: preferred format is ISO yyyy-mm-dd. If ambiguous, return the literal text found and append "(AmbiguousDate)".
3. For "Expiration / Termination Date": return "Evergreen" if the contract auto-renews; %q if no explicit expiration.
4. For clause references: return the section heading/number and a 1-2 sentence excerpt.
5. For fields with multiple values (e.g. multiple signatories), combine with semicolons.
6. Score each field's validation from 0-100 and set status to valid, warning, invalid, or not_found.
7. Return no commentary, no extra keys, and no markdown - JSON only.

SEARCH GUIDANCE:
- Agreements differ in structure and section names. Search the ENTIRE document.
- Execution Date and Authorized Signatory are often on signature pages (typically the last pages).
- Payment Terms and Billing Frequency may be under "Payment", "Fees", "Compensation", "Commercial Terms", or similar.
- Indemnification, Limitation of Liability, and Insurance may be under "Risk", "Liability", or "General Provisions".
- Cross-reference related fields (e.g. Effective Date may be defined relative to Execution Date).
`, schema.NotFound, schema.NotFound))

	if text != "" {
		b.WriteString("\nMSA TEXT:\n\"\"\"")
		b.WriteString(text)
		b.WriteString("\"\"\"\n")
	} else {
		b.WriteString("\nExtract all text from the image and analyze it to fill in the schema above.\n")
	}
	return b.String()
}

func buildFieldDefinitions() string {
	var b strings.Builder
	for _, cat := range schema.Categories {
		b.WriteString(cat.Name)
		b.WriteString(":\n")
		for _, f := range cat.Fields {
			b.WriteString("  - ")
			b.WriteString(f)
			b.WriteString(": ")
			b.WriteString(schema.FieldDefinitions[cat.Name][f])
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

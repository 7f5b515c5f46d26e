package schema

// Canonical MSA metadata taxonomy. Every normalized result contains exactly
// these categories and fields; anything else the LLM returns is dropped.

// NotFound is the sentinel for a field the extraction could not determine.
const NotFound = "Not Found"

// MaxNotesLength caps validation notes.
const MaxNotesLength = 500

// MatchFlagValues are the allowed match_flag values.
var MatchFlagValues = []string{
	"same_as_template",
	"similar_not_exact",
	"different_from_template",
	"flag_for_review",
	"not_found",
}

// ValidationStatusValues are the allowed validation.status values.
var ValidationStatusValues = []string{
	"valid",
	"warning",
	"invalid",
	"not_found",
}

// Validation scores and qualifies a single extracted value.
type Validation struct {
	Score  int    `json:"score"`
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

// FieldValue is one extracted metadata field.
type FieldValue struct {
	ExtractedValue string     `json:"extracted_value"`
	MatchFlag      string     `json:"match_flag"`
	Validation     Validation `json:"validation"`
}

// Metadata is a normalized, schema-complete extraction result keyed by
// category then field name.
type Metadata map[string]map[string]FieldValue

// Category is one group of related fields, in canonical order.
type Category struct {
	Name   string
	Fields []string
}

// Categories is the canonical field taxonomy.
var Categories = []Category{
	{Name: "Org Details", Fields: []string{
		"Organization Name",
	}},
	{Name: "Contract Lifecycle", Fields: []string{
		"Party A",
		"Party B",
		"Execution Date",
		"Effective Date",
		"Expiration / Termination Date",
		"Authorized Signatory - Party A",
		"Authorized Signatory - Party B",
	}},
	{Name: "Business Terms", Fields: []string{
		"Document Type",
		"Termination Notice Period",
	}},
	{Name: "Commercial Operations", Fields: []string{
		"Billing Frequency",
		"Payment Terms",
		"Expense Reimbursement Rules",
	}},
	{Name: "Finance Terms", Fields: []string{
		"Pricing Model Type",
		"Currency",
		"Contract Value",
	}},
	{Name: "Risk & Compliance", Fields: []string{
		"Indemnification Clause Reference",
		"Limitation of Liability Cap",
		"Insurance Requirements",
		"Warranties / Disclaimers",
	}},
	{Name: "Legal Terms", Fields: []string{
		"Governing Law",
		"Confidentiality Clause Reference",
		"Force Majeure Clause Reference",
	}},
}

// FieldCount returns the total number of fields in the taxonomy.
func FieldCount() int {
	n := 0
	for _, c := range Categories {
		n += len(c.Fields)
	}
	return n
}

// BuildJSONSchema returns the canonical schema as a JSON-Schema document
// (generic map). It is compiled once per Validator and also serialized into
// extraction prompts.
func BuildJSONSchema(maxFieldLength int) map[string]any {
	fieldSchema := func() map[string]any {
		return map[string]any{
			"type": "object",
			"properties": map[string]any{
				"extracted_value": map[string]any{
					"type":      "string",
					"maxLength": maxFieldLength,
				},
				"match_flag": map[string]any{
					"type": "string",
					"enum": MatchFlagValues,
				},
				"validation": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"score": map[string]any{
							"type":    "integer",
							"minimum": 0,
							"maximum": 100,
						},
						"status": map[string]any{
							"type": "string",
							"enum": ValidationStatusValues,
						},
						"notes": map[string]any{
							"type":      "string",
							"maxLength": MaxNotesLength,
						},
					},
					"required": []string{"score", "status"},
				},
			},
			"required": []string{"extracted_value", "match_flag", "validation"},
		}
	}

	props := map[string]any{}
	required := make([]string, 0, len(Categories))
	for _, cat := range Categories {
		catProps := map[string]any{}
		catRequired := make([]string, 0, len(cat.Fields))
		for _, f := range cat.Fields {
			catProps[f] = fieldSchema()
			catRequired = append(catRequired, f)
		}
		props[cat.Name] = map[string]any{
			"type":       "object",
			"properties": catProps,
			"required":   catRequired,
		}
		required = append(required, cat.Name)
	}

	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validator validates raw LLM output against the canonical schema and
// normalizes it into a schema-complete Metadata value. It is a plain
// stateless value; the compiled schema it holds is immutable configuration,
// so construct one wherever needed.
type Validator struct {
	maxFieldLength int
	compiled       *jsonschema.Schema
	logger         *slog.Logger
}

// NewValidator compiles the canonical schema. maxFieldLength <= 0 falls back
// to 1000.
func NewValidator(maxFieldLength int, logger *slog.Logger) (*Validator, error) {
	if maxFieldLength <= 0 {
		maxFieldLength = 1000
	}
	if logger == nil {
		logger = slog.Default()
	}

	b, err := json.Marshal(BuildJSONSchema(maxFieldLength))
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("metadata.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	compiled, err := compiler.Compile("metadata.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	return &Validator{maxFieldLength: maxFieldLength, compiled: compiled, logger: logger}, nil
}

// Validate checks data against the canonical schema. Validation runs before
// normalization so an incomplete LLM answer can be told apart from a
// well-formed one; both proceed to Normalize regardless.
func (v *Validator) Validate(data map[string]any) (bool, error) {
	// round-trip so numbers take their JSON form
	b, err := json.Marshal(data)
	if err != nil {
		return false, fmt.Errorf("marshal data: %w", err)
	}
	var inst any
	if err := json.Unmarshal(b, &inst); err != nil {
		return false, fmt.Errorf("unmarshal data: %w", err)
	}
	if err := v.compiled.Validate(inst); err != nil {
		return false, err
	}
	return true, nil
}

// Empty returns a fully sentinel-filled Metadata instance.
func (v *Validator) Empty() Metadata {
	return v.Normalize(nil)
}

// Normalize shapes arbitrary decoded JSON into a schema-complete Metadata:
// missing fields are synthesized with sentinels, unknown fields dropped,
// values coerced and truncated, scores clamped, enums repaired. Normalize
// never fails and is idempotent.
func (v *Validator) Normalize(data map[string]any) Metadata {
	out := make(Metadata, len(Categories))

	for _, cat := range Categories {
		fields := make(map[string]FieldValue, len(cat.Fields))
		rawCat, _ := data[cat.Name].(map[string]any)

		for _, name := range cat.Fields {
			fields[name] = v.normalizeField(cat.Name, name, rawCat[name])
		}
		out[cat.Name] = fields
	}
	return out
}

func (v *Validator) normalizeField(category, name string, raw any) FieldValue {
	var (
		extracted  any
		matchFlag  = "not_found"
		validation map[string]any
	)

	legacy := false
	switch fd := raw.(type) {
	case map[string]any:
		extracted = fd["extracted_value"]
		if mf, ok := fd["match_flag"].(string); ok {
			matchFlag = mf
		}
		validation, _ = fd["validation"].(map[string]any)
	case nil:
		extracted = nil
	default:
		// legacy shape: bare value instead of the field record
		extracted = fd
		legacy = true
	}

	value := coerceString(extracted)
	if value == "" {
		value = NotFound
	}
	if legacy && value != NotFound {
		matchFlag = "flag_for_review"
	}
	if value != NotFound && len(value) > v.maxFieldLength {
		original := len(value)
		value = value[:v.maxFieldLength]
		v.logger.Warn("schema.field_truncated",
			"field", category+"."+name,
			"original_length", original,
			"max_length", v.maxFieldLength,
		)
	}

	if !contains(MatchFlagValues, matchFlag) {
		matchFlag = "not_found"
	}

	score := 0
	status := "not_found"
	notes := ""
	if validation != nil {
		score = coerceInt(validation["score"])
		if s, ok := validation["status"].(string); ok {
			status = s
		}
		if n, ok := validation["notes"].(string); ok {
			notes = n
		}
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	if !contains(ValidationStatusValues, status) {
		status = "not_found"
	}
	if len(notes) > MaxNotesLength {
		notes = notes[:MaxNotesLength]
	}

	return FieldValue{
		ExtractedValue: value,
		MatchFlag:      matchFlag,
		Validation: Validation{
			Score:  score,
			Status: status,
			Notes:  notes,
		},
	}
}

// ToMap converts a Metadata back to the generic JSON shape, so normalized
// output can be re-fed to Normalize (merge paths) or serialized verbatim.
func (m Metadata) ToMap() map[string]any {
	out := make(map[string]any, len(m))
	for cat, fields := range m {
		fm := make(map[string]any, len(fields))
		for name, fv := range fields {
			fm[name] = map[string]any{
				"extracted_value": fv.ExtractedValue,
				"match_flag":      fv.MatchFlag,
				"validation": map[string]any{
					"score":  fv.Validation.Score,
					"status": fv.Validation.Status,
					"notes":  fv.Validation.Notes,
				},
			}
		}
		out[cat] = fm
	}
	return out
}

func coerceString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		// JSON numbers decode as float64; print integers without exponent
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	case bool:
		return fmt.Sprintf("%t", t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}

func coerceInt(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return int(i)
		}
	}
	return 0
}

func contains(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}

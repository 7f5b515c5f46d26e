package llm

import (
	"context"
	"log/slog"
	"strings"

	"github.com/contractops/msa-extractor/constants"
	"github.com/contractops/msa-extractor/internal/common"
	"github.com/contractops/msa-extractor/internal/content"
	"github.com/contractops/msa-extractor/internal/schema"
)

// Invoker selects and executes one of the four invocation strategies for a
// content bundle, then parses and normalizes the model's response. Every
// individual model call goes through the retrier.
type Invoker struct {
	transport      Transport
	retrier        *Retrier
	validator      *schema.Validator
	maxTextLength  int
	maxFieldLength int
	logger         *slog.Logger
}

func NewInvoker(transport Transport, retrier *Retrier, validator *schema.Validator, maxTextLength, maxFieldLength int, logger *slog.Logger) *Invoker {
	if maxTextLength <= 0 {
		maxTextLength = 50000
	}
	if maxFieldLength <= 0 {
		maxFieldLength = 1000
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{
		transport:      transport,
		retrier:        retrier,
		validator:      validator,
		maxTextLength:  maxTextLength,
		maxFieldLength: maxFieldLength,
		logger:         logger,
	}
}

// Invoke runs the strategy for mode against bundle and returns a
// schema-complete metadata result. Garbled model output degrades to a
// sentinel-filled result; only transport exhaustion is an error.
func (inv *Invoker) Invoke(ctx context.Context, bundle *content.Bundle, mode constants.LLMMode) (schema.Metadata, error) {
	inv.logger.Info("llm.invoke.start",
		"mode", string(mode),
		"text_len", len(bundle.Text),
		"image_count", len(bundle.Images),
	)
	switch mode {
	case constants.ModeTextLLM:
		return inv.invokeText(ctx, bundle)
	case constants.ModeVisionLLM:
		return inv.invokeVision(ctx, bundle)
	case constants.ModeMultimodal:
		return inv.invokeMultimodal(ctx, bundle)
	case constants.ModeDualLLM:
		return inv.invokeDual(ctx, bundle)
	default:
		return nil, common.ConfigError("unrecognized llm mode",
			map[string]any{"llm_mode": string(mode)})
	}
}

func (inv *Invoker) invokeText(ctx context.Context, bundle *content.Bundle) (schema.Metadata, error) {
	if strings.TrimSpace(bundle.Text) == "" {
		inv.logger.Warn("llm.text.empty_bundle")
		return inv.validator.Empty(), nil
	}
	if len(bundle.Images) > 0 {
		inv.logger.Warn("llm.text.images_dropped", "image_count", len(bundle.Images))
	}
	prompt := BuildExtractionPrompt(inv.truncateText(bundle.Text), inv.maxFieldLength)
	raw, err := inv.retrier.Do(ctx, "text_llm", func() (string, error) {
		return inv.transport.GenerateText(ctx, prompt)
	})
	if err != nil {
		return nil, err
	}
	return inv.process(raw), nil
}

func (inv *Invoker) invokeVision(ctx context.Context, bundle *content.Bundle) (schema.Metadata, error) {
	if len(bundle.Images) == 0 {
		inv.logger.Warn("llm.vision.no_images")
		return inv.validator.Empty(), nil
	}
	// Only the first page image is sent. Multi-image aggregation is a known
	// limitation of this mode; use multimodal for whole-document coverage.
	if len(bundle.Images) > 1 {
		inv.logger.Warn("llm.vision.images_discarded",
			"sent_page", bundle.Images[0].PageNumber,
			"discarded_count", len(bundle.Images)-1,
		)
	}
	prompt := BuildExtractionPrompt("", inv.maxFieldLength)
	raw, err := inv.retrier.Do(ctx, "vision_llm", func() (string, error) {
		return inv.transport.GenerateVision(ctx, prompt, [][]byte{bundle.Images[0].Data})
	})
	if err != nil {
		return nil, err
	}
	return inv.process(raw), nil
}

func (inv *Invoker) invokeMultimodal(ctx context.Context, bundle *content.Bundle) (schema.Metadata, error) {
	hasText := strings.TrimSpace(bundle.Text) != ""
	if !hasText && len(bundle.Images) == 0 {
		inv.logger.Warn("llm.multimodal.empty_bundle")
		return inv.validator.Empty(), nil
	}
	if len(bundle.Images) == 0 {
		return inv.invokeText(ctx, bundle)
	}

	var text string
	if hasText {
		text = inv.truncateText(bundle.Text)
	}
	prompt := BuildExtractionPrompt(text, inv.maxFieldLength)
	images := make([][]byte, len(bundle.Images))
	for i, img := range bundle.Images {
		images[i] = img.Data
	}
	raw, err := inv.retrier.Do(ctx, "multimodal", func() (string, error) {
		return inv.transport.GenerateVision(ctx, prompt, images)
	})
	if err != nil {
		return nil, err
	}
	return inv.process(raw), nil
}

// invokeDual runs the text and vision strategies independently and merges
// field-by-field. A failure on either side degrades that side to sentinels
// instead of failing the invocation.
func (inv *Invoker) invokeDual(ctx context.Context, bundle *content.Bundle) (schema.Metadata, error) {
	textResult, err := inv.invokeText(ctx, bundle)
	if err != nil {
		inv.logger.Error("llm.dual.text_failed", "error", err)
		textResult = inv.validator.Empty()
	}
	visionResult, err := inv.invokeVision(ctx, bundle)
	if err != nil {
		inv.logger.Error("llm.dual.vision_failed", "error", err)
		visionResult = inv.validator.Empty()
	}
	return mergeResults(textResult, visionResult), nil
}

// mergeResults prefers any non-sentinel value, with the vision result
// winning when both sides found something. A value equal to the sentinel
// string is treated as absent.
func mergeResults(text, vision schema.Metadata) schema.Metadata {
	merged := make(schema.Metadata, len(schema.Categories))
	for _, cat := range schema.Categories {
		fields := make(map[string]schema.FieldValue, len(cat.Fields))
		for _, name := range cat.Fields {
			tv := text[cat.Name][name]
			vv := vision[cat.Name][name]
			if vv.ExtractedValue != "" && vv.ExtractedValue != schema.NotFound {
				fields[name] = vv
			} else if tv.ExtractedValue != "" && tv.ExtractedValue != schema.NotFound {
				fields[name] = tv
			} else {
				fields[name] = vv
			}
		}
		merged[cat.Name] = fields
	}
	return merged
}

// process parses and normalizes a raw model response. Both steps always
// yield a schema-complete result.
func (inv *Invoker) process(raw string) schema.Metadata {
	data, ok := schema.ParseResponse(raw)
	if !ok {
		inv.logger.Warn("llm.response.not_json", "response_len", len(raw))
		return inv.validator.Empty()
	}
	if valid, err := inv.validator.Validate(data); !valid {
		inv.logger.Warn("llm.response.schema_mismatch", "error", err)
	}
	return inv.validator.Normalize(data)
}

// truncateText enforces the prompt text cap, dropping from the end.
func (inv *Invoker) truncateText(text string) string {
	if len(text) <= inv.maxTextLength {
		return text
	}
	inv.logger.Warn("llm.text.truncated",
		"original_len", len(text),
		"max_len", inv.maxTextLength,
	)
	return text[:inv.maxTextLength]
}

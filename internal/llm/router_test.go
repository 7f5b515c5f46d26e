package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/contractops/msa-extractor/constants"
	"github.com/contractops/msa-extractor/internal/content"
	"github.com/contractops/msa-extractor/internal/schema"
)

type fakeTransport struct {
	textResp    string
	textErr     error
	visionResp  string
	visionErr   error
	textCalls   int
	visionCalls int
	lastPrompt  string
	lastImages  [][]byte
}

func (f *fakeTransport) GenerateText(_ context.Context, prompt string) (string, error) {
	f.textCalls++
	f.lastPrompt = prompt
	return f.textResp, f.textErr
}

func (f *fakeTransport) GenerateVision(_ context.Context, prompt string, images [][]byte) (string, error) {
	f.visionCalls++
	f.lastPrompt = prompt
	f.lastImages = images
	return f.visionResp, f.visionErr
}

func newTestInvoker(t *testing.T, transport Transport) (*Invoker, *schema.Validator) {
	t.Helper()
	validator, err := schema.NewValidator(1000, nil)
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	retrier := NewRetrier(0, time.Millisecond, time.Millisecond, nil)
	retrier.sleep = func(time.Duration) {}
	return NewInvoker(transport, retrier, validator, 50000, 1000, nil), validator
}

// responseWith serializes a sentinel-complete result with some fields set.
func responseWith(t *testing.T, v *schema.Validator, values map[string]map[string]string) string {
	t.Helper()
	m := v.Empty().ToMap()
	for cat, fields := range values {
		catMap, ok := m[cat].(map[string]any)
		if !ok {
			t.Fatalf("unknown category %q", cat)
		}
		for name, val := range fields {
			fieldMap, ok := catMap[name].(map[string]any)
			if !ok {
				t.Fatalf("unknown field %q/%q", cat, name)
			}
			fieldMap["extracted_value"] = val
			fieldMap["match_flag"] = "similar_not_exact"
			fieldMap["validation"] = map[string]any{
				"score":  90,
				"status": "valid",
				"notes":  "",
			}
		}
	}
	b, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func allSentinel(t *testing.T, md schema.Metadata) {
	t.Helper()
	for cat, fields := range md {
		for name, fv := range fields {
			if fv.ExtractedValue != schema.NotFound {
				t.Fatalf("%s/%s = %q, want sentinel", cat, name, fv.ExtractedValue)
			}
		}
	}
}

func TestInvoke_TextModeEmptyBundleShortCircuits(t *testing.T) {
	transport := &fakeTransport{}
	inv, _ := newTestInvoker(t, transport)

	md, err := inv.Invoke(context.Background(), &content.Bundle{}, constants.ModeTextLLM)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if transport.textCalls != 0 || transport.visionCalls != 0 {
		t.Fatal("transport must not be called for an empty bundle")
	}
	allSentinel(t, md)
}

func TestInvoke_VisionModeNoImagesShortCircuits(t *testing.T) {
	transport := &fakeTransport{}
	inv, _ := newTestInvoker(t, transport)

	md, err := inv.Invoke(context.Background(), &content.Bundle{Text: "some contract text"}, constants.ModeVisionLLM)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if transport.visionCalls != 0 {
		t.Fatal("vision endpoint must not be called without images")
	}
	allSentinel(t, md)
}

func TestInvoke_VisionModeSendsFirstImageOnly(t *testing.T) {
	transport := &fakeTransport{}
	inv, v := newTestInvoker(t, transport)
	transport.visionResp = responseWith(t, v, nil)

	bundle := &content.Bundle{Images: []content.PageImage{
		{PageNumber: 1, Data: []byte("page-1")},
		{PageNumber: 2, Data: []byte("page-2")},
		{PageNumber: 3, Data: []byte("page-3")},
	}}
	if _, err := inv.Invoke(context.Background(), bundle, constants.ModeVisionLLM); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if transport.visionCalls != 1 {
		t.Fatalf("vision calls = %d, want 1", transport.visionCalls)
	}
	if len(transport.lastImages) != 1 || string(transport.lastImages[0]) != "page-1" {
		t.Fatalf("sent images = %d, want first image only", len(transport.lastImages))
	}
}

func TestInvoke_MultimodalSendsAllImages(t *testing.T) {
	transport := &fakeTransport{}
	inv, v := newTestInvoker(t, transport)
	transport.visionResp = responseWith(t, v, nil)

	bundle := &content.Bundle{
		Text: "native contract text",
		Images: []content.PageImage{
			{PageNumber: 2, Data: []byte("page-2")},
			{PageNumber: 4, Data: []byte("page-4")},
		},
	}
	if _, err := inv.Invoke(context.Background(), bundle, constants.ModeMultimodal); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if transport.visionCalls != 1 || transport.textCalls != 0 {
		t.Fatalf("calls = %d text / %d vision, want one vision call", transport.textCalls, transport.visionCalls)
	}
	if len(transport.lastImages) != 2 {
		t.Fatalf("sent %d images, want 2", len(transport.lastImages))
	}
	if !strings.Contains(transport.lastPrompt, "native contract text") {
		t.Fatal("prompt must carry the bundle text")
	}
}

func TestInvoke_MultimodalFallsBackToTextWithoutImages(t *testing.T) {
	transport := &fakeTransport{}
	inv, v := newTestInvoker(t, transport)
	transport.textResp = responseWith(t, v, nil)

	bundle := &content.Bundle{Text: "native contract text"}
	if _, err := inv.Invoke(context.Background(), bundle, constants.ModeMultimodal); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if transport.textCalls != 1 || transport.visionCalls != 0 {
		t.Fatalf("calls = %d text / %d vision, want one text call", transport.textCalls, transport.visionCalls)
	}
}

func TestInvoke_DualMergePrecedence(t *testing.T) {
	const cat = "Legal Terms"
	transport := &fakeTransport{}
	inv, v := newTestInvoker(t, transport)
	transport.textResp = responseWith(t, v, map[string]map[string]string{
		cat: {"Governing Law": "New York"},
	})
	transport.visionResp = responseWith(t, v, map[string]map[string]string{
		cat: {
			"Governing Law":                    "Delaware",
			"Confidentiality Clause Reference": "Section 7",
		},
	})

	bundle := &content.Bundle{
		Text:   "full contract text",
		Images: []content.PageImage{{PageNumber: 1, Data: []byte("page-1")}},
	}
	md, err := inv.Invoke(context.Background(), bundle, constants.ModeDualLLM)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got := md[cat]["Governing Law"].ExtractedValue; got != "Delaware" {
		t.Fatalf("Governing Law = %q, want vision value on conflict", got)
	}
	if got := md[cat]["Confidentiality Clause Reference"].ExtractedValue; got != "Section 7" {
		t.Fatalf("Confidentiality = %q, want vision to fill text's gap", got)
	}
	if got := md[cat]["Force Majeure Clause Reference"].ExtractedValue; got != schema.NotFound {
		t.Fatalf("Force Majeure = %q, want sentinel when both sides missed", got)
	}
}

func TestInvoke_DualTextFillsVisionGaps(t *testing.T) {
	const cat = "Finance Terms"
	transport := &fakeTransport{}
	inv, v := newTestInvoker(t, transport)
	transport.textResp = responseWith(t, v, map[string]map[string]string{
		cat: {"Currency": "USD"},
	})
	transport.visionResp = responseWith(t, v, nil)

	bundle := &content.Bundle{
		Text:   "full contract text",
		Images: []content.PageImage{{PageNumber: 1, Data: []byte("page-1")}},
	}
	md, err := inv.Invoke(context.Background(), bundle, constants.ModeDualLLM)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got := md[cat]["Currency"].ExtractedValue; got != "USD" {
		t.Fatalf("Currency = %q, want text value when vision has sentinel", got)
	}
}

func TestInvoke_DualSideFailureDegrades(t *testing.T) {
	const cat = "Org Details"
	transport := &fakeTransport{}
	inv, v := newTestInvoker(t, transport)
	transport.textResp = responseWith(t, v, map[string]map[string]string{
		cat: {"Organization Name": "Acme Corp"},
	})
	transport.visionErr = errors.New("invalid api key")

	bundle := &content.Bundle{
		Text:   "full contract text",
		Images: []content.PageImage{{PageNumber: 1, Data: []byte("page-1")}},
	}
	md, err := inv.Invoke(context.Background(), bundle, constants.ModeDualLLM)
	if err != nil {
		t.Fatalf("Invoke: %v (dual side failures must degrade, not raise)", err)
	}
	if got := md[cat]["Organization Name"].ExtractedValue; got != "Acme Corp" {
		t.Fatalf("Organization Name = %q, want surviving side's value", got)
	}
}

func TestInvoke_GarbledResponseDegradesToSentinels(t *testing.T) {
	transport := &fakeTransport{textResp: "I am sorry, I cannot help with that."}
	inv, _ := newTestInvoker(t, transport)

	md, err := inv.Invoke(context.Background(), &content.Bundle{Text: "contract text"}, constants.ModeTextLLM)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	allSentinel(t, md)
}

func TestInvoke_TruncatesLongText(t *testing.T) {
	transport := &fakeTransport{}
	validator, err := schema.NewValidator(1000, nil)
	if err != nil {
		t.Fatal(err)
	}
	retrier := NewRetrier(0, time.Millisecond, time.Millisecond, nil)
	inv := NewInvoker(transport, retrier, validator, 100, 1000, nil)
	transport.textResp = responseWith(t, validator, nil)

	text := strings.Repeat("x", 150)
	if _, err := inv.Invoke(context.Background(), &content.Bundle{Text: text}, constants.ModeTextLLM); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if strings.Contains(transport.lastPrompt, text) {
		t.Fatal("prompt carries untruncated text")
	}
	if !strings.Contains(transport.lastPrompt, strings.Repeat("x", 100)) {
		t.Fatal("prompt missing the truncated text")
	}
}

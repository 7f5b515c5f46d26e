package common

import (
	"errors"
	"fmt"
)

// Kind sentinels for the three fatal condition classes. Everything else
// the pipeline hits is recovered locally and never surfaces as an error.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrFile          = errors.New("file error")
	ErrExtraction    = errors.New("extraction error")
)

// PipelineError is a fatal condition with a structured details payload.
// Callers map it to a job failure; the Kind is errors.Is-able.
type PipelineError struct {
	Kind    error
	Message string
	Details map[string]any
	Cause   error
}

func (e *PipelineError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("%s | details: %v", e.Message, e.Details)
	}
	return e.Message
}

func (e *PipelineError) Is(target error) bool { return target == e.Kind }

func (e *PipelineError) Unwrap() error { return e.Cause }

// ConfigError reports a missing or unrecognized setting. Raised at
// construction/dispatch, never mid-pipeline.
func ConfigError(message string, details map[string]any) *PipelineError {
	return &PipelineError{Kind: ErrConfiguration, Message: message, Details: details}
}

// FileError reports a source document that cannot be processed at all
// (missing, empty, unreadable, encrypted).
func FileError(message string, details map[string]any) *PipelineError {
	return &PipelineError{Kind: ErrFile, Message: message, Details: details}
}

// ExtractionError reports a terminal LLM invocation failure.
func ExtractionError(message string, details map[string]any, cause error) *PipelineError {
	return &PipelineError{Kind: ErrExtraction, Message: message, Details: details, Cause: cause}
}

// WrapError annotates err without changing its kind.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

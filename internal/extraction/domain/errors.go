package domain

import (
	"errors"
	"fmt"
)

// Stage names the pipeline stage that exhausted its options. The caller uses
// this to distinguish "bad scan" (OCR) from "provider outage" (AI).
type Stage string

const (
	StageOCR Stage = "ocr"
	StageAI  Stage = "ai"
)

var (
	// ErrNoUsableText means both OCR providers failed to produce text of
	// usable length.
	ErrNoUsableText = errors.New("no usable text after all OCR providers")

	// ErrExtractionExhausted means every AI model attempt across all
	// available text sources failed.
	ErrExtractionExhausted = errors.New("all extraction attempts exhausted")
)

// TerminalError is a fatal, non-retryable failure of the whole pipeline.
// There is no further fallback once one is raised.
type TerminalError struct {
	Stage Stage
	Err   error
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("extraction terminal at %s stage: %v", e.Stage, e.Err)
}

func (e *TerminalError) Unwrap() error {
	return e.Err
}

// Terminal wraps err as a terminal failure of the given stage
func Terminal(stage Stage, err error) *TerminalError {
	return &TerminalError{Stage: stage, Err: err}
}

// IsTerminal reports whether err is a terminal pipeline failure
func IsTerminal(err error) bool {
	var te *TerminalError
	return errors.As(err, &te)
}

package pipeline

import (
	"errors"
	"fmt"
)

// Stage names the pipeline step a failure belongs to.
type Stage string

const (
	StageValidation    Stage = "validation"
	StageTranscription Stage = "transcription"
	StageTranslation   Stage = "translation"
	StageSynthesis     Stage = "synthesis"
	StageDelivery      Stage = "delivery"
	StageStartup       Stage = "startup"
)

// Kind classifies a failure. Collaborator errors never cross a stage boundary
// unconverted; the orchestrator reclassifies everything into these kinds.
type Kind string

const (
	KindUnsupportedLanguage Kind = "UnsupportedLanguage"
	KindEmptyInput          Kind = "EmptyInput"
	KindPayloadTooLarge     Kind = "PayloadTooLarge"
	KindTranscriptionFailed Kind = "TranscriptionFailed"
	KindTranslationFailed   Kind = "TranslationFailed"
	KindSynthesisFailed     Kind = "SynthesisFailed"
	KindDeliveryFailed      Kind = "DeliveryFailed"
	KindStartupFailed       Kind = "StartupFailed"
)

// Error is the tagged result every stage boundary returns on failure.
type Error struct {
	Stage Stage
	Kind  Kind
	cause error
}

func NewError(stage Stage, kind Kind, cause error) *Error {
	return &Error{Stage: stage, Kind: kind, cause: cause}
}

func Errorf(stage Stage, kind Kind, format string, args ...any) *Error {
	return NewError(stage, kind, fmt.Errorf(format, args...))
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause == nil {
		return fmt.Sprintf("%s: %s", e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Kind, e.cause)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Cause returns an abbreviated cause string for user-visible error objects.
func (e *Error) Cause() string {
	if e == nil || e.cause == nil {
		return ""
	}
	return e.cause.Error()
}

// AsError extracts a pipeline Error from an error chain.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

package pipeline

import (
	"time"

	"github.com/google/uuid"

	"horse.fit/voicebridge/internal/audio"
	"horse.fit/voicebridge/internal/language"
)

// State tracks a session's progress through the pipeline.
type State string

const (
	StateReceived    State = "received"
	StateTranscribed State = "transcribed"
	StateTranslated  State = "translated"
	StateSynthesized State = "synthesized"
	StateDelivered   State = "delivered"
	StateFailed      State = "failed"
)

// Session is the transient state of one end-to-end request. It exists for the
// lifetime of a single invocation and is never persisted (the optional ledger
// records only telemetry about it).
type Session struct {
	ID             string
	SourceLanguage string
	TargetLanguage string
	SourceToken    language.Token
	TargetToken    language.Token

	InputPath   string
	Transcript  string
	Translation string
	Artifact    audio.Artifact

	DetectedLanguage   string
	DetectedConfidence float64
	LanguageForced     bool

	State   State
	Failure *Error

	StageLatency map[Stage]time.Duration
	StartedAt    time.Time
	FinishedAt   time.Time
}

func newSession(sourceLanguage, targetLanguage string) *Session {
	return &Session{
		ID:             uuid.NewString(),
		SourceLanguage: sourceLanguage,
		TargetLanguage: targetLanguage,
		State:          StateReceived,
		StageLatency:   make(map[Stage]time.Duration),
		StartedAt:      time.Now().UTC(),
	}
}

func (s *Session) recordLatency(stage Stage, started time.Time) {
	if s.StageLatency == nil {
		s.StageLatency = make(map[Stage]time.Duration)
	}
	s.StageLatency[stage] = time.Since(started)
}

func (s *Session) fail(err *Error) *Error {
	s.State = StateFailed
	s.Failure = err
	s.FinishedAt = time.Now().UTC()
	return err
}

func (s *Session) deliver() {
	s.State = StateDelivered
	s.FinishedAt = time.Now().UTC()
}

package stt

import "context"

// Transcriber converts a WAV file into text via an external speech-to-text
// service. An empty locale asks the service to auto-detect the language.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, locale string) (Result, error)
	Ping(ctx context.Context) error
}

// Result is one transcription outcome. Language and Confidence describe the
// detected (or forced) decoding language; Confidence is 1.0 for a forced
// locale on services that do not report probabilities.
type Result struct {
	Text       string
	Language   string
	Confidence float64
}

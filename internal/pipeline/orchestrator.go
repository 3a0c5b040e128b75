package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/voicebridge/internal/audio"
	"horse.fit/voicebridge/internal/config"
	"horse.fit/voicebridge/internal/langdetect"
	"horse.fit/voicebridge/internal/language"
	"horse.fit/voicebridge/internal/stt"
	"horse.fit/voicebridge/internal/translation"
	"horse.fit/voicebridge/internal/tts"
)

// Ledger records completed sessions. Implementations must tolerate being
// called for both delivered and failed sessions; write failures never fail
// the session itself.
type Ledger interface {
	Record(ctx context.Context, session *Session) error
}

// NopLedger discards session records.
type NopLedger struct{}

func (NopLedger) Record(context.Context, *Session) error { return nil }

// Request is one end-to-end pipeline invocation. AudioPath is the input WAV;
// Text may be set instead to skip transcription.
type Request struct {
	AudioPath      string
	Text           string
	SourceLanguage string
	TargetLanguage string
}

// DetectionPolicy governs what happens when the source language was
// auto-detected with low confidence.
type DetectionPolicy struct {
	Policy        string
	MinConfidence float64
}

// Options wires an Orchestrator. Transcriber, Translator, Synthesizer and
// Resolver are required; the rest default sensibly.
type Options struct {
	Transcriber stt.Transcriber
	Translator  translation.Provider
	Synthesizer tts.Synthesizer
	Resolver    *language.Resolver
	Ledger      Ledger
	Logger      zerolog.Logger
	OutputDir   string
	Detection   DetectionPolicy

	// DetectText overrides the transcript-language detector. Tests use it;
	// the default is the lingua-backed detector.
	DetectText func(string) langdetect.Detection
}

// Orchestrator sequences transcribe, translate and synthesize for one request
// at a time. Model inference is device-bound on the serving side, so a
// width-1 slot serializes executions; concurrent callers queue on it.
type Orchestrator struct {
	transcriber stt.Transcriber
	translator  translation.Provider
	synthesizer tts.Synthesizer
	resolver    *language.Resolver
	ledger      Ledger
	logger      zerolog.Logger
	outputDir   string
	detection   DetectionPolicy
	detectText  func(string) langdetect.Detection

	slot chan struct{}
}

func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.Transcriber == nil {
		return nil, fmt.Errorf("transcriber is required")
	}
	if opts.Translator == nil {
		return nil, fmt.Errorf("translator is required")
	}
	if opts.Synthesizer == nil {
		return nil, fmt.Errorf("synthesizer is required")
	}
	if opts.Resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	ledger := opts.Ledger
	if ledger == nil {
		ledger = NopLedger{}
	}
	detect := opts.DetectText
	if detect == nil {
		detect = langdetect.Detect
	}
	policy := opts.Detection
	if policy.Policy == "" {
		policy.Policy = config.DetectPolicyWarn
	}
	outputDir := strings.TrimSpace(opts.OutputDir)
	if outputDir == "" {
		outputDir = "output"
	}

	o := &Orchestrator{
		transcriber: opts.Transcriber,
		translator:  opts.Translator,
		synthesizer: opts.Synthesizer,
		resolver:    opts.Resolver,
		ledger:      ledger,
		logger:      opts.Logger,
		outputDir:   outputDir,
		detection:   policy,
		detectText:  detect,
		slot:        make(chan struct{}, 1),
	}
	return o, nil
}

// Ping verifies every collaborator responds. Serving must not begin until
// this succeeds; any failure is fatal at startup.
func (o *Orchestrator) Ping(ctx context.Context) error {
	if err := o.transcriber.Ping(ctx); err != nil {
		return NewError(StageStartup, KindStartupFailed, fmt.Errorf("stt: %w", err))
	}
	if err := o.translator.Ping(ctx); err != nil {
		return NewError(StageStartup, KindStartupFailed, fmt.Errorf("translation: %w", err))
	}
	if err := o.synthesizer.Ping(ctx); err != nil {
		return NewError(StageStartup, KindStartupFailed, fmt.Errorf("tts: %w", err))
	}
	return nil
}

// Run executes the full pipeline for one request. The returned session is
// always non-nil and reflects the terminal state; on failure the error is a
// *Error carrying the failed stage and kind.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Session, error) {
	if err := o.acquire(ctx); err != nil {
		return nil, err
	}
	defer o.release()

	session := newSession(foldLang(req.SourceLanguage), foldLang(req.TargetLanguage))
	session.InputPath = req.AudioPath

	if err := o.resolveTarget(session); err != nil {
		return session, o.finish(ctx, session, err)
	}

	if strings.TrimSpace(req.Text) != "" {
		// Text entry point: transcription is skipped entirely.
		session.Transcript = strings.TrimSpace(req.Text)
		session.LanguageForced = true
		if err := o.resolveSource(session); err != nil {
			return session, o.finish(ctx, session, err)
		}
		session.State = StateTranscribed
	} else {
		if strings.TrimSpace(req.AudioPath) == "" {
			return session, o.finish(ctx, session, NewError(StageValidation, KindEmptyInput, errors.New("no audio input")))
		}
		if err := o.transcribe(ctx, session); err != nil {
			return session, o.finish(ctx, session, err)
		}
	}

	if err := o.translate(ctx, session); err != nil {
		return session, o.finish(ctx, session, err)
	}
	if err := o.synthesizeAndDeliver(ctx, session); err != nil {
		return session, o.finish(ctx, session, err)
	}

	session.deliver()
	o.record(ctx, session)
	o.logger.Info().
		Str("session_id", session.ID).
		Str("source", session.SourceLanguage).
		Str("target", session.TargetLanguage).
		Str("artifact", session.Artifact.Path).
		Msg("pipeline delivered")
	return session, nil
}

// RunText translates and synthesizes text directly, skipping transcription.
func (o *Orchestrator) RunText(ctx context.Context, text, sourceLanguage, targetLanguage string) (*Session, error) {
	return o.Run(ctx, Request{
		Text:           text,
		SourceLanguage: sourceLanguage,
		TargetLanguage: targetLanguage,
	})
}

func (o *Orchestrator) acquire(ctx context.Context) error {
	select {
	case o.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		// Even a caller that gave up while queued gets a tagged result.
		return NewError(StageValidation, KindDeliveryFailed, ctx.Err())
	}
}

func (o *Orchestrator) release() {
	<-o.slot
}

func (o *Orchestrator) finish(ctx context.Context, session *Session, err *Error) *Error {
	session.fail(err)
	o.record(ctx, session)
	o.logger.Warn().
		Str("session_id", session.ID).
		Str("stage", string(err.Stage)).
		Str("kind", string(err.Kind)).
		Err(err.Unwrap()).
		Msg("pipeline failed")
	return err
}

func (o *Orchestrator) record(ctx context.Context, session *Session) {
	if err := o.ledger.Record(ctx, session); err != nil {
		o.logger.Error().Err(err).Str("session_id", session.ID).Msg("ledger write failed")
	}
}

func (o *Orchestrator) resolveTarget(session *Session) *Error {
	if strings.TrimSpace(session.TargetLanguage) == "" {
		return Errorf(StageValidation, KindEmptyInput, "target language is required")
	}
	token, err := o.resolver.Resolve(session.TargetLanguage)
	if err != nil {
		return Errorf(StageValidation, KindUnsupportedLanguage, "target language %q is not supported", session.TargetLanguage)
	}
	session.TargetToken = token
	return nil
}

func (o *Orchestrator) resolveSource(session *Session) *Error {
	if strings.TrimSpace(session.SourceLanguage) == "" {
		return nil
	}
	token, err := o.resolver.Resolve(session.SourceLanguage)
	if err != nil {
		return Errorf(StageValidation, KindUnsupportedLanguage, "source language %q is not supported", session.SourceLanguage)
	}
	session.SourceToken = token
	return nil
}

func (o *Orchestrator) transcribe(ctx context.Context, session *Session) *Error {
	if err := o.resolveSource(session); err != nil {
		return err
	}

	locale := ""
	if session.SourceToken.STTLocale != "" {
		locale = session.SourceToken.STTLocale
		session.LanguageForced = true
	}

	started := time.Now()
	result, err := o.transcriber.Transcribe(ctx, session.InputPath, locale)
	session.recordLatency(StageTranscription, started)
	if err != nil {
		return NewError(StageTranscription, KindTranscriptionFailed, err)
	}
	if strings.TrimSpace(result.Text) == "" {
		return Errorf(StageTranscription, KindTranscriptionFailed, "empty transcript")
	}
	session.Transcript = strings.TrimSpace(result.Text)
	session.State = StateTranscribed

	if session.LanguageForced {
		o.logger.Debug().Str("session_id", session.ID).Str("locale", locale).Msg("transcription language forced")
		return nil
	}
	return o.applyDetection(session, result)
}

// applyDetection handles the auto-detected path: log the detection, fall back
// to transcript-based detection when the service reported no probability, and
// apply the configured confidence policy.
func (o *Orchestrator) applyDetection(session *Session, result stt.Result) *Error {
	detectedCode := result.Language
	confidence := result.Confidence
	if detectedCode == "" || confidence == 0 {
		detection := o.detectText(session.Transcript)
		if detectedCode == "" {
			detectedCode = detection.ISO6391
		}
		if confidence == 0 {
			confidence = detection.Confidence
		}
	}
	session.DetectedLanguage = detectedCode
	session.DetectedConfidence = confidence

	o.logger.Info().
		Str("session_id", session.ID).
		Str("detected_language", detectedCode).
		Float64("confidence", confidence).
		Msg("transcription language auto-detected")

	if confidence < o.detection.MinConfidence {
		switch o.detection.Policy {
		case config.DetectPolicyReject:
			return Errorf(StageTranscription, KindTranscriptionFailed,
				"detected language %q below confidence threshold (%.2f < %.2f)", detectedCode, confidence, o.detection.MinConfidence)
		case config.DetectPolicyWarn:
			o.logger.Warn().
				Str("session_id", session.ID).
				Str("detected_language", detectedCode).
				Float64("confidence", confidence).
				Float64("threshold", o.detection.MinConfidence).
				Msg("low-confidence language detection")
		}
	}

	if session.SourceLanguage == "" {
		name, err := o.resolver.NameForSTTLocale(detectedCode)
		if err != nil {
			return Errorf(StageTranscription, KindUnsupportedLanguage, "detected language %q is not supported", detectedCode)
		}
		session.SourceLanguage = name
		return o.resolveSource(session)
	}
	return nil
}

func (o *Orchestrator) translate(ctx context.Context, session *Session) *Error {
	if session.SourceToken.TranslationTag == "" {
		return Errorf(StageTranslation, KindUnsupportedLanguage, "no translation tag for source language %q", session.SourceLanguage)
	}
	if session.TargetToken.TranslationTag == "" {
		return Errorf(StageTranslation, KindUnsupportedLanguage, "no translation tag for target language %q", session.TargetLanguage)
	}

	started := time.Now()
	resp, err := o.translator.Translate(ctx, translation.TranslateRequest{
		Text:       session.Transcript,
		SourceName: session.SourceLanguage,
		TargetName: session.TargetLanguage,
		SourceTag:  session.SourceToken.TranslationTag,
		TargetTag:  session.TargetToken.TranslationTag,
	})
	session.recordLatency(StageTranslation, started)
	if err != nil {
		return NewError(StageTranslation, KindTranslationFailed, err)
	}
	if resp == nil || strings.TrimSpace(resp.Text) == "" {
		return Errorf(StageTranslation, KindTranslationFailed, "empty translation")
	}
	session.Translation = strings.TrimSpace(resp.Text)
	session.State = StateTranslated
	return nil
}

func (o *Orchestrator) synthesizeAndDeliver(ctx context.Context, session *Session) *Error {
	if session.TargetToken.TTSVoice == "" {
		return Errorf(StageSynthesis, KindUnsupportedLanguage, "no voice for target language %q", session.TargetLanguage)
	}

	started := time.Now()
	speech, err := o.synthesizer.Synthesize(ctx, session.Translation, session.TargetToken.TTSVoice)
	session.recordLatency(StageSynthesis, started)
	if err != nil {
		return NewError(StageSynthesis, KindSynthesisFailed, err)
	}
	if speech.Empty() {
		return Errorf(StageSynthesis, KindSynthesisFailed, "synthesis produced no audio")
	}
	session.State = StateSynthesized

	clip := audio.Clip{Samples: speech.Samples, SampleRate: speech.SampleRate}
	if clip.SampleRate != audio.ContractSampleRate {
		clip, err = audio.Resample(clip, audio.ContractSampleRate)
		if err != nil {
			return NewError(StageDelivery, KindDeliveryFailed, err)
		}
	}

	deliveryStarted := time.Now()
	artifact, err := audio.NewArtifact(o.outputDir, "out")
	if err != nil {
		session.recordLatency(StageDelivery, deliveryStarted)
		return NewError(StageDelivery, KindDeliveryFailed, err)
	}
	if err := artifact.WriteClip(clip); err != nil {
		session.recordLatency(StageDelivery, deliveryStarted)
		return NewError(StageDelivery, KindDeliveryFailed, err)
	}
	session.recordLatency(StageDelivery, deliveryStarted)
	session.Artifact = artifact
	return nil
}

func foldLang(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"horse.fit/voicebridge/internal/config"
	"horse.fit/voicebridge/internal/langdetect"
	"horse.fit/voicebridge/internal/language"
	"horse.fit/voicebridge/internal/stt"
	"horse.fit/voicebridge/internal/translation"
	"horse.fit/voicebridge/internal/tts"
)

type stubTranscriber struct {
	result stt.Result
	err    error
	calls  int
}

func (s *stubTranscriber) Transcribe(_ context.Context, _ string, _ string) (stt.Result, error) {
	s.calls++
	return s.result, s.err
}

func (s *stubTranscriber) Ping(context.Context) error { return nil }

type stubTranslator struct {
	text  string
	err   error
	calls int
	last  translation.TranslateRequest
}

func (s *stubTranslator) Translate(_ context.Context, req translation.TranslateRequest) (*translation.TranslateResponse, error) {
	s.calls++
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	return &translation.TranslateResponse{
		Text:         s.text,
		SourceTag:    req.SourceTag,
		TargetTag:    req.TargetTag,
		ProviderName: "stub",
	}, nil
}

func (s *stubTranslator) Name() string               { return "stub" }
func (s *stubTranslator) Ping(context.Context) error { return nil }

type stubSynthesizer struct {
	speech tts.Speech
	err    error
	calls  int
}

func (s *stubSynthesizer) Synthesize(_ context.Context, _ string, _ string) (tts.Speech, error) {
	s.calls++
	return s.speech, s.err
}

func (s *stubSynthesizer) Ping(context.Context) error { return nil }

type recordingLedger struct {
	sessions []*Session
}

func (l *recordingLedger) Record(_ context.Context, session *Session) error {
	l.sessions = append(l.sessions, session)
	return nil
}

func testResolver(t *testing.T) *language.Resolver {
	t.Helper()
	dir := t.TempDir()
	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		return path
	}
	resolver, err := language.NewResolver(language.TablePaths{
		STT:         write("stt.csv", "Language,Code\nEnglish,en\nJapanese,ja\n"),
		Translation: write("translation.csv", "Language,Code\nEnglish,eng_Latn\nJapanese,jpn_Jpan\n"),
		TTS:         write("tts.csv", "Language,Code\nEnglish,af_bella\nJapanese,jf_alpha\n"),
	})
	if err != nil {
		t.Fatalf("build resolver: %v", err)
	}
	return resolver
}

type fixture struct {
	orchestrator *Orchestrator
	transcriber  *stubTranscriber
	translator   *stubTranslator
	synthesizer  *stubSynthesizer
	ledger       *recordingLedger
}

func newFixture(t *testing.T, mutate func(*Options)) *fixture {
	t.Helper()
	f := &fixture{
		transcriber: &stubTranscriber{result: stt.Result{Text: "hello", Language: "en", Confidence: 0.98}},
		translator:  &stubTranslator{text: "こんにちは"},
		synthesizer: &stubSynthesizer{speech: tts.Speech{Samples: make([]int16, 2400), SampleRate: 24000}},
		ledger:      &recordingLedger{},
	}
	opts := Options{
		Transcriber: f.transcriber,
		Translator:  f.translator,
		Synthesizer: f.synthesizer,
		Resolver:    testResolver(t),
		Ledger:      f.ledger,
		Logger:      zerolog.Nop(),
		OutputDir:   t.TempDir(),
		Detection:   DetectionPolicy{Policy: config.DetectPolicyWarn, MinConfidence: 0.4},
		DetectText:  func(string) langdetect.Detection { return langdetect.Detection{ISO6391: "en", Confidence: 0.9} },
	}
	if mutate != nil {
		mutate(&opts)
	}
	orchestrator, err := NewOrchestrator(opts)
	if err != nil {
		t.Fatalf("build orchestrator: %v", err)
	}
	f.orchestrator = orchestrator
	return f
}

func inputWAV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.wav")
	if err := os.WriteFile(path, []byte("RIFFfakeWAVEdata"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	return path
}

func TestRunEndToEnd(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	session, err := f.orchestrator.Run(context.Background(), Request{
		AudioPath:      inputWAV(t),
		SourceLanguage: "English",
		TargetLanguage: "Japanese",
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if session.State != StateDelivered {
		t.Fatalf("state = %s, want %s", session.State, StateDelivered)
	}
	if session.Transcript != "hello" || session.Translation != "こんにちは" {
		t.Fatalf("unexpected payloads: %q / %q", session.Transcript, session.Translation)
	}
	if !session.Artifact.Exists() {
		t.Fatal("delivered artifact missing on disk")
	}
	info, statErr := os.Stat(session.Artifact.Path)
	if statErr != nil || info.Size() == 0 {
		t.Fatalf("artifact empty or unreadable: %v", statErr)
	}
	if f.translator.last.SourceTag != "eng_Latn" || f.translator.last.TargetTag != "jpn_Jpan" {
		t.Fatalf("resolved tags not passed through: %+v", f.translator.last)
	}
	if len(f.ledger.sessions) != 1 || f.ledger.sessions[0].State != StateDelivered {
		t.Fatal("ledger did not record the delivered session")
	}
}

func TestRunEmptyTranscriptHaltsBeforeTranslation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.transcriber.result = stt.Result{Text: "   "}

	session, err := f.orchestrator.Run(context.Background(), Request{
		AudioPath:      inputWAV(t),
		SourceLanguage: "english",
		TargetLanguage: "japanese",
	})
	pe, ok := AsError(err)
	if !ok {
		t.Fatalf("expected pipeline error, got %v", err)
	}
	if pe.Kind != KindTranscriptionFailed || pe.Stage != StageTranscription {
		t.Fatalf("unexpected classification: %+v", pe)
	}
	if f.translator.calls != 0 {
		t.Fatal("translator must not run after a failed transcription")
	}
	if f.synthesizer.calls != 0 {
		t.Fatal("synthesizer must not run after a failed transcription")
	}
	if session.State != StateFailed {
		t.Fatalf("state = %s, want %s", session.State, StateFailed)
	}
}

func TestRunUnsupportedTargetLanguage(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	_, err := f.orchestrator.Run(context.Background(), Request{
		AudioPath:      inputWAV(t),
		SourceLanguage: "english",
		TargetLanguage: "klingon",
	})
	pe, ok := AsError(err)
	if !ok || pe.Kind != KindUnsupportedLanguage {
		t.Fatalf("expected UnsupportedLanguage, got %v", err)
	}
	if f.transcriber.calls != 0 {
		t.Fatal("no collaborator may run for an unsupported language")
	}
}

func TestRunAutoDetectAdoptsDetectedLanguage(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.transcriber.result = stt.Result{Text: "hello", Language: "en", Confidence: 0.91}

	session, err := f.orchestrator.Run(context.Background(), Request{
		AudioPath:      inputWAV(t),
		TargetLanguage: "japanese",
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if session.SourceLanguage != "english" {
		t.Fatalf("detected source not adopted: %q", session.SourceLanguage)
	}
	if session.DetectedLanguage != "en" || session.DetectedConfidence != 0.91 {
		t.Fatalf("detection not recorded: %+v", session)
	}
}

func TestRunRejectPolicyFailsLowConfidence(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(opts *Options) {
		opts.Detection = DetectionPolicy{Policy: config.DetectPolicyReject, MinConfidence: 0.8}
	})
	f.transcriber.result = stt.Result{Text: "mumble", Language: "en", Confidence: 0.2}

	_, err := f.orchestrator.Run(context.Background(), Request{
		AudioPath:      inputWAV(t),
		TargetLanguage: "japanese",
	})
	pe, ok := AsError(err)
	if !ok || pe.Kind != KindTranscriptionFailed {
		t.Fatalf("expected rejection, got %v", err)
	}
	if f.translator.calls != 0 {
		t.Fatal("translator must not run after a rejected detection")
	}
}

func TestRunWarnPolicyContinues(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(opts *Options) {
		opts.Detection = DetectionPolicy{Policy: config.DetectPolicyWarn, MinConfidence: 0.8}
	})
	f.transcriber.result = stt.Result{Text: "hello", Language: "en", Confidence: 0.2}

	session, err := f.orchestrator.Run(context.Background(), Request{
		AudioPath:      inputWAV(t),
		TargetLanguage: "japanese",
	})
	if err != nil {
		t.Fatalf("warn policy should not fail the run: %v", err)
	}
	if session.State != StateDelivered {
		t.Fatalf("state = %s", session.State)
	}
}

func TestRunSynthesisFailureClassified(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.synthesizer.err = errors.New("voice file corrupt")

	_, err := f.orchestrator.Run(context.Background(), Request{
		AudioPath:      inputWAV(t),
		SourceLanguage: "english",
		TargetLanguage: "japanese",
	})
	pe, ok := AsError(err)
	if !ok || pe.Kind != KindSynthesisFailed || pe.Stage != StageSynthesis {
		t.Fatalf("unexpected classification: %v", err)
	}
	if len(f.ledger.sessions) != 1 || f.ledger.sessions[0].State != StateFailed {
		t.Fatal("ledger did not record the failed session")
	}
}

func TestRunTextRoundTrip(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)

	forward, err := f.orchestrator.RunText(context.Background(), "hello", "english", "japanese")
	if err != nil {
		t.Fatalf("english to japanese: %v", err)
	}
	if f.transcriber.calls != 0 {
		t.Fatal("text entry point must skip transcription")
	}

	f.translator.text = "hello again"
	back, err := f.orchestrator.RunText(context.Background(), forward.Translation, "japanese", "english")
	if err != nil {
		t.Fatalf("japanese back to english: %v", err)
	}
	if back.State != StateDelivered {
		t.Fatalf("round trip did not deliver: %s", back.State)
	}
}

func TestRunEmptyRequest(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	_, err := f.orchestrator.Run(context.Background(), Request{TargetLanguage: "japanese"})
	pe, ok := AsError(err)
	if !ok || pe.Kind != KindEmptyInput {
		t.Fatalf("expected EmptyInput, got %v", err)
	}
}

func TestRunResamplesToContractRate(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	session, err := f.orchestrator.Run(context.Background(), Request{
		AudioPath:      inputWAV(t),
		SourceLanguage: "english",
		TargetLanguage: "japanese",
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	file, err := os.Open(session.Artifact.Path)
	if err != nil {
		t.Fatalf("open artifact: %v", err)
	}
	defer file.Close()
	header := make([]byte, 28)
	if _, err := file.Read(header); err != nil {
		t.Fatalf("read header: %v", err)
	}
	rate := int(header[24]) | int(header[25])<<8 | int(header[26])<<16 | int(header[27])<<24
	if rate != 16000 {
		t.Fatalf("delivered rate %d, want 16000", rate)
	}
}

func TestRunQueuedCallerCancellation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	// Occupy the single execution slot so the caller has to queue.
	f.orchestrator.slot <- struct{}{}
	defer func() { <-f.orchestrator.slot }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	session, err := f.orchestrator.Run(ctx, Request{Text: "hello", SourceLanguage: "english", TargetLanguage: "japanese"})
	if session != nil {
		t.Fatalf("expected no session for a cancelled queued caller, got %+v", session)
	}
	pe, ok := AsError(err)
	if !ok {
		t.Fatalf("expected a tagged error, got %v", err)
	}
	if pe.Stage != StageValidation || pe.Kind != KindDeliveryFailed {
		t.Fatalf("unexpected classification: %s/%s", pe.Stage, pe.Kind)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("cancellation cause not preserved: %v", err)
	}
	if f.translator.calls != 0 {
		t.Fatal("no collaborator may run for a cancelled queued caller")
	}
}

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"horse.fit/voicebridge/internal/langdetect"
	"horse.fit/voicebridge/internal/language"
	"horse.fit/voicebridge/internal/pipeline"
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
	text string
	err  error
}

func (s *stubTranslator) Translate(_ context.Context, req translation.TranslateRequest) (*translation.TranslateResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &translation.TranslateResponse{Text: s.text, SourceTag: req.SourceTag, TargetTag: req.TargetTag}, nil
}

func (s *stubTranslator) Name() string               { return "stub" }
func (s *stubTranslator) Ping(context.Context) error { return nil }

type stubSynthesizer struct {
	speech tts.Speech
	err    error
}

func (s *stubSynthesizer) Synthesize(context.Context, string, string) (tts.Speech, error) {
	return s.speech, s.err
}

func (s *stubSynthesizer) Ping(context.Context) error { return nil }

type serverFixture struct {
	server      *Server
	transcriber *stubTranscriber
	synthesizer *stubSynthesizer
	workDir     string
}

func newTestResolver(t *testing.T) *language.Resolver {
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

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	f := &serverFixture{
		transcriber: &stubTranscriber{result: stt.Result{Text: "hello", Language: "en", Confidence: 0.95}},
		synthesizer: &stubSynthesizer{speech: tts.Speech{Samples: make([]int16, 1600), SampleRate: 16000}},
		workDir:     t.TempDir(),
	}
	resolver := newTestResolver(t)
	orchestrator, err := pipeline.NewOrchestrator(pipeline.Options{
		Transcriber: f.transcriber,
		Translator:  &stubTranslator{text: "こんにちは"},
		Synthesizer: f.synthesizer,
		Resolver:    resolver,
		Logger:      zerolog.Nop(),
		OutputDir:   t.TempDir(),
		DetectText:  func(string) langdetect.Detection { return langdetect.Detection{ISO6391: "en", Confidence: 0.9} },
	})
	if err != nil {
		t.Fatalf("build orchestrator: %v", err)
	}
	f.server = NewServer(orchestrator, resolver, zerolog.Nop(), f.workDir, Options{})
	return f
}

func (f *serverFixture) tempInputs(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(f.workDir)
	if err != nil {
		t.Fatalf("read work dir: %v", err)
	}
	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

func TestUploadEmptyBody(t *testing.T) {
	t.Parallel()

	f := newServerFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/upload?SourceLanguage=english&OutputLanguage=japanese", nil)
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", rec.Code)
	}
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if resp.Status != "error" || !strings.Contains(resp.Message, "no data received") {
		t.Fatalf("unexpected error body: %+v", resp)
	}
	if f.transcriber.calls != 0 {
		t.Fatal("no collaborator may run for an empty body")
	}
}

func TestUploadRawPCMSuccess(t *testing.T) {
	t.Parallel()

	f := newServerFixture(t)
	pcm := make([]byte, 3200)
	req := httptest.NewRequest(http.MethodPost, "/upload?SourceLanguage=english&OutputLanguage=japanese", bytes.NewReader(pcm))
	req.Header.Set(echo.HeaderContentType, "application/octet-stream")
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "audio/wav" {
		t.Fatalf("content type %q", ct)
	}
	if rec.Body.Len() == 0 {
		t.Fatal("empty audio response")
	}
	if rec.Header().Get("X-Session-ID") == "" {
		t.Fatal("missing session id header")
	}
	if inputs := f.tempInputs(t); len(inputs) != 0 {
		t.Fatalf("temp input not cleaned up: %v", inputs)
	}
}

func TestUploadMultipart(t *testing.T) {
	t.Parallel()

	f := newServerFixture(t)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "utterance.wav")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	part.Write([]byte("RIFFfakeWAVEdata"))
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/upload?SourceLanguage=english&OutputLanguage=japanese", &body)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}
	if inputs := f.tempInputs(t); len(inputs) != 0 {
		t.Fatalf("temp input not cleaned up: %v", inputs)
	}
}

func TestUploadUnsupportedLanguage(t *testing.T) {
	t.Parallel()

	f := newServerFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/upload?SourceLanguage=english&OutputLanguage=klingon", bytes.NewReader(make([]byte, 320)))
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status %d, want 422", rec.Code)
	}
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if resp.Stage != string(pipeline.StageValidation) {
		t.Fatalf("unexpected stage %q", resp.Stage)
	}
}

func TestUploadFailureStillCleansTempInput(t *testing.T) {
	t.Parallel()

	f := newServerFixture(t)
	f.synthesizer.err = errors.New("voice profile missing")

	req := httptest.NewRequest(http.MethodPost, "/upload?SourceLanguage=english&OutputLanguage=japanese", bytes.NewReader(make([]byte, 320)))
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status %d, want 502", rec.Code)
	}
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if resp.Stage != string(pipeline.StageSynthesis) {
		t.Fatalf("unexpected stage %q", resp.Stage)
	}
	if inputs := f.tempInputs(t); len(inputs) != 0 {
		t.Fatalf("temp input not cleaned up after failure: %v", inputs)
	}
}

func TestLanguagesEndpoint(t *testing.T) {
	t.Parallel()

	f := newServerFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/languages", nil)
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var resp struct {
		Languages []languageEntry `json:"languages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Languages) != 2 {
		t.Fatalf("unexpected languages: %+v", resp.Languages)
	}
	for _, entry := range resp.Languages {
		if !entry.Transcribe || !entry.Translate || !entry.Synthesize {
			t.Fatalf("expected full coverage: %+v", entry)
		}
	}
}

func TestUploadPersistFailureIsDeliveryStage(t *testing.T) {
	t.Parallel()

	f := newServerFixture(t)
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	// A work dir nested under a regular file cannot be created.
	f.server.workDir = filepath.Join(blocker, "work")

	req := httptest.NewRequest(http.MethodPost, "/upload?SourceLanguage=english&OutputLanguage=japanese", bytes.NewReader(make([]byte, 320)))
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status %d, want 500", rec.Code)
	}
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if resp.Stage != string(pipeline.StageDelivery) {
		t.Fatalf("unexpected stage %q, want delivery", resp.Stage)
	}
	if f.transcriber.calls != 0 {
		t.Fatal("no collaborator may run when the input cannot be persisted")
	}
}

package httpapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"horse.fit/voicebridge/internal/audio"
	"horse.fit/voicebridge/internal/language"
	"horse.fit/voicebridge/internal/pipeline"
)

// maxUploadBytes caps one utterance upload. Thirty seconds of 16 kHz PCM16 is
// under 1 MiB; 16 MiB leaves generous headroom for container overhead.
const maxUploadBytes = 16 << 20

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type Server struct {
	orchestrator *pipeline.Orchestrator
	resolver     *language.Resolver
	logger       zerolog.Logger
	workDir      string
	opts         Options
}

type errorResponse struct {
	Status  string `json:"status"`
	Stage   string `json:"stage,omitempty"`
	Message string `json:"message"`
}

type languageEntry struct {
	Name       string `json:"name"`
	Transcribe bool   `json:"transcribe"`
	Translate  bool   `json:"translate"`
	Synthesize bool   `json:"synthesize"`
}

func NewServer(orchestrator *pipeline.Orchestrator, resolver *language.Resolver, logger zerolog.Logger, workDir string, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := opts.Port
	if port <= 0 {
		port = 8080
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 30 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 120 * time.Second
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	if strings.TrimSpace(workDir) == "" {
		workDir = os.TempDir()
	}

	return &Server{
		orchestrator: orchestrator,
		resolver:     resolver,
		logger:       logger,
		workDir:      workDir,
		opts: Options{
			Host:            host,
			Port:            port,
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
		},
	}
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.orchestrator == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := s.Router()

	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("voicebridge server started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("voicebridge server stopped")
	return nil
}

// Router builds the echo instance. Exposed separately so tests can exercise
// handlers without binding a listener.
func (s *Server) Router() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(fmt.Sprintf("%d", maxUploadBytes)))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("remote_ip", v.RemoteIP).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	e.POST("/upload", s.handleUpload)
	e.GET("/ws/stream", s.handleStream)

	api := e.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.GET("/languages", s.handleLanguages)

	return e
}

func (s *Server) handleUpload(c echo.Context) error {
	sourceLanguage := strings.TrimSpace(c.QueryParam("SourceLanguage"))
	targetLanguage := strings.TrimSpace(c.QueryParam("OutputLanguage"))

	body, err := s.readUploadBody(c)
	if err != nil {
		return s.writeError(c, pipeline.NewError(pipeline.StageValidation, pipeline.KindEmptyInput, err))
	}
	if len(body) == 0 {
		// Rejected before any collaborator is touched.
		return s.writeError(c, pipeline.Errorf(pipeline.StageValidation, pipeline.KindEmptyInput, "no data received"))
	}

	input, err := s.persistInput(body)
	if err != nil {
		return s.writeError(c, pipeline.NewError(pipeline.StageDelivery, pipeline.KindDeliveryFailed, err))
	}
	// The endpoint created the temp input file, so it removes it on every
	// exit path.
	defer func() {
		if removeErr := input.Remove(); removeErr != nil {
			s.logger.Error().Err(removeErr).Str("path", input.Path).Msg("temp input cleanup failed")
		}
	}()

	session, runErr := s.orchestrator.Run(c.Request().Context(), pipeline.Request{
		AudioPath:      input.Path,
		SourceLanguage: sourceLanguage,
		TargetLanguage: targetLanguage,
	})
	if runErr != nil {
		return s.writeError(c, runErr)
	}

	wav, err := os.ReadFile(session.Artifact.Path)
	if err != nil {
		return s.writeError(c, pipeline.NewError(pipeline.StageDelivery, pipeline.KindDeliveryFailed, err))
	}
	c.Response().Header().Set("X-Session-ID", session.ID)
	return c.Blob(http.StatusOK, "audio/wav", wav)
}

// readUploadBody accepts either a multipart file upload or a raw binary body.
func (s *Server) readUploadBody(c echo.Context) ([]byte, error) {
	contentType := c.Request().Header.Get(echo.HeaderContentType)
	if strings.HasPrefix(contentType, echo.MIMEMultipartForm) {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			return nil, fmt.Errorf("multipart upload missing file part")
		}
		f, err := fileHeader.Open()
		if err != nil {
			return nil, fmt.Errorf("open uploaded file: %w", err)
		}
		defer f.Close()
		return io.ReadAll(io.LimitReader(f, maxUploadBytes))
	}
	return io.ReadAll(io.LimitReader(c.Request().Body, maxUploadBytes))
}

// persistInput writes client bytes to a temp WAV. Raw PCM is wrapped in a
// container at the 16 kHz mono contract; an already-encoded WAV is stored
// unchanged.
func (s *Server) persistInput(body []byte) (audio.Artifact, error) {
	wav := body
	if !bytes.HasPrefix(body, []byte("RIFF")) {
		var err error
		wav, err = audio.WrapPCM(body, audio.ContractSampleRate, 1)
		if err != nil {
			return audio.Artifact{}, fmt.Errorf("wrap raw PCM: %w", err)
		}
	}

	input, err := audio.NewArtifact(s.workDir, "in")
	if err != nil {
		return audio.Artifact{}, err
	}
	if err := input.WriteBytes(wav); err != nil {
		input.Remove()
		return audio.Artifact{}, fmt.Errorf("persist input audio: %w", err)
	}
	return input, nil
}

func (s *Server) handleHealth(c echo.Context) error {
	pingCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	status := "ok"
	collaborators := "ok"
	if err := s.orchestrator.Ping(pingCtx); err != nil {
		status = "degraded"
		collaborators = err.Error()
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status":        status,
		"collaborators": collaborators,
	})
}

func (s *Server) handleLanguages(c echo.Context) error {
	tokens := s.resolver.Tokens()
	entries := make([]languageEntry, 0, len(tokens))
	for _, token := range tokens {
		entries = append(entries, languageEntry{
			Name:       token.Name,
			Transcribe: token.STTLocale != "",
			Translate:  token.TranslationTag != "",
			Synthesize: token.TTSVoice != "",
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"languages": entries})
}

// writeError maps a pipeline failure to the structured JSON error contract.
// Clients never see a raw stack trace.
func (s *Server) writeError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	resp := errorResponse{Status: "error", Message: "internal error"}

	if pe, ok := pipeline.AsError(err); ok {
		resp.Stage = string(pe.Stage)
		resp.Message = pe.Cause()
		if resp.Message == "" {
			resp.Message = string(pe.Kind)
		}
		status = statusForKind(pe.Kind)
	} else if err != nil {
		resp.Message = err.Error()
	}

	return c.JSON(status, resp)
}

func statusForKind(kind pipeline.Kind) int {
	switch kind {
	case pipeline.KindEmptyInput:
		return http.StatusBadRequest
	case pipeline.KindUnsupportedLanguage:
		return http.StatusUnprocessableEntity
	case pipeline.KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case pipeline.KindTranscriptionFailed, pipeline.KindTranslationFailed, pipeline.KindSynthesisFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "internal error"
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		case error:
			message = v.Error()
		}
	}

	if jsonErr := c.JSON(status, errorResponse{Status: "error", Message: message}); jsonErr != nil {
		s.logger.Error().Err(jsonErr).Msg("write error response failed")
	}
}

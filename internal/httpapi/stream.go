package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"horse.fit/voicebridge/internal/pipeline"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  32 << 10,
	WriteBufferSize: 32 << 10,
	// The device client runs on a different origin than the service.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleStream ingests raw PCM over a websocket. Binary messages append
// audio; the text message "end" (or a clean close) finalizes the utterance,
// runs the pipeline, and the synthesized WAV comes back as one binary
// message. Failures are reported as the JSON error object.
func (s *Server) handleStream(c echo.Context) error {
	sourceLanguage := strings.TrimSpace(c.QueryParam("SourceLanguage"))
	targetLanguage := strings.TrimSpace(c.QueryParam("OutputLanguage"))

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	var pcm bytes.Buffer
	for {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				break
			}
			s.logger.Debug().Err(err).Msg("stream read ended")
			return nil
		}
		if messageType == websocket.BinaryMessage {
			if pcm.Len()+len(message) > maxUploadBytes {
				s.streamError(conn, pipeline.Errorf(pipeline.StageValidation, pipeline.KindPayloadTooLarge, "stream exceeds upload limit"))
				return nil
			}
			pcm.Write(message)
			continue
		}
		if messageType == websocket.TextMessage && strings.EqualFold(strings.TrimSpace(string(message)), "end") {
			break
		}
	}

	if pcm.Len() == 0 {
		s.streamError(conn, pipeline.Errorf(pipeline.StageValidation, pipeline.KindEmptyInput, "no data received"))
		return nil
	}

	input, err := s.persistInput(pcm.Bytes())
	if err != nil {
		s.streamError(conn, pipeline.NewError(pipeline.StageDelivery, pipeline.KindDeliveryFailed, err))
		return nil
	}
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
		s.streamError(conn, runErr)
		return nil
	}

	wav, err := os.ReadFile(session.Artifact.Path)
	if err != nil {
		s.streamError(conn, pipeline.NewError(pipeline.StageDelivery, pipeline.KindDeliveryFailed, err))
		return nil
	}

	conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
	if err := conn.WriteMessage(websocket.BinaryMessage, wav); err != nil {
		s.logger.Error().Err(err).Str("session_id", session.ID).Msg("stream delivery failed")
	}
	return nil
}

func (s *Server) streamError(conn *websocket.Conn, err error) {
	resp := errorResponse{Status: "error", Message: "internal error"}
	if pe, ok := pipeline.AsError(err); ok {
		resp.Stage = string(pe.Stage)
		resp.Message = pe.Cause()
		if resp.Message == "" {
			resp.Message = string(pe.Kind)
		}
	} else if err != nil {
		resp.Message = err.Error()
	}

	payload, marshalErr := json.Marshal(resp)
	if marshalErr != nil {
		return
	}
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if writeErr := conn.WriteMessage(websocket.TextMessage, payload); writeErr != nil {
		s.logger.Debug().Err(writeErr).Msg("stream error write failed")
	}
}

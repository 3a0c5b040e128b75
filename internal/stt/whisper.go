package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultBeamSize matches the decoding breadth the serving side was tuned with.
const DefaultBeamSize = 5

// Client calls a whisper-server style HTTP endpoint: multipart POST /inference
// with the audio file, returning the transcript and the detected language.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(endpoint string) *Client {
	return &Client{
		baseURL: normalizeEndpoint(endpoint),
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

func (c *Client) Transcribe(ctx context.Context, audioPath, locale string) (Result, error) {
	if c == nil {
		return Result{}, fmt.Errorf("stt client is nil")
	}

	f, err := os.Open(audioPath)
	if err != nil {
		return Result{}, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return Result{}, fmt.Errorf("build multipart body: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return Result{}, fmt.Errorf("copy audio into request: %w", err)
	}
	fields := map[string]string{
		"response_format": "json",
		"beam_size":       fmt.Sprintf("%d", DefaultBeamSize),
	}
	if trimmed := strings.TrimSpace(locale); trimmed != "" {
		// Forcing a decoding language skips service-side detection.
		fields["language"] = trimmed
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return Result{}, fmt.Errorf("write field %s: %w", key, err)
		}
	}
	if err := writer.Close(); err != nil {
		return Result{}, fmt.Errorf("finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/inference", &body)
	if err != nil {
		return Result{}, fmt.Errorf("build transcription request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("send transcription request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read transcription response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("transcription endpoint status %d: %s", resp.StatusCode, excerpt(respBody))
	}

	var parsed inferenceResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return Result{}, fmt.Errorf("decode transcription response: %w", err)
	}

	result := Result{
		Text:       strings.TrimSpace(parsed.Text),
		Language:   strings.ToLower(strings.TrimSpace(parsed.Language)),
		Confidence: parsed.LanguageProbability,
	}
	if strings.TrimSpace(locale) != "" && result.Confidence == 0 {
		result.Confidence = 1.0
	}
	return result, nil
}

// Ping verifies the service is up. Used for eager startup checks.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil {
		return fmt.Errorf("stt client is nil")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build stt health request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("stt service unreachable: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("stt health status %d", resp.StatusCode)
	}
	return nil
}

type inferenceResponse struct {
	Text                string  `json:"text"`
	Language            string  `json:"language"`
	LanguageProbability float64 `json:"language_probability"`
}

func excerpt(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200] + "..."
	}
	return text
}

func normalizeEndpoint(raw string) string {
	endpoint := strings.TrimSpace(raw)
	if endpoint == "" {
		return "http://127.0.0.1:8771"
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	parsed, err := url.Parse(endpoint)
	if err != nil || strings.TrimSpace(parsed.Host) == "" {
		return "http://127.0.0.1:8771"
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/")
	return parsed.String()
}

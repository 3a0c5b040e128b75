package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultNativeRate is the sample rate kokoro-style models generate at.
// Delivery resamples to the 16 kHz contract; this is only a fallback when the
// service omits the rate from its response.
const DefaultNativeRate = 24000

// Client calls a kokoro-server style HTTP endpoint: POST /synthesize with
// text and a voice key; the response carries base64 PCM16 segments.
type Client struct {
	baseURL string
	voices  *Voices
	client  *http.Client
}

// NewClient builds a synthesis client. voices may be nil when no local
// manifest is configured; voice keys are then passed through unchecked.
func NewClient(endpoint string, voices *Voices) *Client {
	return &Client{
		baseURL: normalizeEndpoint(endpoint),
		voices:  voices,
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

func (c *Client) Synthesize(ctx context.Context, text, voice string) (Speech, error) {
	if c == nil {
		return Speech{}, fmt.Errorf("tts client is nil")
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Speech{}, fmt.Errorf("text is required")
	}
	voiceKey := strings.TrimSpace(voice)
	if voiceKey == "" {
		return Speech{}, fmt.Errorf("voice is required")
	}
	if c.voices != nil {
		if err := c.voices.Check(voiceKey); err != nil {
			return Speech{}, err
		}
	}

	body, err := json.Marshal(synthesizeRequest{
		Text:  trimmed,
		Voice: voiceKey,
		Speed: 1.0,
	})
	if err != nil {
		return Speech{}, fmt.Errorf("marshal synthesis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/synthesize", bytes.NewReader(body))
	if err != nil {
		return Speech{}, fmt.Errorf("build synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Speech{}, fmt.Errorf("send synthesis request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Speech{}, fmt.Errorf("read synthesis response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Speech{}, fmt.Errorf("synthesis endpoint status %d: %s", resp.StatusCode, excerpt(respBody))
	}

	var parsed synthesizeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return Speech{}, fmt.Errorf("decode synthesis response: %w", err)
	}
	if len(parsed.Segments) == 0 {
		// An utterance that produced nothing is a failure, not silence.
		return Speech{}, fmt.Errorf("synthesis yielded no audio segments")
	}

	rate := parsed.SampleRate
	if rate <= 0 {
		rate = DefaultNativeRate
	}

	var samples []int16
	for i, segment := range parsed.Segments {
		pcm, err := base64.StdEncoding.DecodeString(segment)
		if err != nil {
			return Speech{}, fmt.Errorf("decode audio segment %d: %w", i, err)
		}
		if len(pcm)%2 != 0 {
			pcm = pcm[:len(pcm)-1]
		}
		for off := 0; off+1 < len(pcm); off += 2 {
			samples = append(samples, int16(binary.LittleEndian.Uint16(pcm[off:])))
		}
	}
	if len(samples) == 0 {
		return Speech{}, fmt.Errorf("synthesis segments decoded to no samples")
	}

	return Speech{Samples: samples, SampleRate: rate}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	if c == nil {
		return fmt.Errorf("tts client is nil")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build tts health request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("tts service unreachable: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("tts health status %d", resp.StatusCode)
	}
	return nil
}

type synthesizeRequest struct {
	Text  string  `json:"text"`
	Voice string  `json:"voice"`
	Speed float64 `json:"speed"`
}

type synthesizeResponse struct {
	SampleRate int      `json:"sample_rate"`
	Segments   []string `json:"segments"`
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
		return "http://127.0.0.1:8880"
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	parsed, err := url.Parse(endpoint)
	if err != nil || strings.TrimSpace(parsed.Host) == "" {
		return "http://127.0.0.1:8880"
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/")
	return parsed.String()
}

package translation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Fixed decoding defaults. Tunable in principle, but the serving side was
// calibrated against these values.
const (
	nllbBeamSize          = 5
	nllbRepetitionPenalty = 1.2
	nllbMaxLength         = 256
)

// NLLBProvider calls an NLLB-style serving endpoint. The model emits the
// target-language marker token at the head of its output; the provider strips
// it before returning.
type NLLBProvider struct {
	endpointURL string
	client      *http.Client
}

func NewNLLBProvider(endpoint string) *NLLBProvider {
	return &NLLBProvider{
		endpointURL: normalizeEndpoint(endpoint),
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

func (p *NLLBProvider) Name() string {
	return "nllb"
}

func (p *NLLBProvider) Translate(ctx context.Context, req TranslateRequest) (*TranslateResponse, error) {
	if p == nil {
		return nil, fmt.Errorf("nllb provider is nil")
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, fmt.Errorf("text is required")
	}
	sourceTag := strings.TrimSpace(req.SourceTag)
	targetTag := strings.TrimSpace(req.TargetTag)
	if sourceTag == "" {
		return nil, fmt.Errorf("source language tag is required")
	}
	if targetTag == "" {
		return nil, fmt.Errorf("target language tag is required")
	}

	body, err := json.Marshal(nllbRequest{
		Text:              text,
		SourceLang:        sourceTag,
		TargetLang:        targetTag,
		BeamSize:          nllbBeamSize,
		RepetitionPenalty: nllbRepetitionPenalty,
		MaxLength:         nllbMaxLength,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal translation request: %w", err)
	}

	started := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpointURL+"/translate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build translation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send translation request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read translation response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("translation endpoint status %d: %s", resp.StatusCode, trimBody(respBody))
	}

	var parsed nllbResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode translation response: %w", err)
	}

	translated := StripLanguageMarker(parsed.Text, targetTag)
	if translated == "" {
		return nil, fmt.Errorf("translation response was empty")
	}

	return &TranslateResponse{
		Text:         translated,
		SourceTag:    sourceTag,
		TargetTag:    targetTag,
		ProviderName: p.Name(),
		LatencyMs:    time.Since(started).Milliseconds(),
	}, nil
}

func (p *NLLBProvider) Ping(ctx context.Context) error {
	if p == nil {
		return fmt.Errorf("nllb provider is nil")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpointURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build translation health request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("translation service unreachable: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("translation health status %d", resp.StatusCode)
	}
	return nil
}

// StripLanguageMarker removes a leading target-language marker token
// (for example "jpn_Jpan") and any control-token wrappers like "__jpn_Jpan__"
// or "<jpn_Jpan>" from decoded output, then trims whitespace.
func StripLanguageMarker(text, targetTag string) string {
	out := strings.TrimSpace(text)
	tag := strings.TrimSpace(targetTag)
	if out == "" || tag == "" {
		return out
	}
	for _, marker := range []string{"__" + tag + "__", "<" + tag + ">", tag} {
		if strings.HasPrefix(out, marker) {
			out = strings.TrimSpace(strings.TrimPrefix(out, marker))
			break
		}
	}
	return out
}

type nllbRequest struct {
	Text              string  `json:"text"`
	SourceLang        string  `json:"source_lang"`
	TargetLang        string  `json:"target_lang"`
	BeamSize          int     `json:"beam_size"`
	RepetitionPenalty float64 `json:"repetition_penalty"`
	MaxLength         int     `json:"max_length"`
}

type nllbResponse struct {
	Text string `json:"text"`
}

func trimBody(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200] + "..."
	}
	return text
}

func normalizeEndpoint(raw string) string {
	endpoint := strings.TrimSpace(raw)
	if endpoint == "" {
		return "http://127.0.0.1:8845"
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	parsed, err := url.Parse(endpoint)
	if err != nil || strings.TrimSpace(parsed.Host) == "" {
		return "http://127.0.0.1:8845"
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/")
	return parsed.String()
}

package translation

import "context"

// Provider translates free-form text between languages.
type Provider interface {
	Translate(ctx context.Context, req TranslateRequest) (*TranslateResponse, error)
	Name() string
	Ping(ctx context.Context) error
}

// TranslateRequest describes one translation request. Names are the logical
// language names ("japanese"); tags are the service-specific codes the
// resolver produced for them ("jpn_Jpan").
type TranslateRequest struct {
	Text       string
	SourceName string
	TargetName string
	SourceTag  string
	TargetTag  string
}

// TranslateResponse contains translated text and provider metadata.
// Text is guaranteed free of control and language-marker tokens.
type TranslateResponse struct {
	Text         string
	SourceTag    string
	TargetTag    string
	ProviderName string
	LatencyMs    int64
}

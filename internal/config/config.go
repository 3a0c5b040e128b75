package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// Detection policies applied when the source language was auto-detected.
const (
	DetectPolicyIgnore = "ignore"
	DetectPolicyWarn   = "warn"
	DetectPolicyReject = "reject"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	STTEndpoint         string `envconfig:"STT_ENDPOINT" default:"http://127.0.0.1:8771"`
	TranslationEndpoint string `envconfig:"TRANSLATION_ENDPOINT" default:"http://127.0.0.1:8845"`
	TTSEndpoint         string `envconfig:"TTS_ENDPOINT" default:"http://127.0.0.1:8880"`

	STTTable         string `envconfig:"STT_TABLE" default:"tables/stt.csv"`
	TranslationTable string `envconfig:"TRANSLATION_TABLE" default:"tables/translation.csv"`
	TTSTable         string `envconfig:"TTS_TABLE" default:"tables/tts.csv"`
	VoicesManifest   string `envconfig:"VOICES_MANIFEST" default:"tables/voices.json"`

	OutputDir string `envconfig:"OUTPUT_DIR" default:"output"`
	WorkDir   string `envconfig:"WORK_DIR" default:""`

	DetectPolicy        string  `envconfig:"DETECT_POLICY" default:"warn"`
	DetectMinConfidence float64 `envconfig:"DETECT_MIN_CONFIDENCE" default:"0.40"`

	DatabaseURL string `envconfig:"DATABASE_URL" default:""`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.STTEndpoint) == "" {
		return fmt.Errorf("STT_ENDPOINT is required")
	}
	if strings.TrimSpace(c.TranslationEndpoint) == "" {
		return fmt.Errorf("TRANSLATION_ENDPOINT is required")
	}
	if strings.TrimSpace(c.TTSEndpoint) == "" {
		return fmt.Errorf("TTS_ENDPOINT is required")
	}
	if strings.TrimSpace(c.STTTable) == "" {
		return fmt.Errorf("STT_TABLE is required")
	}
	if strings.TrimSpace(c.TranslationTable) == "" {
		return fmt.Errorf("TRANSLATION_TABLE is required")
	}
	if strings.TrimSpace(c.TTSTable) == "" {
		return fmt.Errorf("TTS_TABLE is required")
	}
	if strings.TrimSpace(c.VoicesManifest) == "" {
		return fmt.Errorf("VOICES_MANIFEST is required")
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		return fmt.Errorf("OUTPUT_DIR is required")
	}
	switch c.NormalizedDetectPolicy() {
	case DetectPolicyIgnore, DetectPolicyWarn, DetectPolicyReject:
	default:
		return fmt.Errorf("DETECT_POLICY must be one of %s, %s, %s", DetectPolicyIgnore, DetectPolicyWarn, DetectPolicyReject)
	}
	if c.DetectMinConfidence < 0 || c.DetectMinConfidence > 1 {
		return fmt.Errorf("DETECT_MIN_CONFIDENCE must be between 0 and 1")
	}
	return nil
}

// NormalizedDetectPolicy returns the lower-cased detection policy name.
func (c *Config) NormalizedDetectPolicy() string {
	return strings.ToLower(strings.TrimSpace(c.DetectPolicy))
}

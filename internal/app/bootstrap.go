package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"horse.fit/voicebridge/internal/config"
	"horse.fit/voicebridge/internal/language"
	"horse.fit/voicebridge/internal/ledger"
	"horse.fit/voicebridge/internal/pipeline"
	"horse.fit/voicebridge/internal/stt"
	"horse.fit/voicebridge/internal/translation"
	"horse.fit/voicebridge/internal/tts"
)

// buildOrchestrator constructs the full pipeline from configuration.
// Everything is loaded eagerly; any failure here is a startup failure.
// The returned closer releases the ledger connection when one was opened.
func buildOrchestrator(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*pipeline.Orchestrator, *language.Resolver, func(), error) {
	resolver, err := language.NewResolver(language.TablePaths{
		STT:         cfg.STTTable,
		Translation: cfg.TranslationTable,
		TTS:         cfg.TTSTable,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load language tables: %w", err)
	}

	voices, err := tts.LoadVoices(cfg.VoicesManifest)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load voices manifest: %w", err)
	}

	registry := translation.NewRegistryForEndpoint(cfg.TranslationEndpoint)
	translator, err := registry.Default()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("resolve translation provider: %w", err)
	}
	logger.Info().Str("provider", translator.Name()).Msg("translation provider selected")

	var (
		runLedger pipeline.Ledger = pipeline.NopLedger{}
		closer                    = func() {}
	)
	if cfg.DatabaseURL != "" {
		store, err := ledger.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open run ledger: %w", err)
		}
		runLedger = store
		closer = func() {
			if closeErr := store.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("ledger close failed")
			}
		}
		logger.Info().Msg("run ledger enabled")
	}

	orchestrator, err := pipeline.NewOrchestrator(pipeline.Options{
		Transcriber: stt.NewClient(cfg.STTEndpoint),
		Translator:  translator,
		Synthesizer: tts.NewClient(cfg.TTSEndpoint, voices),
		Resolver:    resolver,
		Ledger:      runLedger,
		Logger:      logger,
		OutputDir:   cfg.OutputDir,
		Detection: pipeline.DetectionPolicy{
			Policy:        cfg.NormalizedDetectPolicy(),
			MinConfidence: cfg.DetectMinConfidence,
		},
	})
	if err != nil {
		closer()
		return nil, nil, nil, fmt.Errorf("build orchestrator: %w", err)
	}

	return orchestrator, resolver, closer, nil
}

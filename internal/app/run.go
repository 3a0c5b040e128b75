package app

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"horse.fit/voicebridge/internal/cli"
	"horse.fit/voicebridge/internal/config"
	"horse.fit/voicebridge/internal/logging"
	"horse.fit/voicebridge/internal/pipeline"
)

// runOnce executes the pipeline on a single utterance from the command line
// and prints the path of the synthesized WAV.
func runOnce(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	inPath := fs.String("in", "", "Path to the input WAV file")
	text := fs.String("text", "", "Translate this text instead of reading audio")
	source := fs.String("source", "", "Source language name (empty enables auto-detection)")
	target := fs.String("target", "", "Target language name (required)")
	timeout := fs.Duration("timeout", 5*time.Minute, "Overall pipeline timeout")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if strings.TrimSpace(*target) == "" {
		fmt.Fprintln(os.Stderr, "run: -target is required")
		return 2
	}
	if strings.TrimSpace(*inPath) == "" && strings.TrimSpace(*text) == "" {
		fmt.Fprintln(os.Stderr, "run: one of -in or -text is required")
		return 2
	}

	if _, err := envLoader.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v, relying on process environment\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	orchestrator, _, closeLedger, err := buildOrchestrator(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("startup failed")
		return 1
	}
	defer closeLedger()

	session, err := orchestrator.Run(ctx, pipeline.Request{
		AudioPath:      strings.TrimSpace(*inPath),
		Text:           strings.TrimSpace(*text),
		SourceLanguage: strings.TrimSpace(*source),
		TargetLanguage: strings.TrimSpace(*target),
	})
	if err != nil {
		if pe, ok := pipeline.AsError(err); ok {
			fmt.Fprintf(os.Stderr, "Pipeline failed at %s stage: %s\n", pe.Stage, pe.Error())
		} else {
			fmt.Fprintf(os.Stderr, "Pipeline failed: %v\n", err)
		}
		return 1
	}

	fmt.Printf("Transcript:  %s\n", session.Transcript)
	fmt.Printf("Translation: %s\n", session.Translation)
	fmt.Printf("Audio:       %s\n", session.Artifact.Path)
	return 0
}

package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/voicebridge/internal/cli"
	"horse.fit/voicebridge/internal/config"
	"horse.fit/voicebridge/internal/logging"
)

// runHealth pings every collaborator and, when configured, the run ledger
// database, then reports the result on stdout.
func runHealth(args []string) int {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 10*time.Second, "Ping timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
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
		fmt.Fprintf(os.Stderr, "Startup check failed: %v\n", err)
		return 1
	}
	defer closeLedger()

	if err := orchestrator.Ping(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Unhealthy: %v\n", err)
		return 1
	}

	fmt.Println("All collaborators reachable.")
	return 0
}

package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"horse.fit/voicebridge/internal/cli"
	"horse.fit/voicebridge/internal/config"
	"horse.fit/voicebridge/internal/language"
)

// runLanguages prints the supported languages and which pipeline stages
// each one covers. Works entirely from the local tables, no network.
func runLanguages(args []string) int {
	fs := flag.NewFlagSet("languages", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")

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

	resolver, err := language.NewResolver(language.TablePaths{
		STT:         cfg.STTTable,
		Translation: cfg.TranslationTable,
		TTS:         cfg.TTSTable,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load language tables: %v\n", err)
		return 1
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "LANGUAGE\tTRANSCRIBE\tTRANSLATE\tSYNTHESIZE")
	for _, token := range resolver.Tokens() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			token.Name,
			mark(token.STTLocale != ""),
			mark(token.TranslationTag != ""),
			mark(token.TTSVoice != ""),
		)
	}
	w.Flush()
	return 0
}

func mark(ok bool) string {
	if ok {
		return "yes"
	}
	return "-"
}

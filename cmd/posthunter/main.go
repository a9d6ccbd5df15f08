package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	appName = "posthunter"
	version = "v1.2.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	// Pretty console output on a terminal, JSON when piped or under a
	// supervisor.
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Automated recruitment-post pipeline with stock, quality gate, and PDCA feedback",
		Version: version,
		Long: appName + ` generates candidate posts, filters them through a quality
gate, keeps a pre-vetted stock per account, dispatches posts through channel
adapters, and feeds engagement outcomes back into pattern learning and PDCA
analysis.`,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to YAML config")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (trace, debug, info, warn, error)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newSweepCmd())
	rootCmd.AddCommand(newAnalyzeCmd())
	rootCmd.AddCommand(newStockCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setLogLevel(level string) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		log.Warn().Str("level", level).Msg("unknown log level, keeping info")
		return
	}
	zerolog.SetGlobalLevel(parsed)
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/miclabs/posthunter/internal/app"
	"github.com/miclabs/posthunter/internal/config"
	"github.com/miclabs/posthunter/internal/generate"
	httpapi "github.com/miclabs/posthunter/internal/interfaces/http"
	"github.com/miclabs/posthunter/internal/interfaces/http/handlers"
	"github.com/miclabs/posthunter/internal/scheduler"
)

// buildApp loads config and assembles the pipeline for a command.
func buildApp(cmd *cobra.Command) (*app.App, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	level, _ := cmd.Flags().GetString("log-level")
	setLogLevel(level)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	return app.New(cmd.Context(), cfg, channelEndpointsFromEnv(cfg))
}

// channelEndpointsFromEnv reads each channel's API endpoint and token from
// POSTHUNTER_CHANNEL_<KEY>_URL / _TOKEN.
func channelEndpointsFromEnv(cfg config.Config) app.ChannelEndpoints {
	endpoints := app.ChannelEndpoints{}
	for _, account := range cfg.Accounts {
		key := account.Channel
		if _, ok := endpoints[key]; ok {
			continue
		}
		prefix := "POSTHUNTER_CHANNEL_" + strings.ToUpper(key)
		endpoints[key] = struct {
			BaseURL string
			Token   string
		}{
			BaseURL: os.Getenv(prefix + "_URL"),
			Token:   os.Getenv(prefix + "_TOKEN"),
		}
	}
	return endpoints
}

func addAccountFlags(fs *pflag.FlagSet) {
	fs.String("account", "", "run a single account instead of all")
	fs.Bool("dry-run", false, "produce candidates without dispatching")
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP trigger server and the cron scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			cfg := a.Config

			h := handlers.New(a.Runner, a.Stock, a.Monitor, a.Learner, a.Analyzer,
				a.Store, cfg.Server.Secret, cfg.Stock.MinPerAccount)
			server := httpapi.NewServer(httpapi.ServerConfig{
				Host:         cfg.Server.Host,
				Port:         cfg.Server.Port,
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
				IdleTimeout:  cfg.Server.IdleTimeout,
			}, h)

			sched := scheduler.New(a.Runner, a.Stock, a.Monitor, a.Learner, a.Analyzer)
			if err := sched.Register(cfg.Scheduler.Jobs); err != nil {
				return err
			}
			sched.Start()
			defer sched.Stop()

			errCh := make(chan error, 1)
			go func() { errCh <- server.Start() }()

			stopCh := make(chan os.Signal, 1)
			signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return err
			case sig := <-stopCh:
				log.Info().Str("signal", sig.String()).Msg("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			}
		},
	}
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a posting cycle once",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			account, _ := cmd.Flags().GetString("account")
			dryRun, _ := cmd.Flags().GetBool("dry-run")

			var res any
			if account != "" {
				r, ok := a.Runner.RunOne(cmd.Context(), account, dryRun)
				if !ok {
					return fmt.Errorf("unknown account %q", account)
				}
				res = r
			} else {
				res = a.Runner.RunAll(cmd.Context(), dryRun)
			}
			return printJSON(res)
		},
	}
	addAccountFlags(cmd.Flags())
	return cmd
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one engagement sweep and recompute winning patterns",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			sweep, err := a.Monitor.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			snap, err := a.Learner.Recompute(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(map[string]any{"sweep": sweep, "patterns": snap})
		},
	}
}

func newAnalyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "Run the PDCA analysis and write the report to the knowledge store",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.Analyzer.Analyze(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(report)
		},
	}
}

func newStockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stock",
		Short: "Inspect or refill the candidate stock",
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show unconsumed stock levels per account",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			levels, err := a.Stock.Levels(cmd.Context())
			if err != nil {
				return err
			}
			type row struct {
				Account string `json:"account"`
				Stock   int    `json:"stock"`
				IsLow   bool   `json:"is_low"`
			}
			var rows []row
			for _, account := range a.Config.Accounts {
				rows = append(rows, row{
					Account: account.ID,
					Stock:   levels[account.ID],
					IsLow:   levels[account.ID] < a.Config.Stock.MinPerAccount,
				})
			}
			return printJSON(rows)
		},
	}

	refillCmd := &cobra.Command{
		Use:   "refill",
		Short: "Top accounts up to the stock floor via the generation loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			results, err := a.Stock.RefillAll(cmd.Context(), a.Config.Accounts, generate.Input{})
			if err != nil {
				return err
			}
			return printJSON(results)
		},
	}

	cmd.AddCommand(statusCmd, refillCmd)
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jdziat/newsdesk/internal/app"
	"github.com/jdziat/newsdesk/internal/config"
	"github.com/jdziat/newsdesk/internal/logging"
)

var (
	cfgFile string
	envFile string
)

var rootCmd = &cobra.Command{
	Use:               "newsdesk",
	Short:             "Newsroom content pipeline",
	Long:              `newsdesk ingests news feeds, enriches articles with AI, renders social cards and publishes them through durable job queues.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" {
			return nil
		}
		if err := config.LoadDotEnv(envFile); err != nil {
			return err
		}
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		logger := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
		slog.SetDefault(logger)

		a, err := app.New(cmd.Context(), cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize app: %w", err)
		}
		cmd.SetContext(context.WithValue(cmd.Context(), appKey, a))
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if a, ok := cmd.Context().Value(appKey).(*app.App); ok {
			return a.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default ./newsdesk.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type contextKey string

const appKey contextKey = "app"

func appFromContext(ctx context.Context) (*app.App, error) {
	a, ok := ctx.Value(appKey).(*app.App)
	if !ok || a == nil {
		return nil, fmt.Errorf("application instance not found in context")
	}
	return a, nil
}

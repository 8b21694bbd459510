package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tjfontaine/polyglot-feed-filter/internal/content"
	"github.com/tjfontaine/polyglot-feed-filter/internal/transport/httptransport"
	"github.com/tjfontaine/polyglot-feed-filter/pkg/filter"
)

var (
	configPath string
	serverURL  string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "feedfilter",
	Short: "Filter social feed items against a natural-language prompt",
	Long: "feedfilter asks a local language model whether each feed item matches the\n" +
		"user's filter prompt and remembers the verdicts.",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Load .env file if it exists
		_ = godotenv.Load()

		var level slog.Level
		if err := level.UnmarshalText([]byte(logLevel)); err != nil {
			level = slog.LevelInfo
		}
		opts := &slog.HandlerOptions{Level: level}
		var handler slog.Handler = slog.NewJSONHandler(os.Stderr, opts)
		if isatty.IsTerminal(os.Stderr.Fd()) {
			handler = slog.NewTextHandler(os.Stderr, opts)
		}
		logger := slog.New(handler)
		slog.SetDefault(logger)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Config file path")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "Base URL of a running filter, e.g. http://localhost:8080/v1 (default: run in process)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error")

	rootCmd.AddCommand(serveCmd, evaluateCmd, checkCmd, statusCmd)
}

// withClient runs fn against a remote filter when --server is set and
// against a short-lived in-process runtime otherwise.
func withClient(ctx context.Context, fn func(*content.Client) error) error {
	if serverURL != "" {
		base := strings.TrimSuffix(serverURL, "/")
		return fn(content.NewClient(httptransport.NewClient(base), content.DefaultTimeouts(), slog.Default()))
	}

	rt, err := filter.New(
		filter.WithLogger(slog.Default()),
		filter.WithFileConfig(configPath),
		filter.WithoutServer(),
	)
	if err != nil {
		return fmt.Errorf("create runtime: %w", err)
	}
	if err := rt.Start(ctx); err != nil {
		return fmt.Errorf("start runtime: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := rt.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", slog.String("error", err.Error()))
		}
	}()
	return fn(rt.Content())
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

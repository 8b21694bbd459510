package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/polyglot-feed-filter/pkg/filter"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the filter and its HTTP binding until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.Default()

		rt, err := filter.New(
			filter.WithLogger(logger),
			filter.WithFileConfig(configPath),
		)
		if err != nil {
			return fmt.Errorf("create runtime: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := rt.Start(ctx); err != nil {
			return fmt.Errorf("start runtime: %w", err)
		}
		if addr := rt.Addr(); addr != "" {
			logger.Info("listening", slog.String("addr", addr))
		}

		waitErr := rt.Wait(ctx)
		logger.Info("shutdown signal received, stopping feed filter")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := rt.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return waitErr
	},
}

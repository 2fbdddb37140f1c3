package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kringz/sidebyside"
)

var (
	listen        string
	syncOnStart   bool
	purgeInterval time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the comparison API",
	Long: `Seeds the version catalog, optionally syncs it from the Trino release
index, and serves the comparison API until interrupted. Expired cache entries
are purged periodically.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listen, "listen", "", "listen address (default from config)")
	serveCmd.Flags().BoolVar(&syncOnStart, "sync", false, "sync the version catalog from the release index on start")
	serveCmd.Flags().DurationVar(&purgeInterval, "purge-interval", time.Hour, "how often expired comparisons are purged, 0 to disable")
}

func runServe(cmd *cobra.Command, args []string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := app.Catalog.Seed(); err != nil {
		return err
	}
	if syncOnStart {
		if _, err := app.Catalog.Sync(ctx); err != nil {
			logger.Warn("Failed to sync version catalog, using stored versions", zap.Error(err))
		}
	}
	if purgeInterval > 0 {
		go purgeLoop(ctx, app, purgeInterval)
	}

	addr := app.Config.Server.Listen
	if listen != "" {
		addr = listen
	}
	server := app.Server()
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return <-errCh
}

func purgeLoop(ctx context.Context, app *sidebyside.App, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := app.Comparator.PurgeExpired(); err != nil {
				logger.Warn("Failed to purge expired comparisons", zap.Error(err))
			} else if n > 0 {
				logger.Info("Purged expired comparisons", zap.Int64("count", n))
			}
		}
	}
}

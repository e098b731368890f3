package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/benjaminschreck/go-mailmerge/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the HTTP server. Settings come from the environment (PORT,
MERGE_MAX_ROWS, DATABASE_URL, ...) and an optional .env file.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := setup(ctx, true)
	if err != nil {
		slog.Error("startup failed", "error", err)
		return err
	}
	defer a.close()
	cfg := a.cfg

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"max_rows", cfg.Merge.MaxRows,
		"max_concurrent_jobs", cfg.Merge.MaxConcurrentJobs,
		"mode", cfg.Merge.Mode,
		"separator", cfg.Merge.Separator,
	)

	server := web.NewServer(a.driver, cfg)

	jobCtx, cancelJobs := context.WithCancel(ctx)
	defer cancelJobs()
	go a.driver.StartJanitor(jobCtx, cfg.Merge.JanitorInterval)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if active := a.driver.Limiter().Active(); active > 0 {
			slog.Info("waiting for merge jobs to complete", "active", active)
		}
		if err := a.driver.Shutdown(shutdownCtx); err != nil {
			slog.Warn("merge jobs did not complete in time", "error", err)
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		return err
	}
	<-stopped
	slog.Info("server stopped")
	return nil
}

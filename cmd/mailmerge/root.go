package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/benjaminschreck/go-mailmerge/internal/config"
	"github.com/benjaminschreck/go-mailmerge/internal/job"
	"github.com/benjaminschreck/go-mailmerge/internal/logging"
	"github.com/benjaminschreck/go-mailmerge/pkg/mailmerge"
)

var rootCmd = &cobra.Command{
	Use:   "mailmerge",
	Short: "Fill Word templates with spreadsheet rows",
	Long: `mailmerge replaces <<FIELD>> placeholders in .docx templates with the
values of a range of spreadsheet rows. Field names come from the header row
of the workbook.

Run "mailmerge serve" for the web interface or "mailmerge run" to merge
local files.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// app bundles what both the server and the run command need.
type app struct {
	cfg    *config.Config
	driver *job.Driver
	close  func()
}

// setup loads configuration, configures logging and builds the job driver.
// A DATABASE_URL selects the Postgres job store; otherwise jobs live in
// memory.
func setup(ctx context.Context, useDatabase bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	engineCfg := mailmerge.GetGlobalConfig()
	engineCfg.Separator = cfg.Merge.Separator
	engine := mailmerge.NewWithConfig(engineCfg)

	var registry *mailmerge.Registry
	if cfg.Merge.RegistryFile != "" {
		registry, err = mailmerge.LoadRegistryFile(cfg.Merge.RegistryFile)
		if err != nil {
			return nil, fmt.Errorf("load registry: %w", err)
		}
		slog.Info("placeholder registry loaded", "file", cfg.Merge.RegistryFile, "fields", registry.Len())
	}

	loc, err := cfg.Merge.Location()
	if err != nil {
		return nil, err
	}

	mode, err := job.ParseMode(cfg.Merge.Mode)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, close: func() {}}

	var store job.Store = job.NewMemoryStore()
	if useDatabase && cfg.Database.URL != "" {
		pool, err := openPool(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		pg := job.NewPostgresStore(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("create job table: %w", err)
		}
		store = pg
		a.close = pool.Close
		slog.Info("using postgres job store")
	}

	a.driver = job.NewDriver(job.Options{
		Engine:        engine,
		Store:         store,
		Registry:      registry,
		DefaultMode:   mode,
		MaxRows:       cfg.Merge.MaxRows,
		MaxTemplates:  cfg.Upload.MaxTemplates,
		MaxConcurrent: cfg.Merge.MaxConcurrentJobs,
		QueueTimeout:  cfg.Merge.QueueTimeout,
		WorkDir:       cfg.Merge.WorkDir,
		Location:      loc,
		Retention:     cfg.Merge.JobRetention,
	})
	return a, nil
}

func openPool(ctx context.Context, db config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(db.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(db.MaxConns)
	poolConfig.MinConns = int32(db.MinConns)
	poolConfig.MaxConnLifetime = db.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

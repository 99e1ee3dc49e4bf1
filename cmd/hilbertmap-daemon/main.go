// hilbertmap-daemon serves the prefix set and layout HTTP API.
//
// Usage:
//
//	hilbertmap-daemon [flags]
//
// Flags:
//
//	--config     Config file (default ~/.hilbertmap/config.yaml)
//	--db         Path to SQLite database file (default ~/.hilbertmap/hilbertmap.db)
//	--addr       HTTP listen address (default 127.0.0.1:8650)
//	--log-level  Log level (default info)
//	--batch      Prefixes per insert transaction (default 1000)
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Mr-Dark-debug/hilbertmap/internal/api"
	"github.com/Mr-Dark-debug/hilbertmap/internal/config"
	"github.com/Mr-Dark-debug/hilbertmap/internal/database"
	"github.com/Mr-Dark-debug/hilbertmap/internal/ingestion"
	"github.com/Mr-Dark-debug/hilbertmap/internal/logging"
	"github.com/Mr-Dark-debug/hilbertmap/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var (
		configPath, dbPath, addr, logLevel string
		batch                              int
	)

	cmd := &cobra.Command{
		Use:           "hilbertmap-daemon",
		Short:         "Serve the hilbertmap HTTP API",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cfg.ApplyEnv()
			if dbPath != "" {
				cfg.DBPath = dbPath
			}
			if addr != "" {
				cfg.HTTPAddr = addr
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			if batch > 0 {
				cfg.Import.BatchSize = batch
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Config file")
	cmd.Flags().StringVar(&dbPath, "db", "", "Path to SQLite database file")
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level")
	cmd.Flags().IntVar(&batch, "batch", 0, "Prefixes per insert transaction")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	logger := logging.New("hilbertmap-daemon", cfg.LogLevel, os.Stdout)

	// Ensure the database directory exists
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return fmt.Errorf("creating database directory: %w", err)
	}
	store, err := database.NewDBService(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer store.Close()

	m := metrics.New()
	importer := ingestion.NewImporter(cfg.Import, store, m, logger)

	// Imports interrupted by a previous shutdown are still parked.
	if n, err := importer.ReplayPending(ctx); err != nil {
		logger.Warn().Err(err).Msg("replaying pending imports")
	} else if n > 0 {
		logger.Info().Int("imports", n).Msg("replayed pending imports")
	}

	topV4, err := cfg.Map.Top(4)
	if err != nil {
		return err
	}
	topV6, err := cfg.Map.Top(6)
	if err != nil {
		return err
	}

	h := api.NewHandler(logger, store, importer, m, api.Options{
		TopV4:     topV4,
		TopV6:     topV6,
		MaxExpand: cfg.Map.MaxExpand,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Str("db", cfg.DBPath).Msg("hilbertmap-daemon listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown")
	}
	stats := importer.Stats()
	logger.Info().
		Int64("imports", stats.Imports).
		Int64("prefixes", stats.Prefixes).
		Int64("errors", stats.Errors).
		Msg("shutdown complete")
	return nil
}

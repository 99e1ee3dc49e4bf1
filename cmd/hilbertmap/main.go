// hilbertmap is the command-line interface for prefix sets and map layouts.
//
// Usage:
//
//	hilbertmap <command> [flags]
//
// Commands:
//
//	import    Import a prefix list into a new set
//	sets      List, inspect and delete prefix sets
//	layout    Print the visible blocks of a map
//	analyze   Report hotspots, prefix lengths and growth of a set
//	version   Print version information
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Mr-Dark-debug/hilbertmap/internal/config"
	"github.com/Mr-Dark-debug/hilbertmap/internal/database"
	"github.com/Mr-Dark-debug/hilbertmap/internal/logging"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootOptions are the flags every subcommand shares.
type rootOptions struct {
	configPath string
	dbPath     string
	logLevel   string
}

func main() {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "hilbertmap",
		Short: "Hilbert-curve maps of the IP address space",
		Long: `hilbertmap lays out IPv4 and IPv6 prefixes on a Hilbert curve so
that numerically close addresses stay visually close.

Import announced-prefix lists into named sets, then color the map by
how much of each block a set covers.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file (default ~/.hilbertmap/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.dbPath, "db", "", "Path to SQLite database file")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (trace..panic, disabled)")

	rootCmd.AddCommand(
		importCmd(opts),
		setsCmd(opts),
		layoutCmd(opts),
		analyzeCmd(opts),
		versionCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		stop()
		os.Exit(1)
	}
}

// load reads the config file, then the environment, then flags.
func (o *rootOptions) load() (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return cfg, err
	}
	cfg.ApplyEnv()
	if o.dbPath != "" {
		cfg.DBPath = o.dbPath
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// logger writes to stderr so command output stays pipeable.
func (o *rootOptions) logger(cfg config.Config) zerolog.Logger {
	return logging.New("hilbertmap", cfg.LogLevel, os.Stderr)
}

// openStore opens the database, creating its directory when needed.
func openStore(cfg config.Config) (*database.DBService, error) {
	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	store, err := database.NewDBService(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", cfg.DBPath, err)
	}
	return store, nil
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an indented detail line.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(format string, args ...any) {
	fmt.Printf("\033[33m⚠\033[0m %s\n", fmt.Sprintf(format, args...))
}

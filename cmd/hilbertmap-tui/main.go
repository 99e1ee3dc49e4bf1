// hilbertmap-tui is the interactive terminal map of the address space.
//
// Usage:
//
//	hilbertmap-tui [flags]
//
// Flags:
//
//	--config  Config file (default ~/.hilbertmap/config.yaml)
//	--db      Path to SQLite database file (default ~/.hilbertmap/hilbertmap.db)
//	--set     Prefix set to color the map by
//	--no-db   Run without a database
package main

import (
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Mr-Dark-debug/hilbertmap/internal/config"
	"github.com/Mr-Dark-debug/hilbertmap/internal/database"
	"github.com/Mr-Dark-debug/hilbertmap/internal/logging"
	"github.com/Mr-Dark-debug/hilbertmap/internal/tui"
)

func main() {
	var (
		configPath, dbPath, setID, logLevel string
		noDB                                bool
	)

	cmd := &cobra.Command{
		Use:           "hilbertmap-tui",
		Short:         "Explore the address space on a Hilbert curve",
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
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			// Logs go to a file; the alternate screen owns the terminal.
			logFile, err := logging.OpenFile(cfg.LogFile)
			if err != nil {
				return err
			}
			defer logFile.Close()
			logger := logging.New("hilbertmap-tui", cfg.LogLevel, logFile)

			opts := tui.Options{
				Log:        logger,
				MaxExpand:  cfg.Map.MaxExpand,
				MinLevel:   cfg.Map.MinLevel,
				SetID:      setID,
				PromoteKey: cfg.Map.PromoteKey,
				DemoteKey:  cfg.Map.DemoteKey,
			}
			if opts.TopV4, err = cfg.Map.Top(4); err != nil {
				return err
			}
			if opts.TopV6, err = cfg.Map.Top(6); err != nil {
				return err
			}

			if !noDB {
				if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
					return fmt.Errorf("creating database directory: %w", err)
				}
				store, err := database.NewDBService(cfg.DBPath)
				if err != nil {
					return fmt.Errorf("opening database at %s: %w\n"+
						"Run with --no-db to explore without prefix sets", cfg.DBPath, err)
				}
				defer store.Close()
				opts.Store = store
			} else if setID != "" {
				return fmt.Errorf("--set needs a database")
			}

			model, err := tui.NewModel(opts)
			if err != nil {
				return err
			}
			logger.Info().Str("db", cfg.DBPath).Str("set", setID).Msg("starting tui")

			p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseAllMotion())
			if _, err := p.Run(); err != nil {
				return fmt.Errorf("running TUI: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Config file")
	cmd.Flags().StringVar(&dbPath, "db", "", "Path to SQLite database file")
	cmd.Flags().StringVar(&setID, "set", "", "Prefix set to color the map by")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level")
	cmd.Flags().BoolVar(&noDB, "no-db", false, "Run without a database")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/Mr-Dark-debug/hilbertmap/internal/database"
	"github.com/Mr-Dark-debug/hilbertmap/pkg/timeutil"
)

var (
	tableBorderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#30363d"))
	tableHeaderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#58a6ff")).Bold(true).Padding(0, 1)
	tableCellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// renderTable draws rows with the shared CLI table style.
func renderTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(tableBorderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			return tableCellStyle
		}).
		Headers(headers...).
		Rows(rows...).
		String()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func setsCmd(root *rootOptions) *cobra.Command {
	var (
		source        string
		limit, offset int
		asJSON        bool
	)

	cmd := &cobra.Command{
		Use:   "sets [command]",
		Short: "List, inspect and delete prefix sets",
		Long: `Manage stored prefix sets.

Without a subcommand the sets are listed, newest first.

Commands:
  show       Show one set with per-family statistics
  prefixes   Print the prefixes of a set
  delete     Delete a set and its prefixes`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			filter := database.SetFilter{Limit: limit, Offset: offset}
			if source != "" {
				filter.Source = &source
			}
			sets, err := store.ListSets(filter)
			if err != nil {
				return err
			}

			if asJSON {
				if sets == nil {
					sets = []*database.PrefixSet{}
				}
				return printJSON(sets)
			}
			if len(sets) == 0 {
				info("No prefix sets. Import one with: hilbertmap import --name <name> <file>")
				return nil
			}

			rows := make([][]string, 0, len(sets))
			for _, s := range sets {
				rows = append(rows, []string{
					s.ID, s.Name, s.Source,
					strconv.Itoa(s.PrefixCount),
					timeutil.FormatTimestampFull(s.CreatedAt),
				})
			}
			fmt.Println(renderTable([]string{"ID", "NAME", "SOURCE", "PREFIXES", "CREATED"}, rows))
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "Only list sets from this source")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum results")
	cmd.Flags().IntVar(&offset, "offset", 0, "Results to skip")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")

	cmd.AddCommand(
		setsShowCmd(root),
		setsPrefixesCmd(root),
		setsDeleteCmd(root),
	)

	return cmd
}

func setsShowCmd(root *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one set with per-family statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			set, err := store.GetSet(args[0])
			if err != nil {
				return err
			}
			stats, err := store.GetSetStats(set.ID)
			if err != nil {
				return err
			}

			if asJSON {
				return printJSON(struct {
					*database.PrefixSet
					Stats *database.SetStats `json:"stats"`
				}{set, stats})
			}

			fmt.Println()
			fmt.Printf("  ID:       %s\n", set.ID)
			fmt.Printf("  Name:     %s\n", set.Name)
			fmt.Printf("  Source:   %s\n", set.Source)
			fmt.Printf("  Created:  %s (%s)\n", timeutil.FormatTimestampFull(set.CreatedAt), timeutil.RelativeTime(set.CreatedAt))
			fmt.Printf("  Prefixes: %d\n", set.PrefixCount)
			if len(set.Metadata) > 0 {
				keys := make([]string, 0, len(set.Metadata))
				for k := range set.Metadata {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					fmt.Printf("  %s: %s\n", k, set.Metadata[k])
				}
			}
			fmt.Println()
			fmt.Println(renderTable(
				[]string{"FAMILY", "PREFIXES", "SHORTEST", "LONGEST"},
				[][]string{
					familyRow("IPv4", stats.V4Prefixes, stats.V4MinBits, stats.V4MaxBits),
					familyRow("IPv6", stats.V6Prefixes, stats.V6MinBits, stats.V6MaxBits),
				}))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func familyRow(name string, n, minBits, maxBits int) []string {
	if n == 0 {
		return []string{name, "0", "-", "-"}
	}
	return []string{name, strconv.Itoa(n), fmt.Sprintf("/%d", minBits), fmt.Sprintf("/%d", maxBits)}
}

func setsPrefixesCmd(root *rootOptions) *cobra.Command {
	var family int

	cmd := &cobra.Command{
		Use:   "prefixes <id>",
		Short: "Print the prefixes of a set, one per line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if family != 0 && family != 4 && family != 6 {
				return fmt.Errorf("--family must be 4 or 6")
			}
			cfg, err := root.load()
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			if _, err := store.GetSet(args[0]); err != nil {
				return err
			}
			prefixes, err := store.QueryPrefixes(args[0], family)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, p := range prefixes {
				fmt.Fprintln(out, p)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&family, "family", 0, "Only print IPv4 (4) or IPv6 (6) prefixes")
	return cmd
}

func setsDeleteCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete sets and their prefixes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			for _, id := range args {
				if err := store.DeleteSet(id); err != nil {
					return fmt.Errorf("deleting %s: %w", id, err)
				}
				success("Deleted %s", id)
			}
			return nil
		},
	}
}

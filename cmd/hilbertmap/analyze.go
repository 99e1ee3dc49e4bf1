package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Mr-Dark-debug/hilbertmap/internal/analysis"
)

func analyzeCmd(root *rootOptions) *cobra.Command {
	var (
		format  string
		against string
	)

	cmd := &cobra.Command{
		Use:   "analyze <set-id>",
		Short: "Report hotspots, prefix lengths and growth of a set",
		Long: `Analyze a stored prefix set.

The report covers coverage hotspots per family, the prefix length
distribution, and the growth trend of sets from the same source.
With --against the set is instead compared with another set.

Examples:
  hilbertmap analyze as64500
  hilbertmap analyze as64500 --format json
  hilbertmap analyze as64500 --against as64500-old`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "markdown" && format != "json" {
				return fmt.Errorf("--format must be markdown or json")
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

			a := analysis.NewAnalyzer(store)

			if against != "" {
				for _, id := range []string{against, args[0]} {
					if _, err := store.GetSet(id); err != nil {
						return err
					}
				}
				d, err := a.DiffSets(against, args[0])
				if err != nil {
					return err
				}
				if format == "json" {
					return printJSON(d)
				}
				for _, p := range d.Removed {
					fmt.Printf("\033[31m- %s\033[0m\n", p)
				}
				for _, p := range d.Added {
					fmt.Printf("\033[32m+ %s\033[0m\n", p)
				}
				info("%d added, %d removed, %d unchanged", len(d.Added), len(d.Removed), d.Common)
				return nil
			}

			report, err := a.FullAnalysis(args[0])
			if err != nil {
				return err
			}
			if format == "json" {
				return printJSON(report)
			}
			fmt.Print(a.FormatReport(report))
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "markdown", "Output format: markdown or json")
	cmd.Flags().StringVar(&against, "against", "", "Diff against this older set instead")

	return cmd
}

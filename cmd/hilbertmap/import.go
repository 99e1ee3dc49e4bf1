package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Mr-Dark-debug/hilbertmap/internal/database"
	"github.com/Mr-Dark-debug/hilbertmap/internal/ingestion"
	"github.com/Mr-Dark-debug/hilbertmap/pkg/timeutil"
)

func importCmd(root *rootOptions) *cobra.Command {
	var (
		id, name, source string
		metadata         map[string]string
		replay           bool
	)

	cmd := &cobra.Command{
		Use:   "import [file...]",
		Short: "Import a prefix list into a new set",
		Long: `Import one or more prefix lists into a new prefix set.

Accepted formats are a routeviews JSON array, a RIPEstat
announced-prefixes answer, or plain text with one prefix per line.
The format is detected per file unless --source is given. With no
files, or "-", the list is read from stdin.

Examples:
  hilbertmap import --name as64500 prefixes.txt
  hilbertmap import --source ripe ripe-*.json
  curl -s https://example.net/v4.json | hilbertmap import --name feed
  hilbertmap import --replay`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			log := root.logger(cfg)

			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			im := ingestion.NewImporter(cfg.Import, store, nil, log)

			if replay {
				n, err := im.ReplayPending(cmd.Context())
				if err != nil {
					return err
				}
				success("Replayed %d pending imports", n)
				return nil
			}

			src, err := ingestion.ParseSource(source)
			if err != nil {
				return err
			}
			set := &database.PrefixSet{ID: id, Name: name, Metadata: metadata}

			var report *ingestion.Report
			if len(args) == 0 || (len(args) == 1 && args[0] == "-") {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("reading stdin: %w", err)
				}
				report, err = im.Import(cmd.Context(), set, src, data)
				if err != nil {
					return err
				}
			} else {
				report, err = im.ImportFiles(cmd.Context(), set, src, args...)
				if err != nil {
					return err
				}
			}

			success("Imported %d prefixes into %s", report.Added, report.SetID)
			info("Source:   %s", report.Source)
			info("Inputs:   %d", report.Payloads)
			info("Parsed:   %d", report.Parsed)
			info("Batches:  %d", report.Batches)
			info("Duration: %s", timeutil.FormatDuration(report.Duration))
			if report.Invalid > 0 {
				warn("%d malformed entries skipped", report.Invalid)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Set ID (default a new UUID)")
	cmd.Flags().StringVar(&name, "name", "", "Set name (default the ID)")
	cmd.Flags().StringVar(&source, "source", "auto", "Input format: auto, routeviews, ripe, text")
	cmd.Flags().StringToStringVar(&metadata, "meta", nil, "Metadata key=value pairs")
	cmd.Flags().BoolVar(&replay, "replay", false, "Retry imports left pending by an interrupted run")

	return cmd
}

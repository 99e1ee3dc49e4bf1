package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Mr-Dark-debug/hilbertmap/internal/ingestion"
	"github.com/Mr-Dark-debug/hilbertmap/internal/pipeline"
	"github.com/Mr-Dark-debug/hilbertmap/internal/prefix"
	"github.com/Mr-Dark-debug/hilbertmap/internal/render"
	"github.com/Mr-Dark-debug/hilbertmap/internal/state"
	"github.com/Mr-Dark-debug/hilbertmap/internal/subnet"
	"github.com/Mr-Dark-debug/hilbertmap/internal/viz"
)

type layoutLeaf struct {
	Prefix   string       `json:"prefix"`
	First    string       `json:"first"`
	Last     string       `json:"last"`
	Depth    int          `json:"depth"`
	Rect     subnet.Rect  `json:"rect"`
	Coverage *float64     `json:"coverage,omitempty"`
	Style    styleSummary `json:"style"`
}

type styleSummary struct {
	Background string `json:"background,omitempty"`
	Color      string `json:"color,omitempty"`
}

func layoutCmd(root *rootOptions) *cobra.Command {
	var (
		top, setID, zoom string
		family           int
		expand           []string
		expandAll        bool
		width, height    float64
		asJSON           bool
	)

	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Print the visible blocks of a map",
		Long: `Build a map, apply expansions and an optional zoom target, and print
every visible leaf with its address range and placement.

Examples:
  hilbertmap layout --expand 0.0.0.0/0,0.0.0.0/2
  hilbertmap layout --zoom 10.0.0.0/8 --set as64500
  hilbertmap layout --family 6 --expand-all --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if family != 4 && family != 6 {
				return fmt.Errorf("--family must be 4 or 6")
			}
			if !(width >= 1 && height >= 1) {
				return fmt.Errorf("--width and --height must be at least 1")
			}
			cfg, err := root.load()
			if err != nil {
				return err
			}
			log := root.logger(cfg)

			topPrefix, err := cfg.Map.Top(family)
			if err != nil {
				return err
			}
			if top != "" {
				if topPrefix, err = prefix.Parse(top); err != nil {
					return err
				}
			}

			pl := render.Labels()
			if setID != "" {
				store, err := openStore(cfg)
				if err != nil {
					return err
				}
				defer store.Close()
				ix, err := ingestion.NewLoader(store, log).Index(cmd.Context(), setID, topPrefix.Family())
				if err != nil {
					return err
				}
				pl = render.Default(ix)
			}

			m, err := viz.New(viz.Options{
				Top:       topPrefix,
				MaxExpand: cfg.Map.MaxExpand,
				MinLevel:  cfg.Map.MinLevel,
				Pipeline:  pl,
				Logger:    log,
			})
			if err != nil {
				return err
			}
			m.Bind(width, height)

			if expandAll {
				m.ExpandAll()
			}
			if len(expand) > 0 {
				m.Store().SetPrefixSplit(state.SplitExpand, expand...)
			}
			if zoom != "" && !m.ZoomToPrefix(zoom) {
				return fmt.Errorf("cannot zoom to %s inside %s", zoom, topPrefix)
			}

			leaves := subnet.Leaves(m.Traverse())
			out := make([]layoutLeaf, 0, len(leaves))
			for _, b := range leaves {
				first, last := viz.Range(b.Prefix)
				l := layoutLeaf{Prefix: b.Prefix.String(), First: first, Last: last, Depth: b.Depth, Rect: b.Rect}
				if b.Config != nil {
					if _, ok := b.Config.Properties[render.PropSubnets]; ok {
						v := b.Config.Float(render.PropSubnets)
						l.Coverage = &v
					}
					l.Style = styleSummary{
						Background: b.Config.Style[pipeline.StyleBackground],
						Color:      b.Config.Style[pipeline.StyleColor],
					}
				}
				out = append(out, l)
			}

			if asJSON {
				return printJSON(out)
			}

			rows := make([][]string, 0, len(out))
			for _, l := range out {
				cov := "-"
				if l.Coverage != nil {
					cov = fmt.Sprintf("%.3f%%", *l.Coverage*100)
				}
				rows = append(rows, []string{
					l.Prefix, l.First, l.Last, strconv.Itoa(l.Depth),
					fmt.Sprintf("%.4f,%.4f %.4f", l.Rect.X, l.Rect.Y, l.Rect.W),
					cov,
				})
			}
			fmt.Println(renderTable([]string{"PREFIX", "FIRST", "LAST", "DEPTH", "RECT", "COVERAGE"}, rows))
			info("%d leaves under %s", len(out), m.Top())
			return nil
		},
	}

	cmd.Flags().StringVar(&top, "top", "", "Top prefix (default from config per family)")
	cmd.Flags().IntVar(&family, "family", 4, "Address family of the default top: 4 or 6")
	cmd.Flags().StringVar(&setID, "set", "", "Color leaves by the coverage of this set")
	cmd.Flags().StringSliceVar(&expand, "expand", nil, "Prefixes to split")
	cmd.Flags().BoolVar(&expandAll, "expand-all", false, "Open the first levels below the top")
	cmd.Flags().StringVar(&zoom, "zoom", "", "Prefix to zoom to")
	cmd.Flags().Float64Var(&width, "width", 800, "Viewport width in pixels")
	cmd.Flags().Float64Var(&height, "height", 600, "Viewport height in pixels")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")

	return cmd
}

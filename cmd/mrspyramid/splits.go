package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pspoerri/mrspyramid/internal/coord"
	"github.com/pspoerri/mrspyramid/internal/input"
)

func newSplitsCmd(a *app) *cobra.Command {
	var (
		zoom   int
		bbox   string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "splits <input>...",
		Short: "Print the merged split plan of one or more pyramids",
		Long: `splits prints the composites a job over the given pyramids would process,
in row-major order of their top-left corners. Where splits overlap, the
one that comes first owns the shared tiles, and input order only decides
between equal corners. "pre" counts the earlier splits a composite defers
to, "post" the later ones it claims tiles from.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jc := input.Context{
				Inputs:        args,
				Zoom:          zoom,
				MaxSplitTiles: a.cfg.MaxSplitTiles,
			}
			if bbox != "" {
				b, err := coord.ParseBounds(bbox)
				if err != nil {
					return err
				}
				jc.Bounds = &b
			}
			format := input.Format{Registry: a.registry, Logger: a.log, Metrics: a.metrics.Set()}
			composites, err := format.GetSplits(cmd.Context(), jc)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(composites)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tINPUT\tZOOM\tBOUNDS\tTILES\tPRE\tPOST")
			for i, c := range composites {
				b := c.Bounds()
				fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%d\t%d\t%d\n", i, c.Name, c.Split.Zoom, b, b.Count(), len(c.Pre), len(c.Post))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&zoom, "zoom", input.Deepest, "zoom level to plan (default: deepest level of each input)")
	cmd.Flags().StringVar(&bbox, "bbox", "", "crop to west,south,east,north in degrees")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the plan as JSON")
	return cmd
}

package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info <pyramid>",
		Short: "Print the metadata of a pyramid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.registry.Open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer p.Close()
			meta, err := p.Metadata(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(meta)
		},
	}
}

package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/entrhq/relance/pkg/logging"
	"github.com/entrhq/relance/pkg/tools/notes"
)

func newToolsCmd(root *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools advertised to the model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := newRegistry(root.cfg, notes.NewService(), logging.NewNopLogger("tools"))
			if err != nil {
				return err
			}
			defs := registry.Definitions()
			out := cmd.OutOrStdout()

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(defs)
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			for _, d := range defs {
				fmt.Fprintf(tw, "%s\t%s\n", d.Name, d.Description)
			}
			if patterns := registry.DisabledPatterns(); len(patterns) > 0 {
				fmt.Fprintf(tw, "\ndisabled:\t%v\n", patterns)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print full definitions including schemas")
	return cmd
}

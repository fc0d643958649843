package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/entrhq/relance/pkg/config"
)

const version = "0.1.0"

// rootOptions is shared by every subcommand.
type rootOptions struct {
	configPath string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "relance",
		Short: "Chat with a model that acts on your notes through tools",
		Long: `relance sends your messages to an OpenAI-compatible model, executes the
tool calls it requests in bounded concurrent batches, and re-invokes the model
with the results until it answers or the relance budget runs out.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.loadConfig()
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default ./relance.yaml or ~/.config/relance/relance.yaml)")

	cmd.AddCommand(
		newChatCmd(opts),
		newToolsCmd(opts),
		newSessionsCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

func (o *rootOptions) loadConfig() error {
	path, err := config.FindConfig(o.configPath)
	if err != nil {
		return err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	o.cfg = cfg
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the relance version",
		Args:  cobra.NoArgs,
		// Printing the version never needs a config file.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "relance v%s\n", version)
		},
	}
}

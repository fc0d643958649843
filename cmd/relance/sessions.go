package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/entrhq/relance/pkg/store/sqlite"
)

func newSessionsCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage stored conversations",
	}

	openStore := func() (*sqlite.Store, error) {
		if root.cfg.Store.Path == "" {
			return nil, errors.New("no store configured: set store.path in the config file")
		}
		return sqlite.NewStore(root.cfg.Store.Path)
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored sessions, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			sessions, err := store.ListSessions(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tMESSAGES\tUPDATED")
			for _, s := range sessions {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", s.ID, s.MessageCount, s.UpdatedAt.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	}

	remove := &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a stored session",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.DeleteSession(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, remove)
	return cmd
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRemoveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <primary-key>...",
		Short: "Remove documents by primary key",
		Long:  `Remove every document stored under the given primary keys in one commit.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemove(cmd, opts, args)
		},
	}
}

func runRemove(cmd *cobra.Command, opts *rootOptions, keys []string) error {
	docs, closeFn, err := opts.openDocuments()
	if err != nil {
		return err
	}
	defer func() { _ = closeFn() }()

	ctx := cmd.Context()
	for _, key := range keys {
		if err := docs.RemoveDocument(ctx, key); err != nil {
			return err
		}
	}
	if err := docs.Store(ctx, false); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Removed %d key(s) from %s\n", len(keys), opts.indexDir)
	return nil
}

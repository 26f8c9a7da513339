package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/txindex/internal/index"
)

func newUnlockCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unlock",
		Short: "Remove a write lock left by a crashed writer",
		Long: `Remove the index write lock if no live writer holds it.

A lock held by a running process is never removed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUnlock(cmd, opts)
		},
	}
}

func runUnlock(cmd *cobra.Command, opts *rootOptions) error {
	reg := index.NewRegistry(opts.indexOptions())
	defer func() { _ = reg.Close() }()

	removed, err := reg.ClearOrphanLock(opts.indexDir)
	if err != nil {
		return err
	}
	if removed {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Removed orphaned lock in %s\n", opts.indexDir)
	} else {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "No lock file in %s\n", opts.indexDir)
	}
	return nil
}

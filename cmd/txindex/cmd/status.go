package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/txindex/internal/index"
	"github.com/Aman-CERP/txindex/internal/ui"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var (
		jsonOutput bool
		noOpen     bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index health and status",
		Long: `Report whether the index is empty, valid, being written or invalid.

Without --no-open the index is opened to confirm it is readable and to
count its documents.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, opts, jsonOutput, !noOpen)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&noOpen, "no-open", false, "Check files only, do not open the index")

	return cmd
}

func runStatus(cmd *cobra.Command, opts *rootOptions, jsonOutput, tryOpen bool) error {
	docs, closeFn, err := opts.openDocuments()
	if err != nil {
		return err
	}
	defer func() { _ = closeFn() }()

	ctx := cmd.Context()
	idx := docs.Index()
	info := ui.StatusInfo{Dir: opts.indexDir}

	st, err := idx.Status(ctx, tryOpen)
	info.Status = strings.ToLower(st.String())
	if err != nil {
		info.Error = err.Error()
	}
	if st == index.StatusValid && tryOpen {
		n, err := index.Count(ctx, idx, query.NewMatchAllQuery())
		if err != nil {
			info.Error = err.Error()
		}
		info.Documents = uint64(n)
	}

	info.Size, info.LastModified = dirStats(opts.indexDir)
	if _, err := os.Stat(filepath.Join(opts.indexDir, index.LockFileName)); err == nil {
		info.LockFile = true
	}

	out := cmd.OutOrStdout()
	renderer := ui.NewStatusRenderer(out, !ui.UseColor(out))
	if jsonOutput {
		return renderer.RenderJSON(info)
	}
	return renderer.Render(info)
}

// dirStats returns the total size and the newest modification time of the
// files under path.
func dirStats(path string) (int64, time.Time) {
	var (
		size   int64
		newest time.Time
	)
	_ = filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			size += info.Size()
			if info.ModTime().After(newest) {
				newest = info.ModTime()
			}
		}
		return nil
	})
	return size, newest
}

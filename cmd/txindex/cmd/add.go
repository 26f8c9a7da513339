package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/txindex/internal/docindex"
	ixerrors "github.com/Aman-CERP/txindex/internal/errors"
)

// documentRecord is one input document, one JSON object per line.
type documentRecord struct {
	PrimaryKey string              `json:"primary_key"`
	Fields     map[string][]string `json:"fields"`
	// Hidden fields are indexed but never returned by queries.
	Hidden []string `json:"hidden,omitempty"`
	// CaseSensitive fields get no lowercase companion.
	CaseSensitive []string `json:"case_sensitive,omitempty"`
}

func (r documentRecord) toDocument() *docindex.IndexDocument {
	hidden := toSet(r.Hidden)
	exact := toSet(r.CaseSensitive)

	doc := docindex.NewIndexDocument(r.PrimaryKey)
	for key, values := range r.Fields {
		_, isHidden := hidden[key]
		_, isExact := exact[key]
		for _, v := range values {
			doc.AddPair(key, v, !isExact, !isHidden)
		}
	}
	return doc
}

func toSet(keys []string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

func newAddCmd(opts *rootOptions) *cobra.Command {
	var (
		file     string
		optimize bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add documents from JSON lines",
		Long: `Read documents as JSON lines and store them in one commit.

Each line is an object:
  {"primary_key": "k", "fields": {"name": ["Foo"]}, "hidden": [], "case_sensitive": []}

A document replaces every committed document with the same primary key.`,
		Example: `  # Add documents from a file
  txindex add --file docs.jsonl

  # Add from stdin and merge segments afterwards
  cat docs.jsonl | txindex add --optimize`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAdd(cmd, opts, file, optimize || opts.cfg.Index.OptimizeOnStore)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "-", "JSON lines input, - for stdin")
	cmd.Flags().BoolVar(&optimize, "optimize", false, "Merge index segments after storing")

	return cmd
}

func runAdd(cmd *cobra.Command, opts *rootOptions, file string, optimize bool) error {
	in := cmd.InOrStdin()
	if file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return ixerrors.IOError("failed to open input", err).WithDetail("path", file)
		}
		defer func() { _ = f.Close() }()
		in = f
	}

	docs, closeFn, err := opts.openDocuments()
	if err != nil {
		return err
	}
	defer func() { _ = closeFn() }()

	ctx := cmd.Context()
	dec := json.NewDecoder(in)
	count := 0
	for {
		var rec documentRecord
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return ixerrors.New(ixerrors.ErrCodeInvalidInput, fmt.Sprintf("document %d is not valid JSON", count+1), err)
		}
		if err := docs.AddDocument(ctx, rec.toDocument()); err != nil {
			return err
		}
		count++
	}

	if err := docs.Store(ctx, optimize); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Stored %d document(s) in %s\n", count, opts.indexDir)
	return nil
}

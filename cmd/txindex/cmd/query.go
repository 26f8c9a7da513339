package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/txindex/internal/docindex"
	"github.com/Aman-CERP/txindex/internal/ui"
)

func newQueryCmd(opts *rootOptions) *cobra.Command {
	var (
		field      string
		kind       string
		load       []string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "query <value>",
		Short: "Find documents by field value",
		Long: `Find committed documents whose field matches a value.

Kinds:
  exact    whole value
  prefix   value starts with the query
  iprefix  case-insensitive prefix
  regexp   whole value matches the pattern
  iregexp  case-insensitive regexp
  camel    camel-case humps, FoBa matches FooBar
  icamel   camel-case humps or case-insensitive prefix`,
		Example: `  txindex query --field name --kind prefix Foo
  txindex query --field name --kind icamel fb --load name --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, opts, field, kind, args[0], load, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&field, "field", "", "Field to match (required)")
	cmd.Flags().StringVar(&kind, "kind", "exact", "Query kind")
	cmd.Flags().StringSliceVar(&load, "load", nil, "Fields to return (default all)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	_ = cmd.MarkFlagRequired("field")

	return cmd
}

func runQuery(cmd *cobra.Command, opts *rootOptions, field, kindName, value string, load []string, jsonOutput bool) error {
	kind, err := docindex.ParseQueryKind(kindName)
	if err != nil {
		return err
	}

	docs, closeFn, err := opts.openDocuments()
	if err != nil {
		return err
	}
	defer func() { _ = closeFn() }()

	found, err := docs.Query(cmd.Context(), field, value, kind, load...)
	if err != nil {
		return err
	}

	results := make([]ui.Result, 0, len(found))
	for _, doc := range found {
		res := ui.Result{PrimaryKey: doc.PrimaryKey(), Fields: make(map[string][]string)}
		for _, k := range doc.Keys() {
			res.Fields[k] = doc.Values(k)
		}
		results = append(results, res)
	}

	out := cmd.OutOrStdout()
	renderer := ui.NewResultRenderer(out, !ui.UseColor(out))
	if jsonOutput {
		return renderer.RenderJSON(results)
	}
	return renderer.Render(results)
}

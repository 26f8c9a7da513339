package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Result is one document returned by a query, as key to values.
type Result struct {
	PrimaryKey string              `json:"primary_key"`
	Fields     map[string][]string `json:"fields"`
}

// ResultRenderer displays query results.
type ResultRenderer struct {
	out    io.Writer
	styles Styles
}

// NewResultRenderer creates a result renderer.
func NewResultRenderer(out io.Writer, noColor bool) *ResultRenderer {
	return &ResultRenderer{out: out, styles: GetStyles(noColor)}
}

// Render prints each result with its fields in key order.
func (r *ResultRenderer) Render(results []Result) error {
	if len(results) == 0 {
		_, _ = fmt.Fprintln(r.out, r.styles.Dim.Render("no documents found"))
		return nil
	}

	for i, res := range results {
		if i > 0 {
			_, _ = fmt.Fprintln(r.out)
		}
		_, _ = fmt.Fprintln(r.out, r.styles.Key.Render(res.PrimaryKey))

		keys := make([]string, 0, len(res.Fields))
		for k := range res.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			_, _ = fmt.Fprintf(r.out, "  %s %s\n", r.styles.Label.Render(k+":"), strings.Join(res.Fields[k], ", "))
		}
	}
	_, _ = fmt.Fprintf(r.out, "\n%s\n", r.styles.Dim.Render(fmt.Sprintf("%d document(s)", len(results))))
	return nil
}

// RenderJSON outputs results as a JSON array.
func (r *ResultRenderer) RenderJSON(results []Result) error {
	if results == nil {
		results = []Result{}
	}
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(results)
}

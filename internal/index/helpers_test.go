package index

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

// newTestRegistry returns a registry with its own metrics registry and a
// short lock timeout, closed when the test ends.
func newTestRegistry(t *testing.T, tweak ...func(*Options)) *Registry {
	t.Helper()
	opts := DefaultOptions()
	opts.LockTimeout = 200 * time.Millisecond
	opts.Registerer = prometheus.NewRegistry()
	for _, fn := range tweak {
		fn(&opts)
	}
	reg := NewRegistry(opts)
	t.Cleanup(func() { _ = reg.Close() })
	return reg
}

func openIndex(t *testing.T, reg *Registry, dir string) *Index {
	t.Helper()
	idx, err := reg.Open(dir)
	require.NoError(t, err)
	return idx
}

// nameDoc turns a name into a document whose ID and "name" field are the name.
var nameDoc = ConvertorFunc[string, *Document](func(name string) (*Document, error) {
	return NewDocument(name).Add("name", name), nil
})

// namePrefix turns a prefix into a delete query on the "name" field.
var namePrefix = ConvertorFunc[string, query.Query](func(prefix string) (query.Query, error) {
	return prefixQuery(prefix), nil
})

var docName = ConvertorFunc[*Document, string](func(d *Document) (string, error) {
	return d.Get("name"), nil
})

func prefixQuery(prefix string) query.Query {
	q := query.NewPrefixQuery(prefix)
	q.SetField("name")
	return q
}

func adds(names ...string) Changes {
	return NewChanges[string, string](names, nil, nameDoc, nil)
}

func deletes(prefixes ...string) Changes {
	return NewChanges[string, string](nil, prefixes, nil, namePrefix)
}

func queryNames(t *testing.T, idx *Index, prefix string) []string {
	t.Helper()
	var out []string
	require.NoError(t, Query(context.Background(), idx, &out, docName, AllFields, prefixQuery(prefix)))
	return out
}

func requireStatus(t *testing.T, idx *Index, tryOpen bool, want Status) {
	t.Helper()
	got, err := idx.Status(context.Background(), tryOpen)
	require.NoError(t, err)
	require.Equal(t, want, got, "status (tryOpen=%v)", tryOpen)
}

func seq(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%03d", prefix, i)
	}
	return out
}

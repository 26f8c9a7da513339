package docindex

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/blevesearch/bleve/v2/search/query"

	ixerrors "github.com/Aman-CERP/txindex/internal/errors"
	"github.com/Aman-CERP/txindex/internal/index"
)

var (
	documentConvertor = index.ConvertorFunc[*IndexDocument, *index.Document](toDocument)
	resultConvertor   = index.ConvertorFunc[*index.Document, *IndexDocument](fromDocument)
	removeConvertor   = index.ConvertorFunc[string, query.Query](func(pk string) (query.Query, error) {
		return termQuery(primaryKeyField, pk), nil
	})
)

// DocumentIndex buffers document changes in a DocumentCache and commits
// them through an index.Index.
type DocumentIndex struct {
	idx    *index.Index
	cache  DocumentCache
	logger *slog.Logger

	// mu serialises cache flushes against Store so a spill cannot
	// interleave with a commit.
	mu sync.Mutex

	dirtyMu sync.Mutex
	dirty   map[string]struct{}
}

// New creates a DocumentIndex over idx. A nil cache buffers in memory
// without limit.
func New(idx *index.Index, cache DocumentCache, logger *slog.Logger) *DocumentIndex {
	if cache == nil {
		cache = NewMemoryCache()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentIndex{
		idx:    idx,
		cache:  cache,
		logger: logger.With(slog.String("dir", idx.Dir())),
		dirty:  make(map[string]struct{}),
	}
}

// Index returns the underlying index.
func (d *DocumentIndex) Index() *index.Index {
	return d.idx
}

// AddDocument buffers doc, replacing whatever is committed, spilled or
// buffered under its primary key once stored.
func (d *DocumentIndex) AddDocument(ctx context.Context, doc *IndexDocument) error {
	if doc == nil || doc.PrimaryKey() == "" {
		return ixerrors.UsageError(ixerrors.ErrCodeInvalidInput, "document has no primary key")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cache.Add(doc) {
		return d.spillLocked(ctx)
	}
	return nil
}

// RemoveDocument buffers removal of every document with primaryKey.
func (d *DocumentIndex) RemoveDocument(ctx context.Context, primaryKey string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cache.Remove(primaryKey) {
		return d.spillLocked(ctx)
	}
	return nil
}

// Store commits everything buffered so far, including spilled changes.
func (d *DocumentIndex) Store(ctx context.Context, optimize bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	adds, removes := d.cache.Drain()
	gen, err := d.idx.Store(ctx, changes(adds, removes), optimize)
	if err != nil {
		return err
	}
	d.logger.Debug("documents_stored",
		slog.Int("adds", len(adds)),
		slog.Int("removes", len(removes)),
		slog.Int64("generation", gen))
	return nil
}

// spillLocked moves the buffer into the index transaction, which this
// DocumentIndex owns until Store. The documents stay invisible until then.
// Caller holds d.mu.
func (d *DocumentIndex) spillLocked(ctx context.Context) error {
	adds, removes := d.cache.Drain()
	if _, err := d.idx.TxAppend(ctx, changes(adds, removes)); err != nil {
		return err
	}
	d.logger.Debug("documents_spilled",
		slog.Int("adds", len(adds)),
		slog.Int("removes", len(removes)))
	return nil
}

func changes(adds []*IndexDocument, removes []string) index.Changes {
	return index.NewChanges[*IndexDocument, string](adds, removes, documentConvertor, removeConvertor)
}

// Query returns committed documents whose field matches value as kind
// describes. With fieldsToLoad only those fields are returned.
func (d *DocumentIndex) Query(ctx context.Context, field, value string, kind QueryKind, fieldsToLoad ...string) ([]*IndexDocument, error) {
	q, err := buildQuery(field, value, kind)
	if err != nil {
		return nil, ixerrors.New(ixerrors.ErrCodeInvalidQuery, "invalid query", err).
			WithDetail("field", field).
			WithDetail("kind", kind.String())
	}
	return d.run(ctx, q, fieldsToLoad)
}

// FindByPrimaryKey returns the committed documents stored under primaryKey.
func (d *DocumentIndex) FindByPrimaryKey(ctx context.Context, primaryKey string, fieldsToLoad ...string) ([]*IndexDocument, error) {
	return d.run(ctx, termQuery(primaryKeyField, primaryKey), fieldsToLoad)
}

func (d *DocumentIndex) run(ctx context.Context, q query.Query, keys []string) ([]*IndexDocument, error) {
	var out []*IndexDocument
	if err := index.Query(ctx, d.idx, &out, resultConvertor, fieldsToLoad(keys), q); err != nil {
		return nil, err
	}
	return out, nil
}

// Status reports the status of the underlying index, opening it to check.
func (d *DocumentIndex) Status(ctx context.Context) (index.Status, error) {
	return d.idx.Status(ctx, true)
}

// Close drops buffered changes and closes the underlying index.
func (d *DocumentIndex) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if adds, removes := d.cache.Drain(); len(adds)+len(removes) > 0 {
		d.logger.Warn("documents_discarded",
			slog.Int("adds", len(adds)),
			slog.Int("removes", len(removes)))
	}
	return d.idx.Close()
}

// MarkKeyDirty records that primaryKey needs reindexing.
func (d *DocumentIndex) MarkKeyDirty(primaryKey string) {
	d.dirtyMu.Lock()
	defer d.dirtyMu.Unlock()
	d.dirty[primaryKey] = struct{}{}
}

// RemoveDirtyKeys forgets the given dirty keys.
func (d *DocumentIndex) RemoveDirtyKeys(primaryKeys ...string) {
	d.dirtyMu.Lock()
	defer d.dirtyMu.Unlock()
	for _, k := range primaryKeys {
		delete(d.dirty, k)
	}
}

// DirtyKeys returns the dirty keys in sorted order.
func (d *DocumentIndex) DirtyKeys() []string {
	d.dirtyMu.Lock()
	defer d.dirtyMu.Unlock()
	keys := make([]string, 0, len(d.dirty))
	for k := range d.dirty {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

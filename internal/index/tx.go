package index

import (
	"context"
	"fmt"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
)

// transaction buffers changes until they are applied as one batch.
//
// Pending additions are also mirrored into a memory-only bleve index the
// first time a delete has to be matched against them, so delete queries
// see exactly what the committed index would after the additions.
type transaction struct {
	mu      sync.Mutex
	mapping mapping.IndexMapping
	adds    map[string]*Document
	deletes map[string]struct{}
	staged  bleve.Index
	done    bool

	// clearFirst is set when the directory was found invalid before the
	// lock was taken; the commit wipes it before applying.
	clearFirst bool
}

func newTransaction(m mapping.IndexMapping) *transaction {
	return &transaction{
		mapping: m,
		adds:    make(map[string]*Document),
		deletes: make(map[string]struct{}),
	}
}

// add buffers doc, replacing a pending document with the same ID.
func (t *transaction) add(doc *Document) error {
	if doc == nil || doc.ID == "" {
		return fmt.Errorf("document has no ID")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return bleve.ErrorIndexClosed
	}

	t.adds[doc.ID] = doc
	if t.staged != nil {
		if err := t.staged.Index(doc.ID, doc.body()); err != nil {
			return fmt.Errorf("failed to stage document %s: %w", doc.ID, err)
		}
	}
	return nil
}

// remove records the committed IDs and drops the pending additions that
// match q.
func (t *transaction) remove(ctx context.Context, committed []string, q query.Query) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return bleve.ErrorIndexClosed
	}

	for _, id := range committed {
		t.deletes[id] = struct{}{}
	}
	if len(t.adds) == 0 {
		return nil
	}

	if err := t.stageLocked(); err != nil {
		return err
	}
	ids, err := matchingIDs(ctx, t.staged, q)
	if err != nil {
		return fmt.Errorf("failed to match pending documents: %w", err)
	}
	for _, id := range ids {
		delete(t.adds, id)
		if err := t.staged.Delete(id); err != nil {
			return fmt.Errorf("failed to unstage document %s: %w", id, err)
		}
		t.deletes[id] = struct{}{}
	}
	return nil
}

func (t *transaction) stageLocked() error {
	if t.staged != nil {
		return nil
	}
	staged, err := bleve.NewMemOnly(t.mapping)
	if err != nil {
		return fmt.Errorf("failed to create staging index: %w", err)
	}
	batch := staged.NewBatch()
	for id, doc := range t.adds {
		if err := batch.Index(id, doc.body()); err != nil {
			_ = staged.Close()
			return fmt.Errorf("failed to stage document %s: %w", id, err)
		}
	}
	if err := staged.Batch(batch); err != nil {
		_ = staged.Close()
		return fmt.Errorf("failed to stage documents: %w", err)
	}
	t.staged = staged
	return nil
}

// fill writes the buffered changes into batch, deletions first.
func (t *transaction) fill(batch *bleve.Batch) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return bleve.ErrorIndexClosed
	}

	for id := range t.deletes {
		batch.Delete(id)
	}
	for id, doc := range t.adds {
		if err := batch.Index(id, doc.body()); err != nil {
			return fmt.Errorf("failed to index document %s: %w", id, err)
		}
	}
	return nil
}

// size returns the number of pending additions and deletions.
func (t *transaction) size() (adds, deletes int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.adds), len(t.deletes)
}

// discard releases the staging index. It is safe to call more than once
// and concurrently with other methods, which then fail.
func (t *transaction) discard() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return
	}
	t.done = true
	if t.staged != nil {
		_ = t.staged.Close()
		t.staged = nil
	}
	t.adds = nil
	t.deletes = nil
}

// matchingIDs returns the IDs of every document in idx matching q.
func matchingIDs(ctx context.Context, idx bleve.Index, q query.Query) ([]string, error) {
	if idx == nil {
		return nil, nil
	}
	count, err := idx.DocCount()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}

	req := bleve.NewSearchRequestOptions(q, int(count), 0, false)
	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(res.Hits))
	for i, hit := range res.Hits {
		ids[i] = hit.ID
	}
	return ids, nil
}

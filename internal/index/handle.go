package index

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/index/scorch"
	"github.com/blevesearch/bleve/v2/index/scorch/mergeplan"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"

	ixerrors "github.com/Aman-CERP/txindex/internal/errors"
	"github.com/Aman-CERP/txindex/internal/locks"
)

// handle is the per-directory state shared by every Index the Registry
// opens on that directory.
type handle struct {
	dir     string
	reg     *Registry
	logger  *slog.Logger
	mapping mapping.IndexMapping
	locks   *locks.RecordOwnerLockFactory

	// mu guards the idx pointer. Opening, closing and applying a batch hold
	// it for writing; searches only read the pointer and run outside it.
	mu  sync.RWMutex
	idx bleve.Index

	// writeMu serialises store, commit and rollback, and keeps verify and
	// eviction from closing the index under a batch.
	writeMu sync.Mutex

	// epoch changes on every Close; a writer that sees it move aborts.
	epoch      atomic.Uint64
	generation atomic.Int64
	touches    atomic.Uint64

	validMu sync.Mutex
	valid   *bool

	watchMu sync.Mutex
	watcher *dirWatcher
}

func newHandle(reg *Registry, dir string) *handle {
	h := &handle{
		dir:     dir,
		reg:     reg,
		logger:  reg.logger.With(slog.String("dir", dir)),
		mapping: newMapping(),
	}
	h.locks = locks.NewRecordOwnerLockFactory(dir, h.logger)
	h.startWatcher()
	return h
}

// touch marks the handle as recently used and registers it with the
// reader cache. It must not be called with h.mu held.
func (h *handle) touch() {
	h.touches.Add(1)
	h.reg.readers.Put(h.dir, h)
}

// Evicted implements cache.Evictable. The reader is closed asynchronously
// and only if nobody used the handle again in the meantime.
func (h *handle) Evicted() {
	seen := h.touches.Load()
	h.reg.metrics.Evictions.Inc()
	go func() {
		h.writeMu.Lock()
		defer h.writeMu.Unlock()
		if h.touches.Load() != seen || h.locks.HasLocks() {
			return
		}
		if err := h.closeIndex(); err != nil {
			h.logger.LogAttrs(context.Background(), slog.LevelWarn, "index_evict_close_failed",
				ixerrors.LogAttrs(err)...)
			return
		}
		h.logger.Debug("index_reader_evicted")
	}()
}

// isOpen reports whether the bleve index is currently open.
func (h *handle) isOpen() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.idx != nil
}

// acquire returns the committed index, opening it if needed. A nil index
// means nothing has been committed or the directory cannot be read. The
// index is used outside h.mu and may be closed underneath the caller; see
// withIndex.
func (h *handle) acquire() (bleve.Index, error) {
	h.touch()
	h.mu.RLock()
	idx := h.idx
	h.mu.RUnlock()
	if idx != nil {
		return idx, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.idx == nil {
		idx, err := h.openLocked()
		if err != nil || idx == nil {
			return nil, err
		}
		h.idx = idx
	}
	return h.idx, nil
}

// maxReopens bounds how often withIndex chases an index that keeps being
// closed underneath it.
const maxReopens = 3

// withIndex runs fn on the committed index without holding h.mu, so reads
// proceed while a batch is applied. Bleve itself keeps a search and a
// Close apart; when the index was closed first fn runs again on the
// reopened one. fn gets nil when there is nothing committed.
func (h *handle) withIndex(fn func(bleve.Index) error) error {
	for attempt := 0; ; attempt++ {
		idx, err := h.acquire()
		if err != nil {
			return err
		}
		err = fn(idx)
		if idx == nil || !errors.Is(err, bleve.ErrorIndexClosed) || attempt == maxReopens {
			return err
		}
	}
}

// openLocked opens the committed index without creating or repairing
// anything. Caller holds h.mu for writing.
func (h *handle) openLocked() (bleve.Index, error) {
	if !hasMeta(h.dir) {
		return nil, nil
	}
	if err := checkIntegrity(h.dir); err != nil {
		h.logger.Warn("index_unreadable", slog.String("error", err.Error()))
		return nil, nil
	}

	idx, err := h.openExisting()
	if err != nil {
		if isCorruptionError(err) {
			h.logger.Warn("index_unreadable", slog.String("error", err.Error()))
			return nil, nil
		}
		return nil, ixerrors.New(ixerrors.ErrCodeIndexOpen, "failed to open index", err).
			WithDetail("dir", h.dir)
	}
	h.startWatcher()
	return idx, nil
}

func (h *handle) openExisting() (bleve.Index, error) {
	timeout := h.reg.opts.OpenTimeout
	if timeout <= 0 {
		return bleve.Open(h.dir)
	}
	return bleve.OpenUsing(h.dir, map[string]interface{}{
		"bolt_timeout": timeout.String(),
	})
}

// writableLocked returns an index ready for a batch, clearing the
// directory first when clear is set or its contents are damaged. Caller
// holds h.mu for writing and the write lock.
func (h *handle) writableLocked(clear bool) (bleve.Index, error) {
	if h.idx != nil && !clear {
		return h.idx, nil
	}

	reason := "stale write lock"
	if !clear {
		if err := checkIntegrity(h.dir); err != nil {
			clear, reason = true, err.Error()
		}
	}
	if clear {
		if err := h.clearLocked(reason); err != nil {
			return nil, err
		}
	}

	if hasMeta(h.dir) {
		idx, err := h.openExisting()
		if err == nil {
			h.idx = idx
			return idx, nil
		}
		if !isCorruptionError(err) {
			return nil, ixerrors.New(ixerrors.ErrCodeIndexOpen, "failed to open index", err).
				WithDetail("dir", h.dir)
		}
		h.logger.Warn("index_open_failed", slog.String("error", err.Error()))
		if err := h.clearLocked(err.Error()); err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(h.dir, 0755); err != nil {
		return nil, ixerrors.New(ixerrors.ErrCodeFilePermission, "failed to create index directory", err)
	}
	idx, err := bleve.New(h.dir, h.mapping)
	if err != nil {
		return nil, ixerrors.New(ixerrors.ErrCodeIndexOpen, "failed to create index", err).
			WithDetail("dir", h.dir)
	}
	h.idx = idx
	h.startWatcher()
	return idx, nil
}

func (h *handle) clearLocked(reason string) error {
	if h.idx != nil {
		_ = h.idx.Close()
		h.idx = nil
	}
	if err := clearDir(h.dir); err != nil {
		return ixerrors.New(ixerrors.ErrCodeCorruptIndex, "index is invalid and cannot be cleared", err).
			WithDetail("dir", h.dir)
	}
	h.logger.Info("index_cleared", slog.String("reason", reason))
	return nil
}

// search runs q against the committed index. A nil result means there is
// nothing committed to search.
func (h *handle) search(ctx context.Context, q query.Query, fields FieldSelector) (search.DocumentMatchCollection, error) {
	var hits search.DocumentMatchCollection
	err := h.withIndex(func(idx bleve.Index) error {
		hits = nil
		if idx == nil {
			return nil
		}
		count, err := idx.DocCount()
		if err != nil || count == 0 {
			return err
		}

		req := bleve.NewSearchRequestOptions(q, int(count), 0, false)
		req.Fields = fields.bleveFields()
		req.SortBy([]string{"_id"})
		res, err := idx.SearchInContext(ctx, req)
		if err != nil {
			return err
		}
		hits = res.Hits
		return nil
	})
	return hits, err
}

// committedIDs returns the IDs of committed documents matching q.
func (h *handle) committedIDs(ctx context.Context, q query.Query) ([]string, error) {
	var ids []string
	err := h.withIndex(func(idx bleve.Index) error {
		var err error
		ids, err = matchingIDs(ctx, idx, q)
		return err
	})
	return ids, err
}

// optimize merges the index down to a single segment.
func (h *handle) optimize(ctx context.Context) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.idx == nil {
		return nil
	}

	adv, err := h.idx.Advanced()
	if err != nil {
		return err
	}
	s, ok := adv.(*scorch.Scorch)
	if !ok {
		return nil
	}
	return s.ForceMerge(ctx, &mergeplan.SingleSegmentMergePlanOptions)
}

// closeIndex closes the bleve index; the next use reopens it.
func (h *handle) closeIndex() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.invalidate()
	if h.idx == nil {
		return nil
	}
	err := h.idx.Close()
	h.idx = nil
	return err
}

// shutdown closes everything the handle owns.
func (h *handle) shutdown() error {
	h.epoch.Add(1)
	if cleared := h.locks.ForceClearLocks(); len(cleared) > 0 {
		h.logger.Warn("index_closed_while_writing", slog.Int("locks", len(cleared)))
	}
	err := h.closeIndex()

	h.watchMu.Lock()
	w := h.watcher
	h.watcher = nil
	h.watchMu.Unlock()
	if w != nil {
		if werr := w.Close(); werr != nil && err == nil {
			err = werr
		}
	}
	return err
}

func (h *handle) startWatcher() {
	if !h.reg.opts.Watch {
		return
	}
	h.watchMu.Lock()
	defer h.watchMu.Unlock()
	if h.watcher != nil {
		return
	}
	if _, err := os.Stat(h.dir); err != nil {
		return
	}
	w, err := watchDir(h.dir, h.logger, func(name string) {
		h.logger.Debug("index_changed_externally", slog.String("file", name))
		h.invalidate()
	})
	if err != nil {
		h.logger.Warn("index_watch_failed", slog.String("error", err.Error()))
		return
	}
	h.watcher = w
}

func (h *handle) invalidate() {
	h.validMu.Lock()
	h.valid = nil
	h.validMu.Unlock()
}

func (h *handle) cachedValidity() (bool, bool) {
	h.validMu.Lock()
	defer h.validMu.Unlock()
	if h.valid == nil {
		return false, false
	}
	return *h.valid, true
}

func (h *handle) setValidity(v bool) {
	h.validMu.Lock()
	h.valid = &v
	h.validMu.Unlock()
}

// orphanedLock reports whether a lock file is on disk that no live writer
// holds.
func (h *handle) orphanedLock() (bool, error) {
	if h.locks.IsHeld(lockName) {
		return false, nil
	}
	return h.reg.opts.Probe.Orphaned(h.locks.Path(lockName))
}

// status derives the directory status. See Index.Status.
func (h *handle) status(ctx context.Context, tryOpen bool) (Status, error) {
	s, err := h.deriveStatus(ctx, tryOpen)
	if err == nil {
		h.reg.metrics.StatusProbes.WithLabelValues(s.String()).Inc()
	}
	return s, err
}

func (h *handle) deriveStatus(ctx context.Context, tryOpen bool) (Status, error) {
	if h.locks.IsHeld(lockName) {
		return StatusWriting, nil
	}

	lockPath := h.locks.Path(lockName)
	if _, err := os.Stat(lockPath); err == nil {
		orphaned, err := h.reg.opts.Probe.Orphaned(lockPath)
		if err != nil {
			return StatusInvalid, ixerrors.New(ixerrors.ErrCodeLockFile, "failed to probe write lock", err).
				WithDetail("path", lockPath)
		}
		if orphaned {
			return StatusInvalid, nil
		}
		return StatusWriting, nil
	}

	if !hasMeta(h.dir) {
		empty, err := isEmptyDir(h.dir)
		if err != nil {
			return StatusInvalid, ixerrors.IOError("failed to inspect index directory", err)
		}
		if empty {
			return StatusEmpty, nil
		}
		return StatusInvalid, nil
	}

	if !tryOpen {
		return StatusValid, nil
	}
	if valid, ok := h.cachedValidity(); ok {
		return statusOf(valid), nil
	}

	if err := ctx.Err(); err != nil {
		return StatusInvalid, err
	}
	valid := h.verify()
	h.setValidity(valid)
	return statusOf(valid), nil
}

// verify closes the index, checks the files on disk and proves the index
// reopens and can be read. Reopening matters: damage to a segment the open
// index already mapped is otherwise invisible to it.
func (h *handle) verify() bool {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.idx != nil {
		if err := h.idx.Close(); err != nil {
			h.logger.Warn("index_close_failed", slog.String("error", err.Error()))
		}
		h.idx = nil
	}
	if err := checkIntegrity(h.dir); err != nil {
		h.logger.Warn("index_corrupted", slog.String("error", err.Error()))
		return false
	}

	idx, err := h.openExisting()
	if err != nil {
		h.logger.Warn("index_corrupted", slog.String("error", err.Error()))
		return false
	}
	if _, err := idx.DocCount(); err != nil {
		h.logger.Warn("index_corrupted", slog.String("error", err.Error()))
		_ = idx.Close()
		return false
	}
	h.idx = idx
	h.startWatcher()
	return true
}

func statusOf(valid bool) Status {
	if valid {
		return StatusValid
	}
	return StatusInvalid
}

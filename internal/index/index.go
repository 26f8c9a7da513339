package index

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"syscall"
	"time"

	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/google/uuid"

	ixerrors "github.com/Aman-CERP/txindex/internal/errors"
	"github.com/Aman-CERP/txindex/internal/locks"
)

var errLockBusy = errors.New("write lock is held by another writer")

// writeMode says what a write does with the index's transaction.
type writeMode int

const (
	// modeCommit applies the changes and any open transaction.
	modeCommit writeMode = iota
	// modeBegin opens a transaction; finding one open is a usage error.
	modeBegin
	// modeAppend adds to the open transaction, opening one if needed.
	modeAppend
)

// Index is one caller's view of an index directory. It owns at most one
// open transaction; the directory's reader and writer are shared with
// every other Index on the same directory.
type Index struct {
	h      *handle
	lock   *locks.Lock
	logger *slog.Logger

	mu    sync.Mutex
	tx    *transaction
	state TxState
}

func newIndex(h *handle) *Index {
	owner := uuid.NewString()
	return &Index{
		h:      h,
		lock:   h.locks.MakeOwnedLock(lockName, owner),
		logger: h.logger.With(slog.String("owner", owner)),
	}
}

// Dir returns the absolute index directory.
func (i *Index) Dir() string {
	return i.h.dir
}

// TxState returns the state of this index's transaction.
func (i *Index) TxState() TxState {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// Store applies changes and commits them as one batch, together with any
// transaction this index has open. It returns the new commit generation.
// With optimize set the index is merged down to one segment afterwards.
func (i *Index) Store(ctx context.Context, changes Changes, optimize bool) (int64, error) {
	start := time.Now()
	defer func() {
		i.h.reg.metrics.StoreDuration.Observe(time.Since(start).Seconds())
	}()
	return i.write(ctx, changes, modeCommit, optimize)
}

// TxStore buffers changes in this index's transaction, opening one if
// needed. The changes stay invisible to queries until Commit. It returns
// the generation the commit will produce. Calling it with a transaction
// already open still buffers the changes but is reported as nested use.
func (i *Index) TxStore(ctx context.Context, changes Changes) (int64, error) {
	return i.write(ctx, changes, modeBegin, false)
}

// TxAppend is TxStore for a caller that owns the open transaction and
// keeps adding to it, as a spilling buffer does.
func (i *Index) TxAppend(ctx context.Context, changes Changes) (int64, error) {
	return i.write(ctx, changes, modeAppend, false)
}

// Commit applies the open transaction. Without one it logs a warning and
// returns nil.
func (i *Index) Commit(ctx context.Context) error {
	h := i.h
	if !i.hasTx() {
		i.usageWarning("commit_without_transaction", ixerrors.ErrCodeNoTransaction)
		return nil
	}

	epoch := h.epoch.Load()
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	i.mu.Lock()
	tx := i.tx
	i.mu.Unlock()
	if tx == nil {
		return closedError(h.dir)
	}

	gen, err := i.apply(ctx, tx, epoch, false)
	if err != nil {
		i.abort(ctx, tx, err)
		return err
	}
	i.finish(tx, TxCommitted)
	i.releaseLock()
	i.logger.Debug("transaction_committed", slog.Int64("generation", gen))
	return nil
}

// Rollback discards the open transaction. Without one it logs a warning
// and returns nil.
func (i *Index) Rollback() error {
	h := i.h
	if !i.hasTx() {
		i.usageWarning("rollback_without_transaction", ixerrors.ErrCodeNoTransaction)
		return nil
	}

	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	i.mu.Lock()
	tx := i.tx
	i.mu.Unlock()
	if tx == nil {
		return nil
	}

	adds, deletes := tx.size()
	i.finish(tx, TxRolledBack)
	i.releaseLock()
	h.invalidate()
	h.reg.metrics.Rollbacks.Inc()
	i.logger.Debug("transaction_rolled_back",
		slog.Int("adds", adds),
		slog.Int("deletes", deletes))
	return nil
}

// Status reports the directory status. Without tryOpen a directory with
// an index descriptor is assumed VALID; with it the descriptor is checked
// and the index is opened.
func (i *Index) Status(ctx context.Context, tryOpen bool) (Status, error) {
	return i.h.status(ctx, tryOpen)
}

// Close closes the directory's reader and writer and rolls back this
// index's transaction. A store in flight on the directory fails with
// ERR_206_INDEX_CLOSED. The index may be used again; it reopens lazily.
func (i *Index) Close() error {
	h := i.h
	h.epoch.Add(1)

	i.mu.Lock()
	tx := i.tx
	i.tx = nil
	if tx != nil {
		i.state = TxRolledBack
	}
	i.mu.Unlock()

	if tx != nil {
		tx.discard()
		h.reg.metrics.Rollbacks.Inc()
	}
	if err := i.lock.ReleaseAll(); err != nil {
		i.logger.Warn("lock_release_failed", slog.String("error", err.Error()))
	}
	return h.closeIndex()
}

func (i *Index) write(ctx context.Context, changes Changes, mode writeMode, optimize bool) (int64, error) {
	h := i.h
	commit := mode == modeCommit
	epoch := h.epoch.Load()

	orphaned, err := h.orphanedLock()
	if err != nil {
		return 0, ixerrors.New(ixerrors.ErrCodeLockFile, "failed to probe write lock", err).
			WithDetail("dir", h.dir)
	}
	if err := i.obtain(ctx); err != nil {
		return 0, err
	}

	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	if h.epoch.Load() != epoch {
		i.releaseLock()
		return 0, closedError(h.dir)
	}

	i.mu.Lock()
	tx := i.tx
	fresh := tx == nil
	if fresh {
		tx = newTransaction(h.mapping)
		tx.clearFirst = orphaned
	} else if mode == modeBegin {
		h.reg.metrics.UsageWarnings.WithLabelValues("nested_transaction").Inc()
		i.logger.Warn("nested_transaction",
			slog.String("error_code", ixerrors.ErrCodeNestedTx),
			slog.String("stack", string(debug.Stack())))
	}
	i.mu.Unlock()

	if err := i.collect(ctx, tx, changes, epoch); err != nil {
		i.abort(ctx, tx, err)
		return 0, err
	}

	if !commit {
		i.mu.Lock()
		i.tx = tx
		i.state = TxOpen
		i.mu.Unlock()
		if !fresh {
			// The open transaction already holds a level of the lock.
			i.releaseLock()
		}
		h.invalidate()
		return h.generation.Load() + 1, nil
	}

	gen, err := i.apply(ctx, tx, epoch, optimize)
	if err != nil {
		i.abort(ctx, tx, err)
		return 0, err
	}
	i.finish(tx, TxCommitted)
	i.releaseLock()
	if !fresh {
		i.releaseLock()
	}
	return gen, nil
}

// collect converts changes into tx, deletions first.
func (i *Index) collect(ctx context.Context, tx *transaction, changes Changes, epoch uint64) error {
	h := i.h
	if changes.deletes != nil {
		for q, err := range changes.deletes {
			if err != nil {
				return ixerrors.New(ixerrors.ErrCodeConversionFailed, "failed to convert delete query", err)
			}
			if h.epoch.Load() != epoch {
				return closedError(h.dir)
			}
			if q == nil {
				continue
			}
			ids, err := h.committedIDs(ctx, q)
			if err == nil {
				err = tx.remove(ctx, ids, q)
			}
			if err != nil {
				return i.writeError(epoch, "failed to resolve delete query", err)
			}
		}
	}

	if changes.adds != nil {
		for doc, err := range changes.adds {
			if err != nil {
				return ixerrors.New(ixerrors.ErrCodeConversionFailed, "failed to convert document", err)
			}
			if h.epoch.Load() != epoch {
				return closedError(h.dir)
			}
			if doc == nil {
				continue
			}
			if err := tx.add(doc); err != nil {
				return i.writeError(epoch, "failed to buffer document", err)
			}
		}
	}

	if h.epoch.Load() != epoch {
		return closedError(h.dir)
	}
	return nil
}

// apply commits tx as a single batch. Caller holds h.writeMu. h.mu is held
// only while the index is opened or cleared; readers keep searching the
// committed snapshot while the batch runs, and a Close waits for it inside
// bleve.
func (i *Index) apply(ctx context.Context, tx *transaction, epoch uint64, optimize bool) (int64, error) {
	h := i.h

	h.mu.Lock()
	if h.epoch.Load() != epoch {
		h.mu.Unlock()
		return 0, closedError(h.dir)
	}
	idx, err := h.writableLocked(tx.clearFirst)
	h.mu.Unlock()
	if err != nil {
		return 0, err
	}
	tx.clearFirst = false

	batch := idx.NewBatch()
	if err := tx.fill(batch); err != nil {
		return 0, i.writeError(epoch, "failed to prepare batch", err)
	}
	if batch.Size() > 0 {
		if err := idx.Batch(batch); err != nil {
			return 0, i.writeError(epoch, "failed to apply batch", err)
		}
	}
	gen := h.generation.Add(1)

	h.invalidate()
	h.reg.metrics.Commits.Inc()
	h.touch()

	if optimize {
		if err := h.optimize(ctx); err != nil {
			i.logger.Warn("index_optimize_failed", slog.String("error", err.Error()))
		}
	}
	return gen, nil
}

// obtain takes one level of the write lock, waiting up to LockTimeout for
// another writer.
func (i *Index) obtain(ctx context.Context) error {
	h := i.h
	ctx, cancel := context.WithTimeout(ctx, h.reg.opts.LockTimeout)
	defer cancel()

	cfg := ixerrors.LockRetryConfig()
	cfg.ShouldRetry = func(err error) bool { return errors.Is(err, errLockBusy) }

	err := ixerrors.Retry(ctx, cfg, func() error {
		ok, err := i.lock.Obtain()
		if err != nil {
			return err
		}
		if !ok {
			return errLockBusy
		}
		return nil
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ixerrors.New(ixerrors.ErrCodeLockTimeout, "timed out waiting for the write lock", err).
			WithDetail("dir", h.dir).
			WithSuggestion("Another writer holds the index; retry later or run 'txindex unlock' if it crashed")
	}
	return ixerrors.New(ixerrors.ErrCodeLockFile, "failed to obtain write lock", err).
		WithDetail("dir", h.dir)
}

func (i *Index) hasTx() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.tx != nil
}

// finish detaches tx and discards its buffers.
func (i *Index) finish(tx *transaction, state TxState) {
	i.mu.Lock()
	if i.tx == tx {
		i.tx = nil
	}
	i.state = state
	i.mu.Unlock()
	tx.discard()
}

// abort drops tx after a failed write and gives back every lock level.
func (i *Index) abort(ctx context.Context, tx *transaction, cause error) {
	adds, deletes := tx.size()
	i.finish(tx, TxRolledBack)
	if err := i.lock.ReleaseAll(); err != nil {
		i.logger.Warn("lock_release_failed", slog.String("error", err.Error()))
	}
	i.h.invalidate()
	i.h.reg.metrics.Rollbacks.Inc()
	attrs := append([]slog.Attr{
		slog.Int("adds", adds),
		slog.Int("deletes", deletes),
	}, ixerrors.LogAttrs(cause)...)
	i.logger.LogAttrs(ctx, slog.LevelWarn, "write_aborted", attrs...)
}

// releaseLock gives back one level of the write lock if this index still
// holds it; Close may already have released it.
func (i *Index) releaseLock() {
	if !i.lock.IsHeldByOwner() {
		return
	}
	if err := i.lock.Release(); err != nil {
		i.logger.Warn("lock_release_failed", slog.String("error", err.Error()))
	}
}

// writeError reports a failure during a write, preferring "closed" when
// the handle was closed underneath it.
func (i *Index) writeError(epoch uint64, msg string, err error) error {
	if i.h.epoch.Load() != epoch {
		return closedError(i.h.dir)
	}
	code := ixerrors.ErrCodeStoreFailed
	if errors.Is(err, syscall.ENOSPC) {
		code = ixerrors.ErrCodeDiskFull
	}
	return ixerrors.New(code, msg, err).WithDetail("dir", i.h.dir)
}

func (i *Index) usageWarning(kind, code string) {
	i.h.reg.metrics.UsageWarnings.WithLabelValues(kind).Inc()
	i.logger.Warn(kind, slog.String("error_code", code))
}

func closedError(dir string) error {
	return ixerrors.New(ixerrors.ErrCodeIndexClosed, "index was closed during the operation", nil).
		WithDetail("dir", dir)
}

// DeleteByID returns a delete query matching the given document IDs.
func DeleteByID(ids ...string) query.Query {
	return query.NewDocIDQuery(ids)
}

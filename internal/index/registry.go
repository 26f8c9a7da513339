package index

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/txindex/internal/cache"
	ixerrors "github.com/Aman-CERP/txindex/internal/errors"
	"github.com/Aman-CERP/txindex/internal/locks"
)

// Options configures a Registry.
type Options struct {
	// MaxOpenReaders bounds how many directories keep a bleve index open.
	MaxOpenReaders int

	// LockTimeout is how long a store waits for another writer's lock.
	LockTimeout time.Duration

	// OpenTimeout bounds how long opening an index waits for the storage
	// file lock held by another process. Zero waits forever.
	OpenTimeout time.Duration

	// Watch invalidates cached status when index files change on disk.
	Watch bool

	// Probe decides whether a lock file left on disk is stale.
	Probe locks.LockProbe

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Registerer receives the registry metrics. Nil keeps them unregistered.
	Registerer prometheus.Registerer
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		MaxOpenReaders: 400,
		LockTimeout:    10 * time.Second,
		OpenTimeout:    5 * time.Second,
		Probe:          locks.FileLockProbe{},
	}
}

// Registry owns the per-directory handles, the open reader cache and the
// metrics. Every Index on a directory opened through one Registry shares
// one handle.
type Registry struct {
	opts    Options
	logger  *slog.Logger
	metrics *Metrics
	handles *xsync.MapOf[string, *handle]
	readers *cache.LRUCache[string, *handle]
	closed  atomic.Bool
}

// NewRegistry creates a Registry. Zero-valued options fall back to
// DefaultOptions.
func NewRegistry(opts Options) *Registry {
	def := DefaultOptions()
	if opts.MaxOpenReaders <= 0 {
		opts.MaxOpenReaders = def.MaxOpenReaders
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = def.LockTimeout
	}
	if opts.Probe == nil {
		opts.Probe = def.Probe
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Registry{
		opts:    opts,
		logger:  opts.Logger,
		metrics: NewMetrics(opts.Registerer),
		handles: xsync.NewMapOf[string, *handle](),
		readers: cache.New[string, *handle](cache.MaxEntries[string, *handle](opts.MaxOpenReaders)),
	}
}

// Metrics returns the registry metrics.
func (r *Registry) Metrics() *Metrics {
	return r.metrics
}

// Open returns a new Index on dir. The directory does not need to exist;
// it is created by the first store.
func (r *Registry) Open(dir string) (*Index, error) {
	if r.closed.Load() {
		return nil, ixerrors.New(ixerrors.ErrCodeIndexClosed, "registry is closed", nil)
	}
	h, err := r.handle(dir)
	if err != nil {
		return nil, err
	}
	return newIndex(h), nil
}

func (r *Registry) handle(dir string) (*handle, error) {
	if dir == "" {
		return nil, ixerrors.UsageError(ixerrors.ErrCodeInvalidInput, "index directory is empty")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, ixerrors.New(ixerrors.ErrCodeInvalidInput, "invalid index directory", err)
	}
	h, _ := r.handles.LoadOrCompute(abs, func() *handle {
		return newHandle(r, abs)
	})
	return h, nil
}

// Handles returns the directories this registry has opened, sorted.
func (r *Registry) Handles() []string {
	var dirs []string
	r.handles.Range(func(dir string, _ *handle) bool {
		dirs = append(dirs, dir)
		return true
	})
	sort.Strings(dirs)
	return dirs
}

// OpenReaders returns the directories whose reader is cached, least
// recently used first.
func (r *Registry) OpenReaders() []string {
	return r.readers.Keys()
}

// ClearOrphanLock removes a write lock left behind by a writer that is
// gone. It returns false when there was no lock file and an error when a
// live writer holds it.
func (r *Registry) ClearOrphanLock(dir string) (bool, error) {
	h, err := r.handle(dir)
	if err != nil {
		return false, err
	}
	if h.locks.IsHeld(lockName) {
		return false, ixerrors.New(ixerrors.ErrCodeLockFile, "write lock is held by this process", nil).
			WithDetail("dir", h.dir)
	}

	path := h.locks.Path(lockName)
	orphaned, err := r.opts.Probe.Orphaned(path)
	if err != nil {
		return false, ixerrors.New(ixerrors.ErrCodeLockFile, "failed to probe write lock", err).
			WithDetail("path", path)
	}
	if !orphaned {
		if _, statErr := os.Stat(path); statErr == nil {
			return false, ixerrors.New(ixerrors.ErrCodeLockFile, "write lock is held by a live writer", nil).
				WithDetail("path", path).
				WithSuggestion("Wait for the other writer to finish")
		}
		return false, nil
	}

	if err := h.locks.ClearLock(lockName); err != nil {
		return false, ixerrors.New(ixerrors.ErrCodeLockFile, "failed to remove write lock", err).
			WithDetail("path", path)
	}
	h.invalidate()
	h.logger.Info("orphan_lock_cleared", slog.String("path", path))
	return true, nil
}

// Close closes every handle concurrently. Indexes opened from the
// registry must not be used afterwards.
func (r *Registry) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}

	for _, dir := range r.readers.Keys() {
		r.readers.Remove(dir)
	}

	var g errgroup.Group
	r.handles.Range(func(_ string, h *handle) bool {
		g.Go(h.shutdown)
		return true
	})
	return g.Wait()
}

package locks

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

// record is the shared state behind every Lock handle of one name.
type record struct {
	owner string
	count int
	file  *flock.Flock
}

// RecordOwnerLockFactory hands out named locks rooted in one directory.
// It is safe for concurrent use.
type RecordOwnerLockFactory struct {
	dir    string
	logger *slog.Logger

	mu      sync.Mutex
	records map[string]*record
}

// NewRecordOwnerLockFactory creates a factory whose lock files live in dir.
// The directory is created on the first successful Obtain.
func NewRecordOwnerLockFactory(dir string, logger *slog.Logger) *RecordOwnerLockFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordOwnerLockFactory{
		dir:     dir,
		logger:  logger,
		records: make(map[string]*record),
	}
}

// Dir returns the directory holding the lock files.
func (f *RecordOwnerLockFactory) Dir() string {
	return f.dir
}

// Path returns the lock file path for name.
func (f *RecordOwnerLockFactory) Path(name string) string {
	return filepath.Join(f.dir, name)
}

// MakeLock returns a handle for name owned by a fresh owner token.
func (f *RecordOwnerLockFactory) MakeLock(name string) *Lock {
	return f.MakeOwnedLock(name, uuid.NewString())
}

// MakeOwnedLock returns a handle for name owned by owner. Handles that share
// an owner re-enter each other's lock.
func (f *RecordOwnerLockFactory) MakeOwnedLock(name, owner string) *Lock {
	return &Lock{factory: f, name: name, owner: owner}
}

// IsHeld reports whether name is held by anyone in this process.
func (f *RecordOwnerLockFactory) IsHeld(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.records[name]
	return ok
}

// Owner returns the owner token currently holding name.
func (f *RecordOwnerLockFactory) Owner(name string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[name]
	if !ok {
		return "", false
	}
	return rec.owner, true
}

// HasLocks reports whether any lock is held.
func (f *RecordOwnerLockFactory) HasLocks() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records) > 0
}

// ClearLock drops the record for name whoever owns it and removes its lock
// file. A lock file with no record (left by a dead process) is removed too.
func (f *RecordOwnerLockFactory) ClearLock(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if rec, ok := f.records[name]; ok {
		f.logger.Info("lock_cleared",
			slog.String("dir", f.dir),
			slog.String("name", name),
			slog.String("owner", rec.owner),
			slog.Int("count", rec.count))
		return f.dropLocked(name, rec)
	}

	if err := os.Remove(f.Path(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

// ForceClearLocks releases every held lock and returns one handle per lock
// that was held, carrying its former owner. Names with no record are not
// reported.
func (f *RecordOwnerLockFactory) ForceClearLocks() []*Lock {
	f.mu.Lock()
	defer f.mu.Unlock()

	names := make([]string, 0, len(f.records))
	for name := range f.records {
		names = append(names, name)
	}
	sort.Strings(names)

	cleared := make([]*Lock, 0, len(names))
	for _, name := range names {
		rec := f.records[name]
		if err := f.dropLocked(name, rec); err != nil {
			f.logger.Warn("lock_clear_failed",
				slog.String("dir", f.dir),
				slog.String("name", name),
				slog.String("error", err.Error()))
		}
		cleared = append(cleared, &Lock{factory: f, name: name, owner: rec.owner})
	}
	return cleared
}

// obtain takes or re-enters name for owner.
func (f *RecordOwnerLockFactory) obtain(name, owner string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if rec, ok := f.records[name]; ok {
		if rec.owner != owner {
			return false, nil
		}
		rec.count++
		return true, nil
	}

	if err := os.MkdirAll(f.dir, 0755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}

	fl := flock.New(f.Path(name))
	acquired, err := fl.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock file: %w", err)
	}
	if !acquired {
		// Another process holds it.
		return false, nil
	}

	f.records[name] = &record{owner: owner, count: 1, file: fl}
	return true, nil
}

// release gives back one level of name. A handle that does not own the
// lock forces it open.
func (f *RecordOwnerLockFactory) release(name, owner string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.records[name]
	if !ok {
		return nil
	}

	if rec.owner != owner {
		f.logger.Warn("lock_force_released",
			slog.String("dir", f.dir),
			slog.String("name", name),
			slog.String("owner", rec.owner),
			slog.String("released_by", owner))
		return f.dropLocked(name, rec)
	}

	rec.count--
	if rec.count > 0 {
		return nil
	}
	return f.dropLocked(name, rec)
}

// releaseAll drops name if owner holds it, whatever the re-entry count.
func (f *RecordOwnerLockFactory) releaseAll(name, owner string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.records[name]
	if !ok || rec.owner != owner {
		return nil
	}
	return f.dropLocked(name, rec)
}

// dropLocked deletes the record and its lock file. Caller holds f.mu.
func (f *RecordOwnerLockFactory) dropLocked(name string, rec *record) error {
	delete(f.records, name)

	// Remove before unlocking so nobody can grab a file that is going away.
	rmErr := os.Remove(f.Path(name))
	if rmErr != nil && os.IsNotExist(rmErr) {
		rmErr = nil
	}
	if err := rec.file.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock file: %w", err)
	}
	if rmErr != nil {
		return fmt.Errorf("failed to remove lock file: %w", rmErr)
	}
	return nil
}

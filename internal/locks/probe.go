package locks

import (
	"fmt"
	"os"

	"github.com/gofrs/flock"
)

// LockProbe decides whether a lock file on disk that has no in-process
// record was left behind by a writer that is gone.
type LockProbe interface {
	// Orphaned reports true if the lock file exists and nobody holds it.
	// A missing file is not orphaned.
	Orphaned(path string) (bool, error)
}

// ProbeFunc adapts a function to LockProbe.
type ProbeFunc func(path string) (bool, error)

// Orphaned implements LockProbe.
func (f ProbeFunc) Orphaned(path string) (bool, error) { return f(path) }

// FileLockProbe probes lock files by trying their flock. A live writer keeps
// the flock for as long as it holds the lock, so a successful TryLock means
// the file is stale.
type FileLockProbe struct{}

// Orphaned implements LockProbe.
func (FileLockProbe) Orphaned(path string) (bool, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat lock file: %w", err)
	}

	fl := flock.New(path)
	acquired, err := fl.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to probe lock file: %w", err)
	}
	if !acquired {
		return false, nil
	}
	if err := fl.Unlock(); err != nil {
		return true, fmt.Errorf("failed to release probe lock: %w", err)
	}
	return true, nil
}

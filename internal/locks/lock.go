package locks

// Lock is a handle on a named lock. Handles are cheap; the state lives in
// the factory record shared by every handle of the same name.
type Lock struct {
	factory *RecordOwnerLockFactory
	name    string
	owner   string
}

// Name returns the lock name.
func (l *Lock) Name() string { return l.name }

// Owner returns the owner token this handle acts for.
func (l *Lock) Owner() string { return l.owner }

// Obtain takes the lock without blocking. It returns true when the lock is
// now held by this handle's owner, re-entering if it already was, and false
// when another owner or another process holds it.
func (l *Lock) Obtain() (bool, error) {
	return l.factory.obtain(l.name, l.owner)
}

// Release gives back one level of the lock. Releasing through a handle of a
// different owner force-unlocks it. Releasing an unheld lock is a no-op.
func (l *Lock) Release() error {
	return l.factory.release(l.name, l.owner)
}

// IsLocked reports whether the lock is held by anyone in this process.
func (l *Lock) IsLocked() bool {
	return l.factory.IsHeld(l.name)
}

// IsHeldByOwner reports whether this handle's owner holds the lock.
func (l *Lock) IsHeldByOwner() bool {
	owner, ok := l.factory.Owner(l.name)
	return ok && owner == l.owner
}

// ReleaseAll gives back every level this handle's owner holds. It does
// nothing when another owner holds the lock.
func (l *Lock) ReleaseAll() error {
	return l.factory.releaseAll(l.name, l.owner)
}

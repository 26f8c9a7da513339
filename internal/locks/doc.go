// Package locks tracks write-lock ownership per index directory.
//
// A RecordOwnerLockFactory keeps one record per lock name: the owner token
// and a re-entry count. Every Lock handle made for the same name shares that
// record, so an owner may obtain the same lock repeatedly and a handle made
// for a different owner sees it as taken. Held locks are mirrored on disk as
// flock-guarded files, which lets another process (or a later run of this
// one) tell a live writer from a crashed one through a LockProbe.
package locks

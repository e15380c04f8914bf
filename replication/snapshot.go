package replication

import (
	"bundlesync"
	"bundlesync/sequence"
)

// AuthorityRef addresses an Authority from any sequence.
type AuthorityRef struct {
	ref    sequence.WeakRef[Authority]
	runner sequence.TaskRunner
}

// IsZero reports whether the ref was never bound to an Authority.
func (r AuthorityRef) IsZero() bool { return r.ref.IsZero() || r.runner == nil }

// Alive reports whether the Authority still exists.
func (r AuthorityRef) Alive() bool { return !r.IsZero() && r.ref.Alive() }

// post runs fn with the Authority on its sequence. fn is skipped when the
// Authority is gone by the time the task runs.
func (r AuthorityRef) post(fn func(*Authority)) bool {
	if r.IsZero() {
		return false
	}
	ref := r.ref
	return r.runner.PostTask(func() {
		if a := ref.Get(); a != nil {
			fn(a)
		}
	})
}

// ReplicaSnapshot carries everything a new Replica needs: a cloned Bundle,
// the generation it was cloned at and the Authority it should track.
type ReplicaSnapshot struct {
	Bundle     bundlesync.Snapshot
	Generation uint64
	Authority  AuthorityRef
}

// DetachedSnapshot wraps a bundle snapshot that tracks no Authority. A
// Replica built from it never registers and never receives updates.
func DetachedSnapshot(b bundlesync.Snapshot) ReplicaSnapshot {
	return ReplicaSnapshot{Bundle: b}
}

// Close releases a snapshot that will not be turned into a Replica.
func (s ReplicaSnapshot) Close() error { return s.Bundle.Close() }

// Push is one Bundle update in flight to a Replica.
type Push struct {
	Bundle     bundlesync.Snapshot
	Generation uint64
}

package replication

import (
	"log/slog"

	"bundlesync"
	"bundlesync/internal/check"
	"bundlesync/sequence"
)

// Replica is a sequence-local copy of an Authority's Bundle. Every method
// must be called on the Replica's home sequence, the one its runner posts to.
type Replica struct {
	id         ReplicaID
	runner     sequence.TaskRunner
	bundle     bundlesync.Bundle
	generation uint64
	authority  AuthorityRef
	phase      Phase
	weak       *sequence.WeakFactory[Replica]

	log *slog.Logger
}

type ReplicaOption func(*Replica)

func WithReplicaLogger(l *slog.Logger) ReplicaOption {
	return func(r *Replica) { r.log = l }
}

// NewReplica adopts snap on the calling sequence, whose runner is runner. If
// snap tracks an Authority, a registration request is posted to it.
func NewReplica(runner sequence.TaskRunner, snap ReplicaSnapshot, opts ...ReplicaOption) *Replica {
	check.Assert(runner != nil, "replication.NewReplica: runner must not be nil")
	r := &Replica{
		id:         newReplicaID(),
		runner:     runner,
		bundle:     snap.Bundle.Bundle(),
		generation: snap.Generation,
		authority:  snap.Authority,
		phase:      PhaseUnregistered,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With("component", "bundle-replica", "replica", r.id)
	r.weak = sequence.NewWeakFactory(r)

	if !r.authority.IsZero() {
		r.register()
	}
	return r
}

func (r *Replica) register() {
	r.phase = r.phase.Transition(PhaseRegistering)

	id, ref, runner, generation := r.id, r.weak.Ref(), r.runner, r.generation
	if !r.authority.post(func(a *Authority) {
		a.register(id, ref, runner, generation)
	}) {
		r.log.Debug("authority sequence gone, replica stays frozen")
	}
}

func (r *Replica) onRegistered() {
	if r.phase == PhaseRegistering {
		r.phase = r.phase.Transition(PhaseRegistered)
	}
}

// Lookup resolves req against the Replica's own Bundle. It never blocks and
// may return a factory that a pending update is about to replace. The handle
// is borrowed; clone it to keep it past the next update.
func (r *Replica) Lookup(req bundlesync.Request) bundlesync.FactoryHandle {
	return r.Match(req).Handle
}

// Match is Lookup that also reports which Bundle entry answered.
func (r *Replica) Match(req bundlesync.Request) bundlesync.Match {
	if !r.phase.Live() {
		return bundlesync.Match{}
	}
	return r.bundle.Match(req)
}

// OnUpdate adopts a pushed Bundle. The Authority delivers pushes by posting
// to the Replica's sequence. A push that is not newer than the Bundle
// already held is released unapplied, so overlapping fan-outs never move a
// Replica backwards.
func (r *Replica) OnUpdate(p Push) {
	if !r.phase.Live() || p.Generation <= r.generation {
		if err := p.Bundle.Close(); err != nil {
			r.log.Error("release stale push", "err", err)
		}
		return
	}

	prev := r.bundle
	r.bundle = p.Bundle.Bundle()
	r.generation = p.Generation
	r.phase = r.phase.Transition(PhaseUpdated)
	if err := prev.Close(); err != nil {
		r.log.Error("close replaced bundle", "err", err)
	}
	r.log.Debug("bundle replaced", "generation", r.generation)
}

// Clone snapshots the Replica for a new Replica on another sequence, chained
// to the same Authority.
func (r *Replica) Clone() ReplicaSnapshot {
	return ReplicaSnapshot{
		Bundle:     r.bundle.Clone(),
		Generation: r.generation,
		Authority:  r.authority,
	}
}

// CloneWithoutIsolationFactories is Clone without the per-isolation
// factories.
func (r *Replica) CloneWithoutIsolationFactories() ReplicaSnapshot {
	return ReplicaSnapshot{
		Bundle:     r.bundle.WithoutIsolationFactories(),
		Generation: r.generation,
		Authority:  r.authority,
	}
}

func (r *Replica) ID() ReplicaID { return r.id }

func (r *Replica) Phase() Phase { return r.phase }

// Generation is the Authority generation of the Bundle in use.
func (r *Replica) Generation() uint64 { return r.generation }

// Bundle returns the Replica's Bundle. It is owned by the Replica.
func (r *Replica) Bundle() bundlesync.Bundle { return r.bundle }

// AuthorityAlive reports whether the tracked Authority still exists.
func (r *Replica) AuthorityAlive() bool { return r.authority.Alive() }

// Close tears the Replica down. If its Authority may still exist, a
// deregistration request is posted without waiting for it. Close is
// idempotent.
func (r *Replica) Close() error {
	if !r.phase.Live() {
		return nil
	}
	r.phase = r.phase.Transition(PhaseDeregistering)
	r.weak.Invalidate()

	if r.authority.Alive() {
		id := r.id
		r.authority.post(func(a *Authority) { a.RemoveReplica(id) })
	}

	err := r.bundle.Close()
	r.bundle = bundlesync.Bundle{}
	r.phase = r.phase.Transition(PhaseGone)
	r.log.Debug("replica closed")
	return err
}

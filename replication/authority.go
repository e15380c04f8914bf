package replication

import (
	"context"
	"log/slog"

	"bundlesync"
	"bundlesync/internal/check"
	"bundlesync/sequence"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "bundlesync/replication"

type registration struct {
	ref    sequence.WeakRef[Replica]
	runner sequence.TaskRunner
}

// UpdateStats summarises one Update fan-out.
type UpdateStats struct {
	Generation uint64
	// Posted counts replicas a push was enqueued for.
	Posted int
	// Pruned counts registry entries whose replica was already gone.
	Pruned int
	// Dropped counts replicas whose sequence refused the push.
	Dropped int
}

// Authority owns the canonical Bundle of a session. Every method must be
// called on the Authority's home sequence, the one its runner posts to.
type Authority struct {
	runner     sequence.TaskRunner
	bundle     bundlesync.Bundle
	generation uint64
	registry   map[ReplicaID]registration
	weak       *sequence.WeakFactory[Authority]
	closed     bool

	tracer trace.Tracer
	log    *slog.Logger
}

type AuthorityOption func(*Authority)

func WithTracer(t trace.Tracer) AuthorityOption {
	return func(a *Authority) { a.tracer = t }
}

func WithLogger(l *slog.Logger) AuthorityOption {
	return func(a *Authority) { a.log = l }
}

// NewAuthority creates an Authority that takes ownership of initial. runner
// must post to the sequence the Authority is used on.
func NewAuthority(runner sequence.TaskRunner, initial bundlesync.Bundle, opts ...AuthorityOption) *Authority {
	check.Assert(runner != nil, "replication.NewAuthority: runner must not be nil")
	a := &Authority{
		runner:     runner,
		bundle:     initial,
		generation: 1,
		registry:   make(map[ReplicaID]registration),
		tracer:     otel.Tracer(tracerName),
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.With("component", "bundle-authority")
	a.weak = sequence.NewWeakFactory(a)
	return a
}

// Update replaces the canonical Bundle with next and posts a clone of it to
// every registered Replica. Entries whose Replica is gone are pruned without
// a push. Update returns once the pushes are enqueued; delivery happens later
// on each Replica's sequence.
func (a *Authority) Update(next bundlesync.Bundle) UpdateStats {
	if a.closed {
		a.log.Debug("update after close released", "bundle", next.String())
		_ = next.Close()
		return UpdateStats{}
	}

	_, span := a.tracer.Start(context.Background(), "bundlesync.authority.update")
	defer span.End()

	prev := a.bundle
	a.bundle = next
	a.generation++
	if err := prev.Close(); err != nil {
		a.log.Error("close replaced bundle", "err", err)
	}

	stats := UpdateStats{Generation: a.generation}
	for id, reg := range a.registry {
		if !reg.ref.Alive() {
			delete(a.registry, id)
			stats.Pruned++
			continue
		}
		if !a.push(reg, next.Clone()) {
			delete(a.registry, id)
			stats.Dropped++
			continue
		}
		stats.Posted++
	}

	span.SetAttributes(
		attribute.Int64("bundlesync.generation", int64(stats.Generation)),
		attribute.Int("bundlesync.replicas.posted", stats.Posted),
		attribute.Int("bundlesync.replicas.pruned", stats.Pruned),
		attribute.Int("bundlesync.replicas.dropped", stats.Dropped),
	)
	a.log.Debug("bundle updated",
		"generation", stats.Generation,
		"posted", stats.Posted,
		"pruned", stats.Pruned,
		"dropped", stats.Dropped)
	return stats
}

// push posts snap to one replica. The snapshot is released when it cannot
// be delivered: the replica is gone, or its sequence refuses the task or
// shuts down before running it.
func (a *Authority) push(reg registration, snap bundlesync.Snapshot) bool {
	p := Push{Bundle: snap, Generation: a.generation}
	ref := reg.ref
	release := func() { _ = p.Bundle.Close() }
	return reg.runner.PostTaskWithRelease(func() {
		r := ref.Get()
		if r == nil {
			release()
			return
		}
		r.OnUpdate(p)
	}, release)
}

// AddReplica records a Replica to push updates to, replacing any previous
// entry for id.
func (a *Authority) AddReplica(id ReplicaID, ref sequence.WeakRef[Replica], runner sequence.TaskRunner) {
	check.Assert(runner != nil, "replication.Authority.AddReplica: runner must not be nil")
	if a.closed || runner == nil {
		return
	}
	a.registry[id] = registration{ref: ref, runner: runner}
	a.log.Debug("replica registered", "replica", id, "replicas", len(a.registry))
}

// RemoveReplica forgets id. Unknown ids are ignored.
func (a *Authority) RemoveReplica(id ReplicaID) {
	if _, ok := a.registry[id]; !ok {
		return
	}
	delete(a.registry, id)
	a.log.Debug("replica deregistered", "replica", id, "replicas", len(a.registry))
}

// register handles a Replica's registration request. A Replica destroyed
// before the request arrives is not recorded. A Replica cloned from an older
// generation is brought up to date right away.
func (a *Authority) register(id ReplicaID, ref sequence.WeakRef[Replica], runner sequence.TaskRunner, generation uint64) {
	if a.closed {
		return
	}
	if !ref.Alive() {
		a.log.Debug("skip registration of released replica", "replica", id)
		return
	}
	a.AddReplica(id, ref, runner)

	reg := a.registry[id]
	if !runner.PostTask(func() {
		if r := ref.Get(); r != nil {
			r.onRegistered()
		}
	}) {
		delete(a.registry, id)
		return
	}
	if generation < a.generation {
		if !a.push(reg, a.bundle.Clone()) {
			delete(a.registry, id)
		}
	}
}

// Snapshot clones the canonical Bundle for a new Replica tracking a.
func (a *Authority) Snapshot() ReplicaSnapshot {
	return a.snapshot(a.bundle.Clone())
}

// SnapshotWithoutIsolationFactories is Snapshot without the per-isolation
// factories. Later pushes to the Replica still carry them.
func (a *Authority) SnapshotWithoutIsolationFactories() ReplicaSnapshot {
	return a.snapshot(a.bundle.WithoutIsolationFactories())
}

func (a *Authority) snapshot(b bundlesync.Snapshot) ReplicaSnapshot {
	if a.closed {
		return DetachedSnapshot(b)
	}
	return ReplicaSnapshot{
		Bundle:     b,
		Generation: a.generation,
		Authority:  AuthorityRef{ref: a.weak.Ref(), runner: a.runner},
	}
}

// Lookup resolves req against the canonical Bundle. The handle is borrowed
// and is closed by the next Update.
func (a *Authority) Lookup(req bundlesync.Request) bundlesync.FactoryHandle {
	return a.bundle.Resolve(req)
}

// Bundle returns the canonical Bundle. It is owned by the Authority.
func (a *Authority) Bundle() bundlesync.Bundle { return a.bundle }

// Generation counts Updates, starting at 1 for the initial Bundle.
func (a *Authority) Generation() uint64 { return a.generation }

// Len returns the number of registry entries, including ones whose Replica
// is gone but not yet pruned.
func (a *Authority) Len() int { return len(a.registry) }

// Runner returns the runner of the Authority's home sequence.
func (a *Authority) Runner() sequence.TaskRunner { return a.runner }

// Close tears the Authority down. Outstanding AuthorityRefs stop resolving,
// so Replicas keep their last Bundle and pending messages become no-ops.
func (a *Authority) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	a.weak.Invalidate()
	a.registry = nil
	err := a.bundle.Close()
	a.bundle = bundlesync.Bundle{}
	a.log.Debug("authority closed", "generation", a.generation)
	return err
}

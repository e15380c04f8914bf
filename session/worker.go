package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"bundlesync"
	"bundlesync/replication"
	"bundlesync/sequence"
)

// Worker is a sequence with its own Replica.
type Worker struct {
	name    string
	seq     *sequence.Sequence
	replica *replication.Replica // confined to seq
	log     *slog.Logger
}

func startWorker(name string, snap replication.ReplicaSnapshot, log *slog.Logger) (*Worker, error) {
	w := &Worker{
		name: name,
		seq:  sequence.New(name),
		log:  log.With("worker", name),
	}
	if !w.seq.PostTaskWithRelease(func() {
		w.replica = replication.NewReplica(w.seq, snap, replication.WithReplicaLogger(w.log))
	}, func() { releaseSnapshot(snap) }) {
		return nil, ErrClosed
	}
	w.log.Debug("worker started")
	return w, nil
}

func (w *Worker) Name() string { return w.name }

// Spawn starts another worker from a clone of this worker's Replica. The new
// worker tracks the same Authority.
func (w *Worker) Spawn(ctx context.Context, name string) (*Worker, error) {
	snap, err := sequence.Call(ctx, w.seq, func() replication.ReplicaSnapshot {
		return w.replica.Clone()
	}, releaseSnapshot)
	if err != nil {
		if errors.Is(err, sequence.ErrShutdown) {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("clone replica: %w", err)
	}
	return startWorker(name, snap, w.log)
}

// Post runs fn with the worker's Replica on the worker's sequence. Request
// dispatch code uses it to resolve factories without blocking.
func (w *Worker) Post(fn func(*replication.Replica)) bool {
	return w.seq.PostTask(func() { fn(w.replica) })
}

// Lookup resolves req on the worker's Replica and waits for the answer. The
// caller owns the returned handle, which is nil when no factory matches.
func (w *Worker) Lookup(ctx context.Context, req bundlesync.Request) (bundlesync.FactoryHandle, error) {
	m, err := w.Match(ctx, req)
	return m.Handle, err
}

// Match is Lookup that also reports which Bundle entry answered. The caller
// owns the returned handle.
func (w *Worker) Match(ctx context.Context, req bundlesync.Request) (bundlesync.Match, error) {
	m, err := sequence.Call(ctx, w.seq, func() bundlesync.Match {
		m := w.replica.Match(req)
		if m.Handle != nil {
			m.Handle = m.Handle.Clone()
		}
		return m
	}, func(m bundlesync.Match) { releaseHandle(m.Handle) })
	if errors.Is(err, sequence.ErrShutdown) {
		return bundlesync.Match{}, ErrClosed
	}
	return m, err
}

// Generation returns the Authority generation the worker's Bundle came from.
func (w *Worker) Generation(ctx context.Context) (uint64, error) {
	gen, err := sequence.Call(ctx, w.seq, func() uint64 { return w.replica.Generation() }, nil)
	if errors.Is(err, sequence.ErrShutdown) {
		return 0, ErrClosed
	}
	return gen, err
}

// Close destroys the Replica and stops the worker's sequence.
func (w *Worker) Close(ctx context.Context) error {
	closeErr, err := sequence.Call(ctx, w.seq, func() error { return w.replica.Close() }, nil)
	if errors.Is(err, sequence.ErrShutdown) {
		return nil
	}
	if err != nil {
		return err
	}
	w.seq.Shutdown()
	select {
	case <-w.seq.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	w.log.Debug("worker stopped")
	return closeErr
}

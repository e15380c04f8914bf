// Package session owns the factory Bundle of one logical session: a home
// sequence running the Authority, and workers whose sequences each hold a
// Replica. Nothing here is global; whoever creates a Session hands Workers
// out explicitly.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"bundlesync"
	"bundlesync/replication"
	"bundlesync/sequence"

	"github.com/google/uuid"
)

var ErrClosed = errors.New("session closed")

// Status describes the Authority at one point in time.
type Status struct {
	Generation uint64
	Replicas   int
}

// Session runs an Authority on its own sequence. Sessions sharing a name
// are told apart in logs by ID.
type Session struct {
	id        string
	name      string
	home      *sequence.Sequence
	authority *replication.Authority
	log       *slog.Logger
}

type Option func(*options)

type options struct {
	authority []replication.AuthorityOption
	logger    *slog.Logger
}

func WithAuthorityOptions(opts ...replication.AuthorityOption) Option {
	return func(o *options) { o.authority = append(o.authority, opts...) }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New starts a session whose Authority owns initial.
func New(name string, initial bundlesync.Bundle, opts ...Option) *Session {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	home := sequence.New(name + "/main")
	authorityOpts := append([]replication.AuthorityOption{replication.WithLogger(o.logger)}, o.authority...)
	id := uuid.NewString()
	s := &Session{
		id:        id,
		name:      name,
		home:      home,
		authority: replication.NewAuthority(home, initial, authorityOpts...),
		log:       o.logger.With("component", "session", "session", name, "session_id", id),
	}
	s.log.Info("session started", "bundle", initial.String())
	return s
}

func (s *Session) Name() string { return s.name }

func (s *Session) ID() string { return s.id }

// Update hands next to the Authority, which fans it out to every worker.
// It returns false once the session is closed. next is released if the
// session closes before the update runs.
func (s *Session) Update(next bundlesync.Bundle) bool {
	return s.home.PostTaskWithRelease(
		func() { s.authority.Update(next) },
		func() { _ = next.Close() },
	)
}

// Status reports the Authority's generation and registry size.
func (s *Session) Status(ctx context.Context) (Status, error) {
	st, err := sequence.Call(ctx, s.home, func() Status {
		return Status{Generation: s.authority.Generation(), Replicas: s.authority.Len()}
	}, nil)
	if errors.Is(err, sequence.ErrShutdown) {
		return Status{}, ErrClosed
	}
	return st, err
}

// Lookup resolves req against the canonical Bundle. The caller owns the
// returned handle.
func (s *Session) Lookup(ctx context.Context, req bundlesync.Request) (bundlesync.FactoryHandle, error) {
	h, err := sequence.Call(ctx, s.home, func() bundlesync.FactoryHandle {
		if h := s.authority.Lookup(req); h != nil {
			return h.Clone()
		}
		return nil
	}, releaseHandle)
	if errors.Is(err, sequence.ErrShutdown) {
		return nil, ErrClosed
	}
	return h, err
}

// SpawnWorker starts a worker sequence holding a Replica of the Authority's
// Bundle.
func (s *Session) SpawnWorker(ctx context.Context, name string) (*Worker, error) {
	snap, err := sequence.Call(ctx, s.home, s.authority.Snapshot, releaseSnapshot)
	if err != nil {
		if errors.Is(err, sequence.ErrShutdown) {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("snapshot bundle: %w", err)
	}
	return startWorker(s.name+"/"+name, snap, s.log)
}

// Close tears down the Authority and stops the home sequence in one task, so
// nothing posted afterwards reaches the closed Authority. Workers keep
// serving their last Bundle until they are closed.
func (s *Session) Close(ctx context.Context) error {
	closeErr, err := sequence.Call(ctx, s.home, func() error {
		err := s.authority.Close()
		s.home.Shutdown()
		return err
	}, nil)
	if errors.Is(err, sequence.ErrShutdown) {
		return nil
	}
	if err != nil {
		return err
	}
	select {
	case <-s.home.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	s.log.Info("session closed")
	return closeErr
}

func releaseSnapshot(snap replication.ReplicaSnapshot) { _ = snap.Close() }

func releaseHandle(h bundlesync.FactoryHandle) {
	if h != nil {
		_ = h.Close()
	}
}

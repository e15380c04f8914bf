// Package grpcfactory provides FactoryHandles backed by gRPC client
// connections, and a Provider that builds a Bundle from a set of targets.
package grpcfactory

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"bundlesync"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

var _ bundlesync.FactoryHandle = (*Handle)(nil)

// ErrClosed is returned when a connection is requested from a closed handle
// or from a handle whose connection was already released.
var ErrClosed = errors.New("factory handle closed")

// sharedConn is one gRPC connection referenced by every clone of a Handle.
type sharedConn struct {
	target string

	mu   sync.Mutex
	refs int
	conn *grpc.ClientConn
}

func (s *sharedConn) acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return false
	}
	s.refs++
	return true
}

func (s *sharedConn) release() error {
	s.mu.Lock()
	s.refs--
	if s.refs > 0 || s.conn == nil {
		s.mu.Unlock()
		return nil
	}
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	slog.Debug("factory connection released", "component", "grpc-factory", "target", s.target)
	if err := conn.Close(); err != nil {
		return fmt.Errorf("close connection to %s: %w", s.target, err)
	}
	return nil
}

func (s *sharedConn) get() (*grpc.ClientConn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil, ErrClosed
	}
	return s.conn, nil
}

func (s *sharedConn) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs
}

// Handle references a gRPC connection factory endpoint. Clones share one
// *grpc.ClientConn, which is closed with the last clone.
type Handle struct {
	shared *sharedConn
	closed atomic.Bool
}

// Dial creates a Handle for target. The connection is lazy: no I/O happens
// until the first RPC. Insecure transport credentials and OpenTelemetry
// instrumentation are applied before opts, so opts may override them.
func Dial(target string, opts ...grpc.DialOption) (*Handle, error) {
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}, opts...)

	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("grpc client %s: %w", target, err)
	}
	return &Handle{shared: &sharedConn{target: target, refs: 1, conn: conn}}, nil
}

// Clone returns a new reference to the same connection. Cloning a handle
// whose connection is gone yields a closed handle.
func (h *Handle) Clone() bundlesync.FactoryHandle {
	c := &Handle{shared: h.shared}
	if h.closed.Load() || !h.shared.acquire() {
		c.closed.Store(true)
	}
	return c
}

// Close drops this reference. Closing twice is a no-op.
func (h *Handle) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	return h.shared.release()
}

func (h *Handle) Target() string { return h.shared.target }

// Conn returns the shared connection.
func (h *Handle) Conn() (*grpc.ClientConn, error) {
	if h.closed.Load() {
		return nil, ErrClosed
	}
	return h.shared.get()
}

// Refs returns the number of open references to the connection.
func (h *Handle) Refs() int { return h.shared.count() }

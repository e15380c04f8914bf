package restart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"bundlesync"
	"bundlesync/internal/adapter/fake"

	"google.golang.org/grpc/connectivity"
)

type fakeConn struct {
	mu       sync.Mutex
	state    connectivity.State
	connects int
	changes  chan connectivity.State
}

func newFakeConn(initial connectivity.State) *fakeConn {
	return &fakeConn{state: initial, changes: make(chan connectivity.State)}
}

func (c *fakeConn) GetState() connectivity.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeConn) WaitForStateChange(ctx context.Context, source connectivity.State) bool {
	if c.GetState() != source {
		return true
	}
	select {
	case s := <-c.changes:
		c.mu.Lock()
		c.state = s
		c.mu.Unlock()
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *fakeConn) Connect() {
	c.mu.Lock()
	c.connects++
	c.mu.Unlock()
}

func (c *fakeConn) set(states ...connectivity.State) {
	for _, s := range states {
		c.changes <- s
	}
}

type fakeSource struct {
	mu    sync.Mutex
	fails int
	calls int
}

func (s *fakeSource) Bundle(context.Context) (bundlesync.Bundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.fails {
		return bundlesync.Bundle{}, fmt.Errorf("dial attempt %d refused", s.calls)
	}
	return bundlesync.NewBundle(fake.NewEndpoint(fmt.Sprintf("gen-%d", s.calls)).Handle()), nil
}

type fakeUpdater struct {
	mu      sync.Mutex
	closed  bool
	targets []string
}

func (u *fakeUpdater) Update(next bundlesync.Bundle) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	defer next.Close()
	if u.closed {
		return false
	}
	u.targets = append(u.targets, next.Default().Target())
	return true
}

func (u *fakeUpdater) updates() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.targets...)
}

func TestMonitor_RefreshesOnlyAfterFailure(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		conn := newFakeConn(connectivity.Ready)
		src := &fakeSource{}
		upd := &fakeUpdater{}
		m := NewMonitor(conn, src, upd)

		errc := make(chan error, 1)
		go func() { errc <- m.Run(ctx) }()

		conn.set(connectivity.Connecting, connectivity.Ready)
		synctest.Wait()
		if got := upd.updates(); len(got) != 0 {
			t.Fatalf("updates without a failure: %v", got)
		}

		conn.set(connectivity.TransientFailure, connectivity.Connecting, connectivity.TransientFailure, connectivity.Ready)
		synctest.Wait()
		if got := upd.updates(); len(got) != 1 || got[0] != "gen-1" {
			t.Fatalf("updates = %v, want [gen-1]", got)
		}

		conn.set(connectivity.TransientFailure, connectivity.Ready)
		synctest.Wait()
		if got := upd.updates(); len(got) != 2 {
			t.Fatalf("updates = %v, want two", got)
		}

		cancel()
		if err := <-errc; !errors.Is(err, context.Canceled) {
			t.Fatalf("Run error = %v, want canceled", err)
		}
	})
}

func TestMonitor_RetriesBundleSource(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		conn := newFakeConn(connectivity.TransientFailure)
		src := &fakeSource{fails: 2}
		upd := &fakeUpdater{}
		m := NewMonitor(conn, src, upd)

		go m.Run(ctx)
		conn.set(connectivity.Ready)
		// Two failed attempts, each followed by the default retry delay.
		time.Sleep(3 * time.Second)
		synctest.Wait()

		if got := upd.updates(); len(got) != 1 || got[0] != "gen-3" {
			t.Fatalf("updates = %v, want [gen-3]", got)
		}
		cancel()
		synctest.Wait()
	})
}

func TestMonitor_StopsWhenUpdaterCloses(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		conn := newFakeConn(connectivity.TransientFailure)
		upd := &fakeUpdater{closed: true}
		m := NewMonitor(conn, &fakeSource{}, upd)

		errc := make(chan error, 1)
		go func() { errc <- m.Run(context.Background()) }()
		conn.set(connectivity.Ready)

		if err := <-errc; !errors.Is(err, ErrUpdaterClosed) {
			t.Fatalf("Run error = %v, want ErrUpdaterClosed", err)
		}
	})
}

func TestMonitor_IdleConnectsAndShutdownStops(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		conn := newFakeConn(connectivity.Idle)
		m := NewMonitor(conn, &fakeSource{}, &fakeUpdater{})

		errc := make(chan error, 1)
		go func() { errc <- m.Run(context.Background()) }()
		conn.set(connectivity.Shutdown)

		if err := <-errc; !errors.Is(err, ErrConnectionShutdown) {
			t.Fatalf("Run error = %v, want ErrConnectionShutdown", err)
		}
		if conn.connects != 1 {
			t.Fatalf("connects = %d, want 1", conn.connects)
		}
	})
}

package sequence

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"bundlesync/internal/check"
)

// ErrShutdown is returned by Flush once the sequence no longer runs tasks.
var ErrShutdown = errors.New("sequence shut down")

// TaskRunner posts work to a sequence. PostTask returns false when the
// sequence has shut down and the task was dropped.
//
// PostTaskWithRelease is PostTask for a task that owns resources: exactly
// one of task or release runs. release runs in place of a task that is
// refused, or that is still queued at shutdown.
type TaskRunner interface {
	PostTask(task func()) bool
	PostTaskWithRelease(task, release func()) bool
}

type queuedTask struct {
	run     func()
	release func()
}

func releaseAll(tasks []queuedTask) {
	for _, t := range tasks {
		if t.release != nil {
			t.release()
		}
	}
}

var _ TaskRunner = (*Sequence)(nil)

// Sequence is a FIFO task queue drained by a dedicated goroutine.
type Sequence struct {
	name string

	mu     sync.Mutex
	queue  []queuedTask
	closed bool

	wake chan struct{}
	done chan struct{}
}

// New starts a sequence. Call Shutdown to stop it.
func New(name string) *Sequence {
	s := &Sequence{
		name: name,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Sequence) Name() string { return s.name }

// PostTask enqueues task. It never blocks.
func (s *Sequence) PostTask(task func()) bool {
	return s.PostTaskWithRelease(task, nil)
}

// PostTaskWithRelease enqueues task. If the sequence refuses it or shuts down
// before it runs, release runs instead, on the caller's goroutine or on the
// one calling Shutdown. release may be nil.
func (s *Sequence) PostTaskWithRelease(task, release func()) bool {
	check.Assert(task != nil, "sequence.PostTask: task must not be nil")
	if task == nil {
		if release != nil {
			release()
		}
		return false
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		if release != nil {
			release()
		}
		return false
	}
	s.queue = append(s.queue, queuedTask{run: task, release: release})
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

// Shutdown stops accepting tasks and drops the ones still queued, running
// their release functions. The task currently running, if any, completes. Shutdown does not wait, so it may be
// called from a task of s; use Done to wait for the goroutine to exit.
func (s *Sequence) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	dropped := s.queue
	s.queue = nil
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	releaseAll(dropped)
	slog.Debug("sequence shut down", "sequence", s.name, "dropped", len(dropped))
}

// Done is closed once the sequence goroutine has exited.
func (s *Sequence) Done() <-chan struct{} { return s.done }

// IsShutdown reports whether Shutdown has been called.
func (s *Sequence) IsShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Flush waits until every task posted before the call has run.
func (s *Sequence) Flush(ctx context.Context) error {
	reached := make(chan struct{})
	if !s.PostTask(func() { close(reached) }) {
		return ErrShutdown
	}
	select {
	case <-reached:
		return nil
	case <-s.done:
		return ErrShutdown
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sequence) run() {
	defer close(s.done)
	for range s.wake {
		for {
			s.mu.Lock()
			if s.closed {
				s.mu.Unlock()
				return
			}
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			task := s.queue[0]
			s.queue[0] = queuedTask{}
			s.queue = s.queue[1:]
			s.mu.Unlock()

			task.run()
		}
	}
}

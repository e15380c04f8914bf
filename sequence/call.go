package sequence

import (
	"context"
	"sync/atomic"
)

const (
	callPending int32 = iota
	callAbandoned
	callDelivered
)

// Call runs fn on s and waits for its result. It is the one blocking entry
// point, meant for callers outside any sequence (CLI commands, tests).
//
// If ctx ends first, fn is skipped when it has not started yet; otherwise
// its late result is handed to release, which may be nil.
func Call[T any](ctx context.Context, s *Sequence, fn func() T, release func(T)) (T, error) {
	var zero T
	var state atomic.Int32
	out := make(chan T, 1)

	posted := s.PostTask(func() {
		if state.Load() == callAbandoned {
			return
		}
		v := fn()
		if state.CompareAndSwap(callPending, callDelivered) {
			out <- v
			return
		}
		if release != nil {
			release(v)
		}
	})
	if !posted {
		return zero, ErrShutdown
	}

	select {
	case v := <-out:
		return v, nil
	case <-ctx.Done():
		if state.CompareAndSwap(callPending, callAbandoned) {
			return zero, ctx.Err()
		}
		return <-out, nil
	case <-s.done:
		if state.CompareAndSwap(callPending, callAbandoned) {
			return zero, ErrShutdown
		}
		return <-out, nil
	}
}

package sequence

import (
	"sync/atomic"
	"weak"
)

// WeakFactory hands out WeakRefs to its owner. The owner embeds the factory
// and calls Invalidate when it is torn down; every outstanding WeakRef then
// resolves to nil.
type WeakFactory[T any] struct {
	ptr   weak.Pointer[T]
	valid *atomic.Bool
}

// NewWeakFactory binds a factory to owner.
func NewWeakFactory[T any](owner *T) *WeakFactory[T] {
	valid := new(atomic.Bool)
	valid.Store(true)
	return &WeakFactory[T]{ptr: weak.Make(owner), valid: valid}
}

// Ref returns a new weak reference to the owner.
func (f *WeakFactory[T]) Ref() WeakRef[T] {
	return WeakRef[T]{ptr: f.ptr, valid: f.valid}
}

// Invalidate expires every reference handed out so far, and every future one.
func (f *WeakFactory[T]) Invalidate() {
	f.valid.Store(false)
}

// WeakRef is a non-owning reference that may be copied to any sequence. The
// zero WeakRef never resolves.
type WeakRef[T any] struct {
	ptr   weak.Pointer[T]
	valid *atomic.Bool
}

// Get returns the referent, or nil once it was invalidated or collected. The
// result may only be used on the referent's own sequence.
func (r WeakRef[T]) Get() *T {
	if !r.Alive() {
		return nil
	}
	return r.ptr.Value()
}

// Alive reports whether the referent still exists. Safe from any sequence;
// from a foreign sequence the answer may already be stale when it returns.
func (r WeakRef[T]) Alive() bool {
	if r.valid == nil || !r.valid.Load() {
		return false
	}
	return r.ptr.Value() != nil
}

func (r WeakRef[T]) IsZero() bool { return r.valid == nil }

package bundlesync

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

// Bundle aggregates the factories one session dispatches requests through:
// a default factory, factories keyed by URL scheme and factories keyed by
// isolation domain.
//
// A Bundle owns its handles and is never modified after construction.
// Replacing any part of it means building a new Bundle. The zero value is an
// empty bundle that resolves every request to nil.
type Bundle struct {
	defaultFactory       FactoryHandle
	schemeFactories      map[string]FactoryHandle
	isolationFactories   map[string]FactoryHandle
	bypassRedirectChecks bool
}

type BundleOption func(*Bundle)

// WithScheme routes requests for scheme to h. The bundle takes ownership of h.
func WithScheme(scheme string, h FactoryHandle) BundleOption {
	return func(b *Bundle) {
		if scheme == "" || h == nil {
			return
		}
		if b.schemeFactories == nil {
			b.schemeFactories = make(map[string]FactoryHandle)
		}
		if prev, ok := b.schemeFactories[scheme]; ok {
			_ = prev.Close()
		}
		b.schemeFactories[scheme] = h
	}
}

// WithIsolation routes requests carrying isolation key to h. The bundle takes
// ownership of h.
func WithIsolation(key string, h FactoryHandle) BundleOption {
	return func(b *Bundle) {
		if key == "" || h == nil {
			return
		}
		if b.isolationFactories == nil {
			b.isolationFactories = make(map[string]FactoryHandle)
		}
		if prev, ok := b.isolationFactories[key]; ok {
			_ = prev.Close()
		}
		b.isolationFactories[key] = h
	}
}

func WithBypassRedirectChecks(bypass bool) BundleOption {
	return func(b *Bundle) { b.bypassRedirectChecks = bypass }
}

// NewBundle builds a Bundle around defaultFactory, which may be nil before
// the session has a factory to offer. The bundle takes ownership of every
// handle passed in.
func NewBundle(defaultFactory FactoryHandle, opts ...BundleOption) Bundle {
	b := Bundle{defaultFactory: defaultFactory}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// Source names the Bundle entry a request resolved to.
type Source uint8

const (
	SourceNone Source = iota
	SourceIsolation
	SourceScheme
	SourceDefault
)

func (s Source) String() string {
	switch s {
	case SourceIsolation:
		return "isolation"
	case SourceScheme:
		return "scheme"
	case SourceDefault:
		return "default"
	default:
		return "none"
	}
}

// Match is the outcome of resolving a Request: the borrowed handle and the
// entry it came from. Handle is nil when Source is SourceNone.
type Match struct {
	Handle FactoryHandle
	Source Source
}

// Match picks the factory for req: an exact isolation key match first, then
// an exact scheme match, then the default.
func (b Bundle) Match(req Request) Match {
	if req.IsolationKey != "" {
		if h, ok := b.isolationFactories[req.IsolationKey]; ok {
			return Match{Handle: h, Source: SourceIsolation}
		}
	}
	if req.Scheme != "" {
		if h, ok := b.schemeFactories[req.Scheme]; ok {
			return Match{Handle: h, Source: SourceScheme}
		}
	}
	if b.defaultFactory != nil {
		return Match{Handle: b.defaultFactory, Source: SourceDefault}
	}
	return Match{}
}

// Resolve returns the handle Match picks for req, or nil when none is
// present. The returned handle is borrowed; clone it to keep it past the
// lifetime of the bundle.
func (b Bundle) Resolve(req Request) FactoryHandle {
	return b.Match(req).Handle
}

// Clone duplicates every handle into a Snapshot that can be handed to
// another sequence. It never fails and leaves b untouched.
func (b Bundle) Clone() Snapshot {
	return Snapshot{bundle: b.clone(true)}
}

// WithoutIsolationFactories is Clone minus the per-isolation-domain factories,
// for consumers that must not see them.
func (b Bundle) WithoutIsolationFactories() Snapshot {
	return Snapshot{bundle: b.clone(false)}
}

func (b Bundle) clone(withIsolation bool) Bundle {
	out := Bundle{
		defaultFactory:       cloneHandle(b.defaultFactory),
		schemeFactories:      cloneHandleMap(b.schemeFactories),
		bypassRedirectChecks: b.bypassRedirectChecks,
	}
	if withIsolation {
		out.isolationFactories = cloneHandleMap(b.isolationFactories)
	}
	return out
}

func cloneHandleMap(in map[string]FactoryHandle) map[string]FactoryHandle {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]FactoryHandle, len(in))
	for k, h := range in {
		out[k] = h.Clone()
	}
	return out
}

func (b Bundle) Default() FactoryHandle { return b.defaultFactory }

func (b Bundle) Scheme(scheme string) FactoryHandle { return b.schemeFactories[scheme] }

func (b Bundle) Isolation(key string) FactoryHandle { return b.isolationFactories[key] }

func (b Bundle) BypassRedirectChecks() bool { return b.bypassRedirectChecks }

// Schemes returns the configured scheme names in sorted order.
func (b Bundle) Schemes() []string {
	return slices.Sorted(maps.Keys(b.schemeFactories))
}

// IsolationKeys returns the configured isolation keys in sorted order.
func (b Bundle) IsolationKeys() []string {
	return slices.Sorted(maps.Keys(b.isolationFactories))
}

// Empty reports whether b holds no factory at all.
func (b Bundle) Empty() bool {
	return b.defaultFactory == nil && len(b.schemeFactories) == 0 && len(b.isolationFactories) == 0
}

// Equal reports whether b and other route every request to the same targets
// and carry the same flags. Clones of one bundle are Equal.
func (b Bundle) Equal(other Bundle) bool {
	if b.bypassRedirectChecks != other.bypassRedirectChecks {
		return false
	}
	if handleTarget(b.defaultFactory) != handleTarget(other.defaultFactory) ||
		(b.defaultFactory == nil) != (other.defaultFactory == nil) {
		return false
	}
	return sameTargets(b.schemeFactories, other.schemeFactories) &&
		sameTargets(b.isolationFactories, other.isolationFactories)
}

func sameTargets(a, b map[string]FactoryHandle) bool {
	return maps.EqualFunc(a, b, func(x, y FactoryHandle) bool {
		return x.Target() == y.Target()
	})
}

// Close releases every handle owned by b. Closing the zero Bundle is a no-op.
func (b Bundle) Close() error {
	var errs []error
	if err := closeHandle(b.defaultFactory); err != nil {
		errs = append(errs, fmt.Errorf("close default factory: %w", err))
	}
	for _, scheme := range b.Schemes() {
		if err := b.schemeFactories[scheme].Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %q factory: %w", scheme, err))
		}
	}
	for _, key := range b.IsolationKeys() {
		if err := b.isolationFactories[key].Close(); err != nil {
			errs = append(errs, fmt.Errorf("close isolation %q factory: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

func (b Bundle) String() string {
	return fmt.Sprintf("bundle{default=%q schemes=%v isolation=%v bypass=%t}",
		handleTarget(b.defaultFactory), b.Schemes(), b.IsolationKeys(), b.bypassRedirectChecks)
}

// Snapshot is a cloned Bundle in transit between sequences. It owns its
// handles until the receiver adopts them with Bundle, or until Close when the
// snapshot can no longer be delivered.
type Snapshot struct {
	bundle Bundle
}

// Bundle adopts the snapshot's handles as a Bundle on the receiving sequence.
func (s Snapshot) Bundle() Bundle { return s.bundle }

// Close releases a snapshot that will never be adopted.
func (s Snapshot) Close() error { return s.bundle.Close() }

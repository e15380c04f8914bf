package grpcfactory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"bundlesync"

	"google.golang.org/grpc"
)

// Targets lists the endpoints a Bundle is built from.
type Targets struct {
	Default              string
	Schemes              map[string]string
	Isolation            map[string]string
	BypassRedirectChecks bool
}

// Provider builds Bundles of gRPC handles. Each call dials fresh
// connections, which is what a restarted backing service needs.
type Provider struct {
	targets  Targets
	dialOpts []grpc.DialOption
}

func NewProvider(targets Targets, opts ...grpc.DialOption) *Provider {
	return &Provider{targets: targets, dialOpts: opts}
}

func (p *Provider) Targets() Targets { return p.targets }

// Bundle dials every configured target once, sharing a connection between
// entries that name the same target.
func (p *Provider) Bundle(ctx context.Context) (bundlesync.Bundle, error) {
	dialed := make(map[string]*Handle)
	handle := func(target string) (bundlesync.FactoryHandle, error) {
		if target == "" {
			return nil, nil
		}
		if h, ok := dialed[target]; ok {
			return h.Clone(), nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		h, err := Dial(target, p.dialOpts...)
		if err != nil {
			return nil, err
		}
		dialed[target] = h
		return h, nil
	}

	var opts []bundlesync.BundleOption
	var handles []bundlesync.FactoryHandle
	fail := func(err error) (bundlesync.Bundle, error) {
		var errs []error
		for _, h := range handles {
			if cerr := h.Close(); cerr != nil {
				errs = append(errs, cerr)
			}
		}
		return bundlesync.Bundle{}, errors.Join(append([]error{err}, errs...)...)
	}

	def, err := handle(p.targets.Default)
	if err != nil {
		return fail(fmt.Errorf("default factory: %w", err))
	}
	if def != nil {
		handles = append(handles, def)
	}
	for scheme, target := range p.targets.Schemes {
		h, err := handle(target)
		if err != nil {
			return fail(fmt.Errorf("scheme %q factory: %w", scheme, err))
		}
		if h != nil {
			handles = append(handles, h)
			opts = append(opts, bundlesync.WithScheme(scheme, h))
		}
	}
	for key, target := range p.targets.Isolation {
		h, err := handle(target)
		if err != nil {
			return fail(fmt.Errorf("isolation %q factory: %w", key, err))
		}
		if h != nil {
			handles = append(handles, h)
			opts = append(opts, bundlesync.WithIsolation(key, h))
		}
	}
	opts = append(opts, bundlesync.WithBypassRedirectChecks(p.targets.BypassRedirectChecks))

	slog.Debug("factory bundle built", "component", "grpc-factory", "connections", len(dialed), "handles", len(handles))
	return bundlesync.NewBundle(def, opts...), nil
}

// Watch dials a dedicated handle to the default target, for connectivity
// monitoring that must not share the Bundle's connections.
func (p *Provider) Watch() (*Handle, error) {
	if p.targets.Default == "" {
		return nil, errors.New("no default target to watch")
	}
	return Dial(p.targets.Default, p.dialOpts...)
}

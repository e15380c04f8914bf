// Package restart detects that the backing network service came back after
// a failure and pushes a freshly built Bundle to the session's Authority.
package restart

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"bundlesync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/connectivity"
)

const defaultRetryDelay = time.Second

// ErrUpdaterClosed is returned by Run when the Updater stops accepting
// bundles.
var ErrUpdaterClosed = errors.New("updater closed")

// ErrConnectionShutdown is returned by Run when the watched connection was
// closed underneath the Monitor.
var ErrConnectionShutdown = errors.New("watched connection shut down")

// StateSource reports connectivity of the watched service. *grpc.ClientConn
// implements it.
type StateSource interface {
	GetState() connectivity.State
	WaitForStateChange(ctx context.Context, source connectivity.State) bool
	Connect()
}

// BundleSource builds a Bundle with fresh connections.
type BundleSource interface {
	Bundle(ctx context.Context) (bundlesync.Bundle, error)
}

// Updater accepts a replacement Bundle and takes ownership of it. It returns
// false once it is closed; the Bundle is released either way.
type Updater interface {
	Update(next bundlesync.Bundle) bool
}

// Monitor watches connectivity and replaces the Bundle each time the service
// becomes ready after having failed.
type Monitor struct {
	state      StateSource
	source     BundleSource
	updater    Updater
	retryDelay time.Duration
	tracer     trace.Tracer
	log        *slog.Logger

	restarts atomic.Int64
}

type Option func(*Monitor)

func WithRetryDelay(d time.Duration) Option {
	return func(m *Monitor) { m.retryDelay = d }
}

func WithTracer(t trace.Tracer) Option {
	return func(m *Monitor) { m.tracer = t }
}

func NewMonitor(state StateSource, source BundleSource, updater Updater, opts ...Option) *Monitor {
	m := &Monitor{
		state:      state,
		source:     source,
		updater:    updater,
		retryDelay: defaultRetryDelay,
		tracer:     otel.Tracer("bundlesync/restart"),
		log:        slog.With("component", "restart-monitor"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run blocks until ctx is done, the watched connection shuts down, or the
// Updater closes.
func (m *Monitor) Run(ctx context.Context) error {
	lost := false
	state := m.state.GetState()
	for {
		switch state {
		case connectivity.Idle:
			m.state.Connect()
		case connectivity.TransientFailure:
			if !lost {
				m.log.Warn("backing service unreachable")
			}
			lost = true
		case connectivity.Ready:
			if lost {
				lost = false
				if err := m.refresh(ctx); err != nil {
					return err
				}
			}
		case connectivity.Shutdown:
			return ErrConnectionShutdown
		}

		if !m.state.WaitForStateChange(ctx, state) {
			return ctx.Err()
		}
		state = m.state.GetState()
	}
}

// Restarts returns the number of Bundles handed to the Updater.
func (m *Monitor) Restarts() int64 { return m.restarts.Load() }

func (m *Monitor) refresh(ctx context.Context) error {
	ctx, span := m.tracer.Start(ctx, "bundlesync.restart.refresh")
	defer span.End()

	for attempt := 1; ; attempt++ {
		b, err := m.source.Bundle(ctx)
		if err == nil {
			if !m.updater.Update(b) {
				span.SetStatus(codes.Error, ErrUpdaterClosed.Error())
				return ErrUpdaterClosed
			}
			restarts := m.restarts.Add(1)
			span.SetAttributes(attribute.Int("bundlesync.restart.attempts", attempt))
			m.log.Info("backing service restarted, bundle replaced", "restarts", restarts, "attempts", attempt)
			return nil
		}

		span.RecordError(err)
		m.log.Warn("rebuild bundle", "attempt", attempt, "err", err)
		if !sleepContext(ctx, m.retryDelay) {
			return ctx.Err()
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

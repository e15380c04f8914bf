// Package telemetry wires the process tracer provider. Spans are logged
// through slog when they end; there is no remote exporter.
package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Provider owns the SDK tracer provider installed as the otel global.
type Provider struct {
	provider *sdktrace.TracerProvider
	previous trace.TracerProvider
}

// Install creates a tracer provider that logs ended spans to log and makes
// it the global provider. Close restores the previous global.
func Install(log *slog.Logger) *Provider {
	if log == nil {
		log = slog.Default()
	}
	p := &Provider{
		provider: sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(&logSpanProcessor{
			log: log.With("component", "telemetry"),
		})),
		previous: otel.GetTracerProvider(),
	}
	otel.SetTracerProvider(p.provider)
	return p
}

func (p *Provider) Tracer(name string) trace.Tracer {
	if p == nil || p.provider == nil {
		return otel.Tracer(name)
	}
	return p.provider.Tracer(name)
}

func (p *Provider) Close(ctx context.Context) error {
	if p == nil || p.provider == nil {
		return nil
	}
	otel.SetTracerProvider(p.previous)
	return p.provider.Shutdown(ctx)
}

type logSpanProcessor struct {
	log *slog.Logger
}

func (p *logSpanProcessor) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (p *logSpanProcessor) OnEnd(span sdktrace.ReadOnlySpan) {
	attrs := make([]any, 0, 2*len(span.Attributes())+4)
	attrs = append(attrs, "span", span.Name(), "duration", span.EndTime().Sub(span.StartTime()))
	for _, kv := range span.Attributes() {
		attrs = append(attrs, string(kv.Key), kv.Value.Emit())
	}

	status := span.Status()
	if status.Code == codes.Error {
		attrs = append(attrs, "err", status.Description)
		p.log.Warn("span failed", attrs...)
		return
	}
	p.log.Debug("span ended", attrs...)
}

func (p *logSpanProcessor) Shutdown(context.Context) error   { return nil }
func (p *logSpanProcessor) ForceFlush(context.Context) error { return nil }

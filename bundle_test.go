package bundlesync_test

import (
	"errors"
	"net/url"
	"slices"
	"testing"

	"bundlesync"
	"bundlesync/internal/adapter/fake"
)

func target(h bundlesync.FactoryHandle) string {
	if h == nil {
		return "<absent>"
	}
	return h.Target()
}

func sampleBundle() (bundlesync.Bundle, map[string]*fake.Endpoint) {
	eps := map[string]*fake.Endpoint{
		"default": fake.NewEndpoint("default"),
		"https":   fake.NewEndpoint("https"),
		"file":    fake.NewEndpoint("file"),
		"iso":     fake.NewEndpoint("iso"),
	}
	b := bundlesync.NewBundle(eps["default"].Handle(),
		bundlesync.WithScheme("https", eps["https"].Handle()),
		bundlesync.WithScheme("file", eps["file"].Handle()),
		bundlesync.WithIsolation("chrome-extension://abc", eps["iso"].Handle()),
		bundlesync.WithBypassRedirectChecks(true),
	)
	return b, eps
}

func TestBundle_ResolvePrecedence(t *testing.T) {
	t.Parallel()

	b, _ := sampleBundle()
	tests := []struct {
		name   string
		req    bundlesync.Request
		want   string
		source bundlesync.Source
	}{
		{"isolation wins over scheme", bundlesync.Request{Scheme: "https", IsolationKey: "chrome-extension://abc"}, "iso", bundlesync.SourceIsolation},
		{"scheme", bundlesync.Request{Scheme: "https"}, "https", bundlesync.SourceScheme},
		{"unknown isolation falls back to scheme", bundlesync.Request{Scheme: "file", IsolationKey: "other"}, "file", bundlesync.SourceScheme},
		{"unknown scheme falls back to default", bundlesync.Request{Scheme: "ftp"}, "default", bundlesync.SourceDefault},
		{"schemes are case-sensitive", bundlesync.Request{Scheme: "HTTPS"}, "default", bundlesync.SourceDefault},
		{"empty request", bundlesync.Request{}, "default", bundlesync.SourceDefault},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := target(b.Resolve(tt.req)); got != tt.want {
				t.Fatalf("Resolve(%v) = %s, want %s", tt.req, got, tt.want)
			}
			m := b.Match(tt.req)
			if target(m.Handle) != tt.want || m.Source != tt.source {
				t.Fatalf("Match(%v) = %s from %s, want %s from %s", tt.req, target(m.Handle), m.Source, tt.want, tt.source)
			}
		})
	}
}

func TestBundle_ResolveAbsent(t *testing.T) {
	t.Parallel()

	var zero bundlesync.Bundle
	if h := zero.Resolve(bundlesync.Request{Scheme: "https"}); h != nil {
		t.Fatalf("zero bundle resolved %s", h.Target())
	}
	if m := zero.Match(bundlesync.Request{Scheme: "https"}); m.Source != bundlesync.SourceNone || m.Source.String() != "none" {
		t.Fatalf("zero bundle matched from %s", m.Source)
	}
	if !zero.Empty() {
		t.Fatal("zero bundle not empty")
	}

	b := bundlesync.NewBundle(nil, bundlesync.WithScheme("https", fake.NewEndpoint("tls").Handle()))
	if h := b.Resolve(bundlesync.Request{Scheme: "http"}); h != nil {
		t.Fatalf("resolved %s without a default", h.Target())
	}
}

func TestBundle_CloneFidelity(t *testing.T) {
	t.Parallel()

	b, eps := sampleBundle()
	clone := b.Clone().Bundle()

	if !clone.Equal(b) {
		t.Fatalf("clone = %s, want %s", clone, b)
	}
	for _, req := range []bundlesync.Request{
		{}, {Scheme: "https"}, {Scheme: "file"}, {Scheme: "gopher"},
		{IsolationKey: "chrome-extension://abc"}, {IsolationKey: "chrome-extension://abc", Scheme: "https"},
	} {
		if target(clone.Resolve(req)) != target(b.Resolve(req)) {
			t.Fatalf("clone resolves %v differently", req)
		}
		if clone.Resolve(req) == b.Resolve(req) {
			t.Fatalf("clone shares handle for %v", req)
		}
	}
	for name, ep := range eps {
		if ep.Refs() != 2 {
			t.Fatalf("%s refs = %d, want 2", name, ep.Refs())
		}
	}

	if err := clone.Close(); err != nil {
		t.Fatalf("close clone: %v", err)
	}
	if got := target(b.Resolve(bundlesync.Request{Scheme: "https"})); got != "https" {
		t.Fatalf("source lookup after closing clone = %s", got)
	}
	for name, ep := range eps {
		if ep.Refs() != 1 {
			t.Fatalf("%s refs = %d after closing clone, want 1", name, ep.Refs())
		}
	}
}

func TestBundle_WithoutIsolationFactories(t *testing.T) {
	t.Parallel()

	b, eps := sampleBundle()
	snap := b.WithoutIsolationFactories()
	clone := snap.Bundle()

	if len(clone.IsolationKeys()) != 0 {
		t.Fatalf("isolation keys = %v, want none", clone.IsolationKeys())
	}
	if !slices.Equal(clone.Schemes(), []string{"file", "https"}) {
		t.Fatalf("schemes = %v", clone.Schemes())
	}
	if !clone.BypassRedirectChecks() {
		t.Fatal("bypass flag lost")
	}
	if got := target(clone.Resolve(bundlesync.Request{IsolationKey: "chrome-extension://abc"})); got != "default" {
		t.Fatalf("isolation lookup = %s, want default", got)
	}
	if eps["iso"].Refs() != 1 {
		t.Fatalf("iso refs = %d, want 1", eps["iso"].Refs())
	}
}

func TestBundle_CloseJoinsErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	def := fake.NewEndpoint("default")
	def.FailClose(boom)
	b := bundlesync.NewBundle(def.Handle(), bundlesync.WithScheme("https", fake.NewEndpoint("tls").Handle()))

	if err := b.Close(); !errors.Is(err, boom) {
		t.Fatalf("Close() error = %v, want boom", err)
	}
}

func TestBundle_ReplacedOptionReleasesHandle(t *testing.T) {
	t.Parallel()

	first, second := fake.NewEndpoint("first"), fake.NewEndpoint("second")
	b := bundlesync.NewBundle(nil,
		bundlesync.WithScheme("https", first.Handle()),
		bundlesync.WithScheme("https", second.Handle()))

	if got := target(b.Scheme("https")); got != "second" {
		t.Fatalf("https = %s, want second", got)
	}
	if first.Refs() != 0 {
		t.Fatalf("first refs = %d, want 0", first.Refs())
	}
}

func TestRequestForURL(t *testing.T) {
	t.Parallel()

	u, err := url.Parse("https://example.com/a")
	if err != nil {
		t.Fatal(err)
	}
	req := bundlesync.RequestForURL(u, "iso")
	if req.Scheme != "https" || req.IsolationKey != "iso" {
		t.Fatalf("request = %+v", req)
	}
	if req.String() != "iso/https" {
		t.Fatalf("String() = %q", req.String())
	}
	if got := bundlesync.RequestForURL(nil, "").String(); got != "default" {
		t.Fatalf("String() = %q, want default", got)
	}
}

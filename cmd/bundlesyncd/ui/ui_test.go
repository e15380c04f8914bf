package ui

import (
	"strings"
	"testing"
)

func TestTableContainsCells(t *testing.T) {
	t.Parallel()

	out := Table([]string{"REQUEST", "TARGET"}, [][]string{
		{"https", "passthrough:///network"},
		{"iso/file", "passthrough:///files"},
	})
	for _, want := range []string{"REQUEST", "TARGET", "https", "passthrough:///network", "iso/file", "passthrough:///files"} {
		if !strings.Contains(out, want) {
			t.Fatalf("Table() output missing %q:\n%s", want, out)
		}
	}
	if lines := strings.Count(out, "\n"); lines < 4 {
		t.Fatalf("Table() rendered %d lines, want at least 4:\n%s", lines, out)
	}
}

func TestConfigureColor_PlainStripsEscapes(t *testing.T) {
	ConfigureColor(true)
	if out := Accent("target"); out != "target" {
		t.Fatalf("Accent() = %q, want plain text", out)
	}
	if out := Table([]string{"A"}, [][]string{{"b"}}); strings.Contains(out, "\x1b[") {
		t.Fatalf("Table() emitted escapes under plain profile:\n%q", out)
	}
}

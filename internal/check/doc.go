// Package check holds invariant assertions for sequence-confined state.
//
// Assertions compile to no-ops unless the module is built with -tags debug.
// Callers must not rely on them for control flow: every asserted condition
// also has a release-mode fallback at the call site.
package check

//go:build debug

package check

// Enabled reports whether assertions panic. Set by the debug build tag.
const Enabled = true

// Package replication keeps copies of a session's factory Bundle consistent
// across sequences.
//
// One Authority owns the canonical Bundle on its home sequence. Replicas live
// on any sequence, each with a private copy of the Bundle for local lookups.
// A Replica registers with its Authority by posting to the Authority's
// sequence; when the Authority's Bundle is replaced it posts a clone to every
// registered Replica's sequence. Objects reach each other only through
// sequence.WeakRef, so destroying either side turns in-flight messages into
// no-ops. No Bundle is ever shared between sequences.
package replication

// Package sequence provides ordered, single-goroutine task queues and the
// weak references used to address objects confined to them.
//
// A sequence runs the tasks posted to it one at a time, in post order. State
// that is only touched from tasks of one sequence needs no further locking.
// Cross-sequence interaction is always a PostTask; nothing here blocks the
// poster.
package sequence

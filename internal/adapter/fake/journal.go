package fake

import (
	"slices"
	"sync"
)

type Op string

const (
	OpOpen  Op = "open"
	OpClose Op = "close"
)

// Event is one open or close of a numbered Handle.
type Event struct {
	Op     Op
	Handle int
	Target string
}

// Journal records the lifecycle of every Handle of one Endpoint, in order.
type Journal struct {
	mu     sync.Mutex
	events []Event
}

func (j *Journal) record(op Op, handle int, target string) {
	j.mu.Lock()
	j.events = append(j.events, Event{Op: op, Handle: handle, Target: target})
	j.mu.Unlock()
}

// Events returns every recorded event in order.
func (j *Journal) Events() []Event {
	j.mu.Lock()
	defer j.mu.Unlock()
	return slices.Clone(j.events)
}

// Leaked returns the ids of handles opened but not yet closed, in the order
// they were opened.
func (j *Journal) Leaked() []int {
	j.mu.Lock()
	defer j.mu.Unlock()

	closed := make(map[int]bool)
	for _, e := range j.events {
		if e.Op == OpClose {
			closed[e.Handle] = true
		}
	}
	var open []int
	for _, e := range j.events {
		if e.Op == OpOpen && !closed[e.Handle] {
			open = append(open, e.Handle)
		}
	}
	return open
}

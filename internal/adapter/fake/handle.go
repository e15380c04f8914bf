package fake

import (
	"errors"
	"sync"

	"bundlesync"
)

var _ bundlesync.FactoryHandle = (*Handle)(nil)

var ErrHandleClosed = errors.New("fake handle already closed")

// Endpoint stands in for one connection factory endpoint and counts the live
// references to it. Its Journal numbers handles in the order they were opened.
type Endpoint struct {
	Journal

	target string

	mu       sync.Mutex
	refs     int
	opened   int
	closeErr error
}

func NewEndpoint(target string) *Endpoint {
	return &Endpoint{target: target}
}

// Handle returns a fresh reference to the endpoint.
func (e *Endpoint) Handle() *Handle {
	e.mu.Lock()
	e.refs++
	e.opened++
	id := e.opened
	e.mu.Unlock()
	e.record(OpOpen, id, e.target)
	return &Handle{endpoint: e, id: id}
}

// Refs returns the number of open references.
func (e *Endpoint) Refs() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.refs
}

// Opened returns the number of references ever handed out.
func (e *Endpoint) Opened() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opened
}

// FailClose makes every following Close return err.
func (e *Endpoint) FailClose(err error) {
	e.mu.Lock()
	e.closeErr = err
	e.mu.Unlock()
}

func (e *Endpoint) Target() string { return e.target }

// Handle is a FactoryHandle for an Endpoint.
type Handle struct {
	endpoint *Endpoint
	id       int

	mu     sync.Mutex
	closed bool
}

func (h *Handle) Clone() bundlesync.FactoryHandle {
	return h.endpoint.Handle()
}

func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHandleClosed
	}
	h.closed = true
	h.endpoint.record(OpClose, h.id, h.endpoint.target)

	e := h.endpoint
	e.mu.Lock()
	defer e.mu.Unlock()
	e.refs--
	return e.closeErr
}

func (h *Handle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *Handle) Target() string { return h.endpoint.target }

// ID is the handle's position in its Endpoint's open order, starting at 1.
func (h *Handle) ID() int { return h.id }

// Package lifecycle tracks the Running -> Stopping -> Stopped progression of
// the mock server.
package lifecycle

import (
	"sync"
	"sync/atomic"
)

// State is the server lifecycle state.
type State int32

const (
	Running State = iota
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Controller is safe for concurrent use. Transitions only move forward.
type Controller struct {
	state    atomic.Int32
	stopping chan struct{}
	stopped  chan struct{}

	mu     sync.Mutex
	reason string
}

// New returns a Controller in the Running state.
func New() *Controller {
	return &Controller{
		stopping: make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// State returns the current state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Running reports whether requests should still be served.
func (c *Controller) Running() bool {
	return c.State() == Running
}

// RequestStop moves Running to Stopping. Only the first caller wins and gets
// true; later calls are no-ops.
func (c *Controller) RequestStop(reason string) bool {
	if !c.state.CompareAndSwap(int32(Running), int32(Stopping)) {
		return false
	}
	c.mu.Lock()
	c.reason = reason
	c.mu.Unlock()
	close(c.stopping)
	return true
}

// MarkStopped moves to Stopped. A Running controller passes through
// Stopping first so Stopping() always closes before Done().
func (c *Controller) MarkStopped() {
	c.RequestStop("stopped")
	if c.state.CompareAndSwap(int32(Stopping), int32(Stopped)) {
		close(c.stopped)
	}
}

// Stopping is closed once a stop has been requested.
func (c *Controller) Stopping() <-chan struct{} {
	return c.stopping
}

// Done is closed once the server has fully stopped.
func (c *Controller) Done() <-chan struct{} {
	return c.stopped
}

// Reason returns what triggered the stop, or "" while running.
func (c *Controller) Reason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

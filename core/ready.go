package core

import (
	"sync"
)

// ReadyGate is a two-phase readiness flag: NotReady until MarkReady is
// called, then Ready for good. A load failure keeps the gate closed and is
// recorded for display.
type ReadyGate struct {
	mu    sync.Mutex
	ready bool
	err   error
	done  chan struct{}
}

// NewReadyGate returns a gate in the NotReady phase.
func NewReadyGate() *ReadyGate {
	return &ReadyGate{done: make(chan struct{})}
}

// MarkReady opens the gate. Later calls are no-ops.
func (g *ReadyGate) MarkReady() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ready {
		return
	}
	g.ready = true
	g.err = nil
	close(g.done)
}

// Fail records why loading failed. It has no effect once the gate is open.
func (g *ReadyGate) Fail(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ready {
		return
	}
	g.err = err
}

// Ready reports whether the gate is open.
func (g *ReadyGate) Ready() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ready
}

// Err returns the last recorded load failure.
func (g *ReadyGate) Err() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}

// Done is closed when the gate opens.
func (g *ReadyGate) Done() <-chan struct{} {
	return g.done
}

package main

import (
	"sync"
	"sync/atomic"
	"time"
)

// RunGate admits at most one run at a time. It never queues: a second
// TryAcquire while a token is outstanding fails with ErrBusy.
type RunGate struct {
	slot chan struct{}
}

// NewRunGate creates an open gate
func NewRunGate() *RunGate {
	return &RunGate{slot: make(chan struct{}, 1)}
}

// RunToken is the exclusive right to perform one run. Release it exactly once,
// normally with defer right after acquisition.
type RunToken struct {
	gate      *RunGate
	Operation string
	Acquired  time.Time
	once      sync.Once
	released  atomic.Bool
}

// TryAcquire takes the gate for operation or fails immediately with ErrBusy
func (g *RunGate) TryAcquire(operation string) (*RunToken, error) {
	select {
	case g.slot <- struct{}{}:
		return &RunToken{gate: g, Operation: operation, Acquired: time.Now()}, nil
	default:
		return nil, ErrBusy
	}
}

// Busy reports whether a run currently holds the gate
func (g *RunGate) Busy() bool {
	return len(g.slot) > 0
}

// Release frees the gate. Calling it more than once is a no-op.
func (t *RunToken) Release() {
	if t == nil {
		return
	}
	t.once.Do(func() {
		t.released.Store(true)
		<-t.gate.slot
	})
}

func (t *RunToken) check(gate *RunGate) error {
	if t == nil || t.gate != gate {
		return invariantErrorf("run started without a token from this gate")
	}
	if t.released.Load() {
		return invariantErrorf("run started with a released %s token", t.Operation)
	}
	return nil
}

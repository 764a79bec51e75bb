package loop

import (
	"context"
	"sync"
)

// PauseGate is an external pause switch with at most one pending waiter.
// Observers embed it to implement IsPaused and WaitForUnpause.
type PauseGate struct {
	mu     sync.Mutex
	paused bool
	slot   Slot[struct{}]
}

// SetPaused changes the pause state. Unpausing releases the pending waiter.
func (g *PauseGate) SetPaused(paused bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.paused = paused
	if !paused {
		g.slot.Resolve(struct{}{})
	}
}

// Toggle flips the pause state and returns the new value.
func (g *PauseGate) Toggle() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.paused = !g.paused
	if !g.paused {
		g.slot.Resolve(struct{}{})
	}
	return g.paused
}

// IsPaused reports whether the gate is closed.
func (g *PauseGate) IsPaused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// WaitForUnpause blocks until the gate is opened or ctx ends. It returns
// immediately when not paused and ErrWaitPending if another caller is
// already waiting.
func (g *PauseGate) WaitForUnpause(ctx context.Context) error {
	g.mu.Lock()
	if !g.paused {
		g.mu.Unlock()
		return nil
	}
	ch, err := g.slot.Register()
	g.mu.Unlock()
	if err != nil {
		return err
	}

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		g.slot.Clear()
		return ctx.Err()
	}
}

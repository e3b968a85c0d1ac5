// Package pause implements a temporary suppression window.
package pause

import (
	"sync"
	"time"
)

// Gate is a pause switch that resets itself after a delay.
// The zero value is an open gate.
type Gate struct {
	mu     sync.Mutex
	paused bool
	// gen identifies the live timer. Timers from earlier trips compare
	// unequal and do nothing when they fire.
	gen   uint64
	timer *time.Timer
}

// Trip closes the gate for d. Once d elapses, the gate reopens and resumed is
// called, if it is not nil. Tripping a closed gate replaces its timer, so the
// latest trip determines when the gate reopens.
func (g *Gate) Trip(d time.Duration, resumed func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.paused = true
	g.gen++
	gen := g.gen
	if g.timer != nil {
		g.timer.Stop()
	}
	g.timer = time.AfterFunc(d, func() {
		g.mu.Lock()
		if g.gen != gen {
			g.mu.Unlock()
			return
		}
		g.paused = false
		g.timer = nil
		g.mu.Unlock()
		if resumed != nil {
			resumed()
		}
	})
}

// Paused reports whether the gate is closed.
func (g *Gate) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

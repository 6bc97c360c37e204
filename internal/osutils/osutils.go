// Package osutils holds platform helpers for display wake-up and firewall setup.
package osutils

import (
	"log"
	"sync"
	"time"
)

// FirewallRuleName is the inbound rule created for the peer and API ports
const FirewallRuleName = "edgekvm"

// Waker nudges the pointer so a sleeping display wakes before injected input
// lands. Calls within Interval of the previous nudge are skipped.
type Waker struct {
	Interval time.Duration

	mu    sync.Mutex
	last  time.Time
	nudge func() error
}

// NewWaker returns a Waker using the platform nudge
func NewWaker(interval time.Duration) *Waker {
	return &Waker{Interval: interval, nudge: nudgePointer}
}

// WakeUp nudges the pointer unless it was nudged recently
func (w *Waker) WakeUp() {
	w.mu.Lock()
	now := time.Now()
	if !w.last.IsZero() && now.Sub(w.last) < w.Interval {
		w.mu.Unlock()
		return
	}
	w.last = now
	w.mu.Unlock()

	if err := w.nudge(); err != nil {
		log.Printf("WakeUp: %v", err)
	}
}

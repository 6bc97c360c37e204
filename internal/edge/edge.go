// Package edge watches the local pointer and reports when it is pushed
// against a screen edge.
package edge

import (
	"context"
	"log"
	"time"

	"edgekvm/internal/geometry"
	"edgekvm/internal/input"
)

// Config tunes the poll loop
type Config struct {
	Interval  time.Duration
	Threshold int
}

func DefaultConfig() Config {
	return Config{Interval: 50 * time.Millisecond, Threshold: 5}
}

// Trigger polls the pointer while its gate is open and calls OnEdge when
// the pointer touches an edge and has moved since the previous sample.
type Trigger struct {
	pointer input.Pointer
	screen  func() geometry.Screen
	gate    func() bool
	onEdge  func(geometry.Edge, geometry.Point)
	cfg     Config

	last    geometry.Point
	hasLast bool
	failing bool
}

// New builds a trigger. gate reports whether edge crossings matter right
// now; while it is closed the previous sample is forgotten so reopening
// never counts as movement.
func New(pointer input.Pointer, screen func() geometry.Screen, gate func() bool, onEdge func(geometry.Edge, geometry.Point), cfg Config) *Trigger {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.Threshold < 0 {
		cfg.Threshold = 0
	}
	return &Trigger{
		pointer: pointer,
		screen:  screen,
		gate:    gate,
		onEdge:  onEdge,
		cfg:     cfg,
	}
}

// Run samples until ctx is cancelled
func (t *Trigger) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.cfg.Interval)
	defer ticker.Stop()

	log.Printf("Edge: watching every %v with %dpx threshold", t.cfg.Interval, t.cfg.Threshold)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			t.step()
		}
	}
}

func (t *Trigger) step() {
	if !t.gate() {
		t.hasLast = false
		return
	}

	x, y, err := t.pointer.Position()
	if err != nil {
		if !t.failing {
			log.Printf("Edge: pointer read failed: %v", err)
			t.failing = true
		}
		return
	}
	t.failing = false

	p := geometry.Point{X: x, Y: y}
	moved := t.hasLast && p != t.last
	t.last, t.hasLast = p, true
	if !moved {
		return
	}

	s := t.screen()
	if !s.Valid() {
		return
	}
	if e := geometry.DetectEdge(p, s, t.cfg.Threshold); e != geometry.EdgeNone {
		t.onEdge(e, p)
	}
}

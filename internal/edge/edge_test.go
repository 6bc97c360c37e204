package edge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"edgekvm/internal/geometry"
)

type pointer struct {
	mu   sync.Mutex
	x, y int
	err  error
}

func (p *pointer) Position() (int, int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.x, p.y, p.err
}

func (p *pointer) set(x, y int) {
	p.mu.Lock()
	p.x, p.y = x, y
	p.mu.Unlock()
}

type hit struct {
	edge geometry.Edge
	p    geometry.Point
}

func newTrigger(p *pointer, gate *bool, hits *[]hit) *Trigger {
	screen := geometry.MustNew(1920, 1080, 0, 0, "a")
	return New(p, func() geometry.Screen { return screen }, func() bool { return *gate },
		func(e geometry.Edge, pt geometry.Point) { *hits = append(*hits, hit{e, pt}) },
		DefaultConfig())
}

// TestFiresOnContactWithMovement requires both edge contact and motion
func TestFiresOnContactWithMovement(t *testing.T) {
	p := &pointer{x: 1900, y: 540}
	gate := true
	var hits []hit
	tr := newTrigger(p, &gate, &hits)

	tr.step() // first sample, nothing to compare with
	p.set(1919, 540)
	tr.step()
	tr.step() // resting on the edge

	if len(hits) != 1 {
		t.Fatalf("Expected exactly one hit, got %d", len(hits))
	}
	if hits[0].edge != geometry.EdgeRight || hits[0].p != (geometry.Point{X: 1919, Y: 540}) {
		t.Errorf("Unexpected hit %+v", hits[0])
	}

	p.set(960, 540)
	tr.step()
	if len(hits) != 1 {
		t.Error("Expected no hit away from the edges")
	}
}

// TestThreshold checks every edge within 5px
func TestThreshold(t *testing.T) {
	tests := []struct {
		x, y int
		want geometry.Edge
	}{
		{1915, 500, geometry.EdgeRight},
		{5, 500, geometry.EdgeLeft},
		{900, 3, geometry.EdgeTop},
		{900, 1076, geometry.EdgeBottom},
		{1913, 500, geometry.EdgeNone},
		{6, 6, geometry.EdgeNone},
	}
	for _, tt := range tests {
		p := &pointer{x: 960, y: 540}
		gate := true
		var hits []hit
		tr := newTrigger(p, &gate, &hits)
		tr.step()
		p.set(tt.x, tt.y)
		tr.step()

		got := geometry.EdgeNone
		if len(hits) > 0 {
			got = hits[0].edge
		}
		if got != tt.want {
			t.Errorf("(%d,%d): expected %s, got %s", tt.x, tt.y, tt.want, got)
		}
	}
}

// TestGateResetsHistory checks a closed gate suppresses hits and forgets the last sample
func TestGateResetsHistory(t *testing.T) {
	p := &pointer{x: 100, y: 540}
	gate := true
	var hits []hit
	tr := newTrigger(p, &gate, &hits)
	tr.step()

	gate = false
	p.set(0, 540)
	tr.step()
	if len(hits) != 0 {
		t.Fatal("Expected no hit while gated")
	}

	gate = true
	tr.step() // at the edge already, but no prior sample
	if len(hits) != 0 {
		t.Error("Expected reopening not to count as movement")
	}
	p.set(0, 541)
	tr.step()
	if len(hits) != 1 || hits[0].edge != geometry.EdgeLeft {
		t.Errorf("Expected a left hit after moving, got %+v", hits)
	}
}

func TestPointerErrorsSkipped(t *testing.T) {
	p := &pointer{err: errors.New("no display")}
	gate := true
	var hits []hit
	tr := newTrigger(p, &gate, &hits)
	tr.step()
	tr.step()
	if len(hits) != 0 || tr.hasLast {
		t.Error("Expected failed reads to be ignored")
	}
}

// TestRunStopsOnCancel exits promptly when the context ends
func TestRunStopsOnCancel(t *testing.T) {
	p := &pointer{x: 10, y: 10}
	tr := New(p, func() geometry.Screen { return geometry.MustNew(800, 600, 0, 0, "") },
		func() bool { return true }, func(geometry.Edge, geometry.Point) {},
		Config{Interval: time.Millisecond, Threshold: 5})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx) }()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

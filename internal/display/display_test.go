package display

import (
	"errors"
	"sync"
	"testing"

	"edgekvm/internal/geometry"
)

type seqSource struct {
	mu      sync.Mutex
	screens []geometry.Screen
	err     error
}

func (s *seqSource) Current() (geometry.Screen, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return geometry.Screen{}, s.err
	}
	out := s.screens[0]
	if len(s.screens) > 1 {
		s.screens = s.screens[1:]
	}
	return out, nil
}

func TestFixed(t *testing.T) {
	want := geometry.MustNew(1280, 800, 0, 0, "laptop")
	got, err := Fixed{Screen: want}.Current()
	if err != nil || got != want {
		t.Errorf("Expected %v, got %v (%v)", want, got, err)
	}
	if _, err := (Fixed{}).Current(); !errors.Is(err, geometry.ErrInvalidGeometry) {
		t.Errorf("Expected ErrInvalidGeometry for zero screen, got %v", err)
	}
}

// TestCacheRefresh swaps geometry and notifies only on change
func TestCacheRefresh(t *testing.T) {
	a := geometry.MustNew(1920, 1080, 0, 0, "a")
	b := geometry.MustNew(2560, 1440, 0, 0, "a")
	src := &seqSource{screens: []geometry.Screen{a, a, b}}

	c, err := NewCache(src)
	if err != nil {
		t.Fatalf("NewCache failed: %v", err)
	}
	var seen []geometry.Screen
	c.OnChange(func(s geometry.Screen) { seen = append(seen, s) })

	if c.Refresh() {
		t.Error("Expected no change for identical geometry")
	}
	if !c.Refresh() {
		t.Error("Expected a change")
	}
	if c.Get() != b {
		t.Errorf("Expected %v, got %v", b, c.Get())
	}

	src.err = errors.New("gone")
	if c.Refresh() || c.Get() != b {
		t.Error("Expected failing refresh to keep the last geometry")
	}
	if len(seen) != 1 || seen[0] != b {
		t.Errorf("Expected one change notification, got %v", seen)
	}
}

func TestCacheRequiresFirstRead(t *testing.T) {
	if _, err := NewCache(&seqSource{err: ErrNoDisplay}); !errors.Is(err, ErrNoDisplay) {
		t.Errorf("Expected ErrNoDisplay, got %v", err)
	}
}

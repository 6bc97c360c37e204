package hotkey

import (
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

func TestParseCombo(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"Ctrl+Alt+Right", []string{"CTRL", "ALT", "RIGHT"}},
		{" ctrl + shift + f12 ", []string{"CTRL", "SHIFT", "F12"}},
		{"Mouse2+Mouse3", []string{"MOUSE2", "MOUSE3"}},
		{"", nil},
		{"+", nil},
	}
	for _, tt := range tests {
		if got := ParseCombo(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseCombo(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// TestComboFiresOncePerPress checks auto-repeat and held keys do not refire
func TestComboFiresOncePerPress(t *testing.T) {
	m := NewManager()
	fired := make(chan struct{}, 10)
	if err := m.Register("Ctrl+Alt+Left", func() { fired <- struct{}{} }); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	m.UpdateState("ctrl", true)
	m.UpdateState("ALT", true)
	m.UpdateState("LEFT", true)
	m.UpdateState("LEFT", true) // repeat
	m.UpdateState("LEFT", false)
	m.UpdateState("LEFT", true)

	count := 0
	timeout := time.After(200 * time.Millisecond)
	for count < 2 {
		select {
		case <-fired:
			count++
		case <-timeout:
			t.Fatalf("Expected 2 firings, got %d", count)
		}
	}
	select {
	case <-fired:
		t.Error("Expected no third firing")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRegisterEmpty(t *testing.T) {
	m := NewManager()
	if err := m.Register(" ", func() {}); !errors.Is(err, ErrEmptyCombo) {
		t.Errorf("Expected ErrEmptyCombo, got %v", err)
	}
}

// TestListenSeesEveryEvent checks listeners get keys, repeats and wheel
func TestListenSeesEveryEvent(t *testing.T) {
	m := NewManager()
	var mu sync.Mutex
	var got []RawEvent
	m.Listen(func(e RawEvent) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
	})

	m.UpdateState("a", true)
	m.UpdateState("a", true)
	m.UpdateState("a", false)
	m.UpdateWheel(0, 3)
	m.UpdateWheel(0, 0)

	want := []RawEvent{
		{Name: "A", Down: true},
		{Name: "A", Down: true},
		{Name: "A", Down: false},
		{WheelY: 3},
	}
	mu.Lock()
	defer mu.Unlock()
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %+v, got %+v", want, got)
	}
	if !got[3].IsWheel() || got[0].IsWheel() {
		t.Error("IsWheel misclassified events")
	}
}

func TestSuppressFlag(t *testing.T) {
	m := NewManager()
	if m.Suppressed() {
		t.Error("Expected suppression off by default")
	}
	m.Suppress(true)
	if !m.Suppressed() {
		t.Error("Expected suppression on")
	}
}

package osutils

import (
	"errors"
	"testing"
	"time"
)

// TestWakerThrottles skips nudges inside the interval
func TestWakerThrottles(t *testing.T) {
	calls := 0
	w := &Waker{Interval: time.Hour, nudge: func() error { calls++; return nil }}

	w.WakeUp()
	w.WakeUp()
	if calls != 1 {
		t.Errorf("Expected 1 nudge, got %d", calls)
	}

	w.Interval = 0
	w.WakeUp()
	if calls != 2 {
		t.Errorf("Expected 2 nudges without an interval, got %d", calls)
	}
}

func TestWakerLogsErrors(t *testing.T) {
	w := &Waker{nudge: func() error { return errors.New("no display") }}
	w.WakeUp()
}

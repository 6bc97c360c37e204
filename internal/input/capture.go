package input

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"edgekvm/internal/geometry"
	"edgekvm/internal/hotkey"
)

// Hooks is the global key, button and wheel source
type Hooks interface {
	Listen(fn func(hotkey.RawEvent))
	Suppress(on bool)
}

// Mover warps the local pointer
type Mover interface {
	Move(x, y int) error
}

// PollCapturer samples the pointer on a ticker and takes keys, buttons and
// wheel from the global hooks.
//
// While suppressed the pointer is pinned to the screen center: every sample
// reports its offset from the center as relative motion and warps back, so
// the cursor never reaches a local edge or window.
type PollCapturer struct {
	pointer  Pointer
	mover    Mover
	center   func() geometry.Point
	hooks    Hooks
	interval time.Duration

	mu         sync.Mutex
	out        chan Event
	suppressed bool
	lastX      int
	lastY      int
	dropped    int
}

// NewPollCapturer builds a capturer. hooks may be nil, in which case only
// pointer motion is captured.
func NewPollCapturer(pointer Pointer, mover Mover, center func() geometry.Point, hooks Hooks, interval time.Duration) *PollCapturer {
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	return &PollCapturer{
		pointer:  pointer,
		mover:    mover,
		center:   center,
		hooks:    hooks,
		interval: interval,
	}
}

// Start begins sampling. The returned channel closes when ctx is done.
func (c *PollCapturer) Start(ctx context.Context) (<-chan Event, error) {
	x, y, err := c.pointer.Position()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	out := make(chan Event, 256)
	c.mu.Lock()
	if c.out != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("capturer already started")
	}
	c.out = out
	c.lastX, c.lastY = x, y
	c.mu.Unlock()

	if c.hooks != nil {
		c.hooks.Listen(c.onHook)
	}

	go c.run(ctx)
	return out, nil
}

func (c *PollCapturer) run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	failing := false
	for {
		select {
		case <-ctx.Done():
			c.mu.Lock()
			close(c.out)
			c.out = nil
			c.mu.Unlock()
			return
		case <-ticker.C:
		}

		if err := c.sample(); err != nil {
			if !failing {
				log.Printf("Input: pointer read failed: %v", err)
				failing = true
			}
			continue
		}
		failing = false
	}
}

// sample reads under the lock so a concurrent Suppress cannot turn a
// stale position into a huge delta.
func (c *PollCapturer) sample() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	x, y, err := c.pointer.Position()
	if err != nil {
		return err
	}

	if !c.suppressed {
		dx, dy := x-c.lastX, y-c.lastY
		c.lastX, c.lastY = x, y
		if dx != 0 || dy != 0 {
			c.emitLocked(Event{Kind: KindMove, X: x, Y: y, DX: dx, DY: dy})
		}
		return nil
	}

	ctr := c.center()
	dx, dy := x-ctr.X, y-ctr.Y
	if dx == 0 && dy == 0 {
		return nil
	}
	c.emitLocked(Event{Kind: KindMove, X: x, Y: y, DX: dx, DY: dy})
	if err := c.mover.Move(ctr.X, ctr.Y); err != nil {
		log.Printf("Input: recenter failed: %v", err)
	}
	c.lastX, c.lastY = ctr.X, ctr.Y
	return nil
}

// Suppress pins the pointer and swallows hooked input while on
func (c *PollCapturer) Suppress(on bool) {
	c.mu.Lock()
	if on && !c.suppressed {
		ctr := c.center()
		if err := c.mover.Move(ctr.X, ctr.Y); err != nil {
			log.Printf("Input: recenter failed: %v", err)
		}
		c.lastX, c.lastY = ctr.X, ctr.Y
	}
	c.suppressed = on
	c.mu.Unlock()

	if c.hooks != nil {
		c.hooks.Suppress(on)
	}
}

// Dropped returns how many events were discarded on a full channel
func (c *PollCapturer) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

func (c *PollCapturer) onHook(e hotkey.RawEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ev := Event{X: c.lastX, Y: c.lastY}
	switch {
	case e.IsWheel():
		ev.Kind, ev.DX, ev.DY = KindScroll, e.WheelX, e.WheelY
	case e.Name == "":
		return
	default:
		if b, ok := ButtonName(e.Name); ok {
			ev.Kind, ev.Button, ev.Pressed = KindButton, b, e.Down
		} else if strings.HasPrefix(e.Name, "MOUSE") {
			return
		} else {
			ev.Kind, ev.Key, ev.Pressed = KindKey, KeySymbol(e.Name), e.Down
		}
	}
	c.emitLocked(ev)
}

func (c *PollCapturer) emitLocked(ev Event) {
	if c.out == nil {
		return
	}
	select {
	case c.out <- ev:
	default:
		c.dropped++
	}
}

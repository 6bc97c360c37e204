// Package inputtest provides an in-memory desktop for tests.
package inputtest

import (
	"context"
	"sync"

	"edgekvm/internal/input"
)

// Call is one recorded injection
type Call struct {
	Op      string // "move", "button", "scroll", "key"
	X, Y    int
	DX, DY  int
	Button  string
	Key     string
	Pressed bool
}

// Desktop fakes the pointer, injector, clipboard and capturer
type Desktop struct {
	mu         sync.Mutex
	x, y       int
	calls      []Call
	clip       string
	clipWrites []string
	suppressed bool
	events     chan input.Event
	Fail       error
}

func New(x, y int) *Desktop {
	return &Desktop{x: x, y: y, events: make(chan input.Event, 64)}
}

// SetPosition moves the fake pointer as a user would
func (d *Desktop) SetPosition(x, y int) {
	d.mu.Lock()
	d.x, d.y = x, y
	d.mu.Unlock()
}

func (d *Desktop) Position() (int, int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.x, d.y, d.Fail
}

func (d *Desktop) record(c Call) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Fail != nil {
		return d.Fail
	}
	d.calls = append(d.calls, c)
	if c.Op != "key" {
		d.x, d.y = c.X, c.Y
	}
	return nil
}

func (d *Desktop) Move(x, y int) error {
	return d.record(Call{Op: "move", X: x, Y: y})
}

func (d *Desktop) Button(x, y int, button string, pressed bool) error {
	return d.record(Call{Op: "button", X: x, Y: y, Button: button, Pressed: pressed})
}

func (d *Desktop) Scroll(x, y, dx, dy int) error {
	return d.record(Call{Op: "scroll", X: x, Y: y, DX: dx, DY: dy})
}

func (d *Desktop) Key(symbol string, pressed bool) error {
	return d.record(Call{Op: "key", Key: symbol, Pressed: pressed})
}

// Calls returns a copy of the recorded injections
func (d *Desktop) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Call(nil), d.calls...)
}

func (d *Desktop) Read() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clip, d.Fail
}

func (d *Desktop) Write(text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Fail != nil {
		return d.Fail
	}
	d.clip = text
	d.clipWrites = append(d.clipWrites, text)
	return nil
}

// SetClipboard changes the clipboard as a local application would
func (d *Desktop) SetClipboard(text string) {
	d.mu.Lock()
	d.clip = text
	d.mu.Unlock()
}

// ClipboardWrites returns every text written through Write
func (d *Desktop) ClipboardWrites() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.clipWrites...)
}

// Start hands out the feed channel. It is closed when ctx is done.
func (d *Desktop) Start(ctx context.Context) (<-chan input.Event, error) {
	out := make(chan input.Event)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-d.events:
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Feed queues a captured event
func (d *Desktop) Feed(ev input.Event) {
	d.events <- ev
}

func (d *Desktop) Suppress(on bool) {
	d.mu.Lock()
	d.suppressed = on
	d.mu.Unlock()
}

func (d *Desktop) Suppressed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.suppressed
}

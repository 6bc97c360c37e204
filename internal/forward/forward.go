// Package forward moves input between the local desktop and peers.
//
// On the controlling side it turns captured events into protocol messages
// for the owning peer, tracking a virtual pointer in that peer's screen. On
// the driven side it injects input messages from the peer that currently
// drives it. Clipboard text is relayed regardless of ownership.
package forward

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"edgekvm/internal/geometry"
	"edgekvm/internal/input"
	"edgekvm/internal/protocol"
	"edgekvm/internal/session"
)

var (
	ErrNotDriven     = errors.New("input from a peer that is not driving")
	ErrNotInput      = errors.New("not an input message")
	ErrNotForwarding = errors.New("not forwarding")
)

// Stats counts pipeline outcomes
type Stats struct {
	Sent      uint64 `json:"sent"`
	Injected  uint64 `json:"injected"`
	Rejected  uint64 `json:"rejected"`
	Errors    uint64 `json:"errors"`
	Clipboard uint64 `json:"clipboard"`
}

type Pipeline struct {
	peers    Peers
	injector input.Injector
	clip     input.Clipboard

	// Verbose logs every forwarded and injected event
	Verbose bool

	mu     sync.Mutex
	target session.ID
	screen geometry.Screen
	cursor geometry.Point
	driver session.ID

	clipMu   sync.Mutex
	lastClip string

	sent, injected, rejected, errs, clipboard atomic.Uint64
}

// New builds a pipeline. injector and clip may be nil on nodes without
// a usable desktop; the corresponding operations then fail and are counted.
func New(peers Peers, injector input.Injector, clip input.Clipboard) *Pipeline {
	return &Pipeline{peers: peers, injector: injector, clip: clip}
}

// StartForwarding directs captured input at target, whose screen is
// screen, starting the virtual pointer at entry.
func (p *Pipeline) StartForwarding(target session.ID, screen geometry.Screen, entry geometry.Point) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.target = target
	p.screen = screen
	p.cursor = geometry.Clamp(entry, screen)
}

// StopForwarding ends forwarding and returns the last virtual pointer
// position in the former target's screen.
func (p *Pipeline) StopForwarding() (session.ID, geometry.Point, geometry.Screen) {
	p.mu.Lock()
	defer p.mu.Unlock()
	target, cursor, screen := p.target, p.cursor, p.screen
	p.target = ""
	return target, cursor, screen
}

// Target returns the peer input is forwarded to
func (p *Pipeline) Target() (session.ID, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.target, p.target != ""
}

// Cursor returns the virtual pointer in the target's screen
func (p *Pipeline) Cursor() geometry.Point {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// SetDriver accepts input messages from peer only. An empty peer rejects all.
func (p *Pipeline) SetDriver(peer session.ID) {
	p.mu.Lock()
	p.driver = peer
	p.mu.Unlock()
}

func (p *Pipeline) Driver() (session.ID, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.driver, p.driver != ""
}

// Run forwards captured events until the channel closes or ctx ends
func (p *Pipeline) Run(ctx context.Context, events <-chan input.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			p.HandleLocal(ev)
		}
	}
}

// HandleLocal forwards one captured event to the current target. Events
// captured while nothing is forwarded are dropped.
func (p *Pipeline) HandleLocal(ev input.Event) error {
	p.mu.Lock()
	target := p.target
	if target == "" {
		p.mu.Unlock()
		return nil
	}
	msg := p.translateLocked(ev)
	p.mu.Unlock()

	if msg == nil {
		return nil
	}
	if err := p.peers.Send(target, msg); err != nil {
		p.errs.Add(1)
		log.Printf("Forward: send %s to %s failed: %v", msg.Type(), target, err)
		return err
	}
	p.sent.Add(1)
	if p.Verbose {
		log.Printf("Forward: %s -> %s %+v", msg.Type(), target, msg)
	}
	return nil
}

func (p *Pipeline) translateLocked(ev input.Event) protocol.Message {
	c := p.cursor
	switch ev.Kind {
	case input.KindMove:
		next := geometry.Clamp(geometry.Point{X: c.X + ev.DX, Y: c.Y + ev.DY}, p.screen)
		if next == c {
			return nil
		}
		p.cursor = next
		return protocol.MouseMove{X: next.X, Y: next.Y}
	case input.KindButton:
		return protocol.MouseClick{X: c.X, Y: c.Y, Button: protocol.Button(ev.Button), Pressed: ev.Pressed}
	case input.KindScroll:
		return protocol.MouseScroll{X: c.X, Y: c.Y, ScrollX: ev.DX, ScrollY: ev.DY}
	case input.KindKey:
		if ev.Pressed {
			return protocol.KeyPress{Key: ev.Key, Pressed: true}
		}
		return protocol.KeyRelease{Key: ev.Key, Pressed: false}
	}
	return nil
}

// HandleRemote injects an input message received from peer
func (p *Pipeline) HandleRemote(from session.ID, m protocol.Message) error {
	if !protocol.IsInput(m) {
		return ErrNotInput
	}
	p.mu.Lock()
	driver := p.driver
	p.mu.Unlock()
	if driver == "" || driver != from {
		p.rejected.Add(1)
		log.Printf("Forward: rejected %s from %s: %v", m.Type(), from, ErrNotDriven)
		return ErrNotDriven
	}

	if err := p.inject(m); err != nil {
		p.errs.Add(1)
		log.Printf("Forward: inject %s failed: %v", m.Type(), err)
		return err
	}
	p.injected.Add(1)
	if p.Verbose {
		log.Printf("Forward: injected %s %+v", m.Type(), m)
	}
	return nil
}

func (p *Pipeline) inject(m protocol.Message) error {
	if p.injector == nil {
		return input.ErrUnavailable
	}
	switch msg := m.(type) {
	case protocol.MouseMove:
		return p.injector.Move(msg.X, msg.Y)
	case protocol.MouseClick:
		return p.injector.Button(msg.X, msg.Y, string(msg.Button), msg.Pressed)
	case protocol.MouseScroll:
		return p.injector.Scroll(msg.X, msg.Y, msg.ScrollX, msg.ScrollY)
	case protocol.KeyPress:
		return p.injector.Key(msg.Key, msg.Pressed)
	case protocol.KeyRelease:
		return p.injector.Key(msg.Key, msg.Pressed)
	}
	return fmt.Errorf("%w: %s", ErrNotInput, m.Type())
}

// Stats returns the counters
func (p *Pipeline) Stats() Stats {
	return Stats{
		Sent:      p.sent.Load(),
		Injected:  p.injected.Load(),
		Rejected:  p.rejected.Load(),
		Errors:    p.errs.Load(),
		Clipboard: p.clipboard.Load(),
	}
}

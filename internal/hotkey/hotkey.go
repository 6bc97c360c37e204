// Package hotkey runs the global keyboard and mouse hooks and matches
// registered key combinations against them.
//
// The hooks are also the only source of raw key, button and wheel events:
// listeners registered with Listen see every notification, and while
// Suppress is on the platform hook swallows them so the local desktop does
// not react to input that is being forwarded.
package hotkey

import (
	"errors"
	"log"
	"strings"
	"sync"
	"sync/atomic"
)

var (
	ErrEmptyCombo  = errors.New("empty hotkey combination")
	ErrUnsupported = errors.New("global input hooks not supported on this platform")
)

// RawEvent is one hook notification. Wheel events carry a zero Name and
// the wheel deltas in notches.
type RawEvent struct {
	Name   string
	Down   bool
	WheelX int
	WheelY int
}

// IsWheel reports whether e is a wheel notification
func (e RawEvent) IsWheel() bool {
	return e.Name == "" && (e.WheelX != 0 || e.WheelY != 0)
}

// Manager matches combinations and fans hook events out to listeners
type Manager struct {
	mu        sync.RWMutex
	combos    []*combo
	pressed   map[string]bool
	listeners []func(RawEvent)

	suppress atomic.Bool
	started  atomic.Bool
}

type combo struct {
	parts    []string // e.g. ["CTRL", "ALT", "RIGHT"]
	original string
	callback func()
	armed    bool
}

func NewManager() *Manager {
	return &Manager{pressed: make(map[string]bool)}
}

// Register adds a combination like "Ctrl+Alt+Right" or "Mouse2+Mouse3".
// The callback fires once per press of the full combination.
func (m *Manager) Register(spec string, callback func()) error {
	parts := ParseCombo(spec)
	if len(parts) == 0 {
		return ErrEmptyCombo
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.combos = append(m.combos, &combo{
		parts:    parts,
		original: spec,
		callback: callback,
	})
	return nil
}

// ParseCombo normalizes a combination string into upper-case key names
func ParseCombo(spec string) []string {
	var parts []string
	for _, p := range strings.Split(spec, "+") {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// Clear removes all registered combinations
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.combos = nil
}

// Listen registers fn for every hook notification. fn runs on the hook
// thread and must not block.
func (m *Manager) Listen(fn func(RawEvent)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// Suppress makes the platform hook swallow keys, buttons and wheel
// instead of passing them on to the desktop.
func (m *Manager) Suppress(on bool) {
	m.suppress.Store(on)
}

func (m *Manager) Suppressed() bool {
	return m.suppress.Load()
}

// Running reports whether the platform hooks were installed
func (m *Manager) Running() bool {
	return m.started.Load()
}

// UpdateState records a key or button transition, notifies listeners and
// fires any combination it completes.
func (m *Manager) UpdateState(key string, isDown bool) {
	key = strings.ToUpper(key)

	m.mu.Lock()
	if isDown {
		if m.pressed[key] {
			// auto-repeat
			m.mu.Unlock()
			m.emit(RawEvent{Name: key, Down: true})
			return
		}
		m.pressed[key] = true
	} else {
		delete(m.pressed, key)
	}
	fired := m.matchLocked()
	m.mu.Unlock()

	m.emit(RawEvent{Name: key, Down: isDown})
	for _, c := range fired {
		log.Printf("Hotkey: %s triggered", c.original)
		go c.callback()
	}
}

// UpdateWheel forwards a wheel notification to listeners
func (m *Manager) UpdateWheel(dx, dy int) {
	if dx == 0 && dy == 0 {
		return
	}
	m.emit(RawEvent{WheelX: dx, WheelY: dy})
}

// matchLocked re-arms combinations that are no longer held and returns the
// ones that just became complete.
func (m *Manager) matchLocked() []*combo {
	var fired []*combo
	for _, c := range m.combos {
		held := true
		for _, part := range c.parts {
			if !m.pressed[part] {
				held = false
				break
			}
		}
		if !held {
			c.armed = false
			continue
		}
		if !c.armed {
			c.armed = true
			fired = append(fired, c)
		}
	}
	return fired
}

func (m *Manager) emit(e RawEvent) {
	m.mu.RLock()
	listeners := m.listeners
	m.mu.RUnlock()
	for _, fn := range listeners {
		fn(e)
	}
}

// Start installs the platform hooks. Platforms without hooks return
// ErrUnsupported and the manager only matches injected state.
func (m *Manager) Start() error {
	if err := m.startPlatform(); err != nil {
		return err
	}
	m.started.Store(true)
	return nil
}

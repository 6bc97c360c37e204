// Package control arbitrates which endpoint owns the physical input.
//
// Every ownership change goes through Machine. A transition holds the
// transitioning flag while its side effects run; any request that arrives in
// that window is rejected, not queued.
package control

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"edgekvm/internal/geometry"
	"edgekvm/internal/session"
)

var (
	ErrTransitioning = errors.New("ownership transition in progress")
	ErrNotLocal      = errors.New("input is not local")
	ErrNotOwned      = errors.New("input is already local")
	ErrNotOwner      = errors.New("peer is not the owner")
	ErrNoSession     = errors.New("peer has no active session")
)

// Reason says why ownership returned or moved
type Reason int

const (
	ReasonEdge Reason = iota
	ReasonManual
	ReasonPeerReleased
	ReasonPeerLost
)

func (r Reason) String() string {
	switch r {
	case ReasonEdge:
		return "edge"
	case ReasonManual:
		return "manual"
	case ReasonPeerReleased:
		return "peer released"
	case ReasonPeerLost:
		return "peer lost"
	default:
		return "unknown"
	}
}

// Initiated reports whether the local side decided the change, so the peer
// has to be told.
func (r Reason) Initiated() bool {
	return r == ReasonEdge || r == ReasonManual
}

// Owner is either Local (the zero value) or a peer session
type Owner struct {
	peer session.ID
}

// Local is the owner at startup
var Local = Owner{}

// OwnedBy returns the owner value for a peer
func OwnedBy(peer session.ID) Owner {
	return Owner{peer: peer}
}

func (o Owner) IsLocal() bool    { return o.peer == "" }
func (o Owner) Peer() session.ID { return o.peer }

func (o Owner) String() string {
	if o.IsLocal() {
		return "local"
	}
	return string(o.peer)
}

// Effects performs the outside work of a transition
type Effects interface {
	// BeginForwarding tells target it is driven, injecting entry on its side,
	// and starts suppressing and forwarding local input. An error aborts the
	// transfer.
	BeginForwarding(target session.ID, entry *geometry.Point) error
	// EndForwarding stops forwarding to peer and restores the local cursor.
	EndForwarding(peer session.ID, reason Reason)
}

// Transition is delivered to observers after a change is committed.
// Reason is only meaningful when To is Local.
type Transition struct {
	From   Owner
	To     Owner
	Reason Reason
}

// Machine holds the process-wide owner
type Machine struct {
	effects  Effects
	eligible func(session.ID) bool

	mu            sync.Mutex
	owner         Owner
	transitioning bool
	observers     []func(Transition)
}

// New returns a machine owned by Local. eligible reports whether a peer has a
// live, handshaken session.
func New(effects Effects, eligible func(session.ID) bool) *Machine {
	return &Machine{effects: effects, eligible: eligible}
}

// Owner returns the committed owner
func (m *Machine) Owner() Owner {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owner
}

// Transitioning reports whether a transition is running
func (m *Machine) Transitioning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitioning
}

// Subscribe registers fn to run after every committed transition
func (m *Machine) Subscribe(fn func(Transition)) {
	m.mu.Lock()
	m.observers = append(m.observers, fn)
	m.mu.Unlock()
}

// RequestTransfer moves input from Local to target
func (m *Machine) RequestTransfer(target session.ID, entry *geometry.Point) error {
	m.mu.Lock()
	switch {
	case m.transitioning:
		m.mu.Unlock()
		return m.reject("transfer", target, ErrTransitioning)
	case !m.owner.IsLocal():
		m.mu.Unlock()
		return m.reject("transfer", target, ErrNotLocal)
	case !m.eligible(target):
		m.mu.Unlock()
		return m.reject("transfer", target, ErrNoSession)
	}
	m.transitioning = true
	m.mu.Unlock()

	err := m.effects.BeginForwarding(target, entry)

	m.mu.Lock()
	// The session may have closed while the effects ran. Its own return
	// request was rejected as mid-transition, so the check happens here.
	if err == nil && !m.eligible(target) {
		err = ErrNoSession
		m.mu.Unlock()
		m.effects.EndForwarding(target, ReasonPeerLost)
		m.mu.Lock()
	}
	from := m.owner
	if err == nil {
		m.owner = OwnedBy(target)
	}
	m.transitioning = false
	to := m.owner
	m.mu.Unlock()

	if err != nil {
		log.Printf("Control: transfer to %s aborted: %v", target, err)
		return fmt.Errorf("transfer to %s: %w", target, err)
	}
	log.Printf("Control: input now owned by %s", target)
	m.notify(Transition{From: from, To: to})
	return nil
}

// RequestReturn gives input back to Local from whichever peer owns it
func (m *Machine) RequestReturn(reason Reason) error {
	return m.requestReturn("", reason)
}

// RequestReturnFrom is RequestReturn on behalf of peer, which must be the owner
func (m *Machine) RequestReturnFrom(peer session.ID, reason Reason) error {
	return m.requestReturn(peer, reason)
}

func (m *Machine) requestReturn(peer session.ID, reason Reason) error {
	m.mu.Lock()
	switch {
	case m.transitioning:
		m.mu.Unlock()
		return m.reject("return", peer, ErrTransitioning)
	case m.owner.IsLocal():
		m.mu.Unlock()
		return m.reject("return", peer, ErrNotOwned)
	case peer != "" && m.owner.peer != peer:
		m.mu.Unlock()
		return m.reject("return", peer, ErrNotOwner)
	}
	from := m.owner
	m.transitioning = true
	m.mu.Unlock()

	m.effects.EndForwarding(from.peer, reason)

	m.mu.Lock()
	m.owner = Local
	m.transitioning = false
	m.mu.Unlock()

	log.Printf("Control: input returned to local (%s)", reason)
	m.notify(Transition{From: from, To: Local, Reason: reason})
	return nil
}

func (m *Machine) reject(op string, peer session.ID, err error) error {
	log.Printf("Control: %s rejected (peer %q): %v", op, peer, err)
	return err
}

func (m *Machine) notify(t Transition) {
	m.mu.Lock()
	observers := append([]func(Transition){}, m.observers...)
	m.mu.Unlock()
	for _, fn := range observers {
		fn(t)
	}
}

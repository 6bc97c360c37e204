// Package switcher provides the core KVM switching logic.
//
// A Switcher wires the control machine, the session table and the
// forwarding pipeline together. It is the control machine's effects, the
// sessions' message handler and the edge trigger's callback, so every
// ownership change and every control message passes through here.
package switcher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"edgekvm/internal/control"
	"edgekvm/internal/forward"
	"edgekvm/internal/geometry"
	"edgekvm/internal/input"
	"edgekvm/internal/protocol"
	"edgekvm/internal/session"
)

var (
	ErrNotController = errors.New("this computer does not control peers")
	ErrDriven        = errors.New("this computer is driven by a peer")
	ErrNoPeer        = errors.New("no connected peer")
	ErrDegraded      = errors.New("local input capture unavailable")
)

// Options configures a Switcher
type Options struct {
	// Name is this computer's screen name
	Name string
	// Local returns the current local geometry
	Local func() geometry.Screen
	// Controller enables edge and manual transfers to peers. Every node
	// can be driven.
	Controller bool
	// Layout optionally maps edges to peer screen names
	Layout map[geometry.Edge]string
	// EntryInset is how far from the entered edge the pointer reappears
	EntryInset int
	// Degraded marks a node that cannot capture or suppress local input.
	// It never transfers control but can still be driven.
	Degraded bool
	// WakeUp nudges the display before injecting an entry point
	WakeUp func()
}

// Status is a point-in-time view for front ends
type Status struct {
	Name          string             `json:"name"`
	Role          string             `json:"role"`
	Owner         string             `json:"owner"`
	OwnerScreen   string             `json:"owner_screen,omitempty"`
	DrivenBy      string             `json:"driven_by,omitempty"`
	Transitioning bool               `json:"transitioning"`
	Degraded      bool               `json:"degraded"`
	Peers         []session.Snapshot `json:"peers"`
	Forward       forward.Stats      `json:"forward"`
}

// Switcher coordinates input ownership between this computer and its peers
type Switcher struct {
	opts     Options
	sessions *session.Manager
	machine  *control.Machine
	pipe     *forward.Pipeline
	injector input.Injector
	capture  input.Capturer

	mu           sync.Mutex
	driver       session.ID
	driverScreen geometry.Screen
	returnEntry  *geometry.Point
	onStatus     []func(Status)

	// pending is the target of the transfer being started; released is set
	// when it sends release_control before the transfer commits.
	pending  session.ID
	released bool
}

// New creates a Switcher and installs it as the sessions' handler.
// injector and capture may be nil on degraded nodes.
func New(sessions *session.Manager, pipe *forward.Pipeline, injector input.Injector, capture input.Capturer, opts Options) *Switcher {
	if opts.EntryInset < 0 {
		opts.EntryInset = 0
	}
	s := &Switcher{
		opts:     opts,
		sessions: sessions,
		pipe:     pipe,
		injector: injector,
		capture:  capture,
	}
	s.machine = control.New(s, s.eligible)
	s.machine.Subscribe(s.onTransition)
	sessions.SetHandler(s)
	return s
}

func (s *Switcher) onTransition(t control.Transition) {
	s.mu.Lock()
	released := s.released && !t.To.IsLocal() && t.To.Peer() == s.pending
	s.pending, s.released = "", false
	s.mu.Unlock()

	s.publish()
	if released {
		s.machine.RequestReturnFrom(t.To.Peer(), control.ReasonPeerReleased)
	}
}

// Machine exposes the ownership state machine
func (s *Switcher) Machine() *control.Machine {
	return s.machine
}

// Sessions exposes the session table
func (s *Switcher) Sessions() *session.Manager {
	return s.sessions
}

// OnStatus registers fn to run after every visible change. fn must not block.
func (s *Switcher) OnStatus(fn func(Status)) {
	s.mu.Lock()
	s.onStatus = append(s.onStatus, fn)
	s.mu.Unlock()
}

func (s *Switcher) publish() {
	st := s.Status()
	s.mu.Lock()
	fns := append([]func(Status){}, s.onStatus...)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
}

// Status returns the current state
func (s *Switcher) Status() Status {
	owner := s.machine.Owner()
	st := Status{
		Name:          s.opts.Name,
		Role:          "client",
		Owner:         owner.String(),
		Transitioning: s.machine.Transitioning(),
		Degraded:      s.opts.Degraded,
		Peers:         s.sessions.Snapshot(),
		Forward:       s.pipe.Stats(),
	}
	if s.opts.Controller {
		st.Role = "server"
	}
	if !owner.IsLocal() {
		if sess, ok := s.sessions.Lookup(owner.Peer()); ok {
			if g, ok := sess.RemoteGeometry(); ok {
				st.OwnerScreen = g.Name()
			}
		}
	}
	if d, ok := s.pipe.Driver(); ok {
		st.DrivenBy = string(d)
	}
	return st
}

func (s *Switcher) eligible(id session.ID) bool {
	sess, ok := s.sessions.Lookup(id)
	return ok && sess.Ready()
}

// candidates lists handshaken peers for target selection
func (s *Switcher) candidates() []control.Candidate {
	var out []control.Candidate
	for _, sess := range s.sessions.Sessions() {
		if !sess.Ready() {
			continue
		}
		g, ok := sess.RemoteGeometry()
		if !ok {
			continue
		}
		out = append(out, control.Candidate{ID: sess.ID(), Screen: g, ActiveSince: sess.ActiveSince()})
	}
	return out
}

// BeginForwarding tells target it is driven and starts forwarding
func (s *Switcher) BeginForwarding(target session.ID, entry *geometry.Point) error {
	if s.opts.Degraded {
		return ErrDegraded
	}
	sess, ok := s.sessions.Lookup(target)
	if !ok {
		return session.ErrNotFound
	}
	screen, ok := sess.RemoteGeometry()
	if !ok {
		return session.ErrNotReady
	}

	reason := protocol.ReasonManual
	start := screen.Center()
	if entry != nil {
		reason = protocol.ReasonEdge
		start = *entry
	}
	s.mu.Lock()
	s.pending, s.released = target, false
	s.mu.Unlock()
	if err := sess.Send(protocol.NewTakeControl(reason, entry)); err != nil {
		return fmt.Errorf("send take_control: %w", err)
	}

	s.pipe.StartForwarding(target, screen, start)
	if s.capture != nil {
		s.capture.Suppress(true)
	}
	log.Printf("Switcher: forwarding to %s (%s) from %d,%d", target, screen.Name(), start.X, start.Y)
	return nil
}

// EndForwarding stops forwarding to peer and puts the local pointer back
func (s *Switcher) EndForwarding(peer session.ID, reason control.Reason) {
	_, cursor, screen := s.pipe.StopForwarding()
	if s.capture != nil {
		s.capture.Suppress(false)
	}

	if reason.Initiated() {
		msg := protocol.NewReleaseControl(wireReason(reason), nil)
		if sess, ok := s.sessions.Lookup(peer); ok {
			if err := sess.Send(msg); err != nil {
				log.Printf("Switcher: release_control to %s not sent: %v", peer, err)
			}
		}
	}

	s.mu.Lock()
	entry := s.returnEntry
	s.returnEntry = nil
	s.mu.Unlock()

	local := s.opts.Local()
	var at geometry.Point
	switch {
	case entry != nil:
		at = geometry.Clamp(*entry, local)
	case screen.Valid():
		at = geometry.MapPoint(cursor, screen, local)
	default:
		at = local.Center()
	}
	s.moveLocal(at)
	log.Printf("Switcher: stopped forwarding to %s (%s)", peer, reason)
}

func wireReason(r control.Reason) string {
	if r == control.ReasonEdge {
		return protocol.ReasonEdge
	}
	return protocol.ReasonManual
}

func (s *Switcher) moveLocal(p geometry.Point) {
	if s.injector == nil {
		return
	}
	if err := s.injector.Move(p.X, p.Y); err != nil {
		log.Printf("Switcher: pointer move to %d,%d failed: %v", p.X, p.Y, err)
	}
}

// OnMessage dispatches every non-session message from a peer
func (s *Switcher) OnMessage(sess *session.Session, m protocol.Message) {
	id := sess.ID()
	switch msg := m.(type) {
	case protocol.TakeControl:
		s.handleTake(sess, msg)
	case protocol.ReleaseControl:
		s.handleRelease(id, msg)
	case protocol.Clipboard:
		s.pipe.HandleClipboard(id, msg.Text)
	default:
		if protocol.IsInput(m) {
			s.pipe.HandleRemote(id, m)
			return
		}
		log.Printf("Switcher: ignoring %s from %s", m.Type(), id)
	}
}

// handleTake makes this node driven by the sender
func (s *Switcher) handleTake(sess *session.Session, msg protocol.TakeControl) {
	id := sess.ID()
	if !s.machine.Owner().IsLocal() || s.machine.Transitioning() {
		s.rejectTake(sess, control.ErrNotLocal)
		return
	}
	screen, ok := sess.RemoteGeometry()
	if !ok {
		s.rejectTake(sess, session.ErrNotReady)
		return
	}

	s.mu.Lock()
	if s.driver != "" && s.driver != id {
		current := s.driver
		s.mu.Unlock()
		s.rejectTake(sess, fmt.Errorf("%w: %s", ErrDriven, current))
		return
	}
	s.driver = id
	s.driverScreen = screen
	s.mu.Unlock()
	s.pipe.SetDriver(id)

	local := s.opts.Local()
	at, ok := msg.Entry()
	if ok {
		at = geometry.Clamp(at, local)
	} else {
		at = local.Center()
	}
	if s.opts.WakeUp != nil {
		s.opts.WakeUp()
	}
	s.moveLocal(at)

	log.Printf("Switcher: driven by %s (%s, %s) at %d,%d", id, screen.Name(), msg.Reason, at.X, at.Y)
	s.publish()
}

// rejectTake answers a refused take_control so the sender returns to local
func (s *Switcher) rejectTake(sess *session.Session, err error) {
	log.Printf("Switcher: rejected take_control from %s: %v", sess.ID(), err)
	if err := sess.Send(protocol.NewReleaseControl(protocol.ReasonRejected, nil)); err != nil {
		log.Printf("Switcher: release_control to %s not sent: %v", sess.ID(), err)
	}
}

// handleRelease handles a peer releasing either direction of control
func (s *Switcher) handleRelease(id session.ID, msg protocol.ReleaseControl) {
	if owner := s.machine.Owner(); !owner.IsLocal() && owner.Peer() == id {
		if entry, ok := msg.Entry(); ok {
			s.mu.Lock()
			s.returnEntry = &entry
			s.mu.Unlock()
		}
		if err := s.machine.RequestReturnFrom(id, control.ReasonPeerReleased); err != nil {
			s.mu.Lock()
			s.returnEntry = nil
			s.mu.Unlock()
		}
		return
	}

	if s.clearDriver(id) {
		log.Printf("Switcher: %s released control (%s)", id, msg.Reason)
		s.publish()
		return
	}

	s.mu.Lock()
	early := s.pending == id && s.machine.Transitioning()
	if early {
		s.released = true
		if entry, ok := msg.Entry(); ok {
			s.returnEntry = &entry
		}
	}
	s.mu.Unlock()
	if early {
		log.Printf("Switcher: %s released control during transfer (%s)", id, msg.Reason)
		return
	}
	if owner := s.machine.Owner(); !owner.IsLocal() && owner.Peer() == id {
		// The transfer committed after the first check.
		s.machine.RequestReturnFrom(id, control.ReasonPeerReleased)
		return
	}
	log.Printf("Switcher: ignoring release_control from %s: %v", id, control.ErrNotOwner)
}

// clearDriver stops accepting input from id if it is the driver
func (s *Switcher) clearDriver(id session.ID) bool {
	s.mu.Lock()
	if s.driver == "" || (id != "" && s.driver != id) {
		s.mu.Unlock()
		return false
	}
	s.driver = ""
	s.driverScreen = geometry.Screen{}
	s.mu.Unlock()
	s.pipe.SetDriver("")
	return true
}

func (s *Switcher) drivenBy() (session.ID, geometry.Screen, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.driver, s.driverScreen, s.driver != ""
}

// OnStateChange returns control when the owning or driving peer goes away
func (s *Switcher) OnStateChange(sess *session.Session, from, to session.State) {
	id := sess.ID()
	if from == session.StateActive && to != session.StateActive {
		if owner := s.machine.Owner(); !owner.IsLocal() && owner.Peer() == id {
			s.machine.RequestReturnFrom(id, control.ReasonPeerLost)
		}
		if s.clearDriver(id) {
			log.Printf("Switcher: driver %s lost", id)
		}
	}
	if from == session.StateActive || to == session.StateActive || to == session.StateClosed {
		s.publish()
	}
}

// EdgeActive reports whether edge hits matter: while driven, or while
// this controller owns its input.
func (s *Switcher) EdgeActive() bool {
	if _, _, ok := s.drivenBy(); ok {
		return true
	}
	return s.opts.Controller && !s.opts.Degraded && s.machine.Owner().IsLocal() && !s.machine.Transitioning()
}

// OnEdge is the edge trigger callback
func (s *Switcher) OnEdge(e geometry.Edge, p geometry.Point) {
	if driver, screen, ok := s.drivenBy(); ok {
		s.releaseDriver(driver, screen, e, p)
		return
	}
	if !s.opts.Controller || s.opts.Degraded {
		return
	}

	target, ok := control.SelectTarget(e, s.candidates(), s.opts.Layout)
	if !ok {
		return
	}
	entry := geometry.EntryPoint(e, p, s.opts.Local(), target.Screen, s.opts.EntryInset)
	s.machine.RequestTransfer(target.ID, &entry)
}

// releaseDriver hands input back to the driver through edge e. The entry
// point is computed in the driver's screen.
func (s *Switcher) releaseDriver(driver session.ID, screen geometry.Screen, e geometry.Edge, p geometry.Point) {
	var entry *geometry.Point
	if screen.Valid() {
		pt := geometry.EntryPoint(e, p, s.opts.Local(), screen, s.opts.EntryInset)
		entry = &pt
	}
	s.sendRelease(driver, protocol.NewReleaseControl(protocol.ReasonEdge, entry))
}

func (s *Switcher) sendRelease(driver session.ID, msg protocol.ReleaseControl) {
	if !s.clearDriver(driver) {
		return
	}
	if sess, ok := s.sessions.Lookup(driver); ok {
		if err := sess.Send(msg); err != nil {
			log.Printf("Switcher: release_control to %s failed: %v", driver, err)
		}
	}
	log.Printf("Switcher: released control to %s (%s)", driver, msg.Reason)
	s.publish()
}

// TakeControl hands input to peer, or to the first connected peer when
// peer is empty. The peer's pointer starts at its screen center.
func (s *Switcher) TakeControl(peer session.ID) error {
	if !s.opts.Controller {
		return ErrNotController
	}
	if s.opts.Degraded {
		return ErrDegraded
	}
	if _, _, ok := s.drivenBy(); ok {
		return ErrDriven
	}
	if peer == "" {
		c, ok := control.SelectTarget(geometry.EdgeNone, s.candidates(), nil)
		if !ok {
			return ErrNoPeer
		}
		peer = c.ID
	}
	return s.machine.RequestTransfer(peer, nil)
}

// ReturnControl brings input back to this computer. On a driven node it
// releases the driver instead.
func (s *Switcher) ReturnControl() error {
	if !s.machine.Owner().IsLocal() {
		return s.machine.RequestReturn(control.ReasonManual)
	}
	if driver, _, ok := s.drivenBy(); ok {
		s.sendRelease(driver, protocol.NewReleaseControl(protocol.ReasonManual, nil))
		return nil
	}
	return control.ErrNotOwned
}

// Connect dials a peer and keeps reconnecting per the session policy
func (s *Switcher) Connect(addr string) (*session.Session, error) {
	return s.sessions.Dial(addr)
}

// Reconnect manually retries an outbound peer session
func (s *Switcher) Reconnect(id session.ID) error {
	return s.sessions.Reconnect(id)
}

// Disconnect closes a peer session for good
func (s *Switcher) Disconnect(id session.ID) error {
	return s.sessions.Disconnect(id)
}

// Shutdown gives input back, tells every peer and closes all sessions
func (s *Switcher) Shutdown(ctx context.Context) error {
	if !s.machine.Owner().IsLocal() {
		if err := s.machine.RequestReturn(control.ReasonManual); err != nil {
			log.Printf("Switcher: return on shutdown failed: %v", err)
		}
	}
	if driver, _, ok := s.drivenBy(); ok {
		s.sendRelease(driver, protocol.NewReleaseControl(protocol.ReasonShutdown, nil))
	}
	return s.sessions.CloseAll(ctx)
}

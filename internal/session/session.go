// Package session runs one logical, possibly reconnecting, connection to a peer.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"sync"
	"time"

	"edgekvm/internal/geometry"
	"edgekvm/internal/protocol"
)

// flushTimeout bounds how long Disconnect waits for the disconnect frame to go out
const flushTimeout = 500 * time.Millisecond

type outFrame struct {
	data    []byte
	written chan struct{}
}

// Session wraps one peer connection together with its handshake, heartbeat
// and reconnect policy.
type Session struct {
	id       ID
	addr     string
	outbound bool
	cfg      Config
	manager  *Manager

	wake     chan struct{}
	done     chan struct{}
	finished chan struct{}

	mu            sync.Mutex
	state         State
	reason        string
	conn          Conn
	send          chan outFrame
	cancelConn    context.CancelFunc
	remote        *geometry.Screen
	client        protocol.ClientInfo
	activeSince   time.Time
	lastSent      time.Time
	lastAck       time.Time
	attempts      int
	autoReconnect bool
	terminal      bool
	closed        bool
}

func newSession(m *Manager, addr string, outbound bool) *Session {
	return &Session{
		id:            NewID(),
		addr:          addr,
		outbound:      outbound,
		cfg:           m.cfg,
		manager:       m,
		wake:          make(chan struct{}, 1),
		done:          make(chan struct{}),
		finished:      make(chan struct{}),
		state:         StateConnecting,
		autoReconnect: outbound && m.cfg.AutoReconnect,
	}
}

func (s *Session) ID() ID         { return s.id }
func (s *Session) Addr() string   { return s.addr }
func (s *Session) Outbound() bool { return s.outbound }

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Ready reports whether the handshake has completed on the current connection
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateActive && s.remote != nil
}

// Terminal reports whether the reconnect policy has given up
func (s *Session) Terminal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminal
}

// RemoteGeometry returns the peer screen learned during the handshake
func (s *Session) RemoteGeometry() (geometry.Screen, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.remote == nil {
		return geometry.Screen{}, false
	}
	return *s.remote, true
}

// ActiveSince returns when the current connection finished its handshake
func (s *Session) ActiveSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeSince
}

// Snapshot copies the user-visible state
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:          s.id,
		Addr:        s.addr,
		Outbound:    s.outbound,
		State:       s.state.String(),
		Platform:    s.client.Platform,
		Attempts:    s.attempts,
		MaxAttempts: s.cfg.MaxReconnectAttempts,
		Terminal:    s.terminal,
		Reason:      s.reason,
		ActiveSince: s.activeSince,
		LastSent:    s.lastSent,
		LastAck:     s.lastAck,
	}
	if s.remote != nil {
		snap.Screen = s.remote.Name()
		snap.Width = s.remote.Width()
		snap.Height = s.remote.Height()
	}
	return snap
}

// Send queues m for the peer. It returns ErrNotReady until the handshake has
// completed on the current connection.
func (s *Session) Send(m protocol.Message) error {
	s.mu.Lock()
	ready := s.state == StateActive && s.remote != nil
	s.mu.Unlock()
	if !ready {
		return ErrNotReady
	}
	_, err := s.enqueue(m)
	return err
}

// Reconnect clears the attempt counter and retries immediately, leaving a
// terminal state if the policy had given up. It is a no-op while active.
func (s *Session) Reconnect() error {
	if !s.outbound {
		return ErrInbound
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.state == StateActive {
		s.mu.Unlock()
		return nil
	}
	s.attempts = 0
	s.terminal = false
	s.autoReconnect = true
	s.mu.Unlock()

	log.Printf("Session %s: manual reconnect to %s", s.id, s.addr)
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// Disconnect stops reconnecting, tells the peer, closes the transport and
// removes the session from its manager. Calling it again is a no-op.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.autoReconnect = false
	connected := s.conn != nil
	s.mu.Unlock()

	if connected {
		if written, err := s.enqueue(protocol.Disconnect{}); err == nil {
			select {
			case <-written:
			case <-time.After(flushTimeout):
			}
		}
	}

	close(s.done)
	s.mu.Lock()
	if s.cancelConn != nil {
		s.cancelConn()
	}
	s.mu.Unlock()

	select {
	case <-s.finished:
	case <-time.After(s.cfg.CloseTimeout):
		log.Printf("Session %s: timed out waiting for shutdown", s.id)
	}

	s.manager.remove(s.id)
	log.Printf("Session %s: disconnected from %s", s.id, s.addr)
	return nil
}

// enqueue encodes m onto the current connection's write pump
func (s *Session) enqueue(m protocol.Message) (<-chan struct{}, error) {
	frame, err := protocol.Encode(m)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	send := s.send
	s.mu.Unlock()
	if send == nil {
		return nil, ErrNotReady
	}

	f := outFrame{data: frame, written: make(chan struct{})}
	select {
	case send <- f:
		return f.written, nil
	default:
		return nil, ErrQueueFull
	}
}

func (s *Session) setState(state State, reason string) {
	s.mu.Lock()
	old := s.state
	s.state = state
	if reason != "" || state == StateActive {
		s.reason = reason
	}
	s.mu.Unlock()

	if old == state {
		return
	}
	if h := s.manager.handler(); h != nil {
		h.OnStateChange(s, old, state)
	}
}

func (s *Session) stopped(ctx context.Context) bool {
	select {
	case <-s.done:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// runOutbound is the scheduler for an outbound session. Each iteration is one
// connection attempt; the retry policy is decided here, never by recursion.
func (s *Session) runOutbound(ctx context.Context) {
	defer close(s.finished)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	for !s.stopped(ctx) {
		s.setState(StateConnecting, "")
		err := s.connectOnce(ctx)
		if s.stopped(ctx) {
			break
		}

		s.setState(StateClosed, reasonOf(err))
		log.Printf("Session %s: connection to %s ended: %v", s.id, s.addr, err)

		if errors.Is(err, errPeerDisconnected) {
			s.mu.Lock()
			s.autoReconnect = false
			s.mu.Unlock()
		}
		if !s.waitRetry(ctx) {
			break
		}
	}
	s.setState(StateClosed, "closed")
}

func (s *Session) connectOnce(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
	conn, err := s.manager.dialer.Dial(dialCtx, s.addr)
	cancel()
	if err != nil {
		return fmt.Errorf("%w: %v", errDial, err)
	}
	return s.serve(ctx, conn)
}

// waitRetry applies the reconnect policy after a lost connection. It returns
// false when the session should stop.
func (s *Session) waitRetry(ctx context.Context) bool {
	s.mu.Lock()
	if s.autoReconnect && s.attempts < s.cfg.MaxReconnectAttempts {
		s.attempts++
		attempt := s.attempts
		s.mu.Unlock()

		s.setState(StateReconnecting, "")
		log.Printf("Session %s: reconnecting to %s in %s (attempt %d/%d)",
			s.id, s.addr, s.cfg.ReconnectBackoff, attempt, s.cfg.MaxReconnectAttempts)

		timer := time.NewTimer(s.cfg.ReconnectBackoff)
		defer timer.Stop()
		select {
		case <-timer.C:
			return true
		case <-s.wake:
			return true
		case <-s.done:
			return false
		case <-ctx.Done():
			return false
		}
	}

	s.terminal = true
	if s.autoReconnect {
		s.reason = fmt.Sprintf("gave up after %d attempts", s.attempts)
	}
	s.mu.Unlock()
	log.Printf("Session %s: not reconnecting to %s, waiting for manual reconnect", s.id, s.addr)
	if h := s.manager.handler(); h != nil {
		h.OnStateChange(s, StateClosed, StateClosed)
	}

	select {
	case <-s.wake:
		return true
	case <-s.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// runInbound serves one accepted connection and releases the session when it ends
func (s *Session) runInbound(ctx context.Context, conn Conn) {
	defer close(s.finished)

	err := s.serve(ctx, conn)
	s.setState(StateClosed, reasonOf(err))
	log.Printf("Session %s: inbound connection from %s ended: %v", s.id, s.addr, err)
	s.manager.remove(s.id)
}

// serve runs one connection from handshake to close
func (s *Session) serve(ctx context.Context, conn Conn) error {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	send := make(chan outFrame, s.cfg.SendBuffer)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	s.conn = conn
	s.send = send
	s.cancelConn = cancel
	s.remote = nil
	s.activeSince = time.Time{}
	s.mu.Unlock()
	s.setState(StateHandshaking, "")

	frames := make(chan []byte)
	errc := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		readLoop(connCtx, conn, frames, errc)
	}()
	go func() {
		defer wg.Done()
		writePump(connCtx, conn, send, errc)
	}()

	err := s.loop(connCtx, frames, errc)

	// Observers see Closing while the transport is still usable.
	s.setState(StateClosing, reasonOf(err))
	cancel()
	conn.Close()
	wg.Wait()

	s.mu.Lock()
	s.conn = nil
	s.send = nil
	s.cancelConn = nil
	s.mu.Unlock()

	if s.isClosed() {
		return ErrClosed
	}
	return err
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) loop(ctx context.Context, frames <-chan []byte, errc <-chan error) error {
	handshake := time.NewTimer(s.cfg.HandshakeTimeout)
	defer handshake.Stop()

	liveness := time.NewTimer(s.cfg.LivenessWindow)
	liveness.Stop()
	defer liveness.Stop()

	var heartbeat <-chan time.Time
	active := false

	if s.outbound {
		if _, err := s.enqueue(protocol.Handshake{
			Screen: protocol.ScreenInfoFrom(s.manager.local()),
			Client: s.manager.client,
		}); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-errc:
			return fmt.Errorf("transport: %w", err)

		case <-handshake.C:
			return ErrHandshakeTimeout

		case <-liveness.C:
			return ErrLivenessTimeout

		case <-heartbeat:
			s.mu.Lock()
			s.lastSent = time.Now()
			s.mu.Unlock()
			if _, err := s.enqueue(protocol.Heartbeat{}); err != nil {
				log.Printf("Session %s: heartbeat not sent: %v", s.id, err)
			}

		case frame := <-frames:
			if active {
				liveness.Reset(s.cfg.LivenessWindow)
			}
			activated, err := s.handleFrame(frame)
			if err != nil {
				return err
			}
			if activated {
				active = true
				handshake.Stop()
				liveness.Reset(s.cfg.LivenessWindow)
				if s.outbound {
					ticker := time.NewTicker(s.cfg.HeartbeatInterval)
					defer ticker.Stop()
					heartbeat = ticker.C
				}
			}
		}
	}
}

// handleFrame decodes and dispatches one frame. It reports whether the frame
// completed the handshake; an error ends the connection.
func (s *Session) handleFrame(frame []byte) (bool, error) {
	m, err := protocol.Decode(frame)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownType) {
			log.Printf("Session %s: rejected frame: %v", s.id, err)
			return false, nil
		}
		return false, err
	}

	switch msg := m.(type) {
	case protocol.Handshake:
		return s.acceptHandshake(msg), nil
	case protocol.HandshakeAck:
		return s.completeHandshake(msg)
	case protocol.Heartbeat:
		s.mu.Lock()
		s.lastAck = time.Now()
		s.mu.Unlock()
		if !s.outbound {
			if _, err := s.enqueue(protocol.Heartbeat{}); err != nil {
				log.Printf("Session %s: heartbeat echo not sent: %v", s.id, err)
			}
		}
		return false, nil
	case protocol.Disconnect:
		return false, errPeerDisconnected
	}

	if !s.Ready() {
		log.Printf("Session %s: rejected %s before handshake", s.id, m.Type())
		return false, nil
	}
	if h := s.manager.handler(); h != nil {
		h.OnMessage(s, m)
	}
	return false, nil
}

func (s *Session) acceptHandshake(msg protocol.Handshake) bool {
	if s.outbound {
		log.Printf("Session %s: rejected handshake request on outbound connection", s.id)
		return false
	}
	g, err := msg.Screen.Geometry()
	if err != nil {
		log.Printf("Session %s: rejected handshake: %v", s.id, err)
		return false
	}

	s.mu.Lock()
	if s.remote != nil {
		s.mu.Unlock()
		log.Printf("Session %s: rejected handshake: %v", s.id, ErrDuplicateHandshake)
		return false
	}
	s.remote = &g
	s.client = msg.Client
	s.mu.Unlock()

	if _, err := s.enqueue(protocol.HandshakeAck{
		Screen: protocol.ScreenInfoFrom(s.manager.local()),
		Status: protocol.StatusConnected,
	}); err != nil {
		log.Printf("Session %s: handshake response not sent: %v", s.id, err)
	}
	s.activate(g)
	return true
}

func (s *Session) completeHandshake(msg protocol.HandshakeAck) (bool, error) {
	if !s.outbound {
		log.Printf("Session %s: rejected handshake response on inbound connection", s.id)
		return false, nil
	}
	if msg.Status != protocol.StatusConnected {
		return false, fmt.Errorf("handshake refused: %q", msg.Status)
	}
	g, err := msg.Screen.Geometry()
	if err != nil {
		log.Printf("Session %s: rejected handshake: %v", s.id, err)
		return false, nil
	}

	s.mu.Lock()
	if s.remote != nil {
		s.mu.Unlock()
		log.Printf("Session %s: rejected handshake: %v", s.id, ErrDuplicateHandshake)
		return false, nil
	}
	s.remote = &g
	s.attempts = 0
	s.mu.Unlock()

	// A manual reconnect that raced the successful dial is spent.
	select {
	case <-s.wake:
	default:
	}
	s.activate(g)
	return true, nil
}

func (s *Session) activate(remote geometry.Screen) {
	s.mu.Lock()
	s.activeSince = time.Now()
	s.lastAck = s.activeSince
	s.mu.Unlock()
	log.Printf("Session %s: active with %s (%s)", s.id, s.addr, remote)
	s.setState(StateActive, "")
}

func readLoop(ctx context.Context, conn Conn, frames chan<- []byte, errc chan<- error) {
	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			errc <- err
			return
		}
		select {
		case frames <- frame:
		case <-ctx.Done():
			return
		}
	}
}

func writePump(ctx context.Context, conn Conn, send <-chan outFrame, errc chan<- error) {
	for {
		select {
		case f := <-send:
			err := conn.WriteFrame(f.data)
			close(f.written)
			if err != nil {
				errc <- err
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// LocalClientInfo describes this program for the handshake
func LocalClientInfo(version string) protocol.ClientInfo {
	return protocol.ClientInfo{Platform: runtime.GOOS, Version: version}
}

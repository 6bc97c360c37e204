package session

import (
	"context"
	"log"
	"sort"
	"sync"

	"edgekvm/internal/geometry"
	"edgekvm/internal/protocol"
)

// Manager owns the table of sessions keyed by ID
type Manager struct {
	cfg    Config
	dialer Dialer
	local  func() geometry.Screen
	client protocol.ClientInfo

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.RWMutex
	sessions map[ID]*Session
	h        Handler
	closing  bool
}

// NewManager creates an empty table. local is called whenever a handshake
// needs the current screen of this node.
func NewManager(cfg Config, dialer Dialer, local func() geometry.Screen, client protocol.ClientInfo) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:      cfg,
		dialer:   dialer,
		local:    local,
		client:   client,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[ID]*Session),
	}
}

// SetHandler installs the receiver of messages and state changes. Call it
// before the first Dial or Accept.
func (m *Manager) SetHandler(h Handler) {
	m.mu.Lock()
	m.h = h
	m.mu.Unlock()
}

func (m *Manager) handler() Handler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.h
}

// Dial starts an outbound session to addr. The session retries according to
// the reconnect policy until Disconnect.
func (m *Manager) Dial(addr string) (*Session, error) {
	s := newSession(m, addr, true)
	if !m.add(s) {
		return nil, ErrClosed
	}
	log.Printf("Session %s: dialing %s", s.id, addr)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		s.runOutbound(m.ctx)
	}()
	return s, nil
}

// Accept serves an inbound connection. The session leaves the table when the
// connection ends.
func (m *Manager) Accept(conn Conn) (*Session, error) {
	s := newSession(m, conn.RemoteAddr(), false)
	if !m.add(s) {
		conn.Close()
		return nil, ErrClosed
	}
	log.Printf("Session %s: accepted connection from %s", s.id, s.addr)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		s.runInbound(m.ctx, conn)
	}()
	return s, nil
}

func (m *Manager) add(s *Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closing {
		return false
	}
	m.sessions[s.id] = s
	return true
}

func (m *Manager) remove(id ID) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Lookup returns the session with the given ID
func (m *Manager) Lookup(id ID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Sessions returns a copy of the table, oldest handshake first, so callers
// can iterate while sessions come and go.
func (m *Manager) Sessions() []*Session {
	m.mu.RLock()
	list := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	m.mu.RUnlock()

	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i].ActiveSince(), list[j].ActiveSince()
		if a.IsZero() != b.IsZero() {
			return !a.IsZero()
		}
		if !a.Equal(b) {
			return a.Before(b)
		}
		return list[i].id < list[j].id
	})
	return list
}

// Snapshot returns the user-visible state of every session
func (m *Manager) Snapshot() []Snapshot {
	sessions := m.Sessions()
	snaps := make([]Snapshot, 0, len(sessions))
	for _, s := range sessions {
		snaps = append(snaps, s.Snapshot())
	}
	return snaps
}

// Reconnect manually retries an outbound session, resetting its attempt counter
func (m *Manager) Reconnect(id ID) error {
	s, ok := m.Lookup(id)
	if !ok {
		return ErrNotFound
	}
	return s.Reconnect()
}

// Disconnect closes a session for good and removes it
func (m *Manager) Disconnect(id ID) error {
	s, ok := m.Lookup(id)
	if !ok {
		return ErrNotFound
	}
	return s.Disconnect()
}

// CloseAll tells every peer we are leaving, closes all transports and waits for
// the session goroutines, bounded by ctx.
func (m *Manager) CloseAll(ctx context.Context) error {
	m.mu.Lock()
	m.closing = true
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range m.Sessions() {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Disconnect()
		}(s)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		m.cancel()
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		m.cancel()
		log.Printf("Session: shutdown did not finish: %v", ctx.Err())
		return ctx.Err()
	}
}

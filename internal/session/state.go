package session

import (
	"context"
	"errors"
	"time"

	"edgekvm/internal/protocol"

	"github.com/google/uuid"
)

// State is the lifecycle position of a Session
type State int

const (
	StateConnecting State = iota
	StateHandshaking
	StateActive
	StateClosing
	StateClosed
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// ID identifies one logical session. Outbound sessions keep their ID across reconnects.
type ID string

// NewID returns a random session identity
func NewID() ID {
	return ID(uuid.NewString())
}

var (
	ErrNotReady           = errors.New("session not ready: handshake incomplete")
	ErrClosed             = errors.New("session closed")
	ErrNotFound           = errors.New("session not found")
	ErrInbound            = errors.New("inbound sessions cannot be reconnected")
	ErrQueueFull          = errors.New("send queue full")
	ErrHandshakeTimeout   = errors.New("handshake timeout")
	ErrLivenessTimeout    = errors.New("heartbeat timeout")
	ErrDuplicateHandshake = errors.New("duplicate handshake")

	errPeerDisconnected = errors.New("peer disconnected")
	errDial             = errors.New("dial failed")
)

// Conn is one established full-duplex message channel.
// ReadFrame blocks until a frame arrives or the connection is closed.
type Conn interface {
	ReadFrame() ([]byte, error)
	WriteFrame(frame []byte) error
	Close() error
	RemoteAddr() string
}

// Dialer opens outbound connections
type Dialer interface {
	Dial(ctx context.Context, addr string) (Conn, error)
}

// DialerFunc adapts a function to Dialer
type DialerFunc func(ctx context.Context, addr string) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, addr string) (Conn, error) {
	return f(ctx, addr)
}

// Handler receives application messages and lifecycle changes.
// Both are called from the session's serve goroutine; OnStateChange for a
// session leaving StateActive runs before its transport is closed.
type Handler interface {
	OnMessage(s *Session, m protocol.Message)
	OnStateChange(s *Session, old, new State)
}

// Config holds the timing policy shared by all sessions
type Config struct {
	HeartbeatInterval    time.Duration
	LivenessWindow       time.Duration
	HandshakeTimeout     time.Duration
	ReconnectBackoff     time.Duration
	MaxReconnectAttempts int
	AutoReconnect        bool
	SendBuffer           int
	CloseTimeout         time.Duration
}

// DefaultConfig returns the reference timings
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval:    30 * time.Second,
		LivenessWindow:       75 * time.Second,
		HandshakeTimeout:     10 * time.Second,
		ReconnectBackoff:     5 * time.Second,
		MaxReconnectAttempts: 5,
		AutoReconnect:        true,
		SendBuffer:           256,
		CloseTimeout:         2 * time.Second,
	}
}

// Snapshot is a copy of a session's user-visible state
type Snapshot struct {
	ID          ID        `json:"id"`
	Addr        string    `json:"addr"`
	Outbound    bool      `json:"outbound"`
	State       string    `json:"state"`
	Screen      string    `json:"screen,omitempty"`
	Width       int       `json:"width,omitempty"`
	Height      int       `json:"height,omitempty"`
	Platform    string    `json:"platform,omitempty"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
	Terminal    bool      `json:"terminal"`
	Reason      string    `json:"reason,omitempty"`
	ActiveSince time.Time `json:"active_since,omitempty"`
	LastSent    time.Time `json:"last_heartbeat_sent,omitempty"`
	LastAck     time.Time `json:"last_heartbeat_ack,omitempty"`
}

func reasonOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrHandshakeTimeout):
		return "handshake timeout"
	case errors.Is(err, ErrLivenessTimeout):
		return "heartbeat timeout"
	case errors.Is(err, errPeerDisconnected):
		return "peer disconnected"
	case errors.Is(err, ErrClosed), errors.Is(err, context.Canceled):
		return "closed"
	case errors.Is(err, errDial):
		return "connect failed"
	default:
		return "connection lost"
	}
}

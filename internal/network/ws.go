// Package network carries session frames over websockets and finds peers on the LAN.
package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"edgekvm/internal/session"

	"github.com/gorilla/websocket"
)

const (
	// WSPath is where peers accept session connections
	WSPath = "/ws"

	writeWait    = 10 * time.Second
	maxFrameSize = 1 << 20
)

// ErrBinaryFrame is returned when a peer sends a non-text message
var ErrBinaryFrame = errors.New("unexpected binary frame")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Peers are other machines on the local network, not browsers.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSConn adapts a websocket connection to session.Conn. One JSON envelope per
// text message.
type WSConn struct {
	conn   *websocket.Conn
	remote string

	mu sync.Mutex
}

func newWSConn(conn *websocket.Conn, remote string) *WSConn {
	conn.SetReadLimit(maxFrameSize)
	return &WSConn{conn: conn, remote: remote}
}

// ReadFrame blocks for the next text message
func (c *WSConn) ReadFrame() ([]byte, error) {
	kind, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if kind != websocket.TextMessage {
		return nil, ErrBinaryFrame
	}
	return data, nil
}

// WriteFrame sends one text message with a write deadline
func (c *WSConn) WriteFrame(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

// Close sends a close frame if possible and drops the connection
func (c *WSConn) Close() error {
	c.mu.Lock()
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.mu.Unlock()
	return c.conn.Close()
}

func (c *WSConn) RemoteAddr() string { return c.remote }

// Dialer opens session connections to peers
type Dialer struct {
	HandshakeTimeout time.Duration
	KeepAlive        time.Duration
}

// NewDialer returns a dialer with TCP keepalive enabled
func NewDialer() *Dialer {
	return &Dialer{
		HandshakeTimeout: 10 * time.Second,
		KeepAlive:        15 * time.Second,
	}
}

// Dial connects to addr, which is host:port or a full ws:// URL
func (d *Dialer) Dial(ctx context.Context, addr string) (session.Conn, error) {
	target, err := wsURL(addr)
	if err != nil {
		return nil, err
	}

	wd := websocket.Dialer{
		HandshakeTimeout: d.HandshakeTimeout,
		NetDialContext: (&net.Dialer{
			Timeout:   d.HandshakeTimeout,
			KeepAlive: d.KeepAlive,
		}).DialContext,
	}

	conn, _, err := wd.DialContext(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return newWSConn(conn, addr), nil
}

func wsURL(addr string) (string, error) {
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		u, err := url.Parse(addr)
		if err != nil {
			return "", err
		}
		if u.Path == "" {
			u.Path = WSPath
		}
		return u.String(), nil
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return "", fmt.Errorf("invalid peer address %q: %w", addr, err)
	}
	u := url.URL{Scheme: "ws", Host: addr, Path: WSPath}
	return u.String(), nil
}

// Upgrade turns an inbound HTTP request into a session connection
func Upgrade(w http.ResponseWriter, r *http.Request) (*WSConn, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return newWSConn(conn, r.RemoteAddr), nil
}

package network

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"edgekvm/internal/geometry"
	"edgekvm/internal/protocol"
	"edgekvm/internal/session"

	"github.com/gorilla/websocket"
)

func hostOf(srv *httptest.Server) string {
	return strings.TrimPrefix(srv.URL, "http://")
}

// TestWSConnRoundTrip echoes text frames through a real websocket
func TestWSConnRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := Upgrade(w, r)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			frame, err := conn.ReadFrame()
			if err != nil {
				return
			}
			if err := conn.WriteFrame(frame); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, err := NewDialer().Dial(ctx, hostOf(srv))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	want := `{"type":"heartbeat","data":{},"timestamp":1}`
	if err := conn.WriteFrame([]byte(want)); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	got, err := conn.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if string(got) != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
	if conn.RemoteAddr() != hostOf(srv) {
		t.Errorf("Expected remote %s, got %s", hostOf(srv), conn.RemoteAddr())
	}
}

// TestWSConnRejectsBinary treats binary messages as a broken stream
func TestWSConnRejectsBinary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3})
		conn.ReadMessage()
	}))
	defer srv.Close()

	conn, err := NewDialer().Dial(context.Background(), hostOf(srv))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	if _, err := conn.ReadFrame(); !errors.Is(err, ErrBinaryFrame) {
		t.Errorf("Expected ErrBinaryFrame, got %v", err)
	}
}

func TestWSURL(t *testing.T) {
	tests := []struct {
		addr    string
		want    string
		wantErr bool
	}{
		{"192.168.1.10:24800", "ws://192.168.1.10:24800/ws", false},
		{"ws://host:1234", "ws://host:1234/ws", false},
		{"ws://host:1234/custom", "ws://host:1234/custom", false},
		{"no-port", "", true},
	}
	for _, tt := range tests {
		got, err := wsURL(tt.addr)
		if (err != nil) != tt.wantErr {
			t.Errorf("wsURL(%q) error = %v, wantErr %v", tt.addr, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("wsURL(%q) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}

type collector struct {
	mu   sync.Mutex
	msgs []protocol.Message
}

func (c *collector) OnMessage(s *session.Session, m protocol.Message) {
	c.mu.Lock()
	c.msgs = append(c.msgs, m)
	c.mu.Unlock()
}

func (c *collector) OnStateChange(*session.Session, session.State, session.State) {}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

// TestSessionsOverWebsocket runs the full handshake over a real listener
func TestSessionsOverWebsocket(t *testing.T) {
	cfg := session.DefaultConfig()
	cfg.HandshakeTimeout = 2 * time.Second

	serverScreen := geometry.MustNew(1920, 1080, 0, 0, "a")
	clientScreen := geometry.MustNew(1024, 768, 0, 0, "b")

	server := session.NewManager(cfg, nil, func() geometry.Screen { return serverScreen }, session.LocalClientInfo("test"))
	got := &collector{}
	server.SetHandler(got)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := Upgrade(w, r)
		if err != nil {
			return
		}
		server.Accept(conn)
	}))
	defer srv.Close()

	client := session.NewManager(cfg, NewDialer(), func() geometry.Screen { return clientScreen }, session.LocalClientInfo("test"))
	client.SetHandler(&collector{})

	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		client.CloseAll(ctx)
		server.CloseAll(ctx)
	}()

	s, err := client.Dial(hostOf(srv))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for !s.Ready() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !s.Ready() {
		t.Fatalf("Session never became active: %+v", s.Snapshot())
	}
	if g, _ := s.RemoteGeometry(); g.Name() != "a" {
		t.Errorf("Expected server screen 'a', got %v", g)
	}

	if err := s.Send(protocol.Clipboard{Text: "over the wire"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	for got.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got.count() != 1 {
		t.Fatalf("Expected one message at server, got %d", got.count())
	}
}

// TestProbe reads the name and role from the status API
func TestProbe(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"name":"desk","role":"server","owner":"local"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	peer, ok := Probe(context.Background(), srv.Client(), hostOf(srv))
	if !ok {
		t.Fatal("Expected probe to succeed")
	}
	if peer.Name != "desk" || peer.Role != "server" || peer.IP != "127.0.0.1" || peer.Port == 0 {
		t.Errorf("Unexpected peer %+v", peer)
	}

	if _, ok := Probe(context.Background(), srv.Client(), "127.0.0.1:1"); ok {
		t.Error("Expected probe of a closed port to fail")
	}
}

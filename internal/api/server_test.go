package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"edgekvm/internal/config"
	"edgekvm/internal/forward"
	"edgekvm/internal/geometry"
	"edgekvm/internal/network"
	"edgekvm/internal/session"
	"edgekvm/internal/switcher"

	"github.com/gorilla/websocket"
)

const testToken = "secret"

func newSwitcher(name string, w, h int, controller bool) *switcher.Switcher {
	screen := geometry.MustNew(w, h, 0, 0, name)
	local := func() geometry.Screen { return screen }
	cfg := session.DefaultConfig()
	cfg.AutoReconnect = false
	mgr := session.NewManager(cfg, network.NewDialer(), local, session.LocalClientInfo("test"))
	pipe := forward.New(forward.ManagerPeers{Manager: mgr}, nil, nil)
	return switcher.New(mgr, pipe, nil, nil, switcher.Options{
		Name:       name,
		Local:      local,
		Controller: controller,
		EntryInset: 10,
	})
}

func newTestServer(t *testing.T) (*httptest.Server, *switcher.Switcher) {
	t.Helper()
	mgr := config.NewManagerAt(filepath.Join(t.TempDir(), "config.json"))
	cfg := config.DefaultConfig()
	cfg.General.APIToken = testToken
	if err := mgr.Set(cfg); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	sw := newSwitcher("desk", 1920, 1080, true)
	s := NewServer(mgr, sw)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Close()
		srv.Close()
		sw.Sessions().CloseAll(context.Background())
	})
	return srv, sw
}

func do(t *testing.T, srv *httptest.Server, method, path string, auth bool) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, nil)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	if auth {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthNeedsNoToken(t *testing.T) {
	srv, _ := newTestServer(t)
	if resp := do(t, srv, "GET", "/health", false); resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
}

// TestAuth rejects /api requests without the bearer token
func TestAuth(t *testing.T) {
	srv, _ := newTestServer(t)

	if resp := do(t, srv, "GET", "/api/status", false); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", resp.StatusCode)
	}

	resp := do(t, srv, "GET", "/api/status", true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 with token, got %d", resp.StatusCode)
	}
	var st switcher.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if st.Name != "desk" || st.Role != "server" || st.Owner != "local" {
		t.Errorf("Unexpected status %+v", st)
	}
}

// TestControlErrors maps domain errors onto status codes
func TestControlErrors(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		method, path string
		want         int
	}{
		{"POST", "/api/control/take", http.StatusConflict},
		{"POST", "/api/control/release", http.StatusConflict},
		{"POST", "/api/peers/nope/disconnect", http.StatusNotFound},
		{"POST", "/api/peers/nope/reconnect", http.StatusNotFound},
		{"POST", "/api/peers/connect", http.StatusBadRequest},
		{"GET", "/api/control/take", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		if resp := do(t, srv, tt.method, tt.path, true); resp.StatusCode != tt.want {
			t.Errorf("%s %s: expected %d, got %d", tt.method, tt.path, tt.want, resp.StatusCode)
		}
	}
}

func TestConfigRedactsToken(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, srv, "GET", "/api/config", true)
	var cfg config.Config
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if cfg.General.APIToken == testToken {
		t.Error("Expected the token to be redacted")
	}
}

// TestPeerListenerAndTake connects a real websocket peer and takes control over the API
func TestPeerListenerAndTake(t *testing.T) {
	srv, a := newTestServer(t)
	peers := httptest.NewServer(PeerHandler(a.Sessions()))
	defer peers.Close()

	b := newSwitcher("laptop", 1280, 800, false)
	defer b.Sessions().CloseAll(context.Background())

	if _, err := b.Connect(strings.TrimPrefix(peers.URL, "http://")); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for len(a.Sessions().Snapshot()) == 0 || !a.Sessions().Sessions()[0].Ready() {
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for the peer session")
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp := do(t, srv, "POST", "/api/control/take", true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var st switcher.Status
	json.NewDecoder(resp.Body).Decode(&st)
	if st.OwnerScreen != "laptop" {
		t.Errorf("Expected owner screen laptop, got %+v", st)
	}

	if resp := do(t, srv, "POST", "/api/control/release", true); resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 on release, got %d", resp.StatusCode)
	}
	if !a.Machine().Owner().IsLocal() {
		t.Error("Expected local ownership after release")
	}
}

// TestEventsStream sends the current status on connect and every change after
func TestEventsStream(t *testing.T) {
	srv, _ := newTestServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events"
	header := http.Header{"Authorization": {"Bearer " + testToken}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var st switcher.Status
	if err := conn.ReadJSON(&st); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if st.Name != "desk" {
		t.Errorf("Expected initial status for desk, got %+v", st)
	}

	if _, _, err := websocket.DefaultDialer.Dial(url, nil); err == nil {
		t.Error("Expected the events stream to require the token")
	}
}

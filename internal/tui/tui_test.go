package tui

import (
	"errors"
	"strings"
	"testing"

	"edgekvm/internal/session"
	"edgekvm/internal/switcher"

	tea "github.com/charmbracelet/bubbletea"
)

type fakeControls struct {
	status    switcher.Status
	taken     []session.ID
	returned  int
	reconnect []session.ID
	dropped   []session.ID
	err       error
}

func (f *fakeControls) Status() switcher.Status { return f.status }
func (f *fakeControls) ReturnControl() error    { f.returned++; return f.err }

func (f *fakeControls) TakeControl(peer session.ID) error {
	f.taken = append(f.taken, peer)
	return f.err
}

func (f *fakeControls) Reconnect(id session.ID) error {
	f.reconnect = append(f.reconnect, id)
	return nil
}

func (f *fakeControls) Disconnect(id session.ID) error {
	f.dropped = append(f.dropped, id)
	return nil
}

func twoPeers() *fakeControls {
	return &fakeControls{status: switcher.Status{
		Name:  "desk",
		Role:  "server",
		Owner: "local",
		Peers: []session.Snapshot{
			{ID: "p1", Screen: "laptop", Addr: "10.0.0.5:24800", State: "active", Outbound: true, Width: 1280, Height: 800},
			{ID: "p2", Screen: "tablet", Addr: "10.0.0.6:24800", State: "reconnecting", Attempts: 2, MaxAttempts: 5},
		},
	}}
}

func press(m model, key string) model {
	var msg tea.KeyMsg
	switch key {
	case "down":
		msg = tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		msg = tea.KeyMsg{Type: tea.KeyUp}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
	next, _ := m.Update(msg)
	return next.(model)
}

// TestKeysDriveControls maps keys onto the selected peer
func TestKeysDriveControls(t *testing.T) {
	ctl := twoPeers()
	m := newModel(ctl)

	m = press(m, "t")
	m = press(m, "down")
	m = press(m, "c")
	m = press(m, "d")
	m = press(m, "down") // already at the last peer
	m = press(m, "r")

	if len(ctl.taken) != 1 || ctl.taken[0] != "p1" {
		t.Errorf("Expected take for p1, got %v", ctl.taken)
	}
	if len(ctl.reconnect) != 1 || ctl.reconnect[0] != "p2" {
		t.Errorf("Expected reconnect for p2, got %v", ctl.reconnect)
	}
	if len(ctl.dropped) != 1 || ctl.dropped[0] != "p2" {
		t.Errorf("Expected disconnect for p2, got %v", ctl.dropped)
	}
	if ctl.returned != 1 {
		t.Errorf("Expected one return, got %d", ctl.returned)
	}
	if m.cursor != 1 {
		t.Errorf("Expected cursor 1, got %d", m.cursor)
	}
}

func TestErrorShown(t *testing.T) {
	ctl := twoPeers()
	ctl.err = errors.New("input is already local")
	m := press(newModel(ctl), "r")

	if !strings.Contains(m.View(), "input is already local") {
		t.Error("Expected the error in the view")
	}
	ctl.err = nil
	if m = press(m, "r"); m.lastErr != "" {
		t.Errorf("Expected the error cleared, got %q", m.lastErr)
	}
}

// TestViewShowsState renders owner and peers
func TestViewShowsState(t *testing.T) {
	ctl := twoPeers()
	ctl.status.Owner = "p1"
	ctl.status.OwnerScreen = "laptop"
	view := newModel(ctl).View()

	for _, want := range []string{"desk", "→ laptop", "10.0.0.5:24800", "1280x800", "attempt 2/5", "tablet"} {
		if !strings.Contains(view, want) {
			t.Errorf("Expected view to contain %q:\n%s", want, view)
		}
	}
}

func TestQuit(t *testing.T) {
	_, cmd := newModel(twoPeers()).Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("Expected a quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("Expected tea.QuitMsg")
	}
}

func TestRefreshClampsCursor(t *testing.T) {
	ctl := twoPeers()
	m := press(newModel(ctl), "down")
	ctl.status.Peers = ctl.status.Peers[:1]

	next, _ := m.Update(tickMsg{})
	if next.(model).cursor != 0 {
		t.Errorf("Expected cursor clamped to 0, got %d", next.(model).cursor)
	}
}

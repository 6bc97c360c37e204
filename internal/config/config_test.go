package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"edgekvm/internal/geometry"
)

// TestDefaultConfigValid checks the defaults pass validation
func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Expected defaults to be valid, got %v", err)
	}
	if cfg.General.ListenPort != 24800 {
		t.Errorf("Expected listen port 24800, got %d", cfg.General.ListenPort)
	}
	if cfg.Edge.ThresholdPx != 5 || cfg.Edge.PollMs != 50 || cfg.Edge.EntryInsetPx != 10 {
		t.Errorf("Unexpected edge defaults %+v", cfg.Edge)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"role", func(c *Config) { c.General.Role = "peer" }},
		{"listen port", func(c *Config) { c.General.ListenPort = 0 }},
		{"api port", func(c *Config) { c.General.APIPort = 70000 }},
		{"clipboard poll", func(c *Config) { c.General.ClipboardPollMs = 0 }},
		{"edge poll", func(c *Config) { c.Edge.PollMs = -1 }},
		{"heartbeat", func(c *Config) { c.Session.HeartbeatSec = 0 }},
		{"liveness below heartbeat", func(c *Config) { c.Session.LivenessSec = 30 }},
		{"layout edge", func(c *Config) { c.Layout = map[string]string{"north": "x"} }},
		{"half screen", func(c *Config) { c.Screen.Width = 800 }},
	}
	for _, tt := range tests {
		cfg := DefaultConfig()
		tt.mutate(cfg)
		if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
			t.Errorf("%s: expected ErrInvalid, got %v", tt.name, err)
		}
	}

	cfg := DefaultConfig()
	cfg.General.Role = RoleClient
	cfg.General.ListenPort = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected client without listen port to be valid, got %v", err)
	}
}

// TestConversions maps file settings onto runtime settings
func TestConversions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Layout = map[string]string{"right": "laptop", "left": "tablet"}

	s := cfg.SessionSettings()
	if s.HeartbeatInterval != 30*time.Second || s.LivenessWindow != 75*time.Second ||
		s.ReconnectBackoff != 5*time.Second || s.MaxReconnectAttempts != 5 || !s.AutoReconnect {
		t.Errorf("Unexpected session settings %+v", s)
	}

	e := cfg.EdgeSettings()
	if e.Interval != 50*time.Millisecond || e.Threshold != 5 {
		t.Errorf("Unexpected edge settings %+v", e)
	}

	layout := cfg.LayoutEdges()
	if layout[geometry.EdgeRight] != "laptop" || layout[geometry.EdgeLeft] != "tablet" || len(layout) != 2 {
		t.Errorf("Unexpected layout %v", layout)
	}
}

// TestManagerLoadSave round-trips the file and rejects invalid content
func TestManagerLoadSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")
	m := NewManagerAt(path)

	if err := m.Load(); err != nil {
		t.Fatalf("Load of a missing file failed: %v", err)
	}

	cfg := DefaultConfig()
	cfg.General.Name = "desk"
	cfg.General.Role = RoleClient
	cfg.General.ServerAddrs = []string{"10.0.0.2:24800"}
	if err := m.Set(cfg); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := m.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded := NewManagerAt(path)
	changed := 0
	loaded.RegisterChangeCallback(func() { changed++ })
	if err := loaded.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	got := loaded.Get()
	if got.General.Name != "desk" || got.General.Role != RoleClient || len(got.General.ServerAddrs) != 1 {
		t.Errorf("Unexpected loaded config %+v", got.General)
	}
	if changed != 1 {
		t.Errorf("Expected one change callback, got %d", changed)
	}

	os.WriteFile(path, []byte(`{"general":{"role":"nobody"}}`), 0644)
	if err := loaded.Load(); !errors.Is(err, ErrInvalid) {
		t.Errorf("Expected ErrInvalid, got %v", err)
	}
	if loaded.Get().General.Name != "desk" {
		t.Error("Expected the previous config to survive a bad load")
	}

	bad := DefaultConfig()
	bad.Edge.PollMs = 0
	if err := m.Set(bad); !errors.Is(err, ErrInvalid) {
		t.Errorf("Expected Set to validate, got %v", err)
	}
}

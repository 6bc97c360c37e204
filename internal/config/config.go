// Package config provides configuration management for edgekvm.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"edgekvm/internal/edge"
	"edgekvm/internal/geometry"
	"edgekvm/internal/session"
)

var ErrInvalid = errors.New("invalid configuration")

const (
	RoleServer = "server"
	RoleClient = "client"
)

// Config represents the application configuration
type Config struct {
	General GeneralConfig `json:"general"`
	Edge    EdgeConfig    `json:"edge"`
	Session SessionConfig `json:"session"`

	// Layout maps an edge name ("left", "right", "top", "bottom") to the
	// screen name of the peer beyond it. Empty means first connected peer.
	Layout map[string]string `json:"layout,omitempty"`

	// Screen overrides the detected local screen when both sides are set
	Screen ScreenConfig `json:"screen"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	// Role is "server" (controller, listens) or "client" (connects)
	Role string `json:"role"`

	// Name is this computer's screen name as sent in the handshake
	Name string `json:"name"`

	// ListenPort is the websocket port a server listens on
	ListenPort int `json:"listen_port"`

	// ServerAddrs are the host:port addresses a client connects to
	ServerAddrs []string `json:"server_addrs,omitempty"`

	// APIEnabled enables the HTTP status and control API
	APIEnabled bool `json:"api_enabled"`

	// APIPort is the port for the API server
	APIPort int `json:"api_port"`

	// APIToken is an optional bearer token for /api requests
	APIToken string `json:"api_token,omitempty"`

	// EnableClipboard relays clipboard text between peers
	EnableClipboard bool `json:"enable_clipboard"`

	// ClipboardPollMs is how often the local clipboard is checked
	ClipboardPollMs int `json:"clipboard_poll_ms"`

	// TakeHotkey hands input to the first connected peer (e.g. "Ctrl+Alt+Right")
	TakeHotkey string `json:"take_hotkey,omitempty"`

	// ReturnHotkey brings input back to this computer (e.g. "Ctrl+Alt+Left")
	ReturnHotkey string `json:"return_hotkey,omitempty"`

	// ShowTray shows the system tray icon
	ShowTray bool `json:"show_tray"`
}

// EdgeConfig tunes edge detection
type EdgeConfig struct {
	ThresholdPx  int `json:"threshold_px"`
	PollMs       int `json:"poll_ms"`
	EntryInsetPx int `json:"entry_inset_px"`
}

// SessionConfig tunes liveness and reconnection
type SessionConfig struct {
	HeartbeatSec        int  `json:"heartbeat_sec"`
	LivenessSec         int  `json:"liveness_sec"`
	HandshakeSec        int  `json:"handshake_sec"`
	ReconnectBackoffSec int  `json:"reconnect_backoff_sec"`
	MaxReconnects       int  `json:"max_reconnect_attempts"`
	AutoReconnect       bool `json:"auto_reconnect"`
}

// ScreenConfig is a manual screen size
type ScreenConfig struct {
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`
}

// DefaultConfig returns a new Config with sensible defaults
func DefaultConfig() *Config {
	host, _ := os.Hostname()
	return &Config{
		General: GeneralConfig{
			Role:            RoleServer,
			Name:            host,
			ListenPort:      24800,
			APIEnabled:      true,
			APIPort:         24801,
			EnableClipboard: true,
			ClipboardPollMs: 500,
			TakeHotkey:      "Ctrl+Alt+Right",
			ReturnHotkey:    "Ctrl+Alt+Left",
			ShowTray:        true,
		},
		Edge: EdgeConfig{
			ThresholdPx:  5,
			PollMs:       50,
			EntryInsetPx: 10,
		},
		Session: SessionConfig{
			HeartbeatSec:        30,
			LivenessSec:         75,
			HandshakeSec:        10,
			ReconnectBackoffSec: 5,
			MaxReconnects:       5,
			AutoReconnect:       true,
		},
	}
}

// Validate rejects settings the rest of the program cannot run with
func (c *Config) Validate() error {
	g := c.General
	switch {
	case g.Role != RoleServer && g.Role != RoleClient:
		return fmt.Errorf("%w: role %q", ErrInvalid, g.Role)
	case g.Role == RoleServer && !validPort(g.ListenPort):
		return fmt.Errorf("%w: listen_port %d", ErrInvalid, g.ListenPort)
	case g.APIEnabled && !validPort(g.APIPort):
		return fmt.Errorf("%w: api_port %d", ErrInvalid, g.APIPort)
	case g.EnableClipboard && g.ClipboardPollMs <= 0:
		return fmt.Errorf("%w: clipboard_poll_ms %d", ErrInvalid, g.ClipboardPollMs)
	case c.Edge.PollMs <= 0 || c.Edge.ThresholdPx < 0 || c.Edge.EntryInsetPx < 0:
		return fmt.Errorf("%w: edge settings %+v", ErrInvalid, c.Edge)
	}

	s := c.Session
	if s.HeartbeatSec <= 0 || s.LivenessSec <= 0 || s.HandshakeSec <= 0 ||
		s.ReconnectBackoffSec <= 0 || s.MaxReconnects < 0 {
		return fmt.Errorf("%w: session settings %+v", ErrInvalid, s)
	}
	if s.LivenessSec <= s.HeartbeatSec {
		return fmt.Errorf("%w: liveness_sec %d must exceed heartbeat_sec %d", ErrInvalid, s.LivenessSec, s.HeartbeatSec)
	}

	for name := range c.Layout {
		if geometry.ParseEdge(name) == geometry.EdgeNone {
			return fmt.Errorf("%w: layout edge %q", ErrInvalid, name)
		}
	}
	if (c.Screen.Width > 0) != (c.Screen.Height > 0) {
		return fmt.Errorf("%w: screen override needs width and height", ErrInvalid)
	}
	return nil
}

func validPort(p int) bool {
	return p > 0 && p < 65536
}

// SessionSettings converts the session section
func (c *Config) SessionSettings() session.Config {
	cfg := session.DefaultConfig()
	cfg.HeartbeatInterval = time.Duration(c.Session.HeartbeatSec) * time.Second
	cfg.LivenessWindow = time.Duration(c.Session.LivenessSec) * time.Second
	cfg.HandshakeTimeout = time.Duration(c.Session.HandshakeSec) * time.Second
	cfg.ReconnectBackoff = time.Duration(c.Session.ReconnectBackoffSec) * time.Second
	cfg.MaxReconnectAttempts = c.Session.MaxReconnects
	cfg.AutoReconnect = c.Session.AutoReconnect
	return cfg
}

// EdgeSettings converts the edge section
func (c *Config) EdgeSettings() edge.Config {
	return edge.Config{
		Interval:  time.Duration(c.Edge.PollMs) * time.Millisecond,
		Threshold: c.Edge.ThresholdPx,
	}
}

// LayoutEdges parses Layout, skipping unknown edge names
func (c *Config) LayoutEdges() map[geometry.Edge]string {
	if len(c.Layout) == 0 {
		return nil
	}
	out := make(map[geometry.Edge]string, len(c.Layout))
	for name, screen := range c.Layout {
		if e := geometry.ParseEdge(name); e != geometry.EdgeNone {
			out[e] = screen
		}
	}
	return out
}

// Manager handles loading and saving configuration
type Manager struct {
	mu         sync.Mutex
	configPath string
	config     *Config
	onChanged  func()
}

// NewManager creates a manager for the per-user config file
func NewManager() (*Manager, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}
	return NewManagerAt(configPath), nil
}

// NewManagerAt creates a manager for an explicit file path
func NewManagerAt(path string) *Manager {
	return &Manager{
		configPath: path,
		config:     DefaultConfig(),
	}
}

// Path returns the file the manager reads and writes
func (m *Manager) Path() string {
	return m.configPath
}

// getConfigPath returns the path to the configuration file
func getConfigPath() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "edgekvm")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		configDir = filepath.Join(appData, "edgekvm")
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, ".config", "edgekvm")
	}

	return filepath.Join(configDir, "config.json"), nil
}

// Load reads the configuration from disk. A missing file keeps defaults.
func (m *Manager) Load() error {
	m.mu.Lock()

	data, err := os.ReadFile(m.configPath)
	if os.IsNotExist(err) {
		m.mu.Unlock()
		return nil
	}
	if err != nil {
		m.mu.Unlock()
		return err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("parse %s: %w", m.configPath, err)
	}
	if err := cfg.Validate(); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("%s: %w", m.configPath, err)
	}
	m.config = cfg
	fn := m.onChanged
	m.mu.Unlock()

	if fn != nil {
		fn()
	}
	return nil
}

// Save writes the configuration to disk
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(m.configPath), 0755); err != nil {
		return err
	}

	log.Printf("Config: Saving configuration to %s (%d bytes)", m.configPath, len(data))
	return os.WriteFile(m.configPath, data, 0644)
}

// Get returns the current configuration
func (m *Manager) Get() *Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config
}

// Set validates and replaces the configuration
func (m *Manager) Set(config *Config) error {
	if err := config.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.config = config
	fn := m.onChanged
	m.mu.Unlock()
	if fn != nil {
		fn()
	}
	return nil
}

// RegisterChangeCallback registers a function to be called when config changes
func (m *Manager) RegisterChangeCallback(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChanged = fn
}

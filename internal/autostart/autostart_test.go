//go:build !windows

package autostart

import (
	"os"
	"strings"
	"testing"
)

// TestEnableDisable writes and removes the login item under a temp home
func TestEnableDisable(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", "")
	userHome = func() (string, error) { return home, nil }
	defer func() { userHome = os.UserHomeDir }()

	if IsEnabled() {
		t.Fatal("Expected auto-start disabled in a fresh home")
	}

	e := Entry{Exec: "/opt/edgekvm/edgekvm", Args: []string{"-config", "/home/me/my config.json"}}
	if err := Enable(e); err != nil {
		t.Fatalf("Enable failed: %v", err)
	}
	if !IsEnabled() {
		t.Error("Expected auto-start enabled")
	}

	path, _, _ := entryFile()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	for _, want := range []string{"/opt/edgekvm/edgekvm", "-config", "my config.json"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("Expected entry to contain %q:\n%s", want, data)
		}
	}

	if err := Disable(); err != nil {
		t.Fatalf("Disable failed: %v", err)
	}
	if IsEnabled() {
		t.Error("Expected auto-start disabled")
	}
	if err := Disable(); err != nil {
		t.Errorf("Expected second Disable to succeed, got %v", err)
	}
}

func TestEnableNeedsExecutable(t *testing.T) {
	if err := Enable(Entry{}); err == nil {
		t.Error("Expected an error for an empty executable")
	}
}

func TestQuote(t *testing.T) {
	tests := map[string]string{
		"plain":        "plain",
		"with space":   `"with space"`,
		`say "hi"`:     `"say \"hi\""`,
		"":             `""`,
		"$HOME/config": `"\$HOME/config"`,
	}
	for in, want := range tests {
		if got := quote(in); got != want {
			t.Errorf("quote(%q): expected %s, got %s", in, want, got)
		}
	}
}

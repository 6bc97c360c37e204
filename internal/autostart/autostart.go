// Package autostart registers edgekvm to start at login.
package autostart

import (
	"fmt"
	"os"
)

// Label names the login item on every platform
const Label = "com.edgekvm.agent"

// Entry is the command run at login
type Entry struct {
	Exec string
	Args []string
}

// Current returns an entry for the running executable
func Current(args ...string) (Entry, error) {
	execPath, err := os.Executable()
	if err != nil {
		return Entry{}, fmt.Errorf("failed to get executable path: %w", err)
	}
	return Entry{Exec: execPath, Args: args}, nil
}

// Enable enables auto-start on login
func Enable(e Entry) error {
	if e.Exec == "" {
		return fmt.Errorf("autostart: empty executable path")
	}
	return enable(e)
}

// Disable disables auto-start on login. Disabling twice is not an error.
func Disable() error {
	return disable()
}

// IsEnabled checks if auto-start is enabled
func IsEnabled() bool {
	return isEnabled()
}

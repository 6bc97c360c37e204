//go:build !windows

package autostart

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"text/template"
)

const macLaunchAgentPlist = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{.Exec}}</string>
{{- range .Args}}
        <string>{{.}}</string>
{{- end}}
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <false/>
</dict>
</plist>
`

const xdgDesktopEntry = `[Desktop Entry]
Type=Application
Name=edgekvm
Comment=Share keyboard and mouse across computers
Exec={{.Command}}
X-GNOME-Autostart-enabled=true
`

var userHome = os.UserHomeDir

// entryFile returns the login item path and its template for this platform
func entryFile() (string, string, error) {
	home, err := userHome()
	if err != nil {
		return "", "", err
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "LaunchAgents", Label+".plist"), macLaunchAgentPlist, nil
	default:
		dir := os.Getenv("XDG_CONFIG_HOME")
		if dir == "" {
			dir = filepath.Join(home, ".config")
		}
		return filepath.Join(dir, "autostart", "edgekvm.desktop"), xdgDesktopEntry, nil
	}
}

// quote wraps an argument for a desktop entry Exec line
func quote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\"'\\$`") {
		return s
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "`", "\\`", `$`, `\$`)
	return `"` + r.Replace(s) + `"`
}

func enable(e Entry) error {
	path, text, err := entryFile()
	if err != nil {
		return err
	}
	tmpl, err := template.New("autostart").Parse(text)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	parts := []string{quote(e.Exec)}
	for _, a := range e.Args {
		parts = append(parts, quote(a))
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	data := struct {
		Label   string
		Exec    string
		Args    []string
		Command string
	}{Label, e.Exec, e.Args, strings.Join(parts, " ")}
	if err := tmpl.Execute(f, data); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func disable() error {
	path, _, err := entryFile()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func isEnabled() bool {
	path, _, err := entryFile()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

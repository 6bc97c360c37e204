// Package tui is a terminal status monitor for a running node.
package tui

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"edgekvm/internal/session"
	"edgekvm/internal/switcher"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Controls is what the monitor can read and drive
type Controls interface {
	Status() switcher.Status
	TakeControl(peer session.ID) error
	ReturnControl() error
	Reconnect(id session.ID) error
	Disconnect(id session.ID) error
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("10"))

	ownerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("13"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	keyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("14"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Padding(0, 1)
)

const refreshInterval = 250 * time.Millisecond

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

type model struct {
	ctl     Controls
	status  switcher.Status
	cursor  int
	lastErr string
	width   int
}

func newModel(ctl Controls) model {
	return model{ctl: ctl, status: ctl.Status()}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), tea.SetWindowTitle("edgekvm"))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tickMsg:
		m.refresh()
		return m, tickCmd()
	}
	return m, nil
}

func (m *model) refresh() {
	m.status = m.ctl.Status()
	if m.cursor >= len(m.status.Peers) {
		m.cursor = max(len(m.status.Peers)-1, 0)
	}
}

func (m model) selected() (session.ID, bool) {
	if m.cursor < 0 || m.cursor >= len(m.status.Peers) {
		return "", false
	}
	return m.status.Peers[m.cursor].ID, true
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var err error
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.status.Peers)-1 {
			m.cursor++
		}
	case "t":
		id, _ := m.selected()
		err = m.ctl.TakeControl(id)
	case "r":
		err = m.ctl.ReturnControl()
	case "c":
		if id, ok := m.selected(); ok {
			err = m.ctl.Reconnect(id)
		}
	case "d":
		if id, ok := m.selected(); ok {
			err = m.ctl.Disconnect(id)
		}
	default:
		return m, nil
	}

	m.lastErr = ""
	if err != nil {
		m.lastErr = err.Error()
	}
	m.refresh()
	return m, nil
}

func (m model) View() string {
	st := m.status
	var b strings.Builder

	b.WriteString(titleStyle.Render("edgekvm"))
	b.WriteString(dimStyle.Render(fmt.Sprintf(" - %s (%s)", st.Name, st.Role)))
	b.WriteString("\n\n")

	switch {
	case st.Owner != "local":
		target := st.OwnerScreen
		if target == "" {
			target = st.Owner
		}
		b.WriteString("Input: " + ownerStyle.Render("→ "+target))
	case st.DrivenBy != "":
		b.WriteString("Input: " + ownerStyle.Render("driven by "+st.DrivenBy))
	default:
		b.WriteString("Input: local")
	}
	if st.Transitioning {
		b.WriteString(dimStyle.Render(" (switching)"))
	}
	if st.Degraded {
		b.WriteString(errorStyle.Render("  no local input access"))
	}
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("sent %d  injected %d  rejected %d  errors %d  clipboard %d",
		st.Forward.Sent, st.Forward.Injected, st.Forward.Rejected, st.Forward.Errors, st.Forward.Clipboard)))
	b.WriteString("\n\n")

	b.WriteString(boxStyle.Render(m.renderPeers()))
	b.WriteString("\n")

	if m.lastErr != "" {
		b.WriteString(errorStyle.Render("Error: " + m.lastErr))
		b.WriteString("\n")
	}
	b.WriteString(renderHelp())
	return b.String()
}

func (m model) renderPeers() string {
	if len(m.status.Peers) == 0 {
		return dimStyle.Render("no peers")
	}
	var lines []string
	for i, p := range m.status.Peers {
		dir := "in "
		if p.Outbound {
			dir = "out"
		}
		screen := p.Screen
		if screen == "" {
			screen = "?"
		}
		line := fmt.Sprintf("%s %-12s %-20s %-12s", dir, screen, p.Addr, p.State)
		if p.Width > 0 {
			line += fmt.Sprintf(" %dx%d", p.Width, p.Height)
		}
		if p.State == "reconnecting" {
			line += fmt.Sprintf(" attempt %d/%d", p.Attempts, p.MaxAttempts)
		}
		if p.Reason != "" {
			line += dimStyle.Render(" " + p.Reason)
		}
		if i == m.cursor {
			line = selectedStyle.Render("> " + line)
		} else {
			line = "  " + line
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func renderHelp() string {
	keys := []struct{ key, desc string }{
		{"↑/↓", "select"},
		{"t", "take"},
		{"r", "return"},
		{"c", "reconnect"},
		{"d", "disconnect"},
		{"q", "quit"},
	}
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = keyStyle.Render(k.key) + dimStyle.Render(" "+k.desc)
	}
	return strings.Join(parts, dimStyle.Render(" • "))
}

// Run shows the monitor until the user quits. Logs go to logPath while it
// runs, or are discarded when logPath is empty or cannot be created.
func Run(ctl Controls, logPath string) error {
	var out io.Writer = io.Discard
	if logPath != "" {
		if f, err := os.Create(logPath); err == nil {
			defer f.Close()
			out = f
		}
	}
	log.SetOutput(out)
	defer log.SetOutput(os.Stderr)

	p := tea.NewProgram(newModel(ctl), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

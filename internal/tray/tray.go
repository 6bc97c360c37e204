// Package tray provides system tray functionality using getlantern/systray.
package tray

import (
	"fmt"
	"sync"

	"edgekvm/internal/switcher"

	"github.com/getlantern/systray"
)

// MenuItem represents a menu item
type MenuItem struct {
	ID       int
	Title    string
	Disabled bool
	Callback func()
	item     *systray.MenuItem
}

// Tray manages the system tray icon and menu
type Tray struct {
	tooltip string
	items   []*MenuItem
	status  *MenuItem
	quitCh  chan struct{}

	mu    sync.Mutex
	ready bool
	title string
	line  string
}

// New creates a new system tray. The first menu row shows the current status.
func New(tooltip string) *Tray {
	t := &Tray{
		tooltip: tooltip,
		quitCh:  make(chan struct{}),
		title:   "edgekvm",
	}
	t.status = &MenuItem{ID: 0, Title: "Starting", Disabled: true}
	t.items = append(t.items, t.status, nil)
	return t
}

// AddMenuItem adds a menu item to the tray
func (t *Tray) AddMenuItem(title string, callback func()) int {
	id := len(t.items)
	t.items = append(t.items, &MenuItem{
		ID:       id,
		Title:    title,
		Callback: callback,
	})
	return id
}

// AddSeparator adds a separator to the menu
func (t *Tray) AddSeparator() {
	t.items = append(t.items, nil) // nil indicates separator
}

// SetStatus updates the title and the status row from a switcher status
func (t *Tray) SetStatus(st switcher.Status) {
	t.mu.Lock()
	t.title = Title(st)
	t.line = StatusLine(st)
	ready := t.ready
	t.mu.Unlock()
	if ready {
		t.apply()
	}
}

func (t *Tray) apply() {
	t.mu.Lock()
	title, line := t.title, t.line
	t.mu.Unlock()
	systray.SetTitle(title)
	if line != "" && t.status.item != nil {
		t.status.item.SetTitle(line)
	}
}

// Title is the short text next to the tray icon
func Title(st switcher.Status) string {
	switch {
	case st.Owner != "local":
		return "edgekvm → " + orID(st.OwnerScreen, st.Owner)
	case st.DrivenBy != "":
		return "edgekvm ← remote"
	default:
		return "edgekvm"
	}
}

// StatusLine summarises ownership and peers for the menu
func StatusLine(st switcher.Status) string {
	active := 0
	for _, p := range st.Peers {
		if p.State == "active" {
			active++
		}
	}
	where := "Input: local"
	switch {
	case st.Owner != "local":
		where = "Input: " + orID(st.OwnerScreen, st.Owner)
	case st.DrivenBy != "":
		where = "Driven by " + st.DrivenBy
	}
	line := fmt.Sprintf("%s (%d/%d peers)", where, active, len(st.Peers))
	if st.Degraded {
		line += " [no input access]"
	}
	return line
}

func orID(name, id string) string {
	if name != "" {
		return name
	}
	return id
}

// Run starts the tray event loop (blocks)
func (t *Tray) Run() {
	systray.Run(t.setupMenu, t.onExit)
}

func (t *Tray) onExit() {
	close(t.quitCh)
}

// setupMenu is called when systray is ready
func (t *Tray) setupMenu() {
	systray.SetTooltip(t.tooltip)
	systray.SetIcon(getIcon())

	for _, menuItem := range t.items {
		if menuItem == nil {
			systray.AddSeparator()
			continue
		}
		item := systray.AddMenuItem(menuItem.Title, "")
		menuItem.item = item
		if menuItem.Disabled {
			item.Disable()
		}

		// Handle clicks in goroutine
		if menuItem.Callback != nil {
			go func(mi *MenuItem) {
				for {
					select {
					case <-mi.item.ClickedCh:
						mi.Callback()
					case <-t.quitCh:
						return
					}
				}
			}(menuItem)
		}
	}

	t.mu.Lock()
	t.ready = true
	t.mu.Unlock()
	t.apply()
}

// Stop stops the tray
func (t *Tray) Stop() {
	systray.Quit()
}

// getIcon returns a blank 16x16 32-bit ICO
func getIcon() []byte {
	icon := make([]byte, 1118)
	// ICONDIR: reserved, type 1, one image
	copy(icon[0:6], []byte{0x00, 0x00, 0x01, 0x00, 0x01, 0x00})
	// ICONDIRENTRY: 16x16, 32bpp, 1096 bytes at offset 22
	copy(icon[6:22], []byte{
		0x10, 0x10, 0x00, 0x00, 0x01, 0x00, 0x20, 0x00,
		0x48, 0x04, 0x00, 0x00,
		0x16, 0x00, 0x00, 0x00,
	})
	// BITMAPINFOHEADER, height doubled for the AND mask
	copy(icon[22:62], []byte{
		0x28, 0x00, 0x00, 0x00,
		0x10, 0x00, 0x00, 0x00,
		0x20, 0x00, 0x00, 0x00,
		0x01, 0x00,
		0x20, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x04, 0x00, 0x00,
	})
	return icon
}

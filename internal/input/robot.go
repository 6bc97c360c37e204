//go:build cgo

package input

import (
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/go-vgo/robotgo"
)

// Robot drives the local desktop through robotgo. It implements Pointer,
// Injector and Clipboard.
type Robot struct {
	mu sync.Mutex
}

func NewRobot() *Robot {
	return &Robot{}
}

// Probe reports whether the desktop can be reached at all. robotgo aborts
// the process when no X display is present, so this must run first.
func Probe() error {
	if runtime.GOOS == "linux" && os.Getenv("DISPLAY") == "" {
		return fmt.Errorf("%w: no X display", ErrUnavailable)
	}
	return nil
}

func (r *Robot) Position() (int, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	x, y := robotgo.GetMousePos()
	return x, y, nil
}

func (r *Robot) Move(x, y int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	robotgo.Move(x, y)
	return nil
}

func (r *Robot) Button(x, y int, button string, pressed bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	robotgo.Move(x, y)
	if err := robotgo.Toggle(button, upDown(pressed)); err != nil {
		return fmt.Errorf("toggle %s: %w", button, err)
	}
	return nil
}

func (r *Robot) Scroll(x, y, dx, dy int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	robotgo.Move(x, y)
	robotgo.Scroll(dx, dy)
	return nil
}

func (r *Robot) Key(symbol string, pressed bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := robotgo.KeyToggle(robotKey(symbol), upDown(pressed)); err != nil {
		return fmt.Errorf("key %q: %w", symbol, err)
	}
	return nil
}

func (r *Robot) Read() (string, error) {
	return robotgo.ReadAll()
}

func (r *Robot) Write(text string) error {
	return robotgo.WriteAll(text)
}

func upDown(pressed bool) string {
	if pressed {
		return "down"
	}
	return "up"
}

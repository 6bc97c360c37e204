// Package input is the boundary to the operating system's pointer, keyboard
// and clipboard.
//
// Capture, injection and clipboard access are separate interfaces so a node
// without injection rights can still capture, and tests can fake each one.
package input

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when the OS backend cannot be used at all
var ErrUnavailable = errors.New("input backend unavailable")

// Kind tags an Event
type Kind int

const (
	KindMove Kind = iota
	KindButton
	KindScroll
	KindKey
)

func (k Kind) String() string {
	switch k {
	case KindMove:
		return "move"
	case KindButton:
		return "button"
	case KindScroll:
		return "scroll"
	case KindKey:
		return "key"
	default:
		return "unknown"
	}
}

// Button names match the wire names
const (
	ButtonLeft   = "left"
	ButtonRight  = "right"
	ButtonMiddle = "middle"
)

// Event is one captured input change.
//
// X and Y are the local pointer position when the event was sampled. DX and
// DY are relative motion for moves and wheel notches for scrolls. Key holds
// a wire key symbol such as "a", "ctrl" or "page_up".
type Event struct {
	Kind    Kind
	X, Y    int
	DX, DY  int
	Button  string
	Key     string
	Pressed bool
}

// Pointer reads the local pointer position
type Pointer interface {
	Position() (x, y int, err error)
}

// Injector replays input on the local desktop
type Injector interface {
	Move(x, y int) error
	Button(x, y int, button string, pressed bool) error
	Scroll(x, y, dx, dy int) error
	Key(symbol string, pressed bool) error
}

// Clipboard reads and writes clipboard text
type Clipboard interface {
	Read() (string, error)
	Write(text string) error
}

// Capturer delivers local input until ctx is cancelled. While suppressed
// the local desktop does not react to captured input.
type Capturer interface {
	Start(ctx context.Context) (<-chan Event, error)
	Suppress(on bool)
}

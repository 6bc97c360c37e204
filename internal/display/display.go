// Package display reports the local screen geometry.
package display

import (
	"errors"
	"fmt"

	"edgekvm/internal/geometry"

	"github.com/kbinani/screenshot"
)

var ErrNoDisplay = errors.New("no active display")

// Source produces the current local geometry
type Source interface {
	Current() (geometry.Screen, error)
}

// ScreenshotSource reads the bounds of one display
type ScreenshotSource struct {
	Display int
	Name    string
}

func (s ScreenshotSource) Current() (geometry.Screen, error) {
	n := screenshot.NumActiveDisplays()
	if n == 0 || s.Display < 0 || s.Display >= n {
		return geometry.Screen{}, fmt.Errorf("%w: display %d of %d", ErrNoDisplay, s.Display, n)
	}
	b := screenshot.GetDisplayBounds(s.Display)
	return geometry.New(b.Dx(), b.Dy(), b.Min.X, b.Min.Y, s.Name)
}

// Fixed always reports the same geometry. It backs configured screen sizes
// on hosts where the display cannot be queried.
type Fixed struct {
	Screen geometry.Screen
}

func (f Fixed) Current() (geometry.Screen, error) {
	if !f.Screen.Valid() {
		return geometry.Screen{}, geometry.ErrInvalidGeometry
	}
	return f.Screen, nil
}

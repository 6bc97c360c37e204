// Package geometry describes screens and maps pointer positions between them.
package geometry

import (
	"errors"
	"fmt"
)

// ErrInvalidGeometry is returned when a screen has a non-positive extent
var ErrInvalidGeometry = errors.New("invalid screen geometry")

// Point is a pointer position in screen pixels
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Screen is an immutable description of one endpoint's screen.
// Obtain values through New or MustNew; a refresh yields a new Screen.
type Screen struct {
	width   int
	height  int
	originX int
	originY int
	name    string
}

// New validates and returns a Screen
func New(width, height, originX, originY int, name string) (Screen, error) {
	if width <= 0 || height <= 0 {
		return Screen{}, fmt.Errorf("%w: %dx%d", ErrInvalidGeometry, width, height)
	}
	return Screen{
		width:   width,
		height:  height,
		originX: originX,
		originY: originY,
		name:    name,
	}, nil
}

// MustNew is like New but panics on an invalid extent
func MustNew(width, height, originX, originY int, name string) Screen {
	s, err := New(width, height, originX, originY, name)
	if err != nil {
		panic(err)
	}
	return s
}

func (s Screen) Width() int   { return s.width }
func (s Screen) Height() int  { return s.height }
func (s Screen) OriginX() int { return s.originX }
func (s Screen) OriginY() int { return s.originY }
func (s Screen) Name() string { return s.name }

// Valid reports whether s was built through New
func (s Screen) Valid() bool {
	return s.width > 0 && s.height > 0
}

// Center returns the middle pixel of the screen
func (s Screen) Center() Point {
	return Point{X: s.originX + s.width/2, Y: s.originY + s.height/2}
}

func (s Screen) String() string {
	return fmt.Sprintf("%s %dx%d+%d+%d", s.name, s.width, s.height, s.originX, s.originY)
}

func (s Screen) mustBeValid() {
	if !s.Valid() {
		panic(fmt.Sprintf("geometry: zero-size screen %q used for mapping", s.name))
	}
}

// IsInside reports whether p lies on screen, origin inclusive and far edge exclusive.
func IsInside(p Point, s Screen) bool {
	return s.originX <= p.X && p.X < s.originX+s.width &&
		s.originY <= p.Y && p.Y < s.originY+s.height
}

// MapPoint translates p from one screen into the proportional position on another.
// It panics if either screen has a zero extent.
func MapPoint(p Point, from, to Screen) Point {
	from.mustBeValid()
	to.mustBeValid()

	return Point{
		X: to.originX + scale(p.X-from.originX, from.width, to.width),
		Y: to.originY + scale(p.Y-from.originY, from.height, to.height),
	}
}

// scale computes offset*dst/src truncated toward zero, in integers so that
// equal-sized screens map exactly.
func scale(offset, src, dst int) int {
	return int(int64(offset) * int64(dst) / int64(src))
}

// Clamp constrains p to [origin, origin+extent-1] on both axes
func Clamp(p Point, s Screen) Point {
	return Point{
		X: clampInt(p.X, s.originX, s.originX+s.width-1),
		Y: clampInt(p.Y, s.originY, s.originY+s.height-1),
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

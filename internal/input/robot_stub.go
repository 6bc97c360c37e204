//go:build !cgo

package input

import "fmt"

// Robot is unavailable in builds without cgo
type Robot struct{}

func NewRobot() *Robot {
	return &Robot{}
}

func Probe() error {
	return fmt.Errorf("%w: built without cgo", ErrUnavailable)
}

func (r *Robot) Position() (int, int, error)             { return 0, 0, ErrUnavailable }
func (r *Robot) Move(x, y int) error                     { return ErrUnavailable }
func (r *Robot) Button(x, y int, b string, p bool) error { return ErrUnavailable }
func (r *Robot) Scroll(x, y, dx, dy int) error           { return ErrUnavailable }
func (r *Robot) Key(symbol string, pressed bool) error   { return ErrUnavailable }
func (r *Robot) Read() (string, error)                   { return "", ErrUnavailable }
func (r *Robot) Write(text string) error                 { return ErrUnavailable }

//go:build !darwin && !windows

package osutils

import (
	"errors"
	"runtime"
)

func nudgePointer() error {
	return errors.New("pointer nudge not implemented on " + runtime.GOOS)
}

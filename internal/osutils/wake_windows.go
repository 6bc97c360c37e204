//go:build windows

package osutils

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32        = windows.NewLazySystemDLL("user32.dll")
	procSendInput = user32.NewProc("SendInput")
)

const (
	inputMouse      = 0
	mouseeventfMove = 0x0001
)

type mouseInput struct {
	Dx          int32
	Dy          int32
	MouseData   uint32
	DwFlags     uint32
	Time        uint32
	DwExtraInfo uintptr
}

type input struct {
	Type uint32
	Mi   mouseInput
	_    [8]byte // pad to sizeof(INPUT)
}

// nudgePointer sends a relative one pixel move and its inverse
func nudgePointer() error {
	for _, d := range []int32{1, -1} {
		in := input{Type: inputMouse, Mi: mouseInput{Dx: d, Dy: d, DwFlags: mouseeventfMove}}
		n, _, err := procSendInput.Call(1, uintptr(unsafe.Pointer(&in)), unsafe.Sizeof(in))
		if n == 0 {
			return fmt.Errorf("SendInput: %w", err)
		}
	}
	return nil
}

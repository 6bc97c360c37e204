//go:build windows

package hotkey

import (
	"fmt"
	"log"
	"runtime"
	"sync/atomic"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32                  = windows.NewLazySystemDLL("user32.dll")
	procSetWindowsHookEx    = user32.NewProc("SetWindowsHookExW")
	procCallNextHookEx      = user32.NewProc("CallNextHookEx")
	procUnhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	procGetMessage          = user32.NewProc("GetMessageW")
	procTranslateMessage    = user32.NewProc("TranslateMessage")
	procDispatchMessage     = user32.NewProc("DispatchMessageW")
	kernel32                = windows.NewLazySystemDLL("kernel32.dll")
	procGetModuleHandle     = kernel32.NewProc("GetModuleHandleW")
)

const (
	whKeyboardLL = 13
	whMouseLL    = 14

	wmKeyDown    = 0x0100
	wmKeyUp      = 0x0101
	wmSysKeyDown = 0x0104
	wmSysKeyUp   = 0x0105

	wmLButtonDown = 0x0201
	wmLButtonUp   = 0x0202
	wmRButtonDown = 0x0204
	wmRButtonUp   = 0x0205
	wmMButtonDown = 0x0207
	wmMButtonUp   = 0x0208
	wmMouseWheel  = 0x020A
	wmXButtonDown = 0x020B
	wmXButtonUp   = 0x020C
	wmMouseHWheel = 0x020E

	wheelDelta = 120

	llkhfInjected = 0x10
	llmhfInjected = 0x01
)

type kbdLLHookStruct struct {
	VkCode      uint32
	ScanCode    uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

type msLLHookStruct struct {
	Point       struct{ X, Y int32 }
	MouseData   uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

var (
	active       atomic.Pointer[Manager]
	keyboardHook uintptr
	mouseHook    uintptr
)

func (m *Manager) startPlatform() error {
	if !active.CompareAndSwap(nil, m) {
		return fmt.Errorf("hooks already installed")
	}

	ready := make(chan error, 1)

	// Low-level hooks are delivered to the thread that installed them, which
	// must pump messages.
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		hMod, _, _ := procGetModuleHandle.Call(0)

		var err error
		keyboardHook, _, err = procSetWindowsHookEx.Call(whKeyboardLL, syscall.NewCallback(keyboardProc), hMod, 0)
		if keyboardHook == 0 {
			ready <- fmt.Errorf("keyboard hook: %w", err)
			return
		}
		mouseHook, _, err = procSetWindowsHookEx.Call(whMouseLL, syscall.NewCallback(mouseProc), hMod, 0)
		if mouseHook == 0 {
			procUnhookWindowsHookEx.Call(keyboardHook)
			ready <- fmt.Errorf("mouse hook: %w", err)
			return
		}
		ready <- nil
		log.Println("Hotkey: Windows low-level hooks installed")

		var msg struct {
			Hwnd    syscall.Handle
			Message uint32
			Wparam  uintptr
			Lparam  uintptr
			Time    uint32
			Pt      struct{ X, Y int32 }
		}
		for {
			ret, _, _ := procGetMessage.Call(uintptr(unsafe.Pointer(&msg)), 0, 0, 0)
			if int32(ret) <= 0 {
				break
			}
			procTranslateMessage.Call(uintptr(unsafe.Pointer(&msg)))
			procDispatchMessage.Call(uintptr(unsafe.Pointer(&msg)))
		}

		procUnhookWindowsHookEx.Call(keyboardHook)
		procUnhookWindowsHookEx.Call(mouseHook)
	}()

	if err := <-ready; err != nil {
		active.Store(nil)
		return err
	}
	return nil
}

func keyboardProc(nCode int, wParam uintptr, lParam uintptr) uintptr {
	m := active.Load()
	if nCode == 0 && m != nil {
		kbd := (*kbdLLHookStruct)(unsafe.Pointer(lParam))
		// Injected keys are our own output on the driven side.
		if kbd.Flags&llkhfInjected == 0 {
			if name := vkCodeToName(kbd.VkCode); name != "" {
				isDown := wParam == wmKeyDown || wParam == wmSysKeyDown
				m.UpdateState(name, isDown)
			}
			if m.Suppressed() {
				return 1
			}
		}
	}
	ret, _, _ := procCallNextHookEx.Call(keyboardHook, uintptr(nCode), wParam, lParam)
	return ret
}

func mouseProc(nCode int, wParam uintptr, lParam uintptr) uintptr {
	m := active.Load()
	if nCode == 0 && m != nil {
		ms := (*msLLHookStruct)(unsafe.Pointer(lParam))
		if ms.Flags&llmhfInjected == 0 && handleMouse(m, wParam, ms) && m.Suppressed() {
			return 1
		}
	}
	ret, _, _ := procCallNextHookEx.Call(mouseHook, uintptr(nCode), wParam, lParam)
	return ret
}

// handleMouse reports buttons and wheel. Plain motion is left to the
// desktop and returns false.
func handleMouse(m *Manager, wParam uintptr, ms *msLLHookStruct) bool {
	switch wParam {
	case wmLButtonDown, wmLButtonUp:
		m.UpdateState("MOUSE1", wParam == wmLButtonDown)
	case wmRButtonDown, wmRButtonUp:
		m.UpdateState("MOUSE3", wParam == wmRButtonDown)
	case wmMButtonDown, wmMButtonUp:
		m.UpdateState("MOUSE2", wParam == wmMButtonDown)
	case wmXButtonDown, wmXButtonUp:
		name := "MOUSE5"
		if ms.MouseData>>16 == 1 {
			name = "MOUSE4"
		}
		m.UpdateState(name, wParam == wmXButtonDown)
	case wmMouseWheel:
		// Positive is away from the user.
		m.UpdateWheel(0, int(int16(ms.MouseData>>16))/wheelDelta)
	case wmMouseHWheel:
		m.UpdateWheel(int(int16(ms.MouseData>>16))/wheelDelta, 0)
	default:
		return false
	}
	return true
}

func vkCodeToName(vk uint32) string {
	switch vk {
	case 0x11, 0xA2, 0xA3:
		return "CTRL"
	case 0x12, 0xA4, 0xA5:
		return "ALT"
	case 0x10, 0xA0, 0xA1:
		return "SHIFT"
	case 0x5B, 0x5C:
		return "CMD"
	case 0x20:
		return "SPACE"
	case 0x0D:
		return "ENTER"
	case 0x1B:
		return "ESC"
	case 0x08:
		return "BACKSPACE"
	case 0x09:
		return "TAB"
	case 0x14:
		return "CAPSLOCK"
	case 0x21:
		return "PAGEUP"
	case 0x22:
		return "PAGEDOWN"
	case 0x23:
		return "END"
	case 0x24:
		return "HOME"
	case 0x25:
		return "LEFT"
	case 0x26:
		return "UP"
	case 0x27:
		return "RIGHT"
	case 0x28:
		return "DOWN"
	case 0x2C:
		return "PRINTSCREEN"
	case 0x2D:
		return "INSERT"
	case 0x2E:
		return "DELETE"
	case 0xBA:
		return ";"
	case 0xBB:
		return "="
	case 0xBC:
		return ","
	case 0xBD:
		return "-"
	case 0xBE:
		return "."
	case 0xBF:
		return "/"
	case 0xC0:
		return "`"
	case 0xDB:
		return "["
	case 0xDC:
		return "\\"
	case 0xDD:
		return "]"
	case 0xDE:
		return "'"
	}

	if vk >= 0x41 && vk <= 0x5A {
		return string(rune(vk))
	}
	if vk >= 0x30 && vk <= 0x39 {
		return string(rune(vk))
	}
	if vk >= 0x70 && vk <= 0x7B {
		return fmt.Sprintf("F%d", vk-0x6F)
	}
	return ""
}

//go:build darwin

package hotkey

/*
#cgo LDFLAGS: -framework CoreGraphics -framework CoreFoundation -framework ApplicationServices
#include <CoreGraphics/CoreGraphics.h>
#include <CoreFoundation/CoreFoundation.h>
#include <stdint.h>

CGEventRef eventCallback(CGEventTapProxy proxy, CGEventType type, CGEventRef event, void *refcon);

// The tap is active rather than listen-only so suppressed events can be
// dropped by returning NULL.
static inline CFMachPortRef createTap(uintptr_t refcon) {
    return CGEventTapCreate(
        kCGSessionEventTap,
        kCGHeadInsertEventTap,
        kCGEventTapOptionDefault,
        kCGEventMaskForAllEvents,
        eventCallback,
        (void*)refcon
    );
}

static inline void runTap(CFMachPortRef tap) {
    CFRunLoopSourceRef source = CFMachPortCreateRunLoopSource(kCFAllocatorDefault, tap, 0);
    CFRunLoopAddSource(CFRunLoopGetCurrent(), source, kCFRunLoopCommonModes);
    CGEventTapEnable(tap, true);
    CFRunLoopRun();
}
*/
import "C"
import (
	"errors"
	"log"
	"os"
	"runtime"
	"runtime/cgo"
	"strconv"
	"unsafe"
)

var tap C.CFMachPortRef

//export eventCallback
func eventCallback(proxy C.CGEventTapProxy, eventType C.CGEventType, event C.CGEventRef, refcon unsafe.Pointer) C.CGEventRef {
	if eventType == C.kCGEventTapDisabledByTimeout || eventType == C.kCGEventTapDisabledByUserInput {
		C.CGEventTapEnable(tap, true)
		return event
	}

	// Events posted by this process are injected input on the driven side.
	if int(C.CGEventGetIntegerValueField(event, C.kCGEventSourceUnixProcessID)) == os.Getpid() {
		return event
	}

	m := cgo.Handle(uintptr(refcon)).Value().(*Manager)
	if !handleEvent(m, eventType, event) || !m.Suppressed() {
		return event
	}
	return nil
}

// handleEvent reports keys, modifiers, buttons and wheel. Plain motion is
// left to the desktop and returns false.
func handleEvent(m *Manager, eventType C.CGEventType, event C.CGEventRef) bool {
	switch eventType {
	case C.kCGEventKeyDown, C.kCGEventKeyUp:
		keyCode := uint16(C.CGEventGetIntegerValueField(event, C.kCGKeyboardEventKeycode))
		if name := macKeyCodeToName(keyCode); name != "" {
			m.UpdateState(name, eventType == C.kCGEventKeyDown)
		}

	case C.kCGEventFlagsChanged:
		flags := C.CGEventGetFlags(event)
		keyCode := uint16(C.CGEventGetIntegerValueField(event, C.kCGKeyboardEventKeycode))
		switch keyCode {
		case 55, 54:
			m.UpdateState("CMD", flags&C.kCGEventFlagMaskCommand != 0)
		case 56, 60:
			m.UpdateState("SHIFT", flags&C.kCGEventFlagMaskShift != 0)
		case 58, 61:
			m.UpdateState("ALT", flags&C.kCGEventFlagMaskAlternate != 0)
		case 59, 62:
			m.UpdateState("CTRL", flags&C.kCGEventFlagMaskControl != 0)
		}

	case C.kCGEventLeftMouseDown, C.kCGEventLeftMouseUp,
		C.kCGEventRightMouseDown, C.kCGEventRightMouseUp,
		C.kCGEventOtherMouseDown, C.kCGEventOtherMouseUp:
		isDown := eventType == C.kCGEventLeftMouseDown ||
			eventType == C.kCGEventRightMouseDown ||
			eventType == C.kCGEventOtherMouseDown
		btn := int64(C.CGEventGetIntegerValueField(event, C.kCGMouseEventButtonNumber))
		m.UpdateState(macButtonName(btn), isDown)

	case C.kCGEventScrollWheel:
		// Axis1 is vertical and positive when scrolling up.
		dy := int(C.CGEventGetIntegerValueField(event, C.kCGScrollWheelEventDeltaAxis1))
		dx := int(C.CGEventGetIntegerValueField(event, C.kCGScrollWheelEventDeltaAxis2))
		m.UpdateWheel(dx, dy)

	default:
		return false
	}
	return true
}

func macButtonName(btn int64) string {
	switch btn {
	case 0:
		return "MOUSE1"
	case 1:
		return "MOUSE3"
	case 2:
		return "MOUSE2"
	default:
		return "MOUSE" + strconv.FormatInt(btn+1, 10)
	}
}

func (m *Manager) startPlatform() error {
	handle := cgo.NewHandle(m)
	tap = C.createTap(C.uintptr_t(handle))
	if tap == nil {
		handle.Delete()
		return errors.New("CGEventTapCreate failed, accessibility permission missing?")
	}
	go func() {
		runtime.LockOSThread()
		log.Println("Hotkey: macOS event tap running")
		C.runTap(tap)
	}()
	return nil
}

func macKeyCodeToName(code uint16) string {
	switch code {
	case 55, 54:
		return "CMD"
	case 56, 60:
		return "SHIFT"
	case 58, 61:
		return "ALT"
	case 59, 62:
		return "CTRL"
	case 49:
		return "SPACE"
	case 36:
		return "ENTER"
	case 53:
		return "ESC"
	case 48:
		return "TAB"
	case 51:
		return "BACKSPACE"
	case 117:
		return "DELETE"
	case 123:
		return "LEFT"
	case 124:
		return "RIGHT"
	case 125:
		return "DOWN"
	case 126:
		return "UP"
	case 115:
		return "HOME"
	case 119:
		return "END"
	case 116:
		return "PAGEUP"
	case 121:
		return "PAGEDOWN"

	case 0:
		return "A"
	case 11:
		return "B"
	case 8:
		return "C"
	case 2:
		return "D"
	case 14:
		return "E"
	case 3:
		return "F"
	case 5:
		return "G"
	case 4:
		return "H"
	case 34:
		return "I"
	case 38:
		return "J"
	case 40:
		return "K"
	case 37:
		return "L"
	case 46:
		return "M"
	case 45:
		return "N"
	case 31:
		return "O"
	case 35:
		return "P"
	case 12:
		return "Q"
	case 15:
		return "R"
	case 1:
		return "S"
	case 17:
		return "T"
	case 32:
		return "U"
	case 9:
		return "V"
	case 13:
		return "W"
	case 7:
		return "X"
	case 16:
		return "Y"
	case 6:
		return "Z"

	case 29:
		return "0"
	case 18:
		return "1"
	case 19:
		return "2"
	case 20:
		return "3"
	case 21:
		return "4"
	case 23:
		return "5"
	case 22:
		return "6"
	case 26:
		return "7"
	case 28:
		return "8"
	case 25:
		return "9"

	case 122:
		return "F1"
	case 120:
		return "F2"
	case 99:
		return "F3"
	case 118:
		return "F4"
	case 96:
		return "F5"
	case 97:
		return "F6"
	case 98:
		return "F7"
	case 100:
		return "F8"
	case 101:
		return "F9"
	case 109:
		return "F10"
	case 103:
		return "F11"
	case 111:
		return "F12"
	}
	return ""
}

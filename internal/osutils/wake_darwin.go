//go:build darwin

package osutils

/*
#cgo LDFLAGS: -framework CoreGraphics -framework CoreFoundation
#include <CoreGraphics/CoreGraphics.h>

static void nudge() {
    CGEventRef event = CGEventCreate(NULL);
    CGPoint loc = CGEventGetLocation(event);
    CFRelease(event);

    CGEventRef away = CGEventCreateMouseEvent(NULL, kCGEventMouseMoved,
        CGPointMake(loc.x + 1, loc.y + 1), kCGMouseButtonLeft);
    CGEventPost(kCGHIDEventTap, away);
    CFRelease(away);

    CGEventRef back = CGEventCreateMouseEvent(NULL, kCGEventMouseMoved, loc, kCGMouseButtonLeft);
    CGEventPost(kCGHIDEventTap, back);
    CFRelease(back);
}
*/
import "C"

// nudgePointer moves the pointer one pixel and back
func nudgePointer() error {
	C.nudge()
	return nil
}

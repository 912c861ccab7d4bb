//go:build darwin && cgo && !robotgo

package input

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework CoreGraphics -framework CoreFoundation -framework ApplicationServices

#include <CoreGraphics/CoreGraphics.h>
#include <CoreFoundation/CoreFoundation.h>
#include <ApplicationServices/ApplicationServices.h>

// Check if we have accessibility permissions
bool hasAccessibilityPermissions() {
    return AXIsProcessTrusted();
}

CGPoint getCurrentMousePosition() {
    CGEventRef event = CGEventCreate(NULL);
    CGPoint cursor = CGEventGetLocation(event);
    CFRelease(event);
    return cursor;
}

int pressedButtons() {
    int mask = 0;
    if (CGEventSourceButtonState(kCGEventSourceStateCombinedSessionState, kCGMouseButtonLeft)) mask |= 1;
    if (CGEventSourceButtonState(kCGEventSourceStateCombinedSessionState, kCGMouseButtonRight)) mask |= 2;
    if (CGEventSourceButtonState(kCGEventSourceStateCombinedSessionState, kCGMouseButtonCenter)) mask |= 4;
    return mask;
}

void moveMouseTo(CGFloat x, CGFloat y) {
    CGPoint pos = CGPointMake(x, y);
    CGEventRef event = CGEventCreateMouseEvent(NULL, kCGEventMouseMoved, pos, kCGMouseButtonLeft);
    CGEventPost(kCGSessionEventTap, event);
    CFRelease(event);
}

void injectMouseButton(int button, bool pressed) {
    CGMouseButton cgButton;
    CGEventType eventType;

    switch (button) {
        case 1:
            cgButton = kCGMouseButtonLeft;
            eventType = pressed ? kCGEventLeftMouseDown : kCGEventLeftMouseUp;
            break;
        case 2:
            cgButton = kCGMouseButtonRight;
            eventType = pressed ? kCGEventRightMouseDown : kCGEventRightMouseUp;
            break;
        case 3:
            cgButton = kCGMouseButtonCenter;
            eventType = pressed ? kCGEventOtherMouseDown : kCGEventOtherMouseUp;
            break;
        default:
            return;
    }

    // Get current mouse position for button events
    CGPoint currentPos = getCurrentMousePosition();
    CGEventRef event = CGEventCreateMouseEvent(NULL, eventType, currentPos, cgButton);
    CGEventPost(kCGSessionEventTap, event);
    CFRelease(event);
}

void injectScroll(int dx, int dy) {
    CGEventRef event = CGEventCreateScrollWheelEvent(NULL, kCGScrollEventUnitPixel, 2, dy, dx);
    CGEventPost(kCGSessionEventTap, event);
    CFRelease(event);
}
*/
import "C"

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// macOS implementation using CoreGraphics

type darwinPointer struct{}

func platformPointer() (Pointer, error) {
	if !bool(C.hasAccessibilityPermissions()) {
		log.Warn().Str("module", "input").Msg("accessibility permission missing; injected events will be ignored by macOS")
	}
	return darwinPointer{}, nil
}

func (darwinPointer) Location() (int, int) {
	p := C.getCurrentMousePosition()
	return int(p.x), int(p.y)
}

func (darwinPointer) Buttons() ButtonMask { return ButtonMask(C.pressedButtons()) }

func (darwinPointer) MoveTo(x, y int) error {
	C.moveMouseTo(C.CGFloat(x), C.CGFloat(y))
	return nil
}

func (darwinPointer) Button(code uint8, pressed bool) error {
	if code < ButtonLeft || code > ButtonMiddle {
		return fmt.Errorf("invalid button number: %d", code)
	}
	C.injectMouseButton(C.int(code), C.bool(pressed))
	return nil
}

func (darwinPointer) Scroll(dx, dy int) error {
	C.injectScroll(C.int(dx), C.int(dy))
	return nil
}

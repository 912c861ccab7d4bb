//go:build windows && !robotgo

package input

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// Windows API constants
const (
	VK_LBUTTON = 0x01
	VK_RBUTTON = 0x02
	VK_MBUTTON = 0x04

	MOUSEEVENTF_LEFTDOWN   = 0x0002
	MOUSEEVENTF_LEFTUP     = 0x0004
	MOUSEEVENTF_RIGHTDOWN  = 0x0008
	MOUSEEVENTF_RIGHTUP    = 0x0010
	MOUSEEVENTF_MIDDLEDOWN = 0x0020
	MOUSEEVENTF_MIDDLEUP   = 0x0040
	MOUSEEVENTF_WHEEL      = 0x0800
	MOUSEEVENTF_HWHEEL     = 0x1000
)

// Windows API functions
var (
	user32           = windows.NewLazySystemDLL("user32.dll")
	GetCursorPos     = user32.NewProc("GetCursorPos")
	SetCursorPos     = user32.NewProc("SetCursorPos")
	GetAsyncKeyState = user32.NewProc("GetAsyncKeyState")
	MouseEvent       = user32.NewProc("mouse_event")
)

type POINT struct {
	X, Y int32
}

type windowsPointer struct{}

func platformPointer() (Pointer, error) {
	if err := user32.Load(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	return windowsPointer{}, nil
}

func (windowsPointer) Location() (int, int) {
	var pt POINT
	GetCursorPos.Call(uintptr(unsafe.Pointer(&pt)))
	return int(pt.X), int(pt.Y)
}

func (windowsPointer) Buttons() ButtonMask {
	var m ButtonMask
	for code, vk := range map[uint8]uintptr{ButtonLeft: VK_LBUTTON, ButtonRight: VK_RBUTTON, ButtonMiddle: VK_MBUTTON} {
		// High bit set means the key is down.
		if state, _, _ := GetAsyncKeyState.Call(vk); state&0x8000 != 0 {
			m = m.With(code, true)
		}
	}
	return m
}

func (windowsPointer) MoveTo(x, y int) error {
	ret, _, err := SetCursorPos.Call(uintptr(x), uintptr(y))
	if ret == 0 {
		return fmt.Errorf("SetCursorPos failed: %v", err)
	}
	return nil
}

func (windowsPointer) Button(code uint8, pressed bool) error {
	var flags uintptr
	switch code {
	case ButtonLeft:
		flags = MOUSEEVENTF_LEFTUP
		if pressed {
			flags = MOUSEEVENTF_LEFTDOWN
		}
	case ButtonRight:
		flags = MOUSEEVENTF_RIGHTUP
		if pressed {
			flags = MOUSEEVENTF_RIGHTDOWN
		}
	case ButtonMiddle:
		flags = MOUSEEVENTF_MIDDLEUP
		if pressed {
			flags = MOUSEEVENTF_MIDDLEDOWN
		}
	default:
		return fmt.Errorf("invalid button number: %d", code)
	}
	MouseEvent.Call(flags, 0, 0, 0, 0)
	return nil
}

func (windowsPointer) Scroll(dx, dy int) error {
	// Positive wheel data scrolls up, matching the wire convention.
	if dy != 0 {
		MouseEvent.Call(MOUSEEVENTF_WHEEL, 0, 0, uintptr(int32(dy)), 0)
	}
	if dx != 0 {
		MouseEvent.Call(MOUSEEVENTF_HWHEEL, 0, 0, uintptr(int32(dx)), 0)
	}
	return nil
}

//go:build robotgo

package input

import (
	"fmt"

	"github.com/go-vgo/robotgo"
)

// robotgoPointer drives the cursor through robotgo. robotgo cannot report
// button state, so capture is motion only.
type robotgoPointer struct{}

func platformPointer() (Pointer, error) { return robotgoPointer{}, nil }

func (robotgoPointer) Location() (int, int) { return robotgo.Location() }

func (robotgoPointer) Buttons() ButtonMask { return 0 }

func (robotgoPointer) MoveTo(x, y int) error {
	robotgo.Move(x, y)
	return nil
}

func (robotgoPointer) Button(code uint8, pressed bool) error {
	name, ok := robotgoButtons[code]
	if !ok {
		return fmt.Errorf("invalid button number: %d", code)
	}
	state := "up"
	if pressed {
		state = "down"
	}
	return robotgo.Toggle(name, state)
}

func (robotgoPointer) Scroll(dx, dy int) error {
	robotgo.Scroll(dx, dy)
	return nil
}

var robotgoButtons = map[uint8]string{
	ButtonLeft:   "left",
	ButtonRight:  "right",
	ButtonMiddle: "center",
}

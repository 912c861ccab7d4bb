// Package input provides cross-platform pointer capture and injection.
package input

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInjectionFailed wraps any backend failure to replay an event. The
	// session logs it and carries on.
	ErrInjectionFailed = errors.New("input: injection failed")

	// ErrUnsupported is returned when no backend exists for this platform/build.
	ErrUnsupported = errors.New("input: not supported on this platform")
)

// EventKind discriminates RawInputEvent.
type EventKind uint8

const (
	// EventMove is a relative motion (DX, DY).
	EventMove EventKind = iota
	// EventMoveTo places the cursor at local screen pixel (X, Y). Only the
	// injection side uses it.
	EventMoveTo
	// EventButton is a press or release of Button.
	EventButton
	// EventScroll is a wheel delta (DX horizontal, DY vertical).
	EventScroll
)

func (k EventKind) String() string {
	switch k {
	case EventMove:
		return "move"
	case EventMoveTo:
		return "move_to"
	case EventButton:
		return "button"
	case EventScroll:
		return "scroll"
	}
	return fmt.Sprintf("event(%d)", uint8(k))
}

// Mouse button codes shared with the wire format
const (
	ButtonLeft   uint8 = 1
	ButtonRight  uint8 = 2
	ButtonMiddle uint8 = 3
)

// RawInputEvent is one pointer event in local screen terms
type RawInputEvent struct {
	Kind    EventKind `json:"kind"`
	DX      int       `json:"dx,omitempty"`
	DY      int       `json:"dy,omitempty"`
	X       int       `json:"x,omitempty"`
	Y       int       `json:"y,omitempty"`
	Button  uint8     `json:"btn,omitempty"` // 1=left, 2=right, 3=middle
	Pressed bool      `json:"pressed,omitempty"`
}

func MoveBy(dx, dy int) RawInputEvent { return RawInputEvent{Kind: EventMove, DX: dx, DY: dy} }

func MoveTo(x, y int) RawInputEvent { return RawInputEvent{Kind: EventMoveTo, X: x, Y: y} }

func Press(button uint8, pressed bool) RawInputEvent {
	return RawInputEvent{Kind: EventButton, Button: button, Pressed: pressed}
}

func ScrollBy(dx, dy int) RawInputEvent { return RawInputEvent{Kind: EventScroll, DX: dx, DY: dy} }

// Capturer produces local pointer events. It is restartable: Start after Stop
// begins a fresh event stream.
type Capturer interface {
	Start(ctx context.Context) error
	Events() <-chan RawInputEvent
	Stop() error
}

// Injector replays one event on the local OS. Implementations may block.
type Injector interface {
	Inject(ev RawInputEvent) error
}

// Passive is implemented by capturers that observe input after the OS has
// already delivered it. Such input must not be injected a second time.
type Passive interface {
	Passive() bool
}

// IsPassive reports whether c only observes input it cannot suppress.
func IsPassive(c Capturer) bool {
	p, ok := c.(Passive)
	return ok && p.Passive()
}

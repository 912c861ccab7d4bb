package input

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultPollInterval is about one frame at 125 Hz.
const DefaultPollInterval = 8 * time.Millisecond

// ButtonMask has bit (code-1) set for each pressed button.
type ButtonMask uint8

func (m ButtonMask) Has(code uint8) bool { return code >= 1 && code <= 8 && m&(1<<(code-1)) != 0 }

func (m ButtonMask) With(code uint8, pressed bool) ButtonMask {
	if code < 1 || code > 8 {
		return m
	}
	if pressed {
		return m | 1<<(code-1)
	}
	return m &^ (1 << (code - 1))
}

// Pointer is the OS cursor access a polling backend needs.
type Pointer interface {
	Location() (x, y int)
	// Buttons returns the pressed buttons, or 0 when the OS cannot report them.
	Buttons() ButtonMask
	MoveTo(x, y int) error
	Button(code uint8, pressed bool) error
	Scroll(dx, dy int) error
}

// Polling turns a Pointer into both a Capturer and an Injector. Motion is
// reported as the difference between successive cursor samples; its own
// injections move the baseline so they are never reported back as capture.
type Polling struct {
	ptr      Pointer
	interval time.Duration

	mu      sync.Mutex
	lastX   int
	lastY   int
	buttons ButtonMask
	events  chan RawInputEvent
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewPolling wraps ptr. A zero interval selects DefaultPollInterval.
func NewPolling(ptr Pointer, interval time.Duration) *Polling {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Polling{ptr: ptr, interval: interval}
}

// Start begins sampling the cursor.
func (p *Polling) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return errors.New("input: capture already running")
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.events = make(chan RawInputEvent, 256)
	p.done = make(chan struct{})
	p.lastX, p.lastY = p.ptr.Location()
	p.buttons = p.ptr.Buttons()

	go p.loop(ctx, p.events, p.done)
	return nil
}

func (p *Polling) loop(ctx context.Context, events chan RawInputEvent, done chan struct{}) {
	defer close(done)
	defer close(events)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for _, ev := range p.sample() {
			select {
			case events <- ev:
			default:
				log.Warn().Str("module", "input").Str("kind", ev.Kind.String()).Msg("capture queue full, event dropped")
			}
		}
	}
}

// sample reads the cursor once and returns the events since the last sample.
func (p *Polling) sample() []RawInputEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	x, y := p.ptr.Location()
	buttons := p.ptr.Buttons()

	var out []RawInputEvent
	if dx, dy := x-p.lastX, y-p.lastY; dx != 0 || dy != 0 {
		out = append(out, MoveBy(dx, dy))
	}
	p.lastX, p.lastY = x, y

	for code := ButtonLeft; code <= ButtonMiddle; code++ {
		if buttons.Has(code) != p.buttons.Has(code) {
			out = append(out, Press(code, buttons.Has(code)))
		}
	}
	p.buttons = buttons
	return out
}

// Passive is always true: sampled motion and clicks have already happened.
func (p *Polling) Passive() bool { return true }

func (p *Polling) Events() <-chan RawInputEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events
}

// Stop ends sampling and closes the event channel.
func (p *Polling) Stop() error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel = nil
	p.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// Inject replays ev on the Pointer.
func (p *Polling) Inject(ev RawInputEvent) error {
	var err error
	switch ev.Kind {
	case EventMoveTo:
		p.mu.Lock()
		err = p.ptr.MoveTo(ev.X, ev.Y)
		if err == nil {
			p.lastX, p.lastY = ev.X, ev.Y
		}
		p.mu.Unlock()
	case EventMove:
		p.mu.Lock()
		x, y := p.ptr.Location()
		err = p.ptr.MoveTo(x+ev.DX, y+ev.DY)
		if err == nil {
			p.lastX, p.lastY = x+ev.DX, y+ev.DY
		}
		p.mu.Unlock()
	case EventButton:
		p.mu.Lock()
		err = p.ptr.Button(ev.Button, ev.Pressed)
		if err == nil {
			p.buttons = p.buttons.With(ev.Button, ev.Pressed)
		}
		p.mu.Unlock()
	case EventScroll:
		err = p.ptr.Scroll(ev.DX, ev.DY)
	default:
		err = fmt.Errorf("unknown event kind %s", ev.Kind)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInjectionFailed, ev.Kind, err)
	}
	return nil
}

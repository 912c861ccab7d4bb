package input

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// NullCapturer never produces events. Used on receive-only machines and where
// no capture backend exists.
type NullCapturer struct {
	mu     sync.Mutex
	events chan RawInputEvent
}

func NewNullCapturer() *NullCapturer { return &NullCapturer{} }

func (c *NullCapturer) Start(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = make(chan RawInputEvent)
	return nil
}

func (c *NullCapturer) Events() <-chan RawInputEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events
}

func (c *NullCapturer) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.events != nil {
		close(c.events)
		c.events = nil
	}
	return nil
}

// LogInjector only logs what it would inject.
type LogInjector struct{}

func (LogInjector) Inject(ev RawInputEvent) error {
	log.Debug().Str("module", "input").Str("kind", ev.Kind.String()).
		Int("x", ev.X).Int("y", ev.Y).Int("dx", ev.DX).Int("dy", ev.DY).
		Uint8("btn", ev.Button).Bool("pressed", ev.Pressed).Msg("inject")
	return nil
}

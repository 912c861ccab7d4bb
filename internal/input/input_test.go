package input

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePointer is an in-memory cursor.
type fakePointer struct {
	mu      sync.Mutex
	x, y    int
	buttons ButtonMask
	moves   int
	fail    error
}

func (f *fakePointer) Location() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.x, f.y
}

func (f *fakePointer) Buttons() ButtonMask {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buttons
}

func (f *fakePointer) MoveTo(x, y int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.x, f.y = x, y
	f.moves++
	return nil
}

func (f *fakePointer) Button(code uint8, pressed bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buttons = f.buttons.With(code, pressed)
	return nil
}

func (f *fakePointer) Scroll(int, int) error { return nil }

// physical simulates the user moving the hardware mouse.
func (f *fakePointer) physical(dx, dy int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.x += dx
	f.y += dy
}

func (f *fakePointer) press(code uint8, pressed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buttons = f.buttons.With(code, pressed)
}

func TestPollingSampleReportsDeltasAndButtons(t *testing.T) {
	ptr := &fakePointer{x: 100, y: 100}
	p := NewPolling(ptr, time.Hour)
	p.lastX, p.lastY = ptr.Location()

	assert.Empty(t, p.sample())

	ptr.physical(5, -3)
	ptr.press(ButtonLeft, true)
	assert.Equal(t, []RawInputEvent{MoveBy(5, -3), Press(ButtonLeft, true)}, p.sample())

	ptr.press(ButtonLeft, false)
	ptr.press(ButtonMiddle, true)
	assert.Equal(t, []RawInputEvent{Press(ButtonLeft, false), Press(ButtonMiddle, true)}, p.sample())
}

func TestPollingInjectionIsNotCapturedBack(t *testing.T) {
	ptr := &fakePointer{x: 10, y: 10}
	p := NewPolling(ptr, time.Hour)
	p.lastX, p.lastY = ptr.Location()

	require.NoError(t, p.Inject(MoveTo(800, 600)))
	require.NoError(t, p.Inject(Press(ButtonRight, true)))
	assert.Empty(t, p.sample())
	assert.Equal(t, 1, ptr.moves)

	require.NoError(t, p.Inject(MoveBy(-10, 0)))
	x, y := ptr.Location()
	assert.Equal(t, 790, x)
	assert.Equal(t, 600, y)
	assert.Empty(t, p.sample())
}

func TestPollingInjectionFailure(t *testing.T) {
	ptr := &fakePointer{fail: errors.New("denied")}
	p := NewPolling(ptr, 0)

	err := p.Inject(MoveTo(1, 1))
	assert.ErrorIs(t, err, ErrInjectionFailed)

	err = p.Inject(RawInputEvent{Kind: EventKind(99)})
	assert.ErrorIs(t, err, ErrInjectionFailed)
}

func TestPollingCaptureLifecycle(t *testing.T) {
	ptr := &fakePointer{}
	p := NewPolling(ptr, time.Millisecond)

	require.NoError(t, p.Start(context.Background()))
	assert.Error(t, p.Start(context.Background()), "second start while running")
	events := p.Events()

	ptr.physical(3, 4)
	select {
	case ev := <-events:
		assert.Equal(t, MoveBy(3, 4), ev)
	case <-time.After(2 * time.Second):
		t.Fatal("no event captured")
	}

	require.NoError(t, p.Stop())
	for range events {
	}

	// Restartable
	require.NoError(t, p.Start(context.Background()))
	require.NoError(t, p.Stop())
}

func TestNullCapturer(t *testing.T) {
	c := NewNullCapturer()
	require.NoError(t, c.Start(context.Background()))
	events := c.Events()
	require.NoError(t, c.Stop())
	_, ok := <-events
	assert.False(t, ok)
}

func TestIsPassive(t *testing.T) {
	assert.True(t, IsPassive(NewPolling(&fakePointer{}, 0)))
	assert.False(t, IsPassive(NewNullCapturer()))
}

func TestButtonMask(t *testing.T) {
	var m ButtonMask
	m = m.With(ButtonRight, true)
	assert.True(t, m.Has(ButtonRight))
	assert.False(t, m.Has(ButtonLeft))
	assert.Equal(t, ButtonMask(0), m.With(ButtonRight, false))
	assert.Equal(t, m, m.With(0, true))
}

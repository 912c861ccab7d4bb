package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinamon610/ShareMouse/internal/arbiter"
	"github.com/shinamon610/ShareMouse/internal/input"
	"github.com/shinamon610/ShareMouse/internal/network"
	"github.com/shinamon610/ShareMouse/internal/protocol"
	"github.com/shinamon610/ShareMouse/internal/space"
)

// memTransport is one end of an in-memory frame pipe.
type memTransport struct {
	in   chan []byte
	peer *memTransport
	fail chan error

	mu     sync.Mutex
	closed bool
}

func pipe() (*memTransport, *memTransport) {
	a := &memTransport{in: make(chan []byte, 1024), fail: make(chan error, 1)}
	b := &memTransport{in: make(chan []byte, 1024), fail: make(chan error, 1)}
	a.peer, b.peer = b, a
	return a, b
}

func (m *memTransport) Open(context.Context) error { return nil }

func (m *memTransport) Send(frame []byte) error {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return network.ErrNotConnected
	}
	select {
	case m.peer.in <- append([]byte(nil), frame...):
	default:
	}
	return nil
}

func (m *memTransport) Serve(ctx context.Context, h network.Handler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-m.fail:
			return err
		case f := <-m.in:
			h(f)
		}
	}
}

func (m *memTransport) LocalAddr() net.Addr { return nil }

func (m *memTransport) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// next decodes the next frame that arrived at m.
func (m *memTransport) next(t *testing.T) *protocol.Message {
	t.Helper()
	select {
	case f := <-m.in:
		msg, err := protocol.Decode(f)
		require.NoError(t, err)
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no frame arrived")
		return nil
	}
}

func (m *memTransport) push(t *testing.T, msg *protocol.Message, seq uint32) {
	t.Helper()
	msg.Seq = seq
	frame, err := protocol.Encode(msg)
	require.NoError(t, err)
	m.peer.in <- frame
}

type feedCapturer struct{ ch chan input.RawInputEvent }

func newFeed() *feedCapturer { return &feedCapturer{ch: make(chan input.RawInputEvent, 64)} }

func (c *feedCapturer) Start(context.Context) error        { return nil }
func (c *feedCapturer) Events() <-chan input.RawInputEvent { return c.ch }
func (c *feedCapturer) Stop() error                        { return nil }

type recorder struct {
	mu     sync.Mutex
	events []input.RawInputEvent
	err    error
}

func (r *recorder) Inject(ev input.RawInputEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recorder) has(ev input.RawInputEvent) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == ev {
			return true
		}
	}
	return false
}

var (
	layoutA = space.Layout{
		Local: space.Size{Width: 2600, Height: 1440}, Remote: space.Size{Width: 1920, Height: 1080},
		Position: space.EdgeLeft, RemotePosition: space.EdgeRight,
	}
	layoutB = space.Layout{
		Local: space.Size{Width: 1920, Height: 1080}, Remote: space.Size{Width: 2600, Height: 1440},
		Position: space.EdgeRight, RemotePosition: space.EdgeLeft,
	}
)

func config(layout space.Layout, owner space.Role, hb time.Duration) Config {
	return Config{
		Layout:       layout,
		InitialOwner: owner,
		Control: arbiter.Config{
			HeartbeatInterval: hb,
			StaleMultiplier:   3,
			HandoffTimeout:    5 * hb,
		},
	}
}

func start(t *testing.T, cfg Config, opts ...Option) *Session {
	t.Helper()
	s, err := Start(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Stop() })
	return s
}

func TestHandoffBetweenTwoSessions(t *testing.T) {
	ta, tb := pipe()
	capA, capB := newFeed(), newFeed()
	injB := &recorder{}

	a := start(t, config(layoutA, space.RoleLocal, 20*time.Millisecond),
		WithTransport(ta), WithCapturer(capA), WithInjector(&recorder{}))
	b := start(t, config(layoutB, space.RoleRemote, 20*time.Millisecond),
		WithTransport(tb), WithCapturer(capB), WithInjector(injB))

	assert.Equal(t, arbiter.Active, a.Status().State)
	assert.Equal(t, arbiter.Idle, b.Status().State)
	assert.NotEqual(t, a.ID(), b.ID())

	// A starts at the center of its screen, (1300, 720).
	capA.ch <- input.MoveBy(1400, 0)

	require.Eventually(t, func() bool {
		return a.Status().State == arbiter.Idle && b.Status().State == arbiter.Active
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, space.Point{X: 2600, Y: 720}, b.Status().Position)
	assert.Equal(t, space.RoleRemote, a.Status().Owner)
	assert.Equal(t, space.RoleLocal, b.Status().Owner)
	require.Eventually(t, func() bool { return injB.has(input.MoveTo(0, 720)) }, time.Second, 5*time.Millisecond)

	// B drives back across its left edge.
	capB.ch <- input.MoveBy(-5, 0)
	require.Eventually(t, func() bool {
		return a.Status().State == arbiter.Active && b.Status().State == arbiter.Idle
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, space.Point{X: 2599, Y: 720}, a.Status().Position)

	assert.EqualValues(t, 2, a.Status().Stats.Handoffs)
	assert.EqualValues(t, 2, b.Status().Stats.Handoffs)
	assert.Equal(t, arbiter.PeerAlive, b.Status().Peer.Liveness)
}

func TestIdleSideTakesOverWhenPeerStops(t *testing.T) {
	ta, tb := pipe()
	a := start(t, config(layoutA, space.RoleLocal, 20*time.Millisecond), WithTransport(ta))
	b := start(t, config(layoutB, space.RoleRemote, 20*time.Millisecond), WithTransport(tb))

	require.Eventually(t, func() bool {
		return b.Status().Peer.Liveness == arbiter.PeerAlive
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, a.Stop())
	assert.Equal(t, arbiter.Idle, a.Status().State)
	assert.False(t, a.Status().Running)

	require.Eventually(t, func() bool {
		return b.Status().State == arbiter.Active
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, space.RoleLocal, b.Status().Owner)
}

func TestOutOfOrderAndMalformedFramesAreDropped(t *testing.T) {
	ta, peer := pipe()
	s := start(t, config(layoutA, space.RoleLocal, time.Second), WithTransport(ta))

	// Active with the pointer centered on the local screen.
	require.Equal(t, space.Point{X: 1300, Y: 720}, s.Status().Position)

	peer.push(t, protocol.Move(10, 0), 1)
	peer.push(t, protocol.Move(10, 0), 3)
	peer.push(t, protocol.Move(1000, 0), 2)
	peer.push(t, protocol.Move(1000, 0), 3)
	peer.peer.in <- []byte{0x42, 0, 0, 0, 0}

	require.Eventually(t, func() bool {
		st := s.Status()
		return st.Stats.OutOfOrder == 2 && st.Stats.Malformed == 1
	}, time.Second, 5*time.Millisecond)

	st := s.Status()
	assert.Equal(t, space.Point{X: 1320, Y: 720}, st.Position)
	assert.EqualValues(t, 4, st.Stats.Received)
	assert.True(t, st.Running)
}

func TestCapturingSideDrivesPeerAfterHandoff(t *testing.T) {
	ta, tb := pipe()
	capA := newFeed()
	injB := &recorder{}

	a := start(t, config(layoutA, space.RoleLocal, 20*time.Millisecond),
		WithTransport(ta), WithCapturer(capA), WithInjector(&recorder{}))
	b := start(t, config(layoutB, space.RoleRemote, 20*time.Millisecond),
		WithTransport(tb), WithInjector(injB))

	capA.ch <- input.MoveBy(1400, 0)
	require.Eventually(t, func() bool {
		return a.Status().State == arbiter.Idle && b.Status().State == arbiter.Active
	}, 2*time.Second, 5*time.Millisecond)

	// B has no capture of its own; A's mouse keeps driving it.
	capA.ch <- input.MoveBy(100, 50)
	capA.ch <- input.Press(input.ButtonLeft, true)

	require.Eventually(t, func() bool {
		return injB.has(input.MoveTo(100, 770)) && injB.has(input.Press(input.ButtonLeft, true))
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, space.Point{X: 2700, Y: 770}, b.Status().Position)

	// Moving back across B's left edge returns control to A.
	capA.ch <- input.MoveBy(-200, 0)
	require.Eventually(t, func() bool {
		return a.Status().State == arbiter.Active && b.Status().State == arbiter.Idle
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, space.Point{X: 2599, Y: 770}, a.Status().Position)
}

// osPointer is a fake OS cursor for the polling backend. Physical input is
// simulated by changing its fields; calls made by the injector are counted.
type osPointer struct {
	mu      sync.Mutex
	x, y    int
	buttons input.ButtonMask
	moves   int
	clicks  int
}

func (p *osPointer) Location() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.x, p.y
}

func (p *osPointer) Buttons() input.ButtonMask {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buttons
}

func (p *osPointer) MoveTo(x, y int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.x, p.y = x, y
	p.moves++
	return nil
}

func (p *osPointer) Button(uint8, bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clicks++
	return nil
}

func (p *osPointer) Scroll(int, int) error { return nil }

func (p *osPointer) physical(fn func(p *osPointer)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p)
}

func (p *osPointer) counts() (moves, clicks int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.moves, p.clicks
}

func TestPolledInputIsNotReplayed(t *testing.T) {
	ta, _ := pipe()
	ptr := &osPointer{}
	poll := input.NewPolling(ptr, 2*time.Millisecond)
	s := start(t, config(layoutA, space.RoleLocal, time.Second),
		WithTransport(ta), WithCapturer(poll), WithInjector(poll))

	// The cursor is placed on the engine position once at startup.
	require.Eventually(t, func() bool {
		moves, _ := ptr.counts()
		return moves == 1
	}, time.Second, time.Millisecond)
	x, y := ptr.Location()
	require.Equal(t, [2]int{1300, 720}, [2]int{x, y})

	ptr.physical(func(p *osPointer) {
		p.x, p.y = 1310, 725
		p.buttons = p.buttons.With(input.ButtonLeft, true)
	})
	require.Eventually(t, func() bool {
		return s.Status().Position == space.Point{X: 1310, Y: 725}
	}, time.Second, time.Millisecond)
	ptr.physical(func(p *osPointer) { p.buttons = 0 })

	assert.Never(t, func() bool {
		moves, clicks := ptr.counts()
		return moves != 1 || clicks != 0
	}, 100*time.Millisecond, 5*time.Millisecond)
}

func TestInjectionFailureDoesNotEndSession(t *testing.T) {
	ta, peer := pipe()
	capt := newFeed()
	inj := &recorder{err: fmt.Errorf("%w: no display", input.ErrInjectionFailed)}
	s := start(t, config(layoutA, space.RoleLocal, time.Second),
		WithTransport(ta), WithCapturer(capt), WithInjector(inj))

	capt.ch <- input.MoveBy(10, 10)
	require.Eventually(t, func() bool {
		return s.Status().Stats.InjectFailures >= 1
	}, time.Second, 5*time.Millisecond)

	capt.ch <- input.MoveBy(2000, 0)
	for {
		msg := peer.next(t)
		if msg.Kind == protocol.KindHeartbeat {
			continue
		}
		require.Equal(t, protocol.KindHandoffRequest, msg.Kind)
		assert.Equal(t, space.EdgeRight, msg.Edge)
		break
	}
	require.Eventually(t, func() bool {
		return s.Status().State == arbiter.HandoffPending
	}, time.Second, 5*time.Millisecond)
	assert.Nil(t, s.Err())
}

func TestActiveSideSendsHeartbeats(t *testing.T) {
	ta, peer := pipe()
	start(t, config(layoutA, space.RoleLocal, 10*time.Millisecond), WithTransport(ta))

	first := peer.next(t)
	second := peer.next(t)
	assert.Equal(t, protocol.KindHeartbeat, first.Kind)
	assert.Equal(t, protocol.KindHeartbeat, second.Kind)
	assert.Equal(t, first.Seq+1, second.Seq)
}

func TestTransportErrorTerminatesSession(t *testing.T) {
	ta, _ := pipe()
	var transitions []Transition
	var mu sync.Mutex
	obs := ObserverFuncs{Transition: func(tr Transition) {
		mu.Lock()
		transitions = append(transitions, tr)
		mu.Unlock()
	}}
	s := start(t, config(layoutA, space.RoleLocal, time.Second), WithTransport(ta), WithObserver(obs))

	ta.fail <- fmt.Errorf("%w: socket gone", network.ErrTransport)

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not terminate")
	}
	require.ErrorIs(t, s.Err(), network.ErrTransport)

	st := s.Status()
	assert.False(t, st.Running)
	assert.Equal(t, arbiter.Idle, st.State)
	assert.Contains(t, st.Error, "socket gone")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, transitions, 1)
	assert.Equal(t, arbiter.Active, transitions[0].From)
	assert.Equal(t, arbiter.Idle, transitions[0].To)
}

func TestSilenceTimeoutEndsIdleSession(t *testing.T) {
	ta, _ := pipe()
	cfg := config(layoutB, space.RoleRemote, time.Second)
	cfg.SilenceTimeout = 50 * time.Millisecond
	s := start(t, cfg, WithTransport(ta))

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not terminate")
	}
	assert.True(t, errors.Is(s.Err(), ErrPeerSilent))
}

func TestStopIsIdempotent(t *testing.T) {
	ta, _ := pipe()
	var statuses []Status
	var mu sync.Mutex
	obs := ObserverFuncs{Status: func(st Status) {
		mu.Lock()
		statuses = append(statuses, st)
		mu.Unlock()
	}}
	s := start(t, config(layoutA, space.RoleLocal, time.Second), WithTransport(ta), WithObserver(obs))

	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
	assert.Nil(t, s.Err())

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, statuses)
	assert.True(t, statuses[0].Running)
	assert.False(t, statuses[len(statuses)-1].Running)
}

func TestStartRejectsInvalidLayout(t *testing.T) {
	cfg := config(layoutA, space.RoleLocal, time.Second)
	cfg.Layout.RemotePosition = space.EdgeLeft
	_, err := Start(context.Background(), cfg, WithTransport(&memTransport{}))
	require.ErrorIs(t, err, space.ErrInvalidLayout)
}

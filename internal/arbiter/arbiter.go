// Package arbiter decides which endpoint owns the pointer. It is a pure state
// machine: callers feed it local input, peer messages and clock ticks, and
// carry out the returned Effect.
package arbiter

import (
	"errors"
	"fmt"
	"time"

	"github.com/shinamon610/ShareMouse/internal/input"
	"github.com/shinamon610/ShareMouse/internal/protocol"
	"github.com/shinamon610/ShareMouse/internal/space"
)

var (
	// ErrHandoffTimeout: no HandoffAck arrived in time; control stays local.
	ErrHandoffTimeout = errors.New("arbiter: handoff timed out")
	// ErrHandoffRejected: the peer answered HandoffAck{accepted: false}.
	ErrHandoffRejected = errors.New("arbiter: handoff rejected")
	// ErrStalePeer: the owning peer went silent; control was taken back.
	ErrStalePeer = errors.New("arbiter: peer is stale")
	// ErrDualControl: both sides claimed control and this side yielded.
	ErrDualControl = errors.New("arbiter: both peers claimed control")
)

// State of the local endpoint.
type State uint8

const (
	// Idle: the peer owns the pointer; this side only injects what it receives.
	Idle State = iota
	// Active: this side owns the pointer and injects its own input.
	Active
	// HandoffPending: a HandoffRequest is out and unanswered.
	HandoffPending
)

var stateNames = [...]string{"idle", "active", "handoff_pending"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(text []byte) error {
	for i, name := range stateNames {
		if name == string(text) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("arbiter: unknown state %q", string(text))
}

// Controlling reports whether the state claims the pointer.
func (s State) Controlling() bool { return s != Idle }

// Defaults for Config fields left at zero.
const (
	DefaultHeartbeatInterval = 250 * time.Millisecond
	DefaultStaleMultiplier   = 3
	DefaultHandoffTimeout    = 500 * time.Millisecond
)

// Config holds the timing and tie-break parameters.
type Config struct {
	// Primary wins when both sides claim control. Exactly one side of a
	// session must be primary; by convention the configured initial owner.
	Primary           bool
	HeartbeatInterval time.Duration
	StaleMultiplier   int
	HandoffTimeout    time.Duration
	// EdgeThreshold widens the crossing band inward, in pixels.
	EdgeThreshold int
	// PassiveCapture is set when local capture only observes input the OS
	// has already delivered. Such input is never injected back, and while
	// the pointer is on the peer the local cursor is parked at the screen
	// center so motion keeps being observable.
	PassiveCapture bool
}

func (c Config) withDefaults() Config {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.StaleMultiplier <= 0 {
		c.StaleMultiplier = DefaultStaleMultiplier
	}
	if c.HandoffTimeout <= 0 {
		c.HandoffTimeout = DefaultHandoffTimeout
	}
	return c
}

// StaleAfter is the silence after which the peer is considered gone.
func (c Config) StaleAfter() time.Duration {
	c = c.withDefaults()
	return time.Duration(c.StaleMultiplier) * c.HeartbeatInterval
}

// Effect is what the caller must do after an arbiter call. The zero value
// means nothing to do.
type Effect struct {
	// Send goes to the peer; the caller stamps the sequence number.
	Send *protocol.Message
	// Inject is replayed on the local OS, in local screen coordinates.
	Inject *input.RawInputEvent
	From   State
	To     State
	// Reason explains an error-driven transition.
	Reason error
}

// Changed reports whether the call caused a state transition.
func (e Effect) Changed() bool { return e.From != e.To }

// Arbiter owns the control state of one endpoint. Not safe for concurrent
// use; the session control loop owns it.
type Arbiter struct {
	cfg    Config
	engine *space.Engine
	state  State

	// acceptedAt is when this side last took control through a handoff.
	acceptedAt   time.Time
	pendingSince time.Time
	pendingEntry space.Point

	lastPeer time.Time
	peerSeen bool
}

// New starts in Active when the engine's owner is local and Idle otherwise.
// The stale-peer clock starts at now.
func New(engine *space.Engine, cfg Config, now time.Time) *Arbiter {
	a := &Arbiter{
		cfg:      cfg.withDefaults(),
		engine:   engine,
		state:    Idle,
		lastPeer: now,
	}
	if engine.State().Owner == space.RoleLocal {
		a.state = Active
		a.acceptedAt = now
	}
	return a
}

func (a *Arbiter) State() State { return a.state }

func (a *Arbiter) Config() Config { return a.cfg }

func (a *Arbiter) Engine() *space.Engine { return a.engine }

// Liveness of the peer as seen by this side.
type Liveness string

const (
	PeerUnknown Liveness = "unknown"
	PeerAlive   Liveness = "alive"
	PeerStale   Liveness = "stale"
)

// PeerLiveness classifies the peer by the time since its last accepted frame.
// An idle peer sends nothing, so while this side is Active a quiet peer is
// unknown rather than stale.
func (a *Arbiter) PeerLiveness(now time.Time) Liveness {
	switch {
	case !a.peerSeen:
		return PeerUnknown
	case now.Sub(a.lastPeer) < a.cfg.StaleAfter():
		return PeerAlive
	case a.state == Active:
		return PeerUnknown
	}
	return PeerStale
}

// Silence returns how long the peer has been quiet.
func (a *Arbiter) Silence(now time.Time) time.Duration { return now.Sub(a.lastPeer) }

// LastPeer returns when the peer was last heard from, zero if never.
func (a *Arbiter) LastPeer() time.Time {
	if !a.peerSeen {
		return time.Time{}
	}
	return a.lastPeer
}

// Placement returns the injection that brings the local cursor in line with
// the current state: the engine position while this side owns the pointer,
// the park position for a passive capturer otherwise. Nil when nothing needs
// placing.
func (a *Arbiter) Placement() *input.RawInputEvent {
	if a.state == Active {
		return a.warp()
	}
	return a.park(input.MoveBy(0, 0))
}

// Local handles an event from the local capture backend. While the pointer
// is on the peer's screen the event is forwarded for the peer to apply.
func (a *Arbiter) Local(ev input.RawInputEvent, now time.Time) Effect {
	switch a.state {
	case Active:
		return a.drive(ev, now, true)
	case HandoffPending:
		// Suppressed locally; the peer is about to own the pointer.
		return a.effect(a.state, a.park(ev), forward(a.relative(ev)), nil)
	}

	if ev.Kind == input.EventMoveTo {
		// an absolute local sample has no meaning on the peer's screen
		return a.effect(Idle, nil, nil, nil)
	}
	if ev.Kind == input.EventMove {
		// mirror the peer's view for status; the peer stays authoritative
		a.engine.ApplyDelta(ev.DX, ev.DY)
		a.engine.ClampTo(space.RoleRemote)
	}
	return a.effect(Idle, a.park(ev), forward(ev), nil)
}

// Peer handles one accepted message from the peer.
func (a *Arbiter) Peer(msg *protocol.Message, now time.Time) Effect {
	a.lastPeer = now
	a.peerSeen = true

	switch msg.Kind {
	case protocol.KindMove, protocol.KindButton, protocol.KindScroll:
		return a.peerInput(msg, now)
	case protocol.KindHandoffRequest:
		return a.handoffRequested(msg, now)
	case protocol.KindHandoffAck:
		return a.handoffAcked(msg.Accepted)
	case protocol.KindHeartbeat:
		return a.peerHeartbeat(now)
	}
	return a.effect(a.state, nil, nil, nil)
}

// Tick drives the timers: handoff timeout and stale-peer takeover.
func (a *Arbiter) Tick(now time.Time) Effect {
	switch a.state {
	case HandoffPending:
		if now.Sub(a.pendingSince) >= a.cfg.HandoffTimeout {
			return a.reclaim(ErrHandoffTimeout)
		}
	case Idle:
		if now.Sub(a.lastPeer) >= a.cfg.StaleAfter() {
			return a.reclaim(ErrStalePeer)
		}
	}
	return a.effect(a.state, nil, nil, nil)
}

// Abandon drops control without a handshake. Used on session termination;
// the peer recovers through its stale-peer timer.
func (a *Arbiter) Abandon() Effect {
	if a.state != Idle {
		a.engine.SetOwner(space.RoleRemote)
	}
	return a.effect(Idle, nil, nil, nil)
}

// drive applies owned input: moves go through the engine and may start a
// handoff; buttons and scrolls are injected as they are. Input observed by a
// passive local capturer has already reached the OS and is only injected
// when the engine had to correct the cursor.
func (a *Arbiter) drive(ev input.RawInputEvent, now time.Time, local bool) Effect {
	passive := local && a.cfg.PassiveCapture
	ev = a.relative(ev)
	if ev.Kind != input.EventMove {
		if passive {
			return a.effect(a.state, nil, nil, nil)
		}
		return a.effect(a.state, &ev, nil, nil)
	}

	a.engine.ApplyDelta(ev.DX, ev.DY)
	if edge, crossed := a.engine.Crossing(space.RoleLocal, ev.DX, ev.DY, a.cfg.EdgeThreshold); crossed {
		entry := a.engine.Entry(space.RoleLocal, edge)
		a.pendingSince = now
		a.pendingEntry = entry
		return a.effect(HandoffPending, nil, protocol.HandoffRequest(edge, entry), nil)
	}

	moved := a.engine.Position()
	a.engine.ClampTo(space.RoleLocal)
	if passive && a.engine.Position() == moved {
		return a.effect(a.state, nil, nil, nil)
	}
	return a.effect(a.state, a.warp(), nil, nil)
}

// peerInput applies input forwarded by the peer. Only the owning side acts on
// it; an idle engine may be stale (a lost HandoffRequest), so input arriving
// while idle or pending is dropped.
func (a *Arbiter) peerInput(msg *protocol.Message, now time.Time) Effect {
	if a.state != Active {
		return a.effect(a.state, nil, nil, nil)
	}
	return a.drive(toEvent(msg), now, false)
}

func (a *Arbiter) handoffRequested(msg *protocol.Message, now time.Time) Effect {
	// Both sides crossing at once, or a request reaching a side that still
	// holds control: the primary keeps it.
	if a.state != Idle && a.cfg.Primary {
		return a.effect(a.state, nil, protocol.HandoffAck(false), nil)
	}

	a.engine.ApplyAbsolute(msg.Entry())
	a.engine.ClampTo(space.RoleLocal)
	a.engine.SetOwner(space.RoleLocal)
	a.acceptedAt = now
	return a.effect(Active, a.warp(), protocol.HandoffAck(true), nil)
}

func (a *Arbiter) handoffAcked(accepted bool) Effect {
	if a.state != HandoffPending {
		return a.effect(a.state, nil, nil, nil)
	}
	if !accepted {
		return a.reclaim(ErrHandoffRejected)
	}
	return a.yield(nil)
}

// peerHeartbeat resolves dual control. Heartbeats come only from a side that
// claims control, so a controlling non-primary side gives way. A freshly
// activated side ignores heartbeats the peer sent while its request was in
// flight.
func (a *Arbiter) peerHeartbeat(now time.Time) Effect {
	if a.cfg.Primary {
		return a.effect(a.state, nil, nil, nil)
	}
	switch a.state {
	case HandoffPending:
		// The peer is controlling; our request was either accepted or is moot.
		return a.yield(nil)
	case Active:
		if now.Sub(a.acceptedAt) > a.cfg.HandoffTimeout {
			return a.yield(ErrDualControl)
		}
	}
	return a.effect(a.state, nil, nil, nil)
}

// yield hands the pointer to the peer. From HandoffPending the pointer is
// placed at the entry point of the outstanding request.
func (a *Arbiter) yield(reason error) Effect {
	if a.state == HandoffPending {
		a.engine.ApplyAbsolute(a.pendingEntry)
	}
	a.engine.SetOwner(space.RoleRemote)
	return a.effect(Idle, nil, nil, reason)
}

// reclaim takes control back locally and pulls the pointer inside the local
// screen.
func (a *Arbiter) reclaim(reason error) Effect {
	a.engine.ClampTo(space.RoleLocal)
	a.engine.SetOwner(space.RoleLocal)
	return a.effect(Active, a.warp(), nil, reason)
}

// warp returns an injection placing the local cursor at the engine position.
func (a *Arbiter) warp() *input.RawInputEvent {
	x, y := a.engine.VirtualToLocal(space.RoleLocal, a.engine.Position())
	ev := input.MoveTo(x, y)
	return &ev
}

// park returns the warp that keeps a passively captured cursor at the center
// of the local screen while its motion is forwarded.
func (a *Arbiter) park(ev input.RawInputEvent) *input.RawInputEvent {
	if !a.cfg.PassiveCapture || ev.Kind != input.EventMove {
		return nil
	}
	scr := a.engine.Space().Local.Screen
	p := input.MoveTo(scr.Width/2, scr.Height/2)
	return &p
}

// relative converts an absolute capture sample into a delta from the current
// position.
func (a *Arbiter) relative(ev input.RawInputEvent) input.RawInputEvent {
	if ev.Kind != input.EventMoveTo {
		return ev
	}
	p := a.engine.LocalToVirtual(space.RoleLocal, ev.X, ev.Y)
	cur := a.engine.Position()
	return input.MoveBy(p.X-cur.X, p.Y-cur.Y)
}

func (a *Arbiter) effect(to State, inject *input.RawInputEvent, send *protocol.Message, reason error) Effect {
	e := Effect{Send: send, Inject: inject, From: a.state, To: to, Reason: reason}
	a.state = to
	return e
}

func forward(ev input.RawInputEvent) *protocol.Message {
	switch ev.Kind {
	case input.EventMove:
		if ev.DX == 0 && ev.DY == 0 {
			return nil
		}
		return protocol.Move(ev.DX, ev.DY)
	case input.EventButton:
		return protocol.Button(ev.Button, ev.Pressed)
	case input.EventScroll:
		return protocol.Scroll(ev.DX, ev.DY)
	}
	return nil
}

func toEvent(msg *protocol.Message) input.RawInputEvent {
	switch msg.Kind {
	case protocol.KindButton:
		return input.Press(msg.Button, msg.Pressed)
	case protocol.KindScroll:
		return input.ScrollBy(int(msg.DX), int(msg.DY))
	}
	return input.MoveBy(int(msg.DX), int(msg.DY))
}

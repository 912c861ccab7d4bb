package session

import (
	"sync/atomic"
	"time"

	"github.com/shinamon610/ShareMouse/internal/arbiter"
	"github.com/shinamon610/ShareMouse/internal/space"
)

// Status is a point-in-time snapshot of a session.
type Status struct {
	SessionID string           `json:"session_id"`
	Running   bool             `json:"running"`
	State     arbiter.State    `json:"state"`
	Position  space.Point      `json:"position"`
	Owner     space.Role       `json:"owner"`
	Peer      PeerStatus       `json:"peer"`
	Stats     Stats            `json:"stats"`
	Space     space.Rect       `json:"space"`
	Error     string           `json:"error,omitempty"`
	StartedAt time.Time        `json:"started_at"`
	UpdatedAt time.Time        `json:"updated_at"`
	Transport TransportSummary `json:"transport"`
}

type PeerStatus struct {
	Liveness arbiter.Liveness `json:"liveness"`
	LastSeen time.Time        `json:"last_seen,omitzero"`
}

type TransportSummary struct {
	Protocol string `json:"protocol"`
	Peer     string `json:"peer"`
	Local    string `json:"local,omitempty"`
}

// Stats are monotonically increasing counters.
type Stats struct {
	Sent           uint64 `json:"sent"`
	Received       uint64 `json:"received"`
	Dropped        uint64 `json:"dropped"`
	Malformed      uint64 `json:"malformed"`
	OutOfOrder     uint64 `json:"out_of_order"`
	InjectFailures uint64 `json:"inject_failures"`
	Handoffs       uint64 `json:"handoffs"`
}

type counters struct {
	sent, received, dropped, malformed, outOfOrder, injectFailures, handoffs atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Sent:           c.sent.Load(),
		Received:       c.received.Load(),
		Dropped:        c.dropped.Load(),
		Malformed:      c.malformed.Load(),
		OutOfOrder:     c.outOfOrder.Load(),
		InjectFailures: c.injectFailures.Load(),
		Handoffs:       c.handoffs.Load(),
	}
}

// Transition describes one arbiter state change.
type Transition struct {
	From   arbiter.State `json:"from"`
	To     arbiter.State `json:"to"`
	Reason string        `json:"reason,omitempty"`
	At     time.Time     `json:"at"`
}

// Observer is notified from the control loop and must not block.
type Observer interface {
	OnStatus(Status)
	OnTransition(Transition)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Status     func(Status)
	Transition func(Transition)
}

func (o ObserverFuncs) OnStatus(s Status) {
	if o.Status != nil {
		o.Status(s)
	}
}

func (o ObserverFuncs) OnTransition(t Transition) {
	if o.Transition != nil {
		o.Transition(t)
	}
}

// sameView reports whether two snapshots differ only in counters and times.
func sameView(a, b Status) bool {
	return a.Running == b.Running && a.State == b.State && a.Position == b.Position &&
		a.Owner == b.Owner && a.Peer.Liveness == b.Peer.Liveness && a.Error == b.Error
}

package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/shinamon610/ShareMouse/internal/arbiter"
	"github.com/shinamon610/ShareMouse/internal/network"
	"github.com/shinamon610/ShareMouse/internal/protocol"
)

// run is the control loop. It is the only goroutine that touches the
// arbiter, the engine, the sequence counter and the inbound filter.
func (s *Session) run(ctx context.Context) error {
	interval := s.arb.Config().HeartbeatInterval
	ticker := time.NewTicker(max(interval/4, minTick))
	defer ticker.Stop()

	defer func() {
		now := time.Now()
		s.apply(s.arb.Abandon(), now)
	}()

	events := s.capturer.Events()
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				s.logger.Warn().Msg("capture backend closed its event stream")
				events = nil
				continue
			}
			now := time.Now()
			s.apply(s.arb.Local(ev, now), now)

		case msg := <-s.inbound:
			if s.arb.Silence(time.Now()) >= s.arb.Config().StaleAfter() {
				// after a gap this long the peer may have restarted
				s.filter.Reset()
			}
			if !s.filter.Accept(msg.Seq) {
				s.stats.outOfOrder.Add(1)
				s.logger.Debug().Str("msg", msg.String()).Msg("stale sequence number, discarded")
				break
			}
			now := time.Now()
			s.apply(s.arb.Peer(msg, now), now)

		case now := <-ticker.C:
			if err := s.tick(now); err != nil {
				return err
			}
		}
		s.publish(time.Now())
	}
}

func (s *Session) tick(now time.Time) error {
	if s.cfg.SilenceTimeout > 0 && s.arb.State() == arbiter.Idle {
		if quiet := s.arb.Silence(now); quiet >= s.cfg.SilenceTimeout {
			return fmt.Errorf("%w for %s", ErrPeerSilent, quiet.Round(time.Millisecond))
		}
	}

	e := s.arb.Tick(now)
	s.apply(e, now)
	if errors.Is(e.Reason, arbiter.ErrStalePeer) {
		// a returning peer may have restarted its sequence
		s.filter.Reset()
	}

	if s.arb.State().Controlling() && now.Sub(s.lastBeat) >= s.arb.Config().HeartbeatInterval {
		s.lastBeat = now
		s.enqueue(protocol.Heartbeat())
	}
	return nil
}

// apply carries out an arbiter Effect.
func (s *Session) apply(e arbiter.Effect, now time.Time) {
	if e.Send != nil {
		s.enqueue(e.Send)
	}
	if e.Inject != nil {
		select {
		case s.injections <- *e.Inject:
		default:
			s.stats.dropped.Add(1)
			s.warn(nil, "injection queue full, event dropped")
		}
	}
	if e.Changed() {
		s.transitioned(e, now)
	}
}

func (s *Session) transitioned(e arbiter.Effect, now time.Time) {
	handoff := (e.From == arbiter.HandoffPending && e.To == arbiter.Idle) ||
		(e.From == arbiter.Idle && e.To == arbiter.Active && e.Reason == nil)
	if handoff {
		s.stats.handoffs.Add(1)
	}

	t := Transition{From: e.From, To: e.To, At: now}
	level := zerolog.InfoLevel
	if e.Reason != nil {
		t.Reason = e.Reason.Error()
		level = zerolog.WarnLevel
	}
	s.logger.WithLevel(level).Err(e.Reason).
		Str("from", e.From.String()).Str("to", e.To.String()).
		Int("x", s.arb.Engine().Position().X).Int("y", s.arb.Engine().Position().Y).
		Msg("control state changed")

	for _, o := range s.observers {
		o.OnTransition(t)
	}
}

// enqueue stamps the next sequence number and queues the frame for the
// sender. A full queue drops the frame.
func (s *Session) enqueue(m *protocol.Message) {
	s.seq++
	m.Seq = s.seq
	frame, err := protocol.Encode(m)
	if err != nil {
		s.logger.Error().Err(err).Str("msg", m.String()).Msg("encode")
		return
	}
	select {
	case s.outbound <- frame:
	default:
		s.stats.dropped.Add(1)
		s.warn(nil, "outbound queue full, frame dropped")
	}
}

// receive decodes inbound frames and hands them to the control loop.
func (s *Session) receive(ctx context.Context) error {
	err := s.transport.Serve(ctx, func(frame []byte) {
		msg, err := protocol.Decode(frame)
		if err != nil {
			s.stats.malformed.Add(1)
			s.warn(err, "malformed frame dropped")
			return
		}
		s.stats.received.Add(1)
		select {
		case s.inbound <- msg:
		case <-ctx.Done():
		}
	})
	if err == nil && ctx.Err() == nil {
		return fmt.Errorf("%w: receive loop ended", network.ErrTransport)
	}
	return err
}

// send writes queued frames. Send failures lose the frame and are not fatal.
func (s *Session) send(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case frame := <-s.outbound:
			if err := s.transport.Send(frame); err != nil {
				s.stats.dropped.Add(1)
				if !errors.Is(err, network.ErrNotConnected) {
					s.warn(err, "send failed")
				}
				continue
			}
			s.stats.sent.Add(1)
		}
	}
}

// inject replays events on the local OS. Failures are logged and skipped.
func (s *Session) inject(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-s.injections:
			if err := s.injector.Inject(ev); err != nil {
				s.stats.injectFailures.Add(1)
				s.warn(err, "injection failed")
			}
		}
	}
}

// warn logs at most a few warnings per second across all goroutines.
func (s *Session) warn(err error, msg string) {
	if !s.warnLimit.Allow() {
		return
	}
	ev := s.logger.Warn()
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg(msg)
}

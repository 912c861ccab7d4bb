// Package session runs one mouse-sharing session: it wires capture, the
// arbiter, the codec and the transport together and supervises their
// goroutines.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/shinamon610/ShareMouse/internal/arbiter"
	"github.com/shinamon610/ShareMouse/internal/input"
	"github.com/shinamon610/ShareMouse/internal/network"
	"github.com/shinamon610/ShareMouse/internal/protocol"
	"github.com/shinamon610/ShareMouse/internal/space"
)

// ErrPeerSilent ends a session whose peer stayed quiet past SilenceTimeout.
var ErrPeerSilent = errors.New("session: peer silent")

const (
	defaultQueueSize = 256
	// minTick bounds the control loop tick from below.
	minTick = 5 * time.Millisecond
)

// Config is everything a session needs. It does not change while the
// session runs.
type Config struct {
	Layout       space.Layout
	InitialOwner space.Role
	Network      network.Config
	Control      arbiter.Config
	// SilenceTimeout ends the session after this long without peer traffic
	// while idle. Zero disables it.
	SilenceTimeout time.Duration
	// QueueSize bounds the outbound and injection queues.
	QueueSize int
}

// Option customises Start.
type Option func(*Session)

// WithTransport replaces the transport built from Config.Network.
func WithTransport(t network.Transport) Option {
	return func(s *Session) { s.transport = t }
}

func WithCapturer(c input.Capturer) Option {
	return func(s *Session) { s.capturer = c }
}

func WithInjector(i input.Injector) Option {
	return func(s *Session) { s.injector = i }
}

// WithObserver registers an observer. May be given more than once.
func WithObserver(o Observer) Option {
	return func(s *Session) { s.observers = append(s.observers, o) }
}

// Session is a running session handle. All methods are safe for concurrent
// use.
type Session struct {
	id      string
	cfg     Config
	started time.Time
	logger  zerolog.Logger

	transport network.Transport
	capturer  input.Capturer
	injector  input.Injector
	observers []Observer

	// owned by the control loop
	arb      *arbiter.Arbiter
	filter   *network.SequenceFilter
	seq      uint32
	lastBeat time.Time
	notified Status

	inbound    chan *protocol.Message
	outbound   chan []byte
	injections chan input.RawInputEvent

	stats     counters
	status    atomic.Value // Status
	warnLimit *rate.Limiter

	cancel    context.CancelFunc
	finishing atomic.Bool
	done      chan struct{}
	errMu     sync.Mutex
	err       error
	stopOnce  sync.Once
}

// Start validates the layout, opens the transport, starts capture and runs
// the session until ctx is cancelled, Stop is called or a fatal error occurs.
func Start(ctx context.Context, cfg Config, opts ...Option) (*Session, error) {
	vs, err := space.NewVirtualSpace(cfg.Layout)
	if err != nil {
		return nil, err
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	cfg.Control.Primary = cfg.InitialOwner == space.RoleLocal

	now := time.Now()
	s := &Session{
		id:         uuid.NewString(),
		cfg:        cfg,
		started:    now,
		filter:     network.NewSequenceFilter(),
		seq:        rand.Uint32(),
		inbound:    make(chan *protocol.Message, cfg.QueueSize),
		outbound:   make(chan []byte, cfg.QueueSize),
		injections: make(chan input.RawInputEvent, cfg.QueueSize),
		warnLimit:  rate.NewLimiter(rate.Every(time.Second), 5),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = log.With().Str("module", "session").Str("session", s.id).Logger()

	if s.transport == nil {
		if s.transport, err = network.New(cfg.Network); err != nil {
			return nil, err
		}
	}
	if s.capturer == nil {
		s.capturer = input.NewNullCapturer()
	}
	if s.injector == nil {
		s.injector = input.LogInjector{}
	}

	s.cfg.Control.PassiveCapture = input.IsPassive(s.capturer)
	s.arb = arbiter.New(space.NewEngine(vs, cfg.InitialOwner), s.cfg.Control, now)

	if err := s.transport.Open(ctx); err != nil {
		return nil, err
	}
	if err := s.capturer.Start(ctx); err != nil {
		s.transport.Close()
		return nil, fmt.Errorf("session: start capture: %w", err)
	}
	if p := s.arb.Placement(); p != nil {
		s.injections <- *p
	}

	s.publish(now)
	s.logger.Info().
		Str("state", s.arb.State().String()).
		Bool("primary", cfg.Control.Primary).
		Bool("passive_capture", s.cfg.Control.PassiveCapture).
		Int("width", vs.Width).Int("height", vs.Height).
		Str("peer", cfg.Network.PeerEndpoint()).
		Msg("session started")

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return s.receive(gctx) })
	g.Go(func() error { return s.send(gctx) })
	g.Go(func() error { return s.inject(gctx) })
	g.Go(func() error { return s.run(gctx) })

	go func() {
		err := g.Wait()
		cancel()
		s.finish(err)
	}()
	return s, nil
}

// finish releases resources and publishes the final status.
func (s *Session) finish(err error) {
	s.finishing.Store(true)
	if cerr := s.capturer.Stop(); cerr != nil {
		s.logger.Warn().Err(cerr).Msg("stop capture")
	}
	if cerr := s.transport.Close(); cerr != nil {
		s.logger.Warn().Err(cerr).Msg("close transport")
	}

	s.errMu.Lock()
	s.err = err
	s.errMu.Unlock()

	s.publish(time.Now())
	if err != nil {
		s.logger.Error().Err(err).Msg("session terminated")
	} else {
		s.logger.Info().Msg("session stopped")
	}
	close(s.done)
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Stop cancels the session and waits for it to wind down. It returns the
// fatal error that ended the session, if any.
func (s *Session) Stop() error {
	s.stopOnce.Do(s.cancel)
	<-s.done
	return s.Err()
}

// Done is closed once the session has fully terminated.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns the error that terminated the session, or nil while running and
// after a plain stop.
func (s *Session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Status returns the latest snapshot.
func (s *Session) Status() Status {
	return s.status.Load().(Status)
}

// publish stores a fresh snapshot and notifies observers when the view
// changed. Called from the control loop, and from finish once it has exited.
func (s *Session) publish(now time.Time) {
	engine := s.arb.Engine()
	st := Status{
		SessionID: s.id,
		Running:   !s.terminated(),
		State:     s.arb.State(),
		Position:  engine.Position(),
		Owner:     engine.State().Owner,
		Peer: PeerStatus{
			Liveness: s.arb.PeerLiveness(now),
			LastSeen: s.arb.LastPeer(),
		},
		Stats:     s.stats.snapshot(),
		Space:     space.Rect{Width: engine.Space().Width, Height: engine.Space().Height},
		StartedAt: s.started,
		UpdatedAt: now,
		Transport: TransportSummary{
			Protocol: string(s.cfg.Network.Protocol),
			Peer:     s.cfg.Network.PeerEndpoint(),
		},
	}
	if st.Transport.Protocol == "" {
		st.Transport.Protocol = string(network.ProtocolUDP)
	}
	if addr := s.transport.LocalAddr(); addr != nil {
		st.Transport.Local = addr.String()
	}
	if err := s.Err(); err != nil {
		st.Error = err.Error()
	}
	s.status.Store(st)

	if sameView(st, s.notified) {
		return
	}
	s.notified = st
	for _, o := range s.observers {
		o.OnStatus(st)
	}
}

func (s *Session) terminated() bool { return s.finishing.Load() }

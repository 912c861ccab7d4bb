package network

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shinamon610/ShareMouse/internal/protocol"
)

const (
	// redialDelay is the pause between dial attempts while the peer is down.
	redialDelay = 500 * time.Millisecond

	// writeTimeout bounds one Send on a peer that stopped reading.
	writeTimeout = time.Second
)

// TCP carries frames over one stream connection. Frames are self-delimiting:
// the tag byte determines the length of the rest. In listen mode the transport
// accepts the peer again after a connection drops; in dial mode it redials
// until ctx is done.
type TCP struct {
	cfg Config

	mu       sync.Mutex
	listener net.Listener
	conn     net.Conn
	writer   *bufio.Writer

	// writeMu serialises writers. It is never held together with mu, so
	// closing the connection does not wait for a blocked write.
	writeMu sync.Mutex
}

// NewTCP creates an unopened TCP transport.
func NewTCP(cfg Config) *TCP {
	if cfg.TCPMode == "" {
		cfg.TCPMode = TCPDial
	}
	return &TCP{cfg: cfg}
}

// Open binds the listener in listen mode. Dial mode connects lazily in Serve.
func (t *TCP) Open(ctx context.Context) error {
	if t.cfg.TCPMode != TCPListen {
		return nil
	}
	lc := net.ListenConfig{Control: reuseAddr}
	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort("", strconv.Itoa(t.cfg.ListenPort)))
	if err != nil {
		return fmt.Errorf("%w: listen tcp :%d: %v", ErrTransport, t.cfg.ListenPort, err)
	}
	t.mu.Lock()
	t.listener = ln
	t.mu.Unlock()

	log.Info().Str("module", "network").Str("listen", ln.Addr().String()).Msg("tcp transport listening")
	return nil
}

// Send writes a frame on the current connection. A write that cannot finish
// within writeTimeout drops the connection; the frame is lost and Serve
// reconnects.
func (t *TCP) Send(frame []byte) error {
	t.mu.Lock()
	conn, w := t.conn, t.writer
	t.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := w.Write(frame); err != nil {
		conn.Close()
		return fmt.Errorf("tcp send: %w", err)
	}
	if err := w.Flush(); err != nil {
		// a partial frame leaves the stream unsynchronised
		conn.Close()
		return fmt.Errorf("tcp send: %w", err)
	}
	return nil
}

// Serve runs the connect/read cycle until ctx is done or the listener fails.
func (t *TCP) Serve(ctx context.Context, handle Handler) error {
	stop := context.AfterFunc(ctx, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.listener != nil {
			t.listener.Close()
		}
		if t.conn != nil {
			t.conn.Close()
		}
	})
	defer stop()

	for {
		conn, err := t.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		t.setConn(conn)
		err = t.readFrames(conn, handle)
		t.clearConn(conn)

		if ctx.Err() != nil {
			return nil
		}
		log.Warn().Err(err).Str("module", "network").Str("peer", conn.RemoteAddr().String()).Msg("tcp connection lost")
	}
}

func (t *TCP) connect(ctx context.Context) (net.Conn, error) {
	if t.cfg.TCPMode == TCPListen {
		return t.accept(ctx)
	}

	d := net.Dialer{Timeout: 2 * time.Second}
	for {
		conn, err := d.DialContext(ctx, "tcp", t.cfg.PeerEndpoint())
		if err == nil {
			log.Info().Str("module", "network").Str("peer", conn.RemoteAddr().String()).Msg("tcp connected")
			return conn, nil
		}
		log.Debug().Err(err).Str("module", "network").Msg("tcp dial failed, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(redialDelay):
		}
	}
}

func (t *TCP) accept(ctx context.Context) (net.Conn, error) {
	t.mu.Lock()
	ln := t.listener
	t.mu.Unlock()
	if ln == nil {
		return nil, fmt.Errorf("%w: tcp transport not open", ErrTransport)
	}

	peer, err := net.ResolveTCPAddr("tcp", t.cfg.PeerEndpoint())
	if err != nil {
		return nil, fmt.Errorf("%w: resolve peer %s: %v", ErrTransport, t.cfg.PeerEndpoint(), err)
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: tcp accept: %v", ErrTransport, err)
		}

		from, ok := conn.RemoteAddr().(*net.TCPAddr)
		if !ok || !from.IP.Equal(peer.IP) {
			log.Warn().Str("module", "network").Str("from", conn.RemoteAddr().String()).Msg("tcp connection from unknown address refused")
			conn.Close()
			continue
		}
		log.Info().Str("module", "network").Str("peer", from.String()).Msg("tcp peer connected")
		return conn, nil
	}
}

// readFrames reads tag-delimited frames until the connection fails. An
// unknown tag leaves the stream unsynchronised, so the connection is dropped.
func (t *TCP) readFrames(conn net.Conn, handle Handler) error {
	r := bufio.NewReaderSize(conn, bufferSize(t.cfg.BufferSize))
	buf := make([]byte, maxFrame)
	for {
		tag, err := r.ReadByte()
		if err != nil {
			return err
		}
		size, err := protocol.FrameSize(tag)
		if err != nil {
			return err
		}
		buf[0] = tag
		if _, err := io.ReadFull(r, buf[1:size]); err != nil {
			return err
		}
		handle(buf[:size])
	}
}

func (t *TCP) setConn(conn net.Conn) {
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
	}
	t.mu.Lock()
	t.conn = conn
	t.writer = bufio.NewWriterSize(conn, maxFrame*4)
	t.mu.Unlock()
}

func (t *TCP) clearConn(conn net.Conn) {
	conn.Close()
	t.mu.Lock()
	if t.conn == conn {
		t.conn, t.writer = nil, nil
	}
	t.mu.Unlock()
}

// LocalAddr returns the listener address in listen mode, the connection's
// local address once dialed, or nil.
func (t *TCP) LocalAddr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case t.listener != nil:
		return t.listener.Addr()
	case t.conn != nil:
		return t.conn.LocalAddr()
	}
	return nil
}

// Connected reports whether a peer connection is established.
func (t *TCP) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

// Close shuts the listener and any connection.
func (t *TCP) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var errs []error
	if t.conn != nil {
		errs = append(errs, ignoreClosed(t.conn.Close()))
		t.conn, t.writer = nil, nil
	}
	if t.listener != nil {
		errs = append(errs, ignoreClosed(t.listener.Close()))
		t.listener = nil
	}
	return errors.Join(errs...)
}

func ignoreClosed(err error) error {
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

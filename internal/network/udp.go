package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/shinamon610/ShareMouse/internal/protocol"
)

const (
	maxFrame = protocol.MaxFrameSize

	// maxReadFailures consecutive read errors end the session.
	maxReadFailures = 64
)

// UDP sends one frame per datagram. Datagrams from any address other than the
// configured peer's IP are ignored.
type UDP struct {
	cfg Config

	mu   sync.RWMutex
	conn *net.UDPConn
	peer *net.UDPAddr
}

// NewUDP creates an unopened UDP transport.
func NewUDP(cfg Config) *UDP {
	return &UDP{cfg: cfg}
}

// Open resolves the peer and binds the listen port.
func (u *UDP) Open(ctx context.Context) error {
	peer, err := net.ResolveUDPAddr("udp", u.cfg.PeerEndpoint())
	if err != nil {
		return fmt.Errorf("%w: resolve peer %s: %v", ErrTransport, u.cfg.PeerEndpoint(), err)
	}

	lc := net.ListenConfig{Control: reuseAddr}
	pc, err := lc.ListenPacket(ctx, "udp", net.JoinHostPort("", strconv.Itoa(u.cfg.ListenPort)))
	if err != nil {
		return fmt.Errorf("%w: bind udp :%d: %v", ErrTransport, u.cfg.ListenPort, err)
	}
	conn := pc.(*net.UDPConn)

	// 1 MB socket buffers for bursts of move events
	conn.SetReadBuffer(1 << 20)
	conn.SetWriteBuffer(1 << 20)

	u.mu.Lock()
	u.conn, u.peer = conn, peer
	u.mu.Unlock()

	log.Info().Str("module", "network").Str("listen", conn.LocalAddr().String()).
		Str("peer", peer.String()).Msg("udp transport open")
	return nil
}

// Send writes frame to the peer. UDP gives no delivery guarantee.
func (u *UDP) Send(frame []byte) error {
	u.mu.RLock()
	conn, peer := u.conn, u.peer
	u.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}
	if _, err := conn.WriteToUDP(frame, peer); err != nil {
		return fmt.Errorf("udp send: %w", err)
	}
	return nil
}

// Serve reads datagrams until ctx is done.
func (u *UDP) Serve(ctx context.Context, handle Handler) error {
	u.mu.RLock()
	conn := u.conn
	u.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("%w: udp transport not open", ErrTransport)
	}

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	buf := make([]byte, bufferSize(u.cfg.BufferSize))
	failures := 0
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			// ICMP port-unreachable surfaces here on some platforms while the
			// peer is not up yet.
			if failures++; failures < maxReadFailures {
				continue
			}
			return fmt.Errorf("%w: udp read: %v", ErrTransport, err)
		}
		failures = 0

		u.mu.RLock()
		peer := u.peer
		u.mu.RUnlock()
		if !from.IP.Equal(peer.IP) {
			log.Debug().Str("module", "network").Str("from", from.String()).Msg("udp datagram from unknown address dropped")
			continue
		}

		handle(buf[:n])
	}
}

// LocalAddr returns the bound address, or nil before Open.
func (u *UDP) LocalAddr() net.Addr {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if u.conn == nil {
		return nil
	}
	return u.conn.LocalAddr()
}

// Close releases the socket.
func (u *UDP) Close() error {
	u.mu.Lock()
	conn := u.conn
	u.conn = nil
	u.mu.Unlock()
	if conn == nil {
		return nil
	}
	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

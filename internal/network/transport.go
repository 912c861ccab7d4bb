// Package network carries encoded protocol frames between the two peers.
package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

var (
	// ErrTransport marks a failure the session cannot recover from. The
	// session terminates when Serve returns it.
	ErrTransport = errors.New("network: transport failure")

	// ErrNotConnected is returned by Send on a stream transport that has no
	// peer connection yet. The frame is dropped; the session keeps running.
	ErrNotConnected = errors.New("network: not connected")
)

// Protocol selects the transport implementation.
type Protocol string

const (
	ProtocolUDP Protocol = "udp"
	ProtocolTCP Protocol = "tcp"
)

// TCPMode decides which side of a TCP session dials.
type TCPMode string

const (
	TCPDial   TCPMode = "dial"
	TCPListen TCPMode = "listen"
)

// Config describes how to reach the peer.
type Config struct {
	Protocol    Protocol
	PeerAddress string
	PeerPort    int
	ListenPort  int
	// BufferSize is the receive buffer per read; it is never smaller than the
	// largest frame.
	BufferSize int
	TCPMode    TCPMode
}

// PeerEndpoint returns "host:port" for the peer.
func (c Config) PeerEndpoint() string {
	return net.JoinHostPort(c.PeerAddress, strconv.Itoa(c.PeerPort))
}

// Handler receives one complete frame. The slice is only valid for the
// duration of the call.
type Handler func(frame []byte)

// Transport moves frames between the peers. Implementations are safe for one
// Serve goroutine plus concurrent Send calls.
type Transport interface {
	// Open binds local sockets. It does not wait for the peer.
	Open(ctx context.Context) error
	// Send writes one encoded frame to the peer.
	Send(frame []byte) error
	// Serve reads frames until ctx is done or the transport fails. It
	// returns nil on cancellation and an ErrTransport-wrapped error otherwise.
	Serve(ctx context.Context, handle Handler) error
	// LocalAddr is the bound address, valid after Open.
	LocalAddr() net.Addr
	Close() error
}

// New builds the transport selected by cfg.Protocol.
func New(cfg Config) (Transport, error) {
	switch Protocol(strings.ToLower(string(cfg.Protocol))) {
	case ProtocolUDP, "":
		return NewUDP(cfg), nil
	case ProtocolTCP:
		return NewTCP(cfg), nil
	}
	return nil, fmt.Errorf("%w: unknown protocol %q", ErrTransport, cfg.Protocol)
}

func bufferSize(n int) int {
	if n < maxFrame {
		return maxFrame
	}
	return n
}

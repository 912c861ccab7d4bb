package network

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinamon610/ShareMouse/internal/protocol"
	"github.com/shinamon610/ShareMouse/internal/space"
)

// collector records copies of every frame a transport delivers.
type collector struct {
	mu     sync.Mutex
	frames [][]byte
}

func (c *collector) handle(frame []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, append([]byte(nil), frame...))
}

func (c *collector) snapshot() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.frames...)
}

func encode(t *testing.T, m *protocol.Message, seq uint32) []byte {
	t.Helper()
	m.Seq = seq
	data, err := protocol.Encode(m)
	require.NoError(t, err)
	return data
}

func serve(t *testing.T, ctx context.Context, tr Transport, c *collector) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- tr.Serve(ctx, c.handle) }()
	return done
}

func TestUDPLoopback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := NewUDP(Config{Protocol: ProtocolUDP, PeerAddress: "127.0.0.1", PeerPort: 9})
	require.NoError(t, a.Open(ctx))
	defer a.Close()
	aPort := a.LocalAddr().(*net.UDPAddr).Port

	b := NewUDP(Config{Protocol: ProtocolUDP, PeerAddress: "127.0.0.1", PeerPort: aPort})
	require.NoError(t, b.Open(ctx))
	defer b.Close()

	// a only learns b's ephemeral port after b is bound. b is bound to the
	// wildcard address, so name the loopback explicitly.
	a.mu.Lock()
	a.peer = &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: b.LocalAddr().(*net.UDPAddr).Port}
	a.mu.Unlock()

	var got collector
	done := serve(t, ctx, a, &got)

	frame := encode(t, protocol.Move(4, -4), 1)
	require.Eventually(t, func() bool {
		_ = b.Send(frame)
		return len(got.snapshot()) > 0
	}, 2*time.Second, 20*time.Millisecond)

	msg, err := protocol.Decode(got.snapshot()[0])
	require.NoError(t, err)
	assert.Equal(t, protocol.KindMove, msg.Kind)
	assert.Equal(t, int32(4), msg.DX)

	var back collector
	serve(t, ctx, b, &back)
	hb := encode(t, protocol.Heartbeat(), 2)
	require.Eventually(t, func() bool {
		_ = a.Send(hb)
		return len(back.snapshot()) > 0
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("udp Serve did not return after cancel")
	}
}

func TestUDPSendBeforeOpen(t *testing.T) {
	u := NewUDP(Config{PeerAddress: "127.0.0.1", PeerPort: 9})
	assert.ErrorIs(t, u.Send([]byte{5, 0, 0, 0, 1}), ErrNotConnected)
	assert.ErrorIs(t, u.Serve(context.Background(), func([]byte) {}), ErrTransport)
}

func TestTCPLoopbackFraming(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewTCP(Config{Protocol: ProtocolTCP, TCPMode: TCPListen, PeerAddress: "127.0.0.1"})
	require.NoError(t, l.Open(ctx))
	defer l.Close()
	port := l.LocalAddr().(*net.TCPAddr).Port

	d := NewTCP(Config{Protocol: ProtocolTCP, TCPMode: TCPDial, PeerAddress: "127.0.0.1", PeerPort: port})
	assert.ErrorIs(t, d.Send(encode(t, protocol.Heartbeat(), 1)), ErrNotConnected)

	var atListener, atDialer collector
	lDone := serve(t, ctx, l, &atListener)
	dDone := serve(t, ctx, d, &atDialer)

	require.Eventually(t, func() bool { return l.Connected() && d.Connected() }, 3*time.Second, 10*time.Millisecond)

	sent := [][]byte{
		encode(t, protocol.Move(1, 2), 1),
		encode(t, protocol.Button(1, true), 2),
		encode(t, protocol.HandoffRequest(space.EdgeBottom, space.Point{X: 10, Y: 20}), 3),
		encode(t, protocol.Heartbeat(), 4),
	}
	for _, f := range sent {
		require.NoError(t, d.Send(f))
	}
	require.NoError(t, l.Send(encode(t, protocol.HandoffAck(true), 1)))

	require.Eventually(t, func() bool { return len(atListener.snapshot()) == len(sent) }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, sent, atListener.snapshot())
	require.Eventually(t, func() bool { return len(atDialer.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	for _, done := range []<-chan error{lDone, dDone} {
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("tcp Serve did not return after cancel")
		}
	}
}

func TestTCPSendToStalledPeer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	// The peer accepts and then never reads.
	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()
	defer func() {
		select {
		case conn := <-accepted:
			conn.Close()
		default:
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d := NewTCP(Config{Protocol: ProtocolTCP, TCPMode: TCPDial, PeerAddress: "127.0.0.1",
		PeerPort: ln.Addr().(*net.TCPAddr).Port})
	require.NoError(t, d.Open(ctx))
	var got collector
	done := serve(t, ctx, d, &got)
	require.Eventually(t, d.Connected, 3*time.Second, 10*time.Millisecond)

	// Fill the socket buffers until a write times out.
	frame := encode(t, protocol.Move(1, 1), 1)
	sendDone := make(chan error, 1)
	go func() {
		for {
			if err := d.Send(frame); err != nil {
				sendDone <- err
				return
			}
		}
	}()
	select {
	case err := <-sendDone:
		assert.Error(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Send blocked on a peer that does not read")
	}

	start := time.Now()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
		assert.Less(t, time.Since(start), 2*time.Second)
	case <-time.After(3 * time.Second):
		t.Fatal("tcp Serve did not return after cancel")
	}
	d.Close()
}

func TestNewSelectsProtocol(t *testing.T) {
	tr, err := New(Config{Protocol: "TCP"})
	require.NoError(t, err)
	assert.IsType(t, &TCP{}, tr)

	tr, err = New(Config{})
	require.NoError(t, err)
	assert.IsType(t, &UDP{}, tr)

	_, err = New(Config{Protocol: "sctp"})
	assert.ErrorIs(t, err, ErrTransport)
}

// SPDX-License-Identifier: GPL-3.0-or-later

package asyncproxy

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// New rejects a nil source connection.
func TestNewRejectsNilSource(t *testing.T) {
	_, err := New(nil, nil, FdDestination{Conn: newMinimalConn()})
	require.ErrorIs(t, err, ErrSourceRequired)
}

// New rejects an FdDestination with a nil Conn.
func TestNewRejectsNilFdConn(t *testing.T) {
	_, err := New(nil, newMinimalConn(), FdDestination{})
	require.ErrorIs(t, err, ErrInvalidDestination)
}

// New rejects a HostDestination that violates spec.md §3's invariants.
func TestNewRejectsInvalidHostDestination(t *testing.T) {
	dest := HostDestination{Name: "/tmp/ap.sock", Family: FamilyUnix, BindAddr: "127.0.0.1"}
	_, err := New(nil, newMinimalConn(), dest)
	require.ErrorIs(t, err, ErrInvalidDestination)
}

// A freshly constructed Proxy is not alive until Start.
func TestNewIsNotAliveBeforeStart(t *testing.T) {
	p, err := New(nil, newMinimalConn(), FdDestination{Conn: newMinimalConn()})
	require.NoError(t, err)
	assert.False(t, p.IsAlive())
	assert.Equal(t, "INIT", p.String())
}

// Starting twice returns ErrAlreadyStarted and leaves the proxy alive.
func TestStartTwiceFails(t *testing.T) {
	_, sourceConn := net.Pipe()
	_, sinkConn := net.Pipe()

	p, err := New(nil, sourceConn, FdDestination{Conn: sinkConn})
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	defer p.Close()

	err = p.Start(context.Background())
	require.ErrorIs(t, err, ErrAlreadyStarted)
}

// Echo-through in Fd mode (spec.md §8 scenario 1): bytes written into
// the source's peer arrive at the sink's peer. Close closes the two
// pipe ends the proxy adopted, so the pipes do not stay usable in the
// caller afterwards.
func TestProxyEchoThroughFd(t *testing.T) {
	sourcePeer, sourceConn := net.Pipe()
	sinkConn, sinkPeer := net.Pipe()

	p, err := New(nil, sourceConn, FdDestination{Conn: sinkConn})
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))

	go func() {
		_, _ = sourcePeer.Write([]byte("hello"))
	}()

	buf := make([]byte, 5)
	_, err = io.ReadFull(sinkPeer, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))

	require.NoError(t, p.Close())

	// The proxy closed the ends it adopted; the caller's peer ends are
	// not closed by the proxy, but writing into one now returns an
	// error because its other end is gone.
	_, err = sourcePeer.Write([]byte("x"))
	assert.Error(t, err)
}

// TCP loopback (spec.md §8 scenario 2): a real listener stands in for
// the remote peer; the proxy connects to it as a HostDestination.
func TestProxyTCPLoopback(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	clientPeer, sourceConn := net.Pipe()

	tcpAddr := ln.Addr().(*net.TCPAddr)
	dest := HostDestination{Name: "127.0.0.1", Port: uint16(tcpAddr.Port), Family: FamilyIPv4}

	p, err := New(nil, sourceConn, dest)
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	defer p.Close()

	go func() {
		_, _ = clientPeer.Write([]byte("abc"))
	}()

	var server net.Conn
	select {
	case server = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("listener never accepted a connection")
	}
	defer server.Close()

	buf := make([]byte, 3)
	_, err = io.ReadFull(server, buf)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(buf))
}

// Transformer shrink (spec.md §8 scenario 4): i2o strips every \r\n.
func TestProxyTransformerShrink(t *testing.T) {
	sourcePeer, sourceConn := net.Pipe()
	sinkConn, sinkPeer := net.Pipe()

	p, err := New(nil, sourceConn, FdDestination{Conn: sinkConn})
	require.NoError(t, err)
	p.SetInToOut(TransformerFunc(func(chunk []byte) []byte {
		return bytes.ReplaceAll(chunk, []byte("\r\n"), []byte("\n"))
	}))
	require.NoError(t, p.Start(context.Background()))
	defer p.Close()

	go func() {
		_, _ = sourcePeer.Write([]byte("a\r\nb\r\nc"))
		sourcePeer.Close()
	}()

	got, err := io.ReadAll(sinkPeer)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\nc", string(got))
}

// Force termination (spec.md §8 scenario 5): Close on an idle
// connection returns promptly with state CEASE.
func TestProxyForceTermination(t *testing.T) {
	_, sourceConn := net.Pipe()
	_, sinkConn := net.Pipe()

	p, err := New(nil, sourceConn, FdDestination{Conn: sinkConn})
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))

	done := make(chan struct{})
	go func() {
		p.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return on an idle proxy")
	}

	assert.Equal(t, "CEASE", p.String())
	assert.False(t, p.IsAlive())
}

// Graceful EOF (spec.md §8 scenario 6): the sink peer closes; once
// in-flight bytes are drained to the source side, IsAlive becomes
// false and state is QUIT.
func TestProxyGracefulEOF(t *testing.T) {
	sourcePeer, sourceConn := net.Pipe()
	sinkConn, sinkPeer := net.Pipe()
	defer sourcePeer.Close()

	p, err := New(nil, sourceConn, FdDestination{Conn: sinkConn})
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))

	sinkPeer.Close()
	p.Join(false)

	assert.False(t, p.IsAlive())
	assert.Equal(t, "QUIT", p.String())
}

// LocalAddr returns the AF_UNIX sentinel for a UNIX HostDestination,
// per the original implementation's asyncproxy_getsockname behavior.
func TestProxyLocalAddrUnixSentinel(t *testing.T) {
	_, sourceConn := net.Pipe()
	sinkConn, _ := net.Pipe()

	p, err := New(nil, sourceConn, HostDestination{Name: "/tmp/ap.sock", Family: FamilyUnix})
	require.NoError(t, err)
	p.sink = newEndpoint(sinkConn, p.cfg, p.logger, nil)

	host, port := p.LocalAddr()
	assert.Equal(t, "AF_UNIX", host)
	assert.Equal(t, uint16(0), port)
}

// LocalAddr returns an empty host before Start.
func TestProxyLocalAddrBeforeStart(t *testing.T) {
	p, err := New(nil, newMinimalConn(), FdDestination{Conn: newMinimalConn()})
	require.NoError(t, err)
	host, port := p.LocalAddr()
	assert.Equal(t, "", host)
	assert.Equal(t, uint16(0), port)
}

// Stats reflects bytes actually moved through the proxy.
func TestProxyStatsReflectTransfer(t *testing.T) {
	sourcePeer, sourceConn := net.Pipe()
	sinkConn, sinkPeer := net.Pipe()

	p, err := New(nil, sourceConn, FdDestination{Conn: sinkConn})
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	defer p.Close()

	go func() {
		_, _ = sourcePeer.Write([]byte("hello"))
	}()
	buf := make([]byte, 5)
	_, err = io.ReadFull(sinkPeer, buf)
	require.NoError(t, err)

	// Give the pump a moment to update counters after the Send that
	// unblocked ReadFull above.
	time.Sleep(10 * time.Millisecond)

	source, sink := p.Stats()
	assert.Equal(t, uint64(5), source.In.Bytes)
	assert.Equal(t, uint64(5), sink.Out.Bytes)
}

// SetDebugLevel/DebugLevel round-trip process-wide state.
func TestDebugLevelRoundTrip(t *testing.T) {
	SetDebugLevel(3)
	assert.Equal(t, 3, DebugLevel())
	SetDebugLevel(0)
	assert.Equal(t, 0, DebugLevel())
}

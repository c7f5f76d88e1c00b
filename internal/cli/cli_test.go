//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd

package cli

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mymmsc/reactor"
	"github.com/mymmsc/reactor/sock"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newLoop(t *testing.T) *reactor.Loop {
	t.Helper()
	l, err := reactor.NewLoop(64, reactor.WithLogger(discard()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Free() })
	return l
}

// pump runs n dispatches, each bounded by a short guard timer.
func pump(t *testing.T, l *reactor.Loop, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		guard := &reactor.Event{Fd: tickerFD, Events: reactor.Timer, Timeout: 10 * time.Millisecond,
			Callback: func(*reactor.Loop, *reactor.Event) int { return 0 }}
		require.NoError(t, l.Add(guard))
		l.Dispatch(reactor.All)
		require.NoError(t, l.Del(guard))
	}
}

func startServer(t *testing.T, l *reactor.Loop, onConn func(l *reactor.Loop, fd int) error) string {
	t.Helper()
	ln, err := listen("tcp://127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sock.Close(ln) })
	require.NoError(t, l.Add(newAcceptor(ln, discard(), onConn)))
	addr, err := sock.Sockname(ln)
	require.NoError(t, err)
	return addr
}

func dial(t *testing.T, addr string) net.Conn {
	t.Helper()
	c, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	return c
}

func TestTicker(t *testing.T) {
	l := newLoop(t)
	var out bytes.Buffer
	require.NoError(t, l.Add(newTicker(&out, 5*time.Millisecond, 3)))

	assert.Equal(t, reactor.Abort, l.Wait())
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	for i, line := range lines {
		assert.True(t, strings.HasPrefix(line, fmt.Sprintf("tick %d +", i+1)), line)
	}
	assert.Equal(t, 0, l.Len())
}

func TestEcho(t *testing.T) {
	l := newLoop(t)
	addr := startServer(t, l, newEcho(64, 1024, discard()))

	c := dial(t, addr)
	pump(t, l, 1)
	assert.Equal(t, 2, l.LenIO(), "listener and one client")

	_, err := c.Write([]byte("hello\n"))
	require.NoError(t, err)
	pump(t, l, 1)

	line, err := bufio.NewReader(c).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "hello\n", line)

	require.NoError(t, c.Close())
	pump(t, l, 1)
	assert.Equal(t, 1, l.LenIO(), "closed client is unregistered")
}

func TestChat(t *testing.T) {
	l := newLoop(t)
	r := newRoom(64, 1024, discard())
	addr := startServer(t, l, r.join)

	alice := dial(t, addr)
	bob := dial(t, addr)
	carol := dial(t, addr)
	pump(t, l, 2)
	require.Len(t, r.members, 3)
	ids := map[string]bool{}
	for c := range r.members {
		ids[session(c)] = true
	}
	assert.Len(t, ids, 3, "every member gets its own session id")
	assert.NotContains(t, ids, "")

	_, err := alice.Write([]byte("hi all\npartial"))
	require.NoError(t, err)
	pump(t, l, 1)

	for _, c := range []net.Conn{bob, carol} {
		line, err := bufio.NewReader(c).ReadString('\n')
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(line, ": hi all\n"), line)
	}
	require.NoError(t, alice.SetReadDeadline(time.Now().Add(50*time.Millisecond)))
	_, err = alice.Read(make([]byte, 16))
	assert.Error(t, err, "the sender does not hear itself")

	require.NoError(t, carol.Close())
	pump(t, l, 1)
	assert.Len(t, r.members, 2)
}

func TestCLI_Timer(t *testing.T) {
	cmd := NewCLI("test")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"timer", "--interval", "5ms", "--count", "2"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "tick 1")
	assert.Contains(t, out.String(), "tick 2")
	assert.NotContains(t, out.String(), "tick 3")
}

func TestCLI_BadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reactor.toml")
	require.NoError(t, os.WriteFile(path, []byte("[loop]\ncapacity = -1\n"), 0o600))

	cmd := NewCLI("test")
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"timer", "--config", path})
	assert.ErrorContains(t, cmd.Execute(), "loop.capacity")
}

func TestCLI_BackendFlag(t *testing.T) {
	cmd := NewCLI("test")
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"timer", "--backend", "devpoll", "--count", "1"})
	assert.ErrorIs(t, cmd.Execute(), reactor.ErrUnsupported)
}

// pumpUntil dispatches until cond holds, failing after two seconds.
func pumpUntil(t *testing.T, l *reactor.Loop, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		pump(t, l, 1)
	}
}

// input returns a descriptor reading from a pipe and the pipe's write end.
func input(t *testing.T) (int, *os.File) {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = r.Close()
		_ = w.Close()
	})
	fd, err := sock.FD(r)
	require.NoError(t, err)
	return fd, w
}

func TestNetcat(t *testing.T) {
	l := newLoop(t)
	addr := startServer(t, l, newEcho(64, 1024, discard()))

	fd, err := connectPeer("tcp://"+addr, time.Second, 1)
	require.NoError(t, err)
	in, w := input(t)
	var out bytes.Buffer
	stopped := 0
	nc, err := newNetcat(l, fd, in, 64, &out, discard(), func() { stopped++ })
	require.NoError(t, err)
	require.Equal(t, 3, l.LenIO(), "listener, connection and input")

	_, err = w.Write([]byte("hello\n"))
	require.NoError(t, err)
	pumpUntil(t, l, func() bool { return out.String() == "hello\n" })

	// end of input half-closes; the echo server hangs up in turn
	require.NoError(t, w.Close())
	pumpUntil(t, l, func() bool { return stopped > 0 })
	assert.Equal(t, 1, stopped)
	assert.True(t, nc.conn.Closed())
	assert.Equal(t, -1, nc.in.Fd)
	assert.Equal(t, 1, l.LenIO(), "only the listener is left")
}

func TestNetcat_UDP(t *testing.T) {
	l := newLoop(t)
	srv, err := bindDatagram("udp://127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sock.Close(srv) })
	require.NoError(t, l.Add(newDatagramEcho(srv, 64, discard())))
	addr, err := sock.Sockname(srv)
	require.NoError(t, err)

	fd, err := connectPeer("udp://"+addr, time.Second, -1)
	require.NoError(t, err)
	in, w := input(t)
	var out bytes.Buffer
	nc, err := newNetcat(l, fd, in, 64, &out, discard(), func() {})
	require.NoError(t, err)
	t.Cleanup(nc.close)

	_, err = w.Write([]byte("dgram"))
	require.NoError(t, err)
	pumpUntil(t, l, func() bool { return out.String() == "dgram" })
}

func TestDatagramEcho(t *testing.T) {
	l := newLoop(t)
	srv, err := bindDatagram("udp://127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sock.Close(srv) })
	require.NoError(t, l.Add(newDatagramEcho(srv, 64, discard())))
	addr, err := sock.Sockname(srv)
	require.NoError(t, err)

	c, err := net.Dial("udp", addr)
	require.NoError(t, err)
	defer c.Close()
	for _, msg := range []string{"one", "two"} {
		_, err = c.Write([]byte(msg))
		require.NoError(t, err)
	}

	var got []string
	buf := make([]byte, 64)
	pumpUntil(t, l, func() bool {
		require.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Millisecond)))
		if n, err := c.Read(buf); err == nil {
			got = append(got, string(buf[:n]))
		}
		return len(got) == 2
	})
	assert.Equal(t, []string{"one", "two"}, got)
}

func TestBindDatagram_StreamAddr(t *testing.T) {
	_, err := bindDatagram("tcp://127.0.0.1:0")
	assert.ErrorContains(t, err, "not a datagram address")
}

func TestConnectPeer_UnknownNetwork(t *testing.T) {
	_, err := connectPeer("sctp://127.0.0.1:1", time.Second, -1)
	assert.ErrorContains(t, err, "unsupported network")
}

func TestCLI_Netcat(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		buf := make([]byte, 256)
		for {
			n, err := c.Read(buf)
			if err != nil {
				return
			}
			if _, err := c.Write(buf[:n]); err != nil {
				return
			}
		}
	}()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	_, err = w.Write([]byte("over the wire\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	cmd := NewCLI("test")
	var out bytes.Buffer
	cmd.SetIn(r)
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"netcat", "--addr", "tcp://" + ln.Addr().String(), "--linger", "1"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "over the wire\n", out.String())
}

func TestCLI_UDPEchoNeedsDatagramAddr(t *testing.T) {
	cmd := NewCLI("test")
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"udp-echo", "--addr", "tcp://127.0.0.1:0"})
	assert.ErrorContains(t, cmd.Execute(), "not a datagram address")
}

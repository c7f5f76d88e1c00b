//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd

package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/mymmsc/reactor"
	"github.com/mymmsc/reactor/bio"
	"github.com/mymmsc/reactor/sock"
)

func NetcatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "netcat",
		Short: "Copy stdin to a peer and the peer's replies to stdout",
		RunE:  handleNetcat,
	}
	cmd.Flags().String("addr", "", "peer address, tcp://host:port, udp://host:port or unix:///path")
	cmd.Flags().Duration("timeout", 5*time.Second, "tcp connect timeout")
	cmd.Flags().Int("linger", -1, "SO_LINGER seconds for tcp, -1 leaves it unset")
	return cmd
}

func handleNetcat(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")
	linger, _ := cmd.Flags().GetInt("linger")

	fd, err := connectPeer(a.Cfg.Server.Addr, timeout, linger)
	if err != nil {
		_ = a.Close()
		return err
	}
	in, err := sock.FD(cmd.InOrStdin())
	if err != nil {
		_ = sock.Close(fd)
		_ = a.Close()
		return fmt.Errorf("stdin: %w", err)
	}
	nc, err := newNetcat(a.Loop, fd, in, a.Cfg.Server.ReadBuffer, cmd.OutOrStdout(), a.Logger, a.Stop)
	if err != nil {
		_ = a.Close()
		return err
	}
	a.Logger.Info("connected", "addr", a.Cfg.Server.Addr)
	err = runApp(cmd, a)
	nc.close()
	return err
}

// connectPeer returns a non-blocking descriptor connected to addr. Datagram
// peers get a socket bound to an ephemeral port and then connected, so that
// plain reads and writes work.
func connectPeer(addr string, timeout time.Duration, linger int) (int, error) {
	network, address := sock.ParseAddr(addr)
	var (
		fd  int
		err error
	)
	switch network {
	case "tcp", "tcp4", "tcp6":
		if fd, err = sock.TCPConnect(address, timeout); err != nil {
			return -1, err
		}
		if linger >= 0 {
			err = sock.SetLinger(fd, int32(linger))
		}
	case "udp", "udp4", "udp6":
		if fd, err = sock.UDPBind(wildcard(address)); err != nil {
			return -1, err
		}
		err = sock.UDPConnect(fd, address)
	case "unix":
		if fd, err = sock.UnixConnect(address, unix.SOCK_STREAM); err != nil {
			return -1, err
		}
	default:
		return -1, fmt.Errorf("netcat: unsupported network %q", network)
	}
	if err == nil {
		err = sock.SetNonblock(fd, true)
	}
	if err != nil {
		_ = sock.Close(fd)
		return -1, err
	}
	return fd, nil
}

// wildcard is the any-port local address of the family address belongs to.
func wildcard(address string) string {
	host, _, err := net.SplitHostPort(address)
	if ip := net.ParseIP(host); err == nil && ip != nil && ip.To4() == nil {
		return "[::]:0"
	}
	return ":0"
}

// netcat relays between an input descriptor and a connection. End of input
// half-closes the connection; the peer closing it stops the run.
type netcat struct {
	conn *bio.Conn
	in   reactor.Event
	buf  []byte
	out  io.Writer
	log  *slog.Logger
	stop func()
}

// newNetcat owns fd and in from here on, including when it fails.
func newNetcat(l *reactor.Loop, fd, in, size int, out io.Writer, log *slog.Logger, stop func()) (*netcat, error) {
	if size < 1 {
		size = bio.DefaultReadSize
	}
	nc := &netcat{buf: make([]byte, size), out: out, log: log, stop: stop}
	nc.in.Fd = -1
	conn, err := bio.New(l, fd, size, 0, nc.onRead, nc.onClose)
	if err != nil {
		_ = sock.Close(fd)
		_ = sock.Close(in)
		return nil, err
	}
	nc.conn = conn
	nc.in = reactor.Event{Fd: in, Events: reactor.Read, Callback: nc.onInput}
	if err := l.Add(&nc.in); err != nil {
		nc.in.Fd = -1
		_ = conn.Close()
		_ = sock.Close(in)
		return nil, err
	}
	return nc, nil
}

func (nc *netcat) onRead(_ *bio.Conn, data []byte) int {
	if _, err := nc.out.Write(data); err != nil {
		nc.log.Warn("write output failed", "err", err)
		return reactor.Abort
	}
	return len(data)
}

func (nc *netcat) onClose(c *bio.Conn) {
	nc.log.Debug("peer closed", "fd", c.Fd())
	nc.closeInput()
	nc.stop()
}

func (nc *netcat) onInput(_ *reactor.Loop, ev *reactor.Event) int {
	n, err := sock.Read(ev.Fd, nc.buf)
	switch {
	case errors.Is(err, sock.ErrAgain):
		return 0
	case errors.Is(err, io.EOF):
		nc.closeInput()
		nc.shutdown()
		return 0
	case err != nil:
		nc.log.Warn("read input failed", "err", err)
		nc.closeInput()
		return 0
	}
	if _, err = nc.conn.Write(nc.buf[:n]); err == nil {
		err = nc.conn.Flush()
	}
	if err != nil {
		nc.log.Warn("send failed", "err", err)
		_ = nc.conn.Close()
	}
	return 0
}

func (nc *netcat) closeInput() {
	if nc.in.Fd < 0 {
		return
	}
	if err := nc.conn.Loop().Del(&nc.in); err != nil {
		nc.log.Debug("input unregister failed", "err", err)
	}
	_ = sock.Close(nc.in.Fd)
	nc.in.Fd = -1
}

// shutdown half-closes the connection once everything queued has been sent.
// A datagram socket has no write side to close; the error is ignored.
func (nc *netcat) shutdown() {
	if nc.conn.Closed() {
		return
	}
	if err := nc.conn.Flush(); err != nil || nc.conn.Pending() > 0 {
		nc.log.Debug("output still queued, not half-closing", "pending", nc.conn.Pending())
		return
	}
	_ = unix.Shutdown(nc.conn.Fd(), unix.SHUT_WR)
}

func (nc *netcat) close() {
	nc.closeInput()
	_ = nc.conn.Close()
}

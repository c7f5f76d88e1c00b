//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd

package cli

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/mymmsc/reactor"
	"github.com/mymmsc/reactor/bio"
	"github.com/mymmsc/reactor/internal/app"
	"github.com/mymmsc/reactor/sock"
)

func EchoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "echo",
		Short: "Serve a TCP or unix echo server",
		RunE:  handleEcho,
	}
	cmd.Flags().String("addr", "", "listen address, tcp://host:port or unix:///path")
	return cmd
}

func ChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Serve a line-based chat room",
		RunE:  handleChat,
	}
	cmd.Flags().String("addr", "", "listen address, tcp://host:port or unix:///path")
	return cmd
}

func UDPEchoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "udp-echo",
		Short: "Echo datagrams back to their sender",
		RunE:  handleUDPEcho,
	}
	cmd.Flags().String("addr", "", "bind address, udp://host:port or unixgram:///path")
	return cmd
}

func handleEcho(cmd *cobra.Command, _ []string) error {
	return serve(cmd, func(a *app.ReactorApp) func(l *reactor.Loop, fd int) error {
		return newEcho(a.Cfg.Server.ReadBuffer, a.Cfg.Server.WriteBuffer, a.Logger)
	})
}

func handleChat(cmd *cobra.Command, _ []string) error {
	return serve(cmd, func(a *app.ReactorApp) func(l *reactor.Loop, fd int) error {
		return newRoom(a.Cfg.Server.ReadBuffer, a.Cfg.Server.WriteBuffer, a.Logger).join
	})
}

func handleUDPEcho(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	fd, err := bindDatagram(a.Cfg.Server.Addr)
	if err != nil {
		_ = a.Close()
		return err
	}
	defer sock.Close(fd)

	if err := a.Loop.Add(newDatagramEcho(fd, a.Cfg.Server.ReadBuffer, a.Logger)); err != nil {
		_ = a.Close()
		return err
	}
	a.Logger.Info("bound", "addr", a.Cfg.Server.Addr)
	return runApp(cmd, a)
}

func serve(cmd *cobra.Command, handler func(a *app.ReactorApp) func(l *reactor.Loop, fd int) error) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	ln, err := listen(a.Cfg.Server.Addr)
	if err != nil {
		_ = a.Close()
		return err
	}
	defer sock.Close(ln)

	if err := a.Loop.Add(newAcceptor(ln, a.Logger, handler(a))); err != nil {
		_ = a.Close()
		return err
	}
	a.Logger.Info("listening", "addr", a.Cfg.Server.Addr)
	return runApp(cmd, a)
}

// listen opens a non-blocking listener for "network://address".
func listen(addr string) (int, error) {
	ln, err := sock.Listen(addr)
	if err != nil {
		return -1, err
	}
	if err := sock.Setsockopt(ln, sock.Options{Nonblock: true}); err != nil {
		_ = sock.Close(ln)
		return -1, err
	}
	return ln, nil
}

// bindDatagram opens a non-blocking datagram socket bound to addr.
func bindDatagram(addr string) (int, error) {
	switch network, _ := sock.ParseAddr(addr); network {
	case "udp", "udp4", "udp6", "unixgram":
		return listen(addr)
	default:
		return -1, fmt.Errorf("udp-echo: %q is not a datagram address", addr)
	}
}

// newAcceptor accepts every pending connection on ln and hands it to
// onConn, which takes ownership of the descriptor on success.
func newAcceptor(ln int, log *slog.Logger, onConn func(l *reactor.Loop, fd int) error) *reactor.Event {
	return &reactor.Event{Fd: ln, Events: reactor.Read, Callback: func(l *reactor.Loop, ev *reactor.Event) int {
		for {
			fd, sa, err := sock.Accept(ev.Fd)
			if errors.Is(err, sock.ErrAgain) {
				return 0
			}
			if err != nil {
				log.Warn("accept failed", "err", err)
				return 0
			}
			log.Debug("accepted", "fd", fd, "peer", sock.String(sa))
			if err := onConn(l, fd); err != nil {
				log.Warn("connection setup failed", "fd", fd, "err", err)
				_ = sock.Close(fd)
			}
		}
	}}
}

func newEcho(size, limit int, log *slog.Logger) func(l *reactor.Loop, fd int) error {
	onRead := func(c *bio.Conn, data []byte) int {
		if _, err := c.Write(data); err != nil {
			log.Warn("echo queue full, dropping client", "fd", c.Fd())
			_ = c.Close()
			return 0
		}
		if err := c.Flush(); err != nil {
			_ = c.Close()
		}
		return len(data)
	}
	onClose := func(c *bio.Conn) {
		log.Debug("closed", "fd", c.Fd(), "session", session(c))
	}
	return func(l *reactor.Loop, fd int) error {
		c, err := bio.New(l, fd, size, limit, onRead, onClose)
		if err != nil {
			return err
		}
		c.Data = ulid.Make().String()
		return nil
	}
}

// newDatagramEcho sends every datagram on fd back to where it came from.
// Senders without an address, such as unbound unix sockets, get no reply.
func newDatagramEcho(fd, size int, log *slog.Logger) *reactor.Event {
	if size < 1 {
		size = bio.DefaultReadSize
	}
	buf := make([]byte, size)
	return &reactor.Event{Fd: fd, Events: reactor.Read, Callback: func(_ *reactor.Loop, ev *reactor.Event) int {
		for {
			n, from, err := sock.ReadFrom(ev.Fd, buf)
			if errors.Is(err, sock.ErrAgain) {
				return 0
			}
			if err != nil {
				log.Warn("recvfrom failed", "err", err)
				return 0
			}
			if sock.String(from) == "" {
				continue
			}
			if err := sock.WriteTo(ev.Fd, buf[:n], from); err != nil {
				log.Warn("reply dropped", "peer", sock.String(from), "err", err)
			}
		}
	}}
}

// room is a chat room: every complete line from one member is sent to all
// the others, prefixed with the sender's descriptor.
type room struct {
	size, limit int
	log         *slog.Logger
	members     map[*bio.Conn]struct{}
}

func newRoom(size, limit int, log *slog.Logger) *room {
	return &room{size: size, limit: limit, log: log, members: map[*bio.Conn]struct{}{}}
}

func (r *room) join(l *reactor.Loop, fd int) error {
	c, err := bio.New(l, fd, r.size, r.limit, r.onRead, r.leave)
	if err != nil {
		return err
	}
	c.Data = ulid.Make().String()
	r.members[c] = struct{}{}
	r.log.Info("joined", "fd", fd, "session", session(c), "members", len(r.members))
	return nil
}

func (r *room) leave(c *bio.Conn) {
	delete(r.members, c)
	r.log.Info("left", "fd", c.Fd(), "session", session(c), "members", len(r.members))
}

func (r *room) onRead(c *bio.Conn, data []byte) int {
	consumed := 0
	for {
		i := bytes.IndexByte(data[consumed:], '\n')
		if i < 0 {
			return consumed
		}
		line := data[consumed : consumed+i+1]
		r.broadcast(c, []byte(fmt.Sprintf("%d: %s", c.Fd(), line)))
		consumed += i + 1
		if c.Closed() {
			return consumed
		}
	}
}

func (r *room) broadcast(from *bio.Conn, msg []byte) {
	for c := range r.members {
		if c == from {
			continue
		}
		_, err := c.Write(msg)
		if err == nil {
			err = c.Flush()
		}
		if err != nil {
			r.log.Warn("dropping member", "fd", c.Fd(), "err", err)
			_ = c.Close()
		}
	}
}

// session returns the ID a connection was tagged with when it was accepted.
func session(c *bio.Conn) string {
	id, _ := c.Data.(string)
	return id
}

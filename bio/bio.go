//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd

// Package bio buffers a non-blocking descriptor registered with a reactor
// loop: inbound bytes are kept until the reader consumes them and outbound
// writes are queued until the descriptor accepts them.
package bio

import (
	"errors"
	"io"

	"github.com/eapache/queue"

	"github.com/mymmsc/reactor"
	"github.com/mymmsc/reactor/sock"
)

// DefaultReadSize bounds a single read when New is given no size.
const DefaultReadSize = 4096

// ErrFull is returned by Write when the send queue limit is reached.
var ErrFull = errors.New("bio: send queue full")

// ReadFunc receives the unconsumed inbound bytes and returns how many it
// consumed. A negative result is handed back to the loop and aborts the
// current dispatch.
type ReadFunc func(c *Conn, data []byte) int

// CloseFunc is called once when the connection closes.
type CloseFunc func(c *Conn)

type Conn struct {
	ev      reactor.Event
	loop    *reactor.Loop
	in      Stream
	buf     []byte
	out     *queue.Queue // [][]byte
	head    int          // bytes of the front chunk already written
	pending int
	limit   int
	onRead  ReadFunc
	onClose CloseFunc
	closed  bool

	// Data is free for the owner.
	Data any
}

// New registers fd for reading on l. size bounds a single read; the send
// queue accepts up to limit bytes, no limit when limit <= 0. fd must be
// non-blocking.
func New(l *reactor.Loop, fd, size, limit int, onRead ReadFunc, onClose CloseFunc) (*Conn, error) {
	if onRead == nil {
		return nil, errors.New("bio: nil read func")
	}
	if size < 1 {
		size = DefaultReadSize
	}
	c := &Conn{
		loop:    l,
		buf:     make([]byte, size),
		out:     queue.New(),
		limit:   limit,
		onRead:  onRead,
		onClose: onClose,
	}
	c.ev = reactor.Event{Fd: fd, Events: reactor.Read, Callback: handle, Data: c}
	if err := l.Add(&c.ev); err != nil {
		return nil, err
	}
	return c, nil
}

// FromEvent returns the Conn behind a loop event, or nil.
func FromEvent(ev *reactor.Event) *Conn {
	c, _ := ev.Data.(*Conn)
	return c
}

func (c *Conn) Fd() int                 { return c.ev.Fd }
func (c *Conn) Loop() *reactor.Loop     { return c.loop }
func (c *Conn) Buffered() int           { return c.in.Len() }
func (c *Conn) Pending() int            { return c.pending }
func (c *Conn) Closed() bool            { return c.closed }
func (c *Conn) Interest() reactor.Flags { return c.ev.Events }

func handle(_ *reactor.Loop, ev *reactor.Event) int {
	c := FromEvent(ev)
	if c == nil || c.closed {
		return 0
	}
	if ev.Revents&reactor.Write != 0 {
		if err := c.Flush(); err != nil {
			_ = c.Close()
			return 0
		}
	}
	if ev.Revents&reactor.Read != 0 {
		return c.read()
	}
	return 0
}

func (c *Conn) read() int {
	n, err := sock.Read(c.ev.Fd, c.buf)
	if errors.Is(err, sock.ErrAgain) {
		return 0
	}
	if err != nil {
		_ = c.Close()
		return 0
	}
	data := c.in.Begin(c.buf[:n])
	m := c.onRead(c, data)
	if m < 0 {
		c.in.End(data)
		return m
	}
	if c.closed {
		return 0
	}
	c.in.End(data[min(m, len(data)):])
	return 0
}

// Write queues a copy of p. It accepts what fits under the queue limit and
// reports ErrFull for the rest. Nothing is sent until Flush.
func (c *Conn) Write(p []byte) (int, error) {
	if c.closed {
		return 0, io.ErrClosedPipe
	}
	n := len(p)
	if c.limit > 0 && c.pending+n > c.limit {
		n = c.limit - c.pending
	}
	if n > 0 {
		c.out.Add(append([]byte(nil), p[:n]...))
		c.pending += n
	}
	if n < len(p) {
		return n, ErrFull
	}
	return n, nil
}

// Flush writes queued data until the descriptor would block. Write interest
// is held on the loop while data remains and dropped once the queue drains.
func (c *Conn) Flush() error {
	for c.out.Length() > 0 {
		chunk := c.out.Peek().([]byte)
		n, err := sock.Write(c.ev.Fd, chunk[c.head:])
		c.head += n
		c.pending -= n
		if errors.Is(err, sock.ErrAgain) {
			return c.interest(c.ev.Events | reactor.Write)
		}
		if err != nil {
			return err
		}
		c.out.Remove()
		c.head = 0
	}
	return c.interest(c.ev.Events &^ reactor.Write)
}

func (c *Conn) interest(events reactor.Flags) error {
	if c.closed || events == c.ev.Events {
		return nil
	}
	c.ev.Events = events
	return c.loop.Mod(&c.ev)
}

// Close unregisters and closes the descriptor and calls the close func.
// Queued data that was not flushed is dropped.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	err := errors.Join(c.loop.Del(&c.ev), sock.Close(c.ev.Fd))
	if c.onClose != nil {
		c.onClose(c)
	}
	return err
}

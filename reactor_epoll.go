//go:build linux

package reactor

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func init() {
	register(BackendEpoll, func() Poller { return &epollPoller{fd: -1} })
}

// epollPoller is the edge-queue backend. It is used level-triggered.
type epollPoller struct {
	fd     int // epoll fd
	events []unix.EpollEvent
}

func (p *epollPoller) Init(l *Loop) error {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return fmt.Errorf("epoll create: %w", err)
	}
	p.fd = fd
	p.events = make([]unix.EpollEvent, l.Cap())
	return nil
}

func (p *epollPoller) Close() error {
	p.events = nil
	if p.fd < 0 {
		return nil
	}
	err := unix.Close(p.fd)
	p.fd = -1
	return err
}

func (p *epollPoller) Realloc(capacity int) error {
	events := make([]unix.EpollEvent, capacity)
	copy(events, p.events)
	p.events = events
	return nil
}

func (p *epollPoller) Ctl(op Op, fd int, events Flags) error {
	var eop int
	switch op {
	case OpAdd:
		eop = unix.EPOLL_CTL_ADD
	case OpMod:
		eop = unix.EPOLL_CTL_MOD
	case OpDel:
		eop = unix.EPOLL_CTL_DEL
	default:
		return ErrUnknownOp
	}
	ev := unix.EpollEvent{Fd: int32(fd)}
	if events&Read != 0 {
		ev.Events |= unix.EPOLLIN
	}
	if events&Write != 0 {
		ev.Events |= unix.EPOLLOUT
	}
	if err := unix.EpollCtl(p.fd, eop, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl %s fd %d: %w", op, fd, err)
	}
	return nil
}

func (p *epollPoller) Poll(l *Loop, timeout int) (int, error) {
	n, err := unix.EpollWait(p.fd, p.events, timeout)
	if err != nil {
		if interrupted(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("epoll wait: %w", err)
	}
	for i := 0; i < n; i++ {
		ev := p.events[i]
		var mask Flags
		if ev.Events&unix.EPOLLIN != 0 {
			mask |= Read
		}
		if ev.Events&unix.EPOLLOUT != 0 {
			mask |= Write
		}
		// error or hang-up: either direction may fail or see end of stream
		if ev.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			mask |= Read | Write
		}
		l.fired[i] = fired{fd: int(ev.Fd), events: mask}
	}
	return n, nil
}

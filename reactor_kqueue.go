//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package reactor

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func init() {
	register(BackendKqueue, func() Poller { return &kqueuePoller{fd: -1} })
}

// kqueuePoller is the BSD-queue backend. kevent reports read and write
// readiness of one descriptor as separate entries, so Poll merges them per
// descriptor through revents.
type kqueuePoller struct {
	fd      int
	events  []unix.Kevent_t
	revents []Flags // merge scratch indexed by descriptor, zero between polls
	filters []Flags // filters registered per descriptor
	changes []unix.Kevent_t
}

func (p *kqueuePoller) Init(l *Loop) error {
	fd, err := unix.Kqueue()
	if err != nil {
		return fmt.Errorf("kqueue: %w", err)
	}
	unix.CloseOnExec(fd)
	p.fd = fd
	p.events = make([]unix.Kevent_t, l.Cap())
	p.revents = make([]Flags, l.Cap())
	p.filters = make([]Flags, l.Cap())
	return nil
}

func (p *kqueuePoller) Close() error {
	p.events, p.revents, p.filters = nil, nil, nil
	if p.fd < 0 {
		return nil
	}
	err := unix.Close(p.fd)
	p.fd = -1
	return err
}

func (p *kqueuePoller) Realloc(capacity int) error {
	events := make([]unix.Kevent_t, capacity)
	copy(events, p.events)
	filters := make([]Flags, capacity)
	copy(filters, p.filters)
	p.events, p.filters = events, filters
	p.revents = make([]Flags, capacity)
	return nil
}

func (p *kqueuePoller) Ctl(op Op, fd int, events Flags) error {
	if fd >= len(p.filters) {
		return ErrFDRange
	}
	var add, del Flags
	switch op {
	case OpAdd:
		add = events
	case OpDel:
		del = events
	case OpMod:
		del = p.filters[fd] &^ events
		add = events &^ p.filters[fd]
	default:
		return ErrUnknownOp
	}

	p.changes = p.changes[:0]
	p.change(fd, del, unix.EV_DELETE)
	p.change(fd, add, unix.EV_ADD|unix.EV_ENABLE)
	if len(p.changes) > 0 {
		if _, err := unix.Kevent(p.fd, p.changes, nil, nil); err != nil {
			return fmt.Errorf("kevent %s fd %d: %w", op, fd, err)
		}
	}
	p.filters[fd] = p.filters[fd]&^del | add
	return nil
}

func (p *kqueuePoller) change(fd int, events Flags, flags int) {
	var ev unix.Kevent_t
	if events&Read != 0 {
		unix.SetKevent(&ev, fd, unix.EVFILT_READ, flags)
		p.changes = append(p.changes, ev)
	}
	if events&Write != 0 {
		unix.SetKevent(&ev, fd, unix.EVFILT_WRITE, flags)
		p.changes = append(p.changes, ev)
	}
}

func (p *kqueuePoller) Poll(l *Loop, timeout int) (int, error) {
	var ts *unix.Timespec
	if timeout >= 0 {
		t := unix.NsecToTimespec(int64(timeout) * 1e6)
		ts = &t
	}
	n, err := unix.Kevent(p.fd, nil, p.events, ts)
	if err != nil {
		if interrupted(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("kevent wait: %w", err)
	}

	for i := 0; i < n; i++ {
		ev := &p.events[i]
		fd := int(ev.Ident)
		if fd < 0 || fd >= len(p.revents) {
			continue
		}
		switch {
		case ev.Flags&(unix.EV_ERROR|unix.EV_EOF) != 0:
			p.revents[fd] |= Read | Write
		case ev.Filter == unix.EVFILT_READ:
			p.revents[fd] |= Read
		case ev.Filter == unix.EVFILT_WRITE:
			p.revents[fd] |= Write
		}
	}

	nevents := 0
	for i := 0; i < n; i++ {
		fd := int(p.events[i].Ident)
		if fd < 0 || fd >= len(p.revents) || p.revents[fd] == 0 {
			continue
		}
		l.fired[nevents] = fired{fd: fd, events: p.revents[fd]}
		p.revents[fd] = 0
		nevents++
	}
	return nevents, nil
}

//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris

package reactor

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// fdSetSize is FD_SETSIZE: select cannot watch descriptors at or above it.
const fdSetSize = 8 * int(unsafe.Sizeof(unix.FdSet{}))

func init() {
	register(BackendSelect, func() Poller { return &selectPoller{} })
}

// selectPoller is the descriptor-set backend. select reports which
// descriptors are ready but not who asked, so Poll rescans every descriptor
// up to the loop's high-water mark.
type selectPoller struct {
	rfds unix.FdSet
	wfds unix.FdSet
}

func (p *selectPoller) Init(l *Loop) error {
	if l.Cap() > fdSetSize {
		return ErrCapacity
	}
	p.rfds.Zero()
	p.wfds.Zero()
	return nil
}

func (p *selectPoller) Close() error {
	p.rfds.Zero()
	p.wfds.Zero()
	return nil
}

// Realloc has no buffer to resize; it only enforces FD_SETSIZE.
func (p *selectPoller) Realloc(capacity int) error {
	if capacity > fdSetSize {
		return ErrCapacity
	}
	return nil
}

func (p *selectPoller) Ctl(op Op, fd int, events Flags) error {
	if fd < 0 || fd >= fdSetSize {
		return ErrFDRange
	}
	switch op {
	case OpAdd:
	case OpMod:
		p.rfds.Clear(fd)
		p.wfds.Clear(fd)
	case OpDel:
		if events&Read != 0 {
			p.rfds.Clear(fd)
		}
		if events&Write != 0 {
			p.wfds.Clear(fd)
		}
		return nil
	default:
		return ErrUnknownOp
	}
	if events&Read != 0 {
		p.rfds.Set(fd)
	}
	if events&Write != 0 {
		p.wfds.Set(fd)
	}
	return nil
}

func (p *selectPoller) Poll(l *Loop, timeout int) (int, error) {
	rfds, wfds := p.rfds, p.wfds
	var tv *unix.Timeval
	if timeout >= 0 {
		t := unix.NsecToTimeval(int64(timeout) * 1e6)
		tv = &t
	}
	maxfd := l.MaxFD()
	n, err := unix.Select(maxfd+1, &rfds, &wfds, nil, tv)
	if err != nil {
		if interrupted(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("select: %w", err)
	}
	if n <= 0 {
		return 0, nil
	}

	nevents := 0
	for fd := 0; fd <= maxfd && nevents < len(l.fired); fd++ {
		var mask Flags
		if rfds.IsSet(fd) {
			mask |= Read
		}
		if wfds.IsSet(fd) {
			mask |= Write
		}
		if mask != 0 {
			l.fired[nevents] = fired{fd: fd, events: mask}
			nevents++
		}
	}
	return nevents, nil
}

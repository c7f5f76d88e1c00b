//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd

package sock

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// Options are applied by Setsockopt. Zero values leave the kernel default.
type Options struct {
	ReuseAddr   bool
	ReusePort   bool
	Nonblock    bool
	ReadBuffer  int           // SO_RCVBUF
	WriteBuffer int           // SO_SNDBUF
	Timeout     time.Duration // SO_RCVTIMEO and SO_SNDTIMEO, blocking sockets only
}

func Setsockopt(fd int, o Options) error {
	// 设置地址复用
	if o.ReuseAddr {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			return fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
		}
	}
	// 设置端口复用
	if o.ReusePort {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
			return fmt.Errorf("setsockopt SO_REUSEPORT: %w", err)
		}
	}
	if o.Timeout > 0 {
		tv := unix.NsecToTimeval(o.Timeout.Nanoseconds())
		if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
			return fmt.Errorf("setsockopt SO_RCVTIMEO: %w", err)
		}
		if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_SNDTIMEO, &tv); err != nil {
			return fmt.Errorf("setsockopt SO_SNDTIMEO: %w", err)
		}
	}
	if o.ReadBuffer > 0 {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, o.ReadBuffer); err != nil {
			return fmt.Errorf("setsockopt SO_RCVBUF: %w", err)
		}
	}
	if o.WriteBuffer > 0 {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, o.WriteBuffer); err != nil {
			return fmt.Errorf("setsockopt SO_SNDBUF: %w", err)
		}
	}
	if o.Nonblock {
		return SetNonblock(fd, true)
	}
	return nil
}

// SetLinger makes Close block up to sec seconds while unsent data drains.
func SetLinger(fd int, sec int32) error {
	l := unix.Linger{Onoff: 1, Linger: sec}
	if err := unix.SetsockoptLinger(fd, unix.SOL_SOCKET, unix.SO_LINGER, &l); err != nil {
		return fmt.Errorf("setsockopt SO_LINGER: %w", err)
	}
	return nil
}

func SetNonblock(fd int, nonblocking bool) error {
	if err := unix.SetNonblock(fd, nonblocking); err != nil {
		return fmt.Errorf("set nonblock: %w", err)
	}
	return nil
}

func SetCloexec(fd int) error {
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFD, unix.FD_CLOEXEC); err != nil {
		return fmt.Errorf("set cloexec: %w", err)
	}
	return nil
}

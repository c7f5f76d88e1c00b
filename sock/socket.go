//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd

package sock

import (
	"errors"
	"fmt"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// socket creates a close-on-exec socket. The fork lock keeps a concurrent
// exec from inheriting it before the flag is set.
func socket(family, typ int) (int, error) {
	syscall.ForkLock.RLock()
	fd, err := unix.Socket(family, typ, 0)
	if err == nil {
		unix.CloseOnExec(fd)
	}
	syscall.ForkLock.RUnlock()
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}
	return fd, nil
}

func bind(network, address string, typ int) (int, error) {
	sa, family, err := resolve(network, address)
	if err != nil {
		return -1, err
	}
	fd, err := socket(family, typ)
	if err != nil {
		return -1, err
	}
	if family != unix.AF_UNIX && typ == unix.SOCK_STREAM {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			_ = unix.Close(fd)
			return -1, fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
		}
	}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("bind %s: %w", address, err)
	}
	return fd, nil
}

func listen(fd int) (int, error) {
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("listen: %w", err)
	}
	return fd, nil
}

// Listen opens a listener or a bound datagram socket for "network://address":
// tcp (the default) and unix listen, udp and unixgram only bind.
func Listen(addr string) (int, error) {
	network, address := ParseAddr(addr)
	switch network {
	case "tcp", "tcp4", "tcp6":
		return TCPListen(address)
	case "unix":
		return UnixListen(address)
	case "udp", "udp4", "udp6":
		return UDPBind(address)
	case "unixgram":
		return UnixBind(address, unix.SOCK_DGRAM)
	}
	return -1, fmt.Errorf("sock: unknown network %q", network)
}

func TCPListen(address string) (int, error) {
	fd, err := bind("tcp", address, unix.SOCK_STREAM)
	if err != nil {
		return -1, err
	}
	return listen(fd)
}

// Accept takes one pending connection. The new descriptor is non-blocking
// and close-on-exec. A non-blocking listener with nothing pending returns
// ErrAgain.
func Accept(fd int) (int, unix.Sockaddr, error) {
	for {
		nfd, sa, err := unix.Accept(fd)
		switch {
		case err == nil:
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return -1, nil, ErrAgain
		default:
			return -1, nil, fmt.Errorf("accept: %w", err)
		}
		unix.CloseOnExec(nfd)
		if err := unix.SetNonblock(nfd, true); err != nil {
			_ = unix.Close(nfd)
			return -1, nil, fmt.Errorf("set nonblock: %w", err)
		}
		return nfd, sa, nil
	}
}

func TCPAccept(fd int) (int, unix.Sockaddr, error)  { return Accept(fd) }
func UnixAccept(fd int) (int, unix.Sockaddr, error) { return Accept(fd) }

// TCPConnect connects to address and returns a non-blocking descriptor.
// A zero timeout waits as long as the kernel does.
func TCPConnect(address string, timeout time.Duration) (int, error) {
	sa, family, err := resolve("tcp", address)
	if err != nil {
		return -1, err
	}
	fd, err := socket(family, unix.SOCK_STREAM)
	if err != nil {
		return -1, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("set nonblock: %w", err)
	}
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := connect(fd, sa, deadline); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("connect %s: %w", address, err)
	}
	return fd, nil
}

// connect drives a non-blocking connect to completion, waiting for
// writability and then reading SO_ERROR.
func connect(fd int, sa unix.Sockaddr, deadline time.Time) error {
	switch err := unix.Connect(fd, sa); {
	case err == nil, errors.Is(err, unix.EISCONN):
		return nil
	case errors.Is(err, unix.EINPROGRESS), errors.Is(err, unix.EALREADY), errors.Is(err, unix.EINTR):
	default:
		return err
	}

	pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
	for {
		timeout := -1
		if !deadline.IsZero() {
			left := time.Until(deadline)
			if left <= 0 {
				return ErrTimeout
			}
			timeout = int((left + time.Millisecond - 1) / time.Millisecond)
		}
		n, err := unix.Poll(pfd, timeout)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return err
		}
		if n == 0 {
			continue
		}
		nerr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
		if err != nil {
			return err
		}
		switch err := unix.Errno(nerr); err {
		case 0, unix.EISCONN:
			return nil
		case unix.EINPROGRESS, unix.EALREADY, unix.EINTR:
			continue
		default:
			return err
		}
	}
}

func UDPBind(address string) (int, error) {
	return bind("udp", address, unix.SOCK_DGRAM)
}

// UDPConnect fixes the peer of a datagram socket so that Read and Write can
// be used instead of ReadFrom and WriteTo.
func UDPConnect(fd int, address string) error {
	sa, _, err := resolve("udp", address)
	if err != nil {
		return err
	}
	if err := unix.Connect(fd, sa); err != nil {
		return fmt.Errorf("connect %s: %w", address, err)
	}
	return nil
}

// UnixBind binds a unix socket of type typ (unix.SOCK_STREAM or
// unix.SOCK_DGRAM) to path.
func UnixBind(path string, typ int) (int, error) {
	network := "unix"
	if typ == unix.SOCK_DGRAM {
		network = "unixgram"
	}
	return bind(network, path, typ)
}

func UnixListen(path string) (int, error) {
	fd, err := UnixBind(path, unix.SOCK_STREAM)
	if err != nil {
		return -1, err
	}
	return listen(fd)
}

// UnixConnect connects a blocking unix socket of type typ to path.
func UnixConnect(path string, typ int) (int, error) {
	fd, err := socket(unix.AF_UNIX, typ)
	if err != nil {
		return -1, err
	}
	if err := unix.Connect(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("connect %s: %w", path, err)
	}
	return fd, nil
}

func Close(fd int) error {
	if fd < 0 {
		return unix.EBADF
	}
	return unix.Close(fd)
}

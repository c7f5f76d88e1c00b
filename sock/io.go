//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd

package sock

import (
	"errors"
	"fmt"
	"io"

	"golang.org/x/sys/unix"
)

// Read does one read. It returns ErrAgain when a non-blocking descriptor has
// nothing to read and io.EOF once the peer has closed.
func Read(fd int, p []byte) (int, error) {
	for {
		n, err := unix.Read(fd, p)
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return 0, ErrAgain
		case err != nil:
			return 0, fmt.Errorf("read: %w", err)
		case n == 0 && len(p) > 0:
			return 0, io.EOF
		}
		return n, nil
	}
}

// Write writes all of p unless the descriptor stops accepting data, in which
// case it returns the count written so far and ErrAgain.
func Write(fd int, p []byte) (int, error) {
	sent := 0
	for sent < len(p) {
		n, err := unix.Write(fd, p[sent:])
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return sent, ErrAgain
		case err != nil:
			return sent, fmt.Errorf("write: %w", err)
		case n == 0:
			return sent, io.ErrShortWrite
		}
		sent += n
	}
	return sent, nil
}

// ReadFrom receives one datagram and its sender.
func ReadFrom(fd int, p []byte) (int, unix.Sockaddr, error) {
	for {
		n, from, err := unix.Recvfrom(fd, p, 0)
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return 0, nil, ErrAgain
		case err != nil:
			return 0, nil, fmt.Errorf("recvfrom: %w", err)
		}
		return n, from, nil
	}
}

// WriteTo sends one datagram to sa.
func WriteTo(fd int, p []byte, sa unix.Sockaddr) error {
	for {
		err := unix.Sendto(fd, p, 0, sa)
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return ErrAgain
		case err != nil:
			return fmt.Errorf("sendto %s: %w", String(sa), err)
		}
		return nil
	}
}

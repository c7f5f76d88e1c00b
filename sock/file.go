//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd

package sock

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// filer describes an object that has ability to return os.File, such as
// *net.TCPListener or *net.UnixConn.
type filer interface {
	// File returns a copy of object's file descriptor.
	File() (*os.File, error)
}

// FD detaches a descriptor from an *os.File or a net listener or connection.
// The result is a duplicate the caller owns; closing x does not close it.
func FD(x any) (int, error) {
	var file *os.File
	switch x := x.(type) {
	case *os.File:
		file = x
	case filer:
		f, err := x.File()
		if err != nil {
			return -1, err
		}
		defer f.Close()
		file = f
	default:
		return -1, fmt.Errorf("sock: %T has no file descriptor", x)
	}

	fd, err := unix.Dup(int(file.Fd()))
	if err != nil {
		return -1, fmt.Errorf("dup: %w", err)
	}
	unix.CloseOnExec(fd)
	return fd, nil
}

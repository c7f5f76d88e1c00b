package reactor

import (
	"errors"
	"syscall"
)

var (
	ErrUnknownOp   = errors.New("reactor: unknown control operation")
	ErrCapacity    = errors.New("reactor: capacity out of range")
	ErrFDRange     = errors.New("reactor: descriptor out of range")
	ErrUnsupported = errors.New("reactor: backend not supported on this platform")
	ErrClosed      = errors.New("reactor: loop is freed")
	ErrActive      = errors.New("reactor: descriptor already registered for io")
)

// interrupted reports whether err is a signal wake-up, the only poll error
// that is not fatal.
func interrupted(err error) bool {
	return errors.Is(err, syscall.EINTR)
}

package reactor

import "sort"

// Poller is a readiness multiplexer backend. Exactly one is active per
// loop. Pollers are driven by the loop and never called concurrently.
type Poller interface {
	// Init allocates a readiness buffer sized to l.Cap() and opens the
	// kernel handle. On failure nothing is left allocated.
	Init(l *Loop) error
	// Close releases the kernel handle and the readiness buffer.
	Close() error
	// Realloc resizes the readiness buffer for a new loop capacity.
	Realloc(capacity int) error
	// Ctl translates an operation on fd into the native registration call.
	Ctl(op Op, fd int, events Flags) error
	// Poll blocks up to timeout milliseconds (-1 blocks indefinitely), fills
	// the loop's fired buffer and returns how many entries it wrote. A
	// signal wake-up returns (0, nil).
	Poll(l *Loop, timeout int) (int, error)
}

// fired is a ready descriptor reported by one Poll call.
type fired struct {
	fd     int
	events Flags
}

var backends = map[Backend]func() Poller{}

func register(b Backend, fn func() Poller) {
	backends[b] = fn
}

func newPoller(b Backend) (Poller, error) {
	fn, ok := backends[b]
	if !ok {
		return nil, ErrUnsupported
	}
	return fn(), nil
}

// Backends lists the backends compiled in for this platform.
func Backends() []Backend {
	list := make([]Backend, 0, len(backends))
	for b := range backends {
		list = append(list, b)
	}
	sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
	return list
}

// DefaultBackend returns the backend NewLoop uses when none is selected.
func DefaultBackend() Backend {
	return defaultBackend
}

package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const backendFake Backend = "fake"

func init() {
	register(backendFake, func() Poller { return &fakePoller{} })
}

// fakePoller replays scripted poll results and records registrations.
type fakePoller struct {
	batches  [][]fired
	err      error
	timeouts []int
	ctls     []fakeCtl
	capacity int
	closed   bool
	// clock, when set, is advanced by the poll timeout on empty polls
	clock *fakeClock
}

type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type fakeCtl struct {
	op     Op
	fd     int
	events Flags
}

func (p *fakePoller) Init(l *Loop) error {
	p.capacity = l.Cap()
	return nil
}

func (p *fakePoller) Close() error {
	p.closed = true
	return nil
}

func (p *fakePoller) Realloc(capacity int) error {
	p.capacity = capacity
	return nil
}

func (p *fakePoller) Ctl(op Op, fd int, events Flags) error {
	p.ctls = append(p.ctls, fakeCtl{op: op, fd: fd, events: events})
	return nil
}

func (p *fakePoller) Poll(l *Loop, timeout int) (int, error) {
	p.timeouts = append(p.timeouts, timeout)
	if p.err != nil {
		return 0, p.err
	}
	if len(p.batches) == 0 {
		if p.clock != nil && timeout > 0 {
			p.clock.Advance(time.Duration(timeout) * time.Millisecond)
		}
		return 0, nil
	}
	batch := p.batches[0]
	p.batches = p.batches[1:]
	return copy(l.fired, batch), nil
}

func newFakeLoop(t *testing.T, capacity int, opts ...Option) (*Loop, *fakePoller) {
	t.Helper()
	l, err := NewLoop(capacity, append([]Option{WithBackend(backendFake)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Free() })
	return l, l.poller.(*fakePoller)
}

// newClockedLoop is a fake loop whose timers run on a fake clock that empty
// polls advance, so timer tests never sleep.
func newClockedLoop(t *testing.T, capacity int, opts ...Option) (*Loop, *fakePoller, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	l, p := newFakeLoop(t, capacity, append([]Option{WithClock(clock.Now)}, opts...)...)
	p.clock = clock
	return l, p, clock
}

// nativeBackends lists the kernel backends, without test doubles.
func nativeBackends() []Backend {
	var list []Backend
	for _, b := range Backends() {
		if b != backendFake {
			list = append(list, b)
		}
	}
	return list
}

package reactor

import (
	"log/slog"
	"time"
)

// Loop is the event loop. It keeps non-owning references to registered
// events in a table indexed by descriptor, the timer heap, the scratch
// fired buffer and the backend state, and grows all of them together.
type Loop struct {
	maxfd  int // highest descriptor registered for IO; never shrinks
	cap    int
	lenIO  int
	fired  []fired
	events []*Event
	timers timerHeap
	poller Poller
	// pending is the timer popped by the running Dispatch, until it fires
	pending *Event

	backend  Backend
	logger   *slog.Logger
	observer Observer
	now      func() time.Time
	fatal    func(error)
}

// NewLoop creates a loop able to index descriptors below capacity before
// its first growth.
func NewLoop(capacity int, opts ...Option) (*Loop, error) {
	if capacity < 1 {
		return nil, ErrCapacity
	}
	o := resolveOptions(opts)
	poller, err := newPoller(o.backend)
	if err != nil {
		return nil, err
	}
	loop := &Loop{
		maxfd:    -1,
		cap:      capacity,
		fired:    make([]fired, capacity),
		events:   make([]*Event, capacity),
		timers:   make(timerHeap, 0, capacity),
		poller:   poller,
		backend:  o.backend,
		logger:   o.logger,
		observer: o.observer,
		now:      o.now,
		fatal:    o.fatal,
	}
	if err := poller.Init(loop); err != nil {
		return nil, err
	}
	return loop, nil
}

// Free closes the backend and drops the loop's arrays. Registered events are
// left untouched; they belong to the caller.
func (l *Loop) Free() error {
	if l.poller == nil {
		return ErrClosed
	}
	err := l.poller.Close()
	l.poller = nil
	l.fired = nil
	l.events = nil
	l.timers = nil
	l.pending = nil
	return err
}

func (l *Loop) MaxFD() int       { return l.maxfd }
func (l *Loop) Cap() int         { return l.cap }
func (l *Loop) Len() int         { return l.timers.Len() }
func (l *Loop) LenIO() int       { return l.lenIO }
func (l *Loop) Backend() Backend { return l.backend }

// Event returns the event stored for fd, or nil.
func (l *Loop) Event(fd int) *Event {
	if fd < 0 || fd >= len(l.events) {
		return nil
	}
	return l.events[fd]
}

// Peek returns the soonest armed timer without removing it.
func (l *Loop) Peek() *Event {
	return l.timers.peek()
}

func (l *Loop) Add(ev *Event) error { return l.Ctl(OpAdd, ev) }
func (l *Loop) Del(ev *Event) error { return l.Ctl(OpDel, ev) }
func (l *Loop) Mod(ev *Event) error { return l.Ctl(OpMod, ev) }

// Ctl adds, modifies or deletes ev. A backend failure is returned as is;
// registry changes made earlier in the same call are not rolled back.
func (l *Loop) Ctl(op Op, ev *Event) error {
	if l.poller == nil {
		return ErrClosed
	}
	switch op {
	case OpAdd:
		return l.add(ev)
	case OpDel:
		return l.del(ev)
	case OpMod:
		return l.mod(ev)
	default:
		return ErrUnknownOp
	}
}

func (l *Loop) add(ev *Event) error {
	if ev.Fd < 0 {
		return ErrFDRange
	}
	if ev.Events&IO != 0 && ev.active&IO != 0 {
		return ErrActive
	}
	if ev.Fd >= l.cap {
		if err := l.grow(ev.Fd); err != nil {
			return err
		}
	}
	if io := ev.Events & IO; io != 0 {
		if err := l.poller.Ctl(OpAdd, ev.Fd, io); err != nil {
			return err
		}
		ev.active |= io
		l.lenIO++
		if l.maxfd < ev.Fd {
			l.maxfd = ev.Fd
		}
	}
	if ev.Events&Timer != 0 {
		l.arm(ev)
	}
	l.events[ev.Fd] = ev
	return nil
}

func (l *Loop) del(ev *Event) error {
	var err error
	if io := ev.active & IO; io != 0 {
		err = l.poller.Ctl(OpDel, ev.Fd, io)
		ev.active &^= IO
		l.lenIO--
	}
	l.disarm(ev)
	if ev.Fd >= 0 && ev.Fd < len(l.events) {
		l.events[ev.Fd] = nil
	}
	return err
}

// mod moves ev from its registered flags to ev.Events.
func (l *Loop) mod(ev *Event) error {
	if ev.Fd < 0 {
		return ErrFDRange
	}
	if ev.Fd >= l.cap {
		if err := l.grow(ev.Fd); err != nil {
			return err
		}
	}
	from, to := ev.active&IO, ev.Events&IO
	switch {
	case from == 0 && to != 0:
		if err := l.poller.Ctl(OpAdd, ev.Fd, to); err != nil {
			return err
		}
		l.lenIO++
		if l.maxfd < ev.Fd {
			l.maxfd = ev.Fd
		}
	case from != 0 && to == 0:
		if err := l.poller.Ctl(OpDel, ev.Fd, from); err != nil {
			return err
		}
		l.lenIO--
	case from != to:
		if err := l.poller.Ctl(OpMod, ev.Fd, to); err != nil {
			return err
		}
	}
	ev.active = ev.active&^IO | to

	switch {
	case ev.Events&Timer == 0:
		l.disarm(ev)
	case ev.Timeout != 0 || !ev.Armed():
		l.arm(ev)
	default:
		l.timers.fix(ev)
	}
	l.events[ev.Fd] = ev
	return nil
}

// arm computes the expiry from Timeout (unless the caller set Exp) and
// pushes ev, rescheduling it if it is still armed.
func (l *Loop) arm(ev *Event) {
	if l.pending == ev {
		l.pending = nil
	}
	if ev.Timeout != 0 {
		ev.Exp = l.now().Add(ev.Timeout)
	}
	if ev.Armed() {
		l.timers.fix(ev)
	} else {
		l.timers.push(ev)
	}
	ev.active |= Timer
}

func (l *Loop) disarm(ev *Event) {
	if l.pending == ev {
		l.pending = nil
	}
	if ev.Armed() {
		l.timers.remove(ev)
	}
	ev.active &^= Timer
}

// grow extends the loop by 1.5x steps until fd fits. The backend is asked
// first so that a refusal leaves the loop unchanged.
func (l *Loop) grow(fd int) error {
	capacity := l.cap
	for fd >= capacity {
		capacity += max(capacity/2, 1)
	}
	if err := l.poller.Realloc(capacity); err != nil {
		return err
	}

	events := make([]*Event, capacity)
	copy(events, l.events)
	// a callback may grow the loop while Dispatch is walking the batch
	firedBuf := make([]fired, capacity)
	copy(firedBuf, l.fired)
	timers := make(timerHeap, len(l.timers), capacity)
	copy(timers, l.timers)

	l.logger.Debug("loop grown", slog.Int("from", l.cap), slog.Int("to", capacity),
		slog.String("backend", string(l.backend)))
	l.observer.Grown(l.cap, capacity)
	l.events, l.fired, l.timers, l.cap = events, firedBuf, timers, capacity
	return nil
}

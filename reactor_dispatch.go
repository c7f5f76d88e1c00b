package reactor

import (
	"log/slog"
	"math"
	"time"
)

// Dispatch polls once for the requested events and invokes the callbacks of
// those that fired: IO callbacks first, in backend order, then at most one
// timer. It returns the number of callbacks invoked, or the first negative
// callback result, in which case the rest of the poll batch is dropped.
//
// The earliest timer bounds the poll. If IO wakes the poll before that timer
// is due, the timer is not fired early: it stays armed and a later Dispatch
// fires it. A callback may Free the loop; Dispatch then returns at once.
func (l *Loop) Dispatch(flags Flags) int {
	if flags == None || l.poller == nil {
		return 0
	}

	var tev *Event
	timeout := -1
	if flags&Timer != 0 {
		if tev = l.timers.pop(); tev != nil {
			tev.active &^= Timer
			l.pending = tev
			timeout = remaining(tev.Exp, l.now())
		}
	}

	polled := 0
	switch {
	case tev != nil && timeout == 0:
		// due already; IO waits for the next call
	case flags&IO != 0:
		n := l.poll(timeout)
		for i := 0; i < n; i++ {
			f := l.fired[i]
			ev := l.Event(f.fd)
			if ev == nil || ev.active&IO == 0 || ev.Callback == nil {
				continue
			}
			ev.Revents = f.events
			l.observer.Dispatched(f.events)
			if rv := ev.Callback(l, ev); rv < 0 {
				l.requeue(tev)
				return rv
			}
			polled++
			if l.poller == nil {
				// freed by the callback
				return polled
			}
		}
		if tev != nil && remaining(tev.Exp, l.now()) > 0 {
			l.requeue(tev)
			return polled
		}
	case tev != nil:
		time.Sleep(tev.Exp.Sub(l.now()))
	}

	// an IO callback may have deleted or re-armed the timer
	if tev == nil || l.pending != tev {
		return polled
	}
	l.pending = nil
	if tev.active&IO != 0 {
		if err := l.del(tev); err != nil {
			l.logger.Warn("timer io unregister failed", slog.Int("fd", tev.Fd), slog.Any("err", err))
		}
	}
	if tev.Callback != nil {
		tev.Revents = Timer
		l.observer.Dispatched(Timer)
		if rv := tev.Callback(l, tev); rv < 0 {
			return rv
		}
		polled++
	}
	return polled
}

// Wait dispatches all events until the loop holds neither timers nor IO
// registrations, and returns the total number of callbacks invoked or the
// first negative callback result.
func (l *Loop) Wait() int {
	total := 0
	for l.poller != nil && l.timers.Len()+l.lenIO > 0 {
		n := l.Dispatch(All)
		if n < 0 {
			return n
		}
		total += n
	}
	return total
}

func (l *Loop) poll(timeout int) int {
	start := time.Now()
	n, err := l.poller.Poll(l, timeout)
	if err != nil {
		l.logger.Error("poll failed", slog.String("backend", string(l.backend)), slog.Any("err", err))
		l.fatal(err)
		return 0
	}
	l.observer.Polled(l.backend, n, time.Since(start))
	return n
}

// requeue puts back a timer that was popped but not fired, unless a
// callback deleted or re-armed it in the meantime.
func (l *Loop) requeue(tev *Event) {
	if tev == nil || l.pending != tev {
		return
	}
	l.pending = nil
	l.timers.push(tev)
	tev.active |= Timer
}

// remaining returns the milliseconds from now until exp, rounded up and
// clamped to [0, MaxInt32]: 900us left is 1ms, not 0. The kernel reads the
// poll timeout as a C int, so a longer wait wakes early and the timer is
// requeued.
func remaining(exp, now time.Time) int {
	d := exp.Sub(now)
	if d <= 0 {
		return 0
	}
	ms := (d + time.Millisecond - 1) / time.Millisecond
	if ms > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(ms)
}

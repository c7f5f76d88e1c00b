package reactor

import "time"

// Event is an IO watch, a timer, or both. Events are owned by the caller;
// the loop only keeps a reference between Add and Del, so an Event must stay
// alive (and must not be copied) while it is registered.
type Event struct {
	// Fd is the descriptor for an IO event. Pure timers still need a value
	// >= 0 that no other pure timer uses, because the loop indexes its event
	// table by Fd.
	Fd int
	// Events to watch: Read and/or Write, Timer, or both.
	Events Flags
	// Timeout is the timer duration relative to the Add call. Zero means Exp
	// was already set by the caller, which is how a callback re-arms itself
	// on a fixed schedule.
	Timeout  time.Duration
	Callback Callback
	// Data is opaque user data, typically the state that owns the event.
	Data any

	// Exp is the absolute expiry of a timer, computed by the loop.
	Exp time.Time
	// Revents holds the events that fired, set before Callback is invoked.
	Revents Flags

	slot   int   // 1-based heap slot, 0 when not in the heap
	active Flags // flags currently registered with the loop
}

// ID returns the heap slot of an armed timer, or -1 if the event is not in
// the timer heap.
func (ev *Event) ID() int {
	return ev.slot - 1
}

// Armed reports whether the event is waiting in the timer heap.
func (ev *Event) Armed() bool {
	return ev.slot > 0
}

// Package reactor is a single-threaded, non-blocking I/O reactor. It puts
// epoll, kqueue and select(2) behind one loop API and merges readiness
// dispatch with one-shot timers ordered by absolute expiry.
//
// A Loop is not safe for concurrent use. Every method must be called from
// the goroutine that runs Dispatch or Wait.
package reactor

// Flags is a bitmask of the events an Event is interested in, or of the
// events that fired for it.
type Flags int

const (
	None  Flags = 0      // No events registered.
	Read  Flags = 1 << 1 // Fire when descriptor is readable.
	Write Flags = 1 << 2 // Fire when descriptor is writable.
	Timer Flags = 1 << 3 // Fire when the expiry is reached.

	IO  = Read | Write
	All = Read | Write | Timer
)

func (f Flags) String() string {
	if f == None {
		return "none"
	}
	s := ""
	for _, b := range []struct {
		flag Flags
		name string
	}{{Read, "read"}, {Write, "write"}, {Timer, "timer"}} {
		if f&b.flag == 0 {
			continue
		}
		if s != "" {
			s += "|"
		}
		s += b.name
	}
	return s
}

// Op is a control operation passed to Loop.Ctl and Poller.Ctl.
type Op int

const (
	OpAdd Op = 1 // 添加事件
	OpDel Op = 2 // 删除事件
	OpMod Op = 3 // 修改事件
)

func (op Op) String() string {
	switch op {
	case OpAdd:
		return "add"
	case OpDel:
		return "del"
	case OpMod:
		return "mod"
	}
	return "unknown"
}

// Abort is the conventional value a Callback returns to stop the current
// Dispatch or Wait call.
const Abort = -1

// Callback is invoked with ev.Revents set to the events that fired. A
// negative result aborts the running Dispatch/Wait and is returned from it
// verbatim; any other result continues dispatching.
type Callback func(l *Loop, ev *Event) int

// Backend names a readiness multiplexer implementation.
type Backend string

const (
	BackendEpoll  Backend = "epoll"
	BackendKqueue Backend = "kqueue"
	BackendSelect Backend = "select"
)

package reactor

import "container/heap"

// timerHeap is a min-heap of armed timers ordered by Exp. Equal expiries
// have no defined order.
type timerHeap []*Event

func (h timerHeap) Len() int           { return len(h) }
func (h timerHeap) Less(i, j int) bool { return h[i].Exp.Before(h[j].Exp) }

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].slot = i + 1
	h[j].slot = j + 1
}

func (h *timerHeap) Push(x any) {
	ev := x.(*Event)
	ev.slot = len(*h) + 1
	*h = append(*h, ev)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	ev.slot = 0
	*h = old[:n-1]
	return ev
}

func (h *timerHeap) push(ev *Event) {
	heap.Push(h, ev)
}

// pop removes and returns the soonest timer, or nil if there is none.
func (h *timerHeap) pop() *Event {
	if len(*h) == 0 {
		return nil
	}
	return heap.Pop(h).(*Event)
}

// remove takes an armed timer out of the heap from whatever slot it is in.
func (h *timerHeap) remove(ev *Event) {
	if ev.slot == 0 {
		return
	}
	heap.Remove(h, ev.slot-1)
}

// fix restores the order after ev.Exp changed in place.
func (h *timerHeap) fix(ev *Event) {
	heap.Fix(h, ev.slot-1)
}

func (h timerHeap) peek() *Event {
	if len(h) == 0 {
		return nil
	}
	return h[0]
}

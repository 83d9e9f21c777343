// Package events implements the event bus and the cooperative service loop
// that sequences trigger detection, USB polling, update processing, and
// status blinking (spec.md §4.6).
//
// Grounded on crispy-common's EventBus (RefCell<heapless::Vec<Event,32>>,
// publish/consume/has_event) and on services/mod.rs's closed ServiceType
// dispatch, translated to Go idiom per spec.md §9: "prefer a closed tagged
// variant with a process(ctx) dispatch rather than dynamic dispatch
// tables."
package events

// Event is a value published on the bus.
type Event uint8

const (
	RequestBoot Event = iota
	RequestUpdate
)

// BusCapacity bounds the number of pending events (spec.md §4.6).
const BusCapacity = 32

// Bus is a bounded FIFO of Event values. It is not safe for concurrent use;
// the service loop is single-threaded by design (spec.md §5).
type Bus struct {
	buf [BusCapacity]Event
	n   int
}

// Publish appends e to the bus. If the bus is full, the event is dropped
// (spec.md §4.6: "drops with warning on overflow"); the warning itself is
// the caller's responsibility, signalled by a false return.
func (b *Bus) Publish(e Event) bool {
	if b.n >= BusCapacity {
		return false
	}
	b.buf[b.n] = e
	b.n++
	return true
}

// HasEvent reports whether any pending event equals e, without removing it.
func (b *Bus) HasEvent(e Event) bool {
	for i := 0; i < b.n; i++ {
		if b.buf[i] == e {
			return true
		}
	}
	return false
}

// Consume removes every pending event equal to e and reports whether any
// were removed.
func (b *Bus) Consume(e Event) bool {
	found := false
	w := 0
	for r := 0; r < b.n; r++ {
		if b.buf[r] == e {
			found = true
			continue
		}
		b.buf[w] = b.buf[r]
		w++
	}
	b.n = w
	return found
}

// Len reports the number of pending events.
func (b *Bus) Len() int {
	return b.n
}

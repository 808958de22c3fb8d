package live

import "github.com/mortality-lab/telemetry/event"

// =============================================================================
// EVENT RING
// =============================================================================

// Ring is a bounded window over the most recent live events. Appending past
// capacity evicts the oldest entry; evictions are counted so the drop rate
// stays observable.
type Ring struct {
	capacity int
	buf      []*event.Event
	start    int
	size     int
	dropped  int
}

// NewRing returns an empty ring holding at most capacity events.
// A non-positive capacity falls back to 1.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{capacity: capacity, buf: make([]*event.Event, capacity)}
}

// Append adds e as the newest entry. Reports whether an older entry was
// evicted to make room.
func (r *Ring) Append(e *event.Event) bool {
	if r.size == r.capacity {
		r.buf[r.start] = e
		r.start = (r.start + 1) % r.capacity
		r.dropped++
		return true
	}
	r.buf[(r.start+r.size)%r.capacity] = e
	r.size++
	return false
}

// Events returns the buffered events, oldest first.
func (r *Ring) Events() []*event.Event {
	out := make([]*event.Event, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.start+i)%r.capacity]
	}
	return out
}

// Len returns how many events are buffered.
func (r *Ring) Len() int { return r.size }

// Capacity returns the maximum number of buffered events.
func (r *Ring) Capacity() int { return r.capacity }

// Dropped returns how many events have been evicted since construction.
func (r *Ring) Dropped() int { return r.dropped }

// Clone returns an independent copy. Events themselves are immutable and
// shared.
func (r *Ring) Clone() *Ring {
	out := &Ring{capacity: r.capacity, start: r.start, size: r.size, dropped: r.dropped}
	out.buf = make([]*event.Event, len(r.buf))
	copy(out.buf, r.buf)
	return out
}

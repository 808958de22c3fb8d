package live

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mortality-lab/telemetry/event"
)

func ringEvent(seq int64) *event.Event {
	return &event.Event{Seq: seq, Kind: event.KindAgentMessage, TSMs: seq * 1000}
}

func TestRingAppendWithinCapacity(t *testing.T) {
	// Appends below capacity keep everything and evict nothing.
	r := NewRing(3)

	assert.False(t, r.Append(ringEvent(1)))
	assert.False(t, r.Append(ringEvent(2)))

	require.Equal(t, 2, r.Len())
	assert.Equal(t, 3, r.Capacity())
	assert.Equal(t, 0, r.Dropped())

	events := r.Events()
	require.Len(t, events, 2)
	assert.Equal(t, int64(1), events[0].Seq)
	assert.Equal(t, int64(2), events[1].Seq)
}

func TestRingEvictsOldestWhenFull(t *testing.T) {
	// A full ring drops the oldest entry and counts the eviction.
	r := NewRing(2)

	r.Append(ringEvent(1))
	r.Append(ringEvent(2))
	assert.True(t, r.Append(ringEvent(3)))
	assert.True(t, r.Append(ringEvent(4)))

	require.Equal(t, 2, r.Len())
	assert.Equal(t, 2, r.Dropped())

	events := r.Events()
	require.Len(t, events, 2)
	assert.Equal(t, int64(3), events[0].Seq)
	assert.Equal(t, int64(4), events[1].Seq)
}

func TestRingNonPositiveCapacityFallsBack(t *testing.T) {
	r := NewRing(0)

	assert.Equal(t, 1, r.Capacity())
	r.Append(ringEvent(1))
	assert.True(t, r.Append(ringEvent(2)))
	assert.Equal(t, int64(2), r.Events()[0].Seq)
}

func TestRingCloneIsIndependent(t *testing.T) {
	// Appending to the original never shows up in an earlier clone.
	r := NewRing(4)
	r.Append(ringEvent(1))

	cl := r.Clone()
	r.Append(ringEvent(2))

	assert.Equal(t, 2, r.Len())
	require.Equal(t, 1, cl.Len())
	assert.Equal(t, int64(1), cl.Events()[0].Seq)
	assert.Equal(t, 0, cl.Dropped())
}

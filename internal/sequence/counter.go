// Package sequence assigns the global fill order to canisters.
package sequence

import (
	"sync/atomic"

	"github.com/arloliu/fillsched/types"
)

// Counter is a monotonic order/trip counter implementing types.Sequencer.
//
// Counter is safe for concurrent use, but it is meant to have a single owner:
// two counters seeded from the same high-water mark would hand out duplicates.
type Counter struct {
	order atomic.Int64
	trip  atomic.Int64
}

var _ types.Sequencer = (*Counter)(nil)

// NewCounter creates a counter whose next values are orderStart+1 and tripStart+1.
//
// Parameters:
//   - orderStart: Highest order number already handed out (0 for none)
//   - tripStart: Highest trolley sequence already handed out (0 for none)
//
// Returns:
//   - *Counter: Initialized counter
func NewCounter(orderStart, tripStart int64) *Counter {
	c := &Counter{}
	c.order.Store(orderStart)
	c.trip.Store(tripStart)

	return c
}

// NextOrder returns the next global order number.
func (c *Counter) NextOrder() int64 {
	return c.order.Add(1)
}

// NextTrip returns the next trolley sequence number.
func (c *Counter) NextTrip() int64 {
	return c.trip.Add(1)
}

// Current returns the last values handed out.
func (c *Counter) Current() (orderNo, trolleySequence int64) {
	return c.order.Load(), c.trip.Load()
}

// Advance raises the counter to at least (orderNo, trolleySequence).
//
// Values never move backwards, so Advance can be called with a stale
// high-water mark.
func (c *Counter) Advance(orderNo, trolleySequence int64) {
	raise(&c.order, orderNo)
	raise(&c.trip, trolleySequence)
}

func raise(v *atomic.Int64, to int64) {
	for {
		cur := v.Load()
		if cur >= to || v.CompareAndSwap(cur, to) {
			return
		}
	}
}

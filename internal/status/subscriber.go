package status

import (
	"sync"
	"time"

	"github.com/arloliu/fillsched/types"
)

// Event describes a change to a canister record.
//
// From equals To for changes that leave the status alone, such as a reroute
// or a misplacement flag.
type Event struct {
	CanisterID types.CanisterID
	From       types.CanisterStatus
	To         types.CanisterStatus
	StationID  *types.StationID
	// FromStationID is the station the canister was bound to before the change.
	FromStationID *types.StationID
	TrolleyID     *types.TrolleyID
	LocationID    *types.LocationID
	Misplaced     bool
	At            time.Time
}

// StatusChanged reports whether the event is a status transition.
func (e Event) StatusChanged() bool {
	return e.From != e.To
}

// subscriber is a helper for managing event subscriptions.
type subscriber struct {
	ch     chan Event
	mu     sync.Mutex
	closed bool
}

// trySend sends an event to the subscriber's channel without blocking.
func (s *subscriber) trySend(ev Event, metrics types.StatusMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	select {
	case s.ch <- ev:
	default:
		metrics.RecordEventDropped()
	}
}

// close safely closes the subscriber's channel.
func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

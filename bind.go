package fillsched

import (
	"context"
	"fmt"
	"sort"

	"github.com/arloliu/fillsched/internal/partition"
	"github.com/arloliu/fillsched/internal/trolley"
	"github.com/arloliu/fillsched/types"
)

// BindReusedTrip gives the earliest deferred trip of a trolley its drawer locations.
//
// A trip that reuses a trolley is committed without locations. Once none of
// the trolley's canisters is PENDING or IN_PROGRESS with a location, the
// trip with the lowest trolley sequence still waiting on the trolley is
// placed drawer by drawer and its locations are committed in one
// transaction. The scheduler calls this itself when the status machine
// reports the trolley freed.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - id: Trolley to bind
//
// Returns:
//   - AssignmentResult: Assignments of the bound canisters
//   - error: *ReuseConflictError if the trolley is still occupied or not
//     confirmed empty, ErrNoDeferredTrip if nothing waits on it, ErrDrawerOverflow
func (s *Scheduler) BindReusedTrip(ctx context.Context, id TrolleyID) (AssignmentResult, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	onTrolley, err := s.collab.Canisters.CanistersOnTrolley(ctx, id)
	if err != nil {
		return nil, wrapCollaborator(ctx, fmt.Sprintf("read canisters on trolley %s", id), err)
	}

	deferred := nextDeferredTrip(onTrolley, id)
	if len(deferred) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoDeferredTrip, id)
	}

	runID := deferred[0].RunID
	seq := *deferred[0].TrolleySequence
	bindID := fmt.Sprintf("%s-bind-%d", runID, seq)

	if occupants := trolley.Occupants(onTrolley, id); len(occupants) > 0 {
		return nil, s.reject(ctx, bindID, &ReuseConflictError{TrolleyID: id, Occupants: occupants})
	}
	if err := s.confirmEmpty(ctx, id, len(onTrolley) > len(deferred)); err != nil {
		return nil, s.reject(ctx, bindID, err)
	}

	layout, err := s.collab.Trolleys.DrawerLayout(ctx, id)
	if err != nil {
		return nil, wrapCollaborator(ctx, fmt.Sprintf("read drawer layout of %s", id), err)
	}

	placements, err := trolley.FillDrawers(layout, deferredTrip(deferred))
	if err != nil {
		return nil, fmt.Errorf("bind trip %d on trolley %s: %w", seq, id, err)
	}
	located := make(map[CanisterID]*LocationID, len(placements))
	for _, p := range placements {
		located[p.CanisterID] = p.LocationID
	}

	result := make(AssignmentResult, len(deferred))
	for i := range deferred {
		c := &deferred[i]
		c.LocationID = located[c.ID]
		result[c.ID] = assignmentOf(c)
	}

	if err := checkCancelled(ctx); err != nil {
		return nil, s.reject(ctx, bindID, err)
	}
	if err := s.collab.Committer.Commit(ctx, types.Commit{RunID: bindID, Canisters: deferred}); err != nil {
		return nil, s.reject(ctx, bindID, wrapCollaborator(ctx, "commit binding "+bindID, err))
	}

	s.metrics.RecordCommit(true)
	s.logger.Info("deferred trip bound",
		"trolley_id", id,
		"trolley_sequence", seq,
		"run_id", runID,
		"canisters", len(deferred),
	)

	s.publish(ctx, runID, deferred)

	if err := s.hooks.OnCommitted(ctx, bindID, result); err != nil {
		s.logger.Error("committed hook failed", "run_id", bindID, "error", err)
	}

	return result, nil
}

// nextDeferredTrip returns the unbound canisters of the trolley's lowest
// waiting trolley sequence, in fill order.
func nextDeferredTrip(onTrolley []types.Canister, id TrolleyID) []types.Canister {
	var lowest int64
	found := false
	for i := range onTrolley {
		c := &onTrolley[i]
		if !isDeferred(c, id) || c.TrolleySequence == nil {
			continue
		}
		if !found || *c.TrolleySequence < lowest {
			lowest = *c.TrolleySequence
			found = true
		}
	}
	if !found {
		return nil
	}

	var trip []types.Canister
	for i := range onTrolley {
		c := onTrolley[i]
		if isDeferred(&c, id) && c.TrolleySequence != nil && *c.TrolleySequence == lowest {
			trip = append(trip, c.Clone())
		}
	}

	sort.SliceStable(trip, func(i, j int) bool {
		return orderOf(&trip[i]) < orderOf(&trip[j])
	})

	return trip
}

// deferredTrip rebuilds the drawer demand of a deferred trip from its records.
//
// Devices keep the order of their first canister, and canisters are placed
// in fill order within each quadrant.
func deferredTrip(canisters []types.Canister) trolley.Trip {
	var batches []partition.MiniBatch
	index := make(map[DeviceID]int)

	for i := range canisters {
		c := &canisters[i]
		bi, ok := index[c.DeviceID]
		if !ok {
			bi = len(batches)
			index[c.DeviceID] = bi
			batches = append(batches, partition.MiniBatch{
				DeviceID:  c.DeviceID,
				Index:     bi,
				Quadrants: make(map[Quadrant]*types.CanisterSet),
			})
		}

		b := &batches[bi]
		set, ok := b.Quadrants[c.Quadrant]
		if !ok {
			set = types.NewCanisterSet()
			b.Quadrants[c.Quadrant] = set
		}
		if set.Add(c.ID) {
			b.TotalCanisters++
		}
	}

	return trolley.Trip{Batches: batches}
}

func assignmentOf(c *types.Canister) CanisterAssignment {
	ca := CanisterAssignment{DrawerLocationID: c.LocationID}
	if c.TrolleyID != nil {
		ca.TrolleyID = *c.TrolleyID
	}
	if c.OrderNo != nil {
		ca.OrderNo = *c.OrderNo
	}
	if c.TrolleySequence != nil {
		ca.TrolleySequence = *c.TrolleySequence
	}
	if c.StationID != nil {
		ca.StationID = *c.StationID
	}

	return ca
}

func orderOf(c *types.Canister) int64 {
	if c.OrderNo == nil {
		return 0
	}

	return *c.OrderNo
}

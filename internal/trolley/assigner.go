package trolley

import (
	"fmt"
	"sort"

	"github.com/arloliu/fillsched/internal/logger"
	"github.com/arloliu/fillsched/types"
)

// AssignedTrip is a trip bound to a trolley and a trolley sequence number.
type AssignedTrip struct {
	Trip
	TrolleyID types.TrolleyID
	Sequence  int64
	// Reused is set when the trolley already carried an earlier trip of this run.
	// Placements of a reused trip have no locations until the trolley is bound.
	Reused     bool
	Placements []Placement
}

// Assigner zips trips against trolleys.
type Assigner struct {
	allowReuse bool
	logger     types.Logger
}

// NewAssigner creates a trolley assigner.
//
// Parameters:
//   - allowReuse: Permit more trips than trolleys by repeating trolleys cyclically
//   - log: Logger (nil for no logging)
//
// Returns:
//   - *Assigner: Initialized assigner
func NewAssigner(allowReuse bool, log types.Logger) *Assigner {
	if log == nil {
		log = logger.NewNop()
	}

	return &Assigner{allowReuse: allowReuse, logger: log}
}

// Assign binds trips to trolleys in cyclic order.
//
// Trip i goes to trolleys[i % len(trolleys)] and receives the next trolley
// sequence from seq. The first use of a trolley fills its drawers; a repeat
// use leaves locations unbound.
//
// Parameters:
//   - trips: Trips in emission order
//   - trolleys: Ranked trolley IDs
//   - layouts: Drawer layout per trolley
//   - seq: Sequencer for trolley-sequence numbers
//
// Returns:
//   - []AssignedTrip: Trips with trolley, sequence and placements
//   - error: ErrTrolleyExhausted when no trolley can take the trips, ErrDrawerOverflow on fill failure
func (a *Assigner) Assign(
	trips []Trip,
	trolleys []types.TrolleyID,
	layouts map[types.TrolleyID]types.DrawerLayout,
	seq types.Sequencer,
) ([]AssignedTrip, error) {
	if len(trips) == 0 {
		return nil, nil
	}
	if len(trolleys) == 0 {
		return nil, fmt.Errorf("%w: %d trips, no trolley available", types.ErrTrolleyExhausted, len(trips))
	}
	if !a.allowReuse && len(trips) > len(trolleys) {
		return nil, fmt.Errorf("%w: %d trips, %d trolleys, reuse disabled",
			types.ErrTrolleyExhausted, len(trips), len(trolleys))
	}

	out := make([]AssignedTrip, 0, len(trips))
	for i, trip := range trips {
		at := AssignedTrip{
			Trip:      trip,
			TrolleyID: trolleys[i%len(trolleys)],
			Sequence:  seq.NextTrip(),
			Reused:    i >= len(trolleys),
		}

		if at.Reused {
			at.Placements = DeferredPlacements(trip)
		} else {
			placements, err := FillDrawers(layouts[at.TrolleyID], trip)
			if err != nil {
				return nil, fmt.Errorf("trip %d on trolley %s: %w", at.Sequence, at.TrolleyID, err)
			}
			at.Placements = placements
		}

		a.logger.Debug("trip assigned",
			"trip", trip.Index,
			"trolley_id", at.TrolleyID,
			"trolley_sequence", at.Sequence,
			"reused", at.Reused,
			"canisters", len(at.Placements),
		)
		out = append(out, at)
	}

	return out, nil
}

// RankTrolleys orders trolleys so that those already used by this batch come first.
//
// The relative order within each group is preserved.
//
// Parameters:
//   - available: Trolleys in pool order
//   - usedByBatch: Trolleys that carried earlier trips of this batch
//
// Returns:
//   - []types.TrolleyID: Ranked trolleys
func RankTrolleys(available []types.TrolleyID, usedByBatch map[types.TrolleyID]bool) []types.TrolleyID {
	out := append([]types.TrolleyID(nil), available...)
	sort.SliceStable(out, func(i, j int) bool {
		return usedByBatch[out[i]] && !usedByBatch[out[j]]
	})

	return out
}

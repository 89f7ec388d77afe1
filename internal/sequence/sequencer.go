package sequence

import (
	"sort"

	"github.com/arloliu/fillsched/internal/closure"
	"github.com/arloliu/fillsched/internal/trolley"
	"github.com/arloliu/fillsched/types"
)

// Entry is the sequenced fill slot of one canister.
type Entry struct {
	CanisterID types.CanisterID
	// PackID is the pack through which the canister was reached.
	PackID  types.PackID
	OrderNo int64
	// StationID is nil when sequencing without a station assignment.
	StationID *types.StationID
}

// Order assigns order numbers to every canister of a trip.
//
// The algorithm:
//  1. Sort the trip's packs by delivery date, then queue position
//  2. For each unvisited pack, expand its sharing closure within the trip
//  3. Give each closure canister the next order number in closure order,
//     tagging it with the station of the pack it was reached through
//
// A canister reachable through several packs is tagged once, by the first
// pack reaching it. Packs visited through an earlier closure are skipped.
//
// Parameters:
//   - trip: Trip to sequence
//   - packStation: Pack to station mapping (nil for order numbers only)
//   - seq: Order number source
//
// Returns:
//   - []Entry: Entries in order-number order
func Order(trip trolley.Trip, packStation map[types.PackID]types.StationID, seq types.Sequencer) []Entry {
	packs := trip.Packs()
	sort.SliceStable(packs, func(i, j int) bool {
		if !packs[i].DeliveryDate.Equal(packs[j].DeliveryDate) {
			return packs[i].DeliveryDate.Before(packs[j].DeliveryDate)
		}

		return packs[i].QueuePosition < packs[j].QueuePosition
	})

	graph := closure.NewGraph(packs)
	visited := make(map[types.PackID]struct{}, len(packs))
	tagged := make(map[types.CanisterID]struct{})
	entries := make([]Entry, 0, trip.CanisterCount())

	for _, pk := range graph.Packs() {
		if _, ok := visited[pk.ID]; ok {
			continue
		}

		for _, member := range graph.Closure(pk.ID) {
			visited[member.ID] = struct{}{}

			var station *types.StationID
			if packStation != nil {
				if st, ok := packStation[member.ID]; ok {
					station = types.Ptr(st)
				}
			}

			for _, c := range member.CanisterIDs {
				if _, ok := tagged[c]; ok {
					continue
				}
				tagged[c] = struct{}{}
				entries = append(entries, Entry{
					CanisterID: c,
					PackID:     member.ID,
					OrderNo:    seq.NextOrder(),
					StationID:  station,
				})
			}
		}
	}

	return entries
}

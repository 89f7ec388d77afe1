package trolley

import (
	"fmt"

	"github.com/arloliu/fillsched/types"
)

// Placement is the trolley position of one canister within a trip.
type Placement struct {
	CanisterID types.CanisterID
	DeviceID   types.DeviceID
	Quadrant   types.Quadrant

	// DrawerID and LocationID are nil when binding is deferred.
	DrawerID   *types.DrawerID
	LocationID *types.LocationID
}

// FillDrawers binds a trip's canisters to drawer locations.
//
// Each (device, quadrant) set is placed drawer-by-drawer: a drawer holds one
// quadrant only, and locations are consumed in the drawer's physical order. A
// quadrant larger than one drawer continues in the next unused drawer.
//
// Parameters:
//   - layout: Trolley drawers in physical order
//   - trip: Trip whose canisters are placed
//
// Returns:
//   - []Placement: One placement per canister, in placement order
//   - error: ErrDrawerOverflow if the trolley runs out of drawers
func FillDrawers(layout types.DrawerLayout, trip Trip) ([]Placement, error) {
	placements := make([]Placement, 0, trip.CanisterCount())
	next := 0

	for _, b := range trip.Batches {
		for _, q := range b.QuadrantOrder() {
			ids := b.Quadrants[q].IDs()
			for len(ids) > 0 {
				for next < len(layout) && len(layout[next].Locations) == 0 {
					next++
				}
				if next >= len(layout) {
					return nil, fmt.Errorf("%w: device %s quadrant %d has %d unplaced canisters",
						types.ErrDrawerOverflow, b.DeviceID, q, len(ids))
				}

				drawer := layout[next]
				next++

				n := min(len(ids), len(drawer.Locations))
				for i := range n {
					placements = append(placements, Placement{
						CanisterID: ids[i],
						DeviceID:   b.DeviceID,
						Quadrant:   q,
						DrawerID:   types.Ptr(drawer.ID),
						LocationID: types.Ptr(drawer.Locations[i]),
					})
				}
				ids = ids[n:]
			}
		}
	}

	return placements, nil
}

// DeferredPlacements lists a trip's canisters without locations.
//
// Used when a trip reuses a trolley: the binding happens once the trolley is
// confirmed empty.
func DeferredPlacements(trip Trip) []Placement {
	placements := make([]Placement, 0, trip.CanisterCount())
	for _, b := range trip.Batches {
		for _, q := range b.QuadrantOrder() {
			for _, id := range b.Quadrants[q].IDs() {
				placements = append(placements, Placement{CanisterID: id, DeviceID: b.DeviceID, Quadrant: q})
			}
		}
	}

	return placements
}

// Fits reports whether the trip can be placed on a trolley with layout.
func Fits(layout types.DrawerLayout, trip Trip) bool {
	_, err := FillDrawers(layout, trip)
	return err == nil
}

// EmptyLocations returns the trolley's free locations in physical order.
//
// Parameters:
//   - layout: Trolley drawers in physical order
//   - occupied: Locations held by unresolved canisters
//
// Returns:
//   - []types.LocationID: Free locations, drawer by drawer
func EmptyLocations(layout types.DrawerLayout, occupied map[types.LocationID]struct{}) []types.LocationID {
	var free []types.LocationID
	for _, d := range layout {
		for _, loc := range d.Locations {
			if _, taken := occupied[loc]; !taken {
				free = append(free, loc)
			}
		}
	}

	return free
}

// OccupiedLocations collects the locations of trolley held by unresolved canisters.
func OccupiedLocations(canisters []types.Canister, trolley types.TrolleyID) map[types.LocationID]struct{} {
	occupied := make(map[types.LocationID]struct{})
	for i := range canisters {
		if canisters[i].OccupiesTrolley(trolley) {
			occupied[*canisters[i].LocationID] = struct{}{}
		}
	}

	return occupied
}

// Occupants returns the canisters blocking reuse of trolley.
func Occupants(canisters []types.Canister, trolley types.TrolleyID) []types.CanisterID {
	var out []types.CanisterID
	for i := range canisters {
		if canisters[i].OccupiesTrolley(trolley) {
			out = append(out, canisters[i].ID)
		}
	}

	return out
}

// Package trolley maps per-device mini-batches onto trolley trips and drawers.
//
// Mini-batches of all devices are interleaved round-robin so that one trip can
// carry work for two robots when a single device does not use every drawer.
// Trips are then zipped against the available trolleys cyclically; a trolley
// that repeats is reused, and its locations are bound later, once the
// previous trip's canisters have left the trolley.
package trolley

import (
	"github.com/arloliu/fillsched/internal/partition"
	"github.com/arloliu/fillsched/types"
)

// Trip is one load-and-move cycle of a trolley.
type Trip struct {
	// Index is the trip's position in interleaved order (0-based).
	Index int
	// Batches carried by the trip, at most one per device.
	Batches []partition.MiniBatch
}

// Packs returns the trip's packs in batch order.
func (t Trip) Packs() []types.PendingPack {
	var out []types.PendingPack
	for _, b := range t.Batches {
		out = append(out, b.Packs...)
	}

	return out
}

// CanisterCount returns the number of canisters the trip carries.
func (t Trip) CanisterCount() int {
	n := 0
	for _, b := range t.Batches {
		n += b.TotalCanisters
	}

	return n
}

// Devices returns the devices the trip serves, in batch order.
func (t Trip) Devices() []types.DeviceID {
	out := make([]types.DeviceID, len(t.Batches))
	for i, b := range t.Batches {
		out[i] = b.DeviceID
	}

	return out
}

func (t Trip) hasDevice(device types.DeviceID) bool {
	for _, b := range t.Batches {
		if b.DeviceID == device {
			return true
		}
	}

	return false
}

// Interleave merges the devices' mini-batch lists round-robin.
//
// With devices D1 and D2 the order is D1[0], D2[0], D1[1], D2[1], ...; a
// device whose list is exhausted is skipped.
//
// Parameters:
//   - plans: Device plans in device order
//
// Returns:
//   - []partition.MiniBatch: Interleaved mini-batches
func Interleave(plans []partition.DevicePlan) []partition.MiniBatch {
	longest := 0
	total := 0
	for _, p := range plans {
		longest = max(longest, len(p.Batches))
		total += len(p.Batches)
	}

	out := make([]partition.MiniBatch, 0, total)
	for i := range longest {
		for _, p := range plans {
			if i < len(p.Batches) {
				out = append(out, p.Batches[i])
			}
		}
	}

	return out
}

// BuildTrips groups interleaved mini-batches into trips.
//
// When combine is set, a batch joins the previous trip if that trip carries no
// batch of the same device and the combined load fits every candidate trolley
// layout. Otherwise each mini-batch is its own trip.
//
// Parameters:
//   - batches: Interleaved mini-batches
//   - layouts: Drawer layouts of the candidate trolleys
//   - combine: Allow two devices to share a trip
//
// Returns:
//   - []Trip: Trips in emission order
func BuildTrips(batches []partition.MiniBatch, layouts []types.DrawerLayout, combine bool) []Trip {
	var trips []Trip

	for _, b := range batches {
		if combine && len(trips) > 0 && len(layouts) > 0 {
			last := &trips[len(trips)-1]
			if !last.hasDevice(b.DeviceID) {
				candidate := Trip{Index: last.Index, Batches: append(append([]partition.MiniBatch{}, last.Batches...), b)}
				if fitsAll(layouts, candidate) {
					*last = candidate
					continue
				}
			}
		}

		trips = append(trips, Trip{Index: len(trips), Batches: []partition.MiniBatch{b}})
	}

	return trips
}

func fitsAll(layouts []types.DrawerLayout, trip Trip) bool {
	for _, l := range layouts {
		if !Fits(l, trip) {
			return false
		}
	}

	return true
}

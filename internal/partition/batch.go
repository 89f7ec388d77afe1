package partition

import (
	"slices"
	"strconv"
	"strings"

	"github.com/arloliu/fillsched/types"
	"github.com/zeebo/xxh3"
)

// MiniBatch is a capacity-respecting group of packs for one device.
//
// Mini-batches exist only during one scheduling run.
type MiniBatch struct {
	DeviceID types.DeviceID
	// Index is the batch's position within its device plan (0-based).
	Index int
	// Packs in admission order; each closure is contiguous and in queue order.
	Packs []types.PendingPack
	// Quadrants holds the merged canister set per quadrant.
	Quadrants      map[types.Quadrant]*types.CanisterSet
	TotalCanisters int
}

func newMiniBatch(device types.DeviceID, index int) *MiniBatch {
	return &MiniBatch{
		DeviceID:  device,
		Index:     index,
		Quadrants: make(map[types.Quadrant]*types.CanisterSet),
	}
}

// fits reports whether adding demand keeps every quadrant within capacity.
func (b *MiniBatch) fits(demand map[types.Quadrant]*types.CanisterSet, capacity Capacity) bool {
	for q, set := range demand {
		if b.Count(q)+set.Len() > capacity[q] {
			return false
		}
	}

	return true
}

func (b *MiniBatch) admit(members []types.PendingPack, demand map[types.Quadrant]*types.CanisterSet) {
	b.Packs = append(b.Packs, members...)
	for _, q := range sortedQuadrants(demand) {
		set, ok := b.Quadrants[q]
		if !ok {
			set = types.NewCanisterSet()
			b.Quadrants[q] = set
		}
		for _, c := range demand[q].IDs() {
			if set.Add(c) {
				b.TotalCanisters++
			}
		}
	}
}

// Count returns the number of canisters destined to quadrant q.
func (b *MiniBatch) Count(q types.Quadrant) int {
	return b.Quadrants[q].Len()
}

// QuadrantOrder returns the batch's non-empty quadrants in ascending order.
func (b *MiniBatch) QuadrantOrder() []types.Quadrant {
	out := make([]types.Quadrant, 0, len(b.Quadrants))
	for q, set := range b.Quadrants {
		if set.Len() > 0 {
			out = append(out, q)
		}
	}
	slices.Sort(out)

	return out
}

// QuadrantOf returns the quadrant a canister is destined to within the batch.
func (b *MiniBatch) QuadrantOf(id types.CanisterID) (types.Quadrant, bool) {
	for q, set := range b.Quadrants {
		if set.Has(id) {
			return q, true
		}
	}

	return 0, false
}

// PackIDs returns the batch's pack IDs in order.
func (b *MiniBatch) PackIDs() []types.PackID {
	out := make([]types.PackID, len(b.Packs))
	for i, p := range b.Packs {
		out[i] = p.ID
	}

	return out
}

// DevicePlan is the ordered list of mini-batches for one device.
type DevicePlan struct {
	DeviceID types.DeviceID
	Batches  []MiniBatch
}

// Plan is the partitioning result over all devices.
type Plan struct {
	Devices    []DevicePlan
	Infeasible types.InfeasiblePacks
}

// BatchCount returns the total number of mini-batches across devices.
func (p *Plan) BatchCount() int {
	n := 0
	for _, d := range p.Devices {
		n += len(d.Batches)
	}

	return n
}

// Fingerprint returns a stable hash of the grouping.
//
// Two plans with identical devices, batch order, pack membership and
// infeasible set hash equally. Capacity and canister order do not contribute.
//
// Returns:
//   - uint64: xxh3 hash of the grouping
func (p *Plan) Fingerprint() uint64 {
	var sb strings.Builder
	for _, d := range p.Devices {
		sb.WriteString("d:")
		sb.WriteString(string(d.DeviceID))
		for _, b := range d.Batches {
			sb.WriteString("|b")
			sb.WriteString(strconv.Itoa(b.Index))
			for _, pk := range b.Packs {
				sb.WriteByte(',')
				sb.WriteString(string(pk.ID))
			}
		}
		sb.WriteByte(';')
	}

	ids := make([]string, 0, len(p.Infeasible))
	for id := range p.Infeasible {
		ids = append(ids, string(id))
	}
	slices.Sort(ids)
	sb.WriteString("x:")
	sb.WriteString(strings.Join(ids, ","))

	return xxh3.HashString(sb.String())
}

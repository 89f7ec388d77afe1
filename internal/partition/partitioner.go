// Package partition groups pending packs into capacity-respecting mini-batches.
//
// The policy is first-fit in arrival order. Each pack is expanded to its
// pack-sharing closure, and a closure is admitted to a mini-batch whole or not
// at all. A closure that exceeds a quadrant's total capacity can never fit and
// is reported as infeasible.
package partition

import (
	"slices"
	"sort"

	"github.com/arloliu/fillsched/internal/closure"
	"github.com/arloliu/fillsched/internal/logger"
	"github.com/arloliu/fillsched/types"
)

// Capacity maps a device's quadrants to their enabled location counts.
type Capacity map[types.Quadrant]int

// Partitioner groups a device's pending packs into mini-batches.
//
// Partitioner is stateless and safe for concurrent use.
type Partitioner struct {
	quadrants int
	logger    types.Logger
}

// NewPartitioner creates a partitioner for devices with the given quadrant count.
//
// Parameters:
//   - quadrants: Number of quadrants per device (quadrants are 1..quadrants)
//   - log: Logger for infeasibility reports (nil for no logging)
//
// Returns:
//   - *Partitioner: Initialized partitioner
func NewPartitioner(quadrants int, log types.Logger) *Partitioner {
	if log == nil {
		log = logger.NewNop()
	}

	return &Partitioner{quadrants: quadrants, logger: log}
}

// Partition groups packs for one device.
//
// The algorithm:
//  1. Order packs by queue position (stable)
//  2. For each unvisited pack, expand its sharing closure
//  3. Reject the closure if any quadrant's demand exceeds that quadrant's capacity
//  4. Add the closure to the open mini-batch if it fits, else open a new one
//
// Parameters:
//   - device: Destination device
//   - packs: Pending packs for the device
//   - capacity: Capacity snapshot for the device
//
// Returns:
//   - DevicePlan: Ordered mini-batches
//   - types.InfeasiblePacks: Packs routed out of the manual-fill flow
func (p *Partitioner) Partition(device types.DeviceID, packs []types.PendingPack, capacity Capacity) (DevicePlan, types.InfeasiblePacks) {
	plan := DevicePlan{DeviceID: device}
	infeasible := make(types.InfeasiblePacks)

	ordered := slices.Clone(packs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].QueuePosition < ordered[j].QueuePosition
	})

	schedulable := ordered[:0]
	for _, pk := range ordered {
		if len(pk.CanisterIDs) == 0 {
			infeasible[pk.ID] = types.InfeasibleReason{
				Code:        types.InfeasibleNoCanisters,
				DeviceID:    device,
				Quadrant:    pk.Quadrant,
				ClosureRoot: pk.ID,
			}
			continue
		}
		schedulable = append(schedulable, pk)
	}

	graph := closure.NewGraph(schedulable)
	visited := make(map[types.PackID]struct{}, graph.Len())
	var current *MiniBatch

	for _, pk := range graph.Packs() {
		if _, ok := visited[pk.ID]; ok {
			continue
		}

		members := graph.Closure(pk.ID)
		for _, m := range members {
			visited[m.ID] = struct{}{}
		}
		// Discovery order is not queue order; mini-batches keep queue order.
		sort.SliceStable(members, func(i, j int) bool {
			return members[i].QueuePosition < members[j].QueuePosition
		})

		demand, reason, ok := p.demand(device, members, capacity)
		if !ok {
			for _, m := range members {
				infeasible[m.ID] = reason
			}
			p.logger.Warn("pack closure is infeasible",
				"device_id", device,
				"closure_root", reason.ClosureRoot,
				"closure_size", len(members),
				"reason", reason.String(),
			)

			continue
		}

		if current != nil && !current.fits(demand, capacity) {
			plan.Batches = append(plan.Batches, *current)
			current = nil
		}
		if current == nil {
			current = newMiniBatch(device, len(plan.Batches))
		}
		current.admit(members, demand)
	}

	if current != nil {
		plan.Batches = append(plan.Batches, *current)
	}

	p.logger.Debug("device partitioned",
		"device_id", device,
		"packs", len(packs),
		"mini_batches", len(plan.Batches),
		"infeasible", len(infeasible),
	)

	return plan, infeasible
}

// demand computes the per-quadrant canister sets of a closure and checks them
// against capacity. A canister counts toward the quadrant of the earliest
// queued member requiring it.
func (p *Partitioner) demand(
	device types.DeviceID,
	members []types.PendingPack,
	capacity Capacity,
) (map[types.Quadrant]*types.CanisterSet, types.InfeasibleReason, bool) {
	root := members[0].ID
	demand := make(map[types.Quadrant]*types.CanisterSet)
	claimed := make(map[types.CanisterID]struct{})

	for _, m := range members {
		if !m.Quadrant.Valid(p.quadrants) {
			return nil, types.InfeasibleReason{
				Code:        types.InfeasibleInvalidQuadrant,
				DeviceID:    device,
				Quadrant:    m.Quadrant,
				ClosureRoot: root,
			}, false
		}

		for _, c := range m.CanisterIDs {
			if _, ok := claimed[c]; ok {
				continue
			}
			claimed[c] = struct{}{}

			set, ok := demand[m.Quadrant]
			if !ok {
				set = types.NewCanisterSet()
				demand[m.Quadrant] = set
			}
			set.Add(c)
		}
	}

	for _, q := range sortedQuadrants(demand) {
		need := demand[q].Len()
		limit := capacity[q]
		if need <= limit {
			continue
		}

		code := types.InfeasibleCapacityExceeded
		if limit <= 0 {
			code = types.InfeasibleQuadrantDisabled
		}

		return nil, types.InfeasibleReason{
			Code:        code,
			DeviceID:    device,
			Quadrant:    q,
			Required:    need,
			Capacity:    limit,
			ClosureRoot: root,
		}, false
	}

	return demand, types.InfeasibleReason{}, true
}

func sortedQuadrants[V any](m map[types.Quadrant]V) []types.Quadrant {
	out := make([]types.Quadrant, 0, len(m))
	for q := range m {
		out = append(out, q)
	}
	slices.Sort(out)

	return out
}

// Package closure computes pack-sharing closures.
//
// Two packs are linked when they require at least one common canister. The
// closure of a pack is the transitive set of packs reachable through such
// links. Closures are computed with an explicit worklist and a visited set, so
// depth is bounded by memory rather than by the call stack.
package closure

import "github.com/arloliu/fillsched/types"

// Graph indexes packs by the canisters they require.
//
// The insertion order of packs is significant: Closure enumerates members in
// discovery order, breaking ties by insertion order.
type Graph struct {
	packs      []types.PendingPack
	position   map[types.PackID]int
	byCanister map[types.CanisterID][]int
}

// NewGraph builds a sharing graph over packs.
//
// Packs with duplicate IDs keep their first occurrence.
//
// Parameters:
//   - packs: Packs in the order closures should be enumerated
//
// Returns:
//   - *Graph: Immutable sharing graph
func NewGraph(packs []types.PendingPack) *Graph {
	g := &Graph{
		packs:      make([]types.PendingPack, 0, len(packs)),
		position:   make(map[types.PackID]int, len(packs)),
		byCanister: make(map[types.CanisterID][]int),
	}

	for _, p := range packs {
		if _, dup := g.position[p.ID]; dup {
			continue
		}
		idx := len(g.packs)
		g.position[p.ID] = idx
		g.packs = append(g.packs, p)

		seen := make(map[types.CanisterID]struct{}, len(p.CanisterIDs))
		for _, c := range p.CanisterIDs {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			g.byCanister[c] = append(g.byCanister[c], idx)
		}
	}

	return g
}

// Len returns the number of packs in the graph.
func (g *Graph) Len() int {
	return len(g.packs)
}

// Pack returns the pack with id.
func (g *Graph) Pack(id types.PackID) (types.PendingPack, bool) {
	idx, ok := g.position[id]
	if !ok {
		return types.PendingPack{}, false
	}

	return g.packs[idx], true
}

// Packs returns the packs in insertion order.
func (g *Graph) Packs() []types.PendingPack {
	out := make([]types.PendingPack, len(g.packs))
	copy(out, g.packs)

	return out
}

// Closure returns every pack transitively sharing a canister with seed.
//
// The seed comes first. Further members follow breadth-first discovery:
// canisters are walked in each pack's canister order, and packs sharing a
// canister are visited in insertion order. The result is nil if seed is not in
// the graph.
//
// Parameters:
//   - seed: Pack to expand
//
// Returns:
//   - []types.PendingPack: Closure members in discovery order
func (g *Graph) Closure(seed types.PackID) []types.PendingPack {
	start, ok := g.position[seed]
	if !ok {
		return nil
	}

	visited := make([]bool, len(g.packs))
	visitedCanister := make(map[types.CanisterID]struct{})
	visited[start] = true

	queue := []int{start}
	out := make([]types.PendingPack, 0, 1)

	for len(queue) > 0 {
		idx := queue[0]
		queue = queue[1:]
		out = append(out, g.packs[idx])

		for _, c := range g.packs[idx].CanisterIDs {
			if _, done := visitedCanister[c]; done {
				continue
			}
			visitedCanister[c] = struct{}{}

			for _, next := range g.byCanister[c] {
				if visited[next] {
					continue
				}
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}

	return out
}

// Components partitions the graph into disjoint closures.
//
// Components are ordered by their earliest member in insertion order, and
// each component is in Closure order from that member.
func (g *Graph) Components() [][]types.PendingPack {
	assigned := make(map[types.PackID]struct{}, len(g.packs))
	var out [][]types.PendingPack

	for _, p := range g.packs {
		if _, ok := assigned[p.ID]; ok {
			continue
		}
		members := g.Closure(p.ID)
		for _, m := range members {
			assigned[m.ID] = struct{}{}
		}
		out = append(out, members)
	}

	return out
}

// Shares reports whether packs a and b require a common canister.
func Shares(a, b types.PendingPack) bool {
	set := make(map[types.CanisterID]struct{}, len(a.CanisterIDs))
	for _, c := range a.CanisterIDs {
		set[c] = struct{}{}
	}
	for _, c := range b.CanisterIDs {
		if _, ok := set[c]; ok {
			return true
		}
	}

	return false
}

package source

import (
	"context"
	"fmt"
	"sync"

	"github.com/arloliu/fillsched/types"
)

// StaticCapacity implements types.CapacityRegistry with fixed location counts.
//
// Quadrants that were never set report zero enabled locations.
type StaticCapacity struct {
	mu       sync.RWMutex
	capacity map[types.SlotKey]int
}

var _ types.CapacityRegistry = (*StaticCapacity)(nil)

// NewStaticCapacity creates a capacity registry.
//
// Parameters:
//   - capacity: Enabled locations per (device, quadrant)
//
// Returns:
//   - *StaticCapacity: Initialized registry
//
// Example:
//
//	capacity := source.NewStaticCapacity(map[types.SlotKey]int{
//	    {DeviceID: "D1", Quadrant: 1}: 12,
//	    {DeviceID: "D1", Quadrant: 2}: 12,
//	})
func NewStaticCapacity(capacity map[types.SlotKey]int) *StaticCapacity {
	c := &StaticCapacity{capacity: make(map[types.SlotKey]int, len(capacity))}
	for k, v := range capacity {
		c.capacity[k] = v
	}

	return c
}

// EnabledLocations returns the enabled location count of (device, quadrant).
func (c *StaticCapacity) EnabledLocations(_ context.Context, device types.DeviceID, quadrant types.Quadrant) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.capacity[types.SlotKey{DeviceID: device, Quadrant: quadrant}], nil
}

// Set changes the enabled location count of (device, quadrant).
//
// Setting 0 disables the quadrant.
func (c *StaticCapacity) Set(device types.DeviceID, quadrant types.Quadrant, locations int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.capacity[types.SlotKey{DeviceID: device, Quadrant: quadrant}] = locations
}

// StaticWork implements types.PendingWorkIndex with a fixed pack list.
type StaticWork struct {
	mu    sync.RWMutex
	packs map[types.DeviceID][]types.PendingPack
}

var _ types.PendingWorkIndex = (*StaticWork)(nil)

// NewStaticWork creates a pending work index.
//
// Packs are grouped by their DeviceID and keep the order given. A pack with a
// zero QueuePosition receives its index in packs.
//
// Parameters:
//   - packs: Pending packs in processing-queue order
//
// Returns:
//   - *StaticWork: Initialized index
func NewStaticWork(packs []types.PendingPack) *StaticWork {
	w := &StaticWork{}
	w.Update(packs)

	return w
}

// PacksForDevice returns a copy of the device's pending packs.
func (w *StaticWork) PacksForDevice(_ context.Context, device types.DeviceID) ([]types.PendingPack, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	src := w.packs[device]
	result := make([]types.PendingPack, len(src))
	copy(result, src)

	return result, nil
}

// Update replaces the pending pack list.
func (w *StaticWork) Update(packs []types.PendingPack) {
	grouped := make(map[types.DeviceID][]types.PendingPack)
	for i, pk := range packs {
		if pk.QueuePosition == 0 {
			pk.QueuePosition = i + 1
		}
		grouped[pk.DeviceID] = append(grouped[pk.DeviceID], pk)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.packs = grouped
}

// Remove drops packs from the index, e.g. after they were deleted or made manual.
func (w *StaticWork) Remove(ids ...types.PackID) {
	drop := make(map[types.PackID]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for device, packs := range w.packs {
		kept := packs[:0:0]
		for _, pk := range packs {
			if _, ok := drop[pk.ID]; !ok {
				kept = append(kept, pk)
			}
		}
		w.packs[device] = kept
	}
}

// StaticTrolleys implements types.TrolleyPool with a fixed trolley list.
type StaticTrolleys struct {
	mu      sync.RWMutex
	order   []types.TrolleyID
	layouts map[types.TrolleyID]types.DrawerLayout
	foreign map[types.TrolleyID]bool
}

var _ types.TrolleyPool = (*StaticTrolleys)(nil)

// NewStaticTrolleys creates a trolley pool.
//
// Parameters:
//   - order: Trolley IDs in preference order
//   - layouts: Drawer layout per trolley
//
// Returns:
//   - *StaticTrolleys: Initialized pool
func NewStaticTrolleys(order []types.TrolleyID, layouts map[types.TrolleyID]types.DrawerLayout) *StaticTrolleys {
	p := &StaticTrolleys{
		order:   append([]types.TrolleyID(nil), order...),
		layouts: make(map[types.TrolleyID]types.DrawerLayout, len(layouts)),
		foreign: make(map[types.TrolleyID]bool),
	}
	for id, l := range layouts {
		p.layouts[id] = l
	}

	return p
}

// UniformTrolleys builds a pool of n identical trolleys named prefix1..prefixN.
//
// Each trolley has drawers drawers of perDrawer locations. Location IDs are
// "<trolley>-<drawer>-<slot>", 1-based.
func UniformTrolleys(prefix string, n, drawers, perDrawer int) *StaticTrolleys {
	order := make([]types.TrolleyID, 0, n)
	layouts := make(map[types.TrolleyID]types.DrawerLayout, n)
	for i := 1; i <= n; i++ {
		id := types.TrolleyID(fmt.Sprintf("%s%d", prefix, i))
		layout := make(types.DrawerLayout, 0, drawers)
		for d := 1; d <= drawers; d++ {
			drawer := types.Drawer{ID: types.DrawerID(fmt.Sprintf("%s-%d", id, d))}
			for s := 1; s <= perDrawer; s++ {
				drawer.Locations = append(drawer.Locations, types.LocationID(fmt.Sprintf("%s-%d-%d", id, d, s)))
			}
			layout = append(layout, drawer)
		}
		order = append(order, id)
		layouts[id] = layout
	}

	return NewStaticTrolleys(order, layouts)
}

// Available returns the trolleys in preference order.
func (p *StaticTrolleys) Available(_ context.Context, excludeInUseByOtherBatches bool) ([]types.TrolleyID, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]types.TrolleyID, 0, len(p.order))
	for _, id := range p.order {
		if excludeInUseByOtherBatches && p.foreign[id] {
			continue
		}
		result = append(result, id)
	}

	return result, nil
}

// DrawerLayout returns the trolley's drawer layout.
func (p *StaticTrolleys) DrawerLayout(_ context.Context, trolley types.TrolleyID) (types.DrawerLayout, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	layout, ok := p.layouts[trolley]
	if !ok {
		return nil, fmt.Errorf("unknown trolley %q", trolley)
	}

	return layout, nil
}

// SetInUseByOtherBatch marks a trolley as holding another batch's canisters.
func (p *StaticTrolleys) SetInUseByOtherBatch(trolley types.TrolleyID, inUse bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.foreign[trolley] = inUse
}

// StaticStations implements types.StationRegistry with a fixed selection.
type StaticStations struct {
	mu       sync.RWMutex
	stations []types.Station
}

var _ types.StationRegistry = (*StaticStations)(nil)

// NewStaticStations creates a station registry.
func NewStaticStations(stations []types.Station) *StaticStations {
	s := &StaticStations{}
	s.Update(stations)

	return s
}

// Selected returns the selected stations in selection order.
func (s *StaticStations) Selected(_ context.Context) ([]types.Station, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]types.Station, len(s.stations))
	copy(result, s.stations)

	return result, nil
}

// Update replaces the station selection.
func (s *StaticStations) Update(stations []types.Station) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stations = make([]types.Station, len(stations))
	copy(s.stations, stations)
}

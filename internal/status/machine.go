package status

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/fillsched/internal/hooks"
	"github.com/arloliu/fillsched/internal/logger"
	"github.com/arloliu/fillsched/internal/metrics"
	"github.com/arloliu/fillsched/internal/trolley"
	"github.com/arloliu/fillsched/types"
	"github.com/puzpuzpuz/xsync/v4"
)

const defaultEventBufferSize = 64

// Config configures a Machine.
type Config struct {
	// Store holds the canister records. Required.
	Store types.CanisterStore

	// Trolleys provides drawer layouts for Reroute. Required for Reroute only.
	Trolleys types.TrolleyPool

	Logger  types.Logger
	Metrics types.MetricsCollector
	Hooks   *types.Hooks

	// EventBufferSize is the channel buffer of each subscriber (default 64).
	EventBufferSize int

	// OnTrolleyFreed runs on a machine goroutine once a trolley stops holding
	// unresolved canisters. It may fire more than once for the same release.
	OnTrolleyFreed func(ctx context.Context, trolley types.TrolleyID)

	// OnEvent runs synchronously after every recorded change.
	OnEvent func(ctx context.Context, ev Event)

	// Clock stamps events (default time.Now).
	Clock func() time.Time
}

// Machine applies validated status transitions to canister records.
//
// Fill stations call the Machine concurrently. Changes to one canister are
// serialized; changes to different canisters proceed in parallel. A station
// may only act on canisters bound to it.
type Machine struct {
	store    types.CanisterStore
	trolleys types.TrolleyPool
	logger   types.Logger
	metrics  types.MetricsCollector
	hooks    types.Hooks
	onFreed  func(ctx context.Context, trolley types.TrolleyID)
	onEvent  func(ctx context.Context, ev Event)
	now      func() time.Time
	bufSize  int

	canisterLocks *xsync.Map[types.CanisterID, *sync.Mutex]
	trolleyLocks  *xsync.Map[types.TrolleyID, *sync.Mutex]

	// Fan-out to subscribers
	subscribers      *xsync.Map[uint64, *subscriber]
	nextSubscriberID atomic.Uint64

	// For tracking trolley-freed goroutines
	wg sync.WaitGroup
}

// NewMachine creates a status machine.
//
// Parameters:
//   - cfg: Machine configuration; cfg.Store is required
//
// Returns:
//   - *Machine: Initialized machine
//   - error: ErrCollaboratorRequired if cfg.Store is nil
func NewMachine(cfg Config) (*Machine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("%w: canister store", types.ErrCollaboratorRequired)
	}

	m := &Machine{
		store:         cfg.Store,
		trolleys:      cfg.Trolleys,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
		hooks:         hooks.Complete(cfg.Hooks),
		onFreed:       cfg.OnTrolleyFreed,
		onEvent:       cfg.OnEvent,
		now:           cfg.Clock,
		bufSize:       cfg.EventBufferSize,
		canisterLocks: xsync.NewMap[types.CanisterID, *sync.Mutex](),
		trolleyLocks:  xsync.NewMap[types.TrolleyID, *sync.Mutex](),
		subscribers:   xsync.NewMap[uint64, *subscriber](),
	}
	if m.logger == nil {
		m.logger = logger.NewNop()
	}
	if m.metrics == nil {
		m.metrics = metrics.NewNop()
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.bufSize <= 0 {
		m.bufSize = defaultEventBufferSize
	}

	return m, nil
}

// Subscribe returns a channel that receives canister change events.
//
// Events are delivered without blocking the machine: when the buffer is full
// the event is dropped and counted.
//
// Returns:
//   - <-chan Event: Channel that receives events
//   - func(): Unsubscribe function to clean up resources
//
// Example:
//
//	events, unsubscribe := m.Subscribe()
//	defer unsubscribe()
//	for ev := range events {
//	    fmt.Printf("%s: %s -> %s\n", ev.CanisterID, ev.From, ev.To)
//	}
func (m *Machine) Subscribe() (<-chan Event, func()) {
	id := m.nextSubscriberID.Add(1)
	sub := &subscriber{ch: make(chan Event, m.bufSize)}
	m.subscribers.Store(id, sub)

	unsubscribe := func() {
		if s, ok := m.subscribers.LoadAndDelete(id); ok {
			s.close()
		}
	}

	return sub.ch, unsubscribe
}

// WaitForShutdown waits for all trolley-freed goroutines to complete.
func (m *Machine) WaitForShutdown() {
	m.wg.Wait()
}

// Begin moves a pending canister to IN_PROGRESS once an operator places it on station.
func (m *Machine) Begin(ctx context.Context, station types.StationID, id types.CanisterID) (types.Canister, error) {
	return m.apply(ctx, &station, id, func(c *types.Canister) error {
		if c.Status != types.StatusPending {
			return invalid(c, types.StatusInProgress)
		}

		return move(c, types.StatusInProgress)
	})
}

// MarkSlot records one drug slot as filled or skipped.
//
// The canister moves to FILLED once no slot is pending and at least one is
// filled, or to SKIPPED when every slot was skipped.
//
// Parameters:
//   - ctx: Context for store operations
//   - station: Acting station
//   - id: Canister ID
//   - slot: Slot index in the canister's slot list
//   - to: SlotFilled or SlotSkipped
//
// Returns:
//   - types.Canister: Updated canister
//   - error: ErrForeignCanister, ErrSlotOutOfRange or ErrInvalidTransition
func (m *Machine) MarkSlot(
	ctx context.Context,
	station types.StationID,
	id types.CanisterID,
	slot int,
	to types.SlotStatus,
) (types.Canister, error) {
	return m.apply(ctx, &station, id, func(c *types.Canister) error {
		if c.Status != types.StatusInProgress {
			return fmt.Errorf("%w: slot update on %s canister %s", types.ErrInvalidTransition, c.Status, c.ID)
		}
		if to != types.SlotFilled && to != types.SlotSkipped {
			return fmt.Errorf("%w: slot cannot be marked %s", types.ErrInvalidTransition, to)
		}
		if slot < 0 || slot >= len(c.Slots) {
			return fmt.Errorf("%w: slot %d of %d on canister %s", types.ErrSlotOutOfRange, slot, len(c.Slots), c.ID)
		}
		if c.Slots[slot].Status != types.SlotPending {
			return fmt.Errorf("%w: slot %d already %s", types.ErrInvalidTransition, slot, c.Slots[slot].Status)
		}
		c.Slots[slot].Status = to

		if next, done := rollup(c.Slots); done {
			return move(c, next)
		}

		return nil
	})
}

// RemovePack applies the deletion of a pack, or its move to manual handling.
//
// The pack's filled rows must be returned to stock and its unfilled rows are
// skipped. Once no row is pending, the canister becomes RTS_REQUIRED if any
// row must be returned, FILLED if any row remains filled, and SKIPPED
// otherwise. A canister with no rows for pack is returned unchanged.
//
// Parameters:
//   - ctx: Context for store operations
//   - id: Canister ID
//   - pack: Removed pack ID
//
// Returns:
//   - types.Canister: Updated canister
//   - error: ErrInvalidTransition for verified or deactivated canisters
func (m *Machine) RemovePack(ctx context.Context, id types.CanisterID, pack types.PackID) (types.Canister, error) {
	return m.apply(ctx, nil, id, func(c *types.Canister) error {
		if c.Status.Terminal() {
			return fmt.Errorf("%w: pack removal on %s canister %s", types.ErrInvalidTransition, c.Status, c.ID)
		}

		for i := range c.Slots {
			if c.Slots[i].PackID != pack {
				continue
			}
			switch c.Slots[i].Status {
			case types.SlotFilled:
				c.Slots[i].Status = types.SlotRTSRequired
			case types.SlotPending:
				c.Slots[i].Status = types.SlotSkipped
			}
		}

		switch c.Status {
		case types.StatusPending, types.StatusInProgress, types.StatusFilled:
		default:
			return nil
		}

		next, done := rollup(c.Slots)
		if !done || next == c.Status {
			return nil
		}

		return move(c, next)
	})
}

// Verify marks a filled canister as verified.
func (m *Machine) Verify(ctx context.Context, id types.CanisterID) (types.Canister, error) {
	return m.apply(ctx, nil, id, func(c *types.Canister) error {
		return move(c, types.StatusVerified)
	})
}

// RequireMVS diverts a canister that could not be filled in time to the
// manual verification station.
func (m *Machine) RequireMVS(ctx context.Context, id types.CanisterID) (types.Canister, error) {
	return m.apply(ctx, nil, id, func(c *types.Canister) error {
		return move(c, types.StatusMVSFillingRequired)
	})
}

// MarkMVSFilled records that the manual verification station filled the canister.
//
// Pending slots are marked filled.
func (m *Machine) MarkMVSFilled(ctx context.Context, id types.CanisterID) (types.Canister, error) {
	return m.apply(ctx, nil, id, func(c *types.Canister) error {
		if err := move(c, types.StatusMVSFilled); err != nil {
			return err
		}
		for i := range c.Slots {
			if c.Slots[i].Status == types.SlotPending {
				c.Slots[i].Status = types.SlotFilled
			}
		}

		return nil
	})
}

// Deactivate removes a canister from service.
func (m *Machine) Deactivate(ctx context.Context, id types.CanisterID) (types.Canister, error) {
	return m.apply(ctx, nil, id, func(c *types.Canister) error {
		return move(c, types.StatusDeactivated)
	})
}

// Requeue returns a skipped or returned-to-stock canister to the pending population.
//
// The canister loses its trolley, location, order and station assignment and
// every slot becomes pending again, so the next scheduling run places it anew.
func (m *Machine) Requeue(ctx context.Context, id types.CanisterID) (types.Canister, error) {
	return m.apply(ctx, nil, id, func(c *types.Canister) error {
		if err := move(c, types.StatusPending); err != nil {
			return err
		}
		c.TrolleyID = nil
		c.LocationID = nil
		c.OrderNo = nil
		c.TrolleySequence = nil
		c.StationID = nil
		c.OperatorID = nil
		c.RunID = ""
		c.Misplaced = false
		for i := range c.Slots {
			c.Slots[i].Status = types.SlotPending
		}

		return nil
	})
}

// MarkMisplaced flags a canister the station cannot find.
func (m *Machine) MarkMisplaced(ctx context.Context, station types.StationID, id types.CanisterID) (types.Canister, error) {
	return m.apply(ctx, &station, id, func(c *types.Canister) error {
		c.Misplaced = true
		return nil
	})
}

// MarkFound clears the misplacement flag once the canister is physically found.
func (m *Machine) MarkFound(ctx context.Context, id types.CanisterID) (types.Canister, error) {
	return m.apply(ctx, nil, id, func(c *types.Canister) error {
		c.Misplaced = false
		return nil
	})
}

// Reroute assigns a new return location inside the canister's own trolley.
//
// Used when a canister sitting on a station can no longer reach its home
// quadrant. The first empty location of the trolley, in drawer order, that
// no other unresolved canister holds becomes the canister's location.
// Only IN_PROGRESS and FILLED canisters can be rerouted; a PENDING canister
// is still waiting for its trip's drawer fill.
//
// Parameters:
//   - ctx: Context for store and pool operations
//   - station: Acting station
//   - id: Canister ID
//
// Returns:
//   - types.Canister: Updated canister
//   - error: ErrNoFreeLocation if the trolley is full, ErrInvalidTransition for
//     other statuses, ErrForeignCanister, or lookup error
func (m *Machine) Reroute(ctx context.Context, station types.StationID, id types.CanisterID) (types.Canister, error) {
	if m.trolleys == nil {
		return types.Canister{}, fmt.Errorf("%w: trolley pool", types.ErrCollaboratorRequired)
	}

	current, err := m.store.Canister(ctx, id)
	if err != nil {
		return types.Canister{}, fmt.Errorf("load canister %s: %w", id, err)
	}
	if current.TrolleyID == nil {
		return types.Canister{}, fmt.Errorf("%w: canister %s has no trolley", types.ErrNoFreeLocation, id)
	}
	home := *current.TrolleyID

	tl := m.trolleyLock(home)
	tl.Lock()
	defer tl.Unlock()

	layout, err := m.trolleys.DrawerLayout(ctx, home)
	if err != nil {
		return types.Canister{}, fmt.Errorf("drawer layout of %s: %w", home, err)
	}

	return m.apply(ctx, &station, id, func(c *types.Canister) error {
		if c.Status != types.StatusInProgress && c.Status != types.StatusFilled {
			return fmt.Errorf("%w: cannot reroute %s canister %s", types.ErrInvalidTransition, c.Status, c.ID)
		}
		if c.TrolleyID == nil || *c.TrolleyID != home {
			return fmt.Errorf("%w: canister %s changed trolley", types.ErrNoFreeLocation, c.ID)
		}

		onTrolley, err := m.store.CanistersOnTrolley(ctx, home)
		if err != nil {
			return fmt.Errorf("canisters on %s: %w", home, err)
		}
		others := make([]types.Canister, 0, len(onTrolley))
		for _, o := range onTrolley {
			if o.ID != c.ID {
				others = append(others, o)
			}
		}

		free := trolley.EmptyLocations(layout, trolley.OccupiedLocations(others, home))
		if len(free) == 0 {
			return fmt.Errorf("%w: trolley %s", types.ErrNoFreeLocation, home)
		}
		c.LocationID = types.Ptr(free[0])

		return nil
	})
}

// apply loads a canister, runs mutate on a copy and saves the result.
//
// A non-nil station restricts the change to canisters bound to that station.
func (m *Machine) apply(
	ctx context.Context,
	station *types.StationID,
	id types.CanisterID,
	mutate func(c *types.Canister) error,
) (types.Canister, error) {
	before, after, err := m.mutate(ctx, station, id, mutate)
	if err != nil {
		return types.Canister{}, err
	}

	m.record(ctx, before, after)

	return after, nil
}

func (m *Machine) mutate(
	ctx context.Context,
	station *types.StationID,
	id types.CanisterID,
	mutate func(c *types.Canister) error,
) (types.Canister, types.Canister, error) {
	mu := m.canisterLock(id)
	mu.Lock()
	defer mu.Unlock()

	before, err := m.store.Canister(ctx, id)
	if err != nil {
		return types.Canister{}, types.Canister{}, fmt.Errorf("load canister %s: %w", id, err)
	}
	if station != nil && !before.BoundTo(*station) {
		return types.Canister{}, types.Canister{}, fmt.Errorf("%w: %s is not bound to station %s",
			types.ErrForeignCanister, id, *station)
	}

	after := before.Clone()
	if err := mutate(&after); err != nil {
		return types.Canister{}, types.Canister{}, err
	}
	if err := m.store.SaveCanister(ctx, after); err != nil {
		return types.Canister{}, types.Canister{}, fmt.Errorf("save canister %s: %w", id, err)
	}

	return before, after.Clone(), nil
}

// record publishes a saved change to metrics, hooks and subscribers.
func (m *Machine) record(ctx context.Context, before, after types.Canister) {
	ev := Event{
		CanisterID:    after.ID,
		From:          before.Status,
		To:            after.Status,
		StationID:     after.StationID,
		FromStationID: before.StationID,
		TrolleyID:     after.TrolleyID,
		LocationID:    after.LocationID,
		Misplaced:     after.Misplaced,
		At:            m.now(),
	}

	if ev.StatusChanged() {
		m.metrics.RecordTransition(ev.From, ev.To)
		m.logger.Info("canister status changed",
			"canister_id", ev.CanisterID,
			"from", ev.From.String(),
			"to", ev.To.String(),
		)
		if err := m.hooks.OnStatusChanged(ctx, ev.CanisterID, ev.From, ev.To); err != nil {
			m.logger.Error("status changed hook failed", "canister_id", ev.CanisterID, "error", err)
		}
	}

	m.subscribers.Range(func(_ uint64, sub *subscriber) bool {
		sub.trySend(ev, m.metrics)
		return true
	})
	if m.onEvent != nil {
		m.onEvent(ctx, ev)
	}

	if before.TrolleyID != nil {
		home := *before.TrolleyID
		if before.OccupiesTrolley(home) && !after.OccupiesTrolley(home) {
			m.checkFreed(ctx, home)
		}
	}
}

// checkFreed fires the trolley-freed callbacks once no canister occupies trolley.
func (m *Machine) checkFreed(ctx context.Context, home types.TrolleyID) {
	onTrolley, err := m.store.CanistersOnTrolley(ctx, home)
	if err != nil {
		m.logger.Warn("failed to check trolley occupancy", "trolley_id", home, "error", err)
		return
	}
	if len(trolley.Occupants(onTrolley, home)) > 0 {
		return
	}

	m.metrics.RecordTrolleyFreed()
	m.logger.Info("trolley freed", "trolley_id", home)

	bg := context.WithoutCancel(ctx)
	m.wg.Go(func() {
		if err := m.hooks.OnTrolleyFreed(bg, home); err != nil {
			m.logger.Error("trolley freed hook failed", "trolley_id", home, "error", err)
		}
		if m.onFreed != nil {
			m.onFreed(bg, home)
		}
	})
}

func (m *Machine) canisterLock(id types.CanisterID) *sync.Mutex {
	mu, _ := m.canisterLocks.LoadOrStore(id, &sync.Mutex{})
	return mu
}

func (m *Machine) trolleyLock(id types.TrolleyID) *sync.Mutex {
	mu, _ := m.trolleyLocks.LoadOrStore(id, &sync.Mutex{})
	return mu
}

// move changes the canister status if the transition table allows it.
func move(c *types.Canister, to types.CanisterStatus) error {
	if !Allowed(c.Status, to) {
		return invalid(c, to)
	}
	c.Status = to

	return nil
}

func invalid(c *types.Canister, to types.CanisterStatus) error {
	return fmt.Errorf("%w: canister %s %s -> %s", types.ErrInvalidTransition, c.ID, c.Status, to)
}

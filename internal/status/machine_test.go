package status

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arloliu/fillsched/internal/logger"
	"github.com/arloliu/fillsched/internal/metrics"
	"github.com/arloliu/fillsched/source"
	"github.com/arloliu/fillsched/types"
	"github.com/stretchr/testify/require"
)

type countingMetrics struct {
	*metrics.NopMetrics
	transitions atomic.Int32
	dropped     atomic.Int32
	freed       atomic.Int32
}

func (c *countingMetrics) RecordTransition(_, _ types.CanisterStatus) { c.transitions.Add(1) }
func (c *countingMetrics) RecordEventDropped()                        { c.dropped.Add(1) }
func (c *countingMetrics) RecordTrolleyFreed()                        { c.freed.Add(1) }

func slots(pack types.PackID, n int) []types.DrugSlot {
	out := make([]types.DrugSlot, n)
	for i := range out {
		out[i] = types.DrugSlot{PackID: pack, DrugID: fmt.Sprintf("drug-%d", i)}
	}

	return out
}

func canister(id, station, trolleyID, location string, s ...types.DrugSlot) types.Canister {
	c := types.Canister{ID: types.CanisterID(id), Status: types.StatusPending, Slots: s}
	if station != "" {
		c.StationID = types.Ptr(types.StationID(station))
	}
	if trolleyID != "" {
		c.TrolleyID = types.Ptr(types.TrolleyID(trolleyID))
	}
	if location != "" {
		c.LocationID = types.Ptr(types.LocationID(location))
	}

	return c
}

func newMachine(t *testing.T, store *source.MemoryCanisters, mutate ...func(*Config)) *Machine {
	t.Helper()

	cfg := Config{
		Store:    store,
		Trolleys: source.UniformTrolleys("T", 2, 1, 3),
		Logger:   logger.NewTest(t),
	}
	for _, fn := range mutate {
		fn(&cfg)
	}

	m, err := NewMachine(cfg)
	require.NoError(t, err)
	t.Cleanup(m.WaitForShutdown)

	return m
}

func TestNewMachineRequiresStore(t *testing.T) {
	_, err := NewMachine(Config{})
	require.ErrorIs(t, err, types.ErrCollaboratorRequired)
}

func TestAllowed(t *testing.T) {
	tests := []struct {
		from, to types.CanisterStatus
		want     bool
	}{
		{types.StatusPending, types.StatusInProgress, true},
		{types.StatusInProgress, types.StatusFilled, true},
		{types.StatusFilled, types.StatusVerified, true},
		{types.StatusFilled, types.StatusRTSRequired, true},
		{types.StatusMVSFillingRequired, types.StatusMVSFilled, true},
		{types.StatusMVSFilled, types.StatusVerified, true},
		{types.StatusSkipped, types.StatusPending, true},
		{types.StatusRTSRequired, types.StatusPending, true},
		{types.StatusPending, types.StatusFilled, false},
		{types.StatusPending, types.StatusPending, false},
		{types.StatusVerified, types.StatusPending, false},
		{types.StatusDeactivated, types.StatusPending, false},
		{types.StatusFilled, types.StatusInProgress, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			require.Equal(t, tt.want, Allowed(tt.from, tt.to))
		})
	}

	for _, terminal := range []types.CanisterStatus{types.StatusVerified, types.StatusDeactivated} {
		require.Empty(t, Targets(terminal))
	}
}

func TestRemovePackScenarioD(t *testing.T) {
	ctx := context.Background()
	store := source.NewMemoryCanisters(canister("c5", "S1", "A", "A-1-1", slots("P7", 2)...))
	m := newMachine(t, store)

	_, err := m.Begin(ctx, "S1", "c5")
	require.NoError(t, err)
	_, err = m.MarkSlot(ctx, "S1", "c5", 0, types.SlotFilled)
	require.NoError(t, err)

	c, err := m.RemovePack(ctx, "c5", "P7")
	require.NoError(t, err)
	require.Equal(t, types.StatusRTSRequired, c.Status)
	require.Equal(t, types.SlotRTSRequired, c.Slots[0].Status)
	require.Equal(t, types.SlotSkipped, c.Slots[1].Status)

	stored, err := store.Status(ctx, "c5")
	require.NoError(t, err)
	require.Equal(t, types.StatusRTSRequired, stored)
}

func TestRemovePack(t *testing.T) {
	ctx := context.Background()

	t.Run("nothing filled becomes skipped", func(t *testing.T) {
		store := source.NewMemoryCanisters(canister("c1", "S1", "A", "A-1-1", slots("P1", 2)...))
		m := newMachine(t, store)
		_, err := m.Begin(ctx, "S1", "c1")
		require.NoError(t, err)

		c, err := m.RemovePack(ctx, "c1", "P1")
		require.NoError(t, err)
		require.Equal(t, types.StatusSkipped, c.Status)
	})

	t.Run("pending canister becomes skipped", func(t *testing.T) {
		store := source.NewMemoryCanisters(canister("c1", "S1", "A", "A-1-1", slots("P1", 1)...))
		m := newMachine(t, store)

		c, err := m.RemovePack(ctx, "c1", "P1")
		require.NoError(t, err)
		require.Equal(t, types.StatusSkipped, c.Status)
	})

	t.Run("other pack still pending keeps status", func(t *testing.T) {
		s := append(slots("P1", 1), slots("P2", 1)...)
		store := source.NewMemoryCanisters(canister("c1", "S1", "A", "A-1-1", s...))
		m := newMachine(t, store)
		_, err := m.Begin(ctx, "S1", "c1")
		require.NoError(t, err)

		c, err := m.RemovePack(ctx, "c1", "P1")
		require.NoError(t, err)
		require.Equal(t, types.StatusInProgress, c.Status)
		require.Equal(t, types.SlotSkipped, c.Slots[0].Status)
		require.Equal(t, types.SlotPending, c.Slots[1].Status)

		// Filling the remaining row finishes the canister.
		c, err = m.MarkSlot(ctx, "S1", "c1", 1, types.SlotFilled)
		require.NoError(t, err)
		require.Equal(t, types.StatusFilled, c.Status)
	})

	t.Run("other pack filled rolls up to filled", func(t *testing.T) {
		s := append(slots("P1", 1), slots("P2", 1)...)
		store := source.NewMemoryCanisters(canister("c1", "S1", "A", "A-1-1", s...))
		m := newMachine(t, store)
		_, err := m.Begin(ctx, "S1", "c1")
		require.NoError(t, err)
		_, err = m.MarkSlot(ctx, "S1", "c1", 1, types.SlotFilled)
		require.NoError(t, err)

		c, err := m.RemovePack(ctx, "c1", "P1")
		require.NoError(t, err)
		require.Equal(t, types.StatusFilled, c.Status)
	})

	t.Run("filled canister must be returned", func(t *testing.T) {
		store := source.NewMemoryCanisters(canister("c1", "S1", "A", "A-1-1", slots("P1", 1)...))
		m := newMachine(t, store)
		_, err := m.Begin(ctx, "S1", "c1")
		require.NoError(t, err)
		_, err = m.MarkSlot(ctx, "S1", "c1", 0, types.SlotFilled)
		require.NoError(t, err)

		c, err := m.RemovePack(ctx, "c1", "P1")
		require.NoError(t, err)
		require.Equal(t, types.StatusRTSRequired, c.Status)
	})

	t.Run("unrelated pack is a no-op", func(t *testing.T) {
		store := source.NewMemoryCanisters(canister("c1", "S1", "A", "A-1-1", slots("P1", 1)...))
		m := newMachine(t, store)

		c, err := m.RemovePack(ctx, "c1", "P9")
		require.NoError(t, err)
		require.Equal(t, types.StatusPending, c.Status)
	})

	t.Run("verified canister rejected", func(t *testing.T) {
		c := canister("c1", "S1", "A", "A-1-1", slots("P1", 1)...)
		c.Status = types.StatusVerified
		m := newMachine(t, source.NewMemoryCanisters(c))

		_, err := m.RemovePack(ctx, "c1", "P1")
		require.ErrorIs(t, err, types.ErrInvalidTransition)
	})
}

func TestMarkSlot(t *testing.T) {
	ctx := context.Background()

	t.Run("fills after every slot", func(t *testing.T) {
		store := source.NewMemoryCanisters(canister("c1", "S1", "A", "A-1-1", slots("P1", 3)...))
		m := newMachine(t, store)
		_, err := m.Begin(ctx, "S1", "c1")
		require.NoError(t, err)

		c, err := m.MarkSlot(ctx, "S1", "c1", 0, types.SlotFilled)
		require.NoError(t, err)
		require.Equal(t, types.StatusInProgress, c.Status)
		_, err = m.MarkSlot(ctx, "S1", "c1", 1, types.SlotSkipped)
		require.NoError(t, err)
		c, err = m.MarkSlot(ctx, "S1", "c1", 2, types.SlotFilled)
		require.NoError(t, err)
		require.Equal(t, types.StatusFilled, c.Status)

		c, err = m.Verify(ctx, "c1")
		require.NoError(t, err)
		require.Equal(t, types.StatusVerified, c.Status)
	})

	t.Run("all skipped", func(t *testing.T) {
		store := source.NewMemoryCanisters(canister("c1", "S1", "A", "A-1-1", slots("P1", 1)...))
		m := newMachine(t, store)
		_, err := m.Begin(ctx, "S1", "c1")
		require.NoError(t, err)

		c, err := m.MarkSlot(ctx, "S1", "c1", 0, types.SlotSkipped)
		require.NoError(t, err)
		require.Equal(t, types.StatusSkipped, c.Status)
	})

	t.Run("errors", func(t *testing.T) {
		store := source.NewMemoryCanisters(canister("c1", "S1", "A", "A-1-1", slots("P1", 1)...))
		m := newMachine(t, store)

		_, err := m.MarkSlot(ctx, "S1", "c1", 0, types.SlotFilled)
		require.ErrorIs(t, err, types.ErrInvalidTransition, "not begun")

		_, err = m.Begin(ctx, "S2", "c1")
		require.ErrorIs(t, err, types.ErrForeignCanister)

		_, err = m.Begin(ctx, "S1", "c1")
		require.NoError(t, err)
		_, err = m.Begin(ctx, "S1", "c1")
		require.ErrorIs(t, err, types.ErrInvalidTransition)

		_, err = m.MarkSlot(ctx, "S1", "c1", 5, types.SlotFilled)
		require.ErrorIs(t, err, types.ErrSlotOutOfRange)
		_, err = m.MarkSlot(ctx, "S1", "c1", 0, types.SlotRTSRequired)
		require.ErrorIs(t, err, types.ErrInvalidTransition)
		_, err = m.MarkSlot(ctx, "S2", "c1", 0, types.SlotFilled)
		require.ErrorIs(t, err, types.ErrForeignCanister)

		_, err = m.Begin(ctx, "S1", "missing")
		require.ErrorIs(t, err, types.ErrCanisterNotFound)

		status, err := store.Status(ctx, "c1")
		require.NoError(t, err)
		require.Equal(t, types.StatusInProgress, status)
	})

	t.Run("concurrent slot updates are serialized", func(t *testing.T) {
		const n = 32
		store := source.NewMemoryCanisters(canister("c1", "S1", "A", "A-1-1", slots("P1", n)...))
		m := newMachine(t, store)
		_, err := m.Begin(ctx, "S1", "c1")
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := range n {
			wg.Go(func() {
				_, err := m.MarkSlot(ctx, "S1", "c1", i, types.SlotFilled)
				require.NoError(t, err)
			})
		}
		wg.Wait()

		c, err := store.Canister(ctx, "c1")
		require.NoError(t, err)
		require.Equal(t, types.StatusFilled, c.Status)
		for _, s := range c.Slots {
			require.Equal(t, types.SlotFilled, s.Status)
		}
	})
}

func TestDiversions(t *testing.T) {
	ctx := context.Background()

	t.Run("mvs fallback", func(t *testing.T) {
		store := source.NewMemoryCanisters(canister("c1", "S1", "A", "A-1-1", slots("P1", 2)...))
		m := newMachine(t, store)

		c, err := m.RequireMVS(ctx, "c1")
		require.NoError(t, err)
		require.Equal(t, types.StatusMVSFillingRequired, c.Status)

		_, err = m.Verify(ctx, "c1")
		require.ErrorIs(t, err, types.ErrInvalidTransition)

		c, err = m.MarkMVSFilled(ctx, "c1")
		require.NoError(t, err)
		require.Equal(t, types.StatusMVSFilled, c.Status)
		require.Equal(t, types.SlotFilled, c.Slots[1].Status)

		c, err = m.Verify(ctx, "c1")
		require.NoError(t, err)
		require.Equal(t, types.StatusVerified, c.Status)

		_, err = m.Deactivate(ctx, "c1")
		require.ErrorIs(t, err, types.ErrInvalidTransition)
	})

	t.Run("requeue clears assignment", func(t *testing.T) {
		c := canister("c1", "S1", "A", "A-1-1", slots("P1", 1)...)
		c.OrderNo = types.Ptr(int64(4))
		c.RunID = "run-1"
		store := source.NewMemoryCanisters(c)
		m := newMachine(t, store)

		_, err := m.RemovePack(ctx, "c1", "P1")
		require.NoError(t, err)

		got, err := m.Requeue(ctx, "c1")
		require.NoError(t, err)
		require.Equal(t, types.StatusPending, got.Status)
		require.Nil(t, got.TrolleyID)
		require.Nil(t, got.LocationID)
		require.Nil(t, got.OrderNo)
		require.Nil(t, got.StationID)
		require.Empty(t, got.RunID)
		require.Equal(t, types.SlotPending, got.Slots[0].Status)
	})

	t.Run("misplaced flag leaves status alone", func(t *testing.T) {
		store := source.NewMemoryCanisters(canister("c1", "S1", "A", "A-1-1"))
		m := newMachine(t, store)

		c, err := m.MarkMisplaced(ctx, "S1", "c1")
		require.NoError(t, err)
		require.True(t, c.Misplaced)
		require.Equal(t, types.StatusPending, c.Status)

		c, err = m.MarkFound(ctx, "c1")
		require.NoError(t, err)
		require.False(t, c.Misplaced)
	})

	t.Run("deactivate", func(t *testing.T) {
		store := source.NewMemoryCanisters(canister("c1", "S1", "A", "A-1-1"))
		m := newMachine(t, store)

		c, err := m.Deactivate(ctx, "c1")
		require.NoError(t, err)
		require.Equal(t, types.StatusDeactivated, c.Status)
	})
}

func TestReroute(t *testing.T) {
	ctx := context.Background()

	onStation := func(id, location string) types.Canister {
		c := canister(id, "S1", "T1", location)
		c.Status = types.StatusInProgress

		return c
	}

	t.Run("takes first location free of others", func(t *testing.T) {
		store := source.NewMemoryCanisters(
			onStation("c1", "T1-1-3"),
			canister("c2", "S1", "T1", "T1-1-1"),
		)
		m := newMachine(t, store)

		c, err := m.Reroute(ctx, "S1", "c1")
		require.NoError(t, err)
		require.Equal(t, types.LocationID("T1-1-2"), *c.LocationID)
		require.Equal(t, types.TrolleyID("T1"), *c.TrolleyID)
	})

	t.Run("filled canister", func(t *testing.T) {
		filled := onStation("c1", "T1-1-3")
		filled.Status = types.StatusFilled
		m := newMachine(t, source.NewMemoryCanisters(filled))

		c, err := m.Reroute(ctx, "S1", "c1")
		require.NoError(t, err)
		require.Equal(t, types.LocationID("T1-1-1"), *c.LocationID)
		require.Equal(t, types.StatusFilled, c.Status)
	})

	t.Run("resolved canisters do not hold locations", func(t *testing.T) {
		done := canister("c2", "S1", "T1", "T1-1-1")
		done.Status = types.StatusSkipped
		store := source.NewMemoryCanisters(onStation("c1", "T1-1-3"), done)
		m := newMachine(t, store)

		c, err := m.Reroute(ctx, "S1", "c1")
		require.NoError(t, err)
		require.Equal(t, types.LocationID("T1-1-1"), *c.LocationID)
	})

	t.Run("full trolley", func(t *testing.T) {
		store := source.NewMemoryCanisters(
			onStation("c1", ""),
			canister("c2", "S1", "T1", "T1-1-1"),
			canister("c3", "S1", "T1", "T1-1-2"),
			canister("c4", "S1", "T1", "T1-1-3"),
		)
		m := newMachine(t, store)

		_, err := m.Reroute(ctx, "S1", "c1")
		require.ErrorIs(t, err, types.ErrNoFreeLocation)
	})

	t.Run("deferred canister keeps waiting for its trip", func(t *testing.T) {
		store := source.NewMemoryCanisters(canister("c1", "S1", "T1", ""))
		m := newMachine(t, store)

		_, err := m.Reroute(ctx, "S1", "c1")
		require.ErrorIs(t, err, types.ErrInvalidTransition)

		c, err := store.Canister(ctx, "c1")
		require.NoError(t, err)
		require.Nil(t, c.LocationID)
		require.False(t, c.OccupiesTrolley("T1"))
	})

	t.Run("resolved canister", func(t *testing.T) {
		verified := onStation("c1", "T1-1-3")
		verified.Status = types.StatusVerified
		m := newMachine(t, source.NewMemoryCanisters(verified))

		_, err := m.Reroute(ctx, "S1", "c1")
		require.ErrorIs(t, err, types.ErrInvalidTransition)
	})

	t.Run("foreign station", func(t *testing.T) {
		store := source.NewMemoryCanisters(onStation("c1", "T1-1-3"))
		m := newMachine(t, store)

		_, err := m.Reroute(ctx, "S2", "c1")
		require.ErrorIs(t, err, types.ErrForeignCanister)
	})

	t.Run("no trolley pool", func(t *testing.T) {
		store := source.NewMemoryCanisters(onStation("c1", "T1-1-3"))
		m := newMachine(t, store, func(c *Config) { c.Trolleys = nil })

		_, err := m.Reroute(ctx, "S1", "c1")
		require.ErrorIs(t, err, types.ErrCollaboratorRequired)
	})
}

func TestTrolleyFreed(t *testing.T) {
	ctx := context.Background()
	store := source.NewMemoryCanisters(
		canister("c1", "S1", "A", "A-1-1", slots("P1", 1)...),
		canister("c2", "S2", "A", "A-1-2", slots("P2", 1)...),
		canister("c3", "S2", "B", "B-1-1", slots("P3", 1)...),
	)
	counting := &countingMetrics{NopMetrics: metrics.NewNop()}

	freed := make(chan types.TrolleyID, 4)
	var hooked atomic.Int32
	m := newMachine(t, store, func(c *Config) {
		c.Metrics = counting
		c.OnTrolleyFreed = func(_ context.Context, trolley types.TrolleyID) { freed <- trolley }
		c.Hooks = &types.Hooks{OnTrolleyFreed: func(context.Context, types.TrolleyID) error {
			hooked.Add(1)
			return nil
		}}
	})

	_, err := m.RemovePack(ctx, "c1", "P1")
	require.NoError(t, err)
	select {
	case id := <-freed:
		t.Fatalf("trolley %s freed while c2 is pending", id)
	case <-time.After(20 * time.Millisecond):
	}

	_, err = m.Begin(ctx, "S2", "c2")
	require.NoError(t, err)
	_, err = m.MarkSlot(ctx, "S2", "c2", 0, types.SlotFilled)
	require.NoError(t, err)

	select {
	case id := <-freed:
		require.Equal(t, types.TrolleyID("A"), id)
	case <-time.After(time.Second):
		t.Fatal("trolley A was not freed")
	}

	m.WaitForShutdown()
	require.Equal(t, int32(1), hooked.Load())
	require.Equal(t, int32(1), counting.freed.Load())
	require.Equal(t, int32(3), counting.transitions.Load())
}

func TestSubscribe(t *testing.T) {
	ctx := context.Background()

	t.Run("receives events", func(t *testing.T) {
		store := source.NewMemoryCanisters(canister("c1", "S1", "A", "A-1-1", slots("P1", 1)...))
		var seen []Event
		m := newMachine(t, store, func(c *Config) {
			c.OnEvent = func(_ context.Context, ev Event) { seen = append(seen, ev) }
			c.Clock = func() time.Time { return time.Unix(100, 0) }
		})

		events, unsubscribe := m.Subscribe()
		defer unsubscribe()

		_, err := m.Begin(ctx, "S1", "c1")
		require.NoError(t, err)

		ev := <-events
		require.Equal(t, types.CanisterID("c1"), ev.CanisterID)
		require.Equal(t, types.StatusPending, ev.From)
		require.Equal(t, types.StatusInProgress, ev.To)
		require.True(t, ev.StatusChanged())
		require.Equal(t, types.StationID("S1"), *ev.StationID)
		require.Equal(t, time.Unix(100, 0), ev.At)
		require.Len(t, seen, 1)

		_, err = m.MarkMisplaced(ctx, "S1", "c1")
		require.NoError(t, err)
		ev = <-events
		require.False(t, ev.StatusChanged())
		require.True(t, ev.Misplaced)
	})

	t.Run("slow subscriber drops events", func(t *testing.T) {
		store := source.NewMemoryCanisters(canister("c1", "S1", "A", "A-1-1"))
		counting := &countingMetrics{NopMetrics: metrics.NewNop()}
		m := newMachine(t, store, func(c *Config) {
			c.Metrics = counting
			c.EventBufferSize = 1
		})

		_, unsubscribe := m.Subscribe()
		for range 3 {
			_, err := m.MarkMisplaced(ctx, "S1", "c1")
			require.NoError(t, err)
		}
		require.Equal(t, int32(2), counting.dropped.Load())

		unsubscribe()
		unsubscribe()
		_, err := m.MarkFound(ctx, "c1")
		require.NoError(t, err)
		require.Equal(t, int32(2), counting.dropped.Load())
	})

	t.Run("failed change emits nothing", func(t *testing.T) {
		store := source.NewMemoryCanisters(canister("c1", "S1", "A", "A-1-1"))
		m := newMachine(t, store)
		events, unsubscribe := m.Subscribe()
		defer unsubscribe()

		_, err := m.Verify(ctx, "c1")
		require.Error(t, err)
		select {
		case ev := <-events:
			t.Fatalf("unexpected event %+v", ev)
		default:
		}
	})
}

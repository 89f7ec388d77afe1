package hooks

import (
	"context"
	"errors"
	"testing"

	"github.com/arloliu/fillsched/types"
	"github.com/stretchr/testify/require"
)

func TestNewNop(t *testing.T) {
	hooks := NewNop()

	require.NotNil(t, hooks.OnCommitted)
	require.NotNil(t, hooks.OnStatusChanged)
	require.NotNil(t, hooks.OnTrolleyFreed)
	require.NotNil(t, hooks.OnError)
}

func TestNopHooks_Callbacks(t *testing.T) {
	hooks := NewNop()
	ctx := context.Background()

	result := types.AssignmentResult{
		"c1": {TrolleyID: "A", OrderNo: 1, TrolleySequence: 1, StationID: "S1"},
	}
	require.NoError(t, hooks.OnCommitted(ctx, "run-1", result))
	require.NoError(t, hooks.OnStatusChanged(ctx, "c1", types.StatusPending, types.StatusInProgress))
	require.NoError(t, hooks.OnTrolleyFreed(ctx, "A"))
	require.NoError(t, hooks.OnError(ctx, context.Canceled))
}

func TestComplete(t *testing.T) {
	t.Run("nil hooks", func(t *testing.T) {
		h := Complete(nil)
		require.NoError(t, h.OnError(context.Background(), errors.New("x")))
	})

	t.Run("keeps caller callbacks", func(t *testing.T) {
		var freed types.TrolleyID
		h := Complete(&types.Hooks{
			OnTrolleyFreed: func(_ context.Context, trolley types.TrolleyID) error {
				freed = trolley
				return errors.New("dock offline")
			},
		})

		require.Error(t, h.OnTrolleyFreed(context.Background(), "B"))
		require.Equal(t, types.TrolleyID("B"), freed)
		require.NotNil(t, h.OnCommitted)
		require.NoError(t, h.OnStatusChanged(context.Background(), "c1", types.StatusFilled, types.StatusVerified))
	})
}

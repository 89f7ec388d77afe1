package hooks

import (
	"context"

	"github.com/arloliu/fillsched/types"
)

// NopHooks implements Hooks with no-op callbacks.
//
// This is the default implementation used when no custom hooks are provided,
// eliminating the need for nil checks throughout the codebase.
type NopHooks struct{}

// Compile-time assertions that NopHooks implements hook callbacks.
var (
	_ func(context.Context, string, types.AssignmentResult) error                               = (*NopHooks)(nil).OnCommitted
	_ func(context.Context, types.CanisterID, types.CanisterStatus, types.CanisterStatus) error = (*NopHooks)(nil).OnStatusChanged
	_ func(context.Context, types.TrolleyID) error                                              = (*NopHooks)(nil).OnTrolleyFreed
	_ func(context.Context, error) error                                                        = (*NopHooks)(nil).OnError
)

// NewNop creates a new no-op hooks implementation.
//
// Returns:
//   - types.Hooks: Hooks with no-op implementations
func NewNop() types.Hooks {
	h := &NopHooks{}
	return types.Hooks{
		OnCommitted:     h.OnCommitted,
		OnStatusChanged: h.OnStatusChanged,
		OnTrolleyFreed:  h.OnTrolleyFreed,
		OnError:         h.OnError,
	}
}

// Complete returns a copy of h with every nil callback replaced by a no-op.
//
// Parameters:
//   - h: Caller hooks (nil for all no-ops)
//
// Returns:
//   - types.Hooks: Hooks safe to call without nil checks
func Complete(h *types.Hooks) types.Hooks {
	out := NewNop()
	if h == nil {
		return out
	}
	if h.OnCommitted != nil {
		out.OnCommitted = h.OnCommitted
	}
	if h.OnStatusChanged != nil {
		out.OnStatusChanged = h.OnStatusChanged
	}
	if h.OnTrolleyFreed != nil {
		out.OnTrolleyFreed = h.OnTrolleyFreed
	}
	if h.OnError != nil {
		out.OnError = h.OnError
	}

	return out
}

// OnCommitted is a no-op implementation.
func (h *NopHooks) OnCommitted(ctx context.Context, runID string, result types.AssignmentResult) error {
	return nil
}

// OnStatusChanged is a no-op implementation.
func (h *NopHooks) OnStatusChanged(ctx context.Context, canister types.CanisterID, from, to types.CanisterStatus) error {
	return nil
}

// OnTrolleyFreed is a no-op implementation.
func (h *NopHooks) OnTrolleyFreed(ctx context.Context, trolley types.TrolleyID) error {
	return nil
}

// OnError is a no-op implementation.
func (h *NopHooks) OnError(ctx context.Context, err error) error {
	return nil
}

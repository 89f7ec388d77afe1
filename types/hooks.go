package types

import "context"

// Hooks defines callbacks for scheduler lifecycle events.
//
// All hooks are optional.
//
// IMPORTANT: Hook execution behavior:
//   - Hook errors are logged but don't fail scheduler operations
//   - OnCommitted, OnStatusChanged and OnError run on the caller's goroutine
//   - OnTrolleyFreed runs on a status machine goroutine with a context that
//     is not cancelled with the caller's
//
// Example:
//
//	hooks := &fillsched.Hooks{
//	    OnTrolleyFreed: func(ctx context.Context, trolley fillsched.TrolleyID) error {
//	        return notifyDock(ctx, trolley)
//	    },
//	}
type Hooks struct {
	// OnCommitted is called after a run's assignment is persisted.
	OnCommitted func(ctx context.Context, runID string, result AssignmentResult) error

	// OnStatusChanged is called after a canister status transition.
	OnStatusChanged func(ctx context.Context, canister CanisterID, from, to CanisterStatus) error

	// OnTrolleyFreed is called when a trolley no longer holds unresolved canisters.
	OnTrolleyFreed func(ctx context.Context, trolley TrolleyID) error

	// OnError is called when a recoverable error occurs.
	OnError func(ctx context.Context, err error) error
}

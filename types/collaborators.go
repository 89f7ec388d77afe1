package types

import "context"

// CapacityRegistry exposes the enabled canister locations per device quadrant.
//
// Capacity is mutable over time (locations can be disabled), so callers read
// it once per scheduling run and treat the value as a snapshot.
type CapacityRegistry interface {
	// EnabledLocations returns the number of enabled locations for (device, quadrant).
	//
	// Parameters:
	//   - ctx: Context for cancellation
	//   - device: Destination device ID
	//   - quadrant: Quadrant number (1-based)
	//
	// Returns:
	//   - int: Enabled location count (0 if the quadrant is disabled)
	//   - error: Lookup error
	EnabledLocations(ctx context.Context, device DeviceID, quadrant Quadrant) (int, error)
}

// PendingWorkIndex exposes the pending packs awaiting manual fill.
type PendingWorkIndex interface {
	// PacksForDevice returns the pending packs for device in original queue order.
	PacksForDevice(ctx context.Context, device DeviceID) ([]PendingPack, error)
}

// TrolleyPool exposes the physical trolleys.
type TrolleyPool interface {
	// Available returns the trolleys that may receive a new trip, in preference order.
	//
	// Parameters:
	//   - ctx: Context for cancellation
	//   - excludeInUseByOtherBatches: Omit trolleys still holding other batches' canisters
	//
	// Returns:
	//   - []TrolleyID: Ordered trolley IDs
	//   - error: Lookup error
	Available(ctx context.Context, excludeInUseByOtherBatches bool) ([]TrolleyID, error)

	// DrawerLayout returns the trolley's drawers in physical order.
	DrawerLayout(ctx context.Context, trolley TrolleyID) (DrawerLayout, error)
}

// StationRegistry exposes the fill stations selected by the caller.
type StationRegistry interface {
	// Selected returns the selected stations in selection order.
	Selected(ctx context.Context) ([]Station, error)
}

// CanisterStatusStore reads and writes canister status values.
type CanisterStatusStore interface {
	// Status returns the current status of a canister.
	Status(ctx context.Context, id CanisterID) (CanisterStatus, error)

	// SetStatus overwrites the status of a canister.
	SetStatus(ctx context.Context, id CanisterID, status CanisterStatus) error
}

// CanisterStore extends CanisterStatusStore with full canister records.
//
// Implementations must be safe for concurrent use. Fill stations call the
// store concurrently, each for its own canisters only.
type CanisterStore interface {
	CanisterStatusStore

	// Canister returns the full record. Returns ErrCanisterNotFound if unknown.
	Canister(ctx context.Context, id CanisterID) (Canister, error)

	// SaveCanister creates or replaces the full record.
	SaveCanister(ctx context.Context, c Canister) error

	// CanistersOnTrolley returns every canister whose home trolley is trolley.
	CanistersOnTrolley(ctx context.Context, trolley TrolleyID) ([]Canister, error)
}

// AssignmentCommitter persists a scheduling run atomically.
type AssignmentCommitter interface {
	// Commit writes every canister of the commit in one transaction.
	//
	// Either all canister rows are written or none are.
	Commit(ctx context.Context, commit Commit) error

	// HighWater returns the highest committed order number and trolley sequence.
	//
	// A scheduler seeds its Sequencer from these values so that numbering stays
	// monotonic across scheduler restarts.
	HighWater(ctx context.Context) (orderNo int64, trolleySequence int64, err error)
}

// DocumentStore is an optimistic-concurrency key/value store for station documents.
//
// Revisions are opaque, strictly increasing per key. Revision 0 means "absent".
type DocumentStore interface {
	// Get returns the document and its revision.
	// Returns ErrDocumentNotFound if the key does not exist.
	Get(ctx context.Context, key string) ([]byte, uint64, error)

	// Put writes doc if the stored revision equals revision.
	//
	// Passing revision 0 creates the key. On mismatch, returns ErrRevisionConflict
	// and leaves the stored document untouched.
	//
	// Returns:
	//   - uint64: The new revision
	//   - error: ErrRevisionConflict, ErrDocumentStoreUnavailable when the store
	//     cannot be reached, or another transport error
	Put(ctx context.Context, key string, doc []byte, revision uint64) (uint64, error)
}

// Sequencer hands out the global fill order and trolley-sequence numbers.
//
// Implementations have a single owner and must be strictly monotonic.
type Sequencer interface {
	// NextOrder returns the next global order number.
	NextOrder() int64

	// NextTrip returns the next trolley-sequence (trip) number.
	NextTrip() int64
}

// ReuseConfirmer optionally confirms a reused trolley is physically empty.
//
// Reuse eligibility is otherwise inferred from canister status alone.
type ReuseConfirmer interface {
	// ConfirmEmpty returns true once the trolley was confirmed physically empty.
	ConfirmEmpty(ctx context.Context, trolley TrolleyID) (bool, error)
}

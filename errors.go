package fillsched

import "github.com/arloliu/fillsched/types"

// Sentinel errors returned by the Scheduler and the status machine.
//
// They are defined in the types package so internal packages can return them;
// match them with errors.Is.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = types.ErrInvalidConfig

	// ErrCollaboratorRequired is returned when a required collaborator is nil.
	ErrCollaboratorRequired = types.ErrCollaboratorRequired

	// ErrCapacityInfeasible is returned when packs cannot fit device capacity.
	ErrCapacityInfeasible = types.ErrCapacityInfeasible

	// ErrTrolleyExhausted is returned when trips cannot be placed on trolleys.
	ErrTrolleyExhausted = types.ErrTrolleyExhausted

	// ErrStationSelectionInsufficient is returned when too few stations are selected.
	ErrStationSelectionInsufficient = types.ErrStationSelectionInsufficient

	// ErrReuseConflict is returned when a trolley still holds unresolved canisters.
	ErrReuseConflict = types.ErrReuseConflict

	// ErrRunCancelled is returned when the caller's context ends before commit.
	ErrRunCancelled = types.ErrRunCancelled

	// ErrNoDeferredTrip is returned when a trolley has no trip awaiting binding.
	ErrNoDeferredTrip = types.ErrNoDeferredTrip

	// ErrRunAlreadyCommitted is returned when a recommendation is committed twice.
	ErrRunAlreadyCommitted = types.ErrRunAlreadyCommitted

	// ErrStaleRecommendation is returned when another run scheduled the same canisters first.
	ErrStaleRecommendation = types.ErrStaleRecommendation

	// ErrDrawerOverflow is returned when a trip does not fit a trolley's drawers.
	ErrDrawerOverflow = types.ErrDrawerOverflow

	// ErrNoFreeLocation is returned when a reroute finds no empty trolley location.
	ErrNoFreeLocation = types.ErrNoFreeLocation

	// ErrInvalidTransition is returned for a status change the lifecycle does not allow.
	ErrInvalidTransition = types.ErrInvalidTransition

	// ErrForeignCanister is returned when a station acts on another station's canister.
	ErrForeignCanister = types.ErrForeignCanister

	// ErrCanisterNotFound is returned when a canister has no record.
	ErrCanisterNotFound = types.ErrCanisterNotFound

	// ErrSlotOutOfRange is returned for a drug slot index outside the canister.
	ErrSlotOutOfRange = types.ErrSlotOutOfRange

	// ErrDocumentNotFound is returned when a station document does not exist.
	ErrDocumentNotFound = types.ErrDocumentNotFound

	// ErrRevisionConflict is returned when a document changed since it was read.
	ErrRevisionConflict = types.ErrRevisionConflict

	// ErrDocumentRetriesExhausted is returned when a document update keeps conflicting.
	ErrDocumentRetriesExhausted = types.ErrDocumentRetriesExhausted

	// ErrDocumentStoreUnavailable is returned when a transient store failure outlasts the retries.
	ErrDocumentStoreUnavailable = types.ErrDocumentStoreUnavailable
)

// Typed errors carrying details of a rejected commit.
type (
	ReuseConflictError    = types.ReuseConflictError
	StationSelectionError = types.StationSelectionError
)

// IsReuseConflict reports whether err is or wraps ErrReuseConflict.
func IsReuseConflict(err error) bool {
	return types.IsReuseConflict(err)
}

// IsStationSelectionInsufficient reports whether err is or wraps ErrStationSelectionInsufficient.
func IsStationSelectionInsufficient(err error) bool {
	return types.IsStationSelectionInsufficient(err)
}

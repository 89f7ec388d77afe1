package types

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the fillsched library.
//
// These errors provide type-safe error checking using errors.Is() and errors.As().
// All components should use these sentinel errors for known error conditions
// and wrap external errors with context using fmt.Errorf("%s: %w", msg, err).

// Scheduler errors - Public API errors returned by the Scheduler.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrCollaboratorRequired is returned when a required collaborator is nil.
	ErrCollaboratorRequired = errors.New("collaborator is required")

	// ErrCapacityInfeasible is returned when a pack closure cannot fit any mini-batch.
	ErrCapacityInfeasible = errors.New("capacity infeasible")

	// ErrTrolleyExhausted is returned when no trolley can take the run's trips.
	ErrTrolleyExhausted = errors.New("trolleys exhausted")

	// ErrStationSelectionInsufficient is returned when too few stations are selected.
	ErrStationSelectionInsufficient = errors.New("station selection insufficient")

	// ErrReuseConflict is returned when a trolley still holding unresolved canisters
	// would be handed to a new trip. The run is aborted.
	ErrReuseConflict = errors.New("trolley reuse conflict")

	// ErrRunCancelled is returned when a run was cancelled before commit.
	ErrRunCancelled = errors.New("scheduling run cancelled")

	// ErrNoDeferredTrip is returned when a trolley has no trip awaiting binding.
	ErrNoDeferredTrip = errors.New("no deferred trip for trolley")

	// ErrRunAlreadyCommitted is returned when a recommendation is committed twice.
	ErrRunAlreadyCommitted = errors.New("run already committed")

	// ErrStaleRecommendation is returned when a recommendation's canisters were
	// scheduled by another run after it was computed.
	ErrStaleRecommendation = errors.New("stale recommendation")
)

// Trolley assigner errors.
var (
	// ErrDrawerOverflow is returned when a trip's canisters exceed the trolley's locations.
	ErrDrawerOverflow = errors.New("drawer capacity exceeded")

	// ErrNoFreeLocation is returned when the empty-location search finds nothing.
	ErrNoFreeLocation = errors.New("no free trolley location")
)

// Status machine errors.
var (
	// ErrInvalidTransition is returned for a transition the lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid canister status transition")

	// ErrForeignCanister is returned when a station acts on a canister bound elsewhere.
	ErrForeignCanister = errors.New("canister is bound to another station")

	// ErrCanisterNotFound is returned when a canister record does not exist.
	ErrCanisterNotFound = errors.New("canister not found")

	// ErrSlotOutOfRange is returned when a drug slot index is invalid.
	ErrSlotOutOfRange = errors.New("drug slot out of range")
)

// Document sync errors.
var (
	// ErrDocumentNotFound is returned when a station document does not exist.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrRevisionConflict is returned when a document write loses a revision race.
	ErrRevisionConflict = errors.New("document revision conflict")

	// ErrDocumentRetriesExhausted is returned when conflicts persist past the retry limit.
	ErrDocumentRetriesExhausted = errors.New("document update retries exhausted")

	// ErrDocumentStoreUnavailable is returned when the document store cannot be reached.
	ErrDocumentStoreUnavailable = errors.New("document store unavailable")
)

// ReuseConflictError describes an attempt to reuse an occupied trolley.
type ReuseConflictError struct {
	TrolleyID TrolleyID
	// Occupants are the unresolved canisters still bound to the trolley.
	Occupants []CanisterID
}

// Error implements error.
func (e *ReuseConflictError) Error() string {
	ids := make([]string, len(e.Occupants))
	for i, id := range e.Occupants {
		ids[i] = string(id)
	}

	return fmt.Sprintf("%s: trolley %s still holds unresolved canisters [%s]",
		ErrReuseConflict, e.TrolleyID, strings.Join(ids, ","))
}

// Unwrap returns ErrReuseConflict.
func (e *ReuseConflictError) Unwrap() error {
	return ErrReuseConflict
}

// StationSelectionError describes a station selection that cannot carry the run's trips.
type StationSelectionError struct {
	Required   int
	Selected   int
	Additional int
	// SuggestedLinks lists selected stations that share an operator but are not linked.
	SuggestedLinks []StationLink
}

// Error implements error.
func (e *StationSelectionError) Error() string {
	msg := fmt.Sprintf("%s: %d station units selected, %d required (select %d more)",
		ErrStationSelectionInsufficient, e.Selected, e.Required, e.Additional)
	if len(e.SuggestedLinks) > 0 {
		msg += fmt.Sprintf("; %d station pair(s) share an operator and should be linked", len(e.SuggestedLinks))
	}

	return msg
}

// Unwrap returns ErrStationSelectionInsufficient.
func (e *StationSelectionError) Unwrap() error {
	return ErrStationSelectionInsufficient
}

// IsReuseConflict reports whether err is (or wraps) a trolley reuse conflict.
//
// Parameters:
//   - err: The error to check
//
// Returns:
//   - bool: true if the error is a ReuseConflict, false otherwise
func IsReuseConflict(err error) bool {
	return errors.Is(err, ErrReuseConflict)
}

// IsStationSelectionInsufficient reports whether err is a station shortfall.
func IsStationSelectionInsufficient(err error) bool {
	return errors.Is(err, ErrStationSelectionInsufficient)
}

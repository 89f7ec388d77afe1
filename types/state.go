package types

// CanisterStatus represents the canister lifecycle state.
//
// The main flow is:
//
//	StatusPending → StatusInProgress → StatusFilled → StatusVerified
//
// Diversion states:
//
//	StatusSkipped, StatusRTSRequired, StatusMVSFillingRequired → StatusMVSFilled, StatusDeactivated
//
// Misplacement is tracked by the Canister.Misplaced flag and is orthogonal to
// the main flow.
type CanisterStatus int

const (
	// StatusPending indicates the canister is scheduled but not yet placed on a station.
	StatusPending CanisterStatus = iota

	// StatusInProgress indicates an operator has begun filling the canister.
	StatusInProgress

	// StatusFilled indicates every drug slot is filled or skipped.
	StatusFilled

	// StatusVerified indicates the filled canister passed verification (terminal success).
	StatusVerified

	// StatusSkipped indicates the canister will not be filled in this batch.
	StatusSkipped

	// StatusRTSRequired indicates filled drug must be returned to stock.
	StatusRTSRequired

	// StatusMVSFillingRequired indicates the canister must be filled at the
	// manual verification station instead.
	StatusMVSFillingRequired

	// StatusMVSFilled indicates the canister was filled at the manual verification station.
	StatusMVSFilled

	// StatusDeactivated indicates the canister was removed from service (terminal).
	StatusDeactivated
)

// String returns the string representation of the status.
func (s CanisterStatus) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusInProgress:
		return "IN_PROGRESS"
	case StatusFilled:
		return "FILLED"
	case StatusVerified:
		return "VERIFIED"
	case StatusSkipped:
		return "SKIPPED"
	case StatusRTSRequired:
		return "RTS_REQUIRED"
	case StatusMVSFillingRequired:
		return "MVS_FILLING_REQUIRED"
	case StatusMVSFilled:
		return "MVS_FILLED"
	case StatusDeactivated:
		return "DEACTIVATED"
	default:
		return "UNKNOWN"
	}
}

// ParseCanisterStatus converts the string form produced by String back into a status.
//
// Parameters:
//   - s: Status name (e.g., "IN_PROGRESS")
//
// Returns:
//   - CanisterStatus: Parsed status
//   - bool: false if the name is unknown
func ParseCanisterStatus(s string) (CanisterStatus, bool) {
	for st := StatusPending; st <= StatusDeactivated; st++ {
		if st.String() == s {
			return st, true
		}
	}

	return 0, false
}

// Unresolved reports whether the canister still holds its trolley slot.
//
// Only pending and in-progress canisters block trolley reuse.
func (s CanisterStatus) Unresolved() bool {
	return s == StatusPending || s == StatusInProgress
}

// Terminal reports whether no further transition is possible.
func (s CanisterStatus) Terminal() bool {
	return s == StatusVerified || s == StatusDeactivated
}

// SlotStatus is the fill state of a single drug slot row inside a canister.
type SlotStatus int

const (
	// SlotPending indicates the drug has not been placed yet.
	SlotPending SlotStatus = iota
	// SlotFilled indicates the drug was placed.
	SlotFilled
	// SlotSkipped indicates the drug will not be placed.
	SlotSkipped
	// SlotRTSRequired indicates the placed drug must be returned to stock.
	SlotRTSRequired
)

// String returns the string representation of the slot status.
func (s SlotStatus) String() string {
	switch s {
	case SlotPending:
		return "PENDING"
	case SlotFilled:
		return "FILLED"
	case SlotSkipped:
		return "SKIPPED"
	case SlotRTSRequired:
		return "RTS_REQUIRED"
	default:
		return "UNKNOWN"
	}
}

// ParseSlotStatus converts a slot status name back into a SlotStatus.
func ParseSlotStatus(s string) (SlotStatus, bool) {
	for st := SlotPending; st <= SlotRTSRequired; st++ {
		if st.String() == s {
			return st, true
		}
	}

	return 0, false
}

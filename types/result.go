package types

import "fmt"

// CanisterAssignment is the scheduled placement of a single canister.
type CanisterAssignment struct {
	TrolleyID TrolleyID `json:"trolleyId"`

	// DrawerLocationID is nil when the trip reuses a trolley and binding is deferred.
	DrawerLocationID *LocationID `json:"drawerLocationId,omitempty"`
	OrderNo          int64       `json:"orderNo"`
	TrolleySequence  int64       `json:"trolleySequence"`
	StationID        StationID   `json:"stationId"`
}

// AssignmentResult maps every scheduled canister to its placement.
type AssignmentResult map[CanisterID]CanisterAssignment

// InfeasibleCode classifies why a pack left the manual-fill flow.
type InfeasibleCode string

const (
	// InfeasibleCapacityExceeded means the pack's closure exceeds a quadrant's capacity.
	InfeasibleCapacityExceeded InfeasibleCode = "capacity_exceeded"
	// InfeasibleQuadrantDisabled means the destination quadrant has no enabled locations.
	InfeasibleQuadrantDisabled InfeasibleCode = "quadrant_disabled"
	// InfeasibleInvalidQuadrant means the destination quadrant is out of range.
	InfeasibleInvalidQuadrant InfeasibleCode = "invalid_quadrant"
	// InfeasibleNoCanisters means the pack requires no canisters.
	InfeasibleNoCanisters InfeasibleCode = "no_canisters"
	// InfeasibleCrossDeviceShare means the pack's closure reaches packs of another device.
	InfeasibleCrossDeviceShare InfeasibleCode = "cross_device_share"
)

// InfeasibleReason explains why a pack cannot be scheduled.
type InfeasibleReason struct {
	Code     InfeasibleCode `json:"code"`
	DeviceID DeviceID       `json:"deviceId"`
	Quadrant Quadrant       `json:"quadrant,omitempty"`
	Required int            `json:"required,omitempty"`
	Capacity int            `json:"capacity,omitempty"`

	// ClosureRoot is the first queued pack of the closure the pack belongs to.
	ClosureRoot PackID `json:"closureRoot,omitempty"`
}

// String renders the reason for logs and operator prompts.
func (r InfeasibleReason) String() string {
	switch r.Code {
	case InfeasibleCapacityExceeded:
		return fmt.Sprintf("%s: quadrant %s/%d needs %d locations, capacity %d",
			r.Code, r.DeviceID, r.Quadrant, r.Required, r.Capacity)
	case InfeasibleQuadrantDisabled, InfeasibleInvalidQuadrant:
		return fmt.Sprintf("%s: quadrant %s/%d", r.Code, r.DeviceID, r.Quadrant)
	default:
		return string(r.Code)
	}
}

// InfeasiblePacks maps packs removed from the manual-fill flow to their reason.
type InfeasiblePacks map[PackID]InfeasibleReason

// FeasibilityQuery reports the trolleys and stations a run requires.
type FeasibilityQuery struct {
	RequiredTrolleyCount  int `json:"requiredTrolleyCount"`
	RequiredStationCount  int `json:"requiredStationCount"`
	AvailableTrolleyCount int `json:"availableTrolleyCount"`

	// SelectedStationUnits counts selected stations, a linked pair counting once.
	SelectedStationUnits int `json:"selectedStationUnits"`
	AdditionalStations   int `json:"additionalStations"`

	// SuggestedLinks lists selected stations sharing an operator with no declared link.
	SuggestedLinks []StationLink `json:"suggestedLinks,omitempty"`

	// TrolleyExhausted is set when no trolley can take the run's trips, even via reuse.
	TrolleyExhausted bool `json:"trolleyExhausted"`
}

// Feasible reports whether the run can be committed as-is.
func (f FeasibilityQuery) Feasible() bool {
	return !f.TrolleyExhausted && f.AdditionalStations == 0
}

// Commit is the unit of persistence handed to an AssignmentCommitter.
type Commit struct {
	RunID       string     `json:"runId"`
	Fingerprint uint64     `json:"fingerprint"`
	Canisters   []Canister `json:"canisters"`
}

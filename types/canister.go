package types

// DrugSlot is one drug row carried by a canister.
//
// A canister shared by several packs carries one row per (pack, drug).
type DrugSlot struct {
	PackID PackID     `json:"packId"`
	DrugID string     `json:"drugId"`
	Status SlotStatus `json:"status"`
}

// Canister is one manual-fill canister instance within a batch run.
//
// The same physical canister hardware may be reused across batches; a Canister
// value is unique per run.
type Canister struct {
	ID       CanisterID     `json:"id"`
	Status   CanisterStatus `json:"status"`
	DeviceID DeviceID       `json:"deviceId"`
	Quadrant Quadrant       `json:"quadrant"`

	// TrolleyID is the home trolley; nil means not yet assigned.
	TrolleyID *TrolleyID `json:"trolleyId,omitempty"`
	// LocationID is the bound drawer location; nil while a reused trolley awaits binding.
	LocationID      *LocationID `json:"locationId,omitempty"`
	OrderNo         *int64      `json:"orderNo,omitempty"`
	TrolleySequence *int64      `json:"trolleySequence,omitempty"`
	StationID       *StationID  `json:"stationId,omitempty"`
	OperatorID      *OperatorID `json:"operatorId,omitempty"`

	Slots     []DrugSlot `json:"slots,omitempty"`
	Misplaced bool       `json:"misplaced,omitempty"`
	RunID     string     `json:"runId,omitempty"`
}

// OccupiesTrolley reports whether the canister blocks reuse of trolley.
//
// A canister occupies a trolley while it is unresolved and bound to one of the
// trolley's locations. Canisters planned onto a reused trolley carry no
// location yet and do not occupy it.
func (c *Canister) OccupiesTrolley(trolley TrolleyID) bool {
	return c.Status.Unresolved() &&
		c.TrolleyID != nil && *c.TrolleyID == trolley &&
		c.LocationID != nil
}

// BoundTo reports whether the canister is assigned to station.
func (c *Canister) BoundTo(station StationID) bool {
	return c.StationID != nil && *c.StationID == station
}

// Clone returns a deep copy of the canister.
func (c Canister) Clone() Canister {
	out := c
	out.TrolleyID = clonePtr(c.TrolleyID)
	out.LocationID = clonePtr(c.LocationID)
	out.OrderNo = clonePtr(c.OrderNo)
	out.TrolleySequence = clonePtr(c.TrolleySequence)
	out.StationID = clonePtr(c.StationID)
	out.OperatorID = clonePtr(c.OperatorID)
	if c.Slots != nil {
		out.Slots = make([]DrugSlot, len(c.Slots))
		copy(out.Slots, c.Slots)
	}

	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p

	return &v
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

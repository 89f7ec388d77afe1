package types

import (
	"fmt"
	"time"
)

// Identifier types. They are plain strings so that collaborators can use their
// own key schemes (database IDs, barcodes, RFID tags).
type (
	PackID     string
	CanisterID string
	DeviceID   string
	TrolleyID  string
	DrawerID   string
	LocationID string
	StationID  string
	OperatorID string
)

// Quadrant is one of a device's independent load zones, numbered from 1.
type Quadrant int

// Valid reports whether q lies within 1..quadrants.
func (q Quadrant) Valid(quadrants int) bool {
	return q >= 1 && int(q) <= quadrants
}

// SlotKey identifies a (device, quadrant) pair.
type SlotKey struct {
	DeviceID DeviceID
	Quadrant Quadrant
}

// String returns the "device/quadrant" form of the key.
func (k SlotKey) String() string {
	return fmt.Sprintf("%s/%d", k.DeviceID, k.Quadrant)
}

// PendingPack is a pack awaiting its manual-fill canisters.
//
// Packs are created at import and are read-only during scheduling.
type PendingPack struct {
	ID           PackID       `json:"id"`
	PatientID    string       `json:"patientId,omitempty"`
	DeliveryDate time.Time    `json:"deliveryDate"`
	DeviceID     DeviceID     `json:"deviceId"`
	Quadrant     Quadrant     `json:"quadrant"`
	CanisterIDs  []CanisterID `json:"canisterIds"`

	// QueuePosition is the pack's position in the original processing queue.
	QueuePosition int `json:"queuePosition"`

	// Drugs lists the drugs each canister carries for this pack. A canister
	// without an entry carries one unnamed drug.
	Drugs map[CanisterID][]string `json:"drugs,omitempty"`
}

// CanisterSet is an insertion-ordered set of canister IDs.
//
// The zero value is not usable; call NewCanisterSet.
type CanisterSet struct {
	ids   []CanisterID
	index map[CanisterID]struct{}
}

// NewCanisterSet creates a set containing ids in order, ignoring duplicates.
func NewCanisterSet(ids ...CanisterID) *CanisterSet {
	s := &CanisterSet{index: make(map[CanisterID]struct{}, len(ids))}
	for _, id := range ids {
		s.Add(id)
	}

	return s
}

// Add inserts id and reports whether it was newly added.
func (s *CanisterSet) Add(id CanisterID) bool {
	if _, ok := s.index[id]; ok {
		return false
	}
	s.index[id] = struct{}{}
	s.ids = append(s.ids, id)

	return true
}

// Has reports whether id is in the set.
func (s *CanisterSet) Has(id CanisterID) bool {
	_, ok := s.index[id]
	return ok
}

// Len returns the number of canisters in the set.
func (s *CanisterSet) Len() int {
	if s == nil {
		return 0
	}

	return len(s.ids)
}

// IDs returns a copy of the members in insertion order.
func (s *CanisterSet) IDs() []CanisterID {
	if s == nil {
		return nil
	}
	out := make([]CanisterID, len(s.ids))
	copy(out, s.ids)

	return out
}

// Station is a human-operated fill station.
type Station struct {
	ID         StationID  `json:"id"`
	OperatorID OperatorID `json:"operatorId"`

	// LinkedStationID names the station covered by the same operator, if any.
	LinkedStationID *StationID `json:"linkedStationId,omitempty"`
}

// StationLink is an unordered pair of stations operated by one person.
type StationLink struct {
	Primary StationID `json:"primary"`
	Partner StationID `json:"partner"`
}

// Drawer is an ordered collection of trolley locations.
type Drawer struct {
	ID        DrawerID     `json:"id"`
	Locations []LocationID `json:"locations"`
}

// DrawerLayout is the fixed physical order of a trolley's drawers.
type DrawerLayout []Drawer

// LocationCount returns the total number of locations across all drawers.
func (l DrawerLayout) LocationCount() int {
	n := 0
	for _, d := range l {
		n += len(d.Locations)
	}

	return n
}

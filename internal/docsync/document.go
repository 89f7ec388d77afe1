package docsync

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/arloliu/fillsched/types"
)

// StationDocument is the live view a fill station UI renders.
//
// Exactly one writer updates a station's document at a time; concurrent
// writers are detected by revision and retried.
type StationDocument struct {
	StationID  types.StationID  `json:"stationId"`
	OperatorID types.OperatorID `json:"operatorId,omitempty"`
	RunID      string           `json:"runId,omitempty"`
	// Trips lists the trolley sequences served by the station.
	Trips     []int64            `json:"trips,omitempty"`
	Canisters []DocumentCanister `json:"canisters"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// DocumentCanister is one canister row of a station document.
type DocumentCanister struct {
	ID         types.CanisterID `json:"id"`
	Status     string           `json:"status"`
	OrderNo    int64            `json:"orderNo"`
	TrolleyID  types.TrolleyID  `json:"trolleyId,omitempty"`
	LocationID types.LocationID `json:"locationId,omitempty"`
	Misplaced  bool             `json:"misplaced,omitempty"`
}

// Apply inserts or replaces the canister row, keeping rows in fill order.
//
// A canister no longer bound to the document's station is removed instead.
func (d *StationDocument) Apply(c types.Canister) {
	if !c.BoundTo(d.StationID) {
		d.Remove(c.ID)
		return
	}

	row := DocumentCanister{
		ID:        c.ID,
		Status:    c.Status.String(),
		Misplaced: c.Misplaced,
	}
	if c.OrderNo != nil {
		row.OrderNo = *c.OrderNo
	}
	if c.TrolleyID != nil {
		row.TrolleyID = *c.TrolleyID
	}
	if c.LocationID != nil {
		row.LocationID = *c.LocationID
	}

	replaced := false
	for i := range d.Canisters {
		if d.Canisters[i].ID == c.ID {
			d.Canisters[i] = row
			replaced = true

			break
		}
	}
	if !replaced {
		d.Canisters = append(d.Canisters, row)
	}

	sort.SliceStable(d.Canisters, func(i, j int) bool {
		if d.Canisters[i].OrderNo != d.Canisters[j].OrderNo {
			return d.Canisters[i].OrderNo < d.Canisters[j].OrderNo
		}

		return d.Canisters[i].ID < d.Canisters[j].ID
	})
}

// Remove drops the canister row if present.
func (d *StationDocument) Remove(id types.CanisterID) {
	for i := range d.Canisters {
		if d.Canisters[i].ID == id {
			d.Canisters = append(d.Canisters[:i], d.Canisters[i+1:]...)
			return
		}
	}
}

// Row returns the canister row, or false if absent.
func (d *StationDocument) Row(id types.CanisterID) (DocumentCanister, bool) {
	for _, r := range d.Canisters {
		if r.ID == id {
			return r, true
		}
	}

	return DocumentCanister{}, false
}

func decodeStation(raw []byte, station types.StationID) (*StationDocument, error) {
	doc := &StationDocument{StationID: station}
	if len(raw) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(raw, doc); err != nil {
		return nil, fmt.Errorf("decode station document %s: %w", station, err)
	}

	return doc, nil
}

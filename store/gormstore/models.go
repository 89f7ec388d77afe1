package gormstore

import (
	"strconv"
	"time"

	"github.com/arloliu/fillsched/types"
)

// canisterRow is the persisted form of types.Canister.
type canisterRow struct {
	ID              string    `gorm:"primaryKey;size:64"`
	RunID           string    `gorm:"size:64;index"`
	Status          string    `gorm:"size:32;not null"`
	DeviceID        string    `gorm:"size:64;not null"`
	Quadrant        int       `gorm:"not null"`
	TrolleyID       *string   `gorm:"size:64;index"`
	LocationID      *string   `gorm:"size:64"`
	OrderNo         *int64    `gorm:"index"`
	TrolleySequence *int64    `gorm:"index"`
	StationID       *string   `gorm:"size:64;index"`
	OperatorID      *string   `gorm:"size:64"`
	Misplaced       bool      `gorm:"not null"`
	Slots           []slotRow `gorm:"foreignKey:CanisterID;references:ID;constraint:OnDelete:CASCADE"`
	UpdatedAt       time.Time
}

func (canisterRow) TableName() string { return "fill_canisters" }

// slotRow is one drug slot of a canister, keyed by its position.
type slotRow struct {
	CanisterID string `gorm:"primaryKey;size:64"`
	Position   int    `gorm:"primaryKey;autoIncrement:false"`
	PackID     string `gorm:"size:64;not null"`
	DrugID     string `gorm:"size:64;not null"`
	Status     string `gorm:"size:32;not null"`
}

func (slotRow) TableName() string { return "fill_canister_slots" }

// runRow records a committed scheduling run.
type runRow struct {
	RunID       string `gorm:"primaryKey;size:64"`
	Fingerprint string `gorm:"size:16;not null"`
	Canisters   int    `gorm:"not null"`
	CommittedAt time.Time
}

func (runRow) TableName() string { return "fill_runs" }

// models lists every table in dependency order.
func models() []any {
	return []any{&canisterRow{}, &slotRow{}, &runRow{}}
}

func toRow(c types.Canister) canisterRow {
	row := canisterRow{
		ID:              string(c.ID),
		RunID:           c.RunID,
		Status:          c.Status.String(),
		DeviceID:        string(c.DeviceID),
		Quadrant:        int(c.Quadrant),
		TrolleyID:       stringPtr(c.TrolleyID),
		LocationID:      stringPtr(c.LocationID),
		OrderNo:         c.OrderNo,
		TrolleySequence: c.TrolleySequence,
		StationID:       stringPtr(c.StationID),
		OperatorID:      stringPtr(c.OperatorID),
		Misplaced:       c.Misplaced,
	}
	for i, s := range c.Slots {
		row.Slots = append(row.Slots, slotRow{
			CanisterID: row.ID,
			Position:   i,
			PackID:     string(s.PackID),
			DrugID:     s.DrugID,
			Status:     s.Status.String(),
		})
	}

	return row
}

func fromRow(row canisterRow) (types.Canister, error) {
	status, ok := types.ParseCanisterStatus(row.Status)
	if !ok {
		return types.Canister{}, &unknownStatusError{canister: row.ID, value: row.Status}
	}

	c := types.Canister{
		ID:              types.CanisterID(row.ID),
		Status:          status,
		DeviceID:        types.DeviceID(row.DeviceID),
		Quadrant:        types.Quadrant(row.Quadrant),
		TrolleyID:       typedPtr[types.TrolleyID](row.TrolleyID),
		LocationID:      typedPtr[types.LocationID](row.LocationID),
		OrderNo:         row.OrderNo,
		TrolleySequence: row.TrolleySequence,
		StationID:       typedPtr[types.StationID](row.StationID),
		OperatorID:      typedPtr[types.OperatorID](row.OperatorID),
		Misplaced:       row.Misplaced,
		RunID:           row.RunID,
	}
	for _, s := range row.Slots {
		st, ok := types.ParseSlotStatus(s.Status)
		if !ok {
			return types.Canister{}, &unknownStatusError{canister: row.ID, value: s.Status}
		}
		c.Slots = append(c.Slots, types.DrugSlot{
			PackID: types.PackID(s.PackID),
			DrugID: s.DrugID,
			Status: st,
		})
	}

	return c, nil
}

type unknownStatusError struct {
	canister string
	value    string
}

func (e *unknownStatusError) Error() string {
	return "canister " + e.canister + ": unknown status " + strconv.Quote(e.value)
}

func stringPtr[T ~string](p *T) *string {
	if p == nil {
		return nil
	}
	s := string(*p)

	return &s
}

func typedPtr[T ~string](p *string) *T {
	if p == nil {
		return nil
	}
	v := T(*p)

	return &v
}

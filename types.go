package fillsched

import (
	"github.com/arloliu/fillsched/internal/station"
	"github.com/arloliu/fillsched/internal/status"
	"github.com/arloliu/fillsched/types"
)

// Re-export types from the types package.
//
// Internal packages depend on `types` only, never on the root package, so the
// aliases below give users `fillsched.Canister`, `fillsched.Logger`, etc.
// without an import cycle.
type (
	PackID     = types.PackID
	CanisterID = types.CanisterID
	DeviceID   = types.DeviceID
	TrolleyID  = types.TrolleyID
	DrawerID   = types.DrawerID
	LocationID = types.LocationID
	StationID  = types.StationID
	OperatorID = types.OperatorID
	Quadrant   = types.Quadrant
	SlotKey    = types.SlotKey

	PendingPack  = types.PendingPack
	Canister     = types.Canister
	DrugSlot     = types.DrugSlot
	Station      = types.Station
	StationLink  = types.StationLink
	Drawer       = types.Drawer
	DrawerLayout = types.DrawerLayout

	CanisterStatus = types.CanisterStatus
	SlotStatus     = types.SlotStatus

	CanisterAssignment = types.CanisterAssignment
	AssignmentResult   = types.AssignmentResult
	InfeasibleCode     = types.InfeasibleCode
	InfeasibleReason   = types.InfeasibleReason
	InfeasiblePacks    = types.InfeasiblePacks
	FeasibilityQuery   = types.FeasibilityQuery
	Commit             = types.Commit
)

// Re-export collaborator interfaces for convenience.
type (
	CapacityRegistry    = types.CapacityRegistry
	PendingWorkIndex    = types.PendingWorkIndex
	TrolleyPool         = types.TrolleyPool
	StationRegistry     = types.StationRegistry
	CanisterStatusStore = types.CanisterStatusStore
	CanisterStore       = types.CanisterStore
	AssignmentCommitter = types.AssignmentCommitter
	DocumentStore       = types.DocumentStore
	Sequencer           = types.Sequencer
	ReuseConfirmer      = types.ReuseConfirmer
	MetricsCollector    = types.MetricsCollector
	Logger              = types.Logger
	Hooks               = types.Hooks
)

// Status machine and station distribution results.
type (
	StatusMachine = status.Machine
	StatusEvent   = status.Event
	StationLoad   = station.Load
)

// Re-export CanisterStatus constants.
const (
	StatusPending            = types.StatusPending
	StatusInProgress         = types.StatusInProgress
	StatusFilled             = types.StatusFilled
	StatusVerified           = types.StatusVerified
	StatusSkipped            = types.StatusSkipped
	StatusRTSRequired        = types.StatusRTSRequired
	StatusMVSFillingRequired = types.StatusMVSFillingRequired
	StatusMVSFilled          = types.StatusMVSFilled
	StatusDeactivated        = types.StatusDeactivated
)

// Re-export SlotStatus constants.
const (
	SlotPending     = types.SlotPending
	SlotFilled      = types.SlotFilled
	SlotSkipped     = types.SlotSkipped
	SlotRTSRequired = types.SlotRTSRequired
)

// Re-export InfeasibleCode constants.
const (
	InfeasibleCapacityExceeded = types.InfeasibleCapacityExceeded
	InfeasibleQuadrantDisabled = types.InfeasibleQuadrantDisabled
	InfeasibleInvalidQuadrant  = types.InfeasibleInvalidQuadrant
	InfeasibleNoCanisters      = types.InfeasibleNoCanisters
	InfeasibleCrossDeviceShare = types.InfeasibleCrossDeviceShare
)

// Package status drives the canister status lifecycle at fill stations.
package status

import "github.com/arloliu/fillsched/types"

// transitions lists the allowed targets per source status.
var transitions = map[types.CanisterStatus][]types.CanisterStatus{
	types.StatusPending: {
		types.StatusInProgress,
		types.StatusSkipped,
		types.StatusMVSFillingRequired,
		types.StatusDeactivated,
	},
	types.StatusInProgress: {
		types.StatusFilled,
		types.StatusSkipped,
		types.StatusRTSRequired,
		types.StatusMVSFillingRequired,
		types.StatusDeactivated,
	},
	types.StatusFilled: {
		types.StatusVerified,
		types.StatusRTSRequired,
		types.StatusDeactivated,
	},
	types.StatusMVSFillingRequired: {
		types.StatusMVSFilled,
		types.StatusDeactivated,
	},
	types.StatusMVSFilled: {
		types.StatusVerified,
		types.StatusDeactivated,
	},
	types.StatusRTSRequired: {
		types.StatusPending,
		types.StatusDeactivated,
	},
	types.StatusSkipped: {
		types.StatusPending,
		types.StatusDeactivated,
	},
}

// Allowed reports whether a canister may move from one status to another.
//
// Staying in the same status is never a transition.
func Allowed(from, to types.CanisterStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}

	return false
}

// Targets returns the statuses reachable from from in one step.
func Targets(from types.CanisterStatus) []types.CanisterStatus {
	return append([]types.CanisterStatus(nil), transitions[from]...)
}

// rollup derives the canister status implied by its slots, or false while
// any slot is still pending.
func rollup(slots []types.DrugSlot) (types.CanisterStatus, bool) {
	var filled, rts bool
	for _, s := range slots {
		switch s.Status {
		case types.SlotPending:
			return 0, false
		case types.SlotFilled:
			filled = true
		case types.SlotRTSRequired:
			rts = true
		}
	}

	switch {
	case rts:
		return types.StatusRTSRequired, true
	case filled:
		return types.StatusFilled, true
	default:
		return types.StatusSkipped, true
	}
}

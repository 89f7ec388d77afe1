// Package types provides core type definitions and interfaces for the fillsched library.
//
// This package contains shared types that are used across multiple packages in the
// library. Keeping them in a separate package avoids import cycles between the root
// fillsched package and its internal implementations.
//
// Key types:
//   - PendingPack: A pack awaiting manual-fill canisters
//   - Canister: One manual-fill canister instance within a batch run
//   - CanisterStatus: Canister lifecycle state
//   - DrawerLayout: Physical drawer/location layout of a trolley
//   - Station: Human-operated fill station
//   - AssignmentResult, InfeasiblePacks, FeasibilityQuery: Scheduling outputs
//   - Logger, MetricsCollector, Hooks: Ambient observability interfaces
package types

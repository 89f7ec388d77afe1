// Package source provides in-memory collaborator implementations.
//
// The package includes:
//
//   - StaticCapacity: Fixed enabled-location counts per device quadrant
//   - StaticWork: Fixed pending packs per device
//   - StaticTrolleys: Fixed trolleys with drawer layouts
//   - StaticStations: Fixed station selection
//   - MemoryCanisters: Canister store and assignment committer
//   - MemoryDocuments: Revision-checked document store
//
// They back the examples and tests. Production deployments implement the
// interfaces in the types package against their own systems.
package source

// Package testing holds test helpers shared by the fillsched packages.
//
// Import it under an alias to keep the standard testing package in scope:
//
//	import fstest "github.com/arloliu/fillsched/testing"
//
//	func TestStationDocuments(t *testing.T) {
//	    _, nc := fstest.StartEmbeddedNATS(t)
//	    kv := fstest.CreateDocumentKV(t, nc, "stations")
//	    log := fstest.NewTestLogger(t)
//	    // ...
//	}
package testing

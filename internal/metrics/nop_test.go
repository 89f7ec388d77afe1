package metrics

import (
	"testing"

	"github.com/arloliu/fillsched/types"
	"github.com/stretchr/testify/require"
)

func TestNewNop(t *testing.T) {
	metrics := NewNop()

	require.NotNil(t, metrics)
	require.IsType(t, &NopMetrics{}, metrics)
}

func TestNopMetrics_Scheduler(t *testing.T) {
	metrics := NewNop()

	// Should not panic with various inputs
	require.NotPanics(t, func() {
		metrics.RecordRunDuration(1.5, "committed")
		metrics.RecordRunDuration(-1, "")
		metrics.RecordMiniBatches("D1", 3)
		metrics.RecordInfeasiblePacks(types.InfeasibleCapacityExceeded, 2)
		metrics.RecordTrips(3, 1)
		metrics.RecordCommit(false)
		metrics.RecordReuseConflict()
	})
}

func TestNopMetrics_Status(t *testing.T) {
	metrics := NewNop()

	require.NotPanics(t, func() {
		metrics.RecordTransition(types.StatusPending, types.StatusInProgress)
		metrics.RecordTransition(types.CanisterStatus(99), types.CanisterStatus(-1))
		metrics.RecordEventDropped()
		metrics.RecordTrolleyFreed()
	})
}

func TestNopMetrics_Document(t *testing.T) {
	metrics := NewNop()

	require.NotPanics(t, func() {
		metrics.RecordDocumentConflict()
		metrics.RecordDocumentWrite(true, 1)
		metrics.RecordDocumentWrite(false, 0)
	})
}

func BenchmarkNopMetrics_RecordTransition(b *testing.B) {
	metrics := NewNop()
	for b.Loop() {
		metrics.RecordTransition(types.StatusPending, types.StatusInProgress)
	}
}

package metrics

import (
	"testing"

	"github.com/arloliu/fillsched/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestPrometheusCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg, "test")

	p.RecordTrips(3, 1)
	p.RecordTrips(2, 0)
	p.RecordCommit(true)
	p.RecordCommit(false)
	p.RecordCommit(true)
	p.RecordTransition(types.StatusPending, types.StatusInProgress)
	p.RecordInfeasiblePacks(types.InfeasibleCapacityExceeded, 2)
	p.RecordMiniBatches("D1", 4)
	p.RecordDocumentWrite(true, 2)
	p.RecordDocumentConflict()
	p.RecordRunDuration(0.2, "committed")
	p.RecordReuseConflict()
	p.RecordEventDropped()
	p.RecordTrolleyFreed()

	require.InDelta(t, 5, testutil.ToFloat64(p.trips), 0)
	require.InDelta(t, 1, testutil.ToFloat64(p.reusedTrips), 0)
	require.InDelta(t, 2, testutil.ToFloat64(p.commits.WithLabelValues("success")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(p.commits.WithLabelValues("failure")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(p.transitions.WithLabelValues("PENDING", "IN_PROGRESS")), 0)
	require.InDelta(t, 2, testutil.ToFloat64(p.infeasiblePacks.WithLabelValues("capacity_exceeded")), 0)
	require.InDelta(t, 4, testutil.ToFloat64(p.miniBatches.WithLabelValues("D1")), 0)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
	for _, f := range families {
		require.Contains(t, f.GetName(), "test_")
	}
}

func TestPrometheusCollectorDefaults(t *testing.T) {
	p := NewPrometheus(prometheus.NewRegistry(), "")
	require.Equal(t, "fillsched", p.namespace)
}

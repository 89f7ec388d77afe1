package metrics

import "github.com/arloliu/fillsched/types"

// NopMetrics implements a no-op metrics collector.
//
// All metrics are discarded. Useful for testing or when external
// metrics collection is used.
type NopMetrics struct{}

// Compile-time assertion that NopMetrics implements MetricsCollector.
var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNop creates a new no-op metrics collector.
//
// Returns:
//   - *NopMetrics: A new no-op metrics collector instance
//
// Example:
//
//	metrics := metrics.NewNop()
//	s, err := fillsched.NewScheduler(&cfg, deps, fillsched.WithMetrics(metrics))
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

// SchedulerMetrics implementation

// RecordRunDuration discards the run duration metric.
func (n *NopMetrics) RecordRunDuration(_ /* duration */ float64, _ /* outcome */ string) {
	// No-op
}

// RecordMiniBatches discards the mini-batch gauge.
func (n *NopMetrics) RecordMiniBatches(_ /* device */ types.DeviceID, _ /* count */ int) {
	// No-op
}

// RecordInfeasiblePacks discards the infeasible pack counter.
func (n *NopMetrics) RecordInfeasiblePacks(_ /* code */ types.InfeasibleCode, _ /* count */ int) {
	// No-op
}

// RecordTrips discards the trip counters.
func (n *NopMetrics) RecordTrips(_ /* total */, _ /* reused */ int) {
	// No-op
}

// RecordCommit discards the commit counter.
func (n *NopMetrics) RecordCommit(_ /* success */ bool) {
	// No-op
}

// RecordReuseConflict discards the reuse conflict counter.
func (n *NopMetrics) RecordReuseConflict() {
	// No-op
}

// StatusMetrics implementation

// RecordTransition discards the transition counter.
func (n *NopMetrics) RecordTransition(_ /* from */, _ /* to */ types.CanisterStatus) {
	// No-op
}

// RecordEventDropped discards the dropped event counter.
func (n *NopMetrics) RecordEventDropped() {
	// No-op
}

// RecordTrolleyFreed discards the freed trolley counter.
func (n *NopMetrics) RecordTrolleyFreed() {
	// No-op
}

// DocumentMetrics implementation

// RecordDocumentConflict discards the revision conflict counter.
func (n *NopMetrics) RecordDocumentConflict() {
	// No-op
}

// RecordDocumentWrite discards the document write metric.
func (n *NopMetrics) RecordDocumentWrite(_ /* success */ bool, _ /* attempts */ int) {
	// No-op
}

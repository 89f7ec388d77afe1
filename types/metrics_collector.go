package types

// MetricsCollector defines methods for recording operational metrics.
//
// Implementations should be non-blocking and handle failures gracefully.
// Methods are called from fill-station goroutines and must be thread-safe.
//
// This interface composes smaller, component-focused interfaces for better modularity.
type MetricsCollector interface {
	SchedulerMetrics
	StatusMetrics
	DocumentMetrics
}

// SchedulerMetrics defines metrics for recommendation and commit runs.
type SchedulerMetrics interface {
	// RecordRunDuration records the time taken for a recommendation run.
	//
	// Parameters:
	//   - duration: Time taken in seconds
	//   - outcome: Run outcome ("feasible", "infeasible", "error")
	RecordRunDuration(duration float64, outcome string)

	// RecordMiniBatches sets the number of mini-batches produced for a device (gauge metric).
	RecordMiniBatches(device DeviceID, count int)

	// RecordInfeasiblePacks records packs routed out of the manual-fill flow.
	//
	// Parameters:
	//   - code: Infeasibility code
	//   - count: Number of packs
	RecordInfeasiblePacks(code InfeasibleCode, count int)

	// RecordTrips records the number of trips and how many reuse a trolley.
	RecordTrips(total, reused int)

	// RecordCommit records a commit attempt (success or failure).
	RecordCommit(success bool)

	// RecordReuseConflict records a fatal trolley reuse conflict.
	RecordReuseConflict()
}

// StatusMetrics defines metrics for the canister status state machine.
type StatusMetrics interface {
	// RecordTransition records a canister status transition.
	RecordTransition(from, to CanisterStatus)

	// RecordEventDropped records when a status event is dropped due to a slow subscriber.
	RecordEventDropped()

	// RecordTrolleyFreed records a trolley becoming available for reuse.
	RecordTrolleyFreed()
}

// DocumentMetrics defines metrics for station document synchronization.
type DocumentMetrics interface {
	// RecordDocumentConflict records a revision conflict that triggered a retry.
	RecordDocumentConflict()

	// RecordDocumentWrite records a completed document update.
	//
	// Parameters:
	//   - success: true if the write landed
	//   - attempts: Number of put attempts made
	RecordDocumentWrite(success bool, attempts int)
}

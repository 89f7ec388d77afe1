package fillsched

import "time"

// Option configures a Scheduler with optional dependencies.
type Option func(*schedulerOptions)

// schedulerOptions holds optional Scheduler configuration.
type schedulerOptions struct {
	hooks     *Hooks
	metrics   MetricsCollector
	logger    Logger
	sequencer Sequencer
	documents DocumentStore
	confirmer ReuseConfirmer
	clock     func() time.Time
}

// WithHooks sets lifecycle event hooks.
//
// Parameters:
//   - hooks: Hooks structure with callback functions
//
// Returns:
//   - Option: Functional option for NewScheduler
//
// Example:
//
//	hooks := &fillsched.Hooks{
//	    OnCommitted: func(ctx context.Context, runID string, result fillsched.AssignmentResult) error {
//	        return notifyStations(runID, result)
//	    },
//	}
//	sched, err := fillsched.NewScheduler(cfg, collab, fillsched.WithHooks(hooks))
func WithHooks(hooks *Hooks) Option {
	return func(o *schedulerOptions) {
		o.hooks = hooks
	}
}

// WithMetrics sets a metrics collector.
//
// Parameters:
//   - metrics: MetricsCollector implementation
//
// Returns:
//   - Option: Functional option for NewScheduler
//
// Example:
//
//	collector := metrics.NewPrometheus(prometheus.DefaultRegisterer, "fillsched")
//	sched, err := fillsched.NewScheduler(cfg, collab, fillsched.WithMetrics(collector))
func WithMetrics(metrics MetricsCollector) Option {
	return func(o *schedulerOptions) {
		o.metrics = metrics
	}
}

// WithLogger sets a logger.
//
// Parameters:
//   - logger: Logger implementation (compatible with zap.SugaredLogger)
//
// Returns:
//   - Option: Functional option for NewScheduler
//
// Example:
//
//	logger := zap.NewExample().Sugar()
//	sched, err := fillsched.NewScheduler(cfg, collab, fillsched.WithLogger(logger))
func WithLogger(logger Logger) Option {
	return func(o *schedulerOptions) {
		o.logger = logger
	}
}

// WithSequencer replaces the built-in order and trip counter.
//
// The built-in counter is seeded from AssignmentCommitter.HighWater on every
// run. A custom sequencer is used as is and must be the only source of
// numbers for the committer's records.
//
// Parameters:
//   - seq: Sequencer implementation
//
// Returns:
//   - Option: Functional option for NewScheduler
func WithSequencer(seq Sequencer) Option {
	return func(o *schedulerOptions) {
		o.sequencer = seq
	}
}

// WithDocumentStore enables station document publication.
//
// After every commit and every status change the affected station documents
// are rewritten through a revision-checked read-modify-write cycle.
//
// Parameters:
//   - store: DocumentStore implementation (JetStream KV, Redis, memory)
//
// Returns:
//   - Option: Functional option for NewScheduler
//
// Example:
//
//	docs, err := fillsched.OpenJetStreamDocuments(ctx, js, cfg)
//	if err != nil {
//	    return err
//	}
//	sched, err := fillsched.NewScheduler(cfg, collab, fillsched.WithDocumentStore(docs))
func WithDocumentStore(store DocumentStore) Option {
	return func(o *schedulerOptions) {
		o.documents = store
	}
}

// WithReuseConfirmer adds a physical emptiness check before a trolley is reused.
//
// Without a confirmer a trolley counts as empty once none of its canisters is
// PENDING or IN_PROGRESS.
//
// Parameters:
//   - confirmer: ReuseConfirmer implementation
//
// Returns:
//   - Option: Functional option for NewScheduler
func WithReuseConfirmer(confirmer ReuseConfirmer) Option {
	return func(o *schedulerOptions) {
		o.confirmer = confirmer
	}
}

// WithClock overrides the time source used for recommendations and events.
func WithClock(now func() time.Time) Option {
	return func(o *schedulerOptions) {
		o.clock = now
	}
}

package metrics

import (
	"sync"

	"github.com/arloliu/fillsched/types"
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements types.MetricsCollector backed by Prometheus.
//
// Collectors are created and registered lazily on first use, so an unused
// collector leaves the registry untouched.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	// Scheduler metrics
	runDuration     *prometheus.HistogramVec
	miniBatches     *prometheus.GaugeVec
	infeasiblePacks *prometheus.CounterVec
	trips           prometheus.Counter
	reusedTrips     prometheus.Counter
	commits         *prometheus.CounterVec
	reuseConflicts  prometheus.Counter

	// Status metrics
	transitions   *prometheus.CounterVec
	eventsDropped prometheus.Counter
	trolleysFreed prometheus.Counter

	// Document metrics
	docConflicts *prometheus.CounterVec
	docWrites    *prometheus.CounterVec
	docAttempts  prometheus.Histogram
}

// Compile-time assertion that PrometheusCollector implements MetricsCollector.
var _ types.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheus creates a new Prometheus-backed metrics collector.
//
// Parameters:
//   - reg: Prometheus registerer interface (uses prometheus.DefaultRegisterer if nil)
//   - namespace: Prometheus metrics namespace (defaults to "fillsched" if empty)
//
// Returns:
//   - *PrometheusCollector: A MetricsCollector implementation using Prometheus
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "fillsched"
	}

	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.runDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "scheduler",
			Name:      "run_duration_seconds",
			Help:      "Duration of recommendation runs in seconds by outcome.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms .. ~10s
		}, []string{"outcome"})

		p.miniBatches = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "scheduler",
			Name:      "mini_batches",
			Help:      "Mini-batches produced by the last run per device.",
		}, []string{"device"})

		p.infeasiblePacks = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "scheduler",
			Name:      "infeasible_packs_total",
			Help:      "Packs routed out of manual fill by reason code.",
		}, []string{"code"})

		p.trips = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "scheduler",
			Name:      "trips_total",
			Help:      "Total trolley trips planned.",
		})
		p.reusedTrips = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "scheduler",
			Name:      "reused_trips_total",
			Help:      "Trips planned onto a trolley that must be freed first.",
		})

		p.commits = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "scheduler",
			Name:      "commits_total",
			Help:      "Commit attempts by result (success,failure).",
		}, []string{"result"})

		p.reuseConflicts = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "scheduler",
			Name:      "reuse_conflicts_total",
			Help:      "Commits aborted because a trolley still held unresolved canisters.",
		})

		p.transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "status",
			Name:      "transitions_total",
			Help:      "Canister status transitions.",
		}, []string{"from", "to"})

		p.eventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "status",
			Name:      "events_dropped_total",
			Help:      "Status events dropped for slow subscribers.",
		})

		p.trolleysFreed = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "status",
			Name:      "trolleys_freed_total",
			Help:      "Trolleys that stopped holding unresolved canisters.",
		})

		p.docConflicts = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "docsync",
			Name:      "revision_conflicts_total",
			Help:      "Station document writes retried after a revision conflict.",
		}, []string{})

		p.docWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "docsync",
			Name:      "writes_total",
			Help:      "Station document updates by result (success,failure).",
		}, []string{"result"})

		p.docAttempts = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "docsync",
			Name:      "write_attempts",
			Help:      "Attempts needed per station document update.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13},
		})

		p.reg.MustRegister(p.runDuration)
		p.reg.MustRegister(p.miniBatches)
		p.reg.MustRegister(p.infeasiblePacks)
		p.reg.MustRegister(p.trips)
		p.reg.MustRegister(p.reusedTrips)
		p.reg.MustRegister(p.commits)
		p.reg.MustRegister(p.reuseConflicts)
		p.reg.MustRegister(p.transitions)
		p.reg.MustRegister(p.eventsDropped)
		p.reg.MustRegister(p.trolleysFreed)
		p.reg.MustRegister(p.docConflicts)
		p.reg.MustRegister(p.docWrites)
		p.reg.MustRegister(p.docAttempts)
	})
}

// SchedulerMetrics implementation

// RecordRunDuration observes a run duration (seconds) for the given outcome.
func (p *PrometheusCollector) RecordRunDuration(duration float64, outcome string) {
	p.ensureRegistered()
	p.runDuration.WithLabelValues(outcome).Observe(duration)
}

// RecordMiniBatches sets the mini-batch gauge of device.
func (p *PrometheusCollector) RecordMiniBatches(device types.DeviceID, count int) {
	p.ensureRegistered()
	p.miniBatches.WithLabelValues(string(device)).Set(float64(count))
}

// RecordInfeasiblePacks adds count infeasible packs for code.
func (p *PrometheusCollector) RecordInfeasiblePacks(code types.InfeasibleCode, count int) {
	p.ensureRegistered()
	p.infeasiblePacks.WithLabelValues(string(code)).Add(float64(count))
}

// RecordTrips adds planned trip counts.
func (p *PrometheusCollector) RecordTrips(total, reused int) {
	p.ensureRegistered()
	p.trips.Add(float64(total))
	p.reusedTrips.Add(float64(reused))
}

// RecordCommit records the commit result.
func (p *PrometheusCollector) RecordCommit(success bool) {
	p.ensureRegistered()
	p.commits.WithLabelValues(result(success)).Inc()
}

// RecordReuseConflict increments the reuse conflict counter.
func (p *PrometheusCollector) RecordReuseConflict() {
	p.ensureRegistered()
	p.reuseConflicts.Inc()
}

// StatusMetrics implementation

// RecordTransition increments the transition counter for (from, to).
func (p *PrometheusCollector) RecordTransition(from, to types.CanisterStatus) {
	p.ensureRegistered()
	p.transitions.WithLabelValues(from.String(), to.String()).Inc()
}

// RecordEventDropped increments the dropped event counter.
func (p *PrometheusCollector) RecordEventDropped() {
	p.ensureRegistered()
	p.eventsDropped.Inc()
}

// RecordTrolleyFreed increments the freed trolley counter.
func (p *PrometheusCollector) RecordTrolleyFreed() {
	p.ensureRegistered()
	p.trolleysFreed.Inc()
}

// DocumentMetrics implementation

// RecordDocumentConflict increments the revision conflict counter.
func (p *PrometheusCollector) RecordDocumentConflict() {
	p.ensureRegistered()
	p.docConflicts.WithLabelValues().Inc()
}

// RecordDocumentWrite records a document update result and its attempt count.
func (p *PrometheusCollector) RecordDocumentWrite(success bool, attempts int) {
	p.ensureRegistered()
	p.docWrites.WithLabelValues(result(success)).Inc()
	p.docAttempts.Observe(float64(attempts))
}

func result(success bool) string {
	if success {
		return "success"
	}

	return "failure"
}

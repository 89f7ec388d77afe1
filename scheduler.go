package fillsched

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/fillsched/internal/docsync"
	"github.com/arloliu/fillsched/internal/hooks"
	"github.com/arloliu/fillsched/internal/logger"
	"github.com/arloliu/fillsched/internal/metrics"
	"github.com/arloliu/fillsched/internal/partition"
	"github.com/arloliu/fillsched/internal/sequence"
	"github.com/arloliu/fillsched/internal/station"
	"github.com/arloliu/fillsched/internal/status"
	"github.com/arloliu/fillsched/internal/trolley"
	"github.com/arloliu/fillsched/types"
	"github.com/puzpuzpuz/xsync/v4"
)

// Collaborators bundles the external systems a Scheduler reads and writes.
//
// All fields are required. A single store frequently implements both
// CanisterStore and AssignmentCommitter (see store/gormstore and
// source.MemoryCanisters).
type Collaborators struct {
	Capacity  CapacityRegistry
	Work      PendingWorkIndex
	Trolleys  TrolleyPool
	Stations  StationRegistry
	Canisters CanisterStore
	Committer AssignmentCommitter
}

func (c *Collaborators) validate() error {
	switch {
	case c.Capacity == nil:
		return fmt.Errorf("%w: capacity registry", ErrCollaboratorRequired)
	case c.Work == nil:
		return fmt.Errorf("%w: pending work index", ErrCollaboratorRequired)
	case c.Trolleys == nil:
		return fmt.Errorf("%w: trolley pool", ErrCollaboratorRequired)
	case c.Stations == nil:
		return fmt.Errorf("%w: station registry", ErrCollaboratorRequired)
	case c.Canisters == nil:
		return fmt.Errorf("%w: canister store", ErrCollaboratorRequired)
	case c.Committer == nil:
		return fmt.Errorf("%w: assignment committer", ErrCollaboratorRequired)
	}

	return nil
}

// Scheduler plans manual-fill work for one pharmacy batch.
//
// A scheduling run partitions each device's pending packs into mini-batches,
// groups them into trolley trips, binds trips to trolleys, distributes them
// across the selected fill stations and numbers every canister in fill order.
// The run is computed from a snapshot of the collaborators and has no side
// effects until it is committed.
//
// Thread Safety:
//   - All public methods are safe for concurrent use
//   - Commits and deferred-trip bindings are serialized
//   - Status changes go through the StatusMachine, which serializes per canister
//
// Lifecycle:
//   - Create with NewScheduler()
//   - Call Recommend() and Commit(), or Run() for both
//   - Drive canisters through Status() as stations work
//   - Call Stop() to wait for trolley-freed handlers on shutdown
type Scheduler struct {
	cfg    Config
	collab Collaborators

	// Optional dependencies
	hooks     types.Hooks
	metrics   MetricsCollector
	logger    Logger
	confirmer ReuseConfirmer
	now       func() time.Time

	// Pipeline stages
	partitioner *partition.Partitioner
	assigner    *trolley.Assigner
	distributor *station.Distributor
	machine     *status.Machine
	docs        *docsync.Syncer

	// seq hands out order numbers and trolley sequences; counter is set when
	// seq is the built-in counter and must follow the committer's high water.
	seq     Sequencer
	counter *sequence.Counter

	commitMu  sync.Mutex
	committed *xsync.Map[string, struct{}]

	replanning atomic.Bool
	stopped    atomic.Bool
}

// NewScheduler creates a scheduler.
//
// Parameters:
//   - cfg: Configuration; missing values are filled with defaults
//   - collab: External collaborators, all required
//   - opts: Optional dependencies (logger, metrics, hooks, sequencer, documents)
//
// Returns:
//   - *Scheduler: Initialized scheduler
//   - error: ErrInvalidConfig or ErrCollaboratorRequired
//
// Example:
//
//	cfg := fillsched.DefaultConfig()
//	cfg.Devices = []fillsched.DeviceID{"D1", "D2"}
//	sched, err := fillsched.NewScheduler(&cfg, fillsched.Collaborators{
//	    Capacity:  registry,
//	    Work:      work,
//	    Trolleys:  pool,
//	    Stations:  stations,
//	    Canisters: store,
//	    Committer: store,
//	}, fillsched.WithLogger(logger))
func NewScheduler(cfg *Config, collab Collaborators, opts ...Option) (*Scheduler, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}
	if err := collab.validate(); err != nil {
		return nil, err
	}

	// Fill in missing configuration values with defaults
	SetDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := &schedulerOptions{}
	for _, opt := range opts {
		opt(options)
	}

	metricsCollector := options.metrics
	if metricsCollector == nil {
		metricsCollector = metrics.NewNop()
	}

	loggerInstance := options.logger
	if loggerInstance == nil {
		loggerInstance = logger.NewNop()
	}

	// Validate with warnings after logger is available
	cfg.ValidateWithWarnings(loggerInstance)

	clock := options.clock
	if clock == nil {
		clock = time.Now
	}

	s := &Scheduler{
		cfg:         *cfg,
		collab:      collab,
		hooks:       hooks.Complete(options.hooks),
		metrics:     metricsCollector,
		logger:      loggerInstance,
		confirmer:   options.confirmer,
		now:         clock,
		partitioner: partition.NewPartitioner(cfg.QuadrantsPerDevice, loggerInstance),
		assigner:    trolley.NewAssigner(!cfg.DisableTrolleyReuse, loggerInstance),
		distributor: station.NewDistributor(loggerInstance),
		committed:   xsync.NewMap[string, struct{}](),
	}

	if options.sequencer != nil {
		s.seq = options.sequencer
	} else {
		s.counter = sequence.NewCounter(0, 0)
		s.seq = s.counter
	}

	machineCfg := status.Config{
		Store:           collab.Canisters,
		Trolleys:        collab.Trolleys,
		Logger:          loggerInstance,
		Metrics:         metricsCollector,
		Hooks:           options.hooks,
		EventBufferSize: cfg.EventBufferSize,
		OnTrolleyFreed:  s.onTrolleyFreed,
		Clock:           clock,
	}

	if options.documents != nil {
		s.docs = docsync.NewSyncer(options.documents, docsync.Config{
			KeyPrefix:  cfg.DocumentSync.KeyPrefix,
			MaxRetries: cfg.DocumentSync.MaxRetries,
			BaseDelay:  cfg.DocumentSync.RetryBaseDelay,
			MaxDelay:   cfg.DocumentSync.RetryMaxDelay,
			Multiplier: cfg.DocumentSync.RetryMultiplier,
		}, loggerInstance, metricsCollector)
		machineCfg.OnEvent = s.onEvent
	}

	machine, err := status.NewMachine(machineCfg)
	if err != nil {
		return nil, err
	}
	s.machine = machine

	return s, nil
}

// Status returns the canister status machine shared with fill stations.
func (s *Scheduler) Status() *StatusMachine {
	return s.machine
}

// Committed reports whether this scheduler committed the run.
func (s *Scheduler) Committed(runID string) bool {
	_, ok := s.committed.Load(runID)
	return ok
}

// Run computes a recommendation and commits it when it is feasible.
//
// An infeasible recommendation is returned together with its error
// (ErrTrolleyExhausted or *StationSelectionError) and nothing is written.
// An empty recommendation is returned without a commit.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//
// Returns:
//   - *Recommendation: The computed run (nil on pipeline errors)
//   - error: Pipeline, feasibility or commit error
func (s *Scheduler) Run(ctx context.Context) (*Recommendation, error) {
	rec, err := s.Recommend(ctx)
	if err != nil {
		return nil, err
	}
	if err := rec.Err(); err != nil {
		return rec, err
	}
	if rec.Empty() {
		return rec, nil
	}
	if err := s.Commit(ctx, rec); err != nil {
		return rec, err
	}

	return rec, nil
}

// Commit writes a recommendation as one transaction.
//
// The commit is rejected when:
//   - The recommendation is infeasible (ErrTrolleyExhausted, *StationSelectionError)
//   - It was committed before (ErrRunAlreadyCommitted)
//   - Another run scheduled one of its canisters since (ErrStaleRecommendation)
//   - A trip now needs more locations of a quadrant than are enabled
//     (ErrCapacityInfeasible)
//   - A trolley taking its first trip still holds unresolved or reserved
//     canisters, or the ReuseConfirmer refuses it (*ReuseConflictError)
//   - The context ended before the write (ErrRunCancelled)
//
// A rejected commit writes nothing. After a successful commit the station
// documents are published and Hooks.OnCommitted runs; their failures are
// reported through Hooks.OnError and do not fail the commit.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - rec: Recommendation returned by Recommend
//
// Returns:
//   - error: Rejection or commit error
func (s *Scheduler) Commit(ctx context.Context, rec *Recommendation) error {
	if rec == nil {
		return errors.New("commit: nil recommendation")
	}
	if err := rec.Err(); err != nil {
		s.metrics.RecordCommit(false)
		return err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	if _, done := s.committed.Load(rec.RunID); done {
		return fmt.Errorf("%w: %s", ErrRunAlreadyCommitted, rec.RunID)
	}
	if rec.Empty() {
		return nil
	}

	if err := s.checkStale(ctx, rec); err != nil {
		return s.reject(ctx, rec.RunID, err)
	}
	if err := s.checkCapacity(ctx, rec); err != nil {
		return s.reject(ctx, rec.RunID, err)
	}
	if err := s.checkReuse(ctx, rec); err != nil {
		return s.reject(ctx, rec.RunID, err)
	}
	if err := checkCancelled(ctx); err != nil {
		return s.reject(ctx, rec.RunID, err)
	}

	commit := types.Commit{
		RunID:       rec.RunID,
		Fingerprint: rec.Fingerprint,
		Canisters:   rec.Canisters(),
	}
	if err := s.collab.Committer.Commit(ctx, commit); err != nil {
		return s.reject(ctx, rec.RunID, wrapCollaborator(ctx, "commit run "+rec.RunID, err))
	}

	s.committed.Store(rec.RunID, struct{}{})
	s.metrics.RecordCommit(true)
	s.logger.Info("run committed",
		"run_id", rec.RunID,
		"trips", len(rec.Trips),
		"canisters", len(commit.Canisters),
	)

	s.publish(ctx, rec.RunID, commit.Canisters)

	if err := s.hooks.OnCommitted(ctx, rec.RunID, rec.Assignment); err != nil {
		s.logger.Error("committed hook failed", "run_id", rec.RunID, "error", err)
	}

	return nil
}

// Stop disables trolley-freed handling and waits for in-flight handlers.
//
// Parameters:
//   - ctx: Context bounding the wait
//
// Returns:
//   - error: ctx.Err() if handlers are still running when ctx ends
func (s *Scheduler) Stop(ctx context.Context) error {
	s.stopped.Store(true)

	done := make(chan struct{})
	go func() {
		s.machine.WaitForShutdown()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// checkStale rejects a recommendation whose canisters were scheduled since it was computed.
func (s *Scheduler) checkStale(ctx context.Context, rec *Recommendation) error {
	for i := range rec.canisters {
		id := rec.canisters[i].ID

		existing, err := s.collab.Canisters.Canister(ctx, id)
		if errors.Is(err, ErrCanisterNotFound) {
			continue
		}
		if err != nil {
			return wrapCollaborator(ctx, fmt.Sprintf("read canister %s", id), err)
		}
		if existing.TrolleyID != nil {
			return fmt.Errorf("%w: canister %s was scheduled by run %s", ErrStaleRecommendation, id, existing.RunID)
		}
	}

	return nil
}

// checkCapacity re-reads the enabled locations of every quadrant the run
// fills and rejects the run when one trip places more canisters of a quadrant
// than the quadrant now holds.
func (s *Scheduler) checkCapacity(ctx context.Context, rec *Recommendation) error {
	type tripQuadrant struct {
		trip int64
		key  SlotKey
	}

	demand := make(map[tripQuadrant]int)
	for i := range rec.canisters {
		c := &rec.canisters[i]
		if c.TrolleySequence == nil {
			continue
		}
		demand[tripQuadrant{trip: *c.TrolleySequence, key: SlotKey{DeviceID: c.DeviceID, Quadrant: c.Quadrant}}]++
	}

	capacity := make(map[SlotKey]int)
	for tq, need := range demand {
		limit, ok := capacity[tq.key]
		if !ok {
			n, err := s.collab.Capacity.EnabledLocations(ctx, tq.key.DeviceID, tq.key.Quadrant)
			if err != nil {
				return wrapCollaborator(ctx, fmt.Sprintf("read capacity of %s/%d", tq.key.DeviceID, tq.key.Quadrant), err)
			}
			limit = n
			capacity[tq.key] = n
		}
		if need > limit {
			return fmt.Errorf("%w: trip %d needs %d locations of %s/%d, capacity %d",
				ErrCapacityInfeasible, tq.trip, need, tq.key.DeviceID, tq.key.Quadrant, limit)
		}
	}

	return nil
}

// checkReuse re-validates every trolley that takes its first trip of the run.
//
// Repeat trips of the run are not checked here: they are bound later by
// BindReusedTrip once the trolley is free.
func (s *Scheduler) checkReuse(ctx context.Context, rec *Recommendation) error {
	checked := make(map[TrolleyID]bool, len(rec.Trips))
	for _, trip := range rec.Trips {
		if trip.Reused || checked[trip.TrolleyID] {
			continue
		}
		checked[trip.TrolleyID] = true

		onTrolley, err := s.collab.Canisters.CanistersOnTrolley(ctx, trip.TrolleyID)
		if err != nil {
			return wrapCollaborator(ctx, fmt.Sprintf("read canisters on trolley %s", trip.TrolleyID), err)
		}
		if blockers := trolleyBlockers(onTrolley, trip.TrolleyID); len(blockers) > 0 {
			return &ReuseConflictError{TrolleyID: trip.TrolleyID, Occupants: blockers}
		}
		if err := s.confirmEmpty(ctx, trip.TrolleyID, len(onTrolley) > 0); err != nil {
			return err
		}
	}

	return nil
}

// confirmEmpty asks the ReuseConfirmer about a trolley that carried earlier trips.
func (s *Scheduler) confirmEmpty(ctx context.Context, id TrolleyID, hasHistory bool) error {
	if s.confirmer == nil || !hasHistory {
		return nil
	}

	empty, err := s.confirmer.ConfirmEmpty(ctx, id)
	if err != nil {
		return wrapCollaborator(ctx, fmt.Sprintf("confirm trolley %s empty", id), err)
	}
	if !empty {
		return &ReuseConflictError{TrolleyID: id}
	}

	return nil
}

// reject records a failed commit and reports reuse conflicts.
func (s *Scheduler) reject(ctx context.Context, runID string, err error) error {
	s.metrics.RecordCommit(false)

	if IsReuseConflict(err) {
		s.metrics.RecordReuseConflict()
		s.logger.Error("trolley reuse conflict, nothing committed", "run_id", runID, "error", err)
		s.reportError(ctx, err)

		return err
	}

	s.logger.Warn("commit rejected", "run_id", runID, "error", err)

	return err
}

// onTrolleyFreed binds the trolley's next deferred trip and replans the remaining work.
func (s *Scheduler) onTrolleyFreed(ctx context.Context, id TrolleyID) {
	if s.stopped.Load() {
		return
	}

	if _, err := s.BindReusedTrip(ctx, id); err != nil && !errors.Is(err, ErrNoDeferredTrip) {
		s.logger.Warn("failed to bind deferred trip", "trolley_id", id, "error", err)
		if !IsReuseConflict(err) {
			s.reportError(ctx, err)
		}
	}

	if s.cfg.DisableReplanOnTrolleyFree {
		return
	}

	// Frees arriving while a replan runs are coalesced into it.
	if !s.replanning.CompareAndSwap(false, true) {
		s.logger.Debug("replan already running", "trolley_id", id)
		return
	}
	defer s.replanning.Store(false)

	rec, err := s.Run(ctx)
	if err != nil {
		s.logger.Warn("replan after trolley freed failed", "trolley_id", id, "error", err)
		return
	}
	if !rec.Empty() {
		s.logger.Info("replanned after trolley freed",
			"trolley_id", id,
			"run_id", rec.RunID,
			"trips", len(rec.Trips),
		)
	}
}

func (s *Scheduler) reportError(ctx context.Context, err error) {
	if hookErr := s.hooks.OnError(ctx, err); hookErr != nil {
		s.logger.Error("error hook failed", "error", hookErr)
	}
}

func (s *Scheduler) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.OperationTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, s.cfg.OperationTimeout)
}

// trolleyBlockers lists the canisters that keep a trolley from taking a new
// first trip: those occupying it and those reserved for a deferred trip.
func trolleyBlockers(onTrolley []types.Canister, id TrolleyID) []CanisterID {
	var out []CanisterID
	for i := range onTrolley {
		if onTrolley[i].OccupiesTrolley(id) || isDeferred(&onTrolley[i], id) {
			out = append(out, onTrolley[i].ID)
		}
	}

	return out
}

// isDeferred reports whether c waits for id to be bound to a drawer location.
func isDeferred(c *types.Canister, id TrolleyID) bool {
	return c.Status.Unresolved() &&
		c.TrolleyID != nil && *c.TrolleyID == id &&
		c.LocationID == nil
}

func checkCancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrRunCancelled, err)
	}

	return nil
}

// wrapCollaborator annotates a collaborator error, reporting cancellation as ErrRunCancelled.
func wrapCollaborator(ctx context.Context, what string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %s: %w", ErrRunCancelled, what, ctxErr)
	}

	return fmt.Errorf("%s: %w", what, err)
}

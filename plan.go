package fillsched

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"time"

	"github.com/arloliu/fillsched/internal/closure"
	"github.com/arloliu/fillsched/internal/partition"
	"github.com/arloliu/fillsched/internal/sequence"
	"github.com/arloliu/fillsched/internal/station"
	"github.com/arloliu/fillsched/internal/trolley"
	"github.com/arloliu/fillsched/types"
	"github.com/google/uuid"
)

// Run outcomes reported to MetricsCollector.RecordRunDuration.
const (
	outcomeFeasible   = "feasible"
	outcomeInfeasible = "infeasible"
	outcomeCancelled  = "cancelled"
	outcomeError      = "error"
)

// TripPlan summarizes one trolley trip of a recommendation.
type TripPlan struct {
	Sequence  int64
	TrolleyID TrolleyID
	// Reused is set when the trolley carries an earlier trip of the same run;
	// the trip's canisters get their locations from BindReusedTrip.
	Reused        bool
	Devices       []DeviceID
	Packs         []PackID
	Stations      []StationID
	CanisterCount int
}

// Recommendation is the outcome of one scheduling run over a snapshot.
//
// A recommendation has no side effects until it is passed to Commit.
// Infeasible packs are reported and left out; the rest of the work is still
// planned. When the trolley or station shortfall makes the run infeasible,
// Feasibility says what is missing and Assignment is empty.
type Recommendation struct {
	RunID       string
	Fingerprint uint64
	CreatedAt   time.Time

	Assignment  AssignmentResult
	Infeasible  InfeasiblePacks
	Feasibility FeasibilityQuery
	Trips       []TripPlan
	Stations    []StationLoad

	canisters []types.Canister
	batches   map[DeviceID]int
}

// Feasible reports whether the recommendation can be committed.
func (r *Recommendation) Feasible() bool {
	return r.Feasibility.Feasible()
}

// Empty reports whether the recommendation schedules no canister.
func (r *Recommendation) Empty() bool {
	return len(r.canisters) == 0
}

// Err returns the error a commit of an infeasible recommendation fails with.
//
// Returns:
//   - error: ErrTrolleyExhausted, *StationSelectionError, or nil when feasible
func (r *Recommendation) Err() error {
	f := r.Feasibility
	if f.TrolleyExhausted {
		return fmt.Errorf("%w: %d trips, %d trolleys available",
			ErrTrolleyExhausted, f.RequiredTrolleyCount, f.AvailableTrolleyCount)
	}
	if f.AdditionalStations > 0 {
		return &StationSelectionError{
			Required:       f.RequiredStationCount,
			Selected:       f.SelectedStationUnits,
			Additional:     f.AdditionalStations,
			SuggestedLinks: f.SuggestedLinks,
		}
	}

	return nil
}

// Canisters returns copies of the canister records the commit writes, in fill order.
func (r *Recommendation) Canisters() []Canister {
	out := make([]Canister, len(r.canisters))
	for i := range r.canisters {
		out[i] = r.canisters[i].Clone()
	}

	return out
}

// Recommend computes a scheduling run without writing anything.
//
// The pipeline:
//  1. Read each device's pending packs, drop canisters that already have a
//     trolley, and partition the rest into capacity-respecting mini-batches
//  2. Collect the free trolleys (no unresolved or reserved canisters), those
//     with earlier trips first
//  3. Interleave the devices' mini-batches and group them into trips
//  4. Check trolley and station feasibility
//  5. Bind trips to trolleys, distribute them over stations and number the
//     canisters in fill order
//
// Order numbers and trolley sequences are drawn from the sequencer, so they
// stay unique even when a recommendation is discarded.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//
// Returns:
//   - *Recommendation: Planned run
//   - error: ErrRunCancelled, ErrDrawerOverflow, or a collaborator error
func (s *Scheduler) Recommend(ctx context.Context) (*Recommendation, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	start := time.Now()

	seq, err := s.sequencer(ctx)
	if err != nil {
		s.recordRun(start, nil, err)
		return nil, err
	}

	rec, err := s.plan(ctx, seq)
	s.recordRun(start, rec, err)
	if err != nil {
		return nil, err
	}

	s.recordPlan(rec)
	s.logger.Info("recommendation computed",
		"run_id", rec.RunID,
		"trips", len(rec.Trips),
		"canisters", len(rec.canisters),
		"infeasible_packs", len(rec.Infeasible),
		"feasible", rec.Feasible(),
	)

	return rec, nil
}

// Feasibility computes the trolley and station requirements of the pending work.
//
// The full pipeline runs against a scratch sequencer, so no order number or
// trolley sequence is consumed.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//
// Returns:
//   - FeasibilityQuery: Requirements and shortfall
//   - error: Pipeline or collaborator error
func (s *Scheduler) Feasibility(ctx context.Context) (FeasibilityQuery, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rec, err := s.plan(ctx, sequence.NewCounter(0, 0))
	if err != nil {
		return FeasibilityQuery{}, err
	}

	return rec.Feasibility, nil
}

// sequencer returns the run's sequencer, raising the built-in counter to the
// committer's high water so numbering resumes after restarts and other writers.
func (s *Scheduler) sequencer(ctx context.Context) (Sequencer, error) {
	if s.counter == nil {
		return s.seq, nil
	}

	order, trip, err := s.collab.Committer.HighWater(ctx)
	if err != nil {
		return nil, wrapCollaborator(ctx, "read sequence high water", err)
	}
	s.counter.Advance(order, trip)

	return s.counter, nil
}

func (s *Scheduler) plan(ctx context.Context, seq Sequencer) (*Recommendation, error) {
	rec := &Recommendation{
		RunID:      uuid.NewString(),
		CreatedAt:  s.now(),
		Assignment: make(AssignmentResult),
		batches:    make(map[DeviceID]int, len(s.cfg.Devices)),
	}

	parts, err := s.partition(ctx, rec)
	if err != nil {
		return nil, err
	}
	rec.Infeasible = parts.Infeasible
	rec.Fingerprint = parts.Fingerprint()

	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}

	free, layouts, err := s.freeTrolleys(ctx)
	if err != nil {
		return nil, err
	}

	candidates := make([]types.DrawerLayout, 0, len(free))
	for _, id := range free {
		candidates = append(candidates, layouts[id])
	}
	trips := trolley.BuildTrips(trolley.Interleave(parts.Devices), candidates, !s.cfg.SeparateDeviceTrips)

	stations, err := s.collab.Stations.Selected(ctx)
	if err != nil {
		return nil, wrapCollaborator(ctx, "read selected stations", err)
	}

	rec.Feasibility = s.distributor.Feasibility(len(trips), len(free), stations)
	if s.cfg.DisableTrolleyReuse && len(trips) > len(free) {
		rec.Feasibility.TrolleyExhausted = true
	}
	if len(trips) == 0 || !rec.Feasible() {
		return rec, nil
	}

	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}

	assigned, err := s.assigner.Assign(trips, free, layouts, seq)
	if err != nil {
		return nil, err
	}

	distribution, err := s.distributor.Distribute(assigned, len(free), stations)
	if err != nil {
		return nil, err
	}

	build(rec, assigned, distribution, stations, seq)

	return rec, checkCancelled(ctx)
}

// partition reads and partitions every device's unscheduled work.
//
// A canister is placed once, on one device's trolley drawer, so a closure
// whose packs belong to more than one device is reported as infeasible
// before the devices are partitioned.
func (s *Scheduler) partition(ctx context.Context, rec *Recommendation) (partition.Plan, error) {
	plan := partition.Plan{Infeasible: make(types.InfeasiblePacks)}
	scheduled := make(map[CanisterID]bool)
	work := make([][]types.PendingPack, len(s.cfg.Devices))

	for i, device := range s.cfg.Devices {
		packs, err := s.collab.Work.PacksForDevice(ctx, device)
		if err != nil {
			return plan, wrapCollaborator(ctx, fmt.Sprintf("read pending packs of %s", device), err)
		}

		work[i], err = s.unscheduled(ctx, packs, scheduled)
		if err != nil {
			return plan, err
		}
	}

	s.crossDevice(work, plan.Infeasible)

	for i, device := range s.cfg.Devices {
		capacity, err := s.capacity(ctx, device)
		if err != nil {
			return plan, err
		}

		devicePlan, infeasible := s.partitioner.Partition(device, work[i], capacity)
		plan.Devices = append(plan.Devices, devicePlan)
		maps.Copy(plan.Infeasible, infeasible)
		rec.batches[device] = len(devicePlan.Batches)
	}

	return plan, nil
}

// crossDevice reports closures spanning several devices into infeasible and
// removes their packs from work. work is indexed like Config.Devices.
func (s *Scheduler) crossDevice(work [][]types.PendingPack, infeasible types.InfeasiblePacks) {
	var all []types.PendingPack
	owner := make(map[PackID]int)
	for i, packs := range work {
		for _, pk := range packs {
			if _, dup := owner[pk.ID]; dup || len(pk.CanisterIDs) == 0 {
				continue
			}
			owner[pk.ID] = i
			all = append(all, pk)
		}
	}

	rejected := make(map[PackID]struct{})
	for _, members := range closure.NewGraph(all).Components() {
		devices := make(map[int]struct{}, 2)
		for _, m := range members {
			devices[owner[m.ID]] = struct{}{}
		}
		if len(devices) < 2 {
			continue
		}

		sort.SliceStable(members, func(i, j int) bool {
			return members[i].QueuePosition < members[j].QueuePosition
		})
		root := members[0].ID
		for _, m := range members {
			rejected[m.ID] = struct{}{}
			infeasible[m.ID] = types.InfeasibleReason{
				Code:        types.InfeasibleCrossDeviceShare,
				DeviceID:    s.cfg.Devices[owner[m.ID]],
				Quadrant:    m.Quadrant,
				ClosureRoot: root,
			}
		}
		s.logger.Warn("pack closure spans devices",
			"closure_root", root,
			"closure_size", len(members),
			"devices", len(devices),
		)
	}

	if len(rejected) == 0 {
		return
	}
	for i, packs := range work {
		work[i] = slices.DeleteFunc(packs, func(pk types.PendingPack) bool {
			_, ok := rejected[pk.ID]
			return ok
		})
	}
}

// unscheduled strips canisters that already have a trolley from packs.
//
// Packs left without canisters are dropped; packs that arrived empty are kept
// so the partitioner reports them.
func (s *Scheduler) unscheduled(
	ctx context.Context,
	packs []types.PendingPack,
	scheduled map[CanisterID]bool,
) ([]types.PendingPack, error) {
	out := make([]types.PendingPack, 0, len(packs))

	for _, pk := range packs {
		if len(pk.CanisterIDs) == 0 {
			out = append(out, pk)
			continue
		}

		remaining := make([]CanisterID, 0, len(pk.CanisterIDs))
		for _, id := range pk.CanisterIDs {
			done, known := scheduled[id]
			if !known {
				c, err := s.collab.Canisters.Canister(ctx, id)
				switch {
				case errors.Is(err, ErrCanisterNotFound):
					done = false
				case err != nil:
					return nil, wrapCollaborator(ctx, fmt.Sprintf("read canister %s", id), err)
				default:
					done = c.TrolleyID != nil
				}
				scheduled[id] = done
			}
			if !done {
				remaining = append(remaining, id)
			}
		}

		if len(remaining) == 0 {
			continue
		}
		pk.CanisterIDs = remaining
		out = append(out, pk)
	}

	return out, nil
}

func (s *Scheduler) capacity(ctx context.Context, device DeviceID) (partition.Capacity, error) {
	capacity := make(partition.Capacity, s.cfg.QuadrantsPerDevice)
	for q := 1; q <= s.cfg.QuadrantsPerDevice; q++ {
		n, err := s.collab.Capacity.EnabledLocations(ctx, device, Quadrant(q))
		if err != nil {
			return nil, wrapCollaborator(ctx, fmt.Sprintf("read capacity of %s/%d", device, q), err)
		}
		capacity[Quadrant(q)] = n
	}

	return capacity, nil
}

// freeTrolleys returns the ranked trolleys that can take a first trip, with their layouts.
func (s *Scheduler) freeTrolleys(ctx context.Context) ([]TrolleyID, map[TrolleyID]DrawerLayout, error) {
	ids, err := s.collab.Trolleys.Available(ctx, !s.cfg.IncludeTrolleysOfOtherBatches)
	if err != nil {
		return nil, nil, wrapCollaborator(ctx, "read available trolleys", err)
	}

	free := make([]TrolleyID, 0, len(ids))
	layouts := make(map[TrolleyID]DrawerLayout, len(ids))
	history := make(map[TrolleyID]bool, len(ids))

	for _, id := range ids {
		onTrolley, err := s.collab.Canisters.CanistersOnTrolley(ctx, id)
		if err != nil {
			return nil, nil, wrapCollaborator(ctx, fmt.Sprintf("read canisters on trolley %s", id), err)
		}
		if blockers := trolleyBlockers(onTrolley, id); len(blockers) > 0 {
			s.logger.Debug("trolley not free", "trolley_id", id, "canisters", len(blockers))
			continue
		}

		layout, err := s.collab.Trolleys.DrawerLayout(ctx, id)
		if err != nil {
			return nil, nil, wrapCollaborator(ctx, fmt.Sprintf("read drawer layout of %s", id), err)
		}

		free = append(free, id)
		layouts[id] = layout
		history[id] = len(onTrolley) > 0
	}

	return trolley.RankTrolleys(free, history), layouts, nil
}

// build numbers the assigned trips' canisters and fills in the recommendation.
func build(
	rec *Recommendation,
	assigned []trolley.AssignedTrip,
	distribution *station.Plan,
	stations []types.Station,
	seq Sequencer,
) {
	operators := make(map[StationID]OperatorID, len(stations))
	for _, st := range stations {
		operators[st.ID] = st.OperatorID
	}
	tags := make(map[CanisterID]StationID)

	for _, at := range assigned {
		placements := make(map[CanisterID]trolley.Placement, len(at.Placements))
		for _, p := range at.Placements {
			placements[p.CanisterID] = p
		}
		slots := drugSlots(at.Packs())

		for _, e := range sequence.Order(at.Trip, distribution.PackStation, seq) {
			p := placements[e.CanisterID]
			c := types.Canister{
				ID:              e.CanisterID,
				Status:          StatusPending,
				DeviceID:        p.DeviceID,
				Quadrant:        p.Quadrant,
				TrolleyID:       types.Ptr(at.TrolleyID),
				LocationID:      p.LocationID,
				OrderNo:         types.Ptr(e.OrderNo),
				TrolleySequence: types.Ptr(at.Sequence),
				StationID:       e.StationID,
				Slots:           slots[e.CanisterID],
				RunID:           rec.RunID,
			}

			ca := CanisterAssignment{
				TrolleyID:        at.TrolleyID,
				DrawerLocationID: p.LocationID,
				OrderNo:          e.OrderNo,
				TrolleySequence:  at.Sequence,
			}
			if e.StationID != nil {
				tags[e.CanisterID] = *e.StationID
				ca.StationID = *e.StationID
				if op, ok := operators[*e.StationID]; ok {
					c.OperatorID = types.Ptr(op)
				}
			}

			rec.canisters = append(rec.canisters, c)
			rec.Assignment[e.CanisterID] = ca
		}

		packs := at.Packs()
		packIDs := make([]PackID, len(packs))
		for i, pk := range packs {
			packIDs[i] = pk.ID
		}
		rec.Trips = append(rec.Trips, TripPlan{
			Sequence:      at.Sequence,
			TrolleyID:     at.TrolleyID,
			Reused:        at.Reused,
			Devices:       at.Devices(),
			Packs:         packIDs,
			Stations:      distribution.TripStations[at.Sequence],
			CanisterCount: at.CanisterCount(),
		})
	}

	distribution.Recount(tags)
	rec.Stations = distribution.Loads
}

// drugSlots lists one pending slot per drug a canister carries for each pack.
func drugSlots(packs []types.PendingPack) map[CanisterID][]DrugSlot {
	out := make(map[CanisterID][]DrugSlot)
	for _, pk := range packs {
		for _, id := range pk.CanisterIDs {
			drugs := pk.Drugs[id]
			if len(drugs) == 0 {
				drugs = []string{""}
			}
			for _, drug := range drugs {
				out[id] = append(out[id], DrugSlot{PackID: pk.ID, DrugID: drug, Status: SlotPending})
			}
		}
	}

	return out
}

func (s *Scheduler) recordRun(start time.Time, rec *Recommendation, err error) {
	outcome := outcomeFeasible
	switch {
	case errors.Is(err, ErrRunCancelled):
		outcome = outcomeCancelled
	case err != nil:
		outcome = outcomeError
	case !rec.Feasible():
		outcome = outcomeInfeasible
	}

	s.metrics.RecordRunDuration(time.Since(start).Seconds(), outcome)
}

func (s *Scheduler) recordPlan(rec *Recommendation) {
	for device, n := range rec.batches {
		s.metrics.RecordMiniBatches(device, n)
	}

	counts := make(map[InfeasibleCode]int)
	for _, reason := range rec.Infeasible {
		counts[reason.Code]++
	}
	for code, n := range counts {
		s.metrics.RecordInfeasiblePacks(code, n)
	}

	reused := 0
	for _, t := range rec.Trips {
		if t.Reused {
			reused++
		}
	}
	s.metrics.RecordTrips(len(rec.Trips), reused)
}

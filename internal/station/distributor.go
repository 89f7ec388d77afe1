// Package station distributes trolley trips across human fill stations.
//
// Distribution is a deterministic cyclic assignment followed by a fixed merge
// rule for linked stations; there is no optimality search.
package station

import (
	"fmt"

	"github.com/arloliu/fillsched/internal/logger"
	"github.com/arloliu/fillsched/internal/trolley"
	"github.com/arloliu/fillsched/types"
)

// Load is the work given to one physical station.
type Load struct {
	StationID     types.StationID
	OperatorID    types.OperatorID
	Packs         []types.PackID
	CanisterCount int
}

// Plan is the result of distributing trips over stations.
type Plan struct {
	// TripStations maps a trolley sequence to the stations serving that trip.
	TripStations map[int64][]types.StationID
	// PackStation maps each pack to the physical station that fills it.
	PackStation map[types.PackID]types.StationID
	// Loads lists every selected station in selection order, including idle ones.
	Loads []Load
}

// Load returns the load of station, or false if it was not selected.
func (p *Plan) Load(id types.StationID) (Load, bool) {
	for _, l := range p.Loads {
		if l.StationID == id {
			return l, true
		}
	}

	return Load{}, false
}

// Recount sets each station's canister count from final canister tags.
//
// Shared canisters are tagged to one station only, so the counts derived from
// pack membership would double count them.
func (p *Plan) Recount(tags map[types.CanisterID]types.StationID) {
	counts := make(map[types.StationID]int, len(p.Loads))
	for _, st := range tags {
		counts[st]++
	}
	for i := range p.Loads {
		p.Loads[i].CanisterCount = counts[p.Loads[i].StationID]
	}
}

// Distributor assigns trips to stations.
type Distributor struct {
	logger types.Logger
}

// NewDistributor creates a station distributor.
func NewDistributor(log types.Logger) *Distributor {
	if log == nil {
		log = logger.NewNop()
	}

	return &Distributor{logger: log}
}

// Pool splits the selection into distribution units and declared links.
//
// A declared link pairs two selected stations; the member selected first is
// the primary and stays in the pool while the partner is removed. A link to
// a station that is not selected is ignored.
//
// Parameters:
//   - stations: Selected stations in selection order
//
// Returns:
//   - []types.Station: Distribution units (primaries and unlinked stations)
//   - []types.StationLink: Resolved links
func (d *Distributor) Pool(stations []types.Station) ([]types.Station, []types.StationLink) {
	selected := make(map[types.StationID]int, len(stations))
	for i, s := range stations {
		selected[s.ID] = i
	}

	paired := make(map[types.StationID]bool)
	var links []types.StationLink

	for _, s := range stations {
		if paired[s.ID] || s.LinkedStationID == nil {
			continue
		}
		partner := *s.LinkedStationID
		if _, ok := selected[partner]; !ok || partner == s.ID || paired[partner] {
			d.logger.Warn("ignoring station link",
				"station_id", s.ID,
				"linked_station_id", partner,
			)
			continue
		}
		paired[s.ID] = true
		paired[partner] = true
		links = append(links, types.StationLink{Primary: s.ID, Partner: partner})
	}

	// A partner may appear before its primary in the selection when only the
	// later station declares the link; the primary is whichever comes first.
	for i, l := range links {
		if selected[l.Partner] < selected[l.Primary] {
			links[i] = types.StationLink{Primary: l.Partner, Partner: l.Primary}
		}
	}

	partners := make(map[types.StationID]bool, len(links))
	for _, l := range links {
		partners[l.Partner] = true
	}

	pool := make([]types.Station, 0, len(stations))
	for _, s := range stations {
		if !partners[s.ID] {
			pool = append(pool, s)
		}
	}

	return pool, links
}

// Feasibility reports how many trolleys and stations the run requires.
//
// The run needs one station unit per concurrently loaded trip, which is
// min(trips, trolleys). A linked pair counts as one unit.
//
// Parameters:
//   - tripCount: Number of trips
//   - trolleyCount: Number of available trolleys
//   - stations: Selected stations
//
// Returns:
//   - types.FeasibilityQuery: Requirements and shortfall
func (d *Distributor) Feasibility(tripCount, trolleyCount int, stations []types.Station) types.FeasibilityQuery {
	pool, links := d.Pool(stations)

	q := types.FeasibilityQuery{
		RequiredTrolleyCount:  tripCount,
		RequiredStationCount:  min(tripCount, trolleyCount),
		AvailableTrolleyCount: trolleyCount,
		SelectedStationUnits:  len(pool),
		TrolleyExhausted:      tripCount > 0 && trolleyCount == 0,
	}
	q.AdditionalStations = max(0, q.RequiredStationCount-q.SelectedStationUnits)
	if q.AdditionalStations > 0 {
		q.SuggestedLinks = suggestLinks(stations, links)
	}

	return q
}

// Distribute assigns trips to stations.
//
// The algorithm:
//  1. Remove link partners from the pool
//  2. Zip trips and pool units cyclically over max(trips, units) steps, so a
//     trip may be served by several units and a unit by several trips
//  3. Split each trip's packs round-robin across its units
//  4. For each linked pair, alternate the primary's packs between the two stations
//
// Parameters:
//   - trips: Assigned trips in emission order
//   - trolleyCount: Number of available trolleys
//   - stations: Selected stations in selection order
//
// Returns:
//   - *Plan: Trip, pack and station loads
//   - error: *types.StationSelectionError when the selection is insufficient
func (d *Distributor) Distribute(trips []trolley.AssignedTrip, trolleyCount int, stations []types.Station) (*Plan, error) {
	q := d.Feasibility(len(trips), trolleyCount, stations)
	if q.TrolleyExhausted {
		return nil, fmt.Errorf("%w: %d trips", types.ErrTrolleyExhausted, len(trips))
	}
	if q.AdditionalStations > 0 {
		return nil, &types.StationSelectionError{
			Required:       q.RequiredStationCount,
			Selected:       q.SelectedStationUnits,
			Additional:     q.AdditionalStations,
			SuggestedLinks: q.SuggestedLinks,
		}
	}

	pool, links := d.Pool(stations)
	plan := &Plan{
		TripStations: make(map[int64][]types.StationID, len(trips)),
		PackStation:  make(map[types.PackID]types.StationID),
	}

	unitPacks := make(map[types.StationID][]types.PackID, len(pool))
	if len(trips) > 0 && len(pool) > 0 {
		tripUnits := make([][]types.StationID, len(trips))
		steps := max(len(trips), len(pool))
		for k := range steps {
			ti := k % len(trips)
			unit := pool[k%len(pool)].ID
			if !containsStation(tripUnits[ti], unit) {
				tripUnits[ti] = append(tripUnits[ti], unit)
			}
		}

		for ti, trip := range trips {
			units := tripUnits[ti]
			plan.TripStations[trip.Sequence] = units
			for i, pk := range trip.Packs() {
				unit := units[i%len(units)]
				unitPacks[unit] = append(unitPacks[unit], pk.ID)
			}
		}
	}

	stationPacks := make(map[types.StationID][]types.PackID, len(stations))
	for unit, packs := range unitPacks {
		stationPacks[unit] = packs
	}
	for _, l := range links {
		primary, partner := interleave(unitPacks[l.Primary])
		stationPacks[l.Primary] = primary
		stationPacks[l.Partner] = partner
		for seq, units := range plan.TripStations {
			if containsStation(units, l.Primary) && !containsStation(units, l.Partner) {
				plan.TripStations[seq] = append(units, l.Partner)
			}
		}
	}

	for _, s := range stations {
		packs := stationPacks[s.ID]
		for _, pk := range packs {
			plan.PackStation[pk] = s.ID
		}
		plan.Loads = append(plan.Loads, Load{
			StationID:  s.ID,
			OperatorID: s.OperatorID,
			Packs:      packs,
		})
	}

	d.logger.Debug("trips distributed",
		"trips", len(trips),
		"station_units", len(pool),
		"links", len(links),
	)

	return plan, nil
}

// interleave alternates packs between the primary and partner stations.
func interleave(packs []types.PackID) ([]types.PackID, []types.PackID) {
	var primary, partner []types.PackID
	for i, pk := range packs {
		if i%2 == 0 {
			primary = append(primary, pk)
		} else {
			partner = append(partner, pk)
		}
	}

	return primary, partner
}

// suggestLinks pairs selected stations that share an operator but declare no link.
func suggestLinks(stations []types.Station, declared []types.StationLink) []types.StationLink {
	linked := make(map[types.StationID]bool, 2*len(declared))
	for _, l := range declared {
		linked[l.Primary] = true
		linked[l.Partner] = true
	}

	open := make(map[types.OperatorID]types.StationID)
	var out []types.StationLink
	for _, s := range stations {
		if linked[s.ID] || s.OperatorID == "" {
			continue
		}
		if first, ok := open[s.OperatorID]; ok {
			out = append(out, types.StationLink{Primary: first, Partner: s.ID})
			delete(open, s.OperatorID)
			continue
		}
		open[s.OperatorID] = s.ID
	}

	return out
}

func containsStation(list []types.StationID, id types.StationID) bool {
	for _, s := range list {
		if s == id {
			return true
		}
	}

	return false
}

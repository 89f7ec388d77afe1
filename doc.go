// Package fillsched schedules the manual filling of drug canisters for
// pharmacy packaging robots.
//
// A pharmacy batch leaves a queue of pending packs, each needing a set of
// canisters filled by hand before the pack can run on its robot. fillsched
// decides which canisters travel together, on which trolley and drawer, to
// which fill station, and in which order the operators fill them. It then
// follows each canister through the fill station lifecycle.
//
// # Quick Start
//
//	cfg := fillsched.DefaultConfig()
//	cfg.Devices = []fillsched.DeviceID{"D1", "D2"}
//
//	sched, err := fillsched.NewScheduler(&cfg, fillsched.Collaborators{
//	    Capacity:  capacity,  // enabled locations per device quadrant
//	    Work:      work,      // pending packs per device
//	    Trolleys:  trolleys,  // trolley pool and drawer layouts
//	    Stations:  stations,  // selected fill stations
//	    Canisters: store,     // canister records
//	    Committer: store,     // transactional writes
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	rec, err := sched.Run(ctx)
//	if fillsched.IsStationSelectionInsufficient(err) {
//	    // ask the supervisor to select rec.Feasibility.AdditionalStations more
//	}
//
// # Pipeline
//
// One scheduling run goes through these stages:
//
//	pending packs → mini-batches → trips → trolleys → stations → fill order
//
// Packs sharing a canister are kept in one mini-batch, and a mini-batch never
// exceeds a device quadrant's enabled locations; a sharing closure that cannot
// fit is reported in Recommendation.Infeasible. The mini-batches of all
// devices are interleaved so that one trip can serve two robots. When there
// are more trips than trolleys, trolleys are reused cyclically and the
// repeated trips receive their drawer locations once the trolley is free.
//
// # Fill Stations
//
// Stations report progress through Scheduler.Status():
//
//	PENDING → IN_PROGRESS → FILLED → VERIFIED
//
// with diversions to SKIPPED, RTS_REQUIRED, MVS_FILLING_REQUIRED and
// DEACTIVATED. When WithDocumentStore is set, every commit and status change
// is mirrored into per-station documents kept in a revision-checked store
// (JetStream KV or Redis).
//
// # Persistence
//
// The store/gormstore package implements CanisterStore and
// AssignmentCommitter on Postgres through gorm. The source package provides
// in-memory collaborators for tests and demos.
package fillsched

package fillsched

import (
	"context"
	"fmt"
	"slices"

	"github.com/arloliu/fillsched/internal/docsync"
	"github.com/arloliu/fillsched/internal/status"
	"github.com/arloliu/fillsched/types"
	"github.com/go-redis/redis/v8"
	"github.com/nats-io/nats.go/jetstream"
)

// Station document types rendered by fill station UIs.
type (
	StationDocument  = docsync.StationDocument
	DocumentCanister = docsync.DocumentCanister
)

// OpenJetStreamDocuments creates or opens the station document bucket named
// by cfg.DocumentSync.Bucket.
//
// Parameters:
//   - ctx: Context for bucket creation
//   - js: JetStream context
//   - cfg: Scheduler configuration
//
// Returns:
//   - DocumentStore: Store for WithDocumentStore
//   - error: Bucket creation error
func OpenJetStreamDocuments(ctx context.Context, js jetstream.JetStream, cfg *Config) (DocumentStore, error) {
	bucket := cfg.DocumentSync.Bucket
	if bucket == "" {
		bucket = DefaultConfig().DocumentSync.Bucket
	}

	store, err := docsync.OpenJetStreamStore(ctx, js, bucket)
	if err != nil {
		return nil, fmt.Errorf("open station documents: %w", err)
	}

	return store, nil
}

// NewRedisDocuments keeps station documents in Redis hashes.
func NewRedisDocuments(client redis.UniversalClient) DocumentStore {
	return docsync.NewRedisStore(client)
}

// StationDocument reads the current document of a station.
//
// Returns:
//   - *StationDocument: Decoded document (empty if never written)
//   - error: ErrCollaboratorRequired without a document store, or a read error
func (s *Scheduler) StationDocument(ctx context.Context, id StationID) (*StationDocument, error) {
	if s.docs == nil {
		return nil, fmt.Errorf("%w: document store", ErrCollaboratorRequired)
	}

	doc, _, err := s.docs.Station(ctx, id)

	return doc, err
}

// publish rewrites the documents of the stations the canisters are bound to.
//
// Publication is best effort: failures are logged and reported through
// Hooks.OnError, the committed data stays authoritative.
func (s *Scheduler) publish(ctx context.Context, runID string, canisters []types.Canister) {
	if s.docs == nil {
		return
	}

	var order []StationID
	byStation := make(map[StationID][]types.Canister)
	for _, c := range canisters {
		if c.StationID == nil {
			continue
		}
		st := *c.StationID
		if _, ok := byStation[st]; !ok {
			order = append(order, st)
		}
		byStation[st] = append(byStation[st], c)
	}

	for _, st := range order {
		rows := byStation[st]
		_, err := s.docs.UpdateStation(ctx, st, func(doc *docsync.StationDocument) error {
			doc.RunID = runID
			for _, c := range rows {
				doc.Apply(c)
				if c.OperatorID != nil {
					doc.OperatorID = *c.OperatorID
				}
				if c.TrolleySequence != nil && !slices.Contains(doc.Trips, *c.TrolleySequence) {
					doc.Trips = append(doc.Trips, *c.TrolleySequence)
				}
			}
			slices.Sort(doc.Trips)

			return nil
		})
		if err != nil {
			s.logger.Error("station document update failed", "station_id", st, "run_id", runID, "error", err)
			s.reportError(ctx, err)
		}
	}
}

// onEvent mirrors a status change into the documents of the old and new station.
func (s *Scheduler) onEvent(ctx context.Context, ev status.Event) {
	var targets []StationID
	for _, st := range []*StationID{ev.FromStationID, ev.StationID} {
		if st != nil && !slices.Contains(targets, *st) {
			targets = append(targets, *st)
		}
	}
	if len(targets) == 0 {
		return
	}

	c, err := s.collab.Canisters.Canister(ctx, ev.CanisterID)
	if err != nil {
		s.logger.Warn("failed to load canister for station document", "canister_id", ev.CanisterID, "error", err)
		return
	}

	for _, st := range targets {
		_, err := s.docs.UpdateStation(ctx, st, func(doc *docsync.StationDocument) error {
			doc.Apply(c)
			return nil
		})
		if err != nil {
			s.logger.Error("station document update failed", "station_id", st, "canister_id", c.ID, "error", err)
			s.reportError(ctx, err)
		}
	}
}

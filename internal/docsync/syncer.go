// Package docsync keeps fill station documents in a revision-checked key/value store.
//
// Every write is a read-modify-write cycle against a types.DocumentStore.
// When another writer got there first the store reports a revision conflict
// and the cycle is repeated with a fresh read; a conflict is never dropped.
package docsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/fillsched/internal/logger"
	"github.com/arloliu/fillsched/internal/metrics"
	"github.com/arloliu/fillsched/types"
)

// Config configures a Syncer.
type Config struct {
	// KeyPrefix prefixes every station key ("<prefix>.<stationID>").
	KeyPrefix string
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// BaseDelay is the first retry delay.
	BaseDelay time.Duration
	// MaxDelay caps every retry delay.
	MaxDelay time.Duration
	// Multiplier bounds the growth of consecutive delays.
	Multiplier float64
	// Seed makes retry jitter deterministic when non-zero.
	Seed int64
}

// DefaultConfig returns the default syncer configuration.
func DefaultConfig() Config {
	return Config{
		KeyPrefix:  "station",
		MaxRetries: 8,
		BaseDelay:  20 * time.Millisecond,
		MaxDelay:   500 * time.Millisecond,
		Multiplier: 3,
	}
}

// Syncer applies mutations to documents with optimistic concurrency.
type Syncer struct {
	store   types.DocumentStore
	cfg     Config
	jitter  *jitter
	logger  types.Logger
	metrics types.DocumentMetrics
	now     func() time.Time
}

// NewSyncer creates a document syncer.
//
// Parameters:
//   - store: Revision-checked document store
//   - cfg: Retry configuration
//   - log: Logger (nil for no-op)
//   - m: Document metrics (nil for no-op)
//
// Returns:
//   - *Syncer: Initialized syncer
func NewSyncer(store types.DocumentStore, cfg Config, log types.Logger, m types.DocumentMetrics) *Syncer {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultConfig().KeyPrefix
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if log == nil {
		log = logger.NewNop()
	}
	if m == nil {
		m = metrics.NewNop()
	}

	return &Syncer{
		store:   store,
		cfg:     cfg,
		jitter:  newJitter(cfg.BaseDelay, cfg.Multiplier, cfg.MaxDelay, cfg.Seed),
		logger:  log,
		metrics: m,
		now:     time.Now,
	}
}

// Key returns the document key of station.
func (s *Syncer) Key(station types.StationID) string {
	return s.cfg.KeyPrefix + "." + string(station)
}

// Update runs a read-modify-write cycle on key until it succeeds.
//
// The algorithm:
//  1. Read the current document and revision (absent documents read as nil at revision 0)
//  2. Let mutate derive the new document from the current one
//  3. Write it conditionally on the revision read in step 1
//  4. On a revision conflict or an unreachable store, wait with jittered
//     backoff and start over
//
// mutate may run several times and must derive its result only from its input.
//
// Parameters:
//   - ctx: Context for store calls and backoff waits
//   - key: Document key
//   - mutate: Derives the new document; its error aborts the update
//
// Returns:
//   - uint64: Revision of the written document
//   - error: ErrDocumentRetriesExhausted after MaxRetries conflicts,
//     ErrDocumentStoreUnavailable once the store stays unreachable, or the first other error
func (s *Syncer) Update(ctx context.Context, key string, mutate func(current []byte) ([]byte, error)) (uint64, error) {
	var delay time.Duration

	for attempt := 1; ; attempt++ {
		current, rev, err := s.store.Get(ctx, key)
		switch {
		case errors.Is(err, types.ErrDocumentNotFound):
			current, rev, err = nil, 0, nil
		case err != nil && !errors.Is(err, types.ErrDocumentStoreUnavailable):
			s.metrics.RecordDocumentWrite(false, attempt)
			return 0, fmt.Errorf("read document %s: %w", key, err)
		}

		if err == nil {
			next, mutateErr := mutate(current)
			if mutateErr != nil {
				return 0, mutateErr
			}

			var written uint64
			written, err = s.store.Put(ctx, key, next, rev)
			if err == nil {
				s.metrics.RecordDocumentWrite(true, attempt)
				return written, nil
			}
		}

		conflict := errors.Is(err, types.ErrRevisionConflict)
		if !conflict && !errors.Is(err, types.ErrDocumentStoreUnavailable) {
			s.metrics.RecordDocumentWrite(false, attempt)
			return 0, fmt.Errorf("write document %s: %w", key, err)
		}
		if conflict {
			s.metrics.RecordDocumentConflict()
		}

		if attempt > s.cfg.MaxRetries {
			s.metrics.RecordDocumentWrite(false, attempt)
			s.logger.Error("document update gave up",
				"key", key,
				"attempts", attempt,
				"error", err,
			)
			if conflict {
				return 0, fmt.Errorf("%w: %s after %d attempts", types.ErrDocumentRetriesExhausted, key, attempt)
			}

			return 0, fmt.Errorf("document %s after %d attempts: %w", key, attempt, err)
		}

		delay = s.jitter.next(delay)
		s.logger.Debug("document update retrying",
			"key", key,
			"revision", rev,
			"attempt", attempt,
			"delay", delay,
			"conflict", conflict,
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.metrics.RecordDocumentWrite(false, attempt)

			return 0, fmt.Errorf("document update %s cancelled: %w", key, ctx.Err())
		case <-timer.C:
		}
	}
}

// UpdateStation runs a read-modify-write cycle on a station document.
//
// Parameters:
//   - ctx: Context for store calls and backoff waits
//   - station: Station whose document is updated
//   - mutate: Edits the freshly decoded document in place
//
// Returns:
//   - *StationDocument: The document as written
//   - error: Update error
func (s *Syncer) UpdateStation(
	ctx context.Context,
	station types.StationID,
	mutate func(doc *StationDocument) error,
) (*StationDocument, error) {
	var written *StationDocument

	_, err := s.Update(ctx, s.Key(station), func(current []byte) ([]byte, error) {
		doc, err := decodeStation(current, station)
		if err != nil {
			return nil, err
		}
		if err := mutate(doc); err != nil {
			return nil, err
		}
		doc.UpdatedAt = s.now().UTC()

		raw, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("encode station document %s: %w", station, err)
		}
		written = doc

		return raw, nil
	})
	if err != nil {
		return nil, err
	}

	return written, nil
}

// Station reads the current document of station.
//
// Returns:
//   - *StationDocument: Decoded document (empty if absent)
//   - uint64: Revision (0 if absent)
//   - error: Read or decode error
func (s *Syncer) Station(ctx context.Context, station types.StationID) (*StationDocument, uint64, error) {
	raw, rev, err := s.store.Get(ctx, s.Key(station))
	if errors.Is(err, types.ErrDocumentNotFound) {
		return &StationDocument{StationID: station}, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read document %s: %w", s.Key(station), err)
	}

	doc, err := decodeStation(raw, station)
	if err != nil {
		return nil, 0, err
	}

	return doc, rev, nil
}

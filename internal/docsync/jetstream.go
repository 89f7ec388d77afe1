package docsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/arloliu/fillsched/internal/kvutil"
	"github.com/arloliu/fillsched/internal/natsutil"
	"github.com/arloliu/fillsched/types"
	"github.com/nats-io/nats.go/jetstream"
)

// JetStreamStore implements types.DocumentStore on a JetStream KV bucket.
//
// KV revisions are stream sequences, so they grow across keys; only their
// per-key ordering is meaningful.
type JetStreamStore struct {
	kv jetstream.KeyValue
}

var _ types.DocumentStore = (*JetStreamStore)(nil)

// NewJetStreamStore wraps an opened KV bucket.
func NewJetStreamStore(kv jetstream.KeyValue) *JetStreamStore {
	return &JetStreamStore{kv: kv}
}

// OpenJetStreamStore creates or opens the document bucket and wraps it.
//
// Parameters:
//   - ctx: Context for bucket creation
//   - js: JetStream context
//   - bucket: Bucket name
//
// Returns:
//   - *JetStreamStore: Store backed by the bucket
//   - error: Bucket creation error
func OpenJetStreamStore(ctx context.Context, js jetstream.JetStream, bucket string) (*JetStreamStore, error) {
	kv, err := kvutil.EnsureBucket(ctx, js, kvutil.DocumentBucketConfig(bucket, jetstream.FileStorage), 3)
	if err != nil {
		return nil, err
	}

	return NewJetStreamStore(kv), nil
}

// Get returns the document and its revision.
func (s *JetStreamStore) Get(ctx context.Context, key string) ([]byte, uint64, error) {
	entry, err := s.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, 0, fmt.Errorf("%w: %s", types.ErrDocumentNotFound, key)
	}
	if natsutil.IsTransient(err) {
		return nil, 0, fmt.Errorf("%w: get %s: %w", types.ErrDocumentStoreUnavailable, key, err)
	}
	if err != nil {
		return nil, 0, err
	}

	return entry.Value(), entry.Revision(), nil
}

// Put writes doc if the stored revision equals revision.
//
// Revision 0 creates the key and conflicts if it already exists.
func (s *JetStreamStore) Put(ctx context.Context, key string, doc []byte, revision uint64) (uint64, error) {
	var (
		rev uint64
		err error
	)
	if revision == 0 {
		rev, err = s.kv.Create(ctx, key, doc)
	} else {
		rev, err = s.kv.Update(ctx, key, doc, revision)
	}

	if natsutil.IsRevisionConflict(err) {
		return 0, fmt.Errorf("%w: %s at revision %d: %w", types.ErrRevisionConflict, key, revision, err)
	}
	if natsutil.IsTransient(err) {
		return 0, fmt.Errorf("%w: put %s: %w", types.ErrDocumentStoreUnavailable, key, err)
	}
	if err != nil {
		return 0, err
	}

	return rev, nil
}

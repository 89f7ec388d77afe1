// Package kvutil opens the JetStream KV buckets that hold station documents.
package kvutil

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

const (
	defaultAttempts = 3
	firstBackoff    = 10 * time.Millisecond
	maxBackoff      = 200 * time.Millisecond
)

// DocumentBucketConfig returns the KV configuration used for station documents.
//
// Only the latest revision of a document is kept and documents never expire.
//
// Parameters:
//   - bucket: Bucket name
//   - storage: jetstream.FileStorage in production, MemoryStorage in tests
func DocumentBucketConfig(bucket string, storage jetstream.StorageType) jetstream.KeyValueConfig {
	return jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "fill station documents",
		History:     1,
		Storage:     storage,
	}
}

// EnsureBucket creates the bucket, or opens it when it already exists.
//
// Schedulers and station UIs open the bucket concurrently at startup, so a
// create that loses the race falls back to opening the bucket. Other
// failures are retried with doubling backoff until attempts run out.
//
// Parameters:
//   - ctx: Context for the JetStream calls and backoff waits
//   - js: JetStream context
//   - cfg: Bucket configuration
//   - attempts: Maximum attempts; values below 1 mean 3
//
// Returns:
//   - jetstream.KeyValue: Opened bucket
//   - error: Last failure once attempts are exhausted, or the context error
func EnsureBucket(
	ctx context.Context,
	js jetstream.JetStream,
	cfg jetstream.KeyValueConfig,
	attempts int,
) (jetstream.KeyValue, error) {
	if attempts < 1 {
		attempts = defaultAttempts
	}

	backoff := firstBackoff
	var lastErr error
	for attempt := 1; ; attempt++ {
		kv, err := open(ctx, js, cfg)
		if err == nil {
			return kv, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, fmt.Errorf("open bucket %s: %w", cfg.Bucket, ctx.Err())
		}
		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("open bucket %s: %w", cfg.Bucket, ctx.Err())
		case <-time.After(backoff):
		}
		backoff = min(2*backoff, maxBackoff)
	}

	return nil, fmt.Errorf("open bucket %s after %d attempts: %w", cfg.Bucket, attempts, lastErr)
}

func open(ctx context.Context, js jetstream.JetStream, cfg jetstream.KeyValueConfig) (jetstream.KeyValue, error) {
	kv, err := js.CreateKeyValue(ctx, cfg)
	if !errors.Is(err, jetstream.ErrBucketExists) {
		return kv, err
	}

	kv, err = js.KeyValue(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("bucket exists but cannot be opened: %w", err)
	}

	return kv, nil
}

package docsync

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/arloliu/fillsched/types"
	"github.com/go-redis/redis/v8"
)

const (
	fieldDoc = "doc"
	fieldRev = "rev"
)

// RedisStore implements types.DocumentStore on Redis hashes.
//
// Each key is a hash holding the document and its revision. Writes run in a
// WATCH/MULTI transaction that checks the revision first.
type RedisStore struct {
	client redis.UniversalClient
}

var _ types.DocumentStore = (*RedisStore)(nil)

// NewRedisStore creates a Redis-backed document store.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Get returns the document and its revision.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, uint64, error) {
	vals, err := s.client.HMGet(ctx, key, fieldDoc, fieldRev).Result()
	if err != nil {
		return nil, 0, classifyRedis("get "+key, err)
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return nil, 0, fmt.Errorf("%w: %s", types.ErrDocumentNotFound, key)
	}

	doc, _ := vals[0].(string)
	revStr, _ := vals[1].(string)

	rev, err := strconv.ParseUint(revStr, 10, 64)
	if err != nil {
		return nil, 0, fmt.Errorf("parse revision of %s: %w", key, err)
	}

	return []byte(doc), rev, nil
}

// Put writes doc if the stored revision equals revision.
func (s *RedisStore) Put(ctx context.Context, key string, doc []byte, revision uint64) (uint64, error) {
	var next uint64

	txf := func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, key, fieldRev).Uint64()
		if errors.Is(err, redis.Nil) {
			current = 0
		} else if err != nil {
			return err
		}
		if current != revision {
			return fmt.Errorf("%w: %s at revision %d, expected %d", types.ErrRevisionConflict, key, current, revision)
		}

		next = current + 1
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fieldDoc, doc, fieldRev, next)
			return nil
		})

		return err
	}

	err := s.client.Watch(ctx, txf, key)
	if errors.Is(err, redis.TxFailedErr) {
		return 0, fmt.Errorf("%w: %s changed during write", types.ErrRevisionConflict, key)
	}
	if err != nil {
		return 0, classifyRedis("put "+key, err)
	}

	return next, nil
}

// classifyRedis marks network and closed-client failures as ErrDocumentStoreUnavailable.
func classifyRedis(op string, err error) error {
	if errors.Is(err, types.ErrRevisionConflict) {
		return err
	}

	var netErr net.Error
	if errors.Is(err, redis.ErrClosed) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %s: %w", types.ErrDocumentStoreUnavailable, op, err)
	}

	return err
}

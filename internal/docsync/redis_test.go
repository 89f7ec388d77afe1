package docsync

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/arloliu/fillsched/types"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

func setupRedisStore(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = client.Close() })

	return mr, NewRedisStore(client)
}

func TestRedisStore(t *testing.T) {
	mr, store := setupRedisStore(t)
	ctx := context.Background()

	_, _, err := store.Get(ctx, "station.S1")
	require.ErrorIs(t, err, types.ErrDocumentNotFound)

	rev, err := store.Put(ctx, "station.S1", []byte(`{"stationId":"S1"}`), 0)
	require.NoError(t, err)
	require.Equal(t, uint64(1), rev)

	require.Equal(t, `{"stationId":"S1"}`, mr.HGet("station.S1", fieldDoc))
	require.Equal(t, "1", mr.HGet("station.S1", fieldRev))

	t.Run("stale revision conflicts", func(t *testing.T) {
		_, err := store.Put(ctx, "station.S1", []byte("x"), 0)
		require.ErrorIs(t, err, types.ErrRevisionConflict)

		next, err := store.Put(ctx, "station.S1", []byte("y"), 1)
		require.NoError(t, err)
		require.Equal(t, uint64(2), next)

		doc, got, err := store.Get(ctx, "station.S1")
		require.NoError(t, err)
		require.Equal(t, "y", string(doc))
		require.Equal(t, uint64(2), got)
	})

	t.Run("unparsable revision", func(t *testing.T) {
		mr.HSet("station.bad", fieldDoc, "z", fieldRev, "nope")

		_, _, err := store.Get(ctx, "station.bad")
		require.Error(t, err)
		require.NotErrorIs(t, err, types.ErrDocumentNotFound)
	})
}

func TestRedisStoreWithSyncer(t *testing.T) {
	_, store := setupRedisStore(t)
	ctx := context.Background()

	cfg := fastConfig()
	cfg.MaxRetries = 100
	s := NewSyncer(store, cfg, nil, nil)

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			_, err := s.Update(ctx, "counter", increment)
			require.NoError(t, err)
		})
	}
	wg.Wait()

	doc, rev, err := store.Get(ctx, "counter")
	require.NoError(t, err)
	require.Equal(t, "8", string(doc))
	require.Equal(t, uint64(8), rev)
}

func TestRedisStoreUnavailable(t *testing.T) {
	ctx := context.Background()

	t.Run("server gone", func(t *testing.T) {
		mr, store := setupRedisStore(t)
		mr.Close()

		_, _, err := store.Get(ctx, "station.S1")
		require.ErrorIs(t, err, types.ErrDocumentStoreUnavailable)

		_, err = store.Put(ctx, "station.S1", []byte("a"), 0)
		require.ErrorIs(t, err, types.ErrDocumentStoreUnavailable)
	})

	t.Run("client closed", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		require.NoError(t, client.Close())

		_, _, err := NewRedisStore(client).Get(ctx, "station.S1")
		require.ErrorIs(t, err, types.ErrDocumentStoreUnavailable)
	})
}

package docsync

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	fstest "github.com/arloliu/fillsched/testing"
	"github.com/arloliu/fillsched/types"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"
)

func TestJetStreamStore(t *testing.T) {
	_, nc := fstest.StartEmbeddedNATS(t)
	kv := fstest.CreateDocumentKV(t, nc, "docsync-store")
	store := NewJetStreamStore(kv)
	ctx := context.Background()

	_, _, err := store.Get(ctx, "station.S1")
	require.ErrorIs(t, err, types.ErrDocumentNotFound)

	rev, err := store.Put(ctx, "station.S1", []byte("a"), 0)
	require.NoError(t, err)
	require.NotZero(t, rev)

	t.Run("create conflicts when key exists", func(t *testing.T) {
		_, err := store.Put(ctx, "station.S1", []byte("b"), 0)
		require.ErrorIs(t, err, types.ErrRevisionConflict)
	})

	t.Run("stale revision conflicts", func(t *testing.T) {
		next, err := store.Put(ctx, "station.S1", []byte("c"), rev)
		require.NoError(t, err)
		require.Greater(t, next, rev)

		_, err = store.Put(ctx, "station.S1", []byte("d"), rev)
		require.ErrorIs(t, err, types.ErrRevisionConflict)

		doc, got, err := store.Get(ctx, "station.S1")
		require.NoError(t, err)
		require.Equal(t, "c", string(doc))
		require.Equal(t, next, got)
	})
}

func TestJetStreamStoreUnavailable(t *testing.T) {
	_, nc := fstest.StartEmbeddedNATS(t)
	store := NewJetStreamStore(fstest.CreateDocumentKV(t, nc, "docsync-down"))
	ctx := context.Background()

	nc.Close()

	_, _, err := store.Get(ctx, "station.S1")
	require.ErrorIs(t, err, types.ErrDocumentStoreUnavailable)

	_, err = store.Put(ctx, "station.S1", []byte("a"), 0)
	require.ErrorIs(t, err, types.ErrDocumentStoreUnavailable)
}

func TestJetStreamStoreConcurrentSyncers(t *testing.T) {
	_, nc := fstest.StartEmbeddedNATS(t)
	js, err := jetstream.New(nc)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := OpenJetStreamStore(ctx, js, "docsync-concurrent")
	require.NoError(t, err)

	cfg := fastConfig()
	cfg.MaxRetries = 200

	// Each writer has its own syncer, like separate scheduler processes.
	const writers = 8
	var wg sync.WaitGroup
	for i := range writers {
		s := NewSyncer(store, cfg, nil, nil)
		s.jitter = newJitter(cfg.BaseDelay, cfg.Multiplier, cfg.MaxDelay, int64(i+1))
		wg.Go(func() {
			_, err := s.Update(ctx, "counter", increment)
			require.NoError(t, err)
		})
	}
	wg.Wait()

	doc, _, err := store.Get(ctx, "counter")
	require.NoError(t, err)
	require.Equal(t, strconv.Itoa(writers), string(doc))
}

package natsutil

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	fstest "github.com/arloliu/fillsched/testing"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"timeout", nats.ErrTimeout, true},
		{"wrapped no servers", fmt.Errorf("get station.S1: %w", nats.ErrNoServers), true},
		{"no responders", nats.ErrNoResponders, true},
		{"dial failure", errors.New("dial tcp 127.0.0.1:4222: connection refused"), true},
		{"revision conflict", jetstream.ErrKeyExists, false},
		{"decode failure", errors.New("invalid character in station document"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, IsTransient(tt.err))
		})
	}

	t.Run("closed connection", func(t *testing.T) {
		_, nc := fstest.StartEmbeddedNATS(t)
		kv := fstest.CreateDocumentKV(t, nc, "natsutil-closed")
		nc.Close()

		_, err := kv.Get(context.Background(), "station.S1")
		require.True(t, IsTransient(err), "get on closed connection: %v", err)
	})
}

func TestIsRevisionConflict(t *testing.T) {
	require.False(t, IsRevisionConflict(nil))
	require.True(t, IsRevisionConflict(jetstream.ErrKeyExists))
	require.False(t, IsRevisionConflict(nats.ErrTimeout))

	t.Run("real KV errors", func(t *testing.T) {
		ctx := context.Background()
		_, nc := fstest.StartEmbeddedNATS(t)
		kv := fstest.CreateDocumentKV(t, nc, "natsutil-conflicts")

		rev, err := kv.Create(ctx, "k", []byte("a"))
		require.NoError(t, err)

		_, err = kv.Create(ctx, "k", []byte("b"))
		require.True(t, IsRevisionConflict(err), "create on existing key: %v", err)

		_, err = kv.Update(ctx, "k", []byte("c"), rev)
		require.NoError(t, err)

		_, err = kv.Update(ctx, "k", []byte("d"), rev)
		require.True(t, IsRevisionConflict(err), "stale update: %v", err)
	})
}

package testing

import (
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const natsReadyTimeout = 5 * time.Second

// StartEmbeddedNATS runs an in-process NATS server with JetStream and connects to it.
//
// The server listens on a random local port and keeps JetStream data under
// t.TempDir(), so parallel tests never share state. Server and connection
// are closed by t.Cleanup.
//
// Example:
//
//	_, nc := fstest.StartEmbeddedNATS(t)
//	js, err := jetstream.New(nc)
func StartEmbeddedNATS(t testing.TB) (*server.Server, *nats.Conn) {
	t.Helper()

	ns, err := server.NewServer(&server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
		NoLog:     true,
	})
	if err != nil {
		t.Fatalf("create embedded NATS server: %v", err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(natsReadyTimeout) {
		ns.Shutdown()
		t.Fatalf("embedded NATS server not ready after %s", natsReadyTimeout)
	}

	nc, err := nats.Connect(ns.ClientURL(), nats.Timeout(2*time.Second))
	if err != nil {
		ns.Shutdown()
		t.Fatalf("connect to embedded NATS server: %v", err)
	}

	t.Cleanup(func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	})

	return ns, nc
}

// CreateDocumentKV creates a memory-backed KV bucket laid out like the
// station document bucket: one revision per key and no expiry.
//
// Example:
//
//	_, nc := fstest.StartEmbeddedNATS(t)
//	store := docsync.NewJetStreamStore(fstest.CreateDocumentKV(t, nc, "stations"))
func CreateDocumentKV(t testing.TB, nc *nats.Conn, bucket string) jetstream.KeyValue {
	t.Helper()

	js, err := jetstream.New(nc)
	if err != nil {
		t.Fatalf("jetstream context: %v", err)
	}

	kv, err := js.CreateKeyValue(t.Context(), jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "test station documents",
		History:     1,
		Storage:     jetstream.MemoryStorage,
	})
	if err != nil {
		t.Fatalf("create KV bucket %s: %v", bucket, err)
	}

	return kv
}

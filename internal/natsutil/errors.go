// Package natsutil classifies NATS and JetStream errors for the station
// document store.
package natsutil

import (
	"errors"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// transient lists client errors raised while the server is unreachable.
var transient = []error{
	nats.ErrTimeout,
	nats.ErrNoServers,
	nats.ErrDisconnected,
	nats.ErrConnectionClosed,
	nats.ErrConnectionReconnecting,
	nats.ErrNoResponders,
	jetstream.ErrNoStreamResponse,
}

// transientText matches dial and read failures that reach us unwrapped.
var transientText = []string{"connection refused", "i/o timeout", "connection reset"}

// IsTransient reports whether a KV call failed because the server could not
// be reached, so that the same call may succeed later.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range transient {
		if errors.Is(err, target) {
			return true
		}
	}

	msg := err.Error()
	for _, text := range transientText {
		if strings.Contains(msg, text) {
			return true
		}
	}

	return false
}

// IsRevisionConflict reports whether a KV write lost a revision race.
//
// Create fails with ErrKeyExists on a present key; Update fails with a
// wrong-last-sequence API error once the expected revision is stale.
//
// Parameters:
//   - err: Error returned by KeyValue.Create or KeyValue.Update
//
// Returns:
//   - bool: true if the write should be retried against a fresh read
func IsRevisionConflict(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, jetstream.ErrKeyExists):
		return true
	}

	var apiErr *jetstream.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence {
		return true
	}

	return strings.Contains(err.Error(), "wrong last sequence")
}

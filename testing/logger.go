package testing

import (
	"testing"

	"github.com/arloliu/fillsched/internal/logging"
	"github.com/arloliu/fillsched/types"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// NewTestLogger creates a logger that writes to the test log at debug level.
//
// Output only appears for failing tests or with go test -v.
func NewTestLogger(t testing.TB) types.Logger {
	return logging.NewZap(zaptest.NewLogger(t, zaptest.Level(zap.DebugLevel)))
}

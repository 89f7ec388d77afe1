// Package logger provides the discard logger used when no logger option is
// given, and a recording logger for tests.
package logger

import "github.com/arloliu/fillsched/types"

// NopLogger discards every message. Fatal does not exit.
type NopLogger struct{}

var _ types.Logger = (*NopLogger)(nil)

// NewNop returns a logger that discards everything.
func NewNop() *NopLogger {
	return &NopLogger{}
}

func (*NopLogger) Debug(string, ...any) {}
func (*NopLogger) Info(string, ...any)  {}
func (*NopLogger) Warn(string, ...any)  {}
func (*NopLogger) Error(string, ...any) {}
func (*NopLogger) Fatal(string, ...any) {}

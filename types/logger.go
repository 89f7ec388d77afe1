package types

// Logger is the structured logger every fillsched component writes to.
//
// The method set matches zap.SugaredLogger's "w" methods, so a sugared zap
// logger satisfies it directly; internal/logging wraps a *zap.Logger. Fields
// are key-value pairs with snake_case keys ("trolley_id", "run_id").
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)

	// Fatal logs and exits the process in production loggers.
	Fatal(msg string, keysAndValues ...any)
}

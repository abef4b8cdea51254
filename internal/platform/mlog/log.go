// Package mlog provides the structured-logging interface used across every
// component of the control plane. Implementations wrap go.uber.org/zap.
package mlog

// Logger is the common interface every component takes a dependency on,
// instead of a concrete *zap.SugaredLogger. Components that need a no-op
// logger in tests use NoneLogger.
type Logger interface {
	Info(args ...any)
	Infof(format string, args ...any)

	Error(args ...any)
	Errorf(format string, args ...any)

	Warn(args ...any)
	Warnf(format string, args ...any)

	Debug(args ...any)
	Debugf(format string, args ...any)

	Fatal(args ...any)
	Fatalf(format string, args ...any)

	// WithFields returns a new Logger that attaches the given key/value
	// pairs to every subsequent line. The receiver is left unchanged.
	WithFields(fields ...any) Logger

	Sync() error
}

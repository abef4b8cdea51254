package mlog

// NoneLogger discards every line. Used in tests that don't care about log
// output but still need to satisfy the Logger interface.
type NoneLogger struct{}

func (l *NoneLogger) Info(args ...any)             {}
func (l *NoneLogger) Infof(f string, args ...any)  {}
func (l *NoneLogger) Error(args ...any)            {}
func (l *NoneLogger) Errorf(f string, args ...any) {}
func (l *NoneLogger) Warn(args ...any)             {}
func (l *NoneLogger) Warnf(f string, args ...any)  {}
func (l *NoneLogger) Debug(args ...any)            {}
func (l *NoneLogger) Debugf(f string, args ...any) {}
func (l *NoneLogger) Fatal(args ...any)             {}
func (l *NoneLogger) Fatalf(f string, args ...any)  {}

//nolint:ireturn
func (l *NoneLogger) WithFields(fields ...any) Logger { return l }
func (l *NoneLogger) Sync() error                     { return nil }

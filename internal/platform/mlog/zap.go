package mlog

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger is the production Logger implementation, backed directly by
// zap.SugaredLogger.
type ZapLogger struct {
	s *zap.SugaredLogger
}

// New builds a ZapLogger at the given level ("debug", "info", "warn",
// "error"; anything else defaults to "info"). Output is JSON to stdout,
// matching how operators tail the process in production.
func New(level string) (*ZapLogger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stdout"}
	cfg.EncoderConfig.TimeKey = "ts"

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}

	return &ZapLogger{s: logger.Sugar()}, nil
}

// NewDevelopment builds a human-readable console logger, for local runs
// and tests.
func NewDevelopment() *ZapLogger {
	logger, err := zap.NewDevelopment()
	if err != nil {
		// zap.NewDevelopment only fails on encoder misconfiguration, which
		// never happens with its own default config.
		logger = zap.NewNop()
	}

	return &ZapLogger{s: logger.Sugar()}
}

func (l *ZapLogger) Info(args ...any)             { l.s.Info(args...) }
func (l *ZapLogger) Infof(f string, args ...any)  { l.s.Infof(f, args...) }
func (l *ZapLogger) Error(args ...any)            { l.s.Error(args...) }
func (l *ZapLogger) Errorf(f string, args ...any) { l.s.Errorf(f, args...) }
func (l *ZapLogger) Warn(args ...any)             { l.s.Warn(args...) }
func (l *ZapLogger) Warnf(f string, args ...any)  { l.s.Warnf(f, args...) }
func (l *ZapLogger) Debug(args ...any)            { l.s.Debug(args...) }
func (l *ZapLogger) Debugf(f string, args ...any) { l.s.Debugf(f, args...) }
func (l *ZapLogger) Fatal(args ...any)            { l.s.Fatal(args...) }
func (l *ZapLogger) Fatalf(f string, args ...any) { l.s.Fatalf(f, args...) }

//nolint:ireturn
func (l *ZapLogger) WithFields(fields ...any) Logger {
	return &ZapLogger{s: l.s.With(fields...)}
}

func (l *ZapLogger) Sync() error {
	err := l.s.Sync()
	// Syncing stdout on Linux routinely returns ENOTTY/EINVAL; it is not a
	// real failure and every caller would otherwise have to special-case it.
	if err != nil && os.Getenv("NYX_STRICT_LOG_SYNC") == "" {
		return nil
	}

	return err
}

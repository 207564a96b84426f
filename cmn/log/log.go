// Package log wraps zap with the agent's seven-level taxonomy
// (debug, info, message, warning, critical, error, fatal — spec §6) and an
// optional systemd-journal sink, swapped in by the Service Glue when
// -s/--output-systemd is set.
package log

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is the agent's own level spelling, as it appears in the config file.
type Level string

// Config file spellings for log_level (spec §6).
const (
	LevelDebug    Level = "debug"
	LevelInfo     Level = "info"
	LevelMessage  Level = "message"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
	LevelError    Level = "error"
	LevelFatal    Level = "fatal"
)

// zapLevel maps the spec's taxonomy onto zap's. zap has no "message" or
// "critical" level: "message" is DDI's routine-status level and folds into
// Info; "critical" folds into Error since zap reserves DPanic/Panic for
// programmer errors rather than operational ones. See SPEC_FULL.md §4.7.
func zapLevel(l Level) zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelInfo, LevelMessage:
		return zapcore.InfoLevel
	case LevelWarning:
		return zapcore.WarnLevel
	case LevelCritical, LevelError:
		return zapcore.ErrorLevel
	case LevelFatal:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// Enabler exposes the taxonomy's zap-level mapping to callers (the Service
// Glue) that need to build their own zapcore.Core, such as the journal
// sink, at the configured level.
func Enabler(level Level) zapcore.LevelEnabler {
	return zapLevel(level)
}

// New builds a *zap.Logger at the given level. When journal is non-nil its
// Core replaces the default console core (used when -s/--output-systemd is
// set and the journal is reachable); otherwise logs go to stderr.
func New(level Level, journal zapcore.Core) *zap.Logger {
	if journal != nil {
		return zap.New(journal, zap.AddCaller())
	}

	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "time"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewConsoleEncoder(cfg)

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), zapLevel(level))
	return zap.New(core, zap.AddCaller())
}

// Named is a thin wrapper over *zap.Logger narrowing the call surface that
// the rest of the agent uses, so component packages depend on this package
// rather than on zap directly.
type Named struct {
	z *zap.Logger
}

// NewNamed wraps an existing *zap.Logger under a component name.
func NewNamed(z *zap.Logger, name string) *Named {
	return &Named{z: z.Named(name)}
}

func (n *Named) Debug(msg string, fields ...zap.Field)   { n.z.Debug(msg, fields...) }
func (n *Named) Info(msg string, fields ...zap.Field)    { n.z.Info(msg, fields...) }
func (n *Named) Warn(msg string, fields ...zap.Field)    { n.z.Warn(msg, fields...) }
func (n *Named) Error(msg string, fields ...zap.Field)   { n.z.Error(msg, fields...) }
func (n *Named) Sync() error                             { return n.z.Sync() }

// Err wraps an error as a zap field, matching the teacher's field-naming
// convention (a bare "error" key).
func Err(err error) zap.Field {
	return zap.Error(err)
}

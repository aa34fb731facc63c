// Package logger provides component-tagged logging for cardsmith.
//
// Every log line carries a component name ("render", "store", "discord", ...)
// so that the long-running gateway can be grepped per subsystem. The package
// wraps a zap logger; tests swap in a nop logger via SetNop.
package logger

import (
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var base atomic.Pointer[zap.Logger]

func init() {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		l = zap.NewNop()
	}
	base.Store(l)
}

// SetLevel rebuilds the logger at the given level. Pass zapcore.DebugLevel
// from the gateway --debug flag.
func SetLevel(level zapcore.Level) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(level)
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return
	}
	base.Store(l)
}

// SetNop silences all logging. Used in tests.
func SetNop() {
	base.Store(zap.NewNop())
}

// Sync flushes buffered log entries. Call before process exit.
func Sync() {
	_ = base.Load().Sync()
}

func fields(component string, kv map[string]any) []zap.Field {
	out := make([]zap.Field, 0, len(kv)+1)
	out = append(out, zap.String("component", component))
	for k, v := range kv {
		out = append(out, zap.Any(k, v))
	}
	return out
}

// DebugCF logs a debug message with a component tag and structured fields.
func DebugCF(component, msg string, kv map[string]any) {
	base.Load().Debug(msg, fields(component, kv)...)
}

// InfoC logs an info message with a component tag.
func InfoC(component, msg string) {
	base.Load().Info(msg, zap.String("component", component))
}

// InfoCF logs an info message with a component tag and structured fields.
func InfoCF(component, msg string, kv map[string]any) {
	base.Load().Info(msg, fields(component, kv)...)
}

// WarnCF logs a warning with a component tag and structured fields.
func WarnCF(component, msg string, kv map[string]any) {
	base.Load().Warn(msg, fields(component, kv)...)
}

// ErrorCF logs an error with a component tag and structured fields.
func ErrorCF(component, msg string, kv map[string]any) {
	base.Load().Error(msg, fields(component, kv)...)
}

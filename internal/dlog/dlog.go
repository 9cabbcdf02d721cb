// Package dlog exposes a simple zap logger, with log levels.
package dlog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// LevelInfo sets the log level to info.
	LevelInfo = "info"

	// LevelDebug sets the log level to debug.
	LevelDebug = "debug"

	// LevelNone disables logging entirely.
	LevelNone = "none"
)

// GetLogger returns a zap logger set at the given level.
func GetLogger(level string) (*zap.Logger, error) {
	if level == LevelNone || level == "" {
		return zap.NewNop(), nil
	}
	cfg := zap.NewProductionConfig()
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// MustGetLogger returns a zap logger at the given level, panicking on
// a bad level string.
func MustGetLogger(level string) *zap.Logger {
	l, err := GetLogger(level)
	if err != nil {
		panic(err)
	}
	return l
}

// Package logging builds the zap.Logger every component logs through.
// Structured logging is carried as an ambient concern regardless of
// which protocol features a Non-goal excludes (spec.md Non-goals).
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap.Logger at the given level ("debug", "info", "warn",
// "error"). Output is JSON to stderr, matching zap's production preset
// with a human-friendly level default.
func New(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("logging: unknown level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

// GUID and entity fields are logged constantly across pdp/edp/wlp;
// these helpers keep the key names consistent.

func GUID(key, guid string) zap.Field { return zap.String(key, guid) }

func Domain(id int) zap.Field { return zap.Int("domain_id", id) }

// Package telemetry builds the structured logger shared across the server.
package telemetry

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a production-style zap logger at the given level
// ("debug", "info", "warn", "error"). An empty level means info; an
// unrecognised one is returned as an error.
func NewLogger(level string) (*zap.Logger, error) {
	var zl zapcore.Level
	if level == "" {
		zl = zapcore.InfoLevel
	} else if err := zl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("telemetry: invalid log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("telemetry: build logger: %w", err)
	}
	return logger, nil
}

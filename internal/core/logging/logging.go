// Package logging builds the process logger: zap underneath, log/slog on
// top so that library packages depend only on the standard interface.
package logging

import (
	"log/slog"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

// New returns a logger at level ("debug", "info", "warn", "error") using
// the production JSON encoder for format "json" and the development console
// encoder otherwise. The returned function flushes buffered entries.
func New(level, format string) (*slog.Logger, func() error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	var cfg zap.Config
	if format == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	zl := zap.Must(cfg.Build())
	return FromCore(zl.Core()), zl.Sync
}

// FromCore wraps an existing zap core.
func FromCore(core zapcore.Core) *slog.Logger {
	return slog.New(zapslog.NewHandler(core))
}

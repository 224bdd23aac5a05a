package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"devtracker/internal/config"
)

// New builds a logger from the log section of the settings. Console format writes
// human-readable lines to stderr; json uses the production encoder.
func New(s config.LogSettings) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if s.Level != "" {
		if err := level.Set(s.Level); err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
	}
	var cfg zap.Config
	if s.Format == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.DisableStacktrace = true
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

// Must is New that falls back to a no-op logger, printing the reason once.
func Must(s config.LogSettings) *zap.Logger {
	l, err := New(s)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging disabled: %v\n", err)
		return zap.NewNop()
	}
	return l
}

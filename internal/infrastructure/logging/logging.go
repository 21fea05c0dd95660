// Package logging builds the process-wide zap logger from configuration.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/modula-erp/emag-sync-go/internal/infrastructure/config"
)

// NewLogger constructs a zap logger according to the logging configuration
func NewLogger(cfg *config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.Encoding = cfg.Format
	if cfg.Format == "console" {
		zapCfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	zapCfg.DisableCaller = !cfg.IncludeCaller
	zapCfg.DisableStacktrace = !cfg.IncludeStacktrace

	switch cfg.Output {
	case "stdout", "":
		zapCfg.OutputPaths = []string{"stdout"}
	case "stderr":
		zapCfg.OutputPaths = []string{"stderr"}
	case "file":
		zapCfg.OutputPaths = []string{cfg.FilePath}
	default:
		return nil, fmt.Errorf("invalid log output %q", cfg.Output)
	}
	zapCfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// NewNop returns a logger that discards everything, for tests
func NewNop() *zap.Logger {
	return zap.NewNop()
}

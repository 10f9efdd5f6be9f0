package logger

import (
	"fmt"
	"storefront-checkout/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap logger from LOG_LEVEL and LOG_FORMAT (json or console).
func New(cfg *config.Log) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", cfg.Level, err)
	}

	var zcfg zap.Config
	switch cfg.Format {
	case "console":
		zcfg = zap.NewDevelopmentConfig()
	case "json", "":
		zcfg = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.Format)
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	return zcfg.Build()
}

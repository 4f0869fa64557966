// Package logging builds the shared zap logger from configuration.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/verdantlabs/hydrochat/internal/config"
)

// New creates a zap logger from the logging configuration.
func New(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
	}

	core := zapcore.NewCore(
		newEncoder(cfg.Format),
		zapcore.Lock(os.Stdout),
		level,
	)

	opts := []zap.Option{
		zap.AddStacktrace(zapcore.ErrorLevel),
	}
	if cfg.Caller {
		opts = append(opts, zap.AddCaller())
	}

	logger := zap.New(core, opts...)
	return logger.With(zap.String("service", "hydrochat")), nil
}

// newEncoder creates a JSON or console encoder.
func newEncoder(format string) zapcore.Encoder {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	if format == "console" {
		return zapcore.NewConsoleEncoder(encoderCfg)
	}
	return zapcore.NewJSONEncoder(encoderCfg)
}

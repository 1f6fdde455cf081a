package utils

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger returns the process logger, named "kiku" and carrying fields on every entry.
// Debug uses the development config (console, debug level); otherwise JSON at info
// level. Both use ISO8601 timestamps and keep stack traces for debug only.
func NewLogger(debug bool, fields ...zap.Field) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = !debug
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Named("kiku").With(fields...), nil
}

// Package logging builds the zap logger shared by the catalog services.
package logging

import (
	goerrors "github.com/goliatone/go-errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the log level and output format.
type Config struct {
	Level       string `mapstructure:"level" json:"level"`
	Development bool   `mapstructure:"development" json:"development"`
}

// New returns a JSON production logger, or a console logger in development mode.
func New(cfg Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "log level "+cfg.Level)
		}
	}

	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.EncoderConfig.TimeKey = "timestamp"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.EncoderConfig.StacktraceKey = ""

	logger, err := zc.Build()
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "build logger")
	}
	return logger.Named("catalog"), nil
}

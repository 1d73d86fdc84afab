// Package logger builds the process-wide zap logger.
package logger

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls how the global logger is built.
type Options struct {
	// Development switches to the human readable console encoder.
	Development bool
	// Debug lowers the level to debug. Ignored when Level is set.
	Debug bool
	// Level is an explicit level name such as "warn".
	Level string
}

// New constructs a logger without installing it.
func New(o Options) (*zap.Logger, error) {
	var config zap.Config
	if o.Development {
		config = zap.NewDevelopmentConfig()
	} else {
		config = zap.NewProductionConfig()
	}
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.DisableStacktrace = true

	switch {
	case o.Level != "":
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(o.Level)); err != nil {
			return nil, errors.Wrapf(err, "invalid log level %q", o.Level)
		}
		config.Level = zap.NewAtomicLevelAt(level)
	case o.Debug:
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	logger, err := config.Build()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build logger")
	}
	return logger, nil
}

// Install builds a logger and replaces the zap globals with it. The returned
// function restores the previous globals.
func Install(o Options) (func(), error) {
	logger, err := New(o)
	if err != nil {
		return nil, err
	}
	restore := zap.ReplaceGlobals(logger)

	if o.Development {
		zap.L().Debug("logger configured in development mode",
			zap.String("level", logger.Level().String()))
	}
	return func() {
		logger.Sync() //nolint:errcheck
		restore()
	}, nil
}

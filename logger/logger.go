// Package logger - Structured logging for the cascade.
package logger

import (
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures the logger.
type Options struct {
	// Level is the minimum level: debug, info, warn or error.
	Level string `json:"level" yaml:"level" koanf:"level"`
	// Format selects the encoder: json or console.
	Format string `json:"format" yaml:"format" koanf:"format"`
}

// DefaultOptions returns info-level JSON logging.
func DefaultOptions() Options {
	return Options{Level: "info", Format: "json"}
}

// New returns a zap logger writing debug and info to stdout and warn and
// above to stderr.
//
// Arguments:
//   - opts: The level and encoder format.
//
// Returns:
//   - *zap.Logger: The logger.
//   - error: An error if the level or format is unknown.
func New(opts Options) (*zap.Logger, error) {
	return build(opts, zapcore.Lock(os.Stdout), zapcore.Lock(os.Stderr))
}

// Nop returns a logger that discards everything.
func Nop() *zap.Logger {
	return zap.NewNop()
}

func build(opts Options, stdout, stderr zapcore.WriteSyncer) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(opts.Level)
	if err != nil {
		return nil, errors.Wrap(err, "parse log level")
	}

	var encoder zapcore.Encoder
	switch opts.Format {
	case "", "json":
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	case "console":
		encoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	default:
		return nil, errors.Errorf("unknown log format %q", opts.Format)
	}

	// debug and info level enabler
	debugInfoLevel := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= level && l < zapcore.WarnLevel
	})
	// warn, error and fatal level enabler
	warnErrorFatalLevel := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= level && l >= zapcore.WarnLevel
	})

	core := zapcore.NewTee(
		zapcore.NewCore(encoder, stdout, debugInfoLevel),
		zapcore.NewCore(encoder.Clone(), stderr, warnErrorFatalLevel),
	)
	return zap.New(core), nil
}

// Package logging builds zap loggers from configuration.
package logging

import (
	"strings"

	"github.com/joomcode/errorx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Environments.
const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

// ErrLogging - logger could not be built.
var ErrLogging = errorx.NewNamespace("logging").NewType("config")

// Config describes logger.
type Config struct {
	// Env is production (json) or development (console). Empty means production.
	Env string `koanf:"env" yaml:"env"`
	// Level is debug, info, warn or error. Empty means info.
	Level string `koanf:"level" yaml:"level"`
}

// Validate checks logger config.
func (c Config) Validate() error {
	switch strings.ToLower(c.Env) {
	case "", EnvProduction, EnvDevelopment:
	default:
		return ErrLogging.New("unknown env %q", c.Env)
	}
	if _, err := parseLevel(c.Level); err != nil {
		return err
	}
	return nil
}

// New builds logger.
func New(c Config) (*zap.Logger, error) {
	level, err := parseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	var zc zap.Config
	switch strings.ToLower(c.Env) {
	case "", EnvProduction:
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	case EnvDevelopment:
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, ErrLogging.New("unknown env %q", c.Env)
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	l, err := zc.Build()
	if err != nil {
		return nil, ErrLogging.Wrap(err, "build logger")
	}
	return l, nil
}

func parseLevel(s string) (zapcore.Level, error) {
	if s == "" {
		return zapcore.InfoLevel, nil
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return level, ErrLogging.Wrap(err, "bad level %q", s)
	}
	return level, nil
}

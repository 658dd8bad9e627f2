package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/joomcode/errorx"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix is a prefix of environment variables.
const DefaultEnvPrefix = "REDISBULK_"

var (
	// Errors is a namespace for configuration errors.
	Errors = errorx.NewNamespace("config")

	// ErrLoad - source could not be read or parsed.
	ErrLoad = Errors.NewType("load")
	// ErrInvalid - loaded values are inconsistent.
	ErrInvalid = Errors.NewType("invalid")
)

// Loader merges configuration sources.
type Loader struct {
	k         *koanf.Koanf
	envPrefix string
	filePath  string
	dotEnv    []string
}

// Option configures Loader.
type Option func(*Loader)

// WithEnvPrefix sets environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

// WithConfigFile sets YAML file path.
func WithConfigFile(path string) Option {
	return func(l *Loader) {
		l.filePath = path
	}
}

// WithDotEnv loads listed .env files into process environment before reading it.
// Missing files are ignored. Already set variables are not overwritten.
func WithDotEnv(paths ...string) Option {
	return func(l *Loader) {
		l.dotEnv = paths
	}
}

// NewLoader creates loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		k:         koanf.New("."),
		envPrefix: DefaultEnvPrefix,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load applies defaults, file and environment and returns validated config.
func (l *Loader) Load() (*Config, error) {
	if err := l.LoadMap(Defaults()); err != nil {
		return nil, err
	}
	if err := l.LoadFile(l.filePath); err != nil {
		return nil, err
	}
	if err := l.LoadDotEnv(l.dotEnv...); err != nil {
		return nil, err
	}
	if err := l.LoadEnv(); err != nil {
		return nil, err
	}
	var cfg Config
	if err := l.k.Unmarshal("", &cfg); err != nil {
		return nil, ErrLoad.Wrap(err, "unmarshal")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFile merges YAML file.
func (l *Loader) LoadFile(path string) error {
	if path == "" {
		return nil
	}
	if err := l.k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return ErrLoad.Wrap(err, "file %s", path)
	}
	return nil
}

// LoadDotEnv loads .env files into process environment.
func (l *Loader) LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return ErrLoad.Wrap(err, "dotenv %s", p)
		}
	}
	return nil
}

// LoadEnv merges environment variables:
// REDISBULK_BULK__MAX_WAIT becomes bulk.max_wait.
func (l *Loader) LoadEnv() error {
	transform := func(s string) string {
		s = strings.TrimPrefix(s, l.envPrefix)
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, "__", ".")
	}
	if err := l.k.Load(env.Provider(l.envPrefix, ".", transform), nil); err != nil {
		return ErrLoad.Wrap(err, "env")
	}
	return nil
}

// LoadMap merges flat map with dotted keys.
func (l *Loader) LoadMap(data map[string]any) error {
	if err := l.k.Load(mapProvider(data), nil); err != nil {
		return ErrLoad.Wrap(err, "map")
	}
	return nil
}

// String returns value by dotted key.
func (l *Loader) String(key string) string {
	return l.k.String(key)
}

// Package config loads redisbulk configuration.
//
// Sources are applied in order, later ones override earlier:
// defaults, YAML file, environment. Environment variables use the
// REDISBULK_ prefix and double underscore as nesting separator:
//
//	REDISBULK_SERVER__ADDR=:9090
//	REDISBULK_BULK__MAX_PARALLEL_NODES=8
package config

import (
	"time"

	"github.com/joomcode/redisbulk/bulk"
	"github.com/joomcode/redisbulk/databases"
	"github.com/joomcode/redisbulk/logging"
)

// Config is a root of configuration.
type Config struct {
	Log       logging.Config     `koanf:"log" yaml:"log"`
	Server    Server             `koanf:"server" yaml:"server"`
	Bulk      Bulk               `koanf:"bulk" yaml:"bulk"`
	Databases []databases.Config `koanf:"databases" yaml:"databases"`
}

// Server is HTTP surface section.
type Server struct {
	Addr         string        `koanf:"addr" yaml:"addr"`
	ReadTimeout  time.Duration `koanf:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout" yaml:"write_timeout"`
	// Retention is how long last snapshot of finished action is served.
	Retention time.Duration `koanf:"retention" yaml:"retention"`
	// CORSOrigins are origins allowed to call API from browser.
	CORSOrigins []string `koanf:"cors_origins" yaml:"cors_origins"`
}

// Bulk is action engine section.
type Bulk struct {
	MinWait          time.Duration `koanf:"min_wait" yaml:"min_wait"`
	MaxWait          time.Duration `koanf:"max_wait" yaml:"max_wait"`
	MaxErrorKinds    int           `koanf:"max_error_kinds" yaml:"max_error_kinds"`
	BatchesPerSecond float64       `koanf:"batches_per_second" yaml:"batches_per_second"`
	MaxParallelNodes int           `koanf:"max_parallel_nodes" yaml:"max_parallel_nodes"`
}

// Defaults returns values used when nothing else is configured.
func Defaults() map[string]any {
	return map[string]any{
		"log.env":                 logging.EnvProduction,
		"log.level":               "info",
		"server.addr":             ":8080",
		"server.read_timeout":     "10s",
		"server.write_timeout":    "10s",
		"server.retention":        "10m",
		"bulk.min_wait":           bulk.DefaultMinWait.String(),
		"bulk.max_wait":           bulk.DefaultMaxWait.String(),
		"bulk.max_error_kinds":    bulk.DefaultMaxErrorKinds,
		"bulk.max_parallel_nodes": 0,
	}
}

// RegistryOpts converts section to bulk.Opts.
func (b Bulk) RegistryOpts() bulk.Opts {
	return bulk.Opts{
		MinWait:          b.MinWait,
		MaxWait:          b.MaxWait,
		MaxErrorKinds:    b.MaxErrorKinds,
		BatchesPerSecond: b.BatchesPerSecond,
		MaxParallelNodes: b.MaxParallelNodes,
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Log.Validate(); err != nil {
		return ErrInvalid.Wrap(err, "log")
	}
	if c.Server.Addr == "" {
		return ErrInvalid.New("server.addr is empty")
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 || c.Server.Retention < 0 {
		return ErrInvalid.New("server timeouts must not be negative")
	}
	if c.Bulk.MinWait < 0 || c.Bulk.MaxWait < c.Bulk.MinWait {
		return ErrInvalid.New("bulk.min_wait %s and bulk.max_wait %s are inconsistent", c.Bulk.MinWait, c.Bulk.MaxWait)
	}
	if c.Bulk.MaxErrorKinds < 0 || c.Bulk.MaxParallelNodes < 0 || c.Bulk.BatchesPerSecond < 0 {
		return ErrInvalid.New("bulk limits must not be negative")
	}
	seen := make(map[string]bool, len(c.Databases))
	for _, db := range c.Databases {
		if err := db.Validate(); err != nil {
			return ErrInvalid.Wrap(err, "databases")
		}
		if seen[db.ID] {
			return ErrInvalid.New("duplicate database id %s", db.ID)
		}
		seen[db.ID] = true
	}
	return nil
}

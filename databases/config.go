package databases

import (
	"time"

	"github.com/joomcode/redisbulk/keyspace"
)

// Config is a connection record of single redis deployment.
type Config struct {
	ID string `koanf:"id" yaml:"id"`
	// Kind is standalone, sentinel or cluster.
	Kind string `koanf:"kind" yaml:"kind"`
	// Addrs are server addresses: single address for standalone,
	// sentinels for sentinel and seed nodes for cluster.
	Addrs    []string `koanf:"addrs" yaml:"addrs"`
	DB       int      `koanf:"db" yaml:"db"`
	Username string   `koanf:"username" yaml:"username"`
	Password string   `koanf:"password" yaml:"password"`
	// MasterName is a name of master set monitored by sentinels.
	MasterName    string        `koanf:"master_name" yaml:"master_name"`
	IOTimeout     time.Duration `koanf:"io_timeout" yaml:"io_timeout"`
	TLS           bool          `koanf:"tls" yaml:"tls"`
	TLSSkipVerify bool          `koanf:"tls_skip_verify" yaml:"tls_skip_verify"`
}

// Validate checks record.
func (c Config) Validate() error {
	if c.ID == "" {
		return ErrConfig.New("database id is empty")
	}
	kind, err := keyspace.ParseTopologyKind(c.Kind)
	if err != nil {
		return ErrConfig.Wrap(err, "database %s", c.ID)
	}
	if len(c.Addrs) == 0 {
		return ErrConfig.New("database %s: no addresses", c.ID)
	}
	if c.DB < 0 || c.DB > 15 {
		return ErrConfig.New("database %s: db %d is out of range", c.ID, c.DB)
	}
	switch kind {
	case keyspace.Standalone:
		if len(c.Addrs) != 1 {
			return ErrConfig.New("database %s: standalone needs exactly one address", c.ID)
		}
	case keyspace.Sentinel:
		if c.MasterName == "" {
			return ErrConfig.New("database %s: master_name is required for sentinel", c.ID)
		}
	case keyspace.Cluster:
		if c.DB != 0 {
			return ErrConfig.New("database %s: cluster supports only db 0", c.ID)
		}
	}
	return nil
}

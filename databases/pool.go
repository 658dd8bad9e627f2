// Package databases keeps connections to configured redis deployments.
package databases

import (
	"context"
	"crypto/tls"
	"net"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/joomcode/redisbulk/keyspace"
	"github.com/joomcode/redisbulk/rediscluster"
	"github.com/joomcode/redisbulk/redisconn"
	"github.com/joomcode/redisbulk/redissentinel"
)

// Pool lazily connects to configured databases and caches clients.
// It implements bulk.DatabaseResolver.
type Pool struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.Logger

	mu      sync.Mutex
	closed  bool
	configs map[string]Config
	clients map[string]*client
}

type client struct {
	keyspace.Client
	kind   keyspace.TopologyKind
	conn   *redisconn.Connection
	master string
	close  func()
}

// NewPool validates records. Connections are established on first Resolve.
func NewPool(configs []Config, log *zap.Logger) (*Pool, error) {
	if log == nil {
		log = zap.L()
	}
	p := &Pool{
		log:     log,
		configs: make(map[string]Config, len(configs)),
		clients: make(map[string]*client),
	}
	for _, c := range configs {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		if _, ok := p.configs[c.ID]; ok {
			return nil, ErrConfig.New("duplicate database id %s", c.ID)
		}
		p.configs[c.ID] = c
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())
	return p, nil
}

// IDs returns sorted ids of configured databases.
func (p *Pool) IDs() []string {
	res := make([]string, 0, len(p.configs))
	for id := range p.configs {
		res = append(res, id)
	}
	sort.Strings(res)
	return res
}

// Config returns record by id.
func (p *Pool) Config(id string) (Config, bool) {
	c, ok := p.configs[id]
	return c, ok
}

// Resolve returns client for database, connecting if necessary.
// Sentinel-managed database is re-resolved when connection to master is lost.
func (p *Pool) Resolve(ctx context.Context, id string) (keyspace.Client, error) {
	cfg, ok := p.configs[id]
	if !ok {
		return nil, ErrUnknownDatabase.New("unknown database").WithProperty(EKDatabase, id)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPoolClosed.New("pool is closed")
	}
	if c, ok := p.clients[id]; ok {
		if c.kind != keyspace.Sentinel || c.conn.ConnectedNow() {
			return c, nil
		}
		master, err := p.resolveMaster(ctx, cfg)
		if err != nil || master == c.master {
			// keep reconnecting to the same master
			return c, nil
		}
		p.log.Info("master changed",
			zap.String("database", id), zap.String("old", c.master), zap.String("new", master))
		c.close()
		delete(p.clients, id)
	}

	c, err := p.connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	p.clients[id] = c
	return c, nil
}

func (p *Pool) connect(ctx context.Context, cfg Config) (*client, error) {
	kind, _ := keyspace.ParseTopologyKind(cfg.Kind)
	opts := redisconn.Opts{
		DB:        cfg.DB,
		Username:  cfg.Username,
		Password:  cfg.Password,
		IOTimeout: cfg.IOTimeout,
		Logger:    redisconn.ZapLogger{L: p.log.With(zap.String("database", cfg.ID))},
	}
	log := p.log.With(zap.String("database", cfg.ID), zap.String("kind", kind.String()))

	switch kind {
	case keyspace.Cluster:
		// ServerName is filled per node by rediscluster
		opts.TLSConfig = tlsConfig(cfg, "")
		cluster, err := rediscluster.NewCluster(p.ctx, cfg.Addrs, rediscluster.Opts{
			HostOpts: opts,
			Name:     cfg.ID,
			Logger:   rediscluster.ZapLogger{L: p.log},
		})
		if err != nil {
			return nil, decorate(err, cfg.ID)
		}
		log.Info("connected to cluster", zap.Int("masters", len(cluster.Masters())))
		return &client{Client: keyspace.NewClusterClient(cluster), kind: kind, close: cluster.Close}, nil

	case keyspace.Sentinel:
		master, err := p.resolveMaster(ctx, cfg)
		if err != nil {
			return nil, decorate(err, cfg.ID)
		}
		opts.TLSConfig = tlsConfig(cfg, master)
		conn, err := redisconn.Connect(p.ctx, master, opts)
		if err != nil {
			return nil, decorate(err, cfg.ID)
		}
		log.Info("connected to master", zap.String("master", master))
		return &client{Client: keyspace.NewStandaloneClient(conn, kind), kind: kind, conn: conn, master: master, close: conn.Close}, nil
	}

	opts.TLSConfig = tlsConfig(cfg, cfg.Addrs[0])
	conn, err := redisconn.Connect(p.ctx, cfg.Addrs[0], opts)
	if err != nil {
		return nil, decorate(err, cfg.ID)
	}
	log.Info("connected", zap.String("addr", cfg.Addrs[0]))
	return &client{Client: keyspace.NewStandaloneClient(conn, kind), kind: kind, conn: conn, close: conn.Close}, nil
}

func (p *Pool) resolveMaster(ctx context.Context, cfg Config) (string, error) {
	timeout := cfg.IOTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return redissentinel.ResolveMaster(ctx, cfg.Addrs, cfg.MasterName, redissentinel.Opts{
		Username: cfg.Username,
		Password: cfg.Password,
		Timeout:  timeout,
		Logger:   p.log.With(zap.String("database", cfg.ID)),
	})
}

// Close closes all connections.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for id, c := range p.clients {
		c.close()
		delete(p.clients, id)
	}
	p.cancel()
}

func tlsConfig(cfg Config, addr string) *tls.Config {
	if !cfg.TLS {
		return nil
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	return &tls.Config{
		ServerName:         host,
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.TLSSkipVerify, //nolint:gosec
	}
}

package rediscluster

import (
	"context"
	"net"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joomcode/errorx"
	"golang.org/x/sync/errgroup"

	"github.com/joomcode/redisbulk/redis"
	"github.com/joomcode/redisbulk/rediscluster/redisclusterutil"
	"github.com/joomcode/redisbulk/redisconn"
)

const (
	defaultCheckInterval = 5 * time.Second
)

// Opts is options for Cluster
type Opts struct {
	// HostOpts - per host options.
	// Note that HostOpts.Logger will be overwritten to report through Cluster's Logger,
	// and HostOpts.AsyncDial is always set.
	// HostOpts.TLSConfig is cloned for every node with ServerName set to node's host.
	HostOpts redisconn.Opts
	// Name of cluster, used in logs.
	Name string
	// CheckInterval - how often configuration is refreshed.
	// Values are clamped into [1s, 10m]. Negative disables periodic refresh.
	CheckInterval time.Duration
	// Logger
	Logger Logger
}

// Node is a cluster member known at last configuration refresh.
type Node struct {
	ID     string
	Addr   string
	Master bool
	Conn   *redisconn.Connection
}

// Cluster keeps connections to all usable members of redis cluster.
type Cluster struct {
	ctx    context.Context
	cancel context.CancelFunc

	opts  Opts
	seeds []string

	// m serializes reloads and guards conns.
	m     sync.Mutex
	conns map[string]*redisconn.Connection
	hash  uint64

	nodes atomic.Value // []Node
}

// NewCluster connects to seed addresses and loads initial configuration.
// It fails if no seed answers CLUSTER NODES (or CLUSTER SLOTS).
func NewCluster(ctx context.Context, seeds []string, opts Opts) (*Cluster, error) {
	if ctx == nil {
		return nil, redis.ErrContextIsNil.NewWithNoMessage()
	}
	if len(seeds) == 0 {
		return nil, redis.ErrNoAddressProvided.New("no initial addresses given")
	}
	cluster := &Cluster{
		opts:  opts,
		conns: make(map[string]*redisconn.Connection),
	}
	cluster.ctx, cluster.cancel = context.WithCancel(ctx)

	if cluster.opts.Logger == nil {
		cluster.opts.Logger = ZapLogger{}
	}
	cluster.opts.HostOpts.Logger = connLogger{cluster}
	cluster.opts.HostOpts.AsyncDial = true

	if cluster.opts.CheckInterval == 0 {
		cluster.opts.CheckInterval = defaultCheckInterval
	} else if cluster.opts.CheckInterval > 0 && cluster.opts.CheckInterval < time.Second {
		cluster.opts.CheckInterval = time.Second
	} else if cluster.opts.CheckInterval > 10*time.Minute {
		cluster.opts.CheckInterval = 10 * time.Minute
	}

	seen := make(map[string]struct{})
	for _, addr := range seeds {
		if _, ok := seen[addr]; !ok {
			seen[addr] = struct{}{}
			cluster.seeds = append(cluster.seeds, addr)
		}
	}
	cluster.nodes.Store([]Node(nil))

	if err := cluster.Reload(ctx); err != nil {
		cluster.Close()
		return nil, err
	}

	if cluster.opts.CheckInterval > 0 {
		go cluster.checker()
	}

	return cluster, nil
}

// Name returns configured name.
func (c *Cluster) Name() string {
	return c.opts.Name
}

// Ctx returns context of cluster.
func (c *Cluster) Ctx() context.Context {
	return c.ctx
}

// Close closes cluster and all its connections.
func (c *Cluster) Close() {
	c.cancel()
}

// Nodes returns snapshot of usable nodes: masters first, then replicas, each group sorted by address.
func (c *Cluster) Nodes() []Node {
	nodes := c.nodes.Load().([]Node)
	res := make([]Node, len(nodes))
	copy(res, nodes)
	return res
}

// Masters returns snapshot of usable master nodes.
func (c *Cluster) Masters() []Node {
	var res []Node
	for _, n := range c.nodes.Load().([]Node) {
		if n.Master {
			res = append(res, n)
		}
	}
	return res
}

func (c *Cluster) checker() {
	t := time.NewTicker(c.opts.CheckInterval)
	defer t.Stop()
	for {
		select {
		case <-c.ctx.Done():
			c.report(LogContextClosed{Error: c.ctx.Err()})
			return
		case <-t.C:
		}
		ctx, cancel := context.WithTimeout(c.ctx, c.opts.CheckInterval)
		if err := c.Reload(ctx); err != nil && c.ctx.Err() == nil {
			c.report(LogClusterReloadFailed{Error: err})
		}
		cancel()
	}
}

// Reload fetches configuration from known hosts and applies it.
// Hosts are asked concurrently, the first successful answer wins.
func (c *Cluster) Reload(ctx context.Context) error {
	c.m.Lock()
	defer c.m.Unlock()

	if err := c.ctx.Err(); err != nil {
		return redis.ErrContextClosed.WrapWithNoMessage(err)
	}

	addrs := c.candidatesLocked()
	infos := make([]redisclusterutil.InstanceInfos, len(addrs))
	errs := make([]error, len(addrs))

	qctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var g errgroup.Group
	for i, addr := range addrs {
		conn, err := c.connLocked(addr)
		if err != nil {
			errs[i] = err
			continue
		}
		i, addr := i, addr
		g.Go(func() error {
			infos[i], errs[i] = fetchInstances(qctx, conn, addr)
			if errs[i] == nil {
				cancel()
			} else if qctx.Err() == nil {
				c.report(LogClusterNodesError{Addr: addr, Error: errs[i]})
			}
			return nil
		})
	}
	_ = g.Wait()

	var fresh redisclusterutil.InstanceInfos
	found := false
	for i := range infos {
		if errs[i] == nil && infos[i] != nil {
			fresh, found = infos[i], true
			break
		}
	}
	if !found {
		var causes []error
		for _, err := range errs {
			if err != nil {
				causes = append(causes, err)
			}
		}
		if len(causes) == 0 {
			return ErrClusterNodes.New("could not retrieve cluster configuration").
				WithProperty(EKCluster, c.opts.Name)
		}
		return ErrClusterNodes.Wrap(errorx.DecorateMany("all hosts failed", causes...),
			"could not retrieve cluster configuration").WithProperty(EKCluster, c.opts.Name)
	}

	masters := fresh.Masters()
	if len(masters) == 0 {
		return ErrClusterConfigEmpty.New("no usable masters in cluster configuration").
			WithProperty(EKCluster, c.opts.Name)
	}

	hash := fresh.HashSum()
	if hash == c.hash && len(c.nodes.Load().([]Node)) > 0 {
		return nil
	}
	c.applyLocked(fresh)
	c.hash = hash
	return nil
}

func (c *Cluster) candidatesLocked() []string {
	seen := make(map[string]struct{})
	var res []string
	for _, n := range c.nodes.Load().([]Node) {
		if _, ok := seen[n.Addr]; !ok {
			seen[n.Addr] = struct{}{}
			res = append(res, n.Addr)
		}
	}
	for _, addr := range c.seeds {
		if _, ok := seen[addr]; !ok {
			seen[addr] = struct{}{}
			res = append(res, addr)
		}
	}
	return res
}

func (c *Cluster) connLocked(addr string) (*redisconn.Connection, error) {
	if conn, ok := c.conns[addr]; ok {
		return conn, nil
	}
	conn, err := redisconn.Connect(c.ctx, addr, nodeOpts(c.opts.HostOpts, addr))
	if err != nil {
		return nil, err
	}
	c.conns[addr] = conn
	return conn, nil
}

func nodeOpts(opts redisconn.Opts, addr string) redisconn.Opts {
	if opts.TLSConfig == nil {
		return opts
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	opts.TLSConfig = opts.TLSConfig.Clone()
	opts.TLSConfig.ServerName = host
	return opts
}

func (c *Cluster) applyLocked(infos redisclusterutil.InstanceInfos) {
	var nodes []Node
	live := make(map[string]struct{})
	masters, replicas := 0, 0
	for _, ii := range infos {
		if !ii.Usable() {
			continue
		}
		conn, err := c.connLocked(ii.Addr)
		if err != nil {
			continue
		}
		live[ii.Addr] = struct{}{}
		nodes = append(nodes, Node{
			ID:     ii.Uuid,
			Addr:   ii.Addr,
			Master: ii.IsMaster(),
			Conn:   conn,
		})
		if ii.IsMaster() {
			masters++
		} else {
			replicas++
		}
	}
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Master != nodes[j].Master {
			return nodes[i].Master
		}
		return nodes[i].Addr < nodes[j].Addr
	})

	seeds := make(map[string]struct{}, len(c.seeds))
	for _, addr := range c.seeds {
		seeds[addr] = struct{}{}
	}
	for addr, conn := range c.conns {
		_, isLive := live[addr]
		_, isSeed := seeds[addr]
		if !isLive && !isSeed {
			conn.Close()
			delete(c.conns, addr)
		}
	}

	c.nodes.Store(nodes)
	c.report(LogClusterReloaded{Masters: masters, Replicas: replicas})
}

// fetchInstances asks host for CLUSTER NODES, and falls back to CLUSTER SLOTS
// if server refuses the former.
func fetchInstances(ctx context.Context, conn *redisconn.Connection, addr string) (redisclusterutil.InstanceInfos, error) {
	s := redis.SyncCtx{S: conn}
	res := s.Do(ctx, "CLUSTER NODES")
	if err := redis.AsError(res); err != nil {
		if !errorx.IsOfType(err, redis.ErrResult) {
			return nil, err
		}
		ranges, err := redisclusterutil.ParseSlotsInfo(s.Do(ctx, "CLUSTER SLOTS"))
		if err != nil {
			return nil, err
		}
		return redisclusterutil.InstancesFromSlots(ranges), nil
	}
	infos, err := redisclusterutil.ParseClusterNodes(res)
	if err != nil {
		return nil, err
	}
	// single-node cluster may not know its own ip yet
	if me := infos.MySelf(); me != nil && me.IP == "" {
		if ix := strings.LastIndexByte(addr, ':'); ix != -1 {
			me.IP = addr[:ix]
			me.Addr = me.IP + me.Addr[strings.LastIndexByte(me.Addr, ':'):]
		}
	}
	return infos, nil
}

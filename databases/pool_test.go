package databases

import (
	"context"
	"testing"
	"time"

	"github.com/joomcode/errorx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/joomcode/redisbulk/keyspace"
	"github.com/joomcode/redisbulk/testbed"
)

func startServer(t *testing.T) *testbed.Server {
	s := &testbed.Server{}
	require.NoError(t, s.Start())
	t.Cleanup(s.Stop)
	return s
}

func nodeAddrs(t *testing.T, c keyspace.Client) []string {
	nodes, err := c.Nodes(keyspace.RoleMaster)
	require.NoError(t, err)
	addrs := make([]string, len(nodes))
	for i, n := range nodes {
		addrs[i] = n.Addr()
	}
	return addrs
}

func TestPool_Standalone(t *testing.T) {
	s := startServer(t)
	pool, err := NewPool([]Config{{ID: "main", Addrs: []string{s.Addr()}, DB: 3}}, zap.NewNop())
	require.NoError(t, err)
	defer pool.Close()

	ctx := context.Background()
	c, err := pool.Resolve(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, keyspace.Standalone, c.Kind())
	assert.Equal(t, []string{s.Addr()}, nodeAddrs(t, c))

	nodes, err := c.Nodes(keyspace.RoleMaster)
	require.NoError(t, err)
	assert.Equal(t, 3, nodes[0].DB())

	again, err := pool.Resolve(ctx, "main")
	require.NoError(t, err)
	assert.True(t, c == again, "client must be cached")
}

func TestPool_Unknown(t *testing.T) {
	pool, err := NewPool(nil, zap.NewNop())
	require.NoError(t, err)
	defer pool.Close()

	_, err = pool.Resolve(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errorx.IsNotFound(err))
	id, ok := errorx.ExtractProperty(err, EKDatabase)
	assert.True(t, ok)
	assert.Equal(t, "nope", id)
}

func TestPool_Invalid(t *testing.T) {
	_, err := NewPool([]Config{{ID: "a", Addrs: []string{"h:1"}}, {ID: "a", Addrs: []string{"h:2"}}}, zap.NewNop())
	assert.True(t, errorx.IsOfType(err, ErrConfig))

	_, err = NewPool([]Config{{ID: "a"}}, zap.NewNop())
	assert.True(t, errorx.IsOfType(err, ErrConfig))
}

func TestPool_IDs(t *testing.T) {
	pool, err := NewPool([]Config{
		{ID: "b", Addrs: []string{"h:1"}},
		{ID: "a", Addrs: []string{"h:2"}},
	}, zap.NewNop())
	require.NoError(t, err)
	defer pool.Close()
	assert.Equal(t, []string{"a", "b"}, pool.IDs())
	cfg, ok := pool.Config("a")
	assert.True(t, ok)
	assert.Equal(t, []string{"h:2"}, cfg.Addrs)
}

func TestPool_Closed(t *testing.T) {
	s := startServer(t)
	pool, err := NewPool([]Config{{ID: "main", Addrs: []string{s.Addr()}}}, zap.NewNop())
	require.NoError(t, err)
	pool.Close()

	_, err = pool.Resolve(context.Background(), "main")
	assert.True(t, errorx.IsOfType(err, ErrPoolClosed))
}

func TestPool_Cluster(t *testing.T) {
	cl, err := testbed.NewCluster(2, 1)
	require.NoError(t, err)
	defer cl.Stop()

	pool, err := NewPool([]Config{{ID: "cl", Kind: "cluster", Addrs: []string{cl.Nodes[0].Addr()}}}, zap.NewNop())
	require.NoError(t, err)
	defer pool.Close()

	c, err := pool.Resolve(context.Background(), "cl")
	require.NoError(t, err)
	assert.Equal(t, keyspace.Cluster, c.Kind())
	all, err := c.Nodes(keyspace.RoleAny)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestPool_SentinelFailover(t *testing.T) {
	m1 := startServer(t)
	m2 := startServer(t)
	sentinel := startServer(t)
	sentinel.SetSentinelMaster("mymaster", m1.Addr())

	pool, err := NewPool([]Config{{
		ID:         "sn",
		Kind:       "sentinel",
		Addrs:      []string{sentinel.Addr()},
		MasterName: "mymaster",
		IOTimeout:  time.Second,
	}}, zap.NewNop())
	require.NoError(t, err)
	defer pool.Close()

	ctx := context.Background()
	c, err := pool.Resolve(ctx, "sn")
	require.NoError(t, err)
	assert.Equal(t, keyspace.Sentinel, c.Kind())
	assert.Equal(t, []string{m1.Addr()}, nodeAddrs(t, c))

	sentinel.SetSentinelMaster("mymaster", m2.Addr())
	m1.Stop()

	assert.Eventually(t, func() bool {
		c, err := pool.Resolve(ctx, "sn")
		if err != nil {
			return false
		}
		addrs := nodeAddrs(t, c)
		return len(addrs) == 1 && addrs[0] == m2.Addr()
	}, 5*time.Second, 50*time.Millisecond)
}

func TestPool_SentinelUnknownMaster(t *testing.T) {
	sentinel := startServer(t)
	pool, err := NewPool([]Config{{
		ID:         "sn",
		Kind:       "sentinel",
		Addrs:      []string{sentinel.Addr()},
		MasterName: "mymaster",
	}}, zap.NewNop())
	require.NoError(t, err)
	defer pool.Close()

	_, err = pool.Resolve(context.Background(), "sn")
	require.Error(t, err)
	assert.True(t, errorx.IsNotFound(err))
	id, ok := errorx.ExtractProperty(err, EKDatabase)
	assert.True(t, ok)
	assert.Equal(t, "sn", id)
}

func TestTLSConfig(t *testing.T) {
	assert.Nil(t, tlsConfig(Config{}, "redis.internal:6380"))

	cfg := Config{TLS: true, TLSSkipVerify: true}
	tc := tlsConfig(cfg, "redis.internal:6380")
	require.NotNil(t, tc)
	assert.Equal(t, "redis.internal", tc.ServerName)
	assert.True(t, tc.InsecureSkipVerify)

	// cluster nodes get their own ServerName later
	assert.Empty(t, tlsConfig(cfg, "").ServerName)
}

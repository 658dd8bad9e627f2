package redisdumb_test

import (
	"net"
	"testing"

	"github.com/joomcode/errorx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joomcode/redisbulk/redis"
	"github.com/joomcode/redisbulk/redisdumb"
	"github.com/joomcode/redisbulk/testbed"
)

func TestConn_Do(t *testing.T) {
	s := &testbed.Server{}
	require.NoError(t, s.Start())
	defer s.Stop()

	c := redisdumb.Conn{Addr: s.Addr()}
	defer c.Close()
	assert.Equal(t, "OK", c.Do("SET", "a", "1"))
	assert.Equal(t, []byte("1"), c.Do("GET", "a"))

	// result errors keep connection
	res := c.Do("UNKNOWNCMD")
	assert.True(t, errorx.IsOfType(redis.AsError(res), redis.ErrResult))
	assert.NotNil(t, c.C)
}

func TestConn_Redial(t *testing.T) {
	s := &testbed.Server{}
	require.NoError(t, s.Start())
	defer s.Stop()

	c := redisdumb.Conn{Addr: s.Addr()}
	defer c.Close()
	assert.Equal(t, "PONG", c.Do("PING"))

	s.Stop()
	require.NoError(t, s.Start())
	assert.Equal(t, "PONG", c.Do("PING"))
}

func TestConn_Auth(t *testing.T) {
	s := &testbed.Server{Password: "secret"}
	require.NoError(t, s.Start())
	defer s.Stop()

	c := redisdumb.Conn{Addr: s.Addr(), Password: "secret"}
	defer c.Close()
	assert.Equal(t, "PONG", c.Do("PING"))

	bad := redisdumb.Conn{Addr: s.Addr(), Password: "wrong"}
	res := bad.Do("PING")
	assert.True(t, errorx.IsOfType(redis.AsError(res), redis.ErrAuth))
}

func TestDo_DialError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	res := redisdumb.Do(addr, "PING")
	err = redis.AsError(res)
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, redis.ErrDial))
	assert.True(t, errorx.HasTrait(err, redis.ErrTraitConnectivity))
}

package redissentinel

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/joomcode/errorx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/joomcode/redisbulk/testbed"
)

func deadAddr(t *testing.T) string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func opts() Opts {
	return Opts{Timeout: time.Second, Logger: zap.NewNop()}
}

func TestResolveMaster(t *testing.T) {
	s := &testbed.Server{}
	require.NoError(t, s.Start())
	defer s.Stop()
	s.SetSentinelMaster("mymaster", "10.0.0.1:6379")

	addr, err := ResolveMaster(context.Background(), []string{deadAddr(t), s.Addr()}, "mymaster", opts())
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:6379", addr)
}

func TestResolveMaster_Unknown(t *testing.T) {
	s := &testbed.Server{}
	require.NoError(t, s.Start())
	defer s.Stop()

	_, err := ResolveMaster(context.Background(), []string{s.Addr()}, "nope", opts())
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, ErrNoMaster))
	assert.True(t, errorx.IsNotFound(err))
}

func TestResolveMaster_Unreachable(t *testing.T) {
	_, err := ResolveMaster(context.Background(), []string{deadAddr(t), deadAddr(t)}, "mymaster", opts())
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, ErrSentinelsUnreachable))
}

func TestResolveMaster_Auth(t *testing.T) {
	s := &testbed.Server{Password: "pw"}
	require.NoError(t, s.Start())
	defer s.Stop()
	s.SetSentinelMaster("mymaster", "10.0.0.2:6380")

	o := opts()
	o.Password = "pw"
	addr, err := ResolveMaster(context.Background(), []string{s.Addr()}, "mymaster", o)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2:6380", addr)
}

func TestParseMasterAddr(t *testing.T) {
	addr, err := parseMasterAddr([]interface{}{[]byte("::1"), []byte("6379")})
	require.NoError(t, err)
	assert.Equal(t, "[::1]:6379", addr)

	_, err = parseMasterAddr([]interface{}{[]byte("host")})
	assert.Error(t, err)
	_, err = parseMasterAddr([]interface{}{[]byte("host"), []byte("port")})
	assert.Error(t, err)
}

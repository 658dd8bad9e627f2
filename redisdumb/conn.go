// Package redisdumb is a blocking single-connection redis client without pipelining.
//
// It is meant for rare administrative requests (sentinel lookups, test setup)
// where establishing full redisconn.Connection is excessive.
package redisdumb

import (
	"bufio"
	"net"
	"time"

	"github.com/joomcode/redisbulk/redis"
)

// DefaultTimeout is used for dial and io when Conn.Timeout is zero.
var DefaultTimeout = 5 * time.Second

// Conn is a lazily dialed connection. It is not safe for concurrent use.
type Conn struct {
	Addr     string
	Username string
	Password string
	C        net.Conn
	R        *bufio.Reader
	Timeout  time.Duration
}

// Do sends command and waits for response. Broken connection is redialed once.
func (c *Conn) Do(cmd string, args ...interface{}) interface{} {
	timeout := c.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	req, err := redis.AppendRequest(nil, redis.Req(cmd, args...))
	if err != nil {
		return err
	}
	try := 1
	if c.C != nil {
		try = 2
	}
	var res interface{}
	for i := 0; i < try; i++ {
		if c.C == nil {
			if res = c.dial(timeout); res != nil {
				return res
			}
		}
		res = roundTrip(c.C, c.R, req, timeout)
		if rerr := redis.AsErrorx(res); rerr == nil || !redis.HardError(rerr) {
			return res
		}
		c.Close()
	}
	return res
}

func (c *Conn) dial(timeout time.Duration) interface{} {
	nc, err := net.DialTimeout("tcp", c.Addr, timeout)
	if err != nil {
		return redis.ErrDial.Wrap(err, "could not connect").WithProperty(redis.EKAddress, c.Addr)
	}
	c.C = nc
	c.R = bufio.NewReader(nc)
	if c.Password == "" {
		return nil
	}
	args := []interface{}{c.Password}
	if c.Username != "" {
		args = []interface{}{c.Username, c.Password}
	}
	req, _ := redis.AppendRequest(nil, redis.Req("AUTH", args...))
	res := roundTrip(c.C, c.R, req, timeout)
	if err := redis.AsError(res); err != nil {
		c.Close()
		return redis.ErrAuth.Wrap(err, "auth failed").WithProperty(redis.EKAddress, c.Addr)
	}
	return nil
}

// Close closes underlying connection. Conn could be used again after Close.
func (c *Conn) Close() {
	if c.C != nil {
		c.C.Close()
		c.C = nil
		c.R = nil
	}
}

func roundTrip(nc net.Conn, r *bufio.Reader, req []byte, timeout time.Duration) interface{} {
	nc.SetDeadline(time.Now().Add(timeout))
	if _, err := nc.Write(req); err != nil {
		return redis.ErrIO.Wrap(err, "write failed")
	}
	return redis.ReadResponse(r)
}

// Do sends single command to addr with one-shot connection.
func Do(addr string, cmd string, args ...interface{}) interface{} {
	c := Conn{Addr: addr}
	defer c.Close()
	return c.Do(cmd, args...)
}

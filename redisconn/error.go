package redisconn

import (
	"github.com/joomcode/errorx"

	"github.com/joomcode/redisbulk/redis"
)

var (
	// ErrConnection - connection was not established at the moment request were done,
	// request is definitely not sent anywhere.
	ErrConnection = redis.ErrConnection
	// ErrNotConnected - connection were not established at the moment
	ErrNotConnected = redis.ErrNotConnected
	// ErrDial - could not connect.
	ErrDial = redis.ErrDial
	// ErrAuth - password didn't match
	ErrAuth = redis.ErrAuth
	// ErrConnSetup - other connection initialization error (including io errors)
	ErrConnSetup = redis.ErrConnSetup
)

var (
	// EKConnection - key for connection that handled request.
	EKConnection = errorx.RegisterProperty("connection")
	// EKDb - db number to select.
	EKDb = errorx.RegisterProperty("db")
)

func withNewProperty(err *errorx.Error, p errorx.Property, v interface{}) *errorx.Error {
	_, ok := err.Property(p)
	if ok {
		return err
	}
	return err.WithProperty(p, v)
}

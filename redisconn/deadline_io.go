package redisconn

import (
	"io"
	"net"
	"time"
)

// deadlineIO refreshes socket deadline before every read and write.
type deadlineIO struct {
	to time.Duration
	c  net.Conn
}

func newDeadlineIO(c net.Conn, to time.Duration) io.ReadWriter {
	if to > 0 {
		return &deadlineIO{c: c, to: to}
	}
	return c
}

func (d *deadlineIO) Write(b []byte) (int, error) {
	if err := d.c.SetWriteDeadline(time.Now().Add(d.to)); err != nil {
		return 0, err
	}
	return d.c.Write(b)
}

func (d *deadlineIO) Read(b []byte) (int, error) {
	if err := d.c.SetReadDeadline(time.Now().Add(d.to)); err != nil {
		return 0, err
	}
	return d.c.Read(b)
}

package redisconn

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joomcode/errorx"

	"github.com/joomcode/redisbulk/redis"
)

const (
	connDisconnected = 0
	connConnecting   = 1
	connConnected    = 2
	connClosed       = 3

	defaultReconnectPause = 500 * time.Millisecond
	defaultKeepAlive      = 300 * time.Millisecond
	defaultIOTimeout      = 1 * time.Second
	maxDialTimeout        = 5 * time.Second
)

// Opts - options for Connection
type Opts struct {
	// DB - database number
	DB int
	// Username for AUTH (redis 6.0+ ACL). Used only together with Password.
	Username string
	// Password for AUTH
	Password string
	// DialTimeout is timeout for net.Dialer
	// If it is 0, then ReconnectPause/2 is used (but not more than 5 seconds).
	DialTimeout time.Duration
	// IOTimeout - timeout on read/write to socket.
	// If IOTimeout == 0, then it is set to 1 second
	// If IOTimeout < 0, then timeout is disabled
	IOTimeout time.Duration
	// ReconnectPause is a pause after failed connection attempt before next one.
	// If ReconnectPause < 0, then no reconnection will be performed.
	// If ReconnectPause == 0, then default pause used (500ms)
	ReconnectPause time.Duration
	// TCPKeepAlive - KeepAlive parameter for net.Dialer
	// default is 300ms
	TCPKeepAlive time.Duration
	// TLSConfig enables TLS when not nil.
	TLSConfig *tls.Config
	// Handle is returned with Connection.Handle()
	Handle interface{}
	// Logger
	Logger Logger
	// AsyncDial - do not establish connection immediately
	AsyncDial bool
}

// Connection is implementation of redis.Sender which represents single connection to single redis instance.
//
// Underlying net.Conn is re-established as necessary.
// Connection allows to send requests asynchronously without explicit pipelining.
type Connection struct {
	ctx    context.Context
	cancel context.CancelFunc
	state  uint32

	addr string
	opts Opts

	// mutex serializes connection establishing and closing.
	mutex sync.Mutex

	// wmu guards everything below.
	wmu     sync.Mutex
	c       net.Conn
	one     *oneconn
	buf     []byte
	futures []future
	dirty   chan struct{}
}

type oneconn struct {
	c       net.Conn
	futures chan []future
	control chan struct{}
	err     error
	erronce sync.Once
}

type future struct {
	redis.Future
	N uint64
}

func (f future) resolve(res interface{}) {
	f.Future.Resolve(res, f.N)
}

// Connect establishes new connection to redis server.
// Connect will be automatically closed if context will be cancelled or timeouted. But it could be closed explicitly as well.
func Connect(ctx context.Context, addr string, opts Opts) (conn *Connection, err error) {
	if ctx == nil {
		return nil, redis.ErrContextIsNil.NewWithNoMessage()
	}
	if addr == "" {
		return nil, redis.ErrNoAddressProvided.NewWithNoMessage()
	}
	conn = &Connection{
		addr:  addr,
		opts:  opts,
		dirty: make(chan struct{}, 1),
	}
	conn.ctx, conn.cancel = context.WithCancel(ctx)

	if conn.opts.ReconnectPause == 0 {
		conn.opts.ReconnectPause = defaultReconnectPause
	}

	if conn.opts.DialTimeout == 0 {
		conn.opts.DialTimeout = conn.opts.ReconnectPause / 2
		if conn.opts.DialTimeout <= 0 {
			conn.opts.DialTimeout = defaultReconnectPause / 2
		}
	}
	if conn.opts.DialTimeout > maxDialTimeout {
		conn.opts.DialTimeout = maxDialTimeout
	}

	if conn.opts.TCPKeepAlive == 0 {
		conn.opts.TCPKeepAlive = defaultKeepAlive
	} else if conn.opts.TCPKeepAlive < 0 {
		conn.opts.TCPKeepAlive = 0
	}

	if conn.opts.IOTimeout == 0 {
		conn.opts.IOTimeout = defaultIOTimeout
	} else if conn.opts.IOTimeout < 0 {
		conn.opts.IOTimeout = 0
	}

	if conn.opts.Logger == nil {
		conn.opts.Logger = ZapLogger{}
	}

	if conn.opts.AsyncDial {
		// requests are queued until the first dial finishes
		atomic.StoreUint32(&conn.state, connConnecting)
		go conn.background()
	} else {
		conn.mutex.Lock()
		cerr := conn.createConnection(false)
		conn.mutex.Unlock()
		if cerr != nil {
			if conn.opts.ReconnectPause < 0 || !retriable(cerr) {
				conn.cancel()
				return nil, cerr
			}
			go conn.background()
		}
	}

	go conn.control()

	return conn, nil
}

// retriable reports whether failed first connection attempt should be retried in background.
// Refusals answered by server itself (wrong password, wrong db) are not.
func retriable(err *errorx.Error) bool {
	if err.IsOfType(ErrAuth) {
		return false
	}
	if err.IsOfType(ErrConnSetup) && errorx.IsOfType(err.Cause(), redis.ErrResult) {
		return false
	}
	return true
}

func (conn *Connection) background() {
	conn.mutex.Lock()
	defer conn.mutex.Unlock()
	conn.createConnection(true)
}

// Ctx returns context of this connection
func (conn *Connection) Ctx() context.Context {
	return conn.ctx
}

// ConnectedNow answers if connection is certainly connected at the moment
func (conn *Connection) ConnectedNow() bool {
	return atomic.LoadUint32(&conn.state) == connConnected
}

// MayBeConnected answers if connection either connected or connecting at the moment.
// Ie it returns false if connection is disconnected at the moment, and reconnection is not started yet.
func (conn *Connection) MayBeConnected() bool {
	s := atomic.LoadUint32(&conn.state)
	return s == connConnected || s == connConnecting
}

// Close closes connection forever
func (conn *Connection) Close() {
	conn.cancel()
}

// RemoteAddr is address of Redis socket
// Attention: do not call this method from Logger.Report, because it could lead to deadlock!
func (conn *Connection) RemoteAddr() string {
	conn.wmu.Lock()
	defer conn.wmu.Unlock()
	if conn.c == nil {
		return ""
	}
	return conn.c.RemoteAddr().String()
}

// LocalAddr is outgoing socket addr
// Attention: do not call this method from Logger.Report, because it could lead to deadlock!
func (conn *Connection) LocalAddr() string {
	conn.wmu.Lock()
	defer conn.wmu.Unlock()
	if conn.c == nil {
		return ""
	}
	return conn.c.LocalAddr().String()
}

// Addr retuns configured address
func (conn *Connection) Addr() string {
	return conn.addr
}

// DB returns selected database number
func (conn *Connection) DB() int {
	return conn.opts.DB
}

// Handle returns user specified handle from Opts
func (conn *Connection) Handle() interface{} {
	return conn.opts.Handle
}

// Ping sends ping request synchronously
func (conn *Connection) Ping(ctx context.Context) error {
	res := redis.SyncCtx{S: conn}.Do(ctx, "PING")
	if err := redis.AsError(res); err != nil {
		return err
	}
	if str, ok := res.(string); !ok || str != "PONG" {
		return redis.ErrPing.NewWithNoMessage().
			WithProperty(EKConnection, conn).
			WithProperty(redis.EKResponse, res)
	}
	return nil
}

var dumb redis.FuncFuture = func(interface{}, uint64) {}

// Send implements redis.Sender.Send
// It sends request asynchronously. At some moment in a future it will call cb.Resolve(result, n)
// But if cb is cancelled, then cb.Resolve will be called immediately.
func (conn *Connection) Send(req redis.Request, cb redis.Future, n uint64) {
	conn.SendMany([]redis.Request{req}, cb, n)
}

// SendMany implements redis.Sender.SendMany
// Sends several requests asynchronously. Fills with cb.Resolve(res, n), cb.Resolve(res, n+1), ... etc.
// Note: it could resolve requests in arbitrary order.
// If one of request is malformed, then whole batch fails.
func (conn *Connection) SendMany(requests []redis.Request, cb redis.Future, start uint64) {
	if len(requests) == 0 {
		return
	}
	if cb == nil {
		cb = dumb
	}
	if err := cb.Cancelled(); err != nil {
		cerr := redis.ErrRequestCancelled.WrapWithNoMessage(err).WithProperty(EKConnection, conn)
		for i := range requests {
			cb.Resolve(cerr, start+uint64(i))
		}
		return
	}

	conn.wmu.Lock()
	err, bad := conn.appendRequests(requests, cb, start)
	conn.wmu.Unlock()

	if err == nil {
		return
	}
	common := err
	if bad >= 0 {
		common = redis.ErrBatchFormat.WrapWithNoMessage(err).
			WithProperty(redis.EKRequests, requests).
			WithProperty(EKConnection, conn)
	}
	for i := range requests {
		if i == bad {
			cb.Resolve(err, start+uint64(i))
		} else {
			cb.Resolve(common, start+uint64(i))
		}
	}
}

// appendRequests serializes requests into output buffer. It should be called with wmu held.
// On failure it returns error and position of malformed request (or -1 if connection is not usable).
func (conn *Connection) appendRequests(requests []redis.Request, cb redis.Future, start uint64) (*errorx.Error, int) {
	switch atomic.LoadUint32(&conn.state) {
	case connClosed:
		return conn.closedError(), -1
	case connDisconnected:
		return ErrNotConnected.NewWithNoMessage().WithProperty(EKConnection, conn), -1
	}
	l := len(conn.buf)
	buf := conn.buf
	for i, req := range requests {
		var err error
		if buf, err = redis.AppendRequest(buf, req); err != nil {
			conn.buf = buf[:l]
			return withNewProperty(errorx.Cast(err), EKConnection, conn), i
		}
	}
	conn.buf = buf
	for i := range requests {
		conn.futures = append(conn.futures, future{cb, start + uint64(i)})
	}
	conn.kick()
	return nil, -1
}

func (conn *Connection) kick() {
	select {
	case conn.dirty <- struct{}{}:
	default:
	}
}

func (conn *Connection) closedError() *errorx.Error {
	return redis.ErrContextClosed.WrapWithNoMessage(conn.ctx.Err()).WithProperty(EKConnection, conn)
}

// String implements fmt.Stringer
func (conn *Connection) String() string {
	return fmt.Sprintf("*redisconn.Connection{addr: %s, db: %d}", conn.addr, conn.opts.DB)
}

/********** private api **************/

func (conn *Connection) report(event LogEvent) {
	conn.opts.Logger.Report(conn, event)
}

// setState changes state unless connection is closed forever.
func (conn *Connection) setState(state uint32) bool {
	conn.wmu.Lock()
	defer conn.wmu.Unlock()
	if atomic.LoadUint32(&conn.state) == connClosed {
		return false
	}
	atomic.StoreUint32(&conn.state, state)
	return true
}

func (conn *Connection) dial() *errorx.Error {
	network := "tcp"
	address := conn.addr
	switch {
	case strings.HasPrefix(address, "unix://"):
		network = "unix"
		address = address[7:]
	case strings.HasPrefix(address, "tcp://"):
		address = address[6:]
	case address[0] == '.' || address[0] == '/':
		network = "unix"
	}
	dialer := net.Dialer{
		Timeout:   conn.opts.DialTimeout,
		KeepAlive: conn.opts.TCPKeepAlive,
	}
	connection, err := dialer.DialContext(conn.ctx, network, address)
	if err != nil {
		return ErrDial.WrapWithNoMessage(err).WithProperty(EKConnection, conn)
	}
	if conn.opts.TLSConfig != nil {
		tlsConn := tls.Client(connection, conn.opts.TLSConfig)
		hctx, cancel := context.WithTimeout(conn.ctx, conn.opts.DialTimeout)
		err = tlsConn.HandshakeContext(hctx)
		cancel()
		if err != nil {
			connection.Close()
			return ErrDial.Wrap(err, "tls handshake").WithProperty(EKConnection, conn)
		}
		connection = tlsConn
	}

	dc := newDeadlineIO(connection, conn.opts.IOTimeout)
	r := bufio.NewReaderSize(dc, 128*1024)
	w := bufio.NewWriterSize(dc, 128*1024)

	if serr := conn.setup(dc, r); serr != nil {
		connection.Close()
		return serr
	}

	one := &oneconn{
		c:       connection,
		futures: make(chan []future, 64),
		control: make(chan struct{}),
	}

	conn.wmu.Lock()
	if atomic.LoadUint32(&conn.state) == connClosed {
		conn.wmu.Unlock()
		connection.Close()
		return conn.closedError()
	}
	conn.c = connection
	conn.one = one
	atomic.StoreUint32(&conn.state, connConnected)
	conn.wmu.Unlock()

	go conn.writer(w, one)
	go conn.reader(r, one)
	conn.kick()

	conn.report(LogConnected{
		LocalAddr:  connection.LocalAddr().String(),
		RemoteAddr: connection.RemoteAddr().String(),
	})
	return nil
}

// setup performs AUTH, PING and SELECT on fresh socket.
func (conn *Connection) setup(dc interface{ Write([]byte) (int, error) }, r *bufio.Reader) *errorx.Error {
	var req []byte
	if conn.opts.Password != "" {
		if conn.opts.Username != "" {
			req, _ = redis.AppendRequest(req, redis.Req("AUTH", conn.opts.Username, conn.opts.Password))
		} else {
			req, _ = redis.AppendRequest(req, redis.Req("AUTH", conn.opts.Password))
		}
	}
	req, _ = redis.AppendRequest(req, redis.Req("PING"))
	if conn.opts.DB != 0 {
		req, _ = redis.AppendRequest(req, redis.Req("SELECT", conn.opts.DB))
	}
	if _, err := dc.Write(req); err != nil {
		return ErrConnSetup.WrapWithNoMessage(redis.ErrIO.WrapWithNoMessage(err)).WithProperty(EKConnection, conn)
	}

	var res interface{}
	// Password response
	if conn.opts.Password != "" {
		res = redis.ReadResponse(r)
		if rerr := redis.AsErrorx(res); rerr != nil {
			if redis.HardError(rerr) {
				return ErrConnSetup.WrapWithNoMessage(rerr).WithProperty(EKConnection, conn)
			}
			return ErrAuth.WrapWithNoMessage(rerr).WithProperty(EKConnection, conn)
		}
	}
	// PING Response
	res = redis.ReadResponse(r)
	if rerr := redis.AsErrorx(res); rerr != nil {
		return ErrConnSetup.WrapWithNoMessage(rerr).WithProperty(EKConnection, conn)
	}
	if str, ok := res.(string); !ok || str != "PONG" {
		return ErrConnSetup.New("ping response mismatch").
			WithProperty(EKConnection, conn).
			WithProperty(redis.EKResponse, res)
	}
	// SELECT DB Response
	if conn.opts.DB != 0 {
		res = redis.ReadResponse(r)
		if rerr := redis.AsErrorx(res); rerr != nil {
			return ErrConnSetup.WrapWithNoMessage(rerr).
				WithProperty(EKConnection, conn).
				WithProperty(EKDb, conn.opts.DB)
		}
		if str, ok := res.(string); !ok || str != "OK" {
			return ErrConnSetup.New("SELECT db response mismatch").
				WithProperty(EKConnection, conn).
				WithProperty(EKDb, conn.opts.DB).
				WithProperty(redis.EKResponse, res)
		}
	}
	return nil
}

// createConnection dials until success. It should be called with conn.mutex held.
func (conn *Connection) createConnection(reconnect bool) *errorx.Error {
	for {
		if !conn.setState(connConnecting) {
			return conn.closedError()
		}
		conn.report(LogConnecting{})
		now := time.Now()
		err := conn.dial()
		if err == nil {
			return nil
		}

		conn.report(LogConnectFailed{Error: err})
		conn.dropFutures(err)

		if !reconnect {
			return err
		}
		select {
		case <-conn.ctx.Done():
			return conn.closedError()
		case <-time.After(time.Until(now.Add(conn.opts.ReconnectPause))):
		}
	}
}

// dropFutures fails all queued requests and marks connection disconnected.
func (conn *Connection) dropFutures(err error) {
	conn.wmu.Lock()
	if atomic.LoadUint32(&conn.state) != connClosed {
		atomic.StoreUint32(&conn.state, connDisconnected)
	}
	futures := conn.futures
	conn.futures = nil
	conn.buf = conn.buf[:0]
	conn.wmu.Unlock()

	for _, fut := range futures {
		fut.resolve(err)
	}
}

func (conn *Connection) closeConnection(neterr error, forever bool) {
	conn.wmu.Lock()
	if forever {
		atomic.StoreUint32(&conn.state, connClosed)
	} else if atomic.LoadUint32(&conn.state) != connClosed {
		atomic.StoreUint32(&conn.state, connDisconnected)
	}
	c, one := conn.c, conn.one
	conn.c, conn.one = nil, nil
	futures := conn.futures
	conn.futures = nil
	conn.buf = conn.buf[:0]
	conn.wmu.Unlock()

	if one != nil {
		one.setErr(neterr, conn)
	}
	if forever {
		conn.report(LogContextClosed{Error: conn.ctx.Err()})
	}
	if c != nil {
		if !forever {
			conn.report(LogDisconnected{
				Error:      neterr,
				LocalAddr:  c.LocalAddr().String(),
				RemoteAddr: c.RemoteAddr().String(),
			})
		}
		c.Close()
	}
	for _, fut := range futures {
		fut.resolve(neterr)
	}
}

func (conn *Connection) control() {
	timeout := conn.opts.IOTimeout / 3
	if timeout <= 0 {
		timeout = time.Second
	}
	t := time.NewTicker(timeout)
	defer t.Stop()
	for {
		select {
		case <-conn.ctx.Done():
			conn.mutex.Lock()
			defer conn.mutex.Unlock()
			conn.closeConnection(conn.closedError(), true)
			return
		case <-t.C:
		}
		// idle ping keeps read deadline ticking, so dead peer is noticed
		if conn.ConnectedNow() {
			conn.Send(redis.Req("PING"), nil, 0)
		}
	}
}

func (one *oneconn) setErr(neterr error, conn *Connection) {
	one.erronce.Do(func() {
		one.err = neterr
		close(one.control)
		go conn.reconnect(neterr, one)
	})
}

func (conn *Connection) reconnect(neterr error, one *oneconn) {
	conn.mutex.Lock()
	defer conn.mutex.Unlock()
	if atomic.LoadUint32(&conn.state) == connClosed {
		return
	}
	conn.wmu.Lock()
	same := conn.one == one
	conn.wmu.Unlock()
	if !same {
		return
	}
	conn.closeConnection(neterr, false)
	if conn.opts.ReconnectPause < 0 {
		conn.cancel()
		return
	}
	conn.createConnection(true)
}

func (conn *Connection) writer(w *bufio.Writer, one *oneconn) {
	var packet []byte
	var futures []future
	defer close(one.futures)
	for {
		select {
		case <-conn.dirty:
		case <-one.control:
			return
		}

		conn.wmu.Lock()
		if conn.one != one {
			conn.wmu.Unlock()
			// pass signal to successor
			conn.kick()
			return
		}
		packet, conn.buf = conn.buf, packet[:0]
		futures, conn.futures = conn.futures, nil
		conn.wmu.Unlock()

		if len(futures) == 0 {
			continue
		}

		one.futures <- futures

		if _, err := w.Write(packet); err != nil {
			one.setErr(redis.ErrIO.WrapWithNoMessage(err).WithProperty(EKConnection, conn), conn)
			return
		}
		if err := w.Flush(); err != nil {
			one.setErr(redis.ErrIO.WrapWithNoMessage(err).WithProperty(EKConnection, conn), conn)
			return
		}
	}
}

func (conn *Connection) reader(r *bufio.Reader, one *oneconn) {
	var futures []future
	var i int
Outer:
	for futures = range one.futures {
		for i = 0; i < len(futures); i++ {
			res := redis.ReadResponse(r)
			if rerr := redis.AsErrorx(res); redis.HardError(rerr) {
				one.setErr(withNewProperty(rerr, EKConnection, conn), conn)
				break Outer
			}
			futures[i].resolve(res)
		}
	}
	for ; i < len(futures); i++ {
		futures[i].resolve(one.err)
	}
	for futures := range one.futures {
		for _, fut := range futures {
			fut.resolve(one.err)
		}
	}
}

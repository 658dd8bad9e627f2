package redisconn

import (
	"go.uber.org/zap"
)

// Logger is a type for custom event and stat reporter.
type Logger interface {
	// Report will be called when some events happens during connection's lifetime.
	// Default implementation just prints this information through global zap logger.
	Report(conn *Connection, event LogEvent)
}

// LogEvent is a sum-type for events to be logged.
type LogEvent interface {
	logEvent() // tagging method
}

// LogConnecting is an event logged when Connection starts dialing to redis.
type LogConnecting struct{}

// LogConnected is logged when Connection established connection to redis.
type LogConnected struct {
	LocalAddr  string // - local ip:port
	RemoteAddr string // - remote ip:port
}

// LogConnectFailed is logged when connection establishing were unsuccessful.
type LogConnectFailed struct {
	Error error // - failure reason
}

// LogDisconnected is logged when connection were broken.
type LogDisconnected struct {
	Error      error  // - disconnection reason
	LocalAddr  string // - local ip:port
	RemoteAddr string // - remote ip:port
}

// LogContextClosed is logged when Connection's context were closed, or Connection.Close() called.
// Ie when connection is explicitly closed by user.
type LogContextClosed struct {
	Error error // - ctx.Err()
}

func (LogConnecting) logEvent()    {}
func (LogConnected) logEvent()     {}
func (LogConnectFailed) logEvent() {}
func (LogDisconnected) logEvent()  {}
func (LogContextClosed) logEvent() {}

// ZapLogger reports connection events to zap logger.
// Nil L means zap.L() at the moment of report.
type ZapLogger struct {
	L *zap.Logger
}

// Report implements Logger.Report.
func (d ZapLogger) Report(conn *Connection, event LogEvent) {
	l := d.L
	if l == nil {
		l = zap.L()
	}
	l = l.With(zap.String("addr", conn.Addr()), zap.Int("db", conn.DB()))
	switch ev := event.(type) {
	case LogConnecting:
		l.Debug("redis: connecting")
	case LogConnected:
		l.Info("redis: connected",
			zap.String("local_addr", ev.LocalAddr),
			zap.String("remote_addr", ev.RemoteAddr))
	case LogConnectFailed:
		l.Warn("redis: connection failed", zap.Error(ev.Error))
	case LogDisconnected:
		l.Warn("redis: connection broken",
			zap.Error(ev.Error),
			zap.String("local_addr", ev.LocalAddr),
			zap.String("remote_addr", ev.RemoteAddr))
	case LogContextClosed:
		l.Debug("redis: connection explicitly closed", zap.NamedError("reason", ev.Error))
	default:
		l.Error("redis: unexpected event", zap.Any("event", event))
	}
}

// NoopLogger noop implementation of Logger
// Useful in tests.
type NoopLogger struct{}

// Report implements Logger.Report
func (NoopLogger) Report(*Connection, LogEvent) {}

package rediscluster

import (
	"go.uber.org/zap"

	"github.com/joomcode/redisbulk/redisconn"
)

// Logger is used for logging cluster-related events.
type Logger interface {
	// Report will be called when some events happens during cluster's lifetime.
	Report(c *Cluster, event LogEvent)
}

func (c *Cluster) report(event LogEvent) {
	c.opts.Logger.Report(c, event)
}

// LogEvent is a sumtype for events to be logged.
type LogEvent interface {
	logEvent()
}

// LogHostEvent is a wrapper for per-connection event
type LogHostEvent struct {
	Conn  *redisconn.Connection // Connection which triggers event.
	Event redisconn.LogEvent
}

// LogClusterNodesError is logged when host failed to answer CLUSTER NODES and CLUSTER SLOTS.
type LogClusterNodesError struct {
	Addr  string // host which were asked
	Error error  // observed error
}

// LogClusterReloadFailed is logged when periodic refresh could not get configuration from any host.
type LogClusterReloadFailed struct {
	Error error
}

// LogClusterReloaded is logged when new configuration were applied.
type LogClusterReloaded struct {
	Masters  int
	Replicas int
}

// LogContextClosed is logged when cluster's context is closed.
type LogContextClosed struct{ Error error }

func (LogHostEvent) logEvent()           {}
func (LogClusterNodesError) logEvent()   {}
func (LogClusterReloadFailed) logEvent() {}
func (LogClusterReloaded) logEvent()     {}
func (LogContextClosed) logEvent()       {}

// ZapLogger reports cluster events to zap logger.
// Nil L means zap.L() at the moment of report.
type ZapLogger struct {
	L *zap.Logger
}

// Report implements Logger.Report.
func (d ZapLogger) Report(cluster *Cluster, event LogEvent) {
	l := d.L
	if l == nil {
		l = zap.L()
	}
	l = l.With(zap.String("cluster", cluster.Name()))
	switch ev := event.(type) {
	case LogHostEvent:
		redisconn.ZapLogger{L: l}.Report(ev.Conn, ev.Event)
	case LogClusterNodesError:
		l.Warn("rediscluster: cluster nodes request failed",
			zap.String("addr", ev.Addr), zap.Error(ev.Error))
	case LogClusterReloadFailed:
		l.Error("rediscluster: configuration refresh failed", zap.Error(ev.Error))
	case LogClusterReloaded:
		l.Info("rediscluster: configuration changed",
			zap.Int("masters", ev.Masters), zap.Int("replicas", ev.Replicas))
	case LogContextClosed:
		l.Debug("rediscluster: closed", zap.NamedError("reason", ev.Error))
	default:
		l.Error("rediscluster: unexpected event", zap.Any("event", event))
	}
}

// NoopLogger noop implementation of Logger
// Useful in tests.
type NoopLogger struct{}

// Report implements Logger.Report
func (NoopLogger) Report(*Cluster, LogEvent) {}

type connLogger struct {
	cluster *Cluster
}

func (d connLogger) Report(conn *redisconn.Connection, event redisconn.LogEvent) {
	d.cluster.report(LogHostEvent{Conn: conn, Event: event})
}

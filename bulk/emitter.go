package bulk

import (
	"sync"
	"time"
)

// Default debounce intervals.
const (
	DefaultMinWait = 100 * time.Millisecond
	DefaultMaxWait = time.Second
)

// Sink receives action snapshots.
type Sink interface {
	Publish(s Snapshot)
}

// SinkFunc adapts function to Sink.
type SinkFunc func(Snapshot)

// Publish implements Sink.Publish
func (f SinkFunc) Publish(s Snapshot) { f(s) }

// NopSink drops snapshots.
type NopSink struct{}

// Publish implements Sink.Publish
func (NopSink) Publish(Snapshot) {}

// Emitter debounces snapshots of single action.
//
// Push delivers the latest snapshot after minWait of silence, but no later than
// maxWait after the first undelivered Push. Snapshots older than the last
// accepted one (by Seq) are ignored, so racing producers could not roll state back.
// Flush delivers final snapshot synchronously and makes Emitter ignore further Pushes.
type Emitter struct {
	sink    Sink
	minWait time.Duration
	maxWait time.Duration

	// sendMu is held while snapshot is taken and delivered, so deliveries keep order.
	sendMu sync.Mutex

	mu      sync.Mutex
	pending *Snapshot
	seq     uint64
	minT    *time.Timer
	maxT    *time.Timer
	closed  bool
}

// NewEmitter returns emitter. Non-positive waits are replaced with defaults.
func NewEmitter(sink Sink, minWait, maxWait time.Duration) *Emitter {
	if sink == nil {
		sink = NopSink{}
	}
	if minWait <= 0 {
		minWait = DefaultMinWait
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	if maxWait < minWait {
		maxWait = minWait
	}
	return &Emitter{sink: sink, minWait: minWait, maxWait: maxWait}
}

// Push schedules delivery of snapshot.
func (e *Emitter) Push(s Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || s.Seq < e.seq {
		return
	}
	e.seq = s.Seq
	e.pending = &s
	if e.minT != nil {
		e.minT.Stop()
	}
	e.minT = time.AfterFunc(e.minWait, e.fire)
	if e.maxT == nil {
		e.maxT = time.AfterFunc(e.maxWait, e.fire)
	}
}

// Flush delivers s immediately, dropping pending one.
func (e *Emitter) Flush(s Snapshot) {
	e.sendMu.Lock()
	defer e.sendMu.Unlock()

	e.mu.Lock()
	e.closed = true
	e.pending = nil
	e.stopTimersLocked()
	e.mu.Unlock()

	e.sink.Publish(s)
}

func (e *Emitter) fire() {
	e.sendMu.Lock()
	defer e.sendMu.Unlock()

	e.mu.Lock()
	s := e.pending
	e.pending = nil
	e.stopTimersLocked()
	e.mu.Unlock()

	if s != nil {
		e.sink.Publish(*s)
	}
}

func (e *Emitter) stopTimersLocked() {
	if e.minT != nil {
		e.minT.Stop()
		e.minT = nil
	}
	if e.maxT != nil {
		e.maxT.Stop()
		e.maxT = nil
	}
}

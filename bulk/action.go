package bulk

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/joomcode/redisbulk/keyspace"
)

// Status is a lifecycle state of action.
type Status string

const (
	Created   Status = "created"
	Running   Status = "running"
	Completed Status = "completed"
	Aborted   Status = "aborted"
	Failed    Status = "failed"
)

// Terminal reports whether status is final.
func (s Status) Terminal() bool {
	return s == Completed || s == Aborted || s == Failed
}

// Descriptor is a request to start action.
type Descriptor struct {
	DatabaseID string
	Kind       Kind
	Filter     keyspace.Filter
	Params     Params
}

// Validate checks descriptor.
func (d Descriptor) Validate() error {
	if err := d.Filter.Validate(); err != nil {
		return err
	}
	return d.Kind.Validate(d.Params)
}

// Snapshot is a point-in-time view of action.
//
// Seq grows with every state change of action, so snapshots could be ordered
// regardless of delivery order.
type Snapshot struct {
	ID         string      `json:"id" yaml:"id"`
	Owner      string      `json:"-" yaml:"-"`
	Seq        uint64      `json:"seq" yaml:"seq"`
	DatabaseID string      `json:"databaseId" yaml:"databaseId"`
	Kind       Kind        `json:"kind" yaml:"kind"`
	Status     Status      `json:"status" yaml:"status"`
	Error      string      `json:"error,omitempty" yaml:"error,omitempty"`
	DurationMs int64       `json:"durationMs" yaml:"durationMs"`
	Overview   Overview    `json:"overview" yaml:"overview"`
	Summary    SummaryView `json:"summary" yaml:"summary"`
}

// Action is a single bulk mutation over keyspace of one database.
type Action struct {
	id    string
	owner string
	desc  Descriptor

	aborted atomic.Bool
	done    chan struct{}

	mu       sync.Mutex
	seq      uint64
	status   Status
	err      error
	nodes    []*ScanProgress
	summary  *Summary
	started  time.Time
	finished time.Time
}

// NewAction creates action in Created state.
func NewAction(owner string, desc Descriptor, maxErrorKinds int) *Action {
	return &Action{
		id:      uuid.New().String(),
		owner:   owner,
		desc:    desc,
		done:    make(chan struct{}),
		status:  Created,
		summary: NewSummary(maxErrorKinds),
	}
}

// ID returns unique action identifier.
func (a *Action) ID() string { return a.id }

// Owner returns session that created action.
func (a *Action) Owner() string { return a.owner }

// Descriptor returns descriptor action was created with.
func (a *Action) Descriptor() Descriptor { return a.desc }

// Status returns current status.
func (a *Action) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Err returns failure reason of Failed action.
func (a *Action) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// Abort asks action to stop. Nodes finish batches in flight and stop before next SCAN.
func (a *Action) Abort() {
	a.aborted.Store(true)
}

// Aborted reports whether Abort were called.
func (a *Action) Aborted() bool {
	return a.aborted.Load()
}

// Done is closed when action reaches terminal status.
func (a *Action) Done() <-chan struct{} {
	return a.done
}

// Wait waits for terminal status.
func (a *Action) Wait(ctx context.Context) error {
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns current view of action.
func (a *Action) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

func (a *Action) snapshotLocked() Snapshot {
	s := Snapshot{
		ID:         a.id,
		Owner:      a.owner,
		Seq:        a.seq,
		DatabaseID: a.desc.DatabaseID,
		Kind:       a.desc.Kind,
		Status:     a.status,
		Overview:   makeOverview(a.nodes),
		Summary:    a.summary.View(),
	}
	if a.err != nil {
		s.Error = a.err.Error()
	}
	switch {
	case a.started.IsZero():
	case a.finished.IsZero():
		s.DurationMs = time.Since(a.started).Milliseconds()
	default:
		s.DurationMs = a.finished.Sub(a.started).Milliseconds()
	}
	return s
}

// update runs f under action mutex and returns fresh snapshot stamped with next Seq.
func (a *Action) update(f func()) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	f()
	a.seq++
	return a.snapshotLocked()
}

func (a *Action) start() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status != Created {
		return false
	}
	a.status = Running
	a.started = time.Now()
	return true
}

func (a *Action) setNodes(nodes []*ScanProgress) Snapshot {
	return a.update(func() { a.nodes = nodes })
}

func (a *Action) finish(status Status, err error) Snapshot {
	snap := a.update(func() {
		a.status = status
		a.err = err
		a.finished = time.Now()
	})
	close(a.done)
	return snap
}

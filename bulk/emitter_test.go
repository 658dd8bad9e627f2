package bulk

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
	at    []time.Time
}

func (r *recorder) Publish(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
	r.at = append(r.at, time.Now())
}

func (r *recorder) get() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Snapshot(nil), r.snaps...)
}

func snap(processed int64) Snapshot {
	return Snapshot{ID: "a", Summary: SummaryView{Processed: processed}}
}

func TestEmitter_DebouncesBurst(t *testing.T) {
	rec := &recorder{}
	e := NewEmitter(rec, 30*time.Millisecond, time.Second)
	for i := int64(1); i <= 5; i++ {
		e.Push(snap(i))
	}
	assert.Eventually(t, func() bool { return len(rec.get()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	got := rec.get()
	require.Len(t, got, 1)
	assert.Equal(t, int64(5), got[0].Summary.Processed)
}

func TestEmitter_MaxWait(t *testing.T) {
	rec := &recorder{}
	e := NewEmitter(rec, 40*time.Millisecond, 100*time.Millisecond)
	start := time.Now()
	stop := time.After(300 * time.Millisecond)
	var i int64
loop:
	for {
		select {
		case <-stop:
			break loop
		case <-time.After(10 * time.Millisecond):
			i++
			e.Push(snap(i))
		}
	}
	got := rec.get()
	// continuous pushes never let min timer fire, max timer delivers anyway
	require.GreaterOrEqual(t, len(got), 2)
	rec.mu.Lock()
	assert.Less(t, rec.at[0].Sub(start), 200*time.Millisecond)
	rec.mu.Unlock()
	for j := 1; j < len(got); j++ {
		assert.Greater(t, got[j].Summary.Processed, got[j-1].Summary.Processed)
	}
}

func TestEmitter_Flush(t *testing.T) {
	rec := &recorder{}
	e := NewEmitter(rec, 20*time.Millisecond, 50*time.Millisecond)
	e.Push(snap(1))
	e.Flush(Snapshot{ID: "a", Status: Completed})
	e.Push(snap(2))

	time.Sleep(100 * time.Millisecond)
	got := rec.get()
	require.Len(t, got, 1)
	assert.Equal(t, Completed, got[0].Status)
}

func TestEmitter_Defaults(t *testing.T) {
	e := NewEmitter(nil, 0, 0)
	assert.Equal(t, DefaultMinWait, e.minWait)
	assert.Equal(t, DefaultMaxWait, e.maxWait)
	e.Push(snap(1))
	e.Flush(snap(2))

	e = NewEmitter(nil, time.Second, time.Millisecond)
	assert.Equal(t, time.Second, e.maxWait)
}

func seqSnap(seq uint64, processed int64) Snapshot {
	s := snap(processed)
	s.Seq = seq
	return s
}

func TestEmitter_IgnoresStaleSnapshot(t *testing.T) {
	rec := &recorder{}
	e := NewEmitter(rec, 20*time.Millisecond, 50*time.Millisecond)
	e.Push(seqSnap(2, 20))
	e.Push(seqSnap(1, 10))

	assert.Eventually(t, func() bool { return len(rec.get()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(2), rec.get()[0].Seq)

	// already delivered snapshot still bounds later pushes
	e.Push(seqSnap(1, 10))
	time.Sleep(80 * time.Millisecond)
	got := rec.get()
	require.Len(t, got, 1)
	assert.Equal(t, int64(20), got[0].Summary.Processed)

	e.Push(seqSnap(3, 30))
	assert.Eventually(t, func() bool { return len(rec.get()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(3), rec.get()[1].Seq)
}

func TestAction_UpdateStampsSeq(t *testing.T) {
	a := NewAction("alice", Descriptor{DatabaseID: "main", Kind: Delete}, 10)
	assert.Equal(t, uint64(0), a.Snapshot().Seq)
	assert.Equal(t, "alice", a.Snapshot().Owner)

	first := a.setNodes([]*ScanProgress{NewScanProgress("127.0.0.1:6379")})
	second := a.update(func() { a.nodes[0].SetTotal(10) })
	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, uint64(2), second.Seq)
	assert.Equal(t, second.Seq, a.Snapshot().Seq)

	final := a.finish(Completed, nil)
	assert.Greater(t, final.Seq, second.Seq)
}

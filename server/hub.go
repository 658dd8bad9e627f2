package server

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/joomcode/redisbulk/bulk"
)

// DefaultRetention is how long snapshot of finished action is kept.
const DefaultRetention = 10 * time.Minute

const subscriptionBuffer = 16

// Hub keeps last snapshot of every action and fans snapshots out to subscribers.
// It implements bulk.Sink.
type Hub struct {
	log       *zap.Logger
	retention time.Duration
	now       func() time.Time

	mu   sync.Mutex
	last map[string]retained
	subs map[string]map[*Subscription]struct{}
}

type retained struct {
	snap bulk.Snapshot
	at   time.Time
}

// Subscription receives snapshots of single action.
// C is closed after terminal snapshot or on Hub.Unsubscribe.
type Subscription struct {
	ID string
	C  <-chan bulk.Snapshot
	ch chan bulk.Snapshot
}

// NewHub returns hub. Non-positive retention means DefaultRetention.
func NewHub(retention time.Duration, log *zap.Logger) *Hub {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if log == nil {
		log = zap.L()
	}
	return &Hub{
		log:       log,
		retention: retention,
		now:       time.Now,
		last:      make(map[string]retained),
		subs:      make(map[string]map[*Subscription]struct{}),
	}
}

// Publish implements bulk.Sink.Publish
func (h *Hub) Publish(s bulk.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := h.now()
	h.pruneLocked(now)
	h.last[s.ID] = retained{snap: s, at: now}

	for sub := range h.subs[s.ID] {
		offer(sub.ch, s)
		if s.Status.Terminal() {
			close(sub.ch)
		}
	}
	if s.Status.Terminal() {
		h.log.Debug("closing action streams",
			zap.String("action_id", s.ID),
			zap.String("status", string(s.Status)),
			zap.Int("subscribers", len(h.subs[s.ID])))
		delete(h.subs, s.ID)
	}
}

// Last returns latest known snapshot of action.
func (h *Hub) Last(id string) (bulk.Snapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pruneLocked(h.now())
	r, ok := h.last[id]
	return r.snap, ok
}

// Subscribe starts stream of action snapshots. Last known snapshot is replayed.
// Subscription to finished action receives its final snapshot and is closed.
func (h *Hub) Subscribe(id string) *Subscription {
	ch := make(chan bulk.Snapshot, subscriptionBuffer)
	sub := &Subscription{ID: id, C: ch, ch: ch}

	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.last[id]; ok {
		ch <- r.snap
		if r.snap.Status.Terminal() {
			close(ch)
			return sub
		}
	}
	if h.subs[id] == nil {
		h.subs[id] = make(map[*Subscription]struct{})
	}
	h.subs[id][sub] = struct{}{}
	return sub
}

// Unsubscribe stops subscription. It is safe to call after stream is closed.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.subs[sub.ID]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	close(sub.ch)
	if len(subs) == 0 {
		delete(h.subs, sub.ID)
	}
}

func (h *Hub) pruneLocked(now time.Time) {
	for id, r := range h.last {
		if r.snap.Status.Terminal() && now.Sub(r.at) > h.retention {
			delete(h.last, id)
		}
	}
}

// offer puts snapshot into buffer, dropping the oldest one when buffer is full.
func offer(ch chan bulk.Snapshot, s bulk.Snapshot) {
	for {
		select {
		case ch <- s:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

package bulk

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/joomcode/redisbulk/keyspace"
)

// DatabaseResolver turns database id into connected client.
type DatabaseResolver interface {
	Resolve(ctx context.Context, databaseID string) (keyspace.Client, error)
}

// Opts configures Registry.
type Opts struct {
	MinWait          time.Duration
	MaxWait          time.Duration
	MaxErrorKinds    int
	BatchesPerSecond float64
	MaxParallelNodes int
	Logger           *zap.Logger
}

// Registry keeps live actions, at most one per owner.
type Registry struct {
	resolver DatabaseResolver
	sink     Sink
	opts     Opts
	log      *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	actions map[string]*Action
	byOwner map[string]*Action
}

// NewRegistry returns empty registry. Snapshots of every action go to sink.
func NewRegistry(resolver DatabaseResolver, sink Sink, opts Opts) *Registry {
	if sink == nil {
		sink = NopSink{}
	}
	log := opts.Logger
	if log == nil {
		log = zap.L()
	}
	r := &Registry{
		resolver: resolver,
		sink:     sink,
		opts:     opts,
		log:      log,
		actions:  make(map[string]*Action),
		byOwner:  make(map[string]*Action),
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	return r
}

// AddAction validates descriptor, replaces live action of the owner and starts new one.
func (r *Registry) AddAction(ctx context.Context, owner string, desc Descriptor) (*Action, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	client, err := r.resolver.Resolve(ctx, desc.DatabaseID)
	if err != nil {
		return nil, err
	}
	strategy, err := keyspace.SelectStrategy(client.Kind())
	if err != nil {
		return nil, err
	}

	action := NewAction(owner, desc, r.opts.MaxErrorKinds)
	runner, err := NewRunner(action, client, strategy,
		NewEmitter(r.sink, r.opts.MinWait, r.opts.MaxWait),
		RunnerOpts{
			MaxParallelNodes: r.opts.MaxParallelNodes,
			BatchesPerSecond: r.opts.BatchesPerSecond,
			Logger:           r.log,
		})
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRegistryClosed.New("registry is closed")
	}
	if prev, ok := r.byOwner[owner]; ok {
		r.log.Info("replacing bulk action of owner",
			zap.String("owner", owner),
			zap.String("previous_id", prev.ID()),
			zap.String("action_id", action.ID()))
		prev.Abort()
		delete(r.actions, prev.ID())
	}
	r.actions[action.ID()] = action
	r.byOwner[owner] = action
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		// failure is reported through snapshot
		_ = runner.Run(r.ctx)
		r.remove(action)
	}()
	return action, nil
}

func (r *Registry) remove(a *Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.actions[a.ID()]; ok && cur == a {
		delete(r.actions, a.ID())
	}
	if cur, ok := r.byOwner[a.Owner()]; ok && cur == a {
		delete(r.byOwner, a.Owner())
	}
}

// Get returns live action.
func (r *Registry) Get(id string) (*Action, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.actions[id]
	if !ok {
		return nil, ErrActionNotFound.New("no such action").WithProperty(EKActionID, id)
	}
	return a, nil
}

// FindByOwner returns live actions of owner.
// Since a new action replaces the previous one, result holds at most one action.
func (r *Registry) FindByOwner(owner string) []*Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.byOwner[owner]; ok {
		return []*Action{a}
	}
	return nil
}

// GetOwned returns live action if it belongs to owner, ErrForbidden otherwise.
func (r *Registry) GetOwned(id, owner string) (*Action, error) {
	for _, a := range r.FindByOwner(owner) {
		if a.ID() == id {
			return a, nil
		}
	}
	if _, err := r.Get(id); err != nil {
		return nil, err
	}
	return nil, ErrForbidden.New("action belongs to other owner").
		WithProperty(EKActionID, id).
		WithProperty(EKOwner, owner)
}

// Abort asks live action to stop on behalf of owner. It does not wait.
// Only the owner that started action may abort it.
func (r *Registry) Abort(id, owner string) error {
	a, err := r.GetOwned(id, owner)
	if err != nil {
		return err
	}
	a.Abort()
	return nil
}

// List returns live actions ordered by id.
func (r *Registry) List() []*Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]*Action, 0, len(r.actions))
	for _, a := range r.actions {
		res = append(res, a)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID() < res[j].ID() })
	return res
}

// Close aborts all actions and waits for runners to finish.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	for _, a := range r.actions {
		a.Abort()
	}
	r.mu.Unlock()
	r.wg.Wait()
	r.cancel()
}

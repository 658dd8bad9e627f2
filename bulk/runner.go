package bulk

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/joomcode/redisbulk/keyspace"
	"github.com/joomcode/redisbulk/redis"
)

// RunnerOpts tunes Runner.
type RunnerOpts struct {
	// MaxParallelNodes limits number of nodes scanned at once. Zero means no limit.
	MaxParallelNodes int
	// BatchesPerSecond throttles batches of the whole action. Zero means no limit.
	BatchesPerSecond float64
	// Logger, nil means zap.L().
	Logger *zap.Logger
}

// Runner executes single Action.
type Runner struct {
	action   *Action
	client   keyspace.Client
	strategy keyspace.Strategy
	builder  CommandBuilder
	emitter  *Emitter
	limiter  *rate.Limiter
	opts     RunnerOpts
	log      *zap.Logger
	started  atomic.Bool
}

// NewRunner prepares runner. Action descriptor should be valid.
func NewRunner(action *Action, client keyspace.Client, strategy keyspace.Strategy, emitter *Emitter, opts RunnerOpts) (*Runner, error) {
	desc := action.Descriptor()
	builder, err := desc.Kind.Builder(desc.Params)
	if err != nil {
		return nil, err
	}
	if emitter == nil {
		emitter = NewEmitter(nil, 0, 0)
	}
	log := opts.Logger
	if log == nil {
		log = zap.L()
	}
	r := &Runner{
		action:   action,
		client:   client,
		strategy: strategy,
		builder:  builder,
		emitter:  emitter,
		opts:     opts,
		log: log.With(
			zap.String("action_id", action.ID()),
			zap.String("kind", string(desc.Kind)),
			zap.String("database", desc.DatabaseID)),
	}
	if opts.BatchesPerSecond > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(opts.BatchesPerSecond), 1)
	}
	return r, nil
}

// Action returns executed action.
func (r *Runner) Action() *Action {
	return r.action
}

// Run executes action to terminal status. It returns failure reason of Failed action.
// Cancelled ctx aborts action.
func (r *Runner) Run(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) || !r.action.start() {
		return ErrAlreadyStarted.New("action is already started").WithProperty(EKActionID, r.action.ID())
	}
	actionsRunning.Inc()
	defer actionsRunning.Dec()

	r.log.Info("bulk action started",
		zap.String("strategy", r.strategy.Name()),
		zap.String("match", r.action.desc.Filter.Match),
		zap.String("type", r.action.desc.Filter.Type))

	nodes, err := r.strategy.EnumerateNodes(r.client)
	if err != nil {
		r.log.Error("could not enumerate nodes", zap.Error(err))
		return r.finish(Failed, err)
	}

	progress := make([]*ScanProgress, len(nodes))
	for i, n := range nodes {
		progress[i] = NewScanProgress(n.Addr())
	}
	r.emitter.Push(r.action.setNodes(progress))

	var g errgroup.Group
	if r.opts.MaxParallelNodes > 0 {
		g.SetLimit(r.opts.MaxParallelNodes)
	}
	var failedNodes atomic.Int32
	for i, node := range nodes {
		node, p := node, progress[i]
		g.Go(func() error {
			if err := r.scanNode(ctx, node, p); err != nil {
				failedNodes.Add(1)
				nodeFailures.Inc()
				r.log.Warn("node failed", zap.String("node", node.Addr()), zap.Error(err))
				r.emitter.Push(r.action.update(func() { p.Fail(err) }))
			}
			return nil
		})
	}
	_ = g.Wait()

	switch {
	case r.action.Aborted():
		return r.finish(Aborted, nil)
	case int(failedNodes.Load()) == len(nodes):
		return r.finish(Failed, ErrNothingScanned.New("every node failed").WithProperty(EKActionID, r.action.ID()))
	}
	return r.finish(Completed, nil)
}

func (r *Runner) finish(status Status, err error) error {
	snap := r.action.finish(status, err)
	r.emitter.Flush(snap)
	actionsTotal.WithLabelValues(string(snap.Kind), string(status)).Inc()
	r.log.Info("bulk action finished",
		zap.String("status", string(status)),
		zap.Int64("processed", snap.Summary.Processed),
		zap.Int64("failed", snap.Summary.Failed),
		zap.Int64("duration_ms", snap.DurationMs))
	if status == Failed {
		return err
	}
	return nil
}

// scanNode walks single node until SCAN completes, action is aborted or node fails.
func (r *Runner) scanNode(ctx context.Context, node keyspace.Node, p *ScanProgress) error {
	sc := keyspace.NewScanner(node, r.action.desc.Filter)
	log := r.log.With(zap.String("node", node.Addr()))

	if r.stopped(ctx) {
		return nil
	}
	total, err := sc.Total(ctx)
	if err != nil {
		return err
	}
	r.emitter.Push(r.action.update(func() { p.SetTotal(total) }))
	if total == 0 {
		log.Debug("node is empty")
		r.emitter.Push(r.action.update(func() { p.SetCursor(0) }))
		return nil
	}

	kind := string(r.action.desc.Kind)
	for !sc.Done() {
		if r.stopped(ctx) {
			return nil
		}
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil || r.stopped(ctx) {
				r.action.Abort()
				return nil
			}
		}
		start := time.Now()
		batch, err := sc.Next(ctx)
		if err != nil {
			return err
		}

		var results []interface{}
		if len(batch.Keys) > 0 {
			names := make([][]byte, len(batch.Keys))
			for i, k := range batch.Keys {
				names[i] = k.Name
			}
			results = redis.SyncCtx{S: node}.SendMany(ctx, r.builder.PrepareCommands(names))
		}

		var ok, failed int64
		snap := r.action.update(func() {
			before := r.action.summary.Failed()
			r.action.summary.Fold(results)
			failed = r.action.summary.Failed() - before
			ok = int64(len(results)) - failed
			p.AddScanned(int64(batch.Scanned))
			p.SetCursor(batch.Cursor)
		})
		keysProcessed.WithLabelValues(kind, "succeeded").Add(float64(ok))
		keysProcessed.WithLabelValues(kind, "failed").Add(float64(failed))
		batchDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		log.Debug("batch processed",
			zap.Uint64("cursor", batch.Cursor),
			zap.Int("scanned", batch.Scanned),
			zap.Int("keys", len(batch.Keys)),
			zap.Int64("failed", failed))
		r.emitter.Push(snap)
	}
	return nil
}

// stopped reports whether node loop should stop. Cancelled context is treated as abort.
func (r *Runner) stopped(ctx context.Context) bool {
	if ctx.Err() != nil {
		r.action.Abort()
	}
	return r.action.Aborted()
}

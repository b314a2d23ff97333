package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/vk/mediagraph/internal/cachestore"
	"github.com/vk/mediagraph/internal/ctxlog"
	"github.com/vk/mediagraph/internal/graph"
	"github.com/vk/mediagraph/internal/hasher"
	"github.com/vk/mediagraph/internal/inmemorycache"
	"github.com/vk/mediagraph/internal/processor"
	"github.com/vk/mediagraph/internal/queue"
	"github.com/vk/mediagraph/internal/registry"
	"github.com/vk/mediagraph/internal/transform"
	"github.com/vk/mediagraph/internal/workerpool"
)

// Options configures a session's engine. Zero values get sensible
// defaults: an in-memory cache, the SHA-256 hasher, the bundled transform
// and processor sets, one drain loop, and a hardware-sized pool.
type Options struct {
	// Snapshots provides the editor's current node/edge view. Required.
	Snapshots graph.SnapshotProvider
	// Sink receives committed results. Optional.
	Sink graph.ResultSink

	Hasher     hasher.Hasher
	Cache      cachestore.Store
	Transforms *transform.Registry
	Processors *registry.Registry
	// OnCacheHit is forwarded to processors for preview re-rendering.
	OnCacheHit func(nodeID string, entry *cachestore.Entry)

	// Drains bounds concurrent task execution; <= 0 means 1.
	Drains int
	// PoolSize bounds the worker pool; <= 0 means hardware parallelism.
	PoolSize int
}

// Engine is one editor session's execution engine.
type Engine struct {
	opts  Options
	deps  *processor.Deps
	queue *queue.Queue
	pool  *workerpool.Pool
}

// New constructs and starts an engine. The context carries the session
// logger and cancels the whole session when done.
func New(ctx context.Context, opts Options) (*Engine, error) {
	if opts.Snapshots == nil {
		return nil, fmt.Errorf("engine: snapshot provider is required")
	}
	if opts.Hasher == nil {
		opts.Hasher = hasher.NewSHA256()
	}
	if opts.Cache == nil {
		opts.Cache = inmemorycache.New()
	}
	if opts.Transforms == nil {
		opts.Transforms = transform.Default()
	}
	if opts.Processors == nil {
		procs, err := registry.Default(opts.Transforms)
		if err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
		opts.Processors = procs
	}

	pool := workerpool.New(ctx, opts.PoolSize, opts.Transforms)
	e := &Engine{
		opts: opts,
		deps: &processor.Deps{
			Hasher:     opts.Hasher,
			Cache:      opts.Cache,
			Pool:       pool,
			OnCacheHit: opts.OnCacheHit,
		},
		queue: queue.New(ctx, opts.Drains),
		pool:  pool,
	}
	ctxlog.FromContext(ctx).Debug("Engine started.", "poolSize", pool.Size())
	return e, nil
}

// Process submits the node for (re)processing against the current
// snapshot. Any active or queued work for the node's downstream closure is
// cancelled first; the returned channel settles when this submission does.
func (e *Engine) Process(nodeID string) <-chan queue.Settled {
	snap := e.opts.Snapshots.Snapshot()
	return e.queue.Submit(nodeID, snap.Edges, e.work(nodeID))
}

// ProcessDownstream submits the node and then its downstream closure in
// dependency order. Used for "run from here" editor actions; each
// submission settles independently.
func (e *Engine) ProcessDownstream(nodeID string) []<-chan queue.Settled {
	snap := e.opts.Snapshots.Snapshot()
	settled := []<-chan queue.Settled{e.queue.Submit(nodeID, snap.Edges, e.work(nodeID))}
	for _, id := range snap.OrderedDownstream(nodeID) {
		// Downstream members must not re-cancel each other, so they are
		// enqueued without closure invalidation edges.
		settled = append(settled, e.queue.Submit(id, nil, e.work(id)))
	}
	return settled
}

// Stop cancels the node's active and queued work. Wired to the editor's
// "stop generation" action.
func (e *Engine) Stop(nodeID string) {
	e.queue.CancelNode(nodeID)
}

// StopAll cancels everything in flight.
func (e *Engine) StopAll() {
	e.queue.ClearAll()
}

// Cleanup evicts cache entries older than maxAge, returning the count.
func (e *Engine) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	return e.opts.Cache.Cleanup(ctx, maxAge)
}

// Close tears the session down: clears the queue, terminates the pool,
// and closes the cache store.
func (e *Engine) Close() error {
	e.queue.Close()
	e.pool.Terminate()
	return e.opts.Cache.Close()
}

// work builds the queue work item for one node: resolve the node and its
// upstream results from a fresh snapshot, run its processor, apply the
// committed result.
func (e *Engine) work(nodeID string) queue.Work {
	return func(ctx context.Context) *queue.Outcome {
		logger := ctxlog.FromContext(ctx).With("nodeID", nodeID)

		snap := e.opts.Snapshots.Snapshot()
		node := snap.Node(nodeID)
		if node == nil {
			return queue.Failure(fmt.Sprintf("node %s not in snapshot", nodeID))
		}

		proc, err := e.opts.Processors.Get(node.Type)
		if err != nil {
			return queue.Failure(err.Error())
		}

		outcome := proc.Process(ctx, e.deps, processor.Request{
			Node:   node,
			Inputs: resolveInputs(snap, nodeID),
		})

		if outcome != nil && outcome.Success && outcome.NewResult != nil {
			// Results are applied through the sink, never by mutating the
			// snapshot's node in place; the editor store owns the graph.
			if e.opts.Sink != nil {
				e.opts.Sink.ApplyResult(nodeID, outcome.NewResult)
			}
			logger.Debug("Result committed.")
		}
		return outcome
	}
}

// resolveInputs maps each incoming edge's target handle to the source
// node's committed result. Unconnected or result-less sources resolve to
// absent, which processors report as input errors.
func resolveInputs(snap graph.Snapshot, nodeID string) map[string]*graph.Result {
	inputs := make(map[string]*graph.Result)
	for _, edge := range snap.Incoming(nodeID) {
		source := snap.Node(edge.Source)
		if source == nil || source.Result == nil {
			continue
		}
		handle := edge.TargetHandle
		if handle == "" {
			handle = "input"
		}
		inputs[handle] = source.Result
	}
	return inputs
}

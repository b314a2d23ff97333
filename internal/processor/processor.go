// Package processor implements the per-node-type processing contract: check
// the cache, compute on a miss, persist the result.
//
// Every processor follows the same step order. Abort fast if the token is
// already cancelled; resolve the upstream value (a missing required input
// clears the node's stale cache entry and reports an input error); build
// the memoization key from upstream hash + config hash (+ prior cache hash
// for chained node types); return the cached result on an exact hit,
// touching its age; otherwise run the transform with abort checks at each
// major step and write the result back.
//
// Ordinary failures are returned inside the outcome, never thrown past this
// boundary; the queue's error channel stays reserved for cancellation.
package processor

import (
	"context"
	"fmt"

	"github.com/vk/mediagraph/internal/cachestore"
	"github.com/vk/mediagraph/internal/ctxlog"
	"github.com/vk/mediagraph/internal/graph"
	"github.com/vk/mediagraph/internal/hasher"
	"github.com/vk/mediagraph/internal/queue"
	"github.com/vk/mediagraph/internal/workerpool"
)

// Deps are the session services a processor works against. One value is
// shared by every processor in a session.
type Deps struct {
	Hasher hasher.Hasher
	Cache  cachestore.Store
	Pool   *workerpool.Pool
	// OnCacheHit, when set, lets the editor re-render a preview surface
	// from the cached payload without recomputation.
	OnCacheHit func(nodeID string, entry *cachestore.Entry)
}

// Request is one processing invocation: the node as the snapshot saw it and
// its resolved upstream results keyed by target handle.
type Request struct {
	Node   *graph.Node
	Inputs map[string]*graph.Result
}

// Processor computes one node type.
type Processor interface {
	// Type is the node type this processor handles.
	Type() string
	// Process runs the contract. It returns ordinary failures inside the
	// outcome; cancellation surfaces through ctx and the queue.
	Process(ctx context.Context, deps *Deps, req Request) *queue.Outcome
}

// plan parameterizes the shared contract steps for one node type.
type plan struct {
	nodeType     string
	requireInput bool
	// chainPrior folds the prior cache entry's content hash into the
	// memoization key, for node types whose output builds on their own
	// previous result (e.g. inline-edited text).
	chainPrior bool
	compute    func(ctx context.Context, deps *Deps, input *graph.Result, node *graph.Node) (*graph.Result, error)
}

// execute runs the shared contract for one plan.
func execute(ctx context.Context, deps *Deps, req Request, s plan) *queue.Outcome {
	logger := ctxlog.FromContext(ctx).With("nodeID", req.Node.ID, "type", s.nodeType)

	if err := ctx.Err(); err != nil {
		return queue.Failure(err.Error())
	}

	input := firstInput(req.Inputs)
	if input == nil && s.requireInput {
		// The upstream connection is gone; a stale cached result must not
		// survive the edit that broke it.
		if err := deps.Cache.DeleteForNode(ctx, req.Node.ID); err != nil {
			return queue.Failure(fmt.Sprintf("cache cleanup: %v", err))
		}
		logger.Debug("No upstream input, cleared stale cache entry.")
		return queue.Failure("no input")
	}

	inputHash, err := memoKey(ctx, deps, req, s, input)
	if err != nil {
		return queue.Failure(err.Error())
	}

	cached, err := deps.Cache.Get(ctx, req.Node.ID, inputHash)
	if err != nil {
		return queue.Failure(fmt.Sprintf("cache read: %v", err))
	}
	if cached != nil {
		if err := deps.Cache.Touch(ctx, req.Node.ID); err != nil {
			return queue.Failure(fmt.Sprintf("cache touch: %v", err))
		}
		if deps.OnCacheHit != nil {
			deps.OnCacheHit(req.Node.ID, cached)
		}
		logger.Debug("Cache hit.", "inputHash", inputHash)
		return &queue.Outcome{Success: true, NewResult: cached.Result}
	}

	newResult, err := s.compute(ctx, deps, input, req.Node)
	if err != nil {
		if ctx.Err() != nil {
			// Cooperative cancellation observed mid-compute; the queue
			// discards this outcome.
			return queue.Failure(ctx.Err().Error())
		}
		logger.Debug("Transform failed.", "error", err)
		return queue.Failure(err.Error())
	}
	if err := ctx.Err(); err != nil {
		return queue.Failure(err.Error())
	}

	contentHash, err := deps.Hasher.Hash(newResult)
	if err != nil {
		return queue.Failure(fmt.Sprintf("hash result: %v", err))
	}
	entry := cachestore.Entry{
		ID:        req.Node.ID,
		Name:      req.Node.Title,
		Hash:      contentHash,
		InputHash: inputHash,
		Result:    newResult,
	}
	if err := deps.Cache.Put(ctx, entry); err != nil {
		return queue.Failure(fmt.Sprintf("cache write: %v", err))
	}
	logger.Debug("Computed and cached.", "inputHash", inputHash, "hash", contentHash)
	return &queue.Outcome{Success: true, NewResult: newResult}
}

// memoKey builds the cache memoization key: upstream hash + config hash,
// plus the prior entry's content hash for chained node types.
func memoKey(ctx context.Context, deps *Deps, req Request, s plan, input *graph.Result) (string, error) {
	sourceHash := ""
	if input != nil {
		h, err := deps.Hasher.Hash(input)
		if err != nil {
			return "", fmt.Errorf("hash input: %w", err)
		}
		sourceHash = h
	}

	configHash, err := deps.Hasher.Hash(req.Node.Config)
	if err != nil {
		return "", fmt.Errorf("hash config: %w", err)
	}

	// For chained node types the committed result can be edited directly in
	// the UI. When it has drifted from the cached content, its hash joins
	// the key so the stale entry cannot hit; when they agree the segment
	// stays empty, keeping reprocessing idempotent.
	priorHash := ""
	if s.chainPrior && req.Node.Result != nil {
		prior, err := deps.Cache.GetForNode(ctx, req.Node.ID)
		if err != nil {
			return "", fmt.Errorf("cache read: %w", err)
		}
		if prior != nil {
			resultHash, err := deps.Hasher.Hash(req.Node.Result)
			if err != nil {
				return "", fmt.Errorf("hash prior result: %w", err)
			}
			if resultHash != prior.Hash {
				priorHash = resultHash
			}
		}
	}
	return hasher.InputHash(sourceHash, configHash, priorHash), nil
}

// firstInput picks the upstream result: the "input" handle when present,
// else any single connected handle.
func firstInput(inputs map[string]*graph.Result) *graph.Result {
	if r, ok := inputs["input"]; ok && r != nil {
		return r
	}
	for _, r := range inputs {
		if r != nil {
			return r
		}
	}
	return nil
}

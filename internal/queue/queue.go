package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vk/mediagraph/internal/ctxlog"
	"github.com/vk/mediagraph/internal/graph"
)

// ErrCancelled rejects the promise of a task that was superseded by a newer
// submission or stopped explicitly. It is expected control flow, never a
// user-visible failure.
var ErrCancelled = errors.New("queue: task cancelled")

// Queue is the per-session processing queue. One instance per editor
// session; construct with New and pass by reference.
type Queue struct {
	root   context.Context
	stop   context.CancelFunc
	drains int

	mu      sync.Mutex
	pending []*task          // FIFO of tasks not yet claimed by a drain
	tasks   map[string]*task // queued or active task per node ID

	wake chan struct{}
	wg   sync.WaitGroup
}

// New creates a queue and starts its drain loops. drains bounds how many
// tasks run concurrently; 1 preserves strict FIFO execution and is the
// default for anything <= 0. The context carries the session logger and
// tears the queue down when cancelled.
func New(ctx context.Context, drains int) *Queue {
	if drains <= 0 {
		drains = 1
	}
	root, stop := context.WithCancel(ctx)
	q := &Queue{
		root:   root,
		stop:   stop,
		drains: drains,
		tasks:  make(map[string]*task),
		wake:   make(chan struct{}, 1),
	}
	q.wg.Add(drains)
	for i := 0; i < drains; i++ {
		go q.drain(i)
	}
	return q
}

// Submit cancels every active or queued task in the downstream closure of
// nodeID (the node itself included), then enqueues work under a fresh
// cancellation token. The returned channel settles exactly once.
func (q *Queue) Submit(nodeID string, edges []graph.Edge, work Work) <-chan Settled {
	logger := ctxlog.FromContext(q.root)

	closure := graph.DownstreamOf(nodeID, edges)
	closure[nodeID] = struct{}{}

	q.mu.Lock()
	for id := range closure {
		q.cancelLocked(id)
	}
	t := newTask(q.root, nodeID, work)
	q.tasks[nodeID] = t
	q.pending = append(q.pending, t)
	q.mu.Unlock()

	logger.Debug("Task submitted.", "nodeID", nodeID, "invalidated", len(closure))
	q.kick()
	return t.done
}

// CancelNode aborts the node's active task and rejects its queued task, if
// any. Idempotent; also used by UI stop actions.
func (q *Queue) CancelNode(nodeID string) {
	q.mu.Lock()
	q.cancelLocked(nodeID)
	q.mu.Unlock()
}

// ClearAll aborts every active and queued task. Used on session teardown.
func (q *Queue) ClearAll() {
	q.mu.Lock()
	for id := range q.tasks {
		q.cancelLocked(id)
	}
	q.mu.Unlock()
}

// Close tears down the queue: clears all tasks and stops the drain loops.
func (q *Queue) Close() {
	q.ClearAll()
	q.stop()
	q.wg.Wait()
}

// cancelLocked aborts the task registered for nodeID. A still-queued task
// is removed and rejected immediately; an active task keeps running until
// it observes its context, and the drain path settles it as cancelled.
// Callers hold q.mu.
func (q *Queue) cancelLocked(nodeID string) {
	t, ok := q.tasks[nodeID]
	if !ok {
		return
	}
	t.cancel()
	if !t.started {
		for i, queued := range q.pending {
			if queued == t {
				q.pending = append(q.pending[:i], q.pending[i+1:]...)
				break
			}
		}
		t.settle(Settled{Err: ErrCancelled})
	}
	delete(q.tasks, nodeID)
}

// kick nudges an idle drain loop. The buffer makes it a no-op when a wake
// is already pending.
func (q *Queue) kick() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// drain is one processing loop. It claims tasks strictly in FIFO order and
// isolates each one so no work item can kill the loop.
func (q *Queue) drain(id int) {
	defer q.wg.Done()
	logger := ctxlog.FromContext(q.root).With("drain", id)
	logger.Debug("Drain loop started.")

	for {
		select {
		case <-q.root.Done():
			logger.Debug("Drain loop stopped.")
			return
		case <-q.wake:
		}
		for {
			t := q.claim()
			if t == nil {
				break
			}
			q.run(t)
		}
	}
}

// claim pops the head of the FIFO, marking it started.
func (q *Queue) claim() *task {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	t := q.pending[0]
	q.pending = q.pending[1:]
	t.started = true
	return t
}

// run executes one claimed task. The abort signal is checked both before
// invocation and after completion: a task may finish "successfully" after
// it was logically cancelled, and that result must be discarded.
func (q *Queue) run(t *task) {
	logger := ctxlog.FromContext(q.root).With("nodeID", t.nodeID)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Work item panicked.", "panic", r)
			t.settle(Settled{Err: fmt.Errorf("queue: work for %s panicked: %v", t.nodeID, r)})
		}
		t.cancel()
		q.mu.Lock()
		if q.tasks[t.nodeID] == t {
			delete(q.tasks, t.nodeID)
		}
		q.mu.Unlock()
	}()

	if t.ctx.Err() != nil {
		logger.Debug("Task cancelled before start.")
		t.settle(Settled{Err: ErrCancelled})
		return
	}

	outcome := t.work(t.ctx)

	if t.ctx.Err() != nil {
		logger.Debug("Task cancelled during execution, result discarded.")
		t.settle(Settled{Err: ErrCancelled})
		return
	}
	if outcome == nil {
		outcome = Failure("work returned no outcome")
	}
	if !outcome.Success {
		logger.Debug("Task finished with failure outcome.", "error", outcome.Error)
	}
	t.settle(Settled{Outcome: outcome})
}

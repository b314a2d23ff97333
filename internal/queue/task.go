package queue

import (
	"context"
	"sync"

	"github.com/vk/mediagraph/internal/graph"
)

// Outcome is the ordinary (non-exceptional) verdict of one work item.
// Failures travel inside the outcome; the promise's error channel is
// reserved for cancellation and drain-level faults.
type Outcome struct {
	Success   bool
	Error     string
	NewResult *graph.Result
}

// Failure builds a failed outcome from an error message.
func Failure(msg string) *Outcome {
	return &Outcome{Success: false, Error: msg}
}

// Work is the unit of processing submitted for a node. The context is the
// task's cancellation signal; long-running work polls it at natural
// checkpoints.
type Work func(ctx context.Context) *Outcome

// Settled is the final state of a submitted task. Err is ErrCancelled when
// the task was superseded or stopped; Outcome carries ordinary results and
// failures.
type Settled struct {
	Outcome *Outcome
	Err     error
}

// task tracks one queued-or-active work item. Settling is idempotent so
// the cancel path and the drain path can race safely.
type task struct {
	nodeID string
	work   Work

	ctx    context.Context
	cancel context.CancelFunc

	// started flips when a drain claims the task; a started task settles
	// on the drain path only.
	started bool

	once sync.Once
	done chan Settled // buffered, settle never blocks
}

func newTask(parent context.Context, nodeID string, work Work) *task {
	ctx, cancel := context.WithCancel(parent)
	return &task{
		nodeID: nodeID,
		work:   work,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan Settled, 1),
	}
}

func (t *task) settle(s Settled) {
	t.once.Do(func() {
		t.done <- s
		close(t.done)
	})
}

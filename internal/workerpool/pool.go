// Package workerpool dispatches CPU-bound transform work to a fixed set of
// background workers.
//
// The dispatch protocol mirrors a request/response channel between threads:
// every task carries a unique correlation ID, workers answer on a shared
// response channel, and the dispatcher matches completions back to their
// promises even when they arrive out of order. Keep the correlation ID even
// if the transport changes (OS processes, RPC); the pool's logic does not
// care what carries the envelope.
//
// Dispatch policy: a FIFO pending queue plus an idle bitmap. On every
// submission and on every completion the dispatcher hands the head of the
// queue to the first idle worker. A worker that reports an error stays in
// the pool; only the failed task's promise is rejected.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/google/uuid"

	"github.com/vk/mediagraph/internal/ctxlog"
	"github.com/vk/mediagraph/internal/transform"
)

// ErrTerminated rejects submissions after Terminate.
var ErrTerminated = errors.New("workerpool: pool terminated")

// Task is one unit of transform work.
type Task struct {
	// Op names the transform operation to run.
	Op string
	// Payload is the raw input (image bytes, UTF-8 text, ...).
	Payload []byte
	// Params carries the node's config values.
	Params map[string]any
}

// envelope is the wire format between dispatcher and worker.
type envelope struct {
	id   string
	task Task
}

// response is the worker's answer, correlated by id.
type response struct {
	id     string
	worker int
	data   []byte
	err    error
}

// request pairs a task with the promise awaiting it.
type request struct {
	id    string
	task  Task
	reply chan reply
}

type reply struct {
	data []byte
	err  error
}

// Pool is a fixed-size worker pool. Construct with New; one per session.
type Pool struct {
	root   context.Context
	stop   context.CancelFunc
	size   int
	submit chan *request
}

// New starts size workers (defaulting to the available hardware
// parallelism) executing operations from the given registry. Each worker
// initializes once against the shared registry before accepting tasks.
func New(ctx context.Context, size int, ops *transform.Registry) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	root, stop := context.WithCancel(ctx)
	p := &Pool{
		root:   root,
		stop:   stop,
		size:   size,
		submit: make(chan *request),
	}

	responses := make(chan response, size)
	inboxes := make([]chan envelope, size)
	for i := 0; i < size; i++ {
		inboxes[i] = make(chan envelope, 1)
		go p.worker(i, ops, inboxes[i], responses)
	}
	go p.dispatch(inboxes, responses)
	return p
}

// Size reports the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// Process runs the task on some worker and waits for its result. Honors
// ctx: a cancelled caller stops waiting immediately and the eventual
// completion is dropped on the floor.
func (p *Pool) Process(ctx context.Context, task Task) ([]byte, error) {
	req := &request{
		id:    uuid.NewString(),
		task:  task,
		reply: make(chan reply, 1),
	}

	select {
	case p.submit <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.root.Done():
		return nil, ErrTerminated
	}

	select {
	case r := <-req.reply:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.root.Done():
		return nil, ErrTerminated
	}
}

// Terminate stops the dispatcher and all workers. In-flight promises are
// abandoned; callers are expected to have cancelled via the queue first.
func (p *Pool) Terminate() {
	p.stop()
}

// dispatch owns the pending FIFO, the idle bitmap, and the correlation
// table. It is the only goroutine touching them, so no locks are needed.
func (p *Pool) dispatch(inboxes []chan envelope, responses chan response) {
	logger := ctxlog.FromContext(p.root)
	idle := make([]bool, p.size)
	for i := range idle {
		idle[i] = true
	}
	var pending []*request
	waiting := make(map[string]*request, p.size)

	feed := func() {
		for len(pending) > 0 {
			worker := -1
			for i, free := range idle {
				if free {
					worker = i
					break
				}
			}
			if worker == -1 {
				return
			}
			req := pending[0]
			pending = pending[1:]
			idle[worker] = false
			waiting[req.id] = req
			inboxes[worker] <- envelope{id: req.id, task: req.task}
		}
	}

	for {
		select {
		case <-p.root.Done():
			logger.Debug("Dispatcher stopped.", "abandoned", len(waiting)+len(pending))
			return
		case req := <-p.submit:
			pending = append(pending, req)
			feed()
		case resp := <-responses:
			idle[resp.worker] = true
			if req, ok := waiting[resp.id]; ok {
				delete(waiting, resp.id)
				req.reply <- reply{data: resp.data, err: resp.err}
			} else {
				// Out-of-protocol response; nothing to correlate.
				logger.Warn("Dropping uncorrelated worker response.", "taskID", resp.id)
			}
			feed()
		}
	}
}

// worker executes envelopes one at a time. Operation lookup happens against
// the registry captured at startup; a failed task is reported and the
// worker keeps serving.
func (p *Pool) worker(id int, ops *transform.Registry, inbox chan envelope, responses chan response) {
	logger := ctxlog.FromContext(p.root).With("worker", id)
	logger.Debug("Worker started.")

	for {
		select {
		case <-p.root.Done():
			logger.Debug("Worker stopped.")
			return
		case env := <-inbox:
			data, err := p.execute(env.task, ops)
			select {
			case responses <- response{id: env.id, worker: id, data: data, err: err}:
			case <-p.root.Done():
				return
			}
		}
	}
}

// execute runs one task, converting panics into task errors so a broken
// transform cannot take its worker down.
func (p *Pool) execute(task Task, ops *transform.Registry) (data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("workerpool: operation %q panicked: %v", task.Op, r)
		}
	}()

	fn, err := ops.Get(task.Op)
	if err != nil {
		return nil, err
	}
	return fn(p.root, task.Payload, task.Params)
}

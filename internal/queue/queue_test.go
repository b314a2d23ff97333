package queue

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/mediagraph/internal/graph"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	q := New(context.Background(), 1)
	t.Cleanup(q.Close)
	return q
}

// waitSettled receives a settlement with a test deadline so a broken queue
// fails fast instead of hanging the suite.
func waitSettled(t *testing.T, done <-chan Settled) Settled {
	t.Helper()
	select {
	case s := <-done:
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("task never settled")
		return Settled{}
	}
}

func succeedWith(text string) Work {
	return func(ctx context.Context) *Outcome {
		return &Outcome{
			Success:   true,
			NewResult: &graph.Result{Items: []graph.Item{{Kind: graph.KindText, Text: text}}},
		}
	}
}

// blockUntilCancelled parks the drain loop on this task until its token is
// aborted, signalling on entered once it is running.
func blockUntilCancelled(entered chan struct{}) Work {
	return func(ctx context.Context) *Outcome {
		close(entered)
		<-ctx.Done()
		return &Outcome{Success: true}
	}
}

func TestSubmitSettlesWithOutcome(t *testing.T) {
	q := newTestQueue(t)

	s := waitSettled(t, q.Submit("a", nil, succeedWith("done")))
	require.NoError(t, s.Err)
	require.NotNil(t, s.Outcome)
	assert.True(t, s.Outcome.Success)
	assert.Equal(t, "done", s.Outcome.NewResult.First().Text)
}

func TestFailureOutcomeIsNotAnError(t *testing.T) {
	q := newTestQueue(t)

	s := waitSettled(t, q.Submit("a", nil, func(ctx context.Context) *Outcome {
		return Failure("no input")
	}))
	require.NoError(t, s.Err)
	require.NotNil(t, s.Outcome)
	assert.False(t, s.Outcome.Success)
	assert.Equal(t, "no input", s.Outcome.Error)
}

func TestLastSubmissionWinsWhileActive(t *testing.T) {
	q := newTestQueue(t)
	entered := make(chan struct{})

	first := q.Submit("a", nil, blockUntilCancelled(entered))
	<-entered // first task is now active

	second := q.Submit("a", nil, succeedWith("newer"))

	s := waitSettled(t, first)
	assert.ErrorIs(t, s.Err, ErrCancelled)
	assert.Nil(t, s.Outcome, "a result finished after cancellation must be discarded")

	s = waitSettled(t, second)
	require.NoError(t, s.Err)
	assert.Equal(t, "newer", s.Outcome.NewResult.First().Text)
}

func TestQueuedTaskRejectedWithoutRunning(t *testing.T) {
	q := newTestQueue(t)
	entered := make(chan struct{})
	var ran atomic.Int32

	blocker := q.Submit("blocker", nil, blockUntilCancelled(entered))
	<-entered

	// Stale edit sits in the queue behind the blocker; the newer edit for
	// the same node must reject it before it ever starts.
	stale := q.Submit("a", nil, func(ctx context.Context) *Outcome {
		ran.Add(1)
		return &Outcome{Success: true}
	})
	fresh := q.Submit("a", nil, succeedWith("fresh"))

	s := waitSettled(t, stale)
	assert.ErrorIs(t, s.Err, ErrCancelled)

	q.CancelNode("blocker")
	waitSettled(t, blocker)

	s = waitSettled(t, fresh)
	require.NoError(t, s.Err)
	assert.Equal(t, "fresh", s.Outcome.NewResult.First().Text)
	assert.Equal(t, int32(0), ran.Load(), "superseded task must never run")
}

func TestSubmitCancelsDownstreamClosure(t *testing.T) {
	q := newTestQueue(t)
	edges := []graph.Edge{
		{Source: "a", Target: "b"},
		{Source: "b", Target: "c"},
	}

	entered := make(chan struct{})
	bTask := q.Submit("b", edges, blockUntilCancelled(entered))
	<-entered // b in flight
	cTask := q.Submit("c", edges, succeedWith("stale")) // queued behind b

	// Editing a invalidates b and c before a's own task starts.
	aTask := q.Submit("a", edges, succeedWith("fresh root"))

	s := waitSettled(t, bTask)
	assert.ErrorIs(t, s.Err, ErrCancelled)
	s = waitSettled(t, cTask)
	assert.ErrorIs(t, s.Err, ErrCancelled)

	s = waitSettled(t, aTask)
	require.NoError(t, s.Err)
	assert.Equal(t, "fresh root", s.Outcome.NewResult.First().Text)
}

func TestCancelNodeIsIdempotent(t *testing.T) {
	q := newTestQueue(t)

	q.CancelNode("nothing-queued")

	entered := make(chan struct{})
	done := q.Submit("a", nil, blockUntilCancelled(entered))
	<-entered

	q.CancelNode("a")
	q.CancelNode("a")

	s := waitSettled(t, done)
	assert.ErrorIs(t, s.Err, ErrCancelled)
}

func TestClearAll(t *testing.T) {
	q := newTestQueue(t)
	entered := make(chan struct{})

	active := q.Submit("a", nil, blockUntilCancelled(entered))
	<-entered
	queued := q.Submit("b", nil, succeedWith("never"))

	q.ClearAll()

	s := waitSettled(t, active)
	assert.ErrorIs(t, s.Err, ErrCancelled)
	s = waitSettled(t, queued)
	assert.ErrorIs(t, s.Err, ErrCancelled)
}

func TestPanicIsolation(t *testing.T) {
	q := newTestQueue(t)

	panicked := q.Submit("a", nil, func(ctx context.Context) *Outcome {
		panic("transform exploded")
	})
	s := waitSettled(t, panicked)
	require.Error(t, s.Err)
	assert.NotErrorIs(t, s.Err, ErrCancelled)

	// The drain loop survived and keeps processing.
	s = waitSettled(t, q.Submit("b", nil, succeedWith("alive")))
	require.NoError(t, s.Err)
	assert.Equal(t, "alive", s.Outcome.NewResult.First().Text)
}

func TestNilOutcomeBecomesFailure(t *testing.T) {
	q := newTestQueue(t)

	s := waitSettled(t, q.Submit("a", nil, func(ctx context.Context) *Outcome {
		return nil
	}))
	require.NoError(t, s.Err)
	require.NotNil(t, s.Outcome)
	assert.False(t, s.Outcome.Success)
}

func TestFIFOOrderAcrossNodes(t *testing.T) {
	q := newTestQueue(t)
	entered := make(chan struct{})
	var order []string
	record := func(id string) Work {
		return func(ctx context.Context) *Outcome {
			order = append(order, id) // single drain, no race
			return &Outcome{Success: true}
		}
	}

	blocker := q.Submit("blocker", nil, blockUntilCancelled(entered))
	<-entered
	first := q.Submit("a", nil, record("a"))
	second := q.Submit("b", nil, record("b"))
	third := q.Submit("c", nil, record("c"))
	q.CancelNode("blocker")

	waitSettled(t, blocker)
	waitSettled(t, first)
	waitSettled(t, second)
	waitSettled(t, third)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

package processor

import (
	"context"
	"fmt"

	"github.com/vk/mediagraph/internal/graph"
	"github.com/vk/mediagraph/internal/queue"
	"github.com/vk/mediagraph/internal/transform"
)

// Text processes text node types. Text transforms are cheap enough to run
// on the orchestration goroutine, so they bypass the worker pool. Text
// results can be edited inline in the editor, which is why this processor
// chains the prior cache hash into its memoization key.
type Text struct {
	nodeType string
	fn       transform.Func
}

// NewText creates a processor for one text node type, resolving its
// transform from the registry.
func NewText(nodeType string, ops *transform.Registry) (*Text, error) {
	fn, err := ops.Get(nodeType)
	if err != nil {
		return nil, fmt.Errorf("processor: %w", err)
	}
	return &Text{nodeType: nodeType, fn: fn}, nil
}

// Type implements Processor.
func (p *Text) Type() string { return p.nodeType }

// Process implements Processor.
func (p *Text) Process(ctx context.Context, deps *Deps, req Request) *queue.Outcome {
	return execute(ctx, deps, req, plan{
		nodeType:     p.nodeType,
		requireInput: true,
		chainPrior:   true,
		compute:      p.compute,
	})
}

func (p *Text) compute(ctx context.Context, deps *Deps, input *graph.Result, node *graph.Node) (*graph.Result, error) {
	item := input.First()
	if item == nil || item.Kind != graph.KindText {
		return nil, fmt.Errorf("text: upstream output is not text")
	}

	out, err := p.fn(ctx, []byte(item.Text), node.Config)
	if err != nil {
		return nil, err
	}
	return &graph.Result{Items: []graph.Item{{Kind: graph.KindText, Text: string(out)}}}, nil
}

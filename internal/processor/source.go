package processor

import (
	"context"
	"fmt"

	"github.com/vk/mediagraph/internal/graph"
	"github.com/vk/mediagraph/internal/queue"
)

// TypeSource is the node type for graph entry points: uploaded files,
// inline text prompts, pasted data-URLs. Source nodes have no upstream;
// their result is derived entirely from config.
const TypeSource = "media.source"

// Source materializes a node's config into its first result.
type Source struct{}

// NewSource creates the source-node processor.
func NewSource() *Source {
	return &Source{}
}

// Type implements Processor.
func (p *Source) Type() string { return TypeSource }

// Process implements Processor.
func (p *Source) Process(ctx context.Context, deps *Deps, req Request) *queue.Outcome {
	return execute(ctx, deps, req, plan{
		nodeType:     TypeSource,
		requireInput: false,
		compute:      sourceCompute,
	})
}

func sourceCompute(ctx context.Context, deps *Deps, _ *graph.Result, node *graph.Node) (*graph.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if text, ok := node.Config["text"].(string); ok {
		return &graph.Result{Items: []graph.Item{{Kind: graph.KindText, Text: text}}}, nil
	}

	item := graph.Item{Kind: graph.KindImage}
	if file, ok := node.Config["file"].(map[string]any); ok {
		id, _ := file["id"].(string)
		if id == "" {
			return nil, fmt.Errorf("source: file reference without id")
		}
		name, _ := file["name"].(string)
		item.File = &graph.FileRef{ID: id, Name: name}
	}
	if data, ok := node.Config["data"].(string); ok {
		item.Data = data
	}
	if item.File == nil && item.Data == "" {
		return nil, fmt.Errorf("source: config has neither text, file, nor data")
	}
	return &graph.Result{Items: []graph.Item{item}}, nil
}

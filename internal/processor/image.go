package processor

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/vk/mediagraph/internal/graph"
	"github.com/vk/mediagraph/internal/queue"
	"github.com/vk/mediagraph/internal/workerpool"
)

// Image processes image node types by offloading the pixel work to the
// worker pool. The abort signal is polled at each major step: payload
// load, pool round-trip, and re-encode.
type Image struct {
	nodeType string
}

// NewImage creates a processor for one image node type. The node type is
// also the pool operation name.
func NewImage(nodeType string) *Image {
	return &Image{nodeType: nodeType}
}

// Type implements Processor.
func (p *Image) Type() string { return p.nodeType }

// Process implements Processor.
func (p *Image) Process(ctx context.Context, deps *Deps, req Request) *queue.Outcome {
	return execute(ctx, deps, req, plan{
		nodeType:     p.nodeType,
		requireInput: true,
		compute:      p.compute,
	})
}

func (p *Image) compute(ctx context.Context, deps *Deps, input *graph.Result, node *graph.Node) (*graph.Result, error) {
	item := input.First()
	if item == nil || item.Kind != graph.KindImage {
		return nil, fmt.Errorf("image: upstream output is not an image")
	}
	if item.Data == "" {
		return nil, fmt.Errorf("image: upstream image has no data payload")
	}

	// Load.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mime, payload, err := decodeDataURL(item.Data)
	if err != nil {
		return nil, err
	}

	// Compute, off-thread.
	out, err := deps.Pool.Process(ctx, workerpool.Task{
		Op:      p.nodeType,
		Payload: payload,
		Params:  node.Config,
	})
	if err != nil {
		return nil, err
	}

	// Encode.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &graph.Result{Items: []graph.Item{{
		Kind: graph.KindImage,
		Data: encodeDataURL(mime, out),
		File: item.File,
	}}}, nil
}

// decodeDataURL splits a base64 data-URL into its MIME type and raw bytes.
func decodeDataURL(s string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, fmt.Errorf("image: payload is not a data-URL")
	}
	meta, encoded, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("image: malformed data-URL")
	}
	mime, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return "", nil, fmt.Errorf("image: data-URL is not base64-encoded")
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", nil, fmt.Errorf("image: decode data-URL: %w", err)
	}
	return mime, data, nil
}

// encodeDataURL is the inverse of decodeDataURL.
func encodeDataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

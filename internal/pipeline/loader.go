// Package pipeline loads node-graph snapshots from HCL files. Headless
// runs and tests use it in place of the editor's reactive store; the
// loaded graph is served through a graphstore.Store, which implements the
// engine's snapshot and sink interfaces.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/vk/mediagraph/internal/ctxlog"
	"github.com/vk/mediagraph/internal/fsutil"
	"github.com/vk/mediagraph/internal/graph"
	"github.com/vk/mediagraph/internal/graphstore"
)

// Load reads every .hcl file under path (or path itself when it is a
// file) and assembles the declared nodes and edges into a graph store.
func Load(ctx context.Context, path string) (*graphstore.Store, error) {
	logger := ctxlog.FromContext(ctx)

	files, err := fsutil.FindFilesByExtension(path, ".hcl")
	if err != nil {
		return nil, fmt.Errorf("pipeline: discovering files under %s: %w", path, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("pipeline: no .hcl files under %s", path)
	}
	logger.Debug("Discovered pipeline files.", "count", len(files))

	parser := hclparse.NewParser()
	store := graphstore.New()
	var edges []*edgeBlock

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("pipeline: parsing %s: %w", file, diags)
		}

		var root fileRoot
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
			return nil, fmt.Errorf("pipeline: decoding %s: %w", file, diags)
		}

		for _, block := range root.Nodes {
			node, err := translateNode(block)
			if err != nil {
				return nil, fmt.Errorf("pipeline: in %s: %w", file, err)
			}
			if err := store.AddNode(node); err != nil {
				return nil, fmt.Errorf("pipeline: in %s: %w", file, err)
			}
		}
		edges = append(edges, root.Edges...)
	}

	// Edges are wired after all files are read so cross-file references
	// and forward references both resolve.
	for _, block := range edges {
		edge, err := translateEdge(block)
		if err != nil {
			return nil, fmt.Errorf("pipeline: %w", err)
		}
		if err := store.AddEdge(edge); err != nil {
			return nil, fmt.Errorf("pipeline: %w", err)
		}
	}

	snap := store.Snapshot()
	logger.Debug("Pipeline loaded.", "nodes", len(snap.Nodes), "edges", len(snap.Edges))
	return store, nil
}

func translateNode(block *nodeBlock) (*graph.Node, error) {
	node := &graph.Node{
		ID:    block.Name,
		Type:  block.Type,
		Title: block.Title,
	}
	if block.Config != nil {
		attrs, diags := block.Config.Body.JustAttributes()
		if diags.HasErrors() {
			return nil, fmt.Errorf("node %q config: %w", block.Name, diags)
		}
		config := make(map[string]any, len(attrs))
		for name, attr := range attrs {
			val, diags := attr.Expr.Value(nil)
			if diags.HasErrors() {
				return nil, fmt.Errorf("node %q config attribute %q: %w", block.Name, name, diags)
			}
			native, err := ctyToNative(val)
			if err != nil {
				return nil, fmt.Errorf("node %q config attribute %q: %w", block.Name, name, err)
			}
			config[name] = native
		}
		node.Config = config
	}
	return node, nil
}

func translateEdge(block *edgeBlock) (graph.Edge, error) {
	source, sourceHandle, err := splitEndpoint(block.Source)
	if err != nil {
		return graph.Edge{}, fmt.Errorf("edge source: %w", err)
	}
	target, targetHandle, err := splitEndpoint(block.Target)
	if err != nil {
		return graph.Edge{}, fmt.Errorf("edge target: %w", err)
	}
	return graph.Edge{
		Source:       source,
		SourceHandle: sourceHandle,
		Target:       target,
		TargetHandle: targetHandle,
	}, nil
}

// splitEndpoint parses "node_name" or "node_name:handle".
func splitEndpoint(endpoint string) (node, handle string, err error) {
	if endpoint == "" {
		return "", "", fmt.Errorf("empty endpoint")
	}
	node, handle, found := strings.Cut(endpoint, ":")
	if node == "" || (found && handle == "") {
		return "", "", fmt.Errorf("malformed endpoint %q", endpoint)
	}
	return node, handle, nil
}

// Package registry maps node types to the processors that compute them,
// and validates that a snapshot only contains node types the session can
// actually process.
package registry

import (
	"fmt"
	"strings"

	"github.com/vk/mediagraph/internal/graph"
	"github.com/vk/mediagraph/internal/processor"
	"github.com/vk/mediagraph/internal/transform"
)

// Registry holds the processors available to a single session.
type Registry struct {
	processors map[string]processor.Processor
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{processors: make(map[string]processor.Processor)}
}

// Register adds a processor under its declared type. Duplicate types are a
// programmer error.
func (r *Registry) Register(p processor.Processor) error {
	if _, exists := r.processors[p.Type()]; exists {
		return fmt.Errorf("registry: processor for %q already registered", p.Type())
	}
	r.processors[p.Type()] = p
	return nil
}

// Get returns the processor for a node type.
func (r *Registry) Get(nodeType string) (processor.Processor, error) {
	p, ok := r.processors[nodeType]
	if !ok {
		return nil, fmt.Errorf("registry: no processor for node type %q", nodeType)
	}
	return p, nil
}

// Validate checks that every node in the snapshot has a processor. A
// mismatch between the graph and the registered set is reported in full,
// not just the first offender.
func (r *Registry) Validate(snap graph.Snapshot) error {
	var missing []string
	for _, n := range snap.Nodes {
		if _, ok := r.processors[n.Type]; !ok {
			missing = append(missing, fmt.Sprintf("node %q has unregistered type %q", n.ID, n.Type))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("registry: %s", strings.Join(missing, "; "))
	}
	return nil
}

// Default builds the registry with the bundled processors wired to the
// given transform registry.
func Default(ops *transform.Registry) (*Registry, error) {
	r := New()
	if err := r.Register(processor.NewSource()); err != nil {
		return nil, err
	}
	for _, op := range []string{transform.OpImageResize, transform.OpImageBlur, transform.OpImageGrayscale} {
		if err := r.Register(processor.NewImage(op)); err != nil {
			return nil, err
		}
	}
	for _, op := range []string{transform.OpTextUppercase, transform.OpTextTemplate} {
		p, err := processor.NewText(op, ops)
		if err != nil {
			return nil, err
		}
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

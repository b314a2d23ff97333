// Package transform holds the per-node-type transform function library.
// The engine treats transforms as external collaborators: it only knows
// the Func signature and the registry lookup. The bundled operations are
// small reference implementations; production kernels register the same
// way.
package transform

import (
	"context"
	"fmt"
	"sync"
)

// Func is one transform operation. Implementations must honor ctx at
// natural checkpoints; params carry the node's config values.
type Func func(ctx context.Context, payload []byte, params map[string]any) ([]byte, error)

// Registry maps operation names to transform functions. Safe for
// concurrent lookup after registration.
type Registry struct {
	mu  sync.RWMutex
	ops map[string]Func
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]Func)}
}

// Register adds an operation. Registering a duplicate name is a programmer
// error and is rejected so two node types cannot silently shadow each other.
func (r *Registry) Register(name string, fn Func) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.ops[name]; exists {
		return fmt.Errorf("transform: operation %q already registered", name)
	}
	r.ops[name] = fn
	return nil
}

// Get returns the operation or an error for unknown names.
func (r *Registry) Get(name string) (Func, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.ops[name]
	if !ok {
		return nil, fmt.Errorf("transform: unknown operation %q", name)
	}
	return fn, nil
}

// Names returns the registered operation names, unordered.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	return names
}

// Default builds a registry with the bundled reference operations.
func Default() *Registry {
	r := NewRegistry()
	// Registration of the bundled set cannot collide.
	_ = r.Register(OpImageResize, ImageResize)
	_ = r.Register(OpImageBlur, ImageBlur)
	_ = r.Register(OpImageGrayscale, ImageGrayscale)
	_ = r.Register(OpTextUppercase, TextUppercase)
	_ = r.Register(OpTextTemplate, TextTemplate)
	return r
}

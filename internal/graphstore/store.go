// Package graphstore provides a thread-safe, in-memory node-graph store
// implementing graph.SnapshotProvider and graph.ResultSink.
//
// In the product the graph lives in the editor's reactive store; this
// implementation stands in for it in headless runs and tests. Snapshots
// are value copies, so a snapshot taken before an edit keeps resolving the
// pre-edit graph.
package graphstore

import (
	"fmt"
	"sync"

	"github.com/vk/mediagraph/internal/graph"
)

// Store is the mutable graph backing a session.
type Store struct {
	mu    sync.RWMutex
	nodes map[string]*graph.Node
	order []string // insertion order, keeps snapshots deterministic
	edges []graph.Edge
}

// New creates an empty store.
func New() *Store {
	return &Store{nodes: make(map[string]*graph.Node)}
}

// AddNode inserts a node. Duplicate IDs are rejected.
func (s *Store) AddNode(n *graph.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.nodes[n.ID]; exists {
		return fmt.Errorf("graphstore: duplicate node id %q", n.ID)
	}
	s.nodes[n.ID] = n
	s.order = append(s.order, n.ID)
	return nil
}

// AddEdge inserts an edge. Both endpoints must exist.
func (s *Store) AddEdge(e graph.Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[e.Source]; !ok {
		return fmt.Errorf("graphstore: edge source %q not found", e.Source)
	}
	if _, ok := s.nodes[e.Target]; !ok {
		return fmt.Errorf("graphstore: edge target %q not found", e.Target)
	}
	s.edges = append(s.edges, e)
	return nil
}

// RemoveEdge deletes every edge from source to target.
func (s *Store) RemoveEdge(source, target string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.edges[:0]
	for _, e := range s.edges {
		if e.Source != source || e.Target != target {
			kept = append(kept, e)
		}
	}
	s.edges = kept
}

// SetConfig replaces a node's config, as a parameter edit in the UI does.
func (s *Store) SetConfig(nodeID string, config map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[nodeID]
	if !ok {
		return fmt.Errorf("graphstore: node %q not found", nodeID)
	}
	n.Config = config
	return nil
}

// ApplyResult implements graph.ResultSink.
func (s *Store) ApplyResult(nodeID string, result *graph.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.nodes[nodeID]; ok {
		n.Result = result
	}
}

// Node returns the live node, or nil.
func (s *Store) Node(id string) *graph.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nodes[id]
}

// Snapshot implements graph.SnapshotProvider. Nodes are copied by value;
// configs and results are shared but treated as immutable by convention
// (edits replace them wholesale).
func (s *Store) Snapshot() graph.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := graph.Snapshot{
		Nodes: make([]*graph.Node, 0, len(s.order)),
		Edges: append([]graph.Edge(nil), s.edges...),
	}
	for _, id := range s.order {
		n := *s.nodes[id]
		snap.Nodes = append(snap.Nodes, &n)
	}
	return snap
}

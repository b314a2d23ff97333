package graph

// Snapshot is a point-in-time, read-only view of the editor's node graph.
// The engine resolves nodes and upstream connections against whatever
// snapshot the provider returns at submission time; later edits produce
// later snapshots and later submissions.
type Snapshot struct {
	Nodes []*Node
	Edges []Edge
}

// SnapshotProvider is implemented by the external node-graph store.
type SnapshotProvider interface {
	Snapshot() Snapshot
}

// ResultSink receives committed results so the editor's reactive store can
// apply them back onto its nodes. Implementations must tolerate being
// called from the engine's drain goroutine.
type ResultSink interface {
	ApplyResult(nodeID string, result *Result)
}

// Node returns the node with the given ID, or nil if the snapshot does not
// contain it (e.g. the node was deleted after submission).
func (s Snapshot) Node(id string) *Node {
	for _, n := range s.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// Incoming returns the edges targeting the given node, in snapshot order.
func (s Snapshot) Incoming(id string) []Edge {
	var in []Edge
	for _, e := range s.Edges {
		if e.Target == id {
			in = append(in, e)
		}
	}
	return in
}

// OrderedDownstream returns the downstream closure of id as a slice in
// dependency order: every node appears after all of its predecessors that
// are themselves inside the closure. The start node is not included.
//
// Kahn's algorithm restricted to the closure; on a cyclic remainder the
// affected nodes are dropped rather than looping forever.
func (s Snapshot) OrderedDownstream(id string) []string {
	closure := DownstreamOf(id, s.Edges)
	if len(closure) == 0 {
		return nil
	}

	indegree := make(map[string]int, len(closure))
	for member := range closure {
		indegree[member] = 0
	}
	for _, e := range s.Edges {
		_, fromInside := closure[e.Source]
		if _, toInside := indegree[e.Target]; toInside && fromInside {
			indegree[e.Target]++
		}
	}

	var ready []string
	for member, deg := range indegree {
		if deg == 0 {
			ready = append(ready, member)
		}
	}

	ordered := make([]string, 0, len(closure))
	for len(ready) > 0 {
		// Deterministic pick keeps test output stable.
		next := ready[0]
		for _, candidate := range ready[1:] {
			if candidate < next {
				next = candidate
			}
		}
		for i, candidate := range ready {
			if candidate == next {
				ready = append(ready[:i], ready[i+1:]...)
				break
			}
		}

		ordered = append(ordered, next)
		for _, e := range s.Edges {
			if e.Source != next {
				continue
			}
			if _, inside := indegree[e.Target]; inside {
				indegree[e.Target]--
				if indegree[e.Target] == 0 {
					ready = append(ready, e.Target)
				}
			}
		}
		delete(indegree, next)
	}
	return ordered
}

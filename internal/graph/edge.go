package graph

// Edge is a directed connection between two node handles. Edges are
// immutable from the engine's perspective; they exist only to compute
// reachability and to resolve which upstream result feeds which input.
type Edge struct {
	Source       string
	SourceHandle string
	Target       string
	TargetHandle string
}

// DownstreamOf returns the set of node IDs transitively reachable by
// following edges forward from id. The start node itself is not included.
//
// The traversal keeps a visited set so it terminates even if a cycle
// slips past the editor's validation; a revisited node is skipped, never
// re-expanded. O(V+E), called on every edit.
func DownstreamOf(id string, edges []Edge) map[string]struct{} {
	visited := map[string]struct{}{id: {}}
	downstream := make(map[string]struct{})

	frontier := []string{id}
	for len(frontier) > 0 {
		current := frontier[0]
		frontier = frontier[1:]

		for _, e := range edges {
			if e.Source != current {
				continue
			}
			if _, seen := visited[e.Target]; seen {
				continue
			}
			visited[e.Target] = struct{}{}
			downstream[e.Target] = struct{}{}
			frontier = append(frontier, e.Target)
		}
	}
	return downstream
}

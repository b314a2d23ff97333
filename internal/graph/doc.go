// Package graph defines the read-only data model the engine shares with the
// visual editor: nodes, edges, results, and the reachability query that
// drives invalidation.
//
// The editor owns the node graph. The engine never mutates a node in place;
// new results flow back through the ResultSink interface so the editor's
// reactive store stays the single source of truth.
package graph

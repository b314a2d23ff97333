// Package engine wires the session-scoped services (hasher, cache, queue,
// worker pool, processor registry) into the incremental execution engine
// behind the editor.
//
// One Engine is constructed per editor session and passed by reference;
// there are no package-level singletons, so concurrent sessions and
// isolated unit tests get independent queues and pools.
//
// # Control flow
//
// An edit to a node's config or upstream data calls Process(nodeID). The
// queue computes the node's downstream closure, cancels any active or
// queued work inside it, and enqueues fresh work. When the work runs, the
// node's processor fingerprints the resolved upstream result plus the
// node's config, consults the cache, and either returns the memoized
// result or computes (locally or on the worker pool) and persists.
// Committed results flow back to the editor through the ResultSink.
package engine

// Package queue implements the single-flight processing queue that decides
// what runs, in what order, and what gets cancelled when the graph changes.
//
// # Invariants
//
//   - At most one task per node is queued or active at any instant.
//   - Submitting for a node cancels the active/queued tasks of the node's
//     entire downstream closure before the new task is enqueued, so the
//     last submission for a node always wins and no stale task can
//     complete and overwrite a newer result.
//   - The drain loop never dies: each work item runs inside its own
//     recover, and a failed item only rejects its own promise.
//
// Cancellation is cooperative. Work receives a context derived from the
// task's cancel token and must poll it at natural checkpoints; a task that
// finishes after it was logically cancelled has its result discarded.
package queue

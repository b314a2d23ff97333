// Package app wires the execution engine into a headless run: it loads a
// pipeline from disk, processes every source node through its downstream
// chain, reports the per-node outcomes, and tears the session down.
package app

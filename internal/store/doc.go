// Package store provides the thread-safe in-memory stores backing the
// scoring pipeline: the append-only reading log, the alert store with its
// acknowledgement lifecycle, and the prediction store. Persistence is an
// external collaborator — these stores hold the working set for a single
// evaluator node.
package store

// Package lwwmap implements the Last-Writer-Wins Map CRDT (spec §4.6): a
// bounded collection of (key, value, timestamp, writer_id) entries, unique
// by key, whose per-key write rule is the same total order on (ts,
// writer_id) package lwwregister uses for its single cell. Remove does not
// tombstone — it deletes the entry outright (spec §9 open question: without
// a tombstone, a Remove that has not yet propagated can be resurrected by a
// concurrent Insert merge from a replica that never saw the Remove; see
// DESIGN.md for why this module accepts that tradeoff over carrying
// per-key deletion markers forever in a bounded map).
//
// Two concurrency modes exist behind the identical LWWMap API, selected at
// build time (spec §5, §9), mirroring package gcounter:
//
//   - default build: lwwmap_exclusive.go, mutex-protected backing slice.
//   - `-tags crdt_lockfree`: lwwmap_lockfree.go, copy-on-write via a single
//     atomic.Value holding an immutable entry slice; Get/Keys/Values/Iter
//     never block, Insert/Remove/Merge serialize the copy-and-publish step
//     behind a short internal lock.
package lwwmap

// Package gset implements the Grow-only Set CRDT (spec §4.5): a bounded,
// unordered, duplicate-free collection whose only mutation is insertion and
// whose merge is set union. Elements are compared with Go's built-in `==`
// (T is constrained to comparable), so callers pick a T whose equality
// means what they want — a numeric id, a small fixed-size array, a string
// tag.
//
// Two concurrency modes exist behind the identical GSet API, selected at
// build time (spec §5, §9), mirroring package gcounter:
//
//   - default build: gset_exclusive.go, mutex-protected backing slice.
//   - `-tags crdt_lockfree`: gset_lockfree.go, copy-on-write via a single
//     atomic.Value holding an immutable element slice; Contains/Elements/Len
//     never block, Insert/Merge serialize the copy-and-publish step behind
//     a short internal lock.
package gset

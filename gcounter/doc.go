// Package gcounter implements the grow-only counter CRDT (spec §4.1): a
// fixed-size vector of per-node 32-bit slots whose value is the widened sum
// of all slots and whose merge is the coordinate-wise maximum.
//
// Two concurrency modes exist behind the identical GCounter API, selected
// at build time (spec §5, §9 — "do not attempt to make it a runtime
// switch"):
//
//   - default build: gcounter_exclusive.go, mutex-protected, requires no
//     build tag.
//   - `-tags crdt_lockfree`: gcounter_lockfree.go, per-slot atomics via
//     go.uber.org/atomic, safe for concurrent Increment from distinct
//     writers under a shared borrow.
package gcounter

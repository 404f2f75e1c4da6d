// Package mvregister implements the Multi-Value register CRDT (spec §4.4):
// a bounded bag of at most one (value, timestamp) entry per writer. Unlike
// lwwregister, concurrent writes from distinct writers are never discarded
// against each other — only a later write from the *same* writer supersedes
// an earlier one. Callers observe every writer's current value via Values
// and resolve conflicts themselves, or use the numeric helpers (Average,
// Min, Max) this package supplements per the domain profiles that read
// sensor fan-in as a distribution rather than a single winner.
//
// Two concurrency modes exist behind the identical MVRegister API, selected
// at build time (spec §5, §9), mirroring package gcounter:
//
//   - default build: mvregister_exclusive.go, mutex-protected.
//   - `-tags crdt_lockfree`: mvregister_lockfree.go, copy-on-write via a
//     single atomic.Value holding an immutable entry slice: Values/Get/Len
//     never block, while Set/Merge serialize the copy-and-publish step
//     behind a short internal lock so readers never observe a torn bag.
package mvregister

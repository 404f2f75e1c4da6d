// Package lwwregister implements the Last-Writer-Wins register CRDT (spec
// §4.3): a single (value, timestamp, writer_id) cell whose write rule is a
// total order on (ts, writer_id) — ties broken in favor of the larger
// writer id. Mirrors package gcounter's build-tag-selected concurrency
// modes; see lwwregister_lockfree.go for the packed-CAS publication
// protocol used there.
package lwwregister

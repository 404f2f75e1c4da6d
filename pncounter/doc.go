// Package pncounter implements the positive/negative counter CRDT (spec
// §4.2): two grow-only counter vectors, one for increments and one for
// decrements, whose value is the widened signed difference of their sums.
// Mirrors package gcounter's build-tag-selected concurrency modes.
package pncounter

//go:build !crdt_lockfree

package lwwregister

import (
	"sync"
	"unsafe"

	"github.com/Polqt/crdtcore/clock"
	"github.com/Polqt/crdtcore/config"
	"github.com/Polqt/crdtcore/contract"
	"github.com/Polqt/crdtcore/crdterr"
)

// LWWRegister is the exclusive-mode last-writer-wins register: a single
// mutex-protected cell, the generalization of the teacher's
// LWWRegister[T any] (projects/03-crdt-collab-backend/crdt/crdt.go), whose
// Set/Merge skeleton this fills in with the §4.3 total-order write rule.
type LWWRegister[T any] struct {
	mu       sync.RWMutex
	value    T
	hasValue bool
	ts       clock.CompactTimestamp
	writer   clock.NodeId
	localID  clock.NodeId
	cfg      config.Profile
}

// NewLWWRegister creates an empty register identified by localID.
func NewLWWRegister[T any](localID clock.NodeId, cfg config.Profile) (*LWWRegister[T], error) {
	if int(localID) >= cfg.MaxNodes {
		return nil, crdterr.New(crdterr.InvalidNodeId, "LWWRegister.New", "node id %d out of range for MaxNodes %d", localID, cfg.MaxNodes)
	}
	return &LWWRegister[T]{localID: localID, cfg: cfg}, nil
}

// Set updates the register using the local writer id and ts, applying the
// §4.3 write rule. A stale write (ts not winning) is a silent no-op, per
// spec §7: CRDT convergence requires stale writes be discarded, not
// surfaced as an error.
func (r *LWWRegister[T]) Set(value T, ts clock.CompactTimestamp) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if clock.Wins(ts, r.localID, !r.hasValue, r.ts, r.writer) {
		r.value = value
		r.ts = ts
		r.writer = r.localID
		r.hasValue = true
	}
}

// Get returns the current value, its timestamp, and whether the register
// has ever been set.
func (r *LWWRegister[T]) Get() (T, clock.CompactTimestamp, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.value, r.ts, r.hasValue
}

// Timestamp returns the cell's current timestamp (zero if never set).
func (r *LWWRegister[T]) Timestamp() clock.CompactTimestamp {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ts
}

// CurrentNode returns the writer id of the cell's current winning write.
func (r *LWWRegister[T]) CurrentNode() clock.NodeId {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.writer
}

// IsEmpty reports whether the register has never been set or merged into.
func (r *LWWRegister[T]) IsEmpty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !r.hasValue
}

// Merge applies the §4.3 write rule using other's cell tuple.
func (r *LWWRegister[T]) Merge(other *LWWRegister[T]) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	other.mu.RLock()
	defer other.mu.RUnlock()
	if !other.hasValue {
		return nil
	}
	if clock.Wins(other.ts, other.writer, !r.hasValue, r.ts, r.writer) {
		r.value = other.value
		r.ts = other.ts
		r.writer = other.writer
		r.hasValue = true
	}
	return nil
}

// CanMerge always succeeds: a scalar cell never fails on a capacity rule.
func (r *LWWRegister[T]) CanMerge(other *LWWRegister[T]) bool {
	return true
}

// Equals compares logical state (value, ts, writer — not local identity).
func (r *LWWRegister[T]) Equals(other *LWWRegister[T]) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	other.mu.RLock()
	defer other.mu.RUnlock()
	if r.hasValue != other.hasValue {
		return false
	}
	if !r.hasValue {
		return true
	}
	return r.ts == other.ts && r.writer == other.writer && equalValue(r.value, other.value)
}

// StateHash folds the timestamp and writer id; the value is not hashed.
func (r *LWWRegister[T]) StateHash() uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.hasValue {
		return 2166136261
	}
	h := uint32(2166136261)
	h = fold32(h, uint32(r.ts))
	h = fold32(h, uint32(r.ts>>32))
	h = fold8(h, uint8(r.writer))
	return h
}

func fold32(h uint32, v uint32) uint32 {
	for i := 0; i < 4; i++ {
		h ^= uint32(byte(v >> (8 * i)))
		h *= 16777619
	}
	return h
}

func fold8(h uint32, v uint8) uint32 {
	h ^= uint32(v)
	h *= 16777619
	return h
}

// equalValue compares two values of a generic type with interface equality.
// For a non-comparable T the comparison panics; the panic is recovered and
// the values compare as unequal.
func equalValue[T any](a, b T) bool {
	return anyEqual(any(a), any(b))
}

func anyEqual(a, b any) bool {
	defer func() { recover() }()
	return a == b
}

// Validate checks the local node-id invariant.
func (r *LWWRegister[T]) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(r.localID) >= r.cfg.MaxNodes {
		return crdterr.New(crdterr.InvalidNodeId, "LWWRegister.Validate", "node id %d out of range", r.localID)
	}
	return nil
}

// MaxSizeBytes is this instance's memory ceiling: one cell.
func (r *LWWRegister[T]) MaxSizeBytes() int {
	return int(unsafe.Sizeof(r.value)) + 16
}

// MaxElements is always 1: a register holds a single logical value.
func (r *LWWRegister[T]) MaxElements() int {
	return 1
}

// MemoryUsage equals MaxSizeBytes: the cell is preallocated inline.
func (r *LWWRegister[T]) MemoryUsage() int {
	return r.MaxSizeBytes()
}

// ElementCount is 1 once set, 0 while empty.
func (r *LWWRegister[T]) ElementCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.hasValue {
		return 1
	}
	return 0
}

// CanAddElement is always true: Set always has room for its one cell.
func (r *LWWRegister[T]) CanAddElement() bool {
	return true
}

// Compact never frees anything.
func (r *LWWRegister[T]) Compact() int {
	return 0
}

// MaxMergeCycles is the declared worst-case Merge budget: O(1).
func (r *LWWRegister[T]) MaxMergeCycles() uint32 {
	return 1
}

// MaxValidateCycles is the declared worst-case Validate budget.
func (r *LWWRegister[T]) MaxValidateCycles() uint32 {
	return 1
}

// MaxSerializeCycles is the declared worst-case serialization budget.
func (r *LWWRegister[T]) MaxSerializeCycles() uint32 {
	return 1
}

// MergeBounded behaves like Merge but is cycle-bounded.
func (r *LWWRegister[T]) MergeBounded(other *LWWRegister[T], budget *contract.Budget) error {
	if !budget.Consume(1) {
		return crdterr.New(crdterr.RealTimeViolation, "LWWRegister.MergeBounded", "cycle budget exhausted")
	}
	return r.Merge(other)
}

// ValidateBounded behaves like Validate but is cycle-bounded.
func (r *LWWRegister[T]) ValidateBounded(budget *contract.Budget) error {
	if !budget.Consume(1) {
		return crdterr.New(crdterr.RealTimeViolation, "LWWRegister.ValidateBounded", "cycle budget exhausted")
	}
	return r.Validate()
}

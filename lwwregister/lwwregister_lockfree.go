//go:build crdt_lockfree

package lwwregister

import (
	"unsafe"

	"go.uber.org/atomic"

	"github.com/Polqt/crdtcore/clock"
	"github.com/Polqt/crdtcore/config"
	"github.com/Polqt/crdtcore/contract"
	"github.com/Polqt/crdtcore/crdterr"
)

// box wraps a value of type T so atomic.Value always sees the same
// concrete type across Store calls, even when T itself is an interface
// type that callers might otherwise populate with varying concrete types.
type box[T any] struct{ v T }

// LWWRegister is the lock-free last-writer-wins register (spec §4.3): a
// 32-bit narrowed timestamp and 8-bit writer id packed into one atomic
// word so the "should update" comparison and its winning update are a
// single CAS, plus an interior-mutable value cell published after the CAS
// succeeds.
//
// Publication sequence per spec §4.3: "CAS timestamp -> store writer_id ->
// store value". Packing (ts, writer) into one word makes the CAS atomic
// for the ordering decision; only the goroutine whose CAS succeeds may
// publish its value, so concurrent writers never lose the winning write.
// Readers that observe the new packed key before the value store lands
// see a transient old value — the contract explicitly forgives this.
type LWWRegister[T any] struct {
	packed  atomic.Uint64 // bits 8-39: narrowed ts; low 8 bits: writer id
	value   atomic.Value  // holds box[T]
	localID clock.NodeId
	cfg     config.Profile
}

// NewLWWRegister creates an empty register identified by localID.
func NewLWWRegister[T any](localID clock.NodeId, cfg config.Profile) (*LWWRegister[T], error) {
	if int(localID) >= cfg.MaxNodes {
		return nil, crdterr.New(crdterr.InvalidNodeId, "LWWRegister.New", "node id %d out of range for MaxNodes %d", localID, cfg.MaxNodes)
	}
	r := &LWWRegister[T]{localID: localID, cfg: cfg}
	var zero T
	r.value.Store(box[T]{v: zero})
	return r, nil
}

func pack(ts uint32, writer clock.NodeId) uint64 {
	return uint64(ts)<<8 | uint64(writer)
}

func unpack(key uint64) (ts uint32, writer clock.NodeId) {
	return uint32(key >> 8), clock.NodeId(key)
}

// narrow truncates a 64-bit logical timestamp to the 32-bit word the
// atomic profile packs (spec §9 open question: this bounds effective
// timestamp range to ~4.29e9 ticks; see DESIGN.md for the tradeoff).
func narrow(ts clock.CompactTimestamp) uint32 {
	return uint32(ts.Value())
}

// Set updates the register using the local writer id and ts via the
// packed-CAS protocol. A stale write is a silent no-op.
func (r *LWWRegister[T]) Set(value T, ts clock.CompactTimestamp) {
	newTS := narrow(ts)
	for {
		oldKey := r.packed.Load()
		oldTS, oldWriter := unpack(oldKey)
		empty := oldKey == 0
		if !clock.Wins(clock.New(uint64(newTS)), r.localID, empty, clock.New(uint64(oldTS)), oldWriter) {
			return
		}
		newKey := pack(newTS, r.localID)
		if r.packed.CompareAndSwap(oldKey, newKey) {
			r.value.Store(box[T]{v: value})
			return
		}
		// lost the race to a concurrent writer; retry against the new state.
	}
}

// Get returns the current value, its (narrowed) timestamp, and whether the
// register has ever been set.
func (r *LWWRegister[T]) Get() (T, clock.CompactTimestamp, bool) {
	key := r.packed.Load()
	ts, _ := unpack(key)
	b := r.value.Load().(box[T])
	return b.v, clock.New(uint64(ts)), key != 0
}

// Timestamp returns the cell's current (narrowed) timestamp.
func (r *LWWRegister[T]) Timestamp() clock.CompactTimestamp {
	ts, _ := unpack(r.packed.Load())
	return clock.New(uint64(ts))
}

// CurrentNode returns the writer id of the cell's current winning write.
func (r *LWWRegister[T]) CurrentNode() clock.NodeId {
	_, writer := unpack(r.packed.Load())
	return writer
}

// IsEmpty reports whether the register has never been set or merged into.
func (r *LWWRegister[T]) IsEmpty() bool {
	return r.packed.Load() == 0
}

// Merge applies the packed-CAS protocol using other's cell tuple.
func (r *LWWRegister[T]) Merge(other *LWWRegister[T]) error {
	otherKey := other.packed.Load()
	if otherKey == 0 {
		return nil
	}
	otherTS, otherWriter := unpack(otherKey)
	otherValue := other.value.Load().(box[T]).v
	for {
		oldKey := r.packed.Load()
		oldTS, oldWriter := unpack(oldKey)
		empty := oldKey == 0
		if !clock.Wins(clock.New(uint64(otherTS)), otherWriter, empty, clock.New(uint64(oldTS)), oldWriter) {
			return nil
		}
		if r.packed.CompareAndSwap(oldKey, otherKey) {
			r.value.Store(box[T]{v: otherValue})
			return nil
		}
	}
}

// CanMerge always succeeds: a scalar cell never fails on a capacity rule.
func (r *LWWRegister[T]) CanMerge(other *LWWRegister[T]) bool {
	return true
}

// Equals compares logical state (value, ts, writer).
func (r *LWWRegister[T]) Equals(other *LWWRegister[T]) bool {
	rKey, oKey := r.packed.Load(), other.packed.Load()
	if (rKey == 0) != (oKey == 0) {
		return false
	}
	if rKey == 0 {
		return true
	}
	if rKey != oKey {
		return false
	}
	return anyEqual(any(r.value.Load().(box[T]).v), any(other.value.Load().(box[T]).v))
}

func anyEqual(a, b any) bool {
	defer func() { recover() }()
	return a == b
}

// StateHash folds the timestamp, writer id.
func (r *LWWRegister[T]) StateHash() uint32 {
	key := r.packed.Load()
	if key == 0 {
		return 2166136261
	}
	ts, writer := unpack(key)
	h := uint32(2166136261)
	h = fold32(h, ts)
	h = fold8(h, uint8(writer))
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

// Validate checks the local node-id invariant.
func (r *LWWRegister[T]) Validate() error {
	if int(r.localID) >= r.cfg.MaxNodes {
		return crdterr.New(crdterr.InvalidNodeId, "LWWRegister.Validate", "node id %d out of range", r.localID)
	}
	return nil
}

// MaxSizeBytes is this instance's memory ceiling: one cell.
func (r *LWWRegister[T]) MaxSizeBytes() int {
	var zero T
	return int(unsafe.Sizeof(zero)) + 16
}

// MaxElements is always 1.
func (r *LWWRegister[T]) MaxElements() int {
	return 1
}

// MemoryUsage equals MaxSizeBytes.
func (r *LWWRegister[T]) MemoryUsage() int {
	return r.MaxSizeBytes()
}

// ElementCount is 1 once set, 0 while empty.
func (r *LWWRegister[T]) ElementCount() int {
	if r.packed.Load() != 0 {
		return 1
	}
	return 0
}

// CanAddElement is always true.
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

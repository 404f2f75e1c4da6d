//go:build !crdt_lockfree

package mvregister

import (
	"sync"
	"unsafe"

	"github.com/Polqt/crdtcore/clock"
	"github.com/Polqt/crdtcore/config"
	"github.com/Polqt/crdtcore/contract"
	"github.com/Polqt/crdtcore/crdterr"
)

// entry is one writer's current contribution to the register.
type entry[T any] struct {
	value  T
	ts     clock.CompactTimestamp
	writer clock.NodeId
}

// MVRegister is the exclusive-mode multi-value register: a mutex-protected
// bag with at most one entry per writer id.
type MVRegister[T any] struct {
	mu       sync.RWMutex
	entries  []entry[T]
	capacity int
	localID  clock.NodeId
	cfg      config.Profile
}

// NewMVRegister creates an empty register identified by localID, holding at
// most capacity concurrent writer entries.
func NewMVRegister[T any](localID clock.NodeId, capacity int, cfg config.Profile) (*MVRegister[T], error) {
	if int(localID) >= cfg.MaxNodes {
		return nil, crdterr.New(crdterr.InvalidNodeId, "MVRegister.New", "node id %d out of range for MaxNodes %d", localID, cfg.MaxNodes)
	}
	if capacity <= 0 {
		return nil, crdterr.New(crdterr.InvalidOperation, "MVRegister.New", "capacity must be > 0")
	}
	return &MVRegister[T]{
		entries:  make([]entry[T], 0, capacity),
		capacity: capacity,
		localID:  localID,
		cfg:      cfg,
	}, nil
}

func indexOfWriter[T any](entries []entry[T], writer clock.NodeId) int {
	for i := range entries {
		if entries[i].writer == writer {
			return i
		}
	}
	return -1
}

// Set writes value under the local writer id, stamped with ts. A write that
// does not strictly advance this writer's own timestamp is a silent no-op
// (spec §7: stale writes never surface as an error). A first write from a
// writer not yet present fails with BufferOverflow if the bag is at
// capacity.
func (r *MVRegister[T]) Set(value T, ts clock.CompactTimestamp) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := indexOfWriter(r.entries, r.localID); i >= 0 {
		if ts.After(r.entries[i].ts) {
			r.entries[i].value = value
			r.entries[i].ts = ts
		}
		return nil
	}
	if len(r.entries) >= r.capacity {
		return crdterr.New(crdterr.BufferOverflow, "MVRegister.Set", "at capacity %d", r.capacity)
	}
	r.entries = append(r.entries, entry[T]{value: value, ts: ts, writer: r.localID})
	return nil
}

// Values returns a snapshot of every writer's current value, in writer-slot
// insertion order (not a deterministic total order across replicas —
// callers that need a single answer should use Average/Min/Max or layer
// their own tie-break over Get).
func (r *MVRegister[T]) Values() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]T, len(r.entries))
	for i := range r.entries {
		out[i] = r.entries[i].value
	}
	return out
}

// Get returns the value, timestamp, and presence of writer's entry.
func (r *MVRegister[T]) Get(writer clock.NodeId) (T, clock.CompactTimestamp, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := indexOfWriter(r.entries, writer); i >= 0 {
		return r.entries[i].value, r.entries[i].ts, true
	}
	var zero T
	return zero, clock.Zero, false
}

// Len returns the number of distinct writers currently contributing.
func (r *MVRegister[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Merge applies other's per-writer entries: a writer present in both takes
// the strictly-newer timestamp's value; a writer present only in other is
// appended, failing BufferOverflow if this would exceed capacity. On failure
// the register is left unchanged.
func (r *MVRegister[T]) Merge(other *MVRegister[T]) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	other.mu.RLock()
	defer other.mu.RUnlock()
	next := make([]entry[T], len(r.entries), r.capacity)
	copy(next, r.entries)
	for _, oe := range other.entries {
		if i := indexOfWriter(next, oe.writer); i >= 0 {
			if oe.ts.After(next[i].ts) {
				next[i].value = oe.value
				next[i].ts = oe.ts
			}
			continue
		}
		if len(next) >= r.capacity {
			return crdterr.New(crdterr.BufferOverflow, "MVRegister.Merge", "at capacity %d", r.capacity)
		}
		next = append(next, oe)
	}
	r.entries = next
	return nil
}

// CanMerge reports whether Merge(other) is guaranteed not to fail: every
// writer in other not already present here must fit within capacity.
func (r *MVRegister[T]) CanMerge(other *MVRegister[T]) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	other.mu.RLock()
	defer other.mu.RUnlock()
	projected := len(r.entries)
	for _, oe := range other.entries {
		if indexOfWriter(r.entries, oe.writer) < 0 {
			projected++
		}
	}
	return projected <= r.capacity
}

// Equals compares the entry bags irrespective of slot order.
func (r *MVRegister[T]) Equals(other *MVRegister[T]) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	other.mu.RLock()
	defer other.mu.RUnlock()
	if len(r.entries) != len(other.entries) {
		return false
	}
	for _, e := range r.entries {
		i := indexOfWriter(other.entries, e.writer)
		if i < 0 || other.entries[i].ts != e.ts || !anyEqual(any(e.value), any(other.entries[i].value)) {
			return false
		}
	}
	return true
}

func anyEqual(a, b any) bool {
	defer func() { recover() }()
	return a == b
}

// StateHash folds every entry's (writer, ts) pair in writer-id order so the
// hash agrees regardless of insertion order.
func (r *MVRegister[T]) StateHash() uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sorted := make([]entry[T], len(r.entries))
	copy(sorted, r.entries)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].writer < sorted[j-1].writer; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	h := uint32(2166136261)
	for _, e := range sorted {
		h = fold32(h, uint32(e.ts))
		h = fold32(h, uint32(e.ts>>32))
		h = fold8(h, uint8(e.writer))
	}
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

// Validate checks the local node-id and entry-count invariants.
func (r *MVRegister[T]) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(r.localID) >= r.cfg.MaxNodes {
		return crdterr.New(crdterr.InvalidNodeId, "MVRegister.Validate", "node id %d out of range", r.localID)
	}
	if len(r.entries) > r.capacity {
		return crdterr.New(crdterr.InvalidState, "MVRegister.Validate", "entry count %d exceeds capacity %d", len(r.entries), r.capacity)
	}
	return nil
}

// MaxSizeBytes is this instance's memory ceiling.
func (r *MVRegister[T]) MaxSizeBytes() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var zero T
	return r.capacity * (int(unsafe.Sizeof(zero)) + 16)
}

// MaxElements is the configured writer-slot ceiling.
func (r *MVRegister[T]) MaxElements() int {
	return r.capacity
}

// MemoryUsage equals MaxSizeBytes: the bag is preallocated to capacity.
func (r *MVRegister[T]) MemoryUsage() int {
	return r.MaxSizeBytes()
}

// ElementCount returns the number of writers currently contributing.
func (r *MVRegister[T]) ElementCount() int {
	return r.Len()
}

// CanAddElement reports whether one more distinct writer would fit.
func (r *MVRegister[T]) CanAddElement() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries) < r.capacity
}

// Compact never frees anything.
func (r *MVRegister[T]) Compact() int {
	return 0
}

// MaxMergeCycles is the declared worst-case Merge budget: one unit per
// other-side entry scanned.
func (r *MVRegister[T]) MaxMergeCycles() uint32 {
	return uint32(r.capacity)
}

// MaxValidateCycles is the declared worst-case Validate budget.
func (r *MVRegister[T]) MaxValidateCycles() uint32 {
	return 1
}

// MaxSerializeCycles is the declared worst-case serialization budget.
func (r *MVRegister[T]) MaxSerializeCycles() uint32 {
	return uint32(r.capacity)
}

// MergeBounded behaves like Merge but consumes one budget unit per
// other-side entry.
func (r *MVRegister[T]) MergeBounded(other *MVRegister[T], budget *contract.Budget) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	other.mu.RLock()
	defer other.mu.RUnlock()
	next := make([]entry[T], len(r.entries), r.capacity)
	copy(next, r.entries)
	for _, oe := range other.entries {
		if !budget.Consume(1) {
			return crdterr.New(crdterr.RealTimeViolation, "MVRegister.MergeBounded", "cycle budget exhausted")
		}
		if i := indexOfWriter(next, oe.writer); i >= 0 {
			if oe.ts.After(next[i].ts) {
				next[i].value = oe.value
				next[i].ts = oe.ts
			}
			continue
		}
		if len(next) >= r.capacity {
			return crdterr.New(crdterr.BufferOverflow, "MVRegister.MergeBounded", "at capacity %d", r.capacity)
		}
		next = append(next, oe)
	}
	r.entries = next
	return nil
}

// ValidateBounded behaves like Validate but is cycle-bounded.
func (r *MVRegister[T]) ValidateBounded(budget *contract.Budget) error {
	if !budget.Consume(1) {
		return crdterr.New(crdterr.RealTimeViolation, "MVRegister.ValidateBounded", "cycle budget exhausted")
	}
	return r.Validate()
}

//go:build crdt_lockfree

package mvregister

import (
	"sync"
	"unsafe"

	"go.uber.org/atomic"

	"github.com/Polqt/crdtcore/clock"
	"github.com/Polqt/crdtcore/config"
	"github.com/Polqt/crdtcore/contract"
	"github.com/Polqt/crdtcore/crdterr"
)

type entry[T any] struct {
	value  T
	ts     clock.CompactTimestamp
	writer clock.NodeId
}

// box wraps the entry slice so atomic.Value always sees one concrete type.
type box[T any] struct{ entries []entry[T] }

// MVRegister is the lock-free multi-value register: Values/Get/Len read an
// immutable snapshot via atomic.Value.Load without blocking; Set/Merge
// compute a new snapshot and publish it behind writeMu, which serializes
// writers against each other without ever blocking a concurrent reader.
type MVRegister[T any] struct {
	snapshot atomic.Value // holds box[T]
	writeMu  sync.Mutex
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
	r := &MVRegister[T]{capacity: capacity, localID: localID, cfg: cfg}
	r.snapshot.Store(box[T]{entries: make([]entry[T], 0, capacity)})
	return r, nil
}

func (r *MVRegister[T]) load() []entry[T] {
	return r.snapshot.Load().(box[T]).entries
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
// does not strictly advance this writer's own timestamp is a silent no-op.
func (r *MVRegister[T]) Set(value T, ts clock.CompactTimestamp) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	cur := r.load()
	if i := indexOfWriter(cur, r.localID); i >= 0 {
		if !ts.After(cur[i].ts) {
			return nil
		}
		next := make([]entry[T], len(cur))
		copy(next, cur)
		next[i].value = value
		next[i].ts = ts
		r.snapshot.Store(box[T]{entries: next})
		return nil
	}
	if len(cur) >= r.capacity {
		return crdterr.New(crdterr.BufferOverflow, "MVRegister.Set", "at capacity %d", r.capacity)
	}
	next := make([]entry[T], len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, entry[T]{value: value, ts: ts, writer: r.localID})
	r.snapshot.Store(box[T]{entries: next})
	return nil
}

// Values returns a snapshot of every writer's current value.
func (r *MVRegister[T]) Values() []T {
	cur := r.load()
	out := make([]T, len(cur))
	for i := range cur {
		out[i] = cur[i].value
	}
	return out
}

// Get returns the value, timestamp, and presence of writer's entry.
func (r *MVRegister[T]) Get(writer clock.NodeId) (T, clock.CompactTimestamp, bool) {
	cur := r.load()
	if i := indexOfWriter(cur, writer); i >= 0 {
		return cur[i].value, cur[i].ts, true
	}
	var zero T
	return zero, clock.Zero, false
}

// Len returns the number of distinct writers currently contributing.
func (r *MVRegister[T]) Len() int {
	return len(r.load())
}

// Merge applies other's per-writer entries the same way the exclusive mode
// does, publishing one new snapshot for the whole operation.
func (r *MVRegister[T]) Merge(other *MVRegister[T]) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	cur := r.load()
	next := make([]entry[T], len(cur), r.capacity)
	copy(next, cur)
	for _, oe := range other.load() {
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
	r.snapshot.Store(box[T]{entries: next})
	return nil
}

// CanMerge reports whether Merge(other) is guaranteed not to fail.
func (r *MVRegister[T]) CanMerge(other *MVRegister[T]) bool {
	cur := r.load()
	projected := len(cur)
	for _, oe := range other.load() {
		if indexOfWriter(cur, oe.writer) < 0 {
			projected++
		}
	}
	return projected <= r.capacity
}

// Equals compares the entry bags irrespective of slot order.
func (r *MVRegister[T]) Equals(other *MVRegister[T]) bool {
	a, b := r.load(), other.load()
	if len(a) != len(b) {
		return false
	}
	for _, e := range a {
		i := indexOfWriter(b, e.writer)
		if i < 0 || b[i].ts != e.ts || !anyEqual(any(e.value), any(b[i].value)) {
			return false
		}
	}
	return true
}

func anyEqual(a, b any) bool {
	defer func() { recover() }()
	return a == b
}

// StateHash folds every entry's (writer, ts) pair in writer-id order.
func (r *MVRegister[T]) StateHash() uint32 {
	cur := r.load()
	sorted := make([]entry[T], len(cur))
	copy(sorted, cur)
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
	if int(r.localID) >= r.cfg.MaxNodes {
		return crdterr.New(crdterr.InvalidNodeId, "MVRegister.Validate", "node id %d out of range", r.localID)
	}
	if len(r.load()) > r.capacity {
		return crdterr.New(crdterr.InvalidState, "MVRegister.Validate", "entry count exceeds capacity %d", r.capacity)
	}
	return nil
}

// MaxSizeBytes is this instance's memory ceiling.
func (r *MVRegister[T]) MaxSizeBytes() int {
	var zero T
	return r.capacity * (int(unsafe.Sizeof(zero)) + 16)
}

// MaxElements is the configured writer-slot ceiling.
func (r *MVRegister[T]) MaxElements() int {
	return r.capacity
}

// MemoryUsage equals MaxSizeBytes: the snapshot is sized to capacity.
func (r *MVRegister[T]) MemoryUsage() int {
	return r.MaxSizeBytes()
}

// ElementCount returns the number of writers currently contributing.
func (r *MVRegister[T]) ElementCount() int {
	return r.Len()
}

// CanAddElement reports whether one more distinct writer would fit.
func (r *MVRegister[T]) CanAddElement() bool {
	return len(r.load()) < r.capacity
}

// Compact never frees anything.
func (r *MVRegister[T]) Compact() int {
	return 0
}

// MaxMergeCycles is the declared worst-case Merge budget.
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
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	cur := r.load()
	next := make([]entry[T], len(cur), r.capacity)
	copy(next, cur)
	for _, oe := range other.load() {
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
	r.snapshot.Store(box[T]{entries: next})
	return nil
}

// ValidateBounded behaves like Validate but is cycle-bounded.
func (r *MVRegister[T]) ValidateBounded(budget *contract.Budget) error {
	if !budget.Consume(1) {
		return crdterr.New(crdterr.RealTimeViolation, "MVRegister.ValidateBounded", "cycle budget exhausted")
	}
	return r.Validate()
}

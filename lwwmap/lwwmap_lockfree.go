//go:build crdt_lockfree

package lwwmap

import (
	"fmt"
	"sync"
	"unsafe"

	"go.uber.org/atomic"

	"github.com/Polqt/crdtcore/clock"
	"github.com/Polqt/crdtcore/config"
	"github.com/Polqt/crdtcore/contract"
	"github.com/Polqt/crdtcore/crdterr"
)

type entry[K comparable, V any] struct {
	key    K
	value  V
	ts     clock.CompactTimestamp
	writer clock.NodeId
}

// box wraps the entry slice so atomic.Value always sees one concrete type.
type box[K comparable, V any] struct{ entries []entry[K, V] }

// LWWMap is the lock-free last-writer-wins map: Get/Keys/Values/Iter read
// an immutable snapshot via atomic.Value.Load without blocking;
// Insert/Remove/Merge compute a new snapshot and publish it behind writeMu.
type LWWMap[K comparable, V any] struct {
	snapshot atomic.Value // holds box[K, V]
	writeMu  sync.Mutex
	capacity int
	localID  clock.NodeId
	cfg      config.Profile
}

// NewLWWMap creates an empty map identified by localID, holding at most
// capacity entries.
func NewLWWMap[K comparable, V any](localID clock.NodeId, capacity int, cfg config.Profile) (*LWWMap[K, V], error) {
	if int(localID) >= cfg.MaxNodes {
		return nil, crdterr.New(crdterr.InvalidNodeId, "LWWMap.New", "node id %d out of range for MaxNodes %d", localID, cfg.MaxNodes)
	}
	if capacity <= 0 {
		return nil, crdterr.New(crdterr.InvalidOperation, "LWWMap.New", "capacity must be > 0")
	}
	if capacity > cfg.MaxMapEntries {
		return nil, crdterr.New(crdterr.ConfigurationExceeded, "LWWMap.New", "capacity %d exceeds profile MaxMapEntries %d", capacity, cfg.MaxMapEntries)
	}
	m := &LWWMap[K, V]{capacity: capacity, localID: localID, cfg: cfg}
	m.snapshot.Store(box[K, V]{entries: make([]entry[K, V], 0, capacity)})
	return m, nil
}

func (m *LWWMap[K, V]) load() []entry[K, V] {
	return m.snapshot.Load().(box[K, V]).entries
}

func indexOfKey[K comparable, V any](entries []entry[K, V], key K) int {
	for i := range entries {
		if entries[i].key == key {
			return i
		}
	}
	return -1
}

// Insert writes value for key under the local writer id, stamped with ts.
func (m *LWWMap[K, V]) Insert(key K, value V, ts clock.CompactTimestamp) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	cur := m.load()
	if i := indexOfKey(cur, key); i >= 0 {
		if !clock.Wins(ts, m.localID, false, cur[i].ts, cur[i].writer) {
			return nil
		}
		next := make([]entry[K, V], len(cur))
		copy(next, cur)
		next[i].value = value
		next[i].ts = ts
		next[i].writer = m.localID
		m.snapshot.Store(box[K, V]{entries: next})
		return nil
	}
	if len(cur) >= m.capacity {
		return crdterr.New(crdterr.BufferOverflow, "LWWMap.Insert", "at capacity %d", m.capacity)
	}
	next := make([]entry[K, V], len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, entry[K, V]{key: key, value: value, ts: ts, writer: m.localID})
	m.snapshot.Store(box[K, V]{entries: next})
	return nil
}

// Remove deletes key outright, returning the value it held and whether key
// was present.
func (m *LWWMap[K, V]) Remove(key K) (V, bool) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	cur := m.load()
	i := indexOfKey(cur, key)
	if i < 0 {
		var zero V
		return zero, false
	}
	removed := cur[i].value
	next := make([]entry[K, V], 0, len(cur)-1)
	next = append(next, cur[:i]...)
	next = append(next, cur[i+1:]...)
	m.snapshot.Store(box[K, V]{entries: next})
	return removed, true
}

// Get returns value, its timestamp, and presence for key.
func (m *LWWMap[K, V]) Get(key K) (V, clock.CompactTimestamp, bool) {
	cur := m.load()
	if i := indexOfKey(cur, key); i >= 0 {
		return cur[i].value, cur[i].ts, true
	}
	var zero V
	return zero, clock.Zero, false
}

// Keys returns a snapshot of the current keys.
func (m *LWWMap[K, V]) Keys() []K {
	cur := m.load()
	out := make([]K, len(cur))
	for i := range cur {
		out[i] = cur[i].key
	}
	return out
}

// Values returns a snapshot of the current values.
func (m *LWWMap[K, V]) Values() []V {
	cur := m.load()
	out := make([]V, len(cur))
	for i := range cur {
		out[i] = cur[i].value
	}
	return out
}

// Iter calls fn for every current (key, value) pair. Iteration stops early
// if fn returns false.
func (m *LWWMap[K, V]) Iter(fn func(key K, value V) bool) {
	for _, e := range m.load() {
		if !fn(e.key, e.value) {
			return
		}
	}
}

// Len returns the current entry count.
func (m *LWWMap[K, V]) Len() int {
	return len(m.load())
}

// Merge applies other's per-key entries using the §4.3 write rule.
func (m *LWWMap[K, V]) Merge(other *LWWMap[K, V]) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	cur := m.load()
	next := make([]entry[K, V], len(cur), m.capacity)
	copy(next, cur)
	for _, oe := range other.load() {
		if i := indexOfKey(next, oe.key); i >= 0 {
			if clock.Wins(oe.ts, oe.writer, false, next[i].ts, next[i].writer) {
				next[i].value = oe.value
				next[i].ts = oe.ts
				next[i].writer = oe.writer
			}
			continue
		}
		if len(next) >= m.capacity {
			return crdterr.New(crdterr.BufferOverflow, "LWWMap.Merge", "at capacity %d", m.capacity)
		}
		next = append(next, oe)
	}
	m.snapshot.Store(box[K, V]{entries: next})
	return nil
}

// CanMerge reports whether Merge(other) is guaranteed not to fail.
func (m *LWWMap[K, V]) CanMerge(other *LWWMap[K, V]) bool {
	cur := m.load()
	projected := len(cur)
	for _, oe := range other.load() {
		if indexOfKey(cur, oe.key) < 0 {
			projected++
		}
	}
	return projected <= m.capacity
}

// Equals compares the entry sets irrespective of slot order.
func (m *LWWMap[K, V]) Equals(other *LWWMap[K, V]) bool {
	a, b := m.load(), other.load()
	if len(a) != len(b) {
		return false
	}
	for _, e := range a {
		i := indexOfKey(b, e.key)
		if i < 0 || b[i].ts != e.ts || b[i].writer != e.writer || !anyEqual(any(e.value), any(b[i].value)) {
			return false
		}
	}
	return true
}

func anyEqual(a, b any) bool {
	defer func() { recover() }()
	return a == b
}

// StateHash folds every entry's (key, ts, writer) tuple in a commutative
// (XOR) accumulator so the result is independent of slot order.
func (m *LWWMap[K, V]) StateHash() uint32 {
	var h uint32
	for _, e := range m.load() {
		eh := uint32(2166136261)
		eh = foldKey(eh, e.key)
		eh = fold32(eh, uint32(e.ts))
		eh = fold32(eh, uint32(e.ts>>32))
		eh = fold8(eh, uint8(e.writer))
		h ^= eh
	}
	return h
}

func foldKey[K comparable](h uint32, key K) uint32 {
	tag := fmt.Sprintf("%v", key)
	for i := 0; i < len(tag); i++ {
		h ^= uint32(tag[i])
		h *= 16777619
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

// Validate checks the local node-id, capacity, and entry-count invariants.
func (m *LWWMap[K, V]) Validate() error {
	if int(m.localID) >= m.cfg.MaxNodes {
		return crdterr.New(crdterr.InvalidNodeId, "LWWMap.Validate", "node id %d out of range", m.localID)
	}
	if len(m.load()) > m.capacity {
		return crdterr.New(crdterr.InvalidState, "LWWMap.Validate", "entry count exceeds capacity %d", m.capacity)
	}
	if m.capacity > m.cfg.MaxMapEntries {
		return crdterr.New(crdterr.ConfigurationExceeded, "LWWMap.Validate", "capacity %d exceeds profile MaxMapEntries %d", m.capacity, m.cfg.MaxMapEntries)
	}
	return nil
}

// MaxSizeBytes is this instance's memory ceiling.
func (m *LWWMap[K, V]) MaxSizeBytes() int {
	var zk K
	var zv V
	return m.capacity*(int(unsafe.Sizeof(zk))+int(unsafe.Sizeof(zv))+16) + 8
}

// MaxElements is the configured entry ceiling.
func (m *LWWMap[K, V]) MaxElements() int {
	return m.capacity
}

// MemoryUsage equals MaxSizeBytes.
func (m *LWWMap[K, V]) MemoryUsage() int {
	return m.MaxSizeBytes()
}

// ElementCount returns the current entry count.
func (m *LWWMap[K, V]) ElementCount() int {
	return m.Len()
}

// CanAddElement reports whether one more entry would fit.
func (m *LWWMap[K, V]) CanAddElement() bool {
	return len(m.load()) < m.capacity
}

// Compact never frees anything: Remove already frees its slot immediately.
func (m *LWWMap[K, V]) Compact() int {
	return 0
}

// MaxMergeCycles is the declared worst-case Merge budget.
func (m *LWWMap[K, V]) MaxMergeCycles() uint32 {
	return uint32(m.capacity * m.capacity)
}

// MaxValidateCycles is the declared worst-case Validate budget.
func (m *LWWMap[K, V]) MaxValidateCycles() uint32 {
	return 1
}

// MaxSerializeCycles is the declared worst-case serialization budget.
func (m *LWWMap[K, V]) MaxSerializeCycles() uint32 {
	return uint32(m.capacity)
}

// MergeBounded behaves like Merge but consumes one budget unit per
// candidate key scanned.
func (m *LWWMap[K, V]) MergeBounded(other *LWWMap[K, V], budget *contract.Budget) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	cur := m.load()
	next := make([]entry[K, V], len(cur), m.capacity)
	copy(next, cur)
	for _, oe := range other.load() {
		if !budget.Consume(uint32(len(next)) + 1) {
			return crdterr.New(crdterr.RealTimeViolation, "LWWMap.MergeBounded", "cycle budget exhausted")
		}
		if i := indexOfKey(next, oe.key); i >= 0 {
			if clock.Wins(oe.ts, oe.writer, false, next[i].ts, next[i].writer) {
				next[i].value = oe.value
				next[i].ts = oe.ts
				next[i].writer = oe.writer
			}
			continue
		}
		if len(next) >= m.capacity {
			return crdterr.New(crdterr.BufferOverflow, "LWWMap.MergeBounded", "at capacity %d", m.capacity)
		}
		next = append(next, oe)
	}
	m.snapshot.Store(box[K, V]{entries: next})
	return nil
}

// ValidateBounded behaves like Validate but is cycle-bounded.
func (m *LWWMap[K, V]) ValidateBounded(budget *contract.Budget) error {
	if !budget.Consume(1) {
		return crdterr.New(crdterr.RealTimeViolation, "LWWMap.ValidateBounded", "cycle budget exhausted")
	}
	return m.Validate()
}

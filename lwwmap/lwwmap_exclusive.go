//go:build !crdt_lockfree

package lwwmap

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/Polqt/crdtcore/clock"
	"github.com/Polqt/crdtcore/config"
	"github.com/Polqt/crdtcore/contract"
	"github.com/Polqt/crdtcore/crdterr"
)

// entry is one key's current (value, ts, writer) tuple.
type entry[K comparable, V any] struct {
	key    K
	value  V
	ts     clock.CompactTimestamp
	writer clock.NodeId
}

// LWWMap is the exclusive-mode last-writer-wins map: a mutex-protected
// slice of entries unique by key, capped at a fixed entry count (spec §6's
// MaxMapEntries ceiling).
type LWWMap[K comparable, V any] struct {
	mu       sync.RWMutex
	entries  []entry[K, V]
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
	return &LWWMap[K, V]{
		entries:  make([]entry[K, V], 0, capacity),
		capacity: capacity,
		localID:  localID,
		cfg:      cfg,
	}, nil
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
// An existing key applies the §4.3 write rule (stale writes are a silent
// no-op); a new key fails with BufferOverflow if the map is at capacity.
func (m *LWWMap[K, V]) Insert(key K, value V, ts clock.CompactTimestamp) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := indexOfKey(m.entries, key); i >= 0 {
		if clock.Wins(ts, m.localID, false, m.entries[i].ts, m.entries[i].writer) {
			m.entries[i].value = value
			m.entries[i].ts = ts
			m.entries[i].writer = m.localID
		}
		return nil
	}
	if len(m.entries) >= m.capacity {
		return crdterr.New(crdterr.BufferOverflow, "LWWMap.Insert", "at capacity %d", m.capacity)
	}
	m.entries = append(m.entries, entry[K, V]{key: key, value: value, ts: ts, writer: m.localID})
	return nil
}

// Remove deletes key outright (no tombstone — see package doc), returning
// the value it held and whether key was present.
func (m *LWWMap[K, V]) Remove(key K) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := indexOfKey(m.entries, key)
	if i < 0 {
		var zero V
		return zero, false
	}
	value := m.entries[i].value
	m.entries = append(m.entries[:i], m.entries[i+1:]...)
	return value, true
}

// Get returns value, its timestamp, and presence for key.
func (m *LWWMap[K, V]) Get(key K) (V, clock.CompactTimestamp, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i := indexOfKey(m.entries, key); i >= 0 {
		return m.entries[i].value, m.entries[i].ts, true
	}
	var zero V
	return zero, clock.Zero, false
}

// Keys returns a snapshot of the current keys, in no particular order.
func (m *LWWMap[K, V]) Keys() []K {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]K, len(m.entries))
	for i := range m.entries {
		out[i] = m.entries[i].key
	}
	return out
}

// Values returns a snapshot of the current values, in the same order Keys
// would return their corresponding keys.
func (m *LWWMap[K, V]) Values() []V {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]V, len(m.entries))
	for i := range m.entries {
		out[i] = m.entries[i].value
	}
	return out
}

// Iter calls fn for every current (key, value) pair. Iteration stops early
// if fn returns false.
func (m *LWWMap[K, V]) Iter(fn func(key K, value V) bool) {
	m.mu.RLock()
	snapshot := make([]entry[K, V], len(m.entries))
	copy(snapshot, m.entries)
	m.mu.RUnlock()
	for _, e := range snapshot {
		if !fn(e.key, e.value) {
			return
		}
	}
}

// Len returns the current entry count.
func (m *LWWMap[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Merge applies other's per-key entries using the §4.3 write rule,
// appending keys not already present, failing BufferOverflow if this would
// exceed capacity.
func (m *LWWMap[K, V]) Merge(other *LWWMap[K, V]) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	other.mu.RLock()
	defer other.mu.RUnlock()
	for _, oe := range other.entries {
		if i := indexOfKey(m.entries, oe.key); i >= 0 {
			if clock.Wins(oe.ts, oe.writer, false, m.entries[i].ts, m.entries[i].writer) {
				m.entries[i].value = oe.value
				m.entries[i].ts = oe.ts
				m.entries[i].writer = oe.writer
			}
			continue
		}
		if len(m.entries) >= m.capacity {
			return crdterr.New(crdterr.BufferOverflow, "LWWMap.Merge", "at capacity %d", m.capacity)
		}
		m.entries = append(m.entries, oe)
	}
	return nil
}

// CanMerge reports whether Merge(other) is guaranteed not to fail.
func (m *LWWMap[K, V]) CanMerge(other *LWWMap[K, V]) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	other.mu.RLock()
	defer other.mu.RUnlock()
	projected := len(m.entries)
	for _, oe := range other.entries {
		if indexOfKey(m.entries, oe.key) < 0 {
			projected++
		}
	}
	return projected <= m.capacity
}

// Equals compares the entry sets irrespective of slot order.
func (m *LWWMap[K, V]) Equals(other *LWWMap[K, V]) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	other.mu.RLock()
	defer other.mu.RUnlock()
	if len(m.entries) != len(other.entries) {
		return false
	}
	for _, e := range m.entries {
		i := indexOfKey(other.entries, e.key)
		if i < 0 || other.entries[i].ts != e.ts || other.entries[i].writer != e.writer || !anyEqual(any(e.value), any(other.entries[i].value)) {
			return false
		}
	}
	return true
}

func anyEqual(a, b any) bool {
	defer func() { recover() }()
	return a == b
}

// StateHash folds every entry's (key, ts, writer) tuple in a
// commutative (XOR) accumulator so the result is independent of slot order.
func (m *LWWMap[K, V]) StateHash() uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var h uint32
	for _, e := range m.entries {
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
	m.mu.RLock()
	defer m.mu.RUnlock()
	if int(m.localID) >= m.cfg.MaxNodes {
		return crdterr.New(crdterr.InvalidNodeId, "LWWMap.Validate", "node id %d out of range", m.localID)
	}
	if len(m.entries) > m.capacity {
		return crdterr.New(crdterr.InvalidState, "LWWMap.Validate", "entry count %d exceeds capacity %d", len(m.entries), m.capacity)
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

// MemoryUsage equals MaxSizeBytes: the backing array is preallocated.
func (m *LWWMap[K, V]) MemoryUsage() int {
	return m.MaxSizeBytes()
}

// ElementCount returns the current entry count.
func (m *LWWMap[K, V]) ElementCount() int {
	return m.Len()
}

// CanAddElement reports whether one more entry would fit.
func (m *LWWMap[K, V]) CanAddElement() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries) < m.capacity
}

// Compact never frees anything: Remove already frees its slot immediately.
func (m *LWWMap[K, V]) Compact() int {
	return 0
}

// MaxMergeCycles is the declared worst-case Merge budget: a linear scan of
// other against this map's current keys, per entry.
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
	m.mu.Lock()
	defer m.mu.Unlock()
	other.mu.RLock()
	defer other.mu.RUnlock()
	for _, oe := range other.entries {
		if !budget.Consume(uint32(len(m.entries)) + 1) {
			return crdterr.New(crdterr.RealTimeViolation, "LWWMap.MergeBounded", "cycle budget exhausted")
		}
		if i := indexOfKey(m.entries, oe.key); i >= 0 {
			if clock.Wins(oe.ts, oe.writer, false, m.entries[i].ts, m.entries[i].writer) {
				m.entries[i].value = oe.value
				m.entries[i].ts = oe.ts
				m.entries[i].writer = oe.writer
			}
			continue
		}
		if len(m.entries) >= m.capacity {
			return crdterr.New(crdterr.BufferOverflow, "LWWMap.MergeBounded", "at capacity %d", m.capacity)
		}
		m.entries = append(m.entries, oe)
	}
	return nil
}

// ValidateBounded behaves like Validate but is cycle-bounded.
func (m *LWWMap[K, V]) ValidateBounded(budget *contract.Budget) error {
	if !budget.Consume(1) {
		return crdterr.New(crdterr.RealTimeViolation, "LWWMap.ValidateBounded", "cycle budget exhausted")
	}
	return m.Validate()
}

//go:build crdt_lockfree

package gset

import (
	"fmt"
	"sync"
	"unsafe"

	"go.uber.org/atomic"

	"github.com/Polqt/crdtcore/config"
	"github.com/Polqt/crdtcore/contract"
	"github.com/Polqt/crdtcore/crdterr"
)

// box wraps the element slice so atomic.Value always sees one concrete type.
type box[T comparable] struct{ elements []T }

// GSet is the lock-free grow-only set: Contains/Elements/Len read an
// immutable snapshot via atomic.Value.Load without blocking; Insert/Merge
// compute a new snapshot and publish it behind writeMu.
type GSet[T comparable] struct {
	snapshot atomic.Value // holds box[T]
	writeMu  sync.Mutex
	capacity int
	cfg      config.Profile
}

// NewGSet creates an empty set holding at most capacity elements.
func NewGSet[T comparable](capacity int, cfg config.Profile) (*GSet[T], error) {
	if capacity <= 0 {
		return nil, crdterr.New(crdterr.InvalidOperation, "GSet.New", "capacity must be > 0")
	}
	if capacity > cfg.MaxSetElements {
		return nil, crdterr.New(crdterr.ConfigurationExceeded, "GSet.New", "capacity %d exceeds profile MaxSetElements %d", capacity, cfg.MaxSetElements)
	}
	s := &GSet[T]{capacity: capacity, cfg: cfg}
	s.snapshot.Store(box[T]{elements: make([]T, 0, capacity)})
	return s, nil
}

func (s *GSet[T]) load() []T {
	return s.snapshot.Load().(box[T]).elements
}

func indexOf[T comparable](elements []T, v T) int {
	for i, e := range elements {
		if e == v {
			return i
		}
	}
	return -1
}

// Insert adds v if not already present.
func (s *GSet[T]) Insert(v T) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	cur := s.load()
	if indexOf(cur, v) >= 0 {
		return false, nil
	}
	if len(cur) >= s.capacity {
		return false, crdterr.New(crdterr.BufferOverflow, "GSet.Insert", "at capacity %d", s.capacity)
	}
	next := make([]T, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, v)
	s.snapshot.Store(box[T]{elements: next})
	return true, nil
}

// Contains reports whether v is a member.
func (s *GSet[T]) Contains(v T) bool {
	return indexOf(s.load(), v) >= 0
}

// Len returns the current member count.
func (s *GSet[T]) Len() int {
	return len(s.load())
}

// Elements returns a snapshot copy of the current members.
func (s *GSet[T]) Elements() []T {
	cur := s.load()
	out := make([]T, len(cur))
	copy(out, cur)
	return out
}

// Merge absorbs every element of other not already present.
func (s *GSet[T]) Merge(other *GSet[T]) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	cur := s.load()
	next := make([]T, len(cur), s.capacity)
	copy(next, cur)
	for _, v := range other.load() {
		if indexOf(next, v) >= 0 {
			continue
		}
		if len(next) >= s.capacity {
			return crdterr.New(crdterr.BufferOverflow, "GSet.Merge", "at capacity %d", s.capacity)
		}
		next = append(next, v)
	}
	s.snapshot.Store(box[T]{elements: next})
	return nil
}

// CanMerge reports whether Merge(other) is guaranteed not to fail.
func (s *GSet[T]) CanMerge(other *GSet[T]) bool {
	cur := s.load()
	projected := len(cur)
	for _, v := range other.load() {
		if indexOf(cur, v) < 0 {
			projected++
		}
	}
	return projected <= s.capacity
}

// IsSubset reports whether every element of s is also in other.
func (s *GSet[T]) IsSubset(other *GSet[T]) bool {
	o := other.load()
	for _, v := range s.load() {
		if indexOf(o, v) < 0 {
			return false
		}
	}
	return true
}

// IsSuperset reports whether every element of other is also in s.
func (s *GSet[T]) IsSuperset(other *GSet[T]) bool {
	return other.IsSubset(s)
}

// Union returns a new set containing every element of s and other.
func (s *GSet[T]) Union(other *GSet[T], capacity int, cfg config.Profile) (*GSet[T], error) {
	out, err := NewGSet[T](capacity, cfg)
	if err != nil {
		return nil, err
	}
	if err := out.Merge(s); err != nil {
		return nil, err
	}
	if err := out.Merge(other); err != nil {
		return nil, err
	}
	return out, nil
}

// Equals compares set membership irrespective of insertion order.
func (s *GSet[T]) Equals(other *GSet[T]) bool {
	a, b := s.load(), other.load()
	if len(a) != len(b) {
		return false
	}
	for _, v := range a {
		if indexOf(b, v) < 0 {
			return false
		}
	}
	return true
}

// StateHash XOR-combines each element's digest so the result is
// independent of insertion order.
func (s *GSet[T]) StateHash() uint32 {
	var h uint32
	for _, v := range s.load() {
		h ^= elementDigest(v)
	}
	return h
}

func elementDigest[T comparable](v T) uint32 {
	tag := fmt.Sprintf("%v", v)
	h := uint32(2166136261)
	for i := 0; i < len(tag); i++ {
		h ^= uint32(tag[i])
		h *= 16777619
	}
	return h
}

// Validate checks the capacity invariant.
func (s *GSet[T]) Validate() error {
	if len(s.load()) > s.capacity {
		return crdterr.New(crdterr.InvalidState, "GSet.Validate", "element count exceeds capacity %d", s.capacity)
	}
	if s.capacity > s.cfg.MaxSetElements {
		return crdterr.New(crdterr.ConfigurationExceeded, "GSet.Validate", "capacity %d exceeds profile MaxSetElements %d", s.capacity, s.cfg.MaxSetElements)
	}
	return nil
}

// MaxSizeBytes is this instance's memory ceiling.
func (s *GSet[T]) MaxSizeBytes() int {
	var zero T
	return s.capacity*int(unsafe.Sizeof(zero)) + 8
}

// MaxElements is the configured element ceiling.
func (s *GSet[T]) MaxElements() int {
	return s.capacity
}

// MemoryUsage equals MaxSizeBytes.
func (s *GSet[T]) MemoryUsage() int {
	return s.MaxSizeBytes()
}

// ElementCount returns the current member count.
func (s *GSet[T]) ElementCount() int {
	return s.Len()
}

// CanAddElement reports whether one more member would fit.
func (s *GSet[T]) CanAddElement() bool {
	return len(s.load()) < s.capacity
}

// Compact never frees anything.
func (s *GSet[T]) Compact() int {
	return 0
}

// MaxMergeCycles is the declared worst-case Merge budget.
func (s *GSet[T]) MaxMergeCycles() uint32 {
	return uint32(s.capacity * s.capacity)
}

// MaxValidateCycles is the declared worst-case Validate budget.
func (s *GSet[T]) MaxValidateCycles() uint32 {
	return 1
}

// MaxSerializeCycles is the declared worst-case serialization budget.
func (s *GSet[T]) MaxSerializeCycles() uint32 {
	return uint32(s.capacity)
}

// MergeBounded behaves like Merge but consumes budget per candidate scanned.
func (s *GSet[T]) MergeBounded(other *GSet[T], budget *contract.Budget) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	cur := s.load()
	next := make([]T, len(cur), s.capacity)
	copy(next, cur)
	for _, v := range other.load() {
		if !budget.Consume(uint32(len(next)) + 1) {
			return crdterr.New(crdterr.RealTimeViolation, "GSet.MergeBounded", "cycle budget exhausted")
		}
		if indexOf(next, v) >= 0 {
			continue
		}
		if len(next) >= s.capacity {
			return crdterr.New(crdterr.BufferOverflow, "GSet.MergeBounded", "at capacity %d", s.capacity)
		}
		next = append(next, v)
	}
	s.snapshot.Store(box[T]{elements: next})
	return nil
}

// ValidateBounded behaves like Validate but is cycle-bounded.
func (s *GSet[T]) ValidateBounded(budget *contract.Budget) error {
	if !budget.Consume(1) {
		return crdterr.New(crdterr.RealTimeViolation, "GSet.ValidateBounded", "cycle budget exhausted")
	}
	return s.Validate()
}

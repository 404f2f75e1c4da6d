//go:build !crdt_lockfree

package pncounter

import (
	"math"
	"sync"

	"github.com/Polqt/crdtcore/clock"
	"github.com/Polqt/crdtcore/config"
	"github.com/Polqt/crdtcore/contract"
	"github.com/Polqt/crdtcore/crdterr"
)

// PNCounter is the exclusive-mode positive/negative counter: two
// mutex-protected node-indexed slot vectors.
type PNCounter struct {
	mu       sync.RWMutex
	positive []uint32
	negative []uint32
	nodeID   clock.NodeId
	cfg      config.Profile
}

// NewPNCounter creates a counter for nodeID with capacity slots per vector.
func NewPNCounter(nodeID clock.NodeId, capacity int, cfg config.Profile) (*PNCounter, error) {
	if int(nodeID) >= capacity || int(nodeID) >= cfg.MaxNodes {
		return nil, crdterr.New(crdterr.InvalidNodeId, "PNCounter.New", "node id %d out of range for capacity %d / MaxNodes %d", nodeID, capacity, cfg.MaxNodes)
	}
	return &PNCounter{
		positive: make([]uint32, capacity),
		negative: make([]uint32, capacity),
		nodeID:   nodeID,
		cfg:      cfg,
	}, nil
}

func incSlot(slots []uint32, idx clock.NodeId, amount uint32) error {
	cur := slots[idx]
	if cur > math.MaxUint32-amount {
		return crdterr.New(crdterr.BufferOverflow, "PNCounter", "slot %d would overflow", idx)
	}
	slots[idx] = cur + amount
	return nil
}

// Increment adds delta to this node's positive slot.
func (c *PNCounter) Increment(amount uint32) error {
	if amount == 0 {
		return crdterr.New(crdterr.InvalidOperation, "PNCounter.Increment", "amount must be > 0")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return incSlot(c.positive, c.nodeID, amount)
}

// Decrement adds delta to this node's negative slot.
func (c *PNCounter) Decrement(amount uint32) error {
	if amount == 0 {
		return crdterr.New(crdterr.InvalidOperation, "PNCounter.Decrement", "amount must be > 0")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return incSlot(c.negative, c.nodeID, amount)
}

func sumOf(slots []uint32) uint64 {
	var sum uint64
	for _, v := range slots {
		sum += uint64(v)
	}
	return sum
}

// signedDiff computes pos - neg as a signed widened value without risking
// a uint64 underflow, per spec §4.2: compare sums first, subtract in the
// appropriate direction.
func signedDiff(pos, neg uint64) int64 {
	if pos >= neg {
		return int64(pos - neg)
	}
	return -int64(neg - pos)
}

// Value returns sum(positive) - sum(negative).
func (c *PNCounter) Value() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return signedDiff(sumOf(c.positive), sumOf(c.negative))
}

// TotalPositive returns the widened sum of the positive vector.
func (c *PNCounter) TotalPositive() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return sumOf(c.positive)
}

// TotalNegative returns the widened sum of the negative vector.
func (c *PNCounter) TotalNegative() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return sumOf(c.negative)
}

// NodeValue returns (positive, negative, net) for a single node's slot.
func (c *PNCounter) NodeValue(id clock.NodeId) (positive, negative uint64, net int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if int(id) >= len(c.positive) {
		return 0, 0, 0
	}
	p, n := uint64(c.positive[id]), uint64(c.negative[id])
	return p, n, signedDiff(p, n)
}

// NodeID returns this counter's local node id.
func (c *PNCounter) NodeID() clock.NodeId {
	return c.nodeID
}

// Capacity returns the per-vector node-slot count.
func (c *PNCounter) Capacity() int {
	return len(c.positive)
}

func mergeVec(dst, src []uint32) {
	for i, v := range src {
		if v > dst[i] {
			dst[i] = v
		}
	}
}

// Merge takes the coordinate-wise maximum independently on both vectors
// (spec §4.2).
func (c *PNCounter) Merge(other *PNCounter) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	other.mu.RLock()
	defer other.mu.RUnlock()
	if len(c.positive) != len(other.positive) {
		return crdterr.New(crdterr.ConfigurationExceeded, "PNCounter.Merge", "capacity mismatch: %d vs %d", len(c.positive), len(other.positive))
	}
	mergeVec(c.positive, other.positive)
	mergeVec(c.negative, other.negative)
	return nil
}

// CanMerge reports whether Merge(other) is guaranteed to succeed.
func (c *PNCounter) CanMerge(other *PNCounter) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	other.mu.RLock()
	defer other.mu.RUnlock()
	return len(c.positive) == len(other.positive)
}

// Equals compares both vectors.
func (c *PNCounter) Equals(other *PNCounter) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	other.mu.RLock()
	defer other.mu.RUnlock()
	if len(c.positive) != len(other.positive) {
		return false
	}
	for i := range c.positive {
		if c.positive[i] != other.positive[i] || c.negative[i] != other.negative[i] {
			return false
		}
	}
	return true
}

// StateHash folds both vectors.
func (c *PNCounter) StateHash() uint32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h := uint32(2166136261)
	for _, v := range c.positive {
		h = fnvFold(h, v)
	}
	for _, v := range c.negative {
		h = fnvFold(h, v)
	}
	return h
}

func fnvFold(h uint32, v uint32) uint32 {
	for i := 0; i < 4; i++ {
		h ^= uint32(byte(v >> (8 * i)))
		h *= 16777619
	}
	return h
}

// Validate checks the node-id invariant.
func (c *PNCounter) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if int(c.nodeID) >= len(c.positive) || int(c.nodeID) >= c.cfg.MaxNodes {
		return crdterr.New(crdterr.InvalidNodeId, "PNCounter.Validate", "node id %d out of range", c.nodeID)
	}
	return nil
}

// MaxSizeBytes is this instance's memory ceiling.
func (c *PNCounter) MaxSizeBytes() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return 8*len(c.positive) + 8
}

// MaxElements is the per-vector node-slot ceiling.
func (c *PNCounter) MaxElements() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.positive)
}

// MemoryUsage equals MaxSizeBytes: both vectors are preallocated in full.
func (c *PNCounter) MemoryUsage() int {
	return c.MaxSizeBytes()
}

// ElementCount returns the number of slots with any non-zero mass.
func (c *PNCounter) ElementCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for i := range c.positive {
		if c.positive[i] != 0 || c.negative[i] != 0 {
			n++
		}
	}
	return n
}

// CanAddElement is always true: both vectors are preallocated in full.
func (c *PNCounter) CanAddElement() bool {
	return true
}

// Compact never frees anything.
func (c *PNCounter) Compact() int {
	return 0
}

// MaxMergeCycles is the declared worst-case Merge budget: two units per slot.
func (c *PNCounter) MaxMergeCycles() uint32 {
	return uint32(2 * c.Capacity())
}

// MaxValidateCycles is the declared worst-case Validate budget.
func (c *PNCounter) MaxValidateCycles() uint32 {
	return 1
}

// MaxSerializeCycles is the declared worst-case serialization budget.
func (c *PNCounter) MaxSerializeCycles() uint32 {
	return uint32(2 * c.Capacity())
}

// MergeBounded behaves like Merge but is cycle-bounded.
func (c *PNCounter) MergeBounded(other *PNCounter, budget *contract.Budget) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	other.mu.RLock()
	defer other.mu.RUnlock()
	if len(c.positive) != len(other.positive) {
		return crdterr.New(crdterr.ConfigurationExceeded, "PNCounter.MergeBounded", "capacity mismatch: %d vs %d", len(c.positive), len(other.positive))
	}
	for i := range c.positive {
		if !budget.Consume(2) {
			return crdterr.New(crdterr.RealTimeViolation, "PNCounter.MergeBounded", "cycle budget exhausted at slot %d", i)
		}
		if other.positive[i] > c.positive[i] {
			c.positive[i] = other.positive[i]
		}
		if other.negative[i] > c.negative[i] {
			c.negative[i] = other.negative[i]
		}
	}
	return nil
}

// ValidateBounded behaves like Validate but is cycle-bounded.
func (c *PNCounter) ValidateBounded(budget *contract.Budget) error {
	if !budget.Consume(1) {
		return crdterr.New(crdterr.RealTimeViolation, "PNCounter.ValidateBounded", "cycle budget exhausted")
	}
	return c.Validate()
}

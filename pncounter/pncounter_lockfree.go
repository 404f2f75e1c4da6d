//go:build crdt_lockfree

package pncounter

import (
	"math"

	"go.uber.org/atomic"

	"github.com/Polqt/crdtcore/clock"
	"github.com/Polqt/crdtcore/config"
	"github.com/Polqt/crdtcore/contract"
	"github.com/Polqt/crdtcore/crdterr"
)

// PNCounter is the lock-free positive/negative counter: two per-slot
// atomic vectors, mirroring package gcounter's lockfree mode.
type PNCounter struct {
	positive []atomic.Uint32
	negative []atomic.Uint32
	nodeID   clock.NodeId
	cfg      config.Profile
}

// NewPNCounter creates a counter for nodeID with capacity slots per vector.
func NewPNCounter(nodeID clock.NodeId, capacity int, cfg config.Profile) (*PNCounter, error) {
	if int(nodeID) >= capacity || int(nodeID) >= cfg.MaxNodes {
		return nil, crdterr.New(crdterr.InvalidNodeId, "PNCounter.New", "node id %d out of range for capacity %d / MaxNodes %d", nodeID, capacity, cfg.MaxNodes)
	}
	return &PNCounter{
		positive: make([]atomic.Uint32, capacity),
		negative: make([]atomic.Uint32, capacity),
		nodeID:   nodeID,
		cfg:      cfg,
	}, nil
}

func incSlotAtomic(slots []atomic.Uint32, idx clock.NodeId, amount uint32) error {
	slot := &slots[idx]
	newVal := slot.Add(amount)
	old := newVal - amount
	if old > math.MaxUint32-amount {
		slot.Sub(amount)
		return crdterr.New(crdterr.BufferOverflow, "PNCounter", "slot %d would overflow", idx)
	}
	return nil
}

// Increment adds delta to this node's positive slot.
func (c *PNCounter) Increment(amount uint32) error {
	if amount == 0 {
		return crdterr.New(crdterr.InvalidOperation, "PNCounter.Increment", "amount must be > 0")
	}
	return incSlotAtomic(c.positive, c.nodeID, amount)
}

// Decrement adds delta to this node's negative slot.
func (c *PNCounter) Decrement(amount uint32) error {
	if amount == 0 {
		return crdterr.New(crdterr.InvalidOperation, "PNCounter.Decrement", "amount must be > 0")
	}
	return incSlotAtomic(c.negative, c.nodeID, amount)
}

func sumOfAtomic(slots []atomic.Uint32) uint64 {
	var sum uint64
	for i := range slots {
		sum += uint64(slots[i].Load())
	}
	return sum
}

func signedDiff(pos, neg uint64) int64 {
	if pos >= neg {
		return int64(pos - neg)
	}
	return -int64(neg - pos)
}

// Value returns sum(positive) - sum(negative).
func (c *PNCounter) Value() int64 {
	return signedDiff(sumOfAtomic(c.positive), sumOfAtomic(c.negative))
}

// TotalPositive returns the widened sum of the positive vector.
func (c *PNCounter) TotalPositive() uint64 {
	return sumOfAtomic(c.positive)
}

// TotalNegative returns the widened sum of the negative vector.
func (c *PNCounter) TotalNegative() uint64 {
	return sumOfAtomic(c.negative)
}

// NodeValue returns (positive, negative, net) for a single node's slot.
func (c *PNCounter) NodeValue(id clock.NodeId) (positive, negative uint64, net int64) {
	if int(id) >= len(c.positive) {
		return 0, 0, 0
	}
	p, n := uint64(c.positive[id].Load()), uint64(c.negative[id].Load())
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

func mergeVecAtomic(dst, src []atomic.Uint32) {
	for i := range dst {
		peer := src[i].Load()
		for {
			cur := dst[i].Load()
			if peer <= cur {
				break
			}
			if dst[i].CompareAndSwap(cur, peer) {
				break
			}
		}
	}
}

// Merge takes the coordinate-wise maximum independently on both vectors
// via per-slot CAS loops.
func (c *PNCounter) Merge(other *PNCounter) error {
	if len(c.positive) != len(other.positive) {
		return crdterr.New(crdterr.ConfigurationExceeded, "PNCounter.Merge", "capacity mismatch: %d vs %d", len(c.positive), len(other.positive))
	}
	mergeVecAtomic(c.positive, other.positive)
	mergeVecAtomic(c.negative, other.negative)
	return nil
}

// CanMerge reports whether Merge(other) is guaranteed to succeed.
func (c *PNCounter) CanMerge(other *PNCounter) bool {
	return len(c.positive) == len(other.positive)
}

// Equals compares both vectors.
func (c *PNCounter) Equals(other *PNCounter) bool {
	if len(c.positive) != len(other.positive) {
		return false
	}
	for i := range c.positive {
		if c.positive[i].Load() != other.positive[i].Load() || c.negative[i].Load() != other.negative[i].Load() {
			return false
		}
	}
	return true
}

// StateHash folds both vectors.
func (c *PNCounter) StateHash() uint32 {
	h := uint32(2166136261)
	for i := range c.positive {
		h = fnvFold(h, c.positive[i].Load())
	}
	for i := range c.negative {
		h = fnvFold(h, c.negative[i].Load())
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
	if int(c.nodeID) >= len(c.positive) || int(c.nodeID) >= c.cfg.MaxNodes {
		return crdterr.New(crdterr.InvalidNodeId, "PNCounter.Validate", "node id %d out of range", c.nodeID)
	}
	return nil
}

// MaxSizeBytes is this instance's memory ceiling.
func (c *PNCounter) MaxSizeBytes() int {
	return 8*len(c.positive) + 8
}

// MaxElements is the per-vector node-slot ceiling.
func (c *PNCounter) MaxElements() int {
	return len(c.positive)
}

// MemoryUsage equals MaxSizeBytes: both vectors are preallocated in full.
func (c *PNCounter) MemoryUsage() int {
	return c.MaxSizeBytes()
}

// ElementCount returns the number of slots with any non-zero mass.
func (c *PNCounter) ElementCount() int {
	n := 0
	for i := range c.positive {
		if c.positive[i].Load() != 0 || c.negative[i].Load() != 0 {
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
	if len(c.positive) != len(other.positive) {
		return crdterr.New(crdterr.ConfigurationExceeded, "PNCounter.MergeBounded", "capacity mismatch: %d vs %d", len(c.positive), len(other.positive))
	}
	for i := range c.positive {
		if !budget.Consume(2) {
			return crdterr.New(crdterr.RealTimeViolation, "PNCounter.MergeBounded", "cycle budget exhausted at slot %d", i)
		}
		peerPos := other.positive[i].Load()
		for {
			cur := c.positive[i].Load()
			if peerPos <= cur || c.positive[i].CompareAndSwap(cur, peerPos) {
				break
			}
		}
		peerNeg := other.negative[i].Load()
		for {
			cur := c.negative[i].Load()
			if peerNeg <= cur || c.negative[i].CompareAndSwap(cur, peerNeg) {
				break
			}
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

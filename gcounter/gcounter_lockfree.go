//go:build crdt_lockfree

package gcounter

import (
	"math"

	"go.uber.org/atomic"

	"github.com/Polqt/crdtcore/clock"
	"github.com/Polqt/crdtcore/config"
	"github.com/Polqt/crdtcore/contract"
	"github.com/Polqt/crdtcore/crdterr"
)

// GCounter is the lock-free grow-only counter: mutating operations take a
// shared borrow and use per-slot hardware atomics (spec §5). Increment uses
// fetch-add-and-rollback instead of a CAS loop since a single add either
// succeeds outright or is cheaply undone; Merge upgrades each slot with a
// CAS loop bounded by the number of competing writers.
type GCounter struct {
	slots  []atomic.Uint32
	nodeID clock.NodeId
	cfg    config.Profile
}

// NewGCounter creates a counter for nodeID with capacity slots.
func NewGCounter(nodeID clock.NodeId, capacity int, cfg config.Profile) (*GCounter, error) {
	if int(nodeID) >= capacity || int(nodeID) >= cfg.MaxNodes {
		return nil, crdterr.New(crdterr.InvalidNodeId, "GCounter.New", "node id %d out of range for capacity %d / MaxNodes %d", nodeID, capacity, cfg.MaxNodes)
	}
	return &GCounter{
		slots:  make([]atomic.Uint32, capacity),
		nodeID: nodeID,
		cfg:    cfg,
	}, nil
}

// Increment adds amount to the local node's slot via fetch-add. On
// overflow it subtracts the amount back out, then reports BufferOverflow;
// a concurrent reader can see the wrapped slot value between the two steps.
func (c *GCounter) Increment(amount uint32) error {
	if amount == 0 {
		return crdterr.New(crdterr.InvalidOperation, "GCounter.Increment", "amount must be > 0")
	}
	slot := &c.slots[c.nodeID]
	newVal := slot.Add(amount)
	old := newVal - amount
	if old > math.MaxUint32-amount {
		slot.Sub(amount)
		return crdterr.New(crdterr.BufferOverflow, "GCounter.Increment", "slot %d would overflow", c.nodeID)
	}
	return nil
}

// Value returns a snapshot widened sum of all slots. Individual slot reads
// are atomic but the overall sum may interleave with concurrent writers;
// callers accept this the way spec §5 describes.
func (c *GCounter) Value() uint64 {
	var sum uint64
	for i := range c.slots {
		sum += uint64(c.slots[i].Load())
	}
	return sum
}

// NodeValue returns the widened value of slot id, or 0 if out of range.
func (c *GCounter) NodeValue(id clock.NodeId) uint64 {
	if int(id) >= len(c.slots) {
		return 0
	}
	return uint64(c.slots[id].Load())
}

// NodeID returns this counter's local node id.
func (c *GCounter) NodeID() clock.NodeId {
	return c.nodeID
}

// Capacity returns the number of node slots this counter was built with.
func (c *GCounter) Capacity() int {
	return len(c.slots)
}

// Merge upgrades each slot via a CAS loop that replaces the current value
// with the peer's value only while the peer's value is strictly greater
// (spec §5).
func (c *GCounter) Merge(other *GCounter) error {
	if len(c.slots) != len(other.slots) {
		return crdterr.New(crdterr.ConfigurationExceeded, "GCounter.Merge", "capacity mismatch: %d vs %d", len(c.slots), len(other.slots))
	}
	for i := range c.slots {
		peer := other.slots[i].Load()
		for {
			cur := c.slots[i].Load()
			if peer <= cur {
				break
			}
			if c.slots[i].CompareAndSwap(cur, peer) {
				break
			}
		}
	}
	return nil
}

// CanMerge reports whether Merge(other) is guaranteed to succeed.
func (c *GCounter) CanMerge(other *GCounter) bool {
	return len(c.slots) == len(other.slots)
}

// Equals compares logical state (the slot vector).
func (c *GCounter) Equals(other *GCounter) bool {
	if len(c.slots) != len(other.slots) {
		return false
	}
	for i := range c.slots {
		if c.slots[i].Load() != other.slots[i].Load() {
			return false
		}
	}
	return true
}

// StateHash returns a value-based hash that agrees for logically equal
// states.
func (c *GCounter) StateHash() uint32 {
	h := uint32(2166136261)
	for i := range c.slots {
		h = fnvFold(h, c.slots[i].Load())
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
func (c *GCounter) Validate() error {
	if int(c.nodeID) >= len(c.slots) || int(c.nodeID) >= c.cfg.MaxNodes {
		return crdterr.New(crdterr.InvalidNodeId, "GCounter.Validate", "node id %d out of range", c.nodeID)
	}
	return nil
}

// MaxSizeBytes is this instance's memory ceiling.
func (c *GCounter) MaxSizeBytes() int {
	return 4*len(c.slots) + 8
}

// MaxElements is the node-slot ceiling.
func (c *GCounter) MaxElements() int {
	return len(c.slots)
}

// MemoryUsage equals MaxSizeBytes: the backing array is preallocated.
func (c *GCounter) MemoryUsage() int {
	return c.MaxSizeBytes()
}

// ElementCount returns the number of slots with a non-zero value.
func (c *GCounter) ElementCount() int {
	n := 0
	for i := range c.slots {
		if c.slots[i].Load() != 0 {
			n++
		}
	}
	return n
}

// CanAddElement is always true: the slot array is preallocated in full.
func (c *GCounter) CanAddElement() bool {
	return true
}

// Compact never frees anything.
func (c *GCounter) Compact() int {
	return 0
}

// MaxMergeCycles is the declared worst-case Merge budget: one unit per slot.
func (c *GCounter) MaxMergeCycles() uint32 {
	return uint32(c.Capacity())
}

// MaxValidateCycles is the declared worst-case Validate budget.
func (c *GCounter) MaxValidateCycles() uint32 {
	return 1
}

// MaxSerializeCycles is the declared worst-case serialization budget.
func (c *GCounter) MaxSerializeCycles() uint32 {
	return uint32(c.Capacity())
}

// MergeBounded behaves like Merge but consumes one budget unit per slot.
func (c *GCounter) MergeBounded(other *GCounter, budget *contract.Budget) error {
	if len(c.slots) != len(other.slots) {
		return crdterr.New(crdterr.ConfigurationExceeded, "GCounter.MergeBounded", "capacity mismatch: %d vs %d", len(c.slots), len(other.slots))
	}
	for i := range c.slots {
		if !budget.Consume(1) {
			return crdterr.New(crdterr.RealTimeViolation, "GCounter.MergeBounded", "cycle budget exhausted at slot %d", i)
		}
		peer := other.slots[i].Load()
		for {
			cur := c.slots[i].Load()
			if peer <= cur {
				break
			}
			if c.slots[i].CompareAndSwap(cur, peer) {
				break
			}
		}
	}
	return nil
}

// ValidateBounded behaves like Validate but is cycle-bounded.
func (c *GCounter) ValidateBounded(budget *contract.Budget) error {
	if !budget.Consume(1) {
		return crdterr.New(crdterr.RealTimeViolation, "GCounter.ValidateBounded", "cycle budget exhausted")
	}
	return c.Validate()
}

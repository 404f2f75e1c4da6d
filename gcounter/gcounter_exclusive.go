//go:build !crdt_lockfree

package gcounter

import (
	"math"
	"sync"

	"github.com/Polqt/crdtcore/clock"
	"github.com/Polqt/crdtcore/config"
	"github.com/Polqt/crdtcore/contract"
	"github.com/Polqt/crdtcore/crdterr"
)

// GCounter is the exclusive-mode (mutex-protected) grow-only counter.
// Mutating operations take a unique borrow; callers are expected to be
// single-threaded with respect to this instance, as the teacher's
// LWWRegister does with sync.RWMutex.
type GCounter struct {
	mu     sync.RWMutex
	slots  []uint32
	nodeID clock.NodeId
	cfg    config.Profile
}

// NewGCounter creates a counter for nodeID with capacity slots, validated
// against cfg (spec §4.1's validation rule: local_id < CAPACITY and
// local_id < cfg.MaxNodes).
func NewGCounter(nodeID clock.NodeId, capacity int, cfg config.Profile) (*GCounter, error) {
	if int(nodeID) >= capacity || int(nodeID) >= cfg.MaxNodes {
		return nil, crdterr.New(crdterr.InvalidNodeId, "GCounter.New", "node id %d out of range for capacity %d / MaxNodes %d", nodeID, capacity, cfg.MaxNodes)
	}
	return &GCounter{
		slots:  make([]uint32, capacity),
		nodeID: nodeID,
		cfg:    cfg,
	}, nil
}

// Increment adds amount to the local node's slot. Fails InvalidOperation
// for a zero amount and BufferOverflow if the slot would wrap uint32.
func (c *GCounter) Increment(amount uint32) error {
	if amount == 0 {
		return crdterr.New(crdterr.InvalidOperation, "GCounter.Increment", "amount must be > 0")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cur := c.slots[c.nodeID]
	if cur > math.MaxUint32-amount {
		return crdterr.New(crdterr.BufferOverflow, "GCounter.Increment", "slot %d would overflow", c.nodeID)
	}
	c.slots[c.nodeID] = cur + amount
	return nil
}

// Value returns the widened sum of all slots.
func (c *GCounter) Value() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var sum uint64
	for _, v := range c.slots {
		sum += uint64(v)
	}
	return sum
}

// NodeValue returns the widened value of slot id, or 0 if id is out of range.
func (c *GCounter) NodeValue(id clock.NodeId) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if int(id) >= len(c.slots) {
		return 0
	}
	return uint64(c.slots[id])
}

// NodeID returns this counter's local node id.
func (c *GCounter) NodeID() clock.NodeId {
	return c.nodeID
}

// Capacity returns the number of node slots this counter was built with.
func (c *GCounter) Capacity() int {
	return len(c.slots)
}

// Merge sets self[i] = max(self[i], other[i]) for every slot index —
// the coordinate-wise join (spec §4.1).
func (c *GCounter) Merge(other *GCounter) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	other.mu.RLock()
	defer other.mu.RUnlock()
	if len(c.slots) != len(other.slots) {
		return crdterr.New(crdterr.ConfigurationExceeded, "GCounter.Merge", "capacity mismatch: %d vs %d", len(c.slots), len(other.slots))
	}
	for i, v := range other.slots {
		if v > c.slots[i] {
			c.slots[i] = v
		}
	}
	return nil
}

// CanMerge reports whether Merge(other) is guaranteed to succeed.
func (c *GCounter) CanMerge(other *GCounter) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	other.mu.RLock()
	defer other.mu.RUnlock()
	return len(c.slots) == len(other.slots)
}

// Equals compares logical state (the slot vector, slot by slot); node id
// is local identity and is not part of the logical state.
func (c *GCounter) Equals(other *GCounter) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	other.mu.RLock()
	defer other.mu.RUnlock()
	if len(c.slots) != len(other.slots) {
		return false
	}
	for i, v := range c.slots {
		if v != other.slots[i] {
			return false
		}
	}
	return true
}

// StateHash returns a value-based hash (FNV-1a fold) that agrees for
// logically equal states, replacing the ad-hoc address-based hash
// original_source used in places (spec §9 open question).
func (c *GCounter) StateHash() uint32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h := uint32(2166136261)
	for _, v := range c.slots {
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

// Validate checks the node-id invariant (spec §4.1).
func (c *GCounter) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if int(c.nodeID) >= len(c.slots) || int(c.nodeID) >= c.cfg.MaxNodes {
		return crdterr.New(crdterr.InvalidNodeId, "GCounter.Validate", "node id %d out of range", c.nodeID)
	}
	return nil
}

// MaxSizeBytes is this instance's memory ceiling.
func (c *GCounter) MaxSizeBytes() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return 4*len(c.slots) + 8
}

// MaxElements is the node-slot ceiling.
func (c *GCounter) MaxElements() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.slots)
}

// MemoryUsage is the current footprint; identical to MaxSizeBytes since
// the backing array is preallocated in full at construction.
func (c *GCounter) MemoryUsage() int {
	return c.MaxSizeBytes()
}

// ElementCount returns the number of slots with a non-zero value.
func (c *GCounter) ElementCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, v := range c.slots {
		if v != 0 {
			n++
		}
	}
	return n
}

// CanAddElement is always true: the slot array is preallocated in full and
// Increment only ever writes an existing slot.
func (c *GCounter) CanAddElement() bool {
	return true
}

// Compact never frees anything; no type in this module supports lossy
// compaction.
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

// MergeBounded behaves like Merge but consumes one budget unit per slot
// and fails RealTimeViolation instead of exceeding it.
func (c *GCounter) MergeBounded(other *GCounter, budget *contract.Budget) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	other.mu.RLock()
	defer other.mu.RUnlock()
	if len(c.slots) != len(other.slots) {
		return crdterr.New(crdterr.ConfigurationExceeded, "GCounter.MergeBounded", "capacity mismatch: %d vs %d", len(c.slots), len(other.slots))
	}
	for i, v := range other.slots {
		if !budget.Consume(1) {
			return crdterr.New(crdterr.RealTimeViolation, "GCounter.MergeBounded", "cycle budget exhausted at slot %d", i)
		}
		if v > c.slots[i] {
			c.slots[i] = v
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

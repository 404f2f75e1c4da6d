// Package config is the memory-configuration surface (spec §2.4, §6): a
// record of per-profile ceilings every CRDT consults at construction and
// during validation. The original Rust source makes MemoryConfig a trait
// with associated constants, resolved entirely at compile time; Go has no
// const generics, so a Profile is a plain value passed to each CRDT's
// constructor and stored once — never mutated afterward, which preserves
// the "configuration decided up front, not reflected upon at runtime"
// spirit even though the enforcement happens at construction rather than
// in the type system (recorded as an Open Question resolution in
// DESIGN.md).
package config

import "fmt"

// Profile carries the ceilings spec §6 names. Zero value is invalid;
// always start from Default or another named profile and adjust fields.
type Profile struct {
	Name string

	MaxNodes        int
	MaxRegisters    int
	MaxCounters     int
	MaxSets         int
	MaxMaps         int
	MaxSetElements  int
	MaxMapEntries   int
	MaxHistorySize  int
	TotalCRDTMemory int // bytes
	ClockBudget     int // bytes
	ErrorBufferSize int // bytes
	MemoryAlignment int // bytes, must be a power of two
	CacheLineSize   int // bytes, must be a power of two
}

// Default mirrors original_source/src/memory/config.rs's DefaultConfig.
var Default = Profile{
	Name:            "default",
	MaxNodes:        16,
	MaxRegisters:    50,
	MaxCounters:     25,
	MaxSets:         15,
	MaxMaps:         10,
	MaxSetElements:  32,
	MaxMapEntries:   32,
	MaxHistorySize:  4,
	TotalCRDTMemory: 32 * 1024,
	ClockBudget:     512,
	ErrorBufferSize: 256,
	MemoryAlignment: 4,
	CacheLineSize:   32,
}

// Automotive is a tighter ECU-class profile: few nodes on a CAN segment,
// small signal tables, grounded on original_source/src/automotive/sensors.rs
// and examples/automotive_ecu_network/src/sensor_manager.rs.
var Automotive = Profile{
	Name:            "automotive",
	MaxNodes:        8,
	MaxRegisters:    32,
	MaxCounters:     16,
	MaxSets:         8,
	MaxMaps:         8,
	MaxSetElements:  16,
	MaxMapEntries:   16,
	MaxHistorySize:  2,
	TotalCRDTMemory: 8 * 1024,
	ClockBudget:     256,
	ErrorBufferSize: 128,
	MemoryAlignment: 4,
	CacheLineSize:   32,
}

// Industrial mirrors original_source/src/industrial/equipment.rs's larger
// plant-floor equipment counts.
var Industrial = Profile{
	Name:            "industrial",
	MaxNodes:        64,
	MaxRegisters:    64,
	MaxCounters:     64,
	MaxSets:         32,
	MaxMaps:         16,
	MaxSetElements:  64,
	MaxMapEntries:   64,
	MaxHistorySize:  4,
	TotalCRDTMemory: 64 * 1024,
	ClockBudget:     1024,
	ErrorBufferSize: 512,
	MemoryAlignment: 8,
	CacheLineSize:   64,
}

// Robotics mirrors original_source/src/robotics/{status,mapping,signals}.rs:
// a small fleet with richer per-robot history for pose disagreement.
var Robotics = Profile{
	Name:            "robotics",
	MaxNodes:        32,
	MaxRegisters:    32,
	MaxCounters:     16,
	MaxSets:         16,
	MaxMaps:         16,
	MaxSetElements:  32,
	MaxMapEntries:   32,
	MaxHistorySize:  8,
	TotalCRDTMemory: 32 * 1024,
	ClockBudget:     512,
	ErrorBufferSize: 256,
	MemoryAlignment: 4,
	CacheLineSize:   32,
}

// Validate checks the invariants spec §6 names: alignment and cache line
// must be powers of two, MaxNodes must fit a NodeId byte, MaxSetElements
// must fit an efficient bitmap, and at least one CRDT category must be
// enabled.
func (p Profile) Validate() error {
	if !isPowerOfTwo(p.MemoryAlignment) {
		return fmt.Errorf("config: MemoryAlignment must be a power of two, got %d", p.MemoryAlignment)
	}
	if !isPowerOfTwo(p.CacheLineSize) {
		return fmt.Errorf("config: CacheLineSize must be a power of two, got %d", p.CacheLineSize)
	}
	if p.MaxNodes <= 0 || p.MaxNodes > 255 {
		return fmt.Errorf("config: MaxNodes must be in (0, 255], got %d", p.MaxNodes)
	}
	if p.MaxSetElements > 64 {
		return fmt.Errorf("config: MaxSetElements must be <= 64, got %d", p.MaxSetElements)
	}
	if p.MaxRegisters == 0 && p.MaxCounters == 0 && p.MaxSets == 0 && p.MaxMaps == 0 {
		return fmt.Errorf("config: at least one CRDT category must have a non-zero limit")
	}
	if p.MaxSetElements == 0 && p.MaxSets > 0 {
		return fmt.Errorf("config: MaxSetElements must be non-zero if MaxSets > 0")
	}
	if p.MaxMapEntries == 0 && p.MaxMaps > 0 {
		return fmt.Errorf("config: MaxMapEntries must be non-zero if MaxMaps > 0")
	}
	if estimated := p.EstimateUsage(); estimated > p.TotalCRDTMemory {
		return fmt.Errorf("config: estimated usage %d exceeds TotalCRDTMemory %d", estimated, p.TotalCRDTMemory)
	}
	return nil
}

// EstimateUsage gives a conservative total-bytes estimate across every CRDT
// category this profile allows, the way original_source/src/memory/config.rs's
// estimate_memory_usage does (§12 supplemented feature).
func (p Profile) EstimateUsage() int {
	registerMem := p.MaxRegisters * 16
	counterMem := p.MaxCounters * 8
	setMem := p.MaxSets * (8 + (p.MaxSetElements+7)/8)
	mapMem := p.MaxMaps * p.MaxMapEntries * 12
	return p.ClockBudget + p.ErrorBufferSize + registerMem + counterMem + setMem + mapMem
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

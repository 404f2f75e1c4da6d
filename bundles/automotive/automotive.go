// Package automotive is an ECU network register: one LWWMap keyed by
// signal name (ground speed, brake pressure, ...) shared across simulated
// CAN nodes, plus a GCounter-based fault-frame tally. Grounded on
// original_source/src/automotive/sensors.rs and
// examples/automotive_ecu_network/src/sensor_manager.rs — this is a thin
// external collaborator over package lwwmap/gcounter, not a redefinition
// of either (spec.md §1: domain bundles "reuse the core; they do not
// define it").
package automotive

import (
	"log/slog"

	"github.com/Polqt/crdtcore/clock"
	"github.com/Polqt/crdtcore/config"
	"github.com/Polqt/crdtcore/gcounter"
	"github.com/Polqt/crdtcore/lwwmap"
)

// Known signal names this bundle's sensor table tracks.
const (
	SignalGroundSpeed   = "ground_speed_kph"
	SignalBrakePressure = "brake_pressure_kpa"
	SignalSteeringAngle = "steering_angle_deg"
	SignalEngineRPM     = "engine_rpm"
)

// ECU is one simulated node's view of the shared signal table and its
// local fault-frame tally.
type ECU struct {
	nodeID clock.NodeId
	cfg    config.Profile

	Signals     *lwwmap.LWWMap[string, float64]
	FaultFrames *gcounter.GCounter
}

// NewECU builds an ECU node identified by nodeID under profile cfg. cfg
// should come from config.Automotive or config.LoadProfile for a
// per-class override (ambient stack §10).
func NewECU(nodeID clock.NodeId, cfg config.Profile) (*ECU, error) {
	signals, err := lwwmap.NewLWWMap[string, float64](nodeID, cfg.MaxMapEntries, cfg)
	if err != nil {
		return nil, err
	}
	faults, err := gcounter.NewGCounter(nodeID, cfg.MaxNodes, cfg)
	if err != nil {
		return nil, err
	}
	return &ECU{nodeID: nodeID, cfg: cfg, Signals: signals, FaultFrames: faults}, nil
}

// ReportSignal writes a sensor reading at the given logical tick, the way
// sensor_manager.rs publishes a value to the shared register whenever a
// CAN frame for that signal id arrives.
func (e *ECU) ReportSignal(name string, value float64, ts clock.CompactTimestamp) error {
	if err := e.Signals.Insert(name, value, ts); err != nil {
		slog.Warn("automotive: signal report rejected", "ecu", e.nodeID, "signal", name, "err", err)
		return err
	}
	return nil
}

// ReportFault increments this node's fault-frame tally by one.
func (e *ECU) ReportFault() error {
	if err := e.FaultFrames.Increment(1); err != nil {
		slog.Warn("automotive: fault tally overflow", "ecu", e.nodeID, "err", err)
		return err
	}
	return nil
}

// SyncFrom merges peer's signal table and fault tally into e, the way two
// ECUs exchange state after a CAN bus reconnect.
func (e *ECU) SyncFrom(peer *ECU) error {
	if err := e.Signals.Merge(peer.Signals); err != nil {
		slog.Warn("automotive: signal table merge failed", "ecu", e.nodeID, "peer", peer.nodeID, "err", err)
		return err
	}
	if err := e.FaultFrames.Merge(peer.FaultFrames); err != nil {
		slog.Warn("automotive: fault tally merge failed", "ecu", e.nodeID, "peer", peer.nodeID, "err", err)
		return err
	}
	return nil
}

// Signal returns the current value and whether it has ever been reported.
func (e *ECU) Signal(name string) (float64, bool) {
	v, _, ok := e.Signals.Get(name)
	return v, ok
}

// TotalFaults returns the network-wide fault-frame tally as last merged.
func (e *ECU) TotalFaults() uint64 {
	return e.FaultFrames.Value()
}

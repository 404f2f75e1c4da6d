// Package robotics is a fleet status/signal aggregator: an MVRegister per
// robot pose (concurrent writers during a brief network partition are
// expected and must all surface), an LWWRegister for the fused map frame,
// and a GSet of the coordination signals this fleet has raised. Grounded on
// original_source/src/robotics/status.rs (pose/mode fan-in) and signals.rs
// (SignalType and the Emergency/Help/Warning "critical" distinction —
// mapping.rs's full SharedMap spatial index is out of scope, see DESIGN.md).
//
// This bundle also exports Prometheus metrics — a counter of merge calls by
// outcome and a histogram of observed merge latency
// (github.com/prometheus/client_golang) — a
// legitimate external-collaborator use of metrics the core itself is
// forbidden from doing (spec.md §7: "the core does not log").
package robotics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Polqt/crdtcore/clock"
	"github.com/Polqt/crdtcore/config"
	"github.com/Polqt/crdtcore/gset"
	"github.com/Polqt/crdtcore/lwwregister"
	"github.com/Polqt/crdtcore/mvregister"
)

// Pose is a single robot's reported position, fused across concurrent
// writers during a network partition.
type Pose struct {
	X, Y, HeadingDeg float64
}

// SignalType is a coordination flag a robot can raise for the rest of the
// fleet, mirroring signals.rs's SignalType enum. A raised signal only ever
// grows the fleet's visible signal set here — there is no per-signal
// expiry or targeted delivery, unlike the original's timestamped, directed
// Signal struct (see DESIGN.md for why that richer model is out of scope).
type SignalType uint8

const (
	SignalStart SignalType = iota + 1
	SignalStop
	SignalHelp
	SignalComplete
	SignalWarning
	SignalEmergency
	SignalFormation
	SignalRendezvous
)

// IsCritical reports whether s demands immediate operator attention, per
// signals.rs's SignalType::is_critical.
func (s SignalType) IsCritical() bool {
	return s == SignalEmergency || s == SignalHelp || s == SignalWarning
}

var (
	mergeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crdtcore",
		Subsystem: "robotics",
		Name:      "merge_total",
		Help:      "Number of Fleet.SyncFrom merges performed, by outcome.",
	}, []string{"outcome"})

	mergeLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "crdtcore",
		Subsystem: "robotics",
		Name:      "merge_latency_seconds",
		Help:      "Observed wall-clock latency of Fleet.SyncFrom.",
		Buckets:   prometheus.DefBuckets,
	})
)

// Registry bundles this package's metrics for a caller to register with
// their own prometheus.Registerer (kept out of the package init's default
// registry so tests and multiple Fleet instances don't collide).
func Registry() []prometheus.Collector {
	return []prometheus.Collector{mergeTotal, mergeLatency}
}

// Fleet is one robot's view of the shared pose table and fused map frame.
type Fleet struct {
	nodeID clock.NodeId
	cfg    config.Profile

	Poses         *mvregister.MVRegister[Pose]
	MapFrame      *lwwregister.LWWRegister[string]
	ActiveSignals *gset.GSet[SignalType]
}

// NewFleet builds a fleet-member node identified by nodeID under profile
// cfg (config.Robotics or a loaded override).
func NewFleet(nodeID clock.NodeId, cfg config.Profile) (*Fleet, error) {
	poses, err := mvregister.NewMVRegister[Pose](nodeID, cfg.MaxNodes, cfg)
	if err != nil {
		return nil, err
	}
	frame, err := lwwregister.NewLWWRegister[string](nodeID, cfg)
	if err != nil {
		return nil, err
	}
	signals, err := gset.NewGSet[SignalType](8, cfg)
	if err != nil {
		return nil, err
	}
	return &Fleet{nodeID: nodeID, cfg: cfg, Poses: poses, MapFrame: frame, ActiveSignals: signals}, nil
}

// ReportPose records this robot's current pose at the given logical tick.
func (f *Fleet) ReportPose(p Pose, ts clock.CompactTimestamp) error {
	return f.Poses.Set(p, ts)
}

// ReportMapFrame records the id of the fused map frame this robot last
// computed.
func (f *Fleet) ReportMapFrame(frameID string, ts clock.CompactTimestamp) {
	f.MapFrame.Set(frameID, ts)
}

// RaiseSignal records that this robot has raised signal for the fleet to
// see. Signals only accumulate; there is no expiry or acknowledgment.
func (f *Fleet) RaiseSignal(signal SignalType) error {
	_, err := f.ActiveSignals.Insert(signal)
	return err
}

// HasEmergency reports whether any raised signal demands immediate
// attention, per SignalType.IsCritical.
func (f *Fleet) HasEmergency() bool {
	for _, s := range f.ActiveSignals.Elements() {
		if s.IsCritical() {
			return true
		}
	}
	return false
}

// SyncFrom merges peer's pose table, map frame, and raised signals into f,
// recording merge outcome and latency on the package's Prometheus
// collectors.
func (f *Fleet) SyncFrom(peer *Fleet) error {
	start := time.Now()
	err := f.syncFrom(peer)
	mergeLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		mergeTotal.WithLabelValues("error").Inc()
		return err
	}
	mergeTotal.WithLabelValues("ok").Inc()
	return nil
}

func (f *Fleet) syncFrom(peer *Fleet) error {
	if err := f.Poses.Merge(peer.Poses); err != nil {
		return err
	}
	if err := f.MapFrame.Merge(peer.MapFrame); err != nil {
		return err
	}
	return f.ActiveSignals.Merge(peer.ActiveSignals)
}

// AllPoses returns every currently-known robot pose (one per writer still
// contributing, including concurrent entries from a not-yet-resolved
// partition).
func (f *Fleet) AllPoses() []Pose {
	return f.Poses.Values()
}

// CurrentMapFrame returns the fused map frame id this fleet member has
// converged on, and whether one has ever been set.
func (f *Fleet) CurrentMapFrame() (string, bool) {
	v, _, ok := f.MapFrame.Get()
	return v, ok
}

// Package industrial is an equipment registry: a GSet of known equipment
// IDs plus a PNCounter throughput tally per line. Grounded on
// original_source/src/industrial/equipment.rs — a thin external
// collaborator over package gset/pncounter (spec.md §1).
package industrial

import (
	"log/slog"

	"github.com/Polqt/crdtcore/clock"
	"github.com/Polqt/crdtcore/config"
	"github.com/Polqt/crdtcore/gset"
	"github.com/Polqt/crdtcore/pncounter"
)

// Line is one plant-floor production line's view of known equipment and
// its unit throughput tally.
type Line struct {
	nodeID clock.NodeId
	cfg    config.Profile

	Equipment  *gset.GSet[string]
	Throughput *pncounter.PNCounter
}

// NewLine builds a production-line node identified by nodeID under profile
// cfg (config.Industrial or a loaded override).
func NewLine(nodeID clock.NodeId, cfg config.Profile) (*Line, error) {
	equipment, err := gset.NewGSet[string](cfg.MaxSetElements, cfg)
	if err != nil {
		return nil, err
	}
	throughput, err := pncounter.NewPNCounter(nodeID, cfg.MaxNodes, cfg)
	if err != nil {
		return nil, err
	}
	return &Line{nodeID: nodeID, cfg: cfg, Equipment: equipment, Throughput: throughput}, nil
}

// Commission registers a new piece of equipment by its id. It reports
// whether the id was newly added.
func (l *Line) Commission(equipmentID string) (bool, error) {
	added, err := l.Equipment.Insert(equipmentID)
	if err != nil {
		slog.Warn("industrial: equipment commission rejected", "line", l.nodeID, "equipment", equipmentID, "err", err)
		return false, err
	}
	return added, nil
}

// UnitProduced records one completed unit on this line.
func (l *Line) UnitProduced() error {
	if err := l.Throughput.Increment(1); err != nil {
		slog.Warn("industrial: throughput tally overflow", "line", l.nodeID, "err", err)
		return err
	}
	return nil
}

// UnitScrapped records one scrapped unit on this line.
func (l *Line) UnitScrapped() error {
	if err := l.Throughput.Decrement(1); err != nil {
		slog.Warn("industrial: scrap tally overflow", "line", l.nodeID, "err", err)
		return err
	}
	return nil
}

// SyncFrom merges peer's equipment set and throughput tally into l, the
// way two lines reconcile state after a plant-floor network partition
// heals.
func (l *Line) SyncFrom(peer *Line) error {
	if err := l.Equipment.Merge(peer.Equipment); err != nil {
		slog.Warn("industrial: equipment merge failed", "line", l.nodeID, "peer", peer.nodeID, "err", err)
		return err
	}
	if err := l.Throughput.Merge(peer.Throughput); err != nil {
		slog.Warn("industrial: throughput merge failed", "line", l.nodeID, "peer", peer.nodeID, "err", err)
		return err
	}
	return nil
}

// IsCommissioned reports whether equipmentID is known to this line.
func (l *Line) IsCommissioned(equipmentID string) bool {
	return l.Equipment.Contains(equipmentID)
}

// NetThroughput returns produced-minus-scrapped as last merged.
func (l *Line) NetThroughput() int64 {
	return l.Throughput.Value()
}

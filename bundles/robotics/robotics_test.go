package robotics_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Polqt/crdtcore/bundles/robotics"
	"github.com/Polqt/crdtcore/clock"
	"github.com/Polqt/crdtcore/config"
)

func TestReportAndReadPose(t *testing.T) {
	f, err := robotics.NewFleet(0, config.Robotics)
	require.NoError(t, err)
	require.NoError(t, f.ReportPose(robotics.Pose{X: 1, Y: 2, HeadingDeg: 90}, clock.New(1)))

	poses := f.AllPoses()
	require.Len(t, poses, 1)
	assert.Equal(t, robotics.Pose{X: 1, Y: 2, HeadingDeg: 90}, poses[0])
}

func TestConcurrentPosesBothSurviveMerge(t *testing.T) {
	a, err := robotics.NewFleet(0, config.Robotics)
	require.NoError(t, err)
	b, err := robotics.NewFleet(1, config.Robotics)
	require.NoError(t, err)

	require.NoError(t, a.ReportPose(robotics.Pose{X: 1}, clock.New(1)))
	require.NoError(t, b.ReportPose(robotics.Pose{X: 2}, clock.New(1)))

	require.NoError(t, a.SyncFrom(b))
	assert.Len(t, a.AllPoses(), 2)
}

func TestMapFrameFusesLWW(t *testing.T) {
	a, err := robotics.NewFleet(0, config.Robotics)
	require.NoError(t, err)
	b, err := robotics.NewFleet(1, config.Robotics)
	require.NoError(t, err)

	a.ReportMapFrame("frame-001", clock.New(1))
	b.ReportMapFrame("frame-002", clock.New(2))

	require.NoError(t, a.SyncFrom(b))
	frame, ok := a.CurrentMapFrame()
	require.True(t, ok)
	assert.Equal(t, "frame-002", frame)
}

func TestRaiseSignalAndEmergencyDetection(t *testing.T) {
	f, err := robotics.NewFleet(0, config.Robotics)
	require.NoError(t, err)
	assert.False(t, f.HasEmergency())

	require.NoError(t, f.RaiseSignal(robotics.SignalFormation))
	assert.False(t, f.HasEmergency())

	require.NoError(t, f.RaiseSignal(robotics.SignalEmergency))
	assert.True(t, f.HasEmergency())
}

func TestSyncMergesSignals(t *testing.T) {
	a, err := robotics.NewFleet(0, config.Robotics)
	require.NoError(t, err)
	b, err := robotics.NewFleet(1, config.Robotics)
	require.NoError(t, err)

	require.NoError(t, b.RaiseSignal(robotics.SignalHelp))
	require.NoError(t, a.SyncFrom(b))

	assert.True(t, a.HasEmergency())
	assert.ElementsMatch(t, []robotics.SignalType{robotics.SignalHelp}, a.ActiveSignals.Elements())
}

func TestRegistryListsMergeCollectors(t *testing.T) {
	a, err := robotics.NewFleet(0, config.Robotics)
	require.NoError(t, err)
	b, err := robotics.NewFleet(1, config.Robotics)
	require.NoError(t, err)
	require.NoError(t, b.ReportPose(robotics.Pose{X: 5}, clock.New(1)))

	require.NoError(t, a.SyncFrom(b))

	collectors := robotics.Registry()
	assert.Len(t, collectors, 2)
}

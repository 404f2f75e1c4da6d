package automotive_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Polqt/crdtcore/bundles/automotive"
	"github.com/Polqt/crdtcore/clock"
	"github.com/Polqt/crdtcore/config"
)

func TestReportAndReadSignal(t *testing.T) {
	ecu, err := automotive.NewECU(0, config.Automotive)
	require.NoError(t, err)
	require.NoError(t, ecu.ReportSignal(automotive.SignalGroundSpeed, 87.5, clock.New(1)))

	v, ok := ecu.Signal(automotive.SignalGroundSpeed)
	require.True(t, ok)
	assert.InDelta(t, 87.5, v, 0.001)
}

func TestSyncMergesSignalsAndFaults(t *testing.T) {
	gateway, err := automotive.NewECU(0, config.Automotive)
	require.NoError(t, err)
	sensor, err := automotive.NewECU(1, config.Automotive)
	require.NoError(t, err)

	require.NoError(t, sensor.ReportSignal(automotive.SignalBrakePressure, 410.0, clock.New(1)))
	require.NoError(t, sensor.ReportFault())

	require.NoError(t, gateway.SyncFrom(sensor))

	v, ok := gateway.Signal(automotive.SignalBrakePressure)
	require.True(t, ok)
	assert.InDelta(t, 410.0, v, 0.001)
	assert.EqualValues(t, 1, gateway.TotalFaults())
}

func TestLoadProfileFromYAML(t *testing.T) {
	p, err := config.LoadProfile("profile.yaml")
	require.NoError(t, err)
	assert.Equal(t, "automotive-gateway", p.Name)
	assert.Equal(t, 24, p.MaxMapEntries)
}

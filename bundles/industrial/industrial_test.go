package industrial_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Polqt/crdtcore/bundles/industrial"
	"github.com/Polqt/crdtcore/config"
)

func TestCommissionAndCheck(t *testing.T) {
	line, err := industrial.NewLine(0, config.Industrial)
	require.NoError(t, err)

	added, err := line.Commission("press-07")
	require.NoError(t, err)
	assert.True(t, added)
	assert.True(t, line.IsCommissioned("press-07"))

	added, err = line.Commission("press-07")
	require.NoError(t, err)
	assert.False(t, added)
}

func TestThroughputTracking(t *testing.T) {
	line, err := industrial.NewLine(0, config.Industrial)
	require.NoError(t, err)
	require.NoError(t, line.UnitProduced())
	require.NoError(t, line.UnitProduced())
	require.NoError(t, line.UnitScrapped())
	assert.EqualValues(t, 1, line.NetThroughput())
}

func TestSyncMergesEquipmentAndThroughput(t *testing.T) {
	a, err := industrial.NewLine(0, config.Industrial)
	require.NoError(t, err)
	b, err := industrial.NewLine(1, config.Industrial)
	require.NoError(t, err)

	_, err = b.Commission("conveyor-3")
	require.NoError(t, err)
	require.NoError(t, b.UnitProduced())

	require.NoError(t, a.SyncFrom(b))

	assert.True(t, a.IsCommissioned("conveyor-3"))
	assert.EqualValues(t, 1, a.NetThroughput())
}

package pncounter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Polqt/crdtcore/clock"
	"github.com/Polqt/crdtcore/config"
	"github.com/Polqt/crdtcore/contract"
	"github.com/Polqt/crdtcore/crdterr"
	"github.com/Polqt/crdtcore/pncounter"
)

func must(t *testing.T, id clock.NodeId) *pncounter.PNCounter {
	t.Helper()
	c, err := pncounter.NewPNCounter(id, 4, config.Default)
	require.NoError(t, err)
	return c
}

func TestSignedValue(t *testing.T) {
	c := must(t, 0)
	require.NoError(t, c.Increment(10))
	require.NoError(t, c.Decrement(3))
	require.NoError(t, c.Increment(2))
	require.NoError(t, c.Decrement(1))
	assert.EqualValues(t, 8, c.Value())
	assert.EqualValues(t, 12, c.TotalPositive())
	assert.EqualValues(t, 4, c.TotalNegative())
}

func TestNegativeValue(t *testing.T) {
	c := must(t, 0)
	require.NoError(t, c.Increment(3))
	require.NoError(t, c.Decrement(10))
	assert.EqualValues(t, -7, c.Value())
}

func TestMergePerSlotMaxBothVectors(t *testing.T) {
	a := must(t, 0)
	b := must(t, 1)
	require.NoError(t, a.Increment(10))
	require.NoError(t, a.Decrement(3))
	require.NoError(t, b.Increment(5))
	require.NoError(t, b.Decrement(1))

	require.NoError(t, a.Merge(b))
	require.NoError(t, b.Merge(a))

	assert.Equal(t, a.Value(), b.Value())
	p0, n0, _ := a.NodeValue(0)
	assert.EqualValues(t, 10, p0)
	assert.EqualValues(t, 3, n0)
	p1, n1, _ := a.NodeValue(1)
	assert.EqualValues(t, 5, p1)
	assert.EqualValues(t, 1, n1)
}

func TestIdempotentMerge(t *testing.T) {
	a := must(t, 0)
	b := must(t, 1)
	require.NoError(t, b.Increment(4))
	require.NoError(t, a.Merge(b))
	v1 := a.Value()
	require.NoError(t, a.Merge(b))
	assert.Equal(t, v1, a.Value())
}

func TestZeroIncrementRejected(t *testing.T) {
	c := must(t, 0)
	require.Error(t, c.Increment(0))
	require.Error(t, c.Decrement(0))
}

func TestMergeBoundedExhaustsBudget(t *testing.T) {
	a := must(t, 0)
	b := must(t, 1)
	require.NoError(t, b.Increment(1))
	budget := contract.NewBudget(0)
	err := a.MergeBounded(b, budget)
	require.Error(t, err)
	var e *crdterr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, crdterr.RealTimeViolation, e.Kind)
}

func TestMergeBoundedSucceedsWithEnoughBudget(t *testing.T) {
	a := must(t, 0)
	b := must(t, 1)
	require.NoError(t, b.Increment(1))
	budget := contract.NewBudget(a.MaxMergeCycles())
	require.NoError(t, a.MergeBounded(b, budget))
	assert.EqualValues(t, 1, a.Value())
}

func TestBoundedContract(t *testing.T) {
	c := must(t, 0)
	assert.Equal(t, 4, c.MaxElements())
	assert.True(t, c.CanAddElement())
	assert.Zero(t, c.Compact())
	assert.Equal(t, c.MaxSizeBytes(), c.MemoryUsage())
}

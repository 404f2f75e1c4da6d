package gcounter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Polqt/crdtcore/clock"
	"github.com/Polqt/crdtcore/config"
	"github.com/Polqt/crdtcore/contract"
	"github.com/Polqt/crdtcore/crdterr"
	"github.com/Polqt/crdtcore/gcounter"
)

func must(t *testing.T, id clock.NodeId) *gcounter.GCounter {
	t.Helper()
	c, err := gcounter.NewGCounter(id, 4, config.Default)
	require.NoError(t, err)
	return c
}

func TestNewValidatesNodeID(t *testing.T) {
	_, err := gcounter.NewGCounter(10, 4, config.Default)
	require.Error(t, err)
	var e *crdterr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, crdterr.InvalidNodeId, e.Kind)
}

func TestIncrementZeroRejected(t *testing.T) {
	c := must(t, 0)
	err := c.Increment(0)
	require.Error(t, err)
	var e *crdterr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, crdterr.InvalidOperation, e.Kind)
}

func TestIncrementOverflow(t *testing.T) {
	c := must(t, 0)
	require.NoError(t, c.Increment(1<<32-1))
	err := c.Increment(10)
	require.Error(t, err)
	var e *crdterr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, crdterr.BufferOverflow, e.Kind)
	assert.EqualValues(t, 1<<32-1, c.Value())
}

func TestConvergenceScenario(t *testing.T) {
	node1 := must(t, 0)
	node2 := must(t, 1)
	require.NoError(t, node1.Increment(10))
	require.NoError(t, node2.Increment(5))

	require.NoError(t, node1.Merge(node2))
	require.NoError(t, node2.Merge(node1))

	assert.EqualValues(t, 15, node1.Value())
	assert.EqualValues(t, 15, node2.Value())
	assert.Equal(t, node1.StateHash(), node2.StateHash())
	assert.True(t, node1.Equals(node2))
}

func TestMergeIsMaxNotAdditive(t *testing.T) {
	a := must(t, 0)
	b := must(t, 1)
	require.NoError(t, a.Increment(10))
	require.NoError(t, b.Increment(3))
	require.NoError(t, a.Merge(b))
	assert.EqualValues(t, 13, a.Value())

	// merging again is a no-op: idempotence.
	require.NoError(t, a.Merge(b))
	assert.EqualValues(t, 13, a.Value())
}

func TestMergeLeavesLargerLocalSlotUnchanged(t *testing.T) {
	a := must(t, 0)
	b := must(t, 1)
	require.NoError(t, a.Increment(20))
	require.NoError(t, b.Increment(3))
	require.NoError(t, a.Merge(b))
	assert.EqualValues(t, 20, a.NodeValue(0))
}

func TestCommutative(t *testing.T) {
	a := must(t, 0)
	b := must(t, 1)
	require.NoError(t, a.Increment(7))
	require.NoError(t, b.Increment(4))

	ab, _ := gcounter.NewGCounter(0, 4, config.Default)
	require.NoError(t, ab.Merge(a))
	require.NoError(t, ab.Merge(b))

	ba, _ := gcounter.NewGCounter(0, 4, config.Default)
	require.NoError(t, ba.Merge(b))
	require.NoError(t, ba.Merge(a))

	assert.True(t, ab.Equals(ba))
	assert.Equal(t, ab.StateHash(), ba.StateHash())
}

func TestAssociative(t *testing.T) {
	a := must(t, 0)
	b := must(t, 1)
	c := must(t, 2)
	require.NoError(t, a.Increment(1))
	require.NoError(t, b.Increment(2))
	require.NoError(t, c.Increment(3))

	left, _ := gcounter.NewGCounter(0, 4, config.Default)
	require.NoError(t, left.Merge(a))
	require.NoError(t, left.Merge(b))
	require.NoError(t, left.Merge(c))

	right, _ := gcounter.NewGCounter(0, 4, config.Default)
	require.NoError(t, right.Merge(c))
	require.NoError(t, right.Merge(b))
	require.NoError(t, right.Merge(a))

	assert.True(t, left.Equals(right))
}

func TestMonotonicUnderLocalMutation(t *testing.T) {
	a := must(t, 0)
	before := a.Value()
	require.NoError(t, a.Increment(5))
	assert.Greater(t, a.Value(), before)
}

func TestValidateAfterConstruction(t *testing.T) {
	for id := clock.NodeId(0); id < 4; id++ {
		c, err := gcounter.NewGCounter(id, 4, config.Default)
		require.NoError(t, err)
		require.NoError(t, c.Validate())
	}
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

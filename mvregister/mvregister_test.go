package mvregister_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Polqt/crdtcore/clock"
	"github.com/Polqt/crdtcore/config"
	"github.com/Polqt/crdtcore/contract"
	"github.com/Polqt/crdtcore/crdterr"
	"github.com/Polqt/crdtcore/mvregister"
)

func must(t *testing.T, id clock.NodeId) *mvregister.MVRegister[int] {
	t.Helper()
	r, err := mvregister.NewMVRegister[int](id, 4, config.Default)
	require.NoError(t, err)
	return r
}

func TestSetLocalThenGet(t *testing.T) {
	r := must(t, 0)
	require.NoError(t, r.Set(42, clock.New(1)))
	v, ts, ok := r.Get(0)
	require.True(t, ok)
	assert.Equal(t, 42, v)
	assert.Equal(t, clock.New(1), ts)
}

func TestSetStaleIsNoop(t *testing.T) {
	r := must(t, 0)
	require.NoError(t, r.Set(1, clock.New(5)))
	require.NoError(t, r.Set(2, clock.New(3)))
	v, ts, _ := r.Get(0)
	assert.Equal(t, 1, v)
	assert.Equal(t, clock.New(5), ts)
}

func TestMergeOverflowsAtCapacity(t *testing.T) {
	r, err := mvregister.NewMVRegister[int](0, 2, config.Default)
	require.NoError(t, err)
	require.NoError(t, r.Set(1, clock.New(1)))

	other, err := mvregister.NewMVRegister[int](1, 2, config.Default)
	require.NoError(t, err)
	require.NoError(t, other.Set(2, clock.New(1)))
	require.NoError(t, r.Merge(other))
	assert.Equal(t, 2, r.Len())

	third, err := mvregister.NewMVRegister[int](2, 2, config.Default)
	require.NoError(t, err)
	require.NoError(t, third.Set(3, clock.New(1)))
	err = r.Merge(third)
	require.Error(t, err)
	var e *crdterr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, crdterr.BufferOverflow, e.Kind)
}

func TestMergeKeepsBothWritersConcurrent(t *testing.T) {
	a := must(t, 0)
	b := must(t, 1)
	require.NoError(t, a.Set(10, clock.New(1)))
	require.NoError(t, b.Set(20, clock.New(1)))

	require.NoError(t, a.Merge(b))
	require.NoError(t, b.Merge(a))

	assert.ElementsMatch(t, []int{10, 20}, a.Values())
	assert.True(t, a.Equals(b))
	assert.Equal(t, a.StateHash(), b.StateHash())
}

func TestMergeSameWriterNewerTimestampWins(t *testing.T) {
	a := must(t, 0)
	b := must(t, 0)
	require.NoError(t, a.Set(1, clock.New(1)))
	require.NoError(t, b.Set(2, clock.New(2)))

	require.NoError(t, a.Merge(b))
	v, _, _ := a.Get(0)
	assert.Equal(t, 2, v)
}

func TestIdempotentMerge(t *testing.T) {
	a := must(t, 0)
	b := must(t, 1)
	require.NoError(t, b.Set(7, clock.New(1)))
	require.NoError(t, a.Merge(b))
	h1 := a.StateHash()
	require.NoError(t, a.Merge(b))
	assert.Equal(t, h1, a.StateHash())
}

func TestNumericHelpers(t *testing.T) {
	a := must(t, 0)
	b := must(t, 1)
	c := must(t, 2)
	require.NoError(t, a.Set(10, clock.New(1)))
	require.NoError(t, b.Set(20, clock.New(1)))
	require.NoError(t, c.Set(30, clock.New(1)))
	require.NoError(t, a.Merge(b))
	require.NoError(t, a.Merge(c))

	avg, ok := mvregister.Average(a)
	require.True(t, ok)
	assert.InDelta(t, 20.0, avg, 0.0001)

	min, ok := mvregister.Min(a)
	require.True(t, ok)
	assert.Equal(t, 10, min)

	max, ok := mvregister.Max(a)
	require.True(t, ok)
	assert.Equal(t, 30, max)
}

func TestNumericHelpersEmpty(t *testing.T) {
	r := must(t, 0)
	_, ok := mvregister.Average(r)
	assert.False(t, ok)
	_, ok = mvregister.Min(r)
	assert.False(t, ok)
}

func TestMergeBoundedExhaustsBudget(t *testing.T) {
	a := must(t, 0)
	b := must(t, 1)
	require.NoError(t, b.Set(5, clock.New(1)))
	budget := contract.NewBudget(0)
	err := a.MergeBounded(b, budget)
	require.Error(t, err)
	var e *crdterr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, crdterr.RealTimeViolation, e.Kind)
}

func TestBoundedContract(t *testing.T) {
	r := must(t, 0)
	assert.Equal(t, 4, r.MaxElements())
	assert.True(t, r.CanAddElement())
	assert.Zero(t, r.Compact())
	assert.Equal(t, r.MaxSizeBytes(), r.MemoryUsage())
}

func TestNewValidatesNodeID(t *testing.T) {
	_, err := mvregister.NewMVRegister[int](200, 4, config.Default)
	require.Error(t, err)
	var e *crdterr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, crdterr.InvalidNodeId, e.Kind)
}

func TestNewRejectsZeroCapacity(t *testing.T) {
	_, err := mvregister.NewMVRegister[int](0, 0, config.Default)
	require.Error(t, err)
}

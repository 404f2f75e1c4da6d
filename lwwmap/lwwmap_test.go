package lwwmap_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Polqt/crdtcore/clock"
	"github.com/Polqt/crdtcore/config"
	"github.com/Polqt/crdtcore/contract"
	"github.com/Polqt/crdtcore/crdterr"
	"github.com/Polqt/crdtcore/lwwmap"
)

// snapshot flattens a map's current (key, value) pairs for structural
// comparison, since the entry slice itself is unexported and its slot
// order is not part of the map's logical state.
func snapshot(m *lwwmap.LWWMap[string, int]) map[string]int {
	out := map[string]int{}
	m.Iter(func(k string, v int) bool {
		out[k] = v
		return true
	})
	return out
}

func must(t *testing.T, id clock.NodeId) *lwwmap.LWWMap[string, int] {
	t.Helper()
	m, err := lwwmap.NewLWWMap[string, int](id, 4, config.Default)
	require.NoError(t, err)
	return m
}

func TestInsertAndGet(t *testing.T) {
	m := must(t, 0)
	require.NoError(t, m.Insert("a", 1, clock.New(1)))
	v, ts, ok := m.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, clock.New(1), ts)
}

func TestInsertStaleIsNoop(t *testing.T) {
	m := must(t, 0)
	require.NoError(t, m.Insert("a", 1, clock.New(5)))
	require.NoError(t, m.Insert("a", 2, clock.New(3)))
	v, _, _ := m.Get("a")
	assert.Equal(t, 1, v)
}

func TestInsertTieBrokenByWriterID(t *testing.T) {
	m, err := lwwmap.NewLWWMap[string, int](5, 4, config.Default)
	require.NoError(t, err)
	require.NoError(t, m.Insert("a", 1, clock.New(1)))

	other, err := lwwmap.NewLWWMap[string, int](9, 4, config.Default)
	require.NoError(t, err)
	require.NoError(t, other.Insert("a", 2, clock.New(1)))

	require.NoError(t, m.Merge(other))
	v, _, _ := m.Get("a")
	assert.Equal(t, 2, v)
}

func TestInsertOverflow(t *testing.T) {
	m := must(t, 0)
	for i, k := range []string{"a", "b", "c", "d"} {
		require.NoError(t, m.Insert(k, i, clock.New(uint64(i+1))))
	}
	err := m.Insert("e", 5, clock.New(10))
	require.Error(t, err)
	var e *crdterr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, crdterr.BufferOverflow, e.Kind)
}

func TestRemove(t *testing.T) {
	m := must(t, 0)
	require.NoError(t, m.Insert("a", 1, clock.New(1)))
	v, ok := m.Remove("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	v, ok = m.Remove("a")
	assert.False(t, ok)
	assert.Zero(t, v)

	_, _, ok = m.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, m.Len())
}

func TestMergeUnionAndLWWRule(t *testing.T) {
	a := must(t, 0)
	b := must(t, 1)
	require.NoError(t, a.Insert("x", 1, clock.New(1)))
	require.NoError(t, b.Insert("y", 2, clock.New(1)))
	require.NoError(t, b.Insert("x", 99, clock.New(5)))

	require.NoError(t, a.Merge(b))
	vx, _, _ := a.Get("x")
	vy, _, _ := a.Get("y")
	assert.Equal(t, 99, vx)
	assert.Equal(t, 2, vy)
}

func TestMergeIdempotentAndCommutative(t *testing.T) {
	a := must(t, 0)
	b := must(t, 1)
	require.NoError(t, a.Insert("x", 1, clock.New(1)))
	require.NoError(t, b.Insert("y", 2, clock.New(1)))

	ab, _ := lwwmap.NewLWWMap[string, int](0, 4, config.Default)
	require.NoError(t, ab.Merge(a))
	require.NoError(t, ab.Merge(b))

	ba, _ := lwwmap.NewLWWMap[string, int](0, 4, config.Default)
	require.NoError(t, ba.Merge(b))
	require.NoError(t, ba.Merge(a))

	assert.True(t, ab.Equals(ba))
	assert.Equal(t, ab.StateHash(), ba.StateHash())

	require.NoError(t, ab.Merge(a))
	assert.True(t, ab.Equals(ba))

	if diff := cmp.Diff(snapshot(ab), snapshot(ba)); diff != "" {
		t.Errorf("converged replicas diverged (-ab +ba):\n%s", diff)
	}
}

func TestKeysValuesIter(t *testing.T) {
	m := must(t, 0)
	require.NoError(t, m.Insert("a", 1, clock.New(1)))
	require.NoError(t, m.Insert("b", 2, clock.New(1)))

	assert.ElementsMatch(t, []string{"a", "b"}, m.Keys())
	assert.ElementsMatch(t, []int{1, 2}, m.Values())

	seen := map[string]int{}
	m.Iter(func(k string, v int) bool {
		seen[k] = v
		return true
	})
	assert.Equal(t, map[string]int{"a": 1, "b": 2}, seen)
}

func TestMergeBoundedExhaustsBudget(t *testing.T) {
	a := must(t, 0)
	b := must(t, 1)
	require.NoError(t, b.Insert("z", 1, clock.New(1)))
	budget := contract.NewBudget(0)
	err := a.MergeBounded(b, budget)
	require.Error(t, err)
	var e *crdterr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, crdterr.RealTimeViolation, e.Kind)
}

func TestBoundedContract(t *testing.T) {
	m := must(t, 0)
	assert.Equal(t, 4, m.MaxElements())
	assert.True(t, m.CanAddElement())
	assert.Zero(t, m.Compact())
	assert.Equal(t, m.MaxSizeBytes(), m.MemoryUsage())
}

func TestNewValidatesNodeID(t *testing.T) {
	_, err := lwwmap.NewLWWMap[string, int](200, 4, config.Default)
	require.Error(t, err)
	var e *crdterr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, crdterr.InvalidNodeId, e.Kind)
}

func TestNewRejectsOverProfileCeiling(t *testing.T) {
	_, err := lwwmap.NewLWWMap[string, int](0, 1000, config.Default)
	require.Error(t, err)
	var e *crdterr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, crdterr.ConfigurationExceeded, e.Kind)
}

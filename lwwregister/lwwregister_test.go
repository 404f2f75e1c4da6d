package lwwregister_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Polqt/crdtcore/clock"
	"github.com/Polqt/crdtcore/config"
	"github.com/Polqt/crdtcore/contract"
	"github.com/Polqt/crdtcore/crdterr"
	"github.com/Polqt/crdtcore/lwwregister"
)

func must(t *testing.T, id clock.NodeId) *lwwregister.LWWRegister[string] {
	t.Helper()
	r, err := lwwregister.NewLWWRegister[string](id, config.Default)
	require.NoError(t, err)
	return r
}

func TestNewValidatesNodeID(t *testing.T) {
	_, err := lwwregister.NewLWWRegister[string](200, config.Default)
	require.Error(t, err)
	var e *crdterr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, crdterr.InvalidNodeId, e.Kind)
}

func TestSetThenGet(t *testing.T) {
	r := must(t, 0)
	_, _, ok := r.Get()
	assert.False(t, ok)

	r.Set("connecting", clock.New(1))
	v, ts, ok := r.Get()
	require.True(t, ok)
	assert.Equal(t, "connecting", v)
	assert.Equal(t, clock.New(1), ts)
	assert.EqualValues(t, 0, r.CurrentNode())
}

func TestSetStaleIsNoop(t *testing.T) {
	r := must(t, 0)
	r.Set("connected", clock.New(5))
	r.Set("stale", clock.New(2))
	v, ts, _ := r.Get()
	assert.Equal(t, "connected", v)
	assert.Equal(t, clock.New(5), ts)
}

func TestSetTieBrokenByWriterID(t *testing.T) {
	a := must(t, 0)
	b := must(t, 1)
	a.Set("from-a", clock.New(1))
	b.Set("from-b", clock.New(1))

	require.NoError(t, a.Merge(b))
	v, _, _ := a.Get()
	assert.Equal(t, "from-b", v, "equal timestamps break ties toward the larger writer id")
}

func TestMergeConvergesBothDirections(t *testing.T) {
	a := must(t, 0)
	b := must(t, 1)
	a.Set("connecting", clock.New(1))
	b.Set("connected", clock.New(2))

	require.NoError(t, a.Merge(b))
	require.NoError(t, b.Merge(a))

	assert.True(t, a.Equals(b))
	assert.Equal(t, a.StateHash(), b.StateHash())
}

func TestMergeIdempotent(t *testing.T) {
	a := must(t, 0)
	b := must(t, 1)
	b.Set("connected", clock.New(2))

	require.NoError(t, a.Merge(b))
	require.NoError(t, a.Merge(b))
	v, _, _ := a.Get()
	assert.Equal(t, "connected", v)
}

func TestMergeFromEmptyIsNoop(t *testing.T) {
	a := must(t, 0)
	a.Set("connecting", clock.New(1))
	b := must(t, 1)

	require.NoError(t, a.Merge(b))
	v, _, _ := a.Get()
	assert.Equal(t, "connecting", v)
}

func TestIsEmpty(t *testing.T) {
	r := must(t, 0)
	assert.True(t, r.IsEmpty())
	r.Set("x", clock.New(1))
	assert.False(t, r.IsEmpty())
}

func TestMergeBoundedExhaustsBudget(t *testing.T) {
	a := must(t, 0)
	b := must(t, 1)
	b.Set("connected", clock.New(1))
	budget := contract.NewBudget(0)
	err := a.MergeBounded(b, budget)
	require.Error(t, err)
	var e *crdterr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, crdterr.RealTimeViolation, e.Kind)
}

func TestBoundedContract(t *testing.T) {
	r := must(t, 0)
	assert.Equal(t, 1, r.MaxElements())
	assert.True(t, r.CanAddElement())
	assert.Zero(t, r.Compact())
	assert.Equal(t, 0, r.ElementCount())
	r.Set("x", clock.New(1))
	assert.Equal(t, 1, r.ElementCount())
}

package collcomm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSolo(t *testing.T) {
	g := Resolve(nil)
	require.Equal(t, Solo{}, g)
	assert.Equal(t, 1, g.Size())
	assert.Equal(t, 0, g.Rank())

	data := []float64{1, 2, 3}
	res := g.Allreduce(OpMax, data)
	assert.Equal(t, data, res)
	res[0] = 100
	assert.Equal(t, 1.0, data[0], "result must not alias the input")

	assert.Equal(t, 7.5, AllreduceScalar(g, OpSum, 7.5))
}

func TestResolveKeepsGroup(t *testing.T) {
	var g Group = Solo{}
	assert.Equal(t, g, Resolve(g))
}

func TestOps(t *testing.T) {
	a := []float64{1, -2, math.NaN()}
	b := []float64{3, -4, 0}
	assert.Equal(t, []float64{4, -6}, Sum(nil, a[:2], b[:2]))
	assert.Equal(t, []float64{3, -2}, Max(nil, a[:2], b[:2]))
	assert.Equal(t, []float64{1, -4}, Min(nil, a[:2], b[:2]))
	assert.True(t, math.IsNaN(Max(nil, a, b)[2]))
	assert.True(t, math.IsNaN(Min(nil, b, a)[2]))

	for _, op := range []Op{OpSum, OpMax, OpMin} {
		x := []float64{-3.5}
		id := []float64{op.Identity()}
		assert.Equal(t, x, op.ReduceFn()(nil, id, x), "%s identity", op)
	}
	assert.Equal(t, "MAX", OpMax.String())
	assert.Equal(t, "Op(9)", Op(9).String())
	assert.Panics(t, func() { Op(9).ReduceFn() })
}

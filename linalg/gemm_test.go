package linalg

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unixpickle/dist-linalg/collcomm"
	"github.com/unixpickle/dist-linalg/collcomm/allreduce"
	"github.com/unixpickle/dist-linalg/tensor"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/mat"
)

// noCollectives is a multi-process Group whose
// collectives must never be reached.
type noCollectives struct {
	size int
}

func (n noCollectives) Size() int { return n.size }
func (n noCollectives) Rank() int { return 0 }
func (n noCollectives) Allreduce(op collcomm.Op, data []float64) []float64 {
	panic(fmt.Sprintf("unexpected %s collective", op))
}

func randomMatrix(rng *rand.Rand, rows, cols int) *tensor.Array {
	a := tensor.Zeros(rows, cols)
	data := a.Data()
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	return a
}

// runRanks partitions a by rows across a cluster and
// returns each rank's result.
func runRanks(t *testing.T, a *tensor.Array, ranks int,
	f func(g collcomm.Group, local *tensor.Array) *tensor.Array) []*tensor.Array {
	parts := tensor.PartitionRows(a, ranks)
	results := make([]*tensor.Array, ranks)
	cluster := &allreduce.Cluster{NumNodes: ranks, Seed: 1}
	_, err := cluster.Run(func(g *allreduce.Group) {
		results[g.Rank()] = f(g, parts[g.Rank()])
	})
	require.NoError(t, err)
	return results
}

func TestParseTranspose(t *testing.T) {
	tr, err := ParseTranspose("T")
	require.NoError(t, err)
	assert.Equal(t, blas.Trans, tr)

	tr, err = ParseTranspose("n")
	require.NoError(t, err)
	assert.Equal(t, blas.NoTrans, tr)

	_, err = ParseTranspose("C")
	var flagErr *InvalidTransposeError
	require.True(t, errors.As(err, &flagErr))
	assert.Equal(t, "C", flagErr.Flag)
}

func TestProductGram(t *testing.T) {
	rng := rand.New(rand.NewSource(1337))
	a := randomMatrix(rng, 11, 4)
	var expected mat.Dense
	expected.Mul(a.Dense().T(), a.Dense())

	for _, ranks := range []int{1, 2, 3, 5} {
		results := runRanks(t, a, ranks, func(g collcomm.Group, local *tensor.Array) *tensor.Array {
			c := tensor.Zeros(4, 4)
			assert.NoError(t, Product(blas.Trans, blas.NoTrans, 1, local, local, 0, c, g))
			return c
		})
		for rank, res := range results {
			assert.InDeltaSlice(t, tensor.FromDense(&expected).Data(), res.Data(), 1e-9,
				"ranks=%d rank=%d", ranks, rank)
			assert.Equal(t, results[0].Data(), res.Data(), "result must be replicated")
		}
	}
}

func TestProductLocal(t *testing.T) {
	rng := rand.New(rand.NewSource(1338))
	a := randomMatrix(rng, 7, 3)
	b := randomMatrix(rng, 3, 2)
	var expected mat.Dense
	expected.Mul(a.Dense(), b.Dense())

	results := runRanks(t, a, 3, func(g collcomm.Group, local *tensor.Array) *tensor.Array {
		c := tensor.Zeros(local.Dim(0), 2)
		assert.NoError(t, Product(blas.NoTrans, blas.NoTrans, 1, local, b, 0, c, g))
		return c
	})
	joined, err := tensor.ConcatRows(results...)
	require.NoError(t, err)
	assert.InDeltaSlice(t, tensor.FromDense(&expected).Data(), joined.Data(), 1e-12)
}

func TestProductScaling(t *testing.T) {
	a := tensor.Must(tensor.FromRows([][]float64{{1, 2}, {3, 4}}))
	b := tensor.Must(tensor.FromRows([][]float64{{1, 0}, {0, 1}}))

	c := tensor.Must(tensor.FromRows([][]float64{{1, 1}, {1, 1}}))
	require.NoError(t, Product(blas.NoTrans, blas.NoTrans, 2, a, b, 0.5, c, nil))
	assert.Equal(t, []float64{2.5, 4.5, 6.5, 8.5}, c.Data())

	// beta == 0 overwrites C, even when it holds NaNs.
	c = tensor.Must(tensor.FromRows([][]float64{{math.NaN(), 1}, {1, math.NaN()}}))
	require.NoError(t, Product(blas.NoTrans, blas.Trans, 1, a, b, 0, c, nil))
	assert.Equal(t, []float64{1, 2, 3, 4}, c.Data())

	c = tensor.Zeros(2, 2)
	require.NoError(t, Product(blas.Trans, blas.NoTrans, -1, a, a, 0, c, nil))
	assert.Equal(t, []float64{-10, -14, -14, -20}, c.Data())
}

func TestProductEmpty(t *testing.T) {
	a := tensor.Zeros(0, 3)
	c := tensor.Must(tensor.FromRows([][]float64{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}}))
	require.NoError(t, Product(blas.Trans, blas.NoTrans, 1, a, a, 0, c, nil))
	assert.Equal(t, make([]float64, 9), c.Data())

	// A rank with no rows still joins the collective.
	rng := rand.New(rand.NewSource(1339))
	full := randomMatrix(rng, 3, 2)
	var expected mat.Dense
	expected.Mul(full.Dense().T(), full.Dense())
	results := runRanks(t, full, 4, func(g collcomm.Group, local *tensor.Array) *tensor.Array {
		c := tensor.Zeros(2, 2)
		assert.NoError(t, Product(blas.Trans, blas.NoTrans, 1, local, local, 0, c, g))
		return c
	})
	assert.Equal(t, 0, tensor.PartitionSizes(3, 4)[3])
	for _, res := range results {
		assert.InDeltaSlice(t, tensor.FromDense(&expected).Data(), res.Data(), 1e-12)
	}
}

func TestProductErrors(t *testing.T) {
	g := noCollectives{size: 3}
	a := tensor.Zeros(4, 3)
	b := tensor.Zeros(4, 2)

	cases := []struct {
		name   string
		transA blas.Transpose
		transB blas.Transpose
		a, b   *tensor.Array
		c      *tensor.Array
	}{
		{"Contraction", blas.NoTrans, blas.NoTrans, a, b, tensor.Zeros(4, 2)},
		{"OutputRows", blas.Trans, blas.NoTrans, a, b, tensor.Zeros(4, 2)},
		{"OutputCols", blas.Trans, blas.NoTrans, a, b, tensor.Zeros(3, 3)},
		{"Vector", blas.Trans, blas.NoTrans, tensor.Zeros(4), b, tensor.Zeros(3, 2)},
		{"Rank3", blas.Trans, blas.NoTrans, a, b, tensor.Zeros(3, 2, 1)},
	}
	for _, c := range cases {
		var err error
		require.NotPanics(t, func() {
			err = Product(c.transA, c.transB, 1, c.a, c.b, 0, c.c, g)
		}, c.name)
		var shapeErr *ShapeMismatchError
		assert.True(t, errors.As(err, &shapeErr), "%s: %v", c.name, err)
	}

	err := Product(blas.ConjTrans, blas.NoTrans, 1, a, b, 0, tensor.Zeros(3, 2), g)
	var flagErr *InvalidTransposeError
	assert.True(t, errors.As(err, &flagErr))

	err = Product(blas.Trans, blas.NoTrans, 1, nil, b, 0, tensor.Zeros(3, 2), g)
	assert.True(t, errors.Is(err, tensor.ErrNilArray))
}

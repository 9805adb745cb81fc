package simulator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnMatSums(t *testing.T) {
	mat := NewConnMat(4)
	mat.Set(1, 2, 3.0)
	mat.Set(0, 2, 2.0)
	mat.Set(2, 3, 4.0)
	assert.Equal(t, 4, mat.NumNodes())
	for i, expected := range []float64{0, 0, 5, 4} {
		assert.Equal(t, expected, mat.SumDest(i), "destination %d", i)
	}
	for i, expected := range []float64{2, 3, 4, 0} {
		assert.Equal(t, expected, mat.SumSource(i), "source %d", i)
	}
}

func TestConnMatScales(t *testing.T) {
	mat := NewConnMat(4)
	mat.Set(1, 2, 3.0)
	mat.Set(1, 3, 5.0)
	mat.Set(0, 2, 2.0)
	mat.Set(2, 3, 4.0)

	mat.ScaleSource(1, 2.0)
	for i, expected := range []float64{0, 0, 3.0 * 2.0, 5.0 * 2.0} {
		assert.Equal(t, expected, mat.Get(1, i), "column %d", i)
	}

	mat.ScaleDest(3, 3.0)
	for i, expected := range []float64{0, 5.0 * 2.0 * 3.0, 4.0 * 3.0, 0} {
		assert.Equal(t, expected, mat.Get(i, 3), "row %d", i)
	}
	assert.Equal(t, 2.0, mat.Matrix().At(0, 2))
}

func TestConnMatBounds(t *testing.T) {
	mat := NewConnMat(2)
	assert.Panics(t, func() { mat.Get(2, 0) })
	assert.Panics(t, func() { mat.Set(0, -1, 1) })
	assert.Panics(t, func() { mat.SumDest(2) })
	assert.Panics(t, func() { NewConnMat(0) })
}

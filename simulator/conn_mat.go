package simulator

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// A ConnMat is a connectivity matrix.
//
// Entries in the matrix indicate a transfer rate from a
// source node (row) to a destination node (column).
//
// Out-of-range indices cause a panic.
type ConnMat struct {
	rates *mat.Dense
}

// NewConnMat creates an all-zero connection matrix.
func NewConnMat(numNodes int) *ConnMat {
	if numNodes < 1 {
		panic(fmt.Sprintf("invalid number of nodes: %d", numNodes))
	}
	return &ConnMat{rates: mat.NewDense(numNodes, numNodes, nil)}
}

// NumNodes returns the number of nodes.
func (c *ConnMat) NumNodes() int {
	n, _ := c.rates.Dims()
	return n
}

// Get an entry in the matrix.
func (c *ConnMat) Get(src, dst int) float64 {
	return c.rates.At(src, dst)
}

// Set an entry in the matrix.
func (c *ConnMat) Set(src, dst int, value float64) {
	c.rates.Set(src, dst, value)
}

// SumDest sums a column of the matrix.
func (c *ConnMat) SumDest(dst int) float64 {
	return mat.Sum(c.rates.ColView(dst))
}

// SumSource sums a row of the matrix.
func (c *ConnMat) SumSource(src int) float64 {
	return floats.Sum(c.rates.RawRowView(src))
}

// ScaleDest scales a column of the matrix.
func (c *ConnMat) ScaleDest(dst int, scale float64) {
	col := c.rates.ColView(dst).(*mat.VecDense)
	col.ScaleVec(scale, col)
}

// ScaleSource scales a row of the matrix.
func (c *ConnMat) ScaleSource(src int, scale float64) {
	floats.Scale(scale, c.rates.RawRowView(src))
}

// Matrix returns the rates as a matrix, sharing storage
// with c.
func (c *ConnMat) Matrix() mat.Matrix {
	return c.rates
}

// String formats the rates as a grid.
func (c *ConnMat) String() string {
	return fmt.Sprintf("%v", mat.Formatted(c.rates, mat.Squeeze()))
}

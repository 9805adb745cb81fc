// Package linalg implements dense linear algebra on
// row-distributed matrices: a distributed matrix product
// and a thin SVD by the method of snapshots.
package linalg

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/unixpickle/dist-linalg/collcomm"
	"github.com/unixpickle/dist-linalg/tensor"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
)

// A ShapeMismatchError indicates operands of a product
// whose shapes are incompatible.
type ShapeMismatchError struct {
	Msg string
}

func (s *ShapeMismatchError) Error() string {
	return "shape mismatch: " + s.Msg
}

// An InvalidTransposeError indicates a transpose flag
// other than blas.NoTrans or blas.Trans.
type InvalidTransposeError struct {
	Flag string
}

func (i *InvalidTransposeError) Error() string {
	return fmt.Sprintf("invalid transpose flag %q (expected \"N\" or \"T\")", i.Flag)
}

// ParseTranspose converts "N" or "T" into a transpose
// flag.
func ParseTranspose(flag string) (blas.Transpose, error) {
	switch flag {
	case "N", "n":
		return blas.NoTrans, nil
	case "T", "t":
		return blas.Trans, nil
	}
	return 0, errors.WithStack(&InvalidTransposeError{Flag: flag})
}

// Product computes c = beta*c + alpha*op(a)*op(b) in
// place, where op is selected by transA and transB.
//
// a and b are row-distributed. When transA is blas.Trans
// the contraction runs over the distributed rows, so the
// local products are partial and are summed across the
// group with a collective. Otherwise the product is local
// and c has the same row distribution as a.
//
// Shapes are checked before any computation or
// communication.
func Product(transA, transB blas.Transpose, alpha float64, a, b *tensor.Array, beta float64,
	c *tensor.Array, g collcomm.Group) error {
	k, err := checkProduct(transA, transB, a, b, c)
	if err != nil {
		return errors.Wrap(err, "Product")
	}
	g = collcomm.Resolve(g)

	m, n := c.Dim(0), c.Dim(1)
	prod := make([]float64, m*n)
	if m > 0 && n > 0 && k > 0 {
		blas64.Gemm(transA, transB, alpha, general(a), general(b), 0,
			blas64.General{Rows: m, Cols: n, Stride: n, Data: prod})
	}
	if transA == blas.Trans && g.Size() > 1 {
		prod = g.Allreduce(collcomm.OpSum, prod)
	}

	data := c.Data()
	if beta == 0 {
		copy(data, prod)
	} else {
		for i, x := range prod {
			data[i] = beta*data[i] + x
		}
	}
	return nil
}

// checkProduct validates the operands of Product and
// returns the local contraction length.
func checkProduct(transA, transB blas.Transpose, a, b, c *tensor.Array) (int, error) {
	for _, t := range []blas.Transpose{transA, transB} {
		if t != blas.NoTrans && t != blas.Trans {
			return 0, errors.WithStack(&InvalidTransposeError{Flag: string(rune(t))})
		}
	}
	if a == nil || b == nil || c == nil {
		return 0, errors.WithStack(tensor.ErrNilArray)
	}
	for _, x := range []struct {
		name string
		arr  *tensor.Array
	}{{"A", a}, {"B", b}, {"C", c}} {
		if x.arr.Rank() != 2 {
			return 0, errors.WithStack(&ShapeMismatchError{
				Msg: fmt.Sprintf("%s must be a matrix but has shape %v", x.name, x.arr.Shape()),
			})
		}
	}
	rowsA, k := opDims(transA, a)
	rowsB, colsB := opDims(transB, b)
	if k != rowsB {
		return 0, errors.WithStack(&ShapeMismatchError{
			Msg: fmt.Sprintf("op(A) is %dx%d but op(B) is %dx%d", rowsA, k, rowsB, colsB),
		})
	}
	if c.Dim(0) != rowsA || c.Dim(1) != colsB {
		return 0, errors.WithStack(&ShapeMismatchError{
			Msg: fmt.Sprintf("C has shape %v but op(A)*op(B) is %dx%d", c.Shape(), rowsA, colsB),
		})
	}
	return k, nil
}

func opDims(t blas.Transpose, a *tensor.Array) (rows, cols int) {
	if t == blas.Trans {
		return a.Dim(1), a.Dim(0)
	}
	return a.Dim(0), a.Dim(1)
}

// general views a non-empty rank 2 array as a BLAS
// matrix without copying.
func general(a *tensor.Array) blas64.General {
	return blas64.General{
		Rows:   a.Dim(0),
		Cols:   a.Dim(1),
		Stride: a.Dim(1),
		Data:   a.Data(),
	}
}

// Package tensor implements the local part of a
// row-distributed dense array, along with the local
// reductions that distributed operations build on.
//
// A logical array is split along axis 0: every process
// holds some (possibly zero) rows, and all processes agree
// on the remaining dimensions.
package tensor

import (
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// MaxRank is the largest supported rank.
const MaxRank = 3

// ErrNilArray is returned when a nil *Array is passed
// where an array is required.
var ErrNilArray = errors.New("nil array")

// A ShapeError indicates an invalid shape or a shape that
// does not match the data.
type ShapeError struct {
	Shape []int
	Msg   string
}

func (s *ShapeError) Error() string {
	return fmt.Sprintf("invalid shape %v: %s", s.Shape, s.Msg)
}

// An Array is a dense row-major buffer of float64 values
// with a rank between 0 and MaxRank.
//
// Rank 0 arrays hold exactly one value and only appear as
// the result of a full reduction.
type Array struct {
	shape []int
	data  []float64
}

// New creates an Array that takes ownership of data.
func New(shape []int, data []float64) (*Array, error) {
	if len(shape) > MaxRank {
		return nil, errors.WithStack(&ShapeError{Shape: shape,
			Msg: fmt.Sprintf("rank %d exceeds %d", len(shape), MaxRank)})
	}
	size := 1
	for _, d := range shape {
		if d < 0 {
			return nil, errors.WithStack(&ShapeError{Shape: shape, Msg: "negative dimension"})
		}
		size *= d
	}
	if size != len(data) {
		return nil, errors.WithStack(&ShapeError{Shape: shape,
			Msg: fmt.Sprintf("needs %d values but got %d", size, len(data))})
	}
	return &Array{shape: append([]int{}, shape...), data: data}, nil
}

// Must is a helper that panics if err is non-nil.
func Must(a *Array, err error) *Array {
	if err != nil {
		panic(err)
	}
	return a
}

// Zeros creates a zero-filled Array.
func Zeros(shape ...int) *Array {
	size := 1
	for _, d := range shape {
		size *= d
	}
	if size < 0 {
		size = 0
	}
	return Must(New(shape, make([]float64, size)))
}

// Scalar creates a rank 0 Array.
func Scalar(x float64) *Array {
	return &Array{shape: []int{}, data: []float64{x}}
}

// FromRows creates a rank 2 Array from a slice of rows.
//
// All rows must have the same length. Since an empty
// slice carries no column count, use Zeros(0, cols) for
// empty partitions.
func FromRows(rows [][]float64) (*Array, error) {
	if len(rows) == 0 {
		return Zeros(0, 0), nil
	}
	cols := len(rows[0])
	data := make([]float64, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			return nil, errors.WithStack(&ShapeError{Shape: []int{len(rows), cols},
				Msg: fmt.Sprintf("row %d has %d values", i, len(row))})
		}
		data = append(data, row...)
	}
	return New([]int{len(rows), cols}, data)
}

// FromDense copies a gonum matrix into a rank 2 Array.
func FromDense(m mat.Matrix) *Array {
	r, c := m.Dims()
	res := Zeros(r, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			res.data[i*c+j] = m.At(i, j)
		}
	}
	return res
}

// Rank returns the number of dimensions.
func (a *Array) Rank() int {
	return len(a.shape)
}

// Shape returns a copy of the shape.
func (a *Array) Shape() []int {
	return append([]int{}, a.shape...)
}

// Dim returns the size of one dimension.
func (a *Array) Dim(axis int) int {
	return a.shape[axis]
}

// Size returns the number of elements.
func (a *Array) Size() int {
	return len(a.data)
}

// Data returns the underlying row-major buffer.
//
// Callers must not modify it unless they own the Array.
func (a *Array) Data() []float64 {
	return a.data
}

// At returns the element at the given index.
func (a *Array) At(idx ...int) float64 {
	if len(idx) != len(a.shape) {
		panic(fmt.Sprintf("index %v does not match rank %d", idx, len(a.shape)))
	}
	offset := 0
	for i, x := range idx {
		if x < 0 || x >= a.shape[i] {
			panic(fmt.Sprintf("index %v out of bounds for shape %v", idx, a.shape))
		}
		offset = offset*a.shape[i] + x
	}
	return a.data[offset]
}

// Item returns the only value of a rank 0 Array.
func (a *Array) Item() float64 {
	if len(a.shape) != 0 {
		panic(fmt.Sprintf("Item called on array of shape %v", a.shape))
	}
	return a.data[0]
}

// Clone creates a deep copy.
func (a *Array) Clone() *Array {
	return &Array{shape: a.Shape(), data: append([]float64{}, a.data...)}
}

// Dense copies a rank 2 Array into a gonum matrix.
//
// Returns nil if either dimension is zero, since gonum
// does not support empty matrices.
func (a *Array) Dense() *mat.Dense {
	if len(a.shape) != 2 {
		panic(fmt.Sprintf("Dense called on array of shape %v", a.shape))
	}
	if a.shape[0] == 0 || a.shape[1] == 0 {
		return nil
	}
	return mat.NewDense(a.shape[0], a.shape[1], append([]float64{}, a.data...))
}

// RowSize returns the number of values in one row, i.e.
// the product of every dimension but the first.
func (a *Array) RowSize() int {
	size := 1
	for _, d := range a.shape[1:] {
		size *= d
	}
	return size
}

func (a *Array) String() string {
	return fmt.Sprintf("Array%v%v", a.shape, a.data)
}

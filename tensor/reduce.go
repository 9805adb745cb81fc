package tensor

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// A Reducer folds values into an accumulator.
type Reducer struct {
	// Identity is the initial accumulator, which is also
	// the result of reducing zero values.
	Identity float64
	Combine  func(acc, x float64) float64
}

var (
	SumReducer = Reducer{Identity: 0, Combine: func(acc, x float64) float64 { return acc + x }}

	// MaxReducer and MinReducer propagate NaNs.
	MaxReducer = Reducer{Identity: math.Inf(-1), Combine: math.Max}
	MinReducer = Reducer{Identity: math.Inf(1), Combine: math.Min}
)

// ReduceAll reduces every element of a.
func ReduceAll(a *Array, r Reducer) float64 {
	acc := r.Identity
	for _, x := range a.data {
		acc = r.Combine(acc, x)
	}
	return acc
}

// SumAll sums every element of a.
func SumAll(a *Array) float64 {
	if len(a.data) == 0 {
		return 0
	}
	return floats.Sum(a.data)
}

// ReduceAxis reduces a along one axis, producing an array
// whose rank is one lower.
func ReduceAxis(a *Array, axis int, r Reducer) *Array {
	outer, n, inner := a.axisStrides(axis)
	res := a.dropAxis(axis, r.Identity)
	for o := 0; o < outer; o++ {
		out := res.data[o*inner : (o+1)*inner]
		for k := 0; k < n; k++ {
			in := a.data[(o*n+k)*inner : (o*n+k+1)*inner]
			for i, x := range in {
				out[i] = r.Combine(out[i], x)
			}
		}
	}
	return res
}

// SquaredDeviationsAll sums (x-mean)^2 over every element.
func SquaredDeviationsAll(a *Array, mean float64) float64 {
	var sum float64
	for _, x := range a.data {
		d := x - mean
		sum += d * d
	}
	return sum
}

// SquaredDeviationsAxis sums (x-mean)^2 along an axis,
// where mean has the shape of the reduced array and is
// broadcast along the axis.
func SquaredDeviationsAxis(a *Array, axis int, mean *Array) *Array {
	outer, n, inner := a.axisStrides(axis)
	res := a.dropAxis(axis, 0)
	if len(mean.data) != len(res.data) {
		panic(fmt.Sprintf("mean shape %v does not match reduced shape %v", mean.shape, res.shape))
	}
	for o := 0; o < outer; o++ {
		out := res.data[o*inner : (o+1)*inner]
		center := mean.data[o*inner : (o+1)*inner]
		for k := 0; k < n; k++ {
			in := a.data[(o*n+k)*inner : (o*n+k+1)*inner]
			for i, x := range in {
				d := x - center[i]
				out[i] += d * d
			}
		}
	}
	return res
}

// axisStrides splits the shape into the number of
// elements before, along, and after an axis.
func (a *Array) axisStrides(axis int) (outer, n, inner int) {
	if axis < 0 || axis >= len(a.shape) {
		panic(fmt.Sprintf("axis %d out of range for shape %v", axis, a.shape))
	}
	outer, inner = 1, 1
	for _, d := range a.shape[:axis] {
		outer *= d
	}
	for _, d := range a.shape[axis+1:] {
		inner *= d
	}
	return outer, a.shape[axis], inner
}

// dropAxis creates an array with one axis removed, filled
// with a constant.
func (a *Array) dropAxis(axis int, fill float64) *Array {
	shape := make([]int, 0, len(a.shape)-1)
	shape = append(shape, a.shape[:axis]...)
	shape = append(shape, a.shape[axis+1:]...)
	res := Zeros(shape...)
	if fill != 0 {
		for i := range res.data {
			res.data[i] = fill
		}
	}
	return res
}

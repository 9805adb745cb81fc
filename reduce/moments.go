package reduce

import (
	"fmt"
	"math"

	"github.com/unixpickle/dist-linalg/collcomm"
	"github.com/unixpickle/dist-linalg/tensor"
	"k8s.io/klog/v2"
)

// A DType is the floating-point precision of a mean or
// standard deviation result.
type DType int

const (
	Float64 DType = iota

	// Float32 rounds results to single precision.
	Float32
)

func (d DType) apply(a *tensor.Array) *tensor.Array {
	if d == Float32 {
		data := a.Data()
		for i, x := range data {
			data[i] = float64(float32(x))
		}
	}
	return a
}

// An EmptyReductionWarning reports a mean or standard
// deviation whose denominator is not positive, e.g. the
// mean of an empty distributed array.
//
// It is a diagnostic, not a failure: the public functions
// log it and return NaN.
type EmptyReductionWarning struct {
	Op    string
	Axis  Axis
	Count float64
}

func (e *EmptyReductionWarning) Error() string {
	return fmt.Sprintf("%s over axis %s has denominator %g: result is NaN", e.Op, e.Axis, e.Count)
}

// Mean computes the arithmetic mean of a over axis.
//
// If the (global) number of reduced elements is zero, a
// warning is logged and the result is NaN.
func Mean(a *tensor.Array, axis Axis, g collcomm.Group, dtype DType) (*tensor.Array, error) {
	if err := validate("Mean", a, axis); err != nil {
		return nil, err
	}
	g = collcomm.Resolve(g)
	sums, count := sumsAndCount(a, axis, g)
	m, warn := quotient("Mean", axis, sums, count)
	return dtype.apply(collapse(m, warn, sums.Shape())), nil
}

// Std computes the standard deviation of a over axis,
// dividing the squared deviations by count-ddof.
//
// Deviations are taken from the global mean when axis
// crosses the distributed axis, and from the local mean
// otherwise.
// A non-positive divisor yields NaN and a warning.
func Std(a *tensor.Array, axis Axis, ddof int, g collcomm.Group, dtype DType) (*tensor.Array,
	error) {
	if err := validate("Std", a, axis); err != nil {
		return nil, err
	}
	g = collcomm.Resolve(g)
	sums, count := sumsAndCount(a, axis, g)
	m, warn := quotient("Std", axis, sums, count)
	if warn != nil {
		// count is global, so every process skips the
		// second collective together.
		return dtype.apply(collapse(nil, warn, sums.Shape())), nil
	}

	var localSq *tensor.Array
	if axis.IsNone() {
		localSq = tensor.Scalar(tensor.SquaredDeviationsAll(a, m.Item()))
	} else {
		localSq = tensor.SquaredDeviationsAxis(a, axis.Index(), m)
	}
	sq := combine(g, collcomm.OpSum, axis, localSq)
	variance, warn := quotient("Std", axis, sq, count-float64(ddof))
	if variance != nil {
		data := variance.Data()
		for i, x := range data {
			data[i] = math.Sqrt(x)
		}
	}
	return dtype.apply(collapse(variance, warn, sq.Shape())), nil
}

// sumsAndCount computes the sums over axis along with the
// number of summed elements, both global when axis is
// distributed.
// They share a single collective.
func sumsAndCount(a *tensor.Array, axis Axis, g collcomm.Group) (*tensor.Array, float64) {
	local := localReduce(a, axis, tensor.SumReducer)
	count := float64(localCount(a, axis))
	if g.Size() == 1 || !axis.Distributed() {
		return local, count
	}
	buf := append(append([]float64{}, local.Data()...), count)
	res := g.Allreduce(collcomm.OpSum, buf)
	n := local.Size()
	return tensor.Must(tensor.New(local.Shape(), res[:n])), res[n]
}

// quotient divides num by den in place, or reports an
// EmptyReductionWarning if den is not positive.
func quotient(op string, axis Axis, num *tensor.Array, den float64) (*tensor.Array,
	*EmptyReductionWarning) {
	if !(den > 0) {
		return nil, &EmptyReductionWarning{Op: op, Axis: axis, Count: den}
	}
	data := num.Data()
	for i := range data {
		data[i] /= den
	}
	return num, nil
}

// collapse returns res, or a NaN-filled array of the
// given shape after logging warn.
func collapse(res *tensor.Array, warn *EmptyReductionWarning, shape []int) *tensor.Array {
	if warn == nil {
		return res
	}
	klog.Warning(warn.Error())
	nan := tensor.Zeros(shape...)
	data := nan.Data()
	for i := range data {
		data[i] = math.NaN()
	}
	return nan
}

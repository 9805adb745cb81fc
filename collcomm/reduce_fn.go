package collcomm

import (
	"fmt"
	"math"

	"github.com/unixpickle/dist-linalg/simulator"
)

// FlopTime is the amount of virtual time it takes to
// perform a single floating-point operation.
const FlopTime = 1e-9

// A ReduceFn is an operation that reduces many vectors
// into a single vector.
//
// The result must only depend on the order of vecs, never
// on timing, so that every node computes bit-identical
// values.
type ReduceFn func(h *simulator.Handle, vecs ...[]float64) []float64

// Sum is a ReduceFn that computes a vector sum.
func Sum(h *simulator.Handle, vecs ...[]float64) []float64 {
	return elementwise(h, vecs, func(x, y float64) float64 { return x + y })
}

// Max is a ReduceFn that computes an element-wise max.
// NaNs propagate.
func Max(h *simulator.Handle, vecs ...[]float64) []float64 {
	return elementwise(h, vecs, math.Max)
}

// Min is a ReduceFn that computes an element-wise min.
// NaNs propagate.
func Min(h *simulator.Handle, vecs ...[]float64) []float64 {
	return elementwise(h, vecs, math.Min)
}

func elementwise(h *simulator.Handle, vecs [][]float64, f func(x, y float64) float64) []float64 {
	for _, v := range vecs[1:] {
		if len(v) != len(vecs[0]) {
			panic("mismatching lengths")
		}
	}
	res := append([]float64{}, vecs[0]...)
	for _, v := range vecs[1:] {
		for i, x := range v {
			res[i] = f(res[i], x)
		}
	}

	// Simulate computation time.
	if h != nil {
		h.Sleep(FlopTime * float64(len(vecs)*len(vecs[0])))
	}

	return res
}

// An Op identifies a reduction operator for collectives.
type Op int

const (
	OpSum Op = iota
	OpMax
	OpMin
)

// ReduceFn returns the ReduceFn implementing the operator.
func (o Op) ReduceFn() ReduceFn {
	switch o {
	case OpSum:
		return Sum
	case OpMax:
		return Max
	case OpMin:
		return Min
	}
	panic(fmt.Sprintf("unknown operator: %d", int(o)))
}

// Identity returns the value x for which reducing x with
// any y yields y.
func (o Op) Identity() float64 {
	switch o {
	case OpSum:
		return 0
	case OpMax:
		return math.Inf(-1)
	case OpMin:
		return math.Inf(1)
	}
	panic(fmt.Sprintf("unknown operator: %d", int(o)))
}

func (o Op) String() string {
	switch o {
	case OpSum:
		return "SUM"
	case OpMax:
		return "MAX"
	case OpMin:
		return "MIN"
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

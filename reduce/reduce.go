package reduce

import (
	"github.com/unixpickle/dist-linalg/collcomm"
	"github.com/unixpickle/dist-linalg/tensor"
)

// Max computes the maximum of a over axis.
//
// Processes with no local elements contribute -Inf.
// NaNs propagate.
func Max(a *tensor.Array, axis Axis, g collcomm.Group) (*tensor.Array, error) {
	return extremum("Max", a, axis, g, collcomm.OpMax, tensor.MaxReducer)
}

// Min computes the minimum of a over axis.
//
// Processes with no local elements contribute +Inf.
// NaNs propagate.
func Min(a *tensor.Array, axis Axis, g collcomm.Group) (*tensor.Array, error) {
	return extremum("Min", a, axis, g, collcomm.OpMin, tensor.MinReducer)
}

func extremum(name string, a *tensor.Array, axis Axis, g collcomm.Group, op collcomm.Op,
	r tensor.Reducer) (*tensor.Array, error) {
	if err := validate(name, a, axis); err != nil {
		return nil, err
	}
	g = collcomm.Resolve(g)
	return combine(g, op, axis, localReduce(a, axis, r)), nil
}

// Count returns the number of elements that are reduced
// into each output element when reducing over axis.
//
// For None and axis 0 this is a global count and requires
// a collective.
func Count(a *tensor.Array, axis Axis, g collcomm.Group) (int, error) {
	if err := validate("Count", a, axis); err != nil {
		return 0, err
	}
	g = collcomm.Resolve(g)
	local := localCount(a, axis)
	if g.Size() == 1 || !axis.Distributed() {
		return local, nil
	}
	return int(collcomm.AllreduceScalar(g, collcomm.OpSum, float64(local))), nil
}

func localReduce(a *tensor.Array, axis Axis, r tensor.Reducer) *tensor.Array {
	if axis.IsNone() {
		return tensor.Scalar(tensor.ReduceAll(a, r))
	}
	return tensor.ReduceAxis(a, axis.Index(), r)
}

func localCount(a *tensor.Array, axis Axis) int {
	if axis.IsNone() {
		return a.Size()
	}
	return a.Dim(axis.Index())
}

// combine turns a local partial reduction into the final
// result, issuing a collective only when axis crosses the
// distributed axis.
func combine(g collcomm.Group, op collcomm.Op, axis Axis, local *tensor.Array) *tensor.Array {
	if g.Size() == 1 || !axis.Distributed() {
		return local
	}
	return tensor.Must(tensor.New(local.Shape(), g.Allreduce(op, local.Data())))
}

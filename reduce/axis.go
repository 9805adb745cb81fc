// Package reduce implements max, min, mean and standard
// deviation over row-distributed arrays.
//
// Arrays are distributed along axis 0. Reducing over all
// axes or over axis 0 combines partial results from every
// process with a collective, so every process in the group
// must make the same call. Reducing over any other axis is
// purely local and keeps the input's row distribution.
package reduce

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/unixpickle/dist-linalg/tensor"
)

// An Axis selects the axis to reduce over, or None for a
// reduction over every element.
type Axis struct {
	index int
	set   bool
}

// None reduces over all axes.
var None = Axis{}

// Along selects a single axis.
func Along(axis int) Axis {
	return Axis{index: axis, set: true}
}

// IsNone reports whether a reduces over all axes.
func (a Axis) IsNone() bool {
	return !a.set
}

// Index returns the selected axis.
func (a Axis) Index() int {
	if !a.set {
		panic("Index called on None axis")
	}
	return a.index
}

// Distributed reports whether reducing over a crosses the
// distributed axis, which requires a collective.
func (a Axis) Distributed() bool {
	return !a.set || a.index == 0
}

func (a Axis) String() string {
	if !a.set {
		return "None"
	}
	return fmt.Sprint(a.index)
}

// An InvalidAxisError indicates an axis outside of
// [0, rank).
type InvalidAxisError struct {
	Axis int
	Rank int
}

func (i *InvalidAxisError) Error() string {
	return fmt.Sprintf("axis %d is out of bounds for array of rank %d", i.Axis, i.Rank)
}

// An InvalidRankError indicates an array whose rank is not
// supported by reductions.
type InvalidRankError struct {
	Rank int
}

func (i *InvalidRankError) Error() string {
	return fmt.Sprintf("rank %d is not in [1, %d]", i.Rank, tensor.MaxRank)
}

// ValidateAxis checks that an array of the given rank can
// be reduced over axis.
func ValidateAxis(rank int, axis Axis) error {
	if rank < 1 || rank > tensor.MaxRank {
		return errors.WithStack(&InvalidRankError{Rank: rank})
	}
	if axis.set && (axis.index < 0 || axis.index >= rank) {
		return errors.WithStack(&InvalidAxisError{Axis: axis.index, Rank: rank})
	}
	return nil
}

func validate(op string, a *tensor.Array, axis Axis) error {
	if a == nil {
		return errors.Wrap(tensor.ErrNilArray, op)
	}
	return errors.Wrap(ValidateAxis(a.Rank(), axis), op)
}

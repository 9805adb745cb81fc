package collcomm

// A Group is a set of cooperating processes from the view
// of one member.
//
// Collectives block until every member of the group has
// issued the same collective, and members must issue
// collectives in the same order.
type Group interface {
	// Size returns the number of processes (at least 1).
	Size() int

	// Rank returns the index of this process.
	Rank() int

	// Allreduce combines data across all processes with
	// op and returns the result, which is identical on
	// every process.
	//
	// data is not modified and the result never aliases
	// it.
	Allreduce(op Op, data []float64) []float64
}

// Solo is the trivial Group of a single process.
// Its collectives copy their input.
type Solo struct{}

// Size returns 1.
func (s Solo) Size() int {
	return 1
}

// Rank returns 0.
func (s Solo) Rank() int {
	return 0
}

// Allreduce returns a copy of data.
func (s Solo) Allreduce(op Op, data []float64) []float64 {
	return append([]float64{}, data...)
}

// Resolve returns g, or Solo{} if g is nil.
func Resolve(g Group) Group {
	if g == nil {
		return Solo{}
	}
	return g
}

// AllreduceScalar reduces a single value across the group.
func AllreduceScalar(g Group, op Op, x float64) float64 {
	return g.Allreduce(op, []float64{x})[0]
}

// Package allreduce implements algorithms for reducing
// vectors element-wise across many connected Nodes, and a
// collcomm.Group built on them.
package allreduce

import "github.com/unixpickle/dist-linalg/collcomm"

// Allreducer is an algorithm that can apply a ReduceFn to
// vectors that are distributed across nodes.
//
// Every node must pass a vector of the same length.
// Consecutive calls on one Comms object are only safe if
// each is preceded by c.Begin() on every node; Group does
// this automatically.
type Allreducer interface {
	Allreduce(c *collcomm.Comms, data []float64, fn collcomm.ReduceFn) []float64
}

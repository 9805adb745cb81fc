package allreduce

import (
	"github.com/unixpickle/dist-linalg/collcomm"
	"github.com/unixpickle/dist-linalg/simulator"
	"k8s.io/klog/v2"
)

// A Group is a collcomm.Group whose collectives run an
// Allreducer over a node's Comms.
type Group struct {
	Comms   *collcomm.Comms
	Reducer Allreducer
}

// Size returns the number of nodes.
func (g *Group) Size() int {
	return g.Comms.Size()
}

// Rank returns the index of the current node.
func (g *Group) Rank() int {
	return g.Comms.Index()
}

// Allreduce runs the next collective on the group.
//
// If Reducer is nil, a TreeAllreducer is used.
func (g *Group) Allreduce(op collcomm.Op, data []float64) []float64 {
	reducer := g.Reducer
	if reducer == nil {
		reducer = TreeAllreducer{}
	}
	g.Comms.Begin()
	if klog.V(3).Enabled() {
		klog.Infof("allreduce: rank %d/%d collective %d: %s over %d values",
			g.Rank(), g.Size(), g.Comms.Seq(), op, len(data))
	}
	res := reducer.Allreduce(g.Comms, data, op.ReduceFn())
	return append([]float64{}, res...)
}

// SpawnGroups is like collcomm.SpawnComms, but it wraps
// every node's Comms in a Group.
func SpawnGroups(loop *simulator.EventLoop, network simulator.Network, nodes []*simulator.Node,
	reducer Allreducer, f func(g *Group)) {
	collcomm.SpawnComms(loop, network, nodes, func(c *collcomm.Comms) {
		f(&Group{Comms: c, Reducer: reducer})
	})
}

package simulator

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// A Switcher is a switching algorithm that determines how
// rapidly data flows in a graph of nodes.
// One job of the Switcher is to decide how to deal with
// oversubscription.
type Switcher interface {
	// Apply the switching algorithm to compute the
	// transfer rates of every connection.
	//
	// The mat argument is passed in with 1's wherever a
	// node wants to send data to another node, and 0's
	// everywhere else.
	//
	// When the function returns, mat indicates the rate
	// of data between every pair of nodes.
	SwitchedRates(mat *ConnMat)

	// NumNodes is the number of nodes on the switch.
	NumNodes() int
}

// A GreedyDropSwitcher emulates a switch where outgoing
// data is spread evenly across a node's outputs, and
// inputs to a node are dropped uniformly at random when a
// node is oversubscribed.
//
// This is equivalent to first normalizing the rows of a
// connection matrix, and then normalizing the columns.
type GreedyDropSwitcher struct {
	SendRates []float64
	RecvRates []float64
}

// NewGreedyDropSwitcher creates a GreedyDropSwitcher with
// uniform upload and download rates across all nodes.
func NewGreedyDropSwitcher(numNodes int, rate float64) *GreedyDropSwitcher {
	rates := make([]float64, numNodes)
	for i := range rates {
		rates[i] = rate
	}
	return &GreedyDropSwitcher{
		SendRates: rates,
		RecvRates: rates,
	}
}

// NewGreedyDropSwitcherRates creates a GreedyDropSwitcher
// with per-node upload and download rates, e.g. to model a
// straggler with a slow NIC.
//
// The slices must have the same length and every rate
// must be positive.
func NewGreedyDropSwitcherRates(sendRates, recvRates []float64) (*GreedyDropSwitcher, error) {
	if len(sendRates) != len(recvRates) {
		return nil, errors.Errorf("got %d send rates but %d receive rates", len(sendRates),
			len(recvRates))
	}
	for i := range sendRates {
		if !(sendRates[i] > 0) || !(recvRates[i] > 0) {
			return nil, errors.Errorf("node %d: rates must be positive (send=%f, recv=%f)", i,
				sendRates[i], recvRates[i])
		}
	}
	return &GreedyDropSwitcher{
		SendRates: append([]float64{}, sendRates...),
		RecvRates: append([]float64{}, recvRates...),
	}, nil
}

// NumNodes gets the number of nodes the switch expects.
func (g *GreedyDropSwitcher) NumNodes() int {
	return len(g.SendRates)
}

// SwitchedRates performs the switching algorithm.
func (g *GreedyDropSwitcher) SwitchedRates(mat *ConnMat) {
	if mat.NumNodes() != g.NumNodes() {
		panic("unexpected number of nodes")
	}

	// Split upload traffic evenly across sockets.
	for src := 0; src < g.NumNodes(); src++ {
		if numDests := mat.SumSource(src); numDests > 0 {
			mat.ScaleSource(src, g.SendRates[src]/numDests)
		}
	}

	// Drop download traffic in proportion to the number
	// of incoming packets from each socket.
	for dst := 0; dst < g.NumNodes(); dst++ {
		if incomingRate := mat.SumDest(dst); incomingRate > g.RecvRates[dst] {
			klog.V(5).Infof("simulator: node %d oversubscribed (%f > %f)", dst, incomingRate,
				g.RecvRates[dst])
			mat.ScaleDest(dst, g.RecvRates[dst]/incomingRate)
		}
	}

	if klog.V(5).Enabled() {
		klog.Infof("simulator: switched rates:\n%s", mat)
	}
}

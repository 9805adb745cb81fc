package allreduce

import (
	"github.com/pkg/errors"
	"github.com/unixpickle/dist-linalg/simulator"
)

// A Cluster describes a simulated network of processes
// that communicate through Groups.
type Cluster struct {
	NumNodes int

	// Latency and Rate configure a switched network with
	// uniform NIC rates.
	// If Rate is 0 and no per-node rates are set, a
	// RandomNetwork is used instead.
	Latency float64
	Rate    float64

	// SendRates and RecvRates optionally give every node
	// its own NIC rates, overriding Rate.
	SendRates []float64
	RecvRates []float64

	// Reducer is the algorithm used for collectives.
	// If nil, a TreeAllreducer is used.
	Reducer Allreducer

	// Seed, if non-zero, seeds the event loop.
	Seed int64
}

// Network creates the network connecting nodes.
func (c *Cluster) Network(nodes []*simulator.Node) (simulator.Network, error) {
	if c.SendRates != nil || c.RecvRates != nil {
		if len(c.SendRates) != len(nodes) || len(c.RecvRates) != len(nodes) {
			return nil, errors.Errorf("need %d per-node rates but got %d send and %d receive rates",
				len(nodes), len(c.SendRates), len(c.RecvRates))
		}
		switcher, err := simulator.NewGreedyDropSwitcherRates(c.SendRates, c.RecvRates)
		if err != nil {
			return nil, err
		}
		return simulator.NewSwitcherNetwork(switcher, nodes, c.Latency), nil
	}
	if c.Rate == 0 {
		return simulator.RandomNetwork{}, nil
	}
	if c.Rate < 0 {
		return nil, errors.Errorf("invalid NIC rate: %f", c.Rate)
	}
	switcher := simulator.NewGreedyDropSwitcher(len(nodes), c.Rate)
	return simulator.NewSwitcherNetwork(switcher, nodes, c.Latency), nil
}

// Run drops each process into its own Goroutine, waits
// for all of them to return, and reports the elapsed
// virtual time.
func (c *Cluster) Run(f func(g *Group)) (float64, error) {
	if c.NumNodes < 1 {
		return 0, errors.Errorf("cluster needs at least one node, got %d", c.NumNodes)
	}
	nodes := simulator.NewNodes(c.NumNodes)
	network, err := c.Network(nodes)
	if err != nil {
		return 0, errors.Wrap(err, "create network")
	}
	loop := simulator.NewEventLoop()
	if c.Seed != 0 {
		loop = simulator.NewSeededEventLoop(c.Seed)
	}
	SpawnGroups(loop, network, nodes, c.Reducer, f)
	if err := loop.Run(); err != nil {
		return loop.Time(), errors.Wrapf(err, "run %d-node cluster", c.NumNodes)
	}
	return loop.Time(), nil
}

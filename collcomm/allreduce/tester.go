package allreduce

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/unixpickle/dist-linalg/collcomm"
	"github.com/unixpickle/dist-linalg/simulator"
)

// RunAllreducerTests runs a battery of tests on an
// Allreducer.
//
// Every node runs two collectives back to back on the
// same Comms: first with the operator under test, then a
// sum.
//
// Vectors shorter than the node count are included, and
// runs over the reordering RandomNetwork repeat with
// several fixed seeds so that failures are reproducible.
func RunAllreducerTests(t *testing.T, reducer Allreducer) {
	for _, op := range []collcomm.Op{collcomm.OpSum, collcomm.OpMax, collcomm.OpMin} {
		for _, numNodes := range []int{1, 2, 3, 5, 15, 16, 17} {
			for _, size := range []int{0, 1, 2, 3, 1337} {
				for _, randomized := range []bool{false, true} {
					seeds := []int64{1}
					if randomized && size < 1337 {
						seeds = []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
					}
					for _, seed := range seeds {
						testName := fmt.Sprintf("Op=%s,Nodes=%d,Size=%d,Random=%v,Seed=%d", op,
							numNodes, size, randomized, seed)
						t.Run(testName, func(t *testing.T) {
							runAllreducerTest(t, reducer, op, numNodes, size, randomized, seed)
						})
					}
				}
			}
		}
	}
}

func runAllreducerTest(t *testing.T, reducer Allreducer, op collcomm.Op, numNodes, size int,
	randomized bool, seed int64) {
	loop := simulator.NewSeededEventLoop(seed)
	rng := rand.New(rand.NewSource(seed))
	vectors := make([][]float64, numNodes)
	nodes := simulator.NewNodes(numNodes)
	expected := make([]float64, size)
	sum := make([]float64, size)
	for j := range expected {
		expected[j] = op.Identity()
	}
	fn := op.ReduceFn()
	for i := range nodes {
		vectors[i] = make([]float64, size)
		for j := range vectors[i] {
			vectors[i][j] = rng.NormFloat64()
			sum[j] += vectors[i][j]
		}
		expected = fn(nil, expected, vectors[i])
	}

	var network simulator.Network
	if randomized {
		network = simulator.RandomNetwork{}
	} else {
		switcher := simulator.NewGreedyDropSwitcher(numNodes, 1.0)
		network = simulator.NewSwitcherNetwork(switcher, nodes, 0.1)
	}

	results := make([][]float64, numNodes)
	sums := make([][]float64, numNodes)
	collcomm.SpawnComms(loop, network, nodes, func(c *collcomm.Comms) {
		g := &Group{Comms: c, Reducer: reducer}
		results[c.Index()] = g.Allreduce(op, vectors[c.Index()])
		sums[c.Index()] = g.Allreduce(collcomm.OpSum, vectors[c.Index()])
	})

	if err := loop.Run(); err != nil {
		t.Fatal(err)
	}

	verifyReductionResults(t, results, expected)
	verifyReductionResults(t, sums, sum)
}

func verifyReductionResults(t *testing.T, results [][]float64, expected []float64) {
	for i, res := range results[1:] {
		if len(res) != len(expected) {
			t.Errorf("result %d has length %d but expected %d", i+1, len(res), len(expected))
			continue
		}
		for j, actual := range res {
			if actual != results[0][j] {
				t.Errorf("result %d is not identical to result 0", i+1)
				break
			}
		}
	}

	for i, x := range expected {
		if math.Abs(x-results[0][i]) > 1e-5 {
			t.Errorf("reduction is incorrect (expected %f but got %f at component %d)",
				x, results[0][i], i)
			break
		}
	}
}

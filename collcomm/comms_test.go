package collcomm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unixpickle/dist-linalg/simulator"
)

// TestCommsSequencing makes sure that messages from a
// later collective are never delivered to an earlier one,
// even when the network reorders them.
func TestCommsSequencing(t *testing.T) {
	for trial := 0; trial < 50; trial++ {
		loop := simulator.NewEventLoop()
		nodes := simulator.NewNodes(2)
		var received [][]float64
		var sent float64
		SpawnComms(loop, simulator.RandomNetwork{}, nodes, func(c *Comms) {
			if c.Index() == 0 {
				for i := 1; i <= 3; i++ {
					c.Begin()
					c.Send(c.Ports[1], []float64{float64(i), float64(i)})
				}
				sent = c.BytesSent()
				return
			}
			for i := 1; i <= 3; i++ {
				c.Begin()
				vec, source := c.Recv()
				assert.Same(t, c.Ports[0], source)
				received = append(received, vec)
			}
		})
		require.NoError(t, loop.Run())
		require.Equal(t, [][]float64{{1, 1}, {2, 2}, {3, 3}}, received)
		require.Equal(t, 3*simulator.VectorSize(2), sent)
	}
}

func TestCommsBcast(t *testing.T) {
	loop := simulator.NewEventLoop()
	nodes := simulator.NewNodes(4)
	sums := make([]float64, len(nodes))
	SpawnComms(loop, simulator.RandomNetwork{}, nodes, func(c *Comms) {
		assert.Equal(t, 4, c.Size())
		c.Begin()
		c.Bcast([]float64{float64(c.Index())})
		for i := 0; i < c.Size()-1; i++ {
			vec, source := c.Recv()
			assert.Equal(t, float64(c.IndexOf(source)), vec[0])
			sums[c.Index()] += vec[0]
		}
	})
	require.NoError(t, loop.Run())
	assert.Equal(t, []float64{6, 5, 4, 3}, sums)
}

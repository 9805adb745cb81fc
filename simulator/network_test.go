package simulator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSwitchedNetworkSingleMessage(t *testing.T) {
	loop := NewEventLoop()

	switcher := NewGreedyDropSwitcher(2, 2.0)
	nodes := NewNodes(2)
	port1, port2 := nodes[0].Port(loop), nodes[1].Port(loop)
	network := NewSwitcherNetwork(switcher, nodes, 3.0)

	loop.Go(func(h *Handle) {
		network.Send(h, &Message{
			Source:  port1,
			Dest:    port2,
			Message: "hi node 2",
			Size:    124.0,
		})
		assert.Equal(t, "hi node 1", port1.Recv(h).Message)
	})
	loop.Go(func(h *Handle) {
		network.Send(h, &Message{
			Source:  port2,
			Dest:    port1,
			Message: "hi node 1",
			Size:    124.0,
		})
		assert.Equal(t, "hi node 2", port2.Recv(h).Message)
	})

	require.NoError(t, loop.Run())

	expectedTime := 124.0/2.0 + 3.0
	assert.Equal(t, expectedTime, loop.Time())
}

func TestSwitchedNetworkOversubscribed(t *testing.T) {
	loop := NewEventLoop()

	dataRate := 4.0
	switcher := NewGreedyDropSwitcher(2, dataRate)
	nodes := NewNodes(2)
	port1, port2 := nodes[0].Port(loop), nodes[1].Port(loop)
	network := NewSwitcherNetwork(switcher, nodes, 2.0)

	loop.Go(func(h *Handle) {
		network.Send(h, &Message{
			Source:  port1,
			Dest:    port2,
			Message: "hi node 2 (message 1)",
			Size:    123.0,
		})
		network.Send(h, &Message{
			Source:  port1,
			Dest:    port2,
			Message: "hi node 2 (message 2)",
			Size:    124.0,
		})
		assert.Equal(t, "hi node 1", port1.Recv(h).Message)
		expectedTime := 1.0 + 2.0 + 124.0/dataRate
		assert.Equal(t, expectedTime, h.Time())
	})

	loop.Go(func(h *Handle) {
		// Make sure the other messages are in-flight.
		// This helps us test for the fact that we can
		// reschedule a message before the other messages.
		h.Sleep(1)

		network.Send(h, &Message{
			Source:  port2,
			Dest:    port1,
			Message: "hi node 1",
			Size:    124.0,
		})
		assert.Equal(t, "hi node 2 (message 1)", port2.Recv(h).Message)
		expectedTime := 2.0 + 2.0*123.0/dataRate
		assert.Equal(t, expectedTime, h.Time())
		assert.Equal(t, "hi node 2 (message 2)", port2.Recv(h).Message)
		expectedTime += 1.0 / dataRate
		assert.Equal(t, expectedTime, h.Time())
	})

	require.NoError(t, loop.Run())

	expectedTime := 2.0 + 2.0*123.0/dataRate + 1.0/dataRate
	assert.Equal(t, expectedTime, loop.Time())

	// Make sure that there are no stray messages.
	for _, port := range []*Port{port1, port2} {
		loop.Go(func(h *Handle) {
			h.Poll(port.Incoming)
		})
		assert.ErrorIs(t, loop.Run(), ErrDeadlock)
	}
}

func TestRandomNetworkDelivers(t *testing.T) {
	loop := NewEventLoop()
	nodes := NewNodes(3)
	ports := make([]*Port, len(nodes))
	for i, node := range nodes {
		ports[i] = node.Port(loop)
	}
	network := RandomNetwork{}

	received := make([]int, len(ports))
	for i := range ports {
		idx := i
		loop.Go(func(h *Handle) {
			var msgs []*Message
			for j, port := range ports {
				if j != idx {
					msgs = append(msgs, &Message{
						Source:  ports[idx],
						Dest:    port,
						Message: idx,
						Size:    VectorSize(1),
					})
				}
			}
			network.Send(h, msgs...)
			for j := 0; j < len(ports)-1; j++ {
				received[idx] += ports[idx].Recv(h).Message.(int)
			}
		})
	}

	require.NoError(t, loop.Run())
	for i, sum := range received {
		assert.Equal(t, 0+1+2-i, sum, "node %d", i)
	}
	assert.Less(t, loop.Time(), 1.0)
}

func TestRandomNetworkSeeded(t *testing.T) {
	run := func(seed int64) float64 {
		loop := NewSeededEventLoop(seed)
		nodes := NewNodes(2)
		src, dst := nodes[0].Port(loop), nodes[1].Port(loop)
		loop.Go(func(h *Handle) {
			for i := 0; i < 3; i++ {
				RandomNetwork{}.Send(h, &Message{Source: src, Dest: dst, Message: i})
			}
		})
		loop.Go(func(h *Handle) {
			for i := 0; i < 3; i++ {
				dst.Recv(h)
			}
		})
		require.NoError(t, loop.Run())
		return loop.Time()
	}
	assert.Equal(t, run(3), run(3))
}

func TestSwitchedNetworkStraggler(t *testing.T) {
	loop := NewEventLoop()

	// Node 2 downloads at a quarter of the rate of the
	// others.
	switcher, err := NewGreedyDropSwitcherRates([]float64{4, 4, 4}, []float64{4, 4, 1})
	require.NoError(t, err)
	nodes := NewNodes(3)
	ports := []*Port{nodes[0].Port(loop), nodes[1].Port(loop), nodes[2].Port(loop)}
	network := NewSwitcherNetwork(switcher, nodes, 0)

	arrivals := make([]float64, 3)
	loop.Go(func(h *Handle) {
		network.Send(h,
			&Message{Source: ports[0], Dest: ports[1], Message: 1, Size: 8},
			&Message{Source: ports[0], Dest: ports[2], Message: 2, Size: 8},
		)
	})
	for _, i := range []int{1, 2} {
		idx := i
		loop.Go(func(h *Handle) {
			ports[idx].Recv(h)
			arrivals[idx] = h.Time()
		})
	}
	require.NoError(t, loop.Run())

	// Node 0 splits its upload between two destinations
	// (2 each). Node 2 only accepts 1, so the fast message
	// arrives at 8/2 and the straggler at 8/1.
	assert.Equal(t, 4.0, arrivals[1])
	assert.Equal(t, 8.0, arrivals[2])
}

type sizedPayload float64

func (s sizedPayload) Size() float64 {
	return float64(s)
}

func TestSwitchedNetworkPayloadSize(t *testing.T) {
	loop := NewEventLoop()
	nodes := NewNodes(2)
	src, dst := nodes[0].Port(loop), nodes[1].Port(loop)
	network := NewSwitcherNetwork(NewGreedyDropSwitcher(2, 4.0), nodes, 1.0)

	assert.Equal(t, 12.0, (&Message{Message: sizedPayload(12)}).WireSize())
	assert.Equal(t, 3.0, (&Message{Message: sizedPayload(12), Size: 3}).WireSize())
	assert.Equal(t, 0.0, (&Message{Message: "x"}).WireSize())

	loop.Go(func(h *Handle) {
		network.Send(h, &Message{Source: src, Dest: dst, Message: sizedPayload(12)})
	})
	loop.Go(func(h *Handle) {
		dst.Recv(h)
	})
	require.NoError(t, loop.Run())
	assert.Equal(t, 1.0+12.0/4.0, loop.Time())
}

func TestSwitcherNetworkInvalid(t *testing.T) {
	nodes := NewNodes(2)
	assert.Panics(t, func() {
		NewSwitcherNetwork(NewGreedyDropSwitcher(3, 1), nodes, 0)
	})
	assert.Panics(t, func() {
		NewSwitcherNetwork(NewGreedyDropSwitcher(2, 1), []*Node{nodes[0], nodes[0]}, 0)
	})

	loop := NewEventLoop()
	network := NewSwitcherNetwork(NewGreedyDropSwitcher(2, 1), nodes, 0)
	stranger, dst := NewNode().Port(loop), nodes[1].Port(loop)
	loop.Go(func(h *Handle) {
		assert.Panics(t, func() {
			network.Send(h, &Message{Source: stranger, Dest: dst, Size: 1})
		})
	})
	require.NoError(t, loop.Run())
	assert.NotEqual(t, nodes[0].String(), nodes[1].String())
}

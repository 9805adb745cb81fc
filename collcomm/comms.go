package collcomm

import (
	"github.com/unixpickle/dist-linalg/simulator"
	"github.com/unixpickle/essentials"
	"k8s.io/klog/v2"
)

// Comms manages a set of connections between a bunch of
// nodes.
// During a collective operation, each node has a local
// Comms object that represents its view of the world.
//
// Every message is tagged with the sequence number of the
// collective that sent it, so one Comms object can be
// reused for any number of collectives as long as every
// node calls Begin() before each of them, in the same
// order.
type Comms struct {
	// Handle is the node's main Goroutine's handle on the
	// event loop.
	Handle *simulator.Handle

	// Port is the current node's port.
	Port *simulator.Port

	// Ports contains ports to all the nodes in the
	// network, including the current node.
	Ports []*simulator.Port

	// Network is the network connecting the nodes.
	Network simulator.Network

	seq       int
	stash     []*simulator.Message
	bytesSent float64
}

// envelope is the payload of every message sent through a
// Comms.
type envelope struct {
	seq     int
	payload interface{}
}

// SpawnComms creates Comms objects for every node in a
// network and calls f for each node in its own Goroutine.
func SpawnComms(loop *simulator.EventLoop, network simulator.Network, nodes []*simulator.Node,
	f func(c *Comms)) {
	ports := make([]*simulator.Port, len(nodes))
	for i, node := range nodes {
		ports[i] = node.Port(loop)
	}
	for i := range nodes {
		port := ports[i]
		loop.Go(func(h *simulator.Handle) {
			f(&Comms{
				Handle:  h,
				Port:    port,
				Ports:   ports,
				Network: network,
			})
		})
	}
}

// Size gets the number of nodes.
func (c *Comms) Size() int {
	return len(c.Ports)
}

// Begin starts the next collective operation.
//
// Messages from later collectives are held back until the
// matching Begin(), and messages that arrive after their
// collective has finished (e.g. trailing ACKs) are
// dropped.
func (c *Comms) Begin() {
	for i := 0; i < len(c.stash); i++ {
		if c.stash[i].Message.(*envelope).seq <= c.seq {
			essentials.OrderedDelete(&c.stash, i)
			i--
		}
	}
	c.seq++
}

// Seq returns the sequence number of the current
// collective, or 0 if Begin() was never called.
func (c *Comms) Seq() int {
	return c.seq
}

// BytesSent returns the total size of all messages sent
// from this node.
func (c *Comms) BytesSent() float64 {
	return c.bytesSent
}

// Bcast sends a vector to every other node.
func (c *Comms) Bcast(vec []float64) {
	messages := make([]*simulator.Message, 0, len(c.Ports)-1)
	for _, port := range c.Ports {
		if port == c.Port {
			continue
		}
		messages = append(messages, c.message(port, vec, simulator.VectorSize(len(vec))))
	}
	c.Network.Send(c.Handle, messages...)
}

// Send schedules a message to be sent to the destination.
func (c *Comms) Send(dst *simulator.Port, vec []float64) {
	c.SendPacket(dst, vec, simulator.VectorSize(len(vec)))
}

// SendPacket schedules an arbitrary payload of the given
// wire size to be sent to the destination.
func (c *Comms) SendPacket(dst *simulator.Port, payload interface{}, size float64) {
	c.Network.Send(c.Handle, c.message(dst, payload, size))
}

// Recv receives the next vector.
func (c *Comms) Recv() ([]float64, *simulator.Port) {
	payload, source := c.RecvPacket()
	return payload.([]float64), source
}

// RecvPacket receives the next payload sent during the
// current collective.
func (c *Comms) RecvPacket() (interface{}, *simulator.Port) {
	for i, msg := range c.stash {
		if msg.Message.(*envelope).seq == c.seq {
			essentials.OrderedDelete(&c.stash, i)
			return msg.Message.(*envelope).payload, msg.Source
		}
	}
	for {
		msg := c.Port.Recv(c.Handle)
		env := msg.Message.(*envelope)
		if env.seq == c.seq {
			return env.payload, msg.Source
		} else if env.seq < c.seq {
			klog.V(4).Infof("collcomm: node %d dropping message from collective %d during %d",
				c.Index(), env.seq, c.seq)
			continue
		}
		c.stash = append(c.stash, msg)
	}
}

// Index returns the current node's index in the list of
// nodes.
func (c *Comms) Index() int {
	return c.IndexOf(c.Port)
}

// IndexOf returns any node's index.
func (c *Comms) IndexOf(p *simulator.Port) int {
	for i, port := range c.Ports {
		if port == p {
			return i
		}
	}
	panic("unreachable")
}

func (c *Comms) message(dst *simulator.Port, payload interface{}, size float64) *simulator.Message {
	c.bytesSent += size
	return &simulator.Message{
		Source:  c.Port,
		Dest:    dst,
		Message: &envelope{seq: c.seq, payload: payload},
		Size:    size,
	}
}

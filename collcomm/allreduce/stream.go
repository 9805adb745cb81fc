package allreduce

import (
	"fmt"

	"github.com/unixpickle/dist-linalg/collcomm"
	"github.com/unixpickle/dist-linalg/simulator"
	"github.com/unixpickle/essentials"
)

// A StreamAllreducer splits a vector up into smaller
// messages and streams the messages around a ring of
// nodes.
//
// The reduction has two phases: Reduce and Broadcast.
// During Reduce, partially reduced chunks travel from
// node 0 through every other node and back to node 0,
// which then holds the reduced vector.
// During Broadcast, the reduced vector is streamed from
// node 0 through the ring.
//
// Every link keeps at most one unacknowledged chunk in
// flight, so a slow node throttles its upstream neighbor.
// A node returns only once all of its links are idle.
type StreamAllreducer struct {
	// Granularity determines how many chunks the data is
	// split up into.
	// The actual number of chunks is multiplied by the
	// number of nodes.
	//
	// If Granularity is 0, it is treated as 1.
	Granularity int
}

// Allreduce calls fn on chunks of data at a time and
// returns a vector resulting from the final reduction.
//
// Chunks are combined in ring order, so every process
// gets the same result.
func (s StreamAllreducer) Allreduce(c *collcomm.Comms, data []float64,
	fn collcomm.ReduceFn) []float64 {
	if len(data) == 0 || len(c.Ports) == 1 {
		return data
	}
	if c.Index() == 0 {
		return s.allreduceRoot(c, data)
	}
	return s.allreduceOther(c, data, fn)
}

func (s StreamAllreducer) allreduceRoot(c *collcomm.Comms, data []float64) []float64 {
	reduceLink := &ringLink{}
	for _, chunk := range s.chunkify(c, data) {
		reduceLink.push(c, &streamPacket{kind: streamPacketReduce, payload: chunk})
	}

	// Collect chunks as they come back around the ring.
	reduced := make([]float64, 0, len(data))
	for len(reduced) < len(data) {
		packet := recvStreamPacket(c)
		switch packet.kind {
		case streamPacketReduce:
			reduced = append(reduced, packet.payload...)
			(&streamPacket{kind: streamPacketReduceAck}).Send(c)
		case streamPacketReduceAck:
			reduceLink.ack(c)
		default:
			panic(fmt.Sprintf("stream allreduce: root got %s while reducing", packet.kind))
		}
	}
	if len(reduceLink.queue) > 0 {
		panic("stream allreduce: reduction completed before all chunks were sent")
	} else if len(reduced) != len(data) {
		panic("stream allreduce: excess data")
	}

	bcastLink := &ringLink{}
	for _, chunk := range s.chunkify(c, reduced) {
		bcastLink.push(c, &streamPacket{kind: streamPacketBcast, payload: chunk})
	}
	for !bcastLink.idle() || !reduceLink.idle() {
		packet := recvStreamPacket(c)
		switch packet.kind {
		case streamPacketReduceAck:
			reduceLink.ack(c)
		case streamPacketBcastAck:
			bcastLink.ack(c)
		default:
			panic(fmt.Sprintf("stream allreduce: root got %s while broadcasting", packet.kind))
		}
	}

	return reduced
}

func (s StreamAllreducer) allreduceOther(c *collcomm.Comms, data []float64,
	fn collcomm.ReduceFn) []float64 {
	// The last node's successor is the root, which
	// originates the broadcast.
	isLastNode := c.Index()+1 == len(c.Ports)

	var reduced []float64
	reduceLink := &ringLink{}
	bcastLink := &ringLink{}
	remaining := data

	// The network may reorder packets, so a broadcast chunk
	// can overtake the ACK for our last reduce chunk.
	// Every link must drain before the collective ends.
	for len(reduced) < len(data) || !reduceLink.idle() || !bcastLink.idle() {
		packet := recvStreamPacket(c)
		switch packet.kind {
		case streamPacketReduce:
			if reduced != nil {
				panic("stream allreduce: got reduce chunk after broadcast started")
			}
			(&streamPacket{kind: streamPacketReduceAck}).Send(c)
			chunk := fn(c.Handle, packet.payload, remaining[:len(packet.payload)])
			remaining = remaining[len(packet.payload):]
			reduceLink.push(c, &streamPacket{kind: streamPacketReduce, payload: chunk})
		case streamPacketReduceAck:
			reduceLink.ack(c)
		case streamPacketBcast:
			if len(reduceLink.queue) > 0 {
				panic("stream allreduce: got broadcast before reduce finished")
			}
			reduced = append(reduced, packet.payload...)
			(&streamPacket{kind: streamPacketBcastAck}).Send(c)
			if !isLastNode {
				bcastLink.push(c, &streamPacket{kind: streamPacketBcast, payload: packet.payload})
			}
		case streamPacketBcastAck:
			bcastLink.ack(c)
		default:
			panic(fmt.Sprintf("stream allreduce: unexpected %s", packet.kind))
		}
	}

	return reduced
}

func (s StreamAllreducer) chunkify(c *collcomm.Comms, data []float64) [][]float64 {
	granularity := s.Granularity
	if granularity == 0 {
		granularity = 1
	}
	chunkSize := len(data) / (len(c.Ports) * granularity)
	if chunkSize < 1 {
		chunkSize = 1
	}
	var res [][]float64
	for i := 0; i < len(data); i += chunkSize {
		if i+chunkSize > len(data) {
			res = append(res, data[i:])
		} else {
			res = append(res, data[i:i+chunkSize])
		}
	}
	return res
}

// A ringLink sends packets to a ring neighbor, keeping at
// most one unacknowledged packet in flight.
type ringLink struct {
	queue   []*streamPacket
	waiting bool
}

// push queues a packet and sends it if the link is free.
func (r *ringLink) push(c *collcomm.Comms, p *streamPacket) {
	r.queue = append(r.queue, p)
	r.flush(c)
}

// ack marks the in-flight packet as delivered and sends
// the next queued packet, if any.
func (r *ringLink) ack(c *collcomm.Comms) {
	if !r.waiting {
		panic("stream allreduce: unexpected ACK")
	}
	r.waiting = false
	r.flush(c)
}

func (r *ringLink) flush(c *collcomm.Comms) {
	if !r.waiting && len(r.queue) > 0 {
		r.queue[0].Send(c)
		essentials.OrderedDelete(&r.queue, 0)
		r.waiting = true
	}
}

func (r *ringLink) idle() bool {
	return !r.waiting && len(r.queue) == 0
}

type streamPacketKind int

const (
	streamPacketReduce streamPacketKind = iota
	streamPacketReduceAck
	streamPacketBcast
	streamPacketBcastAck
)

func (s streamPacketKind) String() string {
	switch s {
	case streamPacketReduce:
		return "reduce"
	case streamPacketReduceAck:
		return "reduce ACK"
	case streamPacketBcast:
		return "broadcast"
	case streamPacketBcastAck:
		return "broadcast ACK"
	}
	return fmt.Sprintf("streamPacketKind(%d)", int(s))
}

type streamPacket struct {
	kind    streamPacketKind
	payload []float64
}

func recvStreamPacket(c *collcomm.Comms) *streamPacket {
	payload, _ := c.RecvPacket()
	return payload.(*streamPacket)
}

// Size is the wire size of the packet: its payload plus a
// one-byte header.
func (s *streamPacket) Size() float64 {
	return simulator.VectorSize(len(s.payload)) + 1.0
}

// Send sends the packet to the appropriate host.
// ACKs go to the previous host and everything else goes
// to the next host.
func (s *streamPacket) Send(c *collcomm.Comms) {
	idx := c.Index()
	var dstIdx int
	if s.kind == streamPacketReduceAck || s.kind == streamPacketBcastAck {
		dstIdx = (idx + len(c.Ports) - 1) % len(c.Ports)
	} else {
		dstIdx = (idx + 1) % len(c.Ports)
	}
	c.SendPacket(c.Ports[dstIdx], s, s.Size())
}

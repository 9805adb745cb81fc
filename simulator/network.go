package simulator

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"
	"k8s.io/klog/v2"
)

var nodeCounter struct {
	sync.Mutex
	next int
}

// A Node represents a machine on a virtual network.
type Node struct {
	id int
}

// NewNode creates a new, unique Node.
func NewNode() *Node {
	nodeCounter.Lock()
	defer nodeCounter.Unlock()
	nodeCounter.next++
	return &Node{id: nodeCounter.next}
}

// NewNodes creates n unique Nodes.
func NewNodes(n int) []*Node {
	nodes := make([]*Node, n)
	for i := range nodes {
		nodes[i] = NewNode()
	}
	return nodes
}

func (n *Node) String() string {
	return fmt.Sprintf("node%d", n.id)
}

// Port creates a new Port connected to the Node.
func (n *Node) Port(loop *EventLoop) *Port {
	return &Port{Node: n, Incoming: loop.Stream()}
}

// A Port identifies a point of communication on a Node.
// Data is sent from Ports and received on Ports.
type Port struct {
	// The Node to which the Port is attached.
	Node *Node

	// A stream of *Message objects.
	Incoming *EventStream
}

// Recv receives the next message.
func (p *Port) Recv(h *Handle) *Message {
	return h.Poll(p.Incoming).Message.(*Message)
}

// A Sizer is a payload that knows its own wire size.
type Sizer interface {
	Size() float64
}

// A Message is a chunk of data sent between nodes over a
// network.
type Message struct {
	Source  *Port
	Dest    *Port
	Message interface{}

	// Size is the wire size in bytes.
	// If it is 0 and Message is a Sizer, the payload's
	// own size is used.
	Size float64
}

// WireSize is the number of bytes the message occupies
// on the network.
func (m *Message) WireSize() float64 {
	if m.Size == 0 {
		if s, ok := m.Message.(Sizer); ok {
			return s.Size()
		}
	}
	return m.Size
}

// VectorSize is the wire size, in bytes, of a vector of
// n float64 values.
func VectorSize(n int) float64 {
	return float64(n * 8)
}

// A Network represents an abstract way of communicating
// between nodes.
type Network interface {
	// Send message objects from one node to another.
	// The message will arrive on the receiving port's
	// incoming EventStream if the communication is
	// successful.
	//
	// This is a non-blocking operation.
	//
	// Passing many messages to one call lets the Network
	// plan their delivery together.
	Send(h *Handle, msgs ...*Message)
}

// A RandomNetwork is a network that assigns random delays
// to every message, drawn uniformly from [0, 1) using the
// sending Handle's random source.
//
// Messages between the same pair of ports may arrive out
// of order.
type RandomNetwork struct{}

// Send sends the messages with random delays.
func (r RandomNetwork) Send(h *Handle, msgs ...*Message) {
	for _, msg := range msgs {
		h.Schedule(msg.Dest.Incoming, msg, h.Float64())
	}
}

// A SwitcherNetwork is a network where data is passed
// through a Switcher. Concurrent transfers share NIC
// bandwidth, so each new message may slow down the ones
// already in flight.
type SwitcherNetwork struct {
	lock sync.Mutex

	switcher Switcher
	indices  map[*Node]int
	latency  float64

	schedule deliverySchedule
}

// NewSwitcherNetwork creates a new SwitcherNetwork.
//
// The latency argument adds an extra constant-length
// timeout to every message delivery.
// A message occupies its share of bandwidth during its
// latency period too, so latency-heavy traffic counts
// against oversubscription.
//
// The nodes must be distinct and match the switcher's
// node count.
func NewSwitcherNetwork(switcher Switcher, nodes []*Node, latency float64) *SwitcherNetwork {
	if switcher.NumNodes() != len(nodes) {
		panic(fmt.Sprintf("switcher has %d nodes but network has %d", switcher.NumNodes(),
			len(nodes)))
	}
	indices := make(map[*Node]int, len(nodes))
	for i, node := range nodes {
		if _, ok := indices[node]; ok {
			panic(fmt.Sprintf("duplicate node %s in network", node))
		}
		indices[node] = i
	}
	return &SwitcherNetwork{
		switcher: switcher,
		indices:  indices,
		latency:  latency,
	}
}

// Send sends the messages over the network and replans
// every transfer still in flight.
func (s *SwitcherNetwork) Send(h *Handle, msgs ...*Message) {
	s.lock.Lock()
	defer s.lock.Unlock()

	inFlight := s.schedule.cancel(h)
	for _, msg := range msgs {
		inFlight = append(inFlight, &transfer{
			msg:       msg,
			src:       s.index(msg.Source),
			dst:       s.index(msg.Dest),
			latency:   s.latency,
			remaining: msg.WireSize(),
		})
	}
	s.schedule = s.plan(h, inFlight)
	if klog.V(5).Enabled() && len(s.schedule) > 0 {
		klog.Infof("switcher network: t=%f: %d transfers (%d new) delivered by t=%f",
			h.Time(), len(inFlight), len(msgs), s.schedule[len(s.schedule)-1].end)
	}
}

func (s *SwitcherNetwork) index(p *Port) int {
	idx, ok := s.indices[p.Node]
	if !ok {
		panic(fmt.Sprintf("port on %s is not part of the network", p.Node))
	}
	return idx
}

// assignRates splits each connection's switched rate
// evenly between the transfers sharing it.
//
// The latency period is treated as if it used the
// sender's and receiver's NICs, which slightly
// overestimates congestion at the receiver.
func (s *SwitcherNetwork) assignRates(transfers []*transfer) {
	n := s.switcher.NumNodes()
	rates := NewConnMat(n)
	counts := NewConnMat(n)
	for _, t := range transfers {
		rates.Set(t.src, t.dst, 1)
		counts.Set(t.src, t.dst, counts.Get(t.src, t.dst)+1)
	}
	s.switcher.SwitchedRates(rates)
	for _, t := range transfers {
		t.rate = rates.Get(t.src, t.dst) / counts.Get(t.src, t.dst)
	}
}

// plan schedules delivery timers for every transfer.
//
// Rates only change when a transfer completes, so the
// schedule is a sequence of segments, each ending when
// the next batch of transfers arrives.
func (s *SwitcherNetwork) plan(h *Handle, transfers []*transfer) deliverySchedule {
	var res deliverySchedule
	start := h.Time()
	for len(transfers) > 0 {
		s.assignRates(transfers)

		done, rest, eta := earliestTransfers(transfers)
		timers := make([]*Timer, len(done))
		for i, t := range done {
			timers[i] = h.Schedule(t.msg.Dest.Incoming, t.msg, start-h.Time()+eta)
		}

		end := timers[0].Time()
		res = append(res, &deliverySegment{
			start:     start,
			end:       end,
			timers:    timers,
			transfers: transfers,
		})

		for i, t := range rest {
			rest[i] = t.advance(end - start)
		}
		transfers = rest
		start = end
	}
	return res
}

// A transfer is the state of a message on its way
// through a SwitcherNetwork.
type transfer struct {
	msg      *Message
	src, dst int

	latency   float64
	remaining float64
	rate      float64
}

// eta is the time until the transfer completes at its
// current rate.
func (t *transfer) eta() float64 {
	return math.Max(0, t.latency+t.remaining/t.rate)
}

// advance returns the transfer's state after dt units of
// time at its current rate.
func (t *transfer) advance(dt float64) *transfer {
	res := *t
	if dt < res.latency {
		res.latency -= dt
		return &res
	}
	dt -= res.latency
	res.latency = 0
	res.remaining -= res.rate * dt
	return &res
}

// A deliverySegment is a period during which transfer
// rates are constant. It ends with at least one delivery.
type deliverySegment struct {
	start, end float64
	timers     []*Timer

	// The transfers in flight at the start of the segment.
	transfers []*transfer
}

// A deliverySchedule is the sequence of segments that
// delivers every message currently on the network.
type deliverySchedule []*deliverySegment

// cancel stops every pending delivery and returns the
// transfers that were still in flight at the current
// time.
func (d deliverySchedule) cancel(h *Handle) []*transfer {
	var inFlight []*transfer
	now := h.Time()
	for _, seg := range d {
		if now >= seg.end {
			// Deliveries may already have fired.
			continue
		}
		if now >= seg.start {
			for _, t := range seg.transfers {
				inFlight = append(inFlight, t.advance(now-seg.start))
			}
		}
		for _, timer := range seg.timers {
			h.Cancel(timer)
		}
	}
	return inFlight
}

// earliestTransfers splits transfers into the ones that
// complete first and the rest.
func earliestTransfers(transfers []*transfer) (done, rest []*transfer, eta float64) {
	etas := make([]float64, len(transfers))
	for i, t := range transfers {
		etas[i] = t.eta()
	}
	eta = floats.Min(etas)
	for i, t := range transfers {
		if etas[i] == eta {
			done = append(done, t)
		} else {
			rest = append(rest, t)
		}
	}
	return done, rest, eta
}

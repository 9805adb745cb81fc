package simulator

import (
	"container/heap"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/pkg/errors"
	"github.com/unixpickle/essentials"
	"k8s.io/klog/v2"
)

// ErrDeadlock is returned by EventLoop.Run when every
// Goroutine is polling and no timers remain.
//
// For collective operations this usually means that some
// process never reached a collective its peers entered.
var ErrDeadlock = errors.New("deadlock: all Handles are polling")

// An EventStream is a uni-directional channel of events
// that are passed through an EventLoop.
//
// It is only safe to use an EventStream on one EventLoop
// at once.
type EventStream struct {
	loop    *EventLoop
	pending []interface{}
}

// An Event is a message received on some EventStream.
type Event struct {
	Message interface{}
	Stream  *EventStream
}

// A Timer is a single send that will happen in the
// (virtual) future.
type Timer struct {
	time  float64
	event *Event

	tiebreak float64
	index    int
}

// Time gets the time when the timer will be fired.
//
// If the virtual time is lower than a timer's Time(),
// then it is guaranteed that the timer has not fired.
func (t *Timer) Time() float64 {
	return t.time
}

// A Handle is a Goroutine's mechanism for accessing an
// EventLoop. Goroutines should not share Handles.
type Handle struct {
	*EventLoop

	rng *rand.Rand

	// Empty when the Goroutine is not polling.
	pollStreams []*EventStream
	pollChan    chan<- *Event
}

// Poll waits for the next event from a set of streams.
//
// Streams with buffered events are checked in the order
// they are passed.
func (h *Handle) Poll(streams ...*EventStream) *Event {
	ch := make(chan *Event, 1)
	h.modifyHandles(func() {
		if h.pollStreams != nil {
			panic("Handle is shared between Goroutines")
		}
		for _, stream := range streams {
			if len(stream.pending) > 0 {
				msg := stream.pending[0]
				essentials.OrderedDelete(&stream.pending, 0)
				ch <- &Event{Message: msg, Stream: stream}
				return
			}
		}
		h.pollStreams = streams
		h.pollChan = ch
	})
	return <-ch
}

// Schedule creates a Timer for delivering an event after
// delay units of virtual time.
func (h *Handle) Schedule(stream *EventStream, msg interface{}, delay float64) *Timer {
	if stream.loop != h.EventLoop {
		panic("EventStream is not associated with the correct EventLoop")
	}
	var timer *Timer
	h.modify(func() {
		timer = &Timer{
			time:     h.time + delay,
			event:    &Event{Message: msg, Stream: stream},
			tiebreak: h.rng.Float64(),
		}
		if math.IsInf(timer.time, 0) || math.IsNaN(timer.time) {
			panic(fmt.Sprintf("invalid deadline: %f", timer.time))
		}
		heap.Push(&h.timers, timer)
	})
	return timer
}

// Cancel stops a timer if the timer is scheduled.
//
// If the timer already fired or was canceled, this has no
// effect.
func (h *Handle) Cancel(t *Timer) {
	h.modify(func() {
		h.timers.remove(t)
	})
}

// Sleep waits for a certain amount of virtual time to
// elapse.
func (h *Handle) Sleep(delay float64) {
	stream := h.Stream()
	h.Schedule(stream, nil, delay)
	h.Poll(stream)
}

// Float64 draws a number in [0, 1) from the Handle's
// random source, which is derived from the loop's source
// when the Handle is created.
func (h *Handle) Float64() float64 {
	return h.rng.Float64()
}

// An EventLoop is a global scheduler for events in a
// simulated distributed system.
//
// All Goroutines which access an EventLoop should be
// started using the EventLoop.Go() method.
//
// The event loop only advances when all active Goroutines
// are polling for an event, so simulated machines don't
// have to worry about real timing while computing.
//
// Simultaneous timers fire in a random order, and an
// event on a stream with several pollers goes to a random
// poller.
// Both choices come from the loop's random source.
type EventLoop struct {
	lock    sync.Mutex
	timers  timerQueue
	handles []*Handle
	rng     *rand.Rand

	time      float64
	delivered int

	running  bool
	notifyCh chan struct{}
}

// NewEventLoop creates an event loop with a randomly
// seeded random source.
//
// The event loop's clock starts at 0.
func NewEventLoop() *EventLoop {
	return NewSeededEventLoop(rand.Int63())
}

// NewSeededEventLoop creates an event loop whose random
// source is seeded with seed.
//
// Handles created by Go() are seeded from this source in
// the order they are created.
func NewSeededEventLoop(seed int64) *EventLoop {
	return &EventLoop{
		rng:      rand.New(rand.NewSource(seed)),
		notifyCh: make(chan struct{}, 1),
	}
}

// Stream creates a new EventStream.
func (e *EventLoop) Stream() *EventStream {
	return &EventStream{loop: e}
}

// Go runs a function in a Goroutine and passes it a new
// handle to the EventLoop.
func (e *EventLoop) Go(f func(h *Handle)) {
	e.lock.Lock()
	h := &Handle{EventLoop: e, rng: rand.New(rand.NewSource(e.rng.Int63()))}
	e.handles = append(e.handles, h)
	e.lock.Unlock()
	go func() {
		f(h)
		e.modifyHandles(func() {
			for i, handle := range e.handles {
				if handle == h {
					essentials.UnorderedDelete(&e.handles, i)
					return
				}
			}
			panic("cannot free handle that does not exist")
		})
	}()
}

// Run runs the loop and blocks until all handles have
// been closed.
//
// It is not safe to run the loop from more than one
// Goroutine at once.
//
// If every handle is polling and no timers remain, Run
// returns an error wrapping ErrDeadlock.
func (e *EventLoop) Run() error {
	e.lock.Lock()
	if e.running {
		e.lock.Unlock()
		panic("EventLoop is already running.")
	}
	e.running = true
	e.lock.Unlock()

	defer func() {
		e.lock.Lock()
		e.running = false
		e.lock.Unlock()
	}()

	for range e.notifyCh {
		if shouldContinue, err := e.step(); !shouldContinue {
			return err
		}
	}

	panic("unreachable")
}

// MustRun is like Run, but it panics if there is a
// deadlock.
func (e *EventLoop) MustRun() {
	if err := e.Run(); err != nil {
		panic(err)
	}
}

// Time gets the current virtual time.
func (e *EventLoop) Time() float64 {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.time
}

// Delivered gets the number of events that have been
// handed to polling Goroutines or buffered on streams.
func (e *EventLoop) Delivered() int {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.delivered
}

// modify calls f while holding the loop lock.
//
// f must not change whether any handle is polling.
// If it might, use modifyHandles.
func (e *EventLoop) modify(f func()) {
	e.lock.Lock()
	defer e.lock.Unlock()
	f()
}

// modifyHandles is like modify(), but it wakes the loop
// afterwards since f may change the polling state.
func (e *EventLoop) modifyHandles(f func()) {
	e.lock.Lock()
	defer func() {
		e.lock.Unlock()
		select {
		case e.notifyCh <- struct{}{}:
		default:
		}
	}()
	f()
}

// step fires timers until one of them wakes a Goroutine.
//
// The first return value is false once the loop can no
// longer run, either because every handle finished or
// because of a deadlock (reported in the error).
func (e *EventLoop) step() (bool, error) {
	e.lock.Lock()
	defer e.lock.Unlock()

	if len(e.handles) == 0 {
		return false, nil
	}

	for _, h := range e.handles {
		if len(h.pollStreams) == 0 {
			// A Goroutine is doing work in real time.
			return true, nil
		}
	}

	for e.timers.Len() > 0 {
		timer := heap.Pop(&e.timers).(*Timer)
		e.time = math.Max(e.time, timer.time)
		e.delivered++
		if e.deliver(timer.event) {
			return true, nil
		}
	}

	klog.V(2).Infof("simulator: deadlock at t=%f with %d polling handles", e.time, len(e.handles))
	return false, errors.WithStack(ErrDeadlock)
}

// deliver hands event to a random Goroutine polling on
// its stream, or buffers it on the stream.
//
// It reports whether a Goroutine was woken up.
func (e *EventLoop) deliver(event *Event) bool {
	for _, i := range e.rng.Perm(len(e.handles)) {
		h := e.handles[i]
		for _, stream := range h.pollStreams {
			if stream == event.Stream {
				h.pollChan <- event
				h.pollChan = nil
				h.pollStreams = nil
				return true
			}
		}
	}
	event.Stream.pending = append(event.Stream.pending, event.Message)
	return false
}

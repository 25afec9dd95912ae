package network

import (
	"sync"

	"github.com/google/uuid"
)

// EventKind names an interaction with the network.
type EventKind string

// Interactions applied at tick boundaries.
const (
	// Overlap reports that a scene object entered a socket's trigger volume.
	Overlap EventKind = "overlap"
	// Unplug releases whatever a socket holds.
	Unplug EventKind = "unplug"
	// Toggle flips a device's active state.
	Toggle EventKind = "toggle"
	// SetActive sets a device's active state.
	SetActive EventKind = "setActive"
)

// Event is a queued interaction. Target is the socket for Overlap and Unplug and the device
// for Toggle and SetActive.
type Event struct {
	Kind   EventKind `json:"Kind"`
	Target uuid.UUID `json:"Target"`
	Object uuid.UUID `json:"Object"`
	Active bool      `json:"Active"`
}

// Applied is published on the Event topic once an event has been applied.
type Applied struct {
	Event    Event `json:"Event"`
	Accepted bool  `json:"Accepted"`
}

type queue struct {
	mux    *sync.Mutex
	events []Event
}

func newQueue() *queue {
	return &queue{mux: &sync.Mutex{}}
}

func (q *queue) push(e Event) {
	q.mux.Lock()
	defer q.mux.Unlock()
	q.events = append(q.events, e)
}

func (q *queue) drain() []Event {
	q.mux.Lock()
	defer q.mux.Unlock()
	out := q.events
	q.events = nil
	return out
}

func (q *queue) len() int {
	q.mux.Lock()
	defer q.mux.Unlock()
	return len(q.events)
}

// Enqueue schedules e for the next tick. Safe from any goroutine, including device handlers
// running inside Tick.
func (n *Network) Enqueue(e Event) {
	n.events.push(e)
}

// Pending is the number of events waiting for the next tick.
func (n *Network) Pending() int {
	return n.events.len()
}

// Overlap reports object entering the trigger volume of socket.
func (n *Network) Overlap(socket, object uuid.UUID) {
	n.Enqueue(Event{Kind: Overlap, Target: socket, Object: object})
}

// Unplug asks socket to release its plug.
func (n *Network) Unplug(socket uuid.UUID) {
	n.Enqueue(Event{Kind: Unplug, Target: socket})
}

// Toggle flips device.
func (n *Network) Toggle(device uuid.UUID) {
	n.Enqueue(Event{Kind: Toggle, Target: device})
}

// SetActive switches device on or off.
func (n *Network) SetActive(device uuid.UUID, active bool) {
	n.Enqueue(Event{Kind: SetActive, Target: device, Active: active})
}

// apply runs with the network lock held.
func (n *Network) apply(e Event) bool {
	switch e.Kind {
	case Overlap:
		s, ok := n.t.sockets[e.Target]
		if !ok {
			return false
		}
		return s.Attach(e.Object)
	case Unplug:
		s, ok := n.t.sockets[e.Target]
		if !ok || !s.IsPluggedIn() {
			return false
		}
		return s.Detach()
	case Toggle:
		d, ok := n.t.devices[e.Target]
		if !ok {
			return false
		}
		d.Toggle()
		return true
	case SetActive:
		d, ok := n.t.devices[e.Target]
		if !ok {
			return false
		}
		d.SetActive(e.Active)
		return true
	}
	n.log.WithField("event", e.Kind).Warn("unknown event kind")
	return false
}

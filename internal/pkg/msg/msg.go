package msg

import (
	"sync"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
)

// Topic classifies the payload carried by a Msg
type Topic int

const (
	// Status carries per-tick entity status snapshots.
	Status Topic = iota
	// Config carries static entity configuration.
	Config
	// Event carries discrete topology and power-state changes.
	Event
)

func (t Topic) String() string {
	switch t {
	case Status:
		return "status"
	case Config:
		return "config"
	case Event:
		return "event"
	}
	return "unknown"
}

// Publisher is an interface for objects that allow subscribtion to their events
type Publisher interface {
	Subscribe(uuid.UUID, Topic) (<-chan Msg, error)
	Unsubscribe(uuid.UUID)
}

// Msg is the unit of communication between the network and its observers.
type Msg struct {
	sender  uuid.UUID
	topic   Topic
	payload interface{}
}

// New is the Msg factory function
func New(sender uuid.UUID, topic Topic, payload interface{}) Msg {
	return Msg{sender, topic, payload}
}

// PID returns the sender's PID
func (v Msg) PID() uuid.UUID {
	return v.sender
}

// Topic returns the message topic
func (v Msg) Topic() Topic {
	return v.topic
}

// Payload returns the message data
func (v Msg) Payload() interface{} {
	return v.payload
}

// DefaultBuffer is the channel depth handed to each subscriber.
const DefaultBuffer = 64

// PubSub fans published messages out to subscribers by topic.
// Publishing never blocks: a subscriber whose buffer is full misses the message.
type PubSub struct {
	mux         *sync.Mutex
	pid         uuid.UUID
	subscribers map[Topic]map[uuid.UUID]chan Msg
}

// NewPublisher returns a PubSub that stamps messages with pid.
func NewPublisher(pid uuid.UUID) *PubSub {
	return &PubSub{
		mux:         &sync.Mutex{},
		pid:         pid,
		subscribers: make(map[Topic]map[uuid.UUID]chan Msg),
	}
}

// PID of the publisher
func (p *PubSub) PID() uuid.UUID {
	return p.pid
}

// Subscribe returns a read only channel on which topic is broadcast.
func (p *PubSub) Subscribe(pid uuid.UUID, topic Topic) (<-chan Msg, error) {
	p.mux.Lock()
	defer p.mux.Unlock()
	subs, ok := p.subscribers[topic]
	if !ok {
		subs = make(map[uuid.UUID]chan Msg)
		p.subscribers[topic] = subs
	}
	if _, exists := subs[pid]; exists {
		return nil, pkgerrors.Errorf("%v already subscribed to %v", pid, topic)
	}
	ch := make(chan Msg, DefaultBuffer)
	subs[pid] = ch
	return ch, nil
}

// Unsubscribe removes pid from every topic and closes its channels.
func (p *PubSub) Unsubscribe(pid uuid.UUID) {
	p.mux.Lock()
	defer p.mux.Unlock()
	for _, subs := range p.subscribers {
		if ch, ok := subs[pid]; ok {
			delete(subs, pid)
			close(ch)
		}
	}
}

// Publish broadcasts payload on topic with the publisher as sender.
func (p *PubSub) Publish(topic Topic, payload interface{}) {
	p.Forward(New(p.pid, topic, payload))
}

// Forward broadcasts an existing message, preserving its sender.
func (p *PubSub) Forward(m Msg) {
	p.mux.Lock()
	defer p.mux.Unlock()
	for _, ch := range p.subscribers[m.Topic()] {
		select {
		case ch <- m:
		default:
		}
	}
}

// Close unsubscribes everyone.
func (p *PubSub) Close() {
	p.mux.Lock()
	defer p.mux.Unlock()
	for topic, subs := range p.subscribers {
		for pid, ch := range subs {
			delete(subs, pid)
			close(ch)
		}
		delete(p.subscribers, topic)
	}
}

// Inbox subscribes pid to each topic of p and merges the subscriptions into one channel.
// The inbox closes once every subscription has been closed by the publisher.
func Inbox(p Publisher, pid uuid.UUID, topics ...Topic) (<-chan Msg, error) {
	inbox := make(chan Msg, DefaultBuffer)
	wg := &sync.WaitGroup{}
	for _, topic := range topics {
		ch, err := p.Subscribe(pid, topic)
		if err != nil {
			p.Unsubscribe(pid)
			return nil, err
		}
		wg.Add(1)
		go func(ch <-chan Msg) {
			defer wg.Done()
			for m := range ch {
				inbox <- m
			}
		}(ch)
	}
	go func() {
		wg.Wait()
		close(inbox)
	}()
	return inbox, nil
}

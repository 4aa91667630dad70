// Package broker fans graph changes out to topic subscribers.
package broker

import (
	"sync"
	"sync/atomic"

	"github.com/alextanhongpin/friendlist/domain"
)

// AllTopic receives every change.
const AllTopic = "*"

const subscriberBuffer = 64

type Engine interface {
	Subscribe(topic string) Subscriber
	Unsubscribe(topic string, ch Subscriber)
	Publish(topic string, msg domain.Change)
	HasTopic(topic string) bool
}

type Subscriber chan domain.Change

type Topic map[Subscriber]struct{}

var _ Engine = (*Broker)(nil)
var _ domain.ChangeObserver = (*Broker)(nil)

type Broker struct {
	rw sync.RWMutex

	// topics holds a map of topic name to Topic. A topic is a user id or
	// AllTopic.
	topics map[string]Topic

	dropped atomic.Int64
}

func New() *Broker {
	return &Broker{
		topics: make(map[string]Topic),
	}
}

func (b *Broker) HasTopic(name string) bool {
	b.rw.RLock()
	_, exists := b.topics[name]
	b.rw.RUnlock()
	return exists
}

func (b *Broker) Subscribe(topic string) Subscriber {
	ch := make(Subscriber, subscriberBuffer)

	b.rw.Lock()
	if _, ok := b.topics[topic]; !ok {
		b.topics[topic] = make(Topic)
	}
	b.topics[topic][ch] = struct{}{}
	b.rw.Unlock()

	return ch
}

// Unsubscribe removes and closes ch. Calling it twice is safe.
func (b *Broker) Unsubscribe(topic string, ch Subscriber) {
	b.rw.Lock()
	defer b.rw.Unlock()

	subscribers, ok := b.topics[topic]
	if !ok {
		return
	}
	if _, ok := subscribers[ch]; !ok {
		return
	}

	delete(subscribers, ch)
	close(ch)
	if len(subscribers) == 0 {
		delete(b.topics, topic)
	}
}

// Publish never blocks: a subscriber whose buffer is full misses msg.
func (b *Broker) Publish(topic string, msg domain.Change) {
	b.rw.RLock()
	defer b.rw.RUnlock()

	for subscriber := range b.topics[topic] {
		select {
		case subscriber <- msg:
		default:
			b.dropped.Add(1)
		}
	}
}

// Observe publishes each change to both users' topics and to AllTopic.
func (b *Broker) Observe(changes []domain.Change) {
	for _, c := range changes {
		b.Publish(AllTopic, c)
		b.Publish(c.User, c)
		if c.Friend != c.User {
			b.Publish(c.Friend, c)
		}
	}
}

// Dropped reports how many messages were discarded for slow subscribers.
func (b *Broker) Dropped() int64 {
	return b.dropped.Load()
}

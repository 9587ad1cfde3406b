// Package events carries the Tree/Tangle/Canopy event stream: Stashed,
// Tossed, Shaken, Squabble and Fault notifications, delivered on a buffered
// channel per subscriber that the Broker closes on Unsubscribe or Stop.
package events

import (
	"sync"
	"time"
)

// Kind identifies the category of an Event.
type Kind string

const (
	KindStashed  Kind = "stashed"
	KindTossed   Kind = "tossed"
	KindShaken   Kind = "shaken"
	KindSquabble Kind = "squabble"
	KindFault    Kind = "fault"
)

// Event is the payload delivered to subscribers. Fields not relevant to Kind
// are left zero; Tree-level events set ID/Version, Fault events set
// Component/Message instead.
type Event struct {
	Kind      Kind
	Timestamp time.Time
	Tree      string // payload type name the event belongs to, if any
	ID        string
	Version   uint64
	Component string
	Message   string
}

// Subscriber is a bounded channel of Events. A slow subscriber drops events
// rather than blocking publishers — Subscribe documents the buffer size.
type Subscriber chan Event

// Broker fans a single publish out to all current subscribers. It is safe
// for concurrent use; Publish never blocks on a full subscriber.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]struct{}
	eventCh     chan Event
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewBroker constructs a Broker with its internal dispatch queue started.
func NewBroker() *Broker {
	b := &Broker{
		subscribers: make(map[Subscriber]struct{}),
		eventCh:     make(chan Event, 256),
		stopCh:      make(chan struct{}),
	}
	go b.run()
	return b
}

// Stop halts dispatch and closes every subscriber channel, making Subscribe's
// stream lazy-finite: a ranging consumer sees its channel close and returns.
func (b *Broker) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopCh)
		b.mu.Lock()
		defer b.mu.Unlock()
		for sub := range b.subscribers {
			close(sub)
		}
		b.subscribers = nil
	})
}

// Subscribe returns a new Subscriber channel with a 64-event buffer.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := make(Subscriber, 64)
	if b.subscribers != nil {
		b.subscribers[sub] = struct{}{}
	} else {
		close(sub)
	}
	return sub
}

// Unsubscribe removes and closes a Subscriber. Safe to call more than once.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subscribers == nil {
		return
	}
	if _, ok := b.subscribers[sub]; ok {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// Publish enqueues an event for dispatch, stamping Timestamp if unset.
func (b *Broker) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	select {
	case b.eventCh <- ev:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case ev := <-b.eventCh:
			b.broadcast(ev)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subscribers {
		select {
		case sub <- ev:
		default:
			// subscriber buffer full; drop rather than block publishers
		}
	}
}

// SubscriberCount reports the number of live subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

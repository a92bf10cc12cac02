package events

import (
	"context"
	"sync"

	"github.com/keenon/AddBiomechanics-sub000/internal/metrics"
)

const subscriberBuffer = 64

type subscriber struct {
	pattern string
	ch      chan Message
}

// Broadcaster is an in-process Bus. Each subscriber gets a buffered channel
// drained by its own goroutine, so handlers never run on the publisher's
// stack. Publish is non-blocking: events are dropped for slow consumers.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
}

var _ Bus = (*Broadcaster)(nil)

// NewBroadcaster creates a new event broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[*subscriber]struct{}),
	}
}

// Subscribe adds a handler for topics matching pattern.
func (b *Broadcaster) Subscribe(pattern string, h Handler) (func(), error) {
	sub, ch := b.subscribe(pattern)
	go func() {
		for msg := range ch {
			h(msg)
		}
	}()
	return func() { b.unsubscribe(sub) }, nil
}

// Channel returns a raw subscription channel for pattern. The relay uses it
// to stream messages to SSE clients. The caller must call the returned
// cancel function when done.
func (b *Broadcaster) Channel(pattern string) (<-chan Message, func()) {
	sub, ch := b.subscribe(pattern)
	return ch, func() { b.unsubscribe(sub) }
}

func (b *Broadcaster) subscribe(pattern string) (*subscriber, chan Message) {
	sub := &subscriber{pattern: pattern, ch: make(chan Message, subscriberBuffer)}
	b.mu.Lock()
	b.subscribers[sub] = struct{}{}
	b.mu.Unlock()
	return sub, sub.ch
}

func (b *Broadcaster) unsubscribe(sub *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[sub]; !ok {
		return
	}
	delete(b.subscribers, sub)
	close(sub.ch)
}

// Publish sends msg to every matching subscriber.
func (b *Broadcaster) Publish(_ context.Context, msg Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	metrics.RecordBusMessage("published")
	for sub := range b.subscribers {
		if !Match(sub.pattern, msg.Topic) {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			metrics.RecordBusMessage("dropped")
		}
	}
	return nil
}

// Count returns the current number of subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Package pubsub fans typed notifications out to any number of subscribers.
package pubsub

import (
	"context"
	"sync"
)

const defaultBufferSize = 64

// EventType names what happened.
type EventType string

// Event is one published notification.
// Seq increases by one per Publish on a broker. A subscriber that sees a jump
// missed events because its buffer was full and should re-read current state.
type Event[T any] struct {
	Type    EventType
	Payload T
	Seq     uint64
}

// Gap reports whether next does not directly follow prev. A zero prev means the
// subscriber has not seen anything yet, which is never a gap.
func Gap[T any](prev uint64, next Event[T]) bool {
	return prev != 0 && next.Seq != prev+1
}

type subscription[T any] struct {
	ch     chan Event[T]
	closed bool
}

// Broker delivers published events to every live subscription.
// Publish never blocks: a subscriber whose buffer is full misses the event.
type Broker[T any] struct {
	mu         sync.Mutex
	subs       map[*subscription[T]]struct{}
	seq        uint64
	shut       bool
	bufferSize int
}

// NewBroker creates a broker with the default per-subscriber buffer.
func NewBroker[T any]() *Broker[T] {
	return NewBrokerWithBuffer[T](defaultBufferSize)
}

// NewBrokerWithBuffer creates a broker with a custom per-subscriber buffer.
func NewBrokerWithBuffer[T any](size int) *Broker[T] {
	if size <= 0 {
		size = defaultBufferSize
	}
	return &Broker[T]{
		subs:       make(map[*subscription[T]]struct{}),
		bufferSize: size,
	}
}

// Subscribe returns a channel that receives events until ctx is cancelled
// or the broker is closed; the channel is closed in both cases.
func (b *Broker[T]) Subscribe(ctx context.Context) <-chan Event[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.shut {
		ch := make(chan Event[T])
		close(ch)
		return ch
	}

	sub := &subscription[T]{ch: make(chan Event[T], b.bufferSize)}
	b.subs[sub] = struct{}{}

	if done := ctx.Done(); done != nil {
		context.AfterFunc(ctx, func() { b.drop(sub) })
	}
	return sub.ch
}

func (b *Broker[T]) drop(sub *subscription[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeLocked(sub)
}

func (b *Broker[T]) closeLocked(sub *subscription[T]) {
	if sub.closed {
		return
	}
	sub.closed = true
	delete(b.subs, sub)
	close(sub.ch)
}

// Publish stamps the next sequence number and offers the event to every subscriber.
// The sequence advances even when nobody receives it.
func (b *Broker[T]) Publish(eventType EventType, payload T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.shut {
		return
	}

	b.seq++
	event := Event[T]{Type: eventType, Payload: payload, Seq: b.seq}
	for sub := range b.subs {
		select {
		case sub.ch <- event:
		default:
		}
	}
}

// Close shuts the broker down and closes every subscription. Idempotent.
func (b *Broker[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.shut {
		return
	}
	b.shut = true
	for sub := range b.subs {
		b.closeLocked(sub)
	}
}

// SubscriberCount returns the number of live subscriptions.
func (b *Broker[T]) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

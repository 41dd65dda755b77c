// Package bus provides typed in-process publish/subscribe topics.
//
// Each topic carries exactly one payload type. Subscribers receive events on
// a bounded ring channel, so a subscriber that stops draining loses its
// oldest events but never blocks the publisher.
package bus

import "sync"

// DefaultSubscriberBuffer is the per-subscriber ring capacity used when a
// subscriber does not ask for a specific one.
const DefaultSubscriberBuffer = 64

// Topic is a typed fan-out topic. The zero value is not usable; construct
// with NewTopic.
type Topic[T any] struct {
	mu     sync.Mutex
	subs   map[uint64]*Subscription[T]
	nextID uint64
}

// Subscription is one subscriber's attachment to a Topic.
type Subscription[T any] struct {
	ring   *RingChannel[T]
	cancel func()
	once   sync.Once
}

// C returns the channel events are delivered on. It is closed on Cancel.
func (s *Subscription[T]) C() <-chan T {
	return s.ring.C()
}

// Cancel detaches the subscription and closes its channel. Safe to call
// more than once.
func (s *Subscription[T]) Cancel() {
	s.once.Do(s.cancel)
}

// Replay delivers v to this subscriber only, bypassing the topic fan-out.
// Used for replay-on-join snapshots.
func (s *Subscription[T]) Replay(v T) {
	s.ring.Send(v)
}

// NewTopic creates an empty topic.
func NewTopic[T any]() *Topic[T] {
	return &Topic[T]{subs: make(map[uint64]*Subscription[T])}
}

// Subscribe attaches a new subscriber with the given ring capacity
// (DefaultSubscriberBuffer if capacity <= 0).
func (t *Topic[T]) Subscribe(capacity int) *Subscription[T] {
	if capacity <= 0 {
		capacity = DefaultSubscriberBuffer
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextID
	t.nextID++

	sub := &Subscription[T]{ring: NewRingChannel[T](capacity)}
	sub.cancel = func() {
		t.mu.Lock()
		delete(t.subs, id)
		t.mu.Unlock()
		sub.ring.Close()
	}
	t.subs[id] = sub
	return sub
}

// Publish delivers v to every current subscriber without blocking.
func (t *Topic[T]) Publish(v T) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, sub := range t.subs {
		sub.ring.Send(v)
	}
}

// SubscriberCount returns the number of attached subscribers.
func (t *Topic[T]) SubscriberCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

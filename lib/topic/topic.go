package topic

import (
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Topic
// --------------------------------------------------------------------------

// Topic fans published values out to all current subscriptions.
type Topic[T any] struct {
	capacity int // 0 means durable, >0 means best-effort with this buffer size
	subs     *xsync.MapOf[uint64, *Subscription[T]]
	nextID   atomic.Uint64
	closed   atomic.Bool
}

// NewDurable creates a topic that never drops values. Each subscription is
// backed by an unbounded queue, so publishers never block on slow consumers.
func NewDurable[T any]() *Topic[T] {
	return &Topic[T]{
		subs: xsync.NewMapOf[uint64, *Subscription[T]](),
	}
}

// NewBestEffort creates a topic that buffers at most capacity values per
// subscription and drops the oldest buffered value on overflow. A capacity
// below 1 is raised to 1.
func NewBestEffort[T any](capacity int) *Topic[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Topic[T]{
		capacity: capacity,
		subs:     xsync.NewMapOf[uint64, *Subscription[T]](),
	}
}

// Subscribe registers a new subscription. Subscribing to a closed topic
// returns a subscription whose channel is already closed.
//
// Thread-safety: This method is thread-safe.
func (t *Topic[T]) Subscribe() *Subscription[T] {
	sub := &Subscription[T]{topic: t, id: t.nextID.Add(1)}
	if t.capacity == 0 {
		sub.queue = newMPSCQueue[T]()
	} else {
		sub.ch = make(chan T, t.capacity)
	}

	if t.closed.Load() {
		sub.Close()
		return sub
	}

	t.subs.Store(sub.id, sub)

	// the topic may have closed while we were registering
	if t.closed.Load() {
		sub.Close()
	}
	return sub
}

// Publish delivers a value to every current subscription. On a closed topic
// this is a no-op.
//
// Thread-safety: This method is thread-safe.
func (t *Topic[T]) Publish(value T) {
	if t.closed.Load() {
		return
	}
	t.subs.Range(func(_ uint64, sub *Subscription[T]) bool {
		sub.deliver(value)
		return true
	})
}

// Subscribers returns the current number of subscriptions.
func (t *Topic[T]) Subscribers() int {
	return t.subs.Size()
}

// Close closes the topic and all its subscriptions. Durable subscriptions
// still deliver their backlog before their channels close.
//
// Thread-safety: This method is thread-safe and idempotent.
func (t *Topic[T]) Close() {
	if !t.closed.CompareAndSwap(false, true) {
		return
	}
	t.subs.Range(func(id uint64, sub *Subscription[T]) bool {
		sub.Close()
		return true
	})
}

// --------------------------------------------------------------------------
// Subscription
// --------------------------------------------------------------------------

// Subscription is one consumer of a topic. Values are consumed from the
// channel returned by Recv; the channel is closed when the subscription or
// its topic closes.
type Subscription[T any] struct {
	topic *Topic[T]
	id    uint64

	queue *mpscQueue[T] // durable mode
	ch    chan T        // best-effort mode

	// mu guards ch sends against Close for best-effort subscriptions
	mu     sync.Mutex
	closed bool
}

// Recv returns the receive-only channel of this subscription.
func (s *Subscription[T]) Recv() <-chan T {
	if s.queue != nil {
		return s.queue.recv()
	}
	return s.ch
}

// Close detaches the subscription from its topic and closes its channel. A
// durable subscription still delivers already-published values first.
//
// Thread-safety: This method is thread-safe and idempotent.
func (s *Subscription[T]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.ch != nil {
		close(s.ch)
	}
	s.mu.Unlock()

	if s.queue != nil {
		s.queue.close()
	}
	s.topic.subs.Delete(s.id)
}

// deliver hands a published value to this subscription.
func (s *Subscription[T]) deliver(value T) {
	if s.queue != nil {
		s.queue.push(value)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	select {
	case s.ch <- value:
	default:
		// buffer full: drop the oldest value to make room for the newest
		select {
		case <-s.ch:
		default:
		}
		select {
		case s.ch <- value:
		default:
		}
	}
}

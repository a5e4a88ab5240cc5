package topic

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// qnode represents a single element in the queue
type qnode[T any] struct {
	value T
	next  atomic.Pointer[qnode[T]]
}

// mpscQueue is a lock-free multi-producer single-consumer queue backing one
// durable subscription. Producers append with atomic operations, a dedicated
// goroutine drains the linked list into the output channel. The queue is
// unbounded, so slow consumers grow a backlog instead of blocking publishers.
type mpscQueue[T any] struct {
	head     atomic.Pointer[qnode[T]]
	tail     atomic.Pointer[qnode[T]]
	out      chan T
	consumer sync.WaitGroup
	closed   atomic.Bool

	// Condition variable for efficient waiting
	mu   sync.Mutex
	cond *sync.Cond
}

// newMPSCQueue creates a queue and starts its consumer goroutine.
func newMPSCQueue[T any]() *mpscQueue[T] {
	// sentinel node (dummy node at the beginning)
	sentinel := &qnode[T]{}

	q := &mpscQueue[T]{
		out: make(chan T),
	}
	q.cond = sync.NewCond(&q.mu)

	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	q.consumer.Add(1)
	go q.consume()

	return q
}

// push adds an item to the queue.
// Returns true if the item was added, or false if the queue is closed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (q *mpscQueue[T]) push(value T) bool {
	if q.closed.Load() {
		return false
	}

	newNode := &qnode[T]{value: value}

	var tailNode *qnode[T]
	var backoff uint8 = 0

	for {
		tailNode = q.tail.Load()

		// try to atomically append our node to the current tail
		next := tailNode.next.Load()
		if next == nil {
			if tailNode.next.CompareAndSwap(nil, newNode) {
				/*
				 Successfully appended, now try to update tail
				 Note: CAS may fail if another producer helps update tail,
				 but that's okay - tail will still be updated eventually
				*/
				q.tail.CompareAndSwap(tailNode, newNode)

				// Signal the consumer that new data is available
				q.cond.Signal()

				return true
			}
		} else {
			// help update the tail pointer if another producer has already
			// appended a node but hasn't updated the tail yet
			q.tail.CompareAndSwap(tailNode, next)
		}

		/*
		 Exponential backoff to handle contention:
		  - At low contention (<10 retries): CPU spinning to avoid thread scheduling overhead
		  - At higher contention: yield the processor so other goroutines make progress
		  - Backoff increases exponentially with each retry, reducing the "thundering herd"
		    problem where all goroutines retry simultaneously after failure
		*/

		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// consume continuously sends items from the linked list to the output channel and frees memory
func (q *mpscQueue[T]) consume() {
	defer q.consumer.Done()
	defer close(q.out)

	var zero T
	for {
		// Process all available items in the queue
		hasItems := false

		for {
			head := q.head.Load()
			next := head.next.Load()

			if next == nil {
				break // No more items available
			}

			hasItems = true

			// Capture value before updating pointers
			value := next.value

			// move head pointer (free up memory)
			q.head.Store(next)

			// Send the value to the consumer
			q.out <- value

			// help go gc - safe to clear after sending
			next.value = zero
		}

		// Exit if closed and no more items
		if !hasItems && q.closed.Load() {
			return
		}

		// If no items were processed, wait for signal
		if !hasItems {
			q.mu.Lock()
			// Double-check condition after acquiring lock
			head := q.head.Load()
			if head.next.Load() == nil && !q.closed.Load() {
				q.cond.Wait()
			}
			q.mu.Unlock()
		}
	}
}

// recv returns the receive-only output channel. The channel is closed after
// the queue is closed and all pending items have been delivered.
func (q *mpscQueue[T]) recv() <-chan T {
	return q.out
}

// close closes the queue, preventing further writes.
// Any items already in the queue will still be delivered to the consumer.
func (q *mpscQueue[T]) close() {
	q.closed.Store(true)

	// Wake up the consumer if it's waiting
	q.cond.Signal()
}

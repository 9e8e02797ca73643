// Package lockfree provides a bounded, lock-free, multi-producer/multi-consumer
// FIFO queue built on per-slot sequence numbers.
//
// Every slot carries a counter that moves through p, p+1, p+capacity,
// p+capacity+1, ... as the ring laps. A producer holding tail snapshot t may
// claim slot t&mask only while its sequence equals t; once the value is stored
// it publishes t+1. A consumer holding head snapshot h may claim the slot only
// while its sequence equals h+1; after moving the value out it publishes
// h+capacity, which is exactly the tail value the next producer on this slot
// will hold. The counter never repeats, so the same comparison doubles as the
// ABA guard.
//
// Enqueue and Dequeue never block. They report a full or empty queue with a
// false result and leave backoff to the caller (see package retry).
package lockfree

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// noCopy makes go vet's copylocks check flag copies of a Queue. The ring and
// the counters are shared by address with every goroutine using the queue.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Queue is a bounded lock-free MPMC FIFO queue. Use New to create one and
// always share it by pointer.
type Queue[T any] struct {
	_          noCopy
	_          cpu.CacheLinePad
	head       atomic.Uint64 // completed dequeue claims
	_          cpu.CacheLinePad
	tail       atomic.Uint64 // completed enqueue claims
	_          cpu.CacheLinePad
	buffer     []slot[T]
	mask       uint64
	capacity   uint64
	destructor Destructor[T]
}

// Option configures a Queue at construction.
type Option[T any] func(q *Queue[T])

// WithDestructor registers fn to run on every value the queue still holds
// when Dispose is called. Values handed out by Dequeue are never passed to it.
func WithDestructor[T any](fn Destructor[T]) Option[T] {
	return func(q *Queue[T]) {
		q.destructor = fn
	}
}

// New creates a queue with room for at least requested values. The real
// capacity is the next power of two, and never less than 2.
func New[T any](requested uint64, opts ...Option[T]) *Queue[T] {
	capacity := roundCapacity(requested)
	q := &Queue[T]{
		buffer:   make([]slot[T], capacity),
		mask:     capacity - 1,
		capacity: capacity,
	}
	for i := uint64(0); i < capacity; i++ {
		q.buffer[i].setSequence(i)
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// claimTail reserves the slot for the next enqueue. It reports false when the
// slot at the tail has not been recycled by a consumer yet, i.e. the queue is full.
func (q *Queue[T]) claimTail() (*slot[T], uint64, bool) {
	for {
		tail := q.tail.Load()
		s := &q.buffer[tail&q.mask]
		diff := int64(s.loadSequence() - tail)
		switch {
		case diff == 0:
			if q.tail.CompareAndSwap(tail, tail+1) {
				return s, tail, true
			}
		case diff < 0:
			return nil, 0, false
		}
		// diff > 0: another producer moved tail past our snapshot.
	}
}

// Enqueue appends v. It returns false without side effects if the queue is full.
func (q *Queue[T]) Enqueue(v T) bool {
	s, tail, ok := q.claimTail()
	if !ok {
		return false
	}
	s.construct(v)
	s.setSequence(tail + 1)
	return true
}

// EnqueueFunc claims a slot and builds the value in it with fn. It returns
// (false, nil) if the queue is full, in which case fn is not called.
//
// If fn returns an error (or panics) the claimed position is still published,
// but as an empty hole: consumers skip it and recycle the slot, so the ring
// never strands a position. The error is returned unchanged.
func (q *Queue[T]) EnqueueFunc(fn func() (T, error)) (bool, error) {
	s, tail, ok := q.claimTail()
	if !ok {
		return false, nil
	}
	defer s.setSequence(tail + 1)
	if err := s.constructWith(fn); err != nil {
		return false, err
	}
	return true, nil
}

// Dequeue removes the oldest value. It returns the zero value and false if
// the queue is empty.
func (q *Queue[T]) Dequeue() (T, bool) {
	for {
		head := q.head.Load()
		s := &q.buffer[head&q.mask]
		diff := int64(s.loadSequence() - (head + 1))
		switch {
		case diff == 0:
			if !q.head.CompareAndSwap(head, head+1) {
				continue
			}
			occupied := s.occupied
			var v T
			if occupied {
				v = s.take()
			}
			s.setSequence(head + q.capacity)
			if occupied {
				return v, true
			}
			// A failed EnqueueFunc left a hole here; move on to the next position.
		case diff < 0:
			var zero T
			return zero, false
		}
		// diff > 0: another consumer moved head past our snapshot.
	}
}

// DequeueInto stores the oldest value in *out and reports whether there was
// one. *out is left untouched when the queue is empty.
func (q *Queue[T]) DequeueInto(out *T) bool {
	v, ok := q.Dequeue()
	if ok {
		*out = v
	}
	return ok
}

// Dispose destroys every value still held by the queue, running the
// destructor registered with WithDestructor on each, and returns how many
// were destroyed. It must not run concurrently with any other method.
// Afterwards the queue is back in its initial empty state, so calling Dispose
// again destroys nothing and the queue may be reused.
func (q *Queue[T]) Dispose() int {
	n := 0
	for i := range q.buffer {
		if q.buffer[i].destroy(q.destructor) {
			n++
		}
		q.buffer[i].setSequence(uint64(i))
	}
	q.head.Store(0)
	q.tail.Store(0)
	return n
}

// Cap returns the real capacity of the ring.
func (q *Queue[T]) Cap() uint64 {
	return q.capacity
}

// UsedSlots returns the number of claimed but not yet consumed positions.
// The snapshot is consistent: tail is re-read so that head and tail belong to
// the same instant, which keeps the result within [0, Cap()].
func (q *Queue[T]) UsedSlots() uint64 {
	for {
		tail := q.tail.Load()
		head := q.head.Load()
		if q.tail.Load() == tail {
			return tail - head
		}
	}
}

// FreeSlots returns how many more values can be enqueued right now.
func (q *Queue[T]) FreeSlots() uint64 {
	return q.capacity - q.UsedSlots()
}

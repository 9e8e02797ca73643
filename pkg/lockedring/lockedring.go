// Package lockedring is a mutex-guarded bounded FIFO over
// github.com/eapache/queue. It is the lock-based reference point for the
// benchmarks and behaves exactly like the lock-free queue from a single
// goroutine, which makes it a convenient model in tests.
package lockedring

import (
	"math/bits"
	"sync"

	"github.com/eapache/queue"
)

// LockedRing is safe for concurrent use. Every operation takes the mutex.
type LockedRing[T any] struct {
	mu       sync.Mutex
	items    *queue.Queue
	capacity uint64
}

// New creates a queue holding at most capacity items, rounded up the same way
// as lockfree.New (next power of two, at least 2). Like lockfree.New it panics
// when capacity is above 1<<63.
func New[T any](capacity uint64) *LockedRing[T] {
	return &LockedRing[T]{
		items:    queue.New(),
		capacity: roundCapacity(capacity),
	}
}

func roundCapacity(capacity uint64) uint64 {
	if capacity <= 2 {
		return 2
	}
	if capacity > 1<<63 {
		panic("lockedring: requested capacity overflows uint64")
	}
	return 1 << bits.Len64(capacity-1)
}

func (r *LockedRing[T]) Enqueue(v T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if uint64(r.items.Length()) >= r.capacity {
		return false
	}
	r.items.Add(v)
	return true
}

func (r *LockedRing[T]) Dequeue() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.items.Length() == 0 {
		var zero T
		return zero, false
	}
	return r.items.Remove().(T), true
}

func (r *LockedRing[T]) Cap() uint64 {
	return r.capacity
}

func (r *LockedRing[T]) UsedSlots() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return uint64(r.items.Length())
}

func (r *LockedRing[T]) FreeSlots() uint64 {
	return r.capacity - r.UsedSlots()
}

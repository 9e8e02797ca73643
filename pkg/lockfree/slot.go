package lockfree

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// Destructor releases whatever a value holds. It runs at most once per stored
// value, and only for values the queue still owns when they are destroyed.
type Destructor[T any] func(v *T)

// slot is one cell of the ring. The sequence counter is the only field touched
// concurrently; value and occupied belong to whichever goroutine won the claim
// on the slot through the queue's head/tail CAS.
type slot[T any] struct {
	sequence atomic.Uint64
	value    T
	occupied bool
	_        cpu.CacheLinePad
}

// construct stores v into the slot.
func (s *slot[T]) construct(v T) {
	s.value = v
	s.occupied = true
}

// constructWith builds the value in place. If fn fails nothing is stored and
// the slot stays unoccupied.
func (s *slot[T]) constructWith(fn func() (T, error)) error {
	v, err := fn()
	if err != nil {
		return err
	}
	s.construct(v)
	return nil
}

// destroy runs d on the stored value, if any, and clears the storage so the
// GC can reclaim anything it referenced. Calling it on an empty slot is a no-op.
func (s *slot[T]) destroy(d Destructor[T]) bool {
	if !s.occupied {
		return false
	}
	if d != nil {
		d(&s.value)
	}
	var zero T
	s.value = zero
	s.occupied = false
	return true
}

// take moves the value out and leaves the slot empty without running a
// destructor; ownership passes to the caller.
func (s *slot[T]) take() T {
	v := *s.get()
	s.destroy(nil)
	return v
}

// get returns the stored value. The slot must be occupied.
func (s *slot[T]) get() *T {
	return &s.value
}

// setSequence publishes the slot's next state to the other side.
func (s *slot[T]) setSequence(n uint64) {
	s.sequence.Store(n)
}

func (s *slot[T]) loadSequence() uint64 {
	return s.sequence.Load()
}

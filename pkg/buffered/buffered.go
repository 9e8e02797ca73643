// Package buffered is the baseline every other queue is measured against: a
// plain Go channel driven through non-blocking selects.
package buffered

type BufferedQueue[T any] struct {
	ch chan T
}

func New[T any](bufferSize uint64) *BufferedQueue[T] {
	// A zero-capacity channel is a rendezvous, not an empty buffer; keep at
	// least one slot so the bounded-buffer semantics hold.
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &BufferedQueue[T]{
		ch: make(chan T, bufferSize),
	}
}

// Enqueue sends val if the channel has room.
func (q *BufferedQueue[T]) Enqueue(val T) bool {
	select {
	case q.ch <- val:
		return true
	default:
		return false
	}
}

func (q *BufferedQueue[T]) Dequeue() (val T, ok bool) {
	select {
	case val = <-q.ch:
		return val, true
	default:
		return val, false
	}
}

func (q *BufferedQueue[T]) Cap() uint64 {
	return uint64(cap(q.ch))
}

func (q *BufferedQueue[T]) FreeSlots() uint64 {
	return uint64(cap(q.ch) - len(q.ch))
}

func (q *BufferedQueue[T]) UsedSlots() uint64 {
	return uint64(len(q.ch))
}

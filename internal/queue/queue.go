package queue

// Validation is a *type constraint* that every queue benchmarked or tested in
// this module satisfies. We never store a queue in a runtime interface of this
// type; it only checks method signatures at compile time.
type Validation[T any] interface {
	// Enqueue adds an element. It never blocks: false means the queue was full.
	Enqueue(T) bool

	// Dequeue removes and returns the oldest element.
	// If the queue is empty it returns the zero T and false.
	Dequeue() (T, bool)

	// FreeSlots returns how many more elements can be enqueued before the queue is full.
	FreeSlots() uint64

	// UsedSlots returns how many elements are currently queued.
	UsedSlots() uint64

	// Cap returns the fixed capacity.
	Cap() uint64
}

// Conforms is a compile-time assertion helper:
//
//	var _ = queue.Conforms[int](lockfree.New[int](2))
func Conforms[T any, Q Validation[T]](q Q) Q {
	return q
}

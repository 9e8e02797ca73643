package testbench

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hu4nghe/lockfree-queue/internal/queue"
	"github.com/hu4nghe/lockfree-queue/pkg/retry"
)

// Config is only about concurrency: how many producers, how many consumers.
type Config struct {
	NumProducers int
	NumConsumers int
}

// RunTimedTest spawns producers and consumers that run for the specified
// duration, measuring how many messages are actually enqueued/dequeued
// in that window. Queues never block, so a producer that finds the queue full
// backs off and retries the same message. Once the context expires, producers
// stop and consumers drain any remaining messages in the queue.
// Returns the total messages enqueued, total consumed, and the actual elapsed time.
func RunTimedTest[T any, Q queue.Validation[T]](
	q Q,
	cfg Config,
	testDuration time.Duration,
	valueGenerator func(int) T,
) (producedCount int64, consumedCount int64, elapsed time.Duration) {

	ctx, cancel := context.WithTimeout(context.Background(), testDuration)
	defer cancel()

	var totalProduced int64
	var totalConsumed int64

	start := time.Now()

	var msgIndex int64
	var prodWg, consWg sync.WaitGroup
	prodWg.Add(cfg.NumProducers)
	consWg.Add(cfg.NumConsumers)

	// productionDone flips to 1 once all producers have returned.
	var productionDone int32

	for i := 0; i < cfg.NumProducers; i++ {
		go func() {
			defer prodWg.Done()
			b := retry.Yielding()
			for ctx.Err() == nil {
				idx := atomic.AddInt64(&msgIndex, 1) - 1
				msg := valueGenerator(int(idx))
				if err := retry.Enqueue[T](ctx, q, msg, b); err != nil {
					return
				}
				b.Reset()
				atomic.AddInt64(&totalProduced, 1)
			}
		}()
	}

	for i := 0; i < cfg.NumConsumers; i++ {
		go func() {
			defer consWg.Done()
			for {
				if atomic.LoadInt32(&productionDone) == 1 {
					for {
						if _, ok := q.Dequeue(); !ok {
							return
						}
						atomic.AddInt64(&totalConsumed, 1)
					}
				}
				if _, ok := q.Dequeue(); ok {
					atomic.AddInt64(&totalConsumed, 1)
				} else {
					runtime.Gosched()
				}
			}
		}()
	}

	<-ctx.Done()
	prodWg.Wait()
	atomic.StoreInt32(&productionDone, 1)
	consWg.Wait()

	elapsed = time.Since(start)
	producedCount = atomic.LoadInt64(&totalProduced)
	consumedCount = atomic.LoadInt64(&totalConsumed)
	return producedCount, consumedCount, elapsed
}

// CountedResult is the outcome of RunCountedTest.
type CountedResult struct {
	Produced   int64
	Consumed   int64
	Sum        uint64
	Duplicates []uint64 // tags consumed more than once
	Missing    []uint64 // tags never consumed
	Elapsed    time.Duration
	TimedOut   bool
}

// OK reports whether every tag was consumed exactly once.
func (r CountedResult) OK() bool {
	return !r.TimedOut && r.Produced == r.Consumed && len(r.Duplicates) == 0 && len(r.Missing) == 0
}

// RunCountedTest pushes cfg.NumProducers*itemsPerProducer distinct tags
// (0, 1, 2, ...) through q and lets cfg.NumConsumers drain them. It stops when
// every item has been consumed or when timeout expires, whichever comes first.
func RunCountedTest[Q queue.Validation[uint64]](
	q Q,
	cfg Config,
	itemsPerProducer int,
	timeout time.Duration,
) CountedResult {
	total := int64(cfg.NumProducers) * int64(itemsPerProducer)
	seen := make([]atomic.Int32, total)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var nextTag atomic.Uint64
	var produced, consumed atomic.Int64
	var sum atomic.Uint64
	var wg sync.WaitGroup

	start := time.Now()
	for i := 0; i < cfg.NumProducers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b := retry.Yielding()
			for j := 0; j < itemsPerProducer; j++ {
				tag := nextTag.Add(1) - 1
				if err := retry.Enqueue[uint64](ctx, q, tag, b); err != nil {
					return
				}
				b.Reset()
				produced.Add(1)
			}
		}()
	}
	for i := 0; i < cfg.NumConsumers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b := retry.Yielding()
			for consumed.Load() < total && ctx.Err() == nil {
				tag, ok := q.Dequeue()
				if !ok {
					b.Wait()
					continue
				}
				b.Reset()
				if tag < uint64(total) {
					seen[tag].Add(1)
				}
				sum.Add(tag)
				consumed.Add(1)
			}
		}()
	}
	wg.Wait()

	res := CountedResult{
		Produced: produced.Load(),
		Consumed: consumed.Load(),
		Sum:      sum.Load(),
		Elapsed:  time.Since(start),
		TimedOut: ctx.Err() != nil && consumed.Load() < total,
	}
	for tag := range seen {
		switch n := seen[tag].Load(); {
		case n == 0:
			res.Missing = append(res.Missing, uint64(tag))
		case n > 1:
			res.Duplicates = append(res.Duplicates, uint64(tag))
		}
	}
	return res
}

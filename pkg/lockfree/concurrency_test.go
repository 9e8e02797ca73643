package lockfree

import (
	"os"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hu4nghe/lockfree-queue/pkg/retry"
)

// getEnvInt reads a positive integer from the environment, falling back to def.
func getEnvInt(name string, def int) int {
	if v := os.Getenv(name); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			return i
		}
	}
	return def
}

// finishWithin fails the test if fn has not returned after d. A stuck
// lock-free loop shows up as a timeout rather than a hung test binary.
func finishWithin(t *testing.T, d time.Duration, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("no completion within %v (livelock or lost item)", d)
	}
}

// drain consumes until total items have been seen across all consumers.
func drain(q *Queue[uint64], consumed *atomic.Int64, total int64, onValue func(uint64)) {
	b := retry.Yielding()
	for consumed.Load() < total {
		v, ok := q.Dequeue()
		if !ok {
			b.Wait()
			continue
		}
		b.Reset()
		onValue(v)
		consumed.Add(1)
	}
}

func TestConcurrentFourByFour(t *testing.T) {
	const (
		producers        = 4
		consumers        = 4
		itemsPerProducer = 10000
		total            = producers * itemsPerProducer
	)
	q := New[uint64](1024)

	var produced, consumed atomic.Int64
	var wg sync.WaitGroup
	finishWithin(t, 60*time.Second, func() {
		for p := 0; p < producers; p++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < itemsPerProducer; i++ {
					retry.MustEnqueue[uint64](q, uint64(i))
					produced.Add(1)
				}
			}()
		}
		for c := 0; c < consumers; c++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				drain(q, &consumed, total, func(uint64) {})
			}()
		}
		wg.Wait()
	})

	require.Equal(t, int64(total), produced.Load())
	require.Equal(t, produced.Load(), consumed.Load())
}

// Every tag must come out exactly once, at the smallest ring where slot reuse
// races are most frequent.
func TestNoLossNoDuplicationCapacityTwo(t *testing.T) {
	const (
		producers        = 10
		consumers        = 10
		itemsPerProducer = 10000
		total            = producers * itemsPerProducer
	)
	q := New[uint64](2)
	require.Equal(t, uint64(2), q.Cap())

	seen := make([]atomic.Int32, total)
	var nextID atomic.Uint64
	var consumed atomic.Int64
	var wg sync.WaitGroup

	finishWithin(t, 120*time.Second, func() {
		for p := 0; p < producers; p++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < itemsPerProducer; i++ {
					retry.MustEnqueue[uint64](q, nextID.Add(1)-1)
				}
			}()
		}
		for c := 0; c < consumers; c++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				drain(q, &consumed, total, func(id uint64) {
					seen[id].Add(1)
				})
			}()
		}
		wg.Wait()
	})

	for id := range seen {
		if n := seen[id].Load(); n != 1 {
			t.Fatalf("id %d consumed %d times", id, n)
		}
	}
	_, ok := q.Dequeue()
	require.False(t, ok)
}

// Per-producer tags must come out in the order that producer enqueued them.
func TestPerProducerOrder(t *testing.T) {
	const (
		producers        = 4
		itemsPerProducer = 20000
		total            = producers * itemsPerProducer
	)
	q := New[uint64](8)

	var consumed atomic.Int64
	var wg sync.WaitGroup
	var last [producers]int64
	for i := range last {
		last[i] = -1
	}

	finishWithin(t, 60*time.Second, func() {
		for p := 0; p < producers; p++ {
			wg.Add(1)
			go func(p uint64) {
				defer wg.Done()
				for i := uint64(0); i < itemsPerProducer; i++ {
					retry.MustEnqueue[uint64](q, p<<32|i)
				}
			}(uint64(p))
		}
		// A single consumer observes the global dequeue order.
		wg.Add(1)
		go func() {
			defer wg.Done()
			drain(q, &consumed, total, func(v uint64) {
				p, seq := v>>32, int64(v&0xffffffff)
				if seq != last[p]+1 {
					t.Errorf("producer %d: got %d after %d", p, seq, last[p])
				}
				last[p] = seq
			})
		}()
		wg.Wait()
	})
}

func TestOccupancyStaysBounded(t *testing.T) {
	const (
		producers        = 6
		consumers        = 6
		itemsPerProducer = 20000
		total            = producers * itemsPerProducer
	)
	q := New[uint64](4)
	capacity := q.Cap()

	var consumed atomic.Int64
	var violations atomic.Int64
	stop := make(chan struct{})
	var samplerWg sync.WaitGroup
	samplerWg.Add(1)
	go func() {
		defer samplerWg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			used := q.UsedSlots()
			if used > capacity || q.FreeSlots() > capacity {
				violations.Add(1)
			}
			runtime.Gosched()
		}
	}()

	var wg sync.WaitGroup
	finishWithin(t, 60*time.Second, func() {
		for p := 0; p < producers; p++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < itemsPerProducer; i++ {
					retry.MustEnqueue[uint64](q, uint64(i))
				}
			}()
		}
		for c := 0; c < consumers; c++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				drain(q, &consumed, total, func(uint64) {})
			}()
		}
		wg.Wait()
	})
	close(stop)
	samplerWg.Wait()

	require.Zero(t, violations.Load())
	require.Zero(t, q.UsedSlots())
}

// Mixed EnqueueFunc failures and successes under contention: every successful
// value arrives exactly once and the holes never wedge the ring.
func TestConstructorFailuresUnderContention(t *testing.T) {
	const (
		producers        = 8
		consumers        = 8
		itemsPerProducer = 5000
		items            = producers * itemsPerProducer
	)
	failing := func(id uint64) bool { return id%3 == 0 }
	total := int64(items - (items+2)/3)
	q := New[uint64](2)

	var nextID atomic.Uint64
	var consumed atomic.Int64
	var wg sync.WaitGroup
	seen := make([]atomic.Int32, items)

	finishWithin(t, 60*time.Second, func() {
		for p := 0; p < producers; p++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				b := retry.Yielding()
				for i := 0; i < itemsPerProducer; i++ {
					id := nextID.Add(1) - 1
					for {
						ok, err := q.EnqueueFunc(func() (uint64, error) {
							if failing(id) {
								return 0, errBuild
							}
							return id, nil
						})
						if err != nil || ok {
							break
						}
						b.Wait()
					}
				}
			}()
		}
		for c := 0; c < consumers; c++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				drain(q, &consumed, total, func(id uint64) {
					seen[id].Add(1)
				})
			}()
		}
		wg.Wait()
	})

	for id := range seen {
		want := int32(1)
		if failing(uint64(id)) {
			want = 0
		}
		require.Equalf(t, want, seen[id].Load(), "id %d", id)
	}
	// Trailing holes are recycled by the next Dequeue.
	_, ok := q.Dequeue()
	require.False(t, ok)
	require.Zero(t, q.UsedSlots())
}

// Values left in the ring after a concurrent run are destroyed exactly once.
func TestDisposeAfterConcurrentRun(t *testing.T) {
	var destroyed atomic.Int64
	q := New[uint64](64, WithDestructor[uint64](func(*uint64) { destroyed.Add(1) }))

	const producers = 8
	var wg sync.WaitGroup
	var accepted atomic.Int64
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if q.Enqueue(uint64(i)) {
					accepted.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	taken := 0
	for i := 0; i < 10; i++ {
		if _, ok := q.Dequeue(); ok {
			taken++
		}
	}

	require.Equal(t, int64(64), accepted.Load())
	n := q.Dispose()
	require.Equal(t, 64-taken, n)
	require.Equal(t, int64(n), destroyed.Load())
	require.Zero(t, q.Dispose())
	require.Equal(t, int64(n), destroyed.Load())
}

// 10x10 goroutines on a capacity-2 ring, one million values each. The sum of
// everything consumed must match what was produced.
func TestExtremeContentionSum(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping extreme contention run in -short mode")
	}
	const (
		producers = 10
		consumers = 10
	)
	itemsPerProducer := getEnvInt("LOCKFREE_EXTREME_ITEMS", 1_000_000)
	total := int64(producers * itemsPerProducer)
	q := New[uint64](2)

	var produced, consumed atomic.Int64
	sums := make([]uint64, consumers)
	var wg sync.WaitGroup

	start := time.Now()
	finishWithin(t, 10*time.Minute, func() {
		for p := 0; p < producers; p++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < itemsPerProducer; i++ {
					retry.MustEnqueue[uint64](q, 1)
					produced.Add(1)
				}
			}()
		}
		for c := 0; c < consumers; c++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				drain(q, &consumed, total, func(v uint64) {
					sums[idx] += v
				})
			}(c)
		}
		wg.Wait()
	})
	t.Logf("%d items through a capacity-2 ring in %v", total, time.Since(start))

	require.Equal(t, total, produced.Load())
	require.Equal(t, total, consumed.Load())
	var sum uint64
	for _, s := range sums {
		sum += s
	}
	require.Equal(t, uint64(total), sum)
}

// Package retry layers caller-side waiting on top of non-blocking queues.
//
// The queues in this module never block: Enqueue fails on a full ring and
// Dequeue fails on an empty one. Enqueue and Dequeue here keep retrying with a
// Backoff until the operation succeeds, the attempt budget runs out or the
// context is done.
package retry

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"time"

	"github.com/valyala/fastrand"
)

var (
	ErrFull  = fmt.Errorf("queue is full")
	ErrEmpty = fmt.Errorf("queue is empty")
)

// Producer is anything with a non-blocking Enqueue.
type Producer[T any] interface {
	Enqueue(v T) bool
}

// Consumer is anything with a non-blocking Dequeue.
type Consumer[T any] interface {
	Dequeue() (T, bool)
}

// Backoff escalates from immediate retries to runtime.Gosched to jittered
// sleeps. The zero value retries forever using the defaults below. A Backoff
// is not safe for concurrent use; give every goroutine its own.
type Backoff struct {
	// Spins is the number of attempts retried immediately.
	Spins int
	// Yields is the number of further attempts preceded by runtime.Gosched.
	Yields int
	// MinSleep and MaxSleep bound the sleep between later attempts. The sleep
	// doubles each time, and a random jitter of up to half of it is added.
	MinSleep time.Duration
	MaxSleep time.Duration
	// MaxAttempts stops Wait after that many calls. Zero means no limit.
	MaxAttempts int

	attempt int
	sleep   time.Duration
}

const (
	defaultSpins    = 16
	defaultYields   = 64
	defaultMinSleep = time.Microsecond
	defaultMaxSleep = time.Millisecond

	maxJitter = time.Duration(1<<31 - 1)
)

func (b *Backoff) spins() int {
	if b.Spins > 0 {
		return b.Spins
	}
	return defaultSpins
}

func (b *Backoff) yields() int {
	if b.Yields > 0 {
		return b.Yields
	}
	return defaultYields
}

func (b *Backoff) bounds() (time.Duration, time.Duration) {
	lo, hi := b.MinSleep, b.MaxSleep
	if lo <= 0 {
		lo = defaultMinSleep
	}
	if hi < lo {
		hi = max(lo, defaultMaxSleep)
	}
	return lo, hi
}

// Wait pauses before the next attempt. It returns false once MaxAttempts
// waits have been spent.
func (b *Backoff) Wait() bool {
	if b.MaxAttempts > 0 && b.attempt >= b.MaxAttempts {
		return false
	}
	if b.attempt < math.MaxInt {
		b.attempt++
	}
	// Phases are compared by difference so huge Spins or Yields cannot overflow.
	switch spins := b.spins(); {
	case b.attempt <= spins:
	case b.attempt-spins <= b.yields():
		runtime.Gosched()
	default:
		time.Sleep(b.nextSleep())
	}
	return true
}

func (b *Backoff) nextSleep() time.Duration {
	lo, hi := b.bounds()
	if b.sleep < lo {
		b.sleep = lo
	} else if b.sleep *= 2; b.sleep > hi {
		b.sleep = hi
	}
	spread := min(b.sleep/2, maxJitter)
	jitter := time.Duration(fastrand.Uint32n(uint32(spread) + 1))
	return b.sleep + jitter
}

// Attempts returns how many times Wait has paused since the last Reset.
func (b *Backoff) Attempts() int {
	return b.attempt
}

// Reset starts the escalation over.
func (b *Backoff) Reset() {
	b.attempt = 0
	b.sleep = 0
}

// Enqueue retries q.Enqueue(v) until it succeeds. A nil b uses a zero Backoff.
// On failure the error wraps ErrFull, and the context error when ctx ended
// the wait.
func Enqueue[T any](ctx context.Context, q Producer[T], v T, b *Backoff) error {
	if b == nil {
		b = &Backoff{}
	}
	for {
		if q.Enqueue(v) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("enqueue: %w: %w", ErrFull, err)
		}
		if !b.Wait() {
			return fmt.Errorf("enqueue: %w after %d attempts", ErrFull, b.Attempts())
		}
	}
}

// Dequeue retries q.Dequeue() until a value arrives. A nil b uses a zero
// Backoff. On failure the error wraps ErrEmpty, and the context error when
// ctx ended the wait.
func Dequeue[T any](ctx context.Context, q Consumer[T], b *Backoff) (T, error) {
	if b == nil {
		b = &Backoff{}
	}
	for {
		if v, ok := q.Dequeue(); ok {
			return v, nil
		}
		if err := ctx.Err(); err != nil {
			var zero T
			return zero, fmt.Errorf("dequeue: %w: %w", ErrEmpty, err)
		}
		if !b.Wait() {
			var zero T
			return zero, fmt.Errorf("dequeue: %w after %d attempts", ErrEmpty, b.Attempts())
		}
	}
}

// Yielding returns a Backoff that never sleeps: after the spin phase every
// wait is a runtime.Gosched. It suits hot loops where the other side is
// known to be making progress.
func Yielding() *Backoff {
	return &Backoff{Yields: math.MaxInt}
}

// MustEnqueue retries until v is accepted, yielding the processor between
// tries. It is meant for pipelines where the consumers are known to keep
// draining.
func MustEnqueue[T any](q Producer[T], v T) {
	b := Yielding()
	for !q.Enqueue(v) {
		b.Wait()
	}
}

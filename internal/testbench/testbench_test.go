package testbench

import (
	"testing"
	"time"

	. "gopkg.in/check.v1"

	"github.com/hu4nghe/lockfree-queue/pkg/buffered"
	"github.com/hu4nghe/lockfree-queue/pkg/lockedring"
	"github.com/hu4nghe/lockfree-queue/pkg/lockfree"
)

// hook up go-check to go testing
func Test(t *testing.T) { TestingT(t) }

type BenchSuite struct{}

var _ = Suite(&BenchSuite{})

func (s *BenchSuite) TestCountedLockFreeCapacityTwo(c *C) {
	res := RunCountedTest(lockfree.New[uint64](2), Config{NumProducers: 10, NumConsumers: 10}, 2000, time.Minute)
	c.Assert(res.TimedOut, Equals, false)
	c.Assert(res.Produced, Equals, int64(20000))
	c.Assert(res.Consumed, Equals, int64(20000))
	c.Assert(res.Duplicates, HasLen, 0)
	c.Assert(res.Missing, HasLen, 0)
	// tags 0..n-1
	c.Assert(res.Sum, Equals, uint64(20000*19999/2))
	c.Assert(res.OK(), Equals, true)
}

func (s *BenchSuite) TestCountedBaselines(c *C) {
	cfg := Config{NumProducers: 4, NumConsumers: 4}
	for name, res := range map[string]CountedResult{
		"buffered":   RunCountedTest(buffered.New[uint64](16), cfg, 1000, time.Minute),
		"lockedring": RunCountedTest(lockedring.New[uint64](16), cfg, 1000, time.Minute),
	} {
		c.Check(res.OK(), Equals, true, Commentf("%s: %+v", name, res))
	}
}

func (s *BenchSuite) TestCountedReportsTimeout(c *C) {
	// No consumers: the producers fill the ring and give up at the deadline.
	res := RunCountedTest(lockfree.New[uint64](2), Config{NumProducers: 2, NumConsumers: 0}, 10, 50*time.Millisecond)
	c.Assert(res.TimedOut, Equals, true)
	c.Assert(res.Produced, Equals, int64(2))
	c.Assert(res.Consumed, Equals, int64(0))
	c.Assert(res.Missing, HasLen, 20)
	c.Assert(res.OK(), Equals, false)
}

func (s *BenchSuite) TestTimedRunDrainsEverything(c *C) {
	q := lockfree.New[*int](64)
	produced, consumed, elapsed := RunTimedTest(q, Config{NumProducers: 2, NumConsumers: 2}, 100*time.Millisecond, func(i int) *int {
		v := i
		return &v
	})
	c.Assert(produced > 0, Equals, true)
	c.Assert(consumed, Equals, produced)
	c.Assert(elapsed >= 100*time.Millisecond, Equals, true)
	c.Assert(q.UsedSlots(), Equals, uint64(0))
}

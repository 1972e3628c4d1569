package ops

import (
	"fmt"
	"time"

	"github.com/kmarchand/studioforge/internal/dbal/adapter/memory"
	"github.com/kmarchand/studioforge/internal/dbal/lockout"
)

// testClock is a settable time source shared by a test's DAL.
type testClock struct {
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// sequenceIDs mints deterministic UUID-shaped ids.
func sequenceIDs() func() (string, error) {
	var n int
	return func() (string, error) {
		n++
		return fmt.Sprintf("00000000-0000-4000-8000-%012d", n), nil
	}
}

func newTestDAL(opts ...Option) (*DAL, *testClock) {
	clock := newTestClock()
	base := []Option{
		WithClock(clock.Now),
		WithIDGenerator(sequenceIDs()),
		WithLockout(lockout.Config{MaxAttempts: 3, Window: 15 * time.Minute, Duration: 15 * time.Minute}),
	}
	return New(memory.New(), append(base, opts...)...), clock
}

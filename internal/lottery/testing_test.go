package lottery

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// newTestRedis spins up an in-process Redis and a client against it.
func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

// fakeClock pins Now() so day-boundary keys and hour math are stable.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

// clockAt builds a fakeClock at the given local hour of a fixed day.
func clockAt(hour int) *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, hour, 30, 0, 0, time.Local)}
}

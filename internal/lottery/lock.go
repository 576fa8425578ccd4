package lottery

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Lua bodies run server side so that check and mutation happen in one
// round trip; a separate GET followed by SET/DEL would race.
var (
	acquireScript = redis.NewScript(`
		if redis.call('set', KEYS[1], ARGV[1], 'NX', 'EX', ARGV[2]) then
			return 1
		else
			return 0
		end
	`)

	releaseScript = redis.NewScript(`
		if redis.call('get', KEYS[1]) == ARGV[1] then
			return redis.call('del', KEYS[1])
		else
			return 0
		end
	`)
)

// LockManager implements per-requester mutual exclusion on top of the
// shared cache's atomic primitives.  A lock is a (key, opaque value,
// expiry) triple; release only succeeds when the stored value still
// matches, so a stale holder can never evict a newer one after its TTL
// lapsed.  Callers build their keys through the KeyBuilder; the manager
// uses them as given.
type LockManager struct {
	rdb redis.UniversalClient
}

// NewLockManager builds a LockManager over the given client.
func NewLockManager(rdb redis.UniversalClient) *LockManager {
	return &LockManager{rdb: rdb}
}

// Acquire attempts to take the named lock with the given value and TTL in
// a single atomic round trip.  It returns false when the lock is already
// held or the cache call errors; a cache outage must degrade to "not
// acquired", never to a panic or a blocked draw.
func (m *LockManager) Acquire(ctx context.Context, key, value string, ttl time.Duration) bool {
	secs := int64(ttl / time.Second)
	if secs < 1 {
		secs = 1
	}
	res, err := acquireScript.Run(ctx, m.rdb, []string{key}, value, secs).Int64()
	if err != nil {
		zap.L().Warn("lock acquire failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return res == 1
}

// Release deletes the lock only if it still holds value.  Returns false
// when the value does not match (the lock expired and was re-acquired by
// someone else) or the cache call errors.
func (m *LockManager) Release(ctx context.Context, key, value string) bool {
	res, err := releaseScript.Run(ctx, m.rdb, []string{key}, value).Int64()
	if err != nil {
		zap.L().Warn("lock release failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return res == 1
}

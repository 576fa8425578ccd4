package lottery

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/leolab/lottery-engine/internal/model"
)

const (
	prizesCacheTTL = 5 * time.Minute
	mutexTTL       = 5 * time.Second

	// reloadRetries bounds how long a loser of the reload mutex waits for
	// the winner to repopulate the cache before reading the store itself.
	reloadRetries  = 3
	reloadWaitStep = 50 * time.Millisecond
)

// CacheManager serves the two read-mostly collections, today's eligible
// rules and the active prizes, from Redis, falling back to the durable
// store on miss.  A miss does not fan out into unbounded concurrent
// reloads: the first caller takes a short-lived mutex in the shared cache
// and repopulates; everyone else waits briefly and re-enters the read
// path.
//
// The rules list key holds the eligible rule IDs for the day; each rule's
// detail lives in its own hash so the stock manager can decrement
// surplus_num atomically, and bulk reads pipeline the HGETALLs into one
// round trip.
type CacheManager struct {
	rdb    redis.UniversalClient
	lock   *LockManager
	keys   *KeyBuilder
	clock  Clock
	rules  RuleSource
	prizes PrizeSource
}

// NewCacheManager wires the manager to its cache, reload mutex and
// durable sources.
func NewCacheManager(rdb redis.UniversalClient, lock *LockManager, keys *KeyBuilder, clock Clock, rules RuleSource, prizes PrizeSource) *CacheManager {
	if clock == nil {
		clock = SystemClock{}
	}
	return &CacheManager{rdb: rdb, lock: lock, keys: keys, clock: clock, rules: rules, prizes: prizes}
}

// GetRules returns the rules eligible right now, with surplus still
// positive.  Cache first; on miss the store is consulted under the reload
// mutex and the cache repopulated.  A cache read error degrades to a
// direct store read.
func (m *CacheManager) GetRules(ctx context.Context) ([]model.RuleSnapshot, error) {
	now := m.clock.Now()
	date := Ymd(now)
	listKey := m.keys.RulesList(date)

	raw, err := m.rdb.Get(ctx, listKey).Result()
	switch {
	case err == nil:
		ids, decodeErr := decodeIDList(raw)
		if decodeErr != nil {
			zap.L().Warn("corrupt rules list cache, reloading", zap.Error(decodeErr))
			return m.loadRules(ctx, now, 0)
		}
		if len(ids) == 0 {
			return nil, nil
		}
		snaps, hashErr := m.ruleDetails(ctx, ids, date)
		if hashErr != nil {
			zap.L().Warn("failed to read rule details from cache, querying store", zap.Error(hashErr))
			return m.storeRules(ctx, now)
		}
		return snaps, nil
	case err == redis.Nil:
		return m.loadRules(ctx, now, 0)
	default:
		zap.L().Warn("rules cache unavailable, querying store", zap.Error(err))
		return m.storeRules(ctx, now)
	}
}

// loadRules repopulates the rules cache from the store under the reload
// mutex.  Callers that lose the mutex race wait briefly for the winner
// and re-enter the read path a bounded number of times.
func (m *CacheManager) loadRules(ctx context.Context, now time.Time, attempt int) ([]model.RuleSnapshot, error) {
	date := Ymd(now)
	mutexKey := m.keys.Mutex("rules", date)
	mutexVal := "reload_" + randomToken(8)

	if !m.lock.Acquire(ctx, mutexKey, mutexVal, mutexTTL) {
		if attempt >= reloadRetries {
			return m.storeRules(ctx, now)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(reloadWaitStep * time.Duration(attempt+1)):
		}
		// the winner should have populated the cache by now
		if raw, err := m.rdb.Get(ctx, m.keys.RulesList(date)).Result(); err == nil {
			if ids, derr := decodeIDList(raw); derr == nil {
				if len(ids) == 0 {
					return nil, nil
				}
				if snaps, herr := m.ruleDetails(ctx, ids, date); herr == nil {
					return snaps, nil
				}
			}
		}
		return m.loadRules(ctx, now, attempt+1)
	}
	defer m.lock.Release(ctx, mutexKey, mutexVal)

	// double check under the mutex
	if raw, err := m.rdb.Get(ctx, m.keys.RulesList(date)).Result(); err == nil {
		if ids, derr := decodeIDList(raw); derr == nil && len(ids) > 0 {
			if snaps, herr := m.ruleDetails(ctx, ids, date); herr == nil {
				return snaps, nil
			}
		}
	}

	rules, err := m.rules.ActiveRules(ctx, now)
	if err != nil {
		return nil, err
	}

	snaps := make([]model.RuleSnapshot, 0, len(rules))
	ids := make([]uint64, 0, len(rules))
	pipe := m.rdb.Pipeline()
	for _, r := range rules {
		snap := r.Snapshot()
		snaps = append(snaps, snap)
		ids = append(ids, r.ID)
		pipe.HSet(ctx, m.keys.RuleDetail(r.ID, date), ruleHashFields(snap))
		pipe.Expire(ctx, m.keys.RuleDetail(r.ID, date), untilTomorrow(now))
	}
	if len(ids) > 0 {
		encoded, _ := json.Marshal(ids)
		pipe.Set(ctx, m.keys.RulesList(date), string(encoded), untilTomorrow(now))
	} else {
		// cache the empty result briefly so a dry day does not hammer
		// the store
		pipe.Set(ctx, m.keys.RulesList(date), "[]", time.Minute)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		zap.L().Warn("failed to populate rules cache", zap.Error(err))
	}
	return snaps, nil
}

// GetPrize returns a single active prize by ID, serving the whole active
// collection through the cache.
func (m *CacheManager) GetPrize(ctx context.Context, prizeID uint64) (*model.Prize, error) {
	prizes, err := m.getPrizes(ctx, 0)
	if err != nil {
		return nil, err
	}
	for i := range prizes {
		if prizes[i].ID == prizeID {
			return &prizes[i], nil
		}
	}
	return nil, nil
}

func (m *CacheManager) getPrizes(ctx context.Context, attempt int) ([]model.Prize, error) {
	key := m.keys.PrizesList()
	raw, err := m.rdb.Get(ctx, key).Result()
	if err == nil {
		var prizes []model.Prize
		if jerr := json.Unmarshal([]byte(raw), &prizes); jerr == nil {
			return prizes, nil
		}
		zap.L().Warn("corrupt prizes cache, reloading")
	} else if err != redis.Nil {
		zap.L().Warn("prizes cache unavailable, querying store", zap.Error(err))
		return m.prizes.ActivePrizes(ctx)
	}

	mutexKey := m.keys.Mutex("prizes", Ymd(m.clock.Now()))
	mutexVal := "reload_" + randomToken(8)
	if !m.lock.Acquire(ctx, mutexKey, mutexVal, mutexTTL) {
		if attempt >= reloadRetries {
			return m.prizes.ActivePrizes(ctx)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(reloadWaitStep * time.Duration(attempt+1)):
		}
		return m.getPrizes(ctx, attempt+1)
	}
	defer m.lock.Release(ctx, mutexKey, mutexVal)

	// double check under the mutex
	if raw, err := m.rdb.Get(ctx, key).Result(); err == nil {
		var prizes []model.Prize
		if jerr := json.Unmarshal([]byte(raw), &prizes); jerr == nil {
			return prizes, nil
		}
	}

	prizes, err := m.prizes.ActivePrizes(ctx)
	if err != nil {
		return nil, err
	}
	if encoded, jerr := json.Marshal(prizes); jerr == nil {
		if serr := m.rdb.Set(ctx, key, string(encoded), prizesCacheTTL).Err(); serr != nil {
			zap.L().Warn("failed to populate prizes cache", zap.Error(serr))
		}
	}
	return prizes, nil
}

// ClearRules invalidates the cached rules list and, when ruleID is
// non-zero, that rule's detail hash, so administrative edits take effect
// without waiting for natural expiry.
func (m *CacheManager) ClearRules(ctx context.Context, ruleID uint64) error {
	date := Ymd(m.clock.Now())
	keys := []string{m.keys.RulesList(date)}
	if ruleID != 0 {
		keys = append(keys, m.keys.RuleDetail(ruleID, date))
	}
	return m.rdb.Del(ctx, keys...).Err()
}

// ClearPrizes invalidates the cached active-prize collection.
func (m *CacheManager) ClearPrizes(ctx context.Context) error {
	return m.rdb.Del(ctx, m.keys.PrizesList()).Err()
}

// ClearAll invalidates every collection the manager owns.
func (m *CacheManager) ClearAll(ctx context.Context) error {
	if err := m.ClearRules(ctx, 0); err != nil {
		return err
	}
	return m.ClearPrizes(ctx)
}

// ruleDetails reads the detail hashes for the given rule IDs in one
// pipelined round trip, dropping rules whose cached surplus hit zero.
func (m *CacheManager) ruleDetails(ctx context.Context, ids []uint64, date string) ([]model.RuleSnapshot, error) {
	pipe := m.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, m.keys.RuleDetail(id, date))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	snaps := make([]model.RuleSnapshot, 0, len(ids))
	for _, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil || len(fields) == 0 {
			continue
		}
		snap, ok := ruleFromHash(fields)
		if !ok || snap.SurplusNum <= 0 {
			continue
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// storeRules bypasses the cache entirely (used when Redis is down).
func (m *CacheManager) storeRules(ctx context.Context, now time.Time) ([]model.RuleSnapshot, error) {
	rules, err := m.rules.ActiveRules(ctx, now)
	if err != nil {
		return nil, err
	}
	snaps := make([]model.RuleSnapshot, 0, len(rules))
	for _, r := range rules {
		snaps = append(snaps, r.Snapshot())
	}
	return snaps, nil
}

// ruleHashFields lays a snapshot out as the detail-hash field map.
func ruleHashFields(s model.RuleSnapshot) map[string]interface{} {
	return map[string]interface{}{
		"id":          s.ID,
		"prize_id":    s.PrizeID,
		"total_num":   s.TotalNum,
		"surplus_num": s.SurplusNum,
		"weight":      strconv.FormatFloat(s.Weight, 'f', -1, 64),
	}
}

// ruleFromHash parses a detail hash back into a snapshot.
func ruleFromHash(fields map[string]string) (model.RuleSnapshot, bool) {
	var snap model.RuleSnapshot
	var err error
	if snap.ID, err = strconv.ParseUint(fields["id"], 10, 64); err != nil {
		return snap, false
	}
	if snap.PrizeID, err = strconv.ParseUint(fields["prize_id"], 10, 64); err != nil {
		return snap, false
	}
	if snap.TotalNum, err = strconv.ParseInt(fields["total_num"], 10, 64); err != nil {
		return snap, false
	}
	if snap.SurplusNum, err = strconv.ParseInt(fields["surplus_num"], 10, 64); err != nil {
		return snap, false
	}
	if snap.Weight, err = strconv.ParseFloat(fields["weight"], 64); err != nil {
		return snap, false
	}
	return snap, true
}

func decodeIDList(raw string) ([]uint64, error) {
	var ids []uint64
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// untilTomorrow returns the duration from now to the next local midnight,
// which is when day-scoped keys stop being addressed anyway.
func untilTomorrow(now time.Time) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
	return next.Sub(now)
}

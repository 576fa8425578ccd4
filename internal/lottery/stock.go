package lottery

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/leolab/lottery-engine/internal/model"
)

// decrStockScript decrements the cached surplus counter in one server-side
// step.  Reply codes:
//
//	{1, left} counter existed and was positive, decremented
//	{2, 0}    hash absent, caller must fall through to the store
//	{0, left} counter already at or below zero
var decrStockScript = redis.NewScript(`
	local surplus = redis.call('hget', KEYS[1], 'surplus_num')
	if not surplus then
		return {2, 0}
	end
	if tonumber(surplus) <= 0 then
		return {0, tonumber(surplus) or 0}
	end
	local left = redis.call('hincrby', KEYS[1], 'surplus_num', -1)
	return {1, left}
`)

// StockManager keeps the per-rule and per-prize remaining counters
// consistent across the cache and the durable store.  The store is the
// source of truth; the cache is an accelerator that may lag and is
// reconciled opportunistically.  Every mutation is either a single
// conditional SQL statement or a single Lua script, never a check-then-act
// across two round trips.
type StockManager struct {
	rdb    redis.UniversalClient
	keys   *KeyBuilder
	clock  Clock
	rules  RuleInventory
	prizes PrizeInventory
}

// NewStockManager wires the manager to the cache and the pool-bound
// inventory adapters.  Decrement calls accept an explicit inventory so
// the orchestrator can pass a transaction-bound store.
func NewStockManager(rdb redis.UniversalClient, keys *KeyBuilder, clock Clock, rules RuleInventory, prizes PrizeInventory) *StockManager {
	if clock == nil {
		clock = SystemClock{}
	}
	return &StockManager{rdb: rdb, keys: keys, clock: clock, rules: rules, prizes: prizes}
}

// CheckStock is an advisory read: cache first, store on miss or error.
// It may be stale by design and never mutates anything; DecrementStock is
// the real gate.
func (m *StockManager) CheckStock(ctx context.Context, ruleID uint64) bool {
	key := m.keys.RuleDetail(ruleID, Ymd(m.clock.Now()))
	if val, err := m.rdb.HGet(ctx, key, "surplus_num").Int64(); err == nil {
		return val > 0
	} else if err != redis.Nil {
		zap.L().Warn("redis stock check failed, falling back to store",
			zap.Uint64("rule_id", ruleID), zap.Error(err))
	}
	surplus, found, err := m.rules.RuleSurplus(ctx, ruleID)
	if err != nil {
		zap.L().Error("stock check failed", zap.Uint64("rule_id", ruleID), zap.Error(err))
		return false
	}
	return found && surplus > 0
}

// CheckPrizeStock is the advisory read for the prize-level counter.  The
// prize counter has no cache fast path; it is consulted far less often
// than rule stock.
func (m *StockManager) CheckPrizeStock(ctx context.Context, prizeID uint64) bool {
	remaining, found, err := m.prizes.PrizeRemaining(ctx, prizeID)
	if err != nil {
		zap.L().Error("prize stock check failed", zap.Uint64("prize_id", prizeID), zap.Error(err))
		return false
	}
	return found && remaining > 0
}

// DecrementStock atomically takes one unit of rule stock across both
// layers.  inv is the store adapter to decrement through (pass the
// transaction-bound store when running inside a draw commit).
//
// Sequence: cheap store guard, then the cached counter via Lua.  If the
// cache decrement succeeds but the conditional store update affects no
// rows, the cache is compensated and the call fails.  If the cache hash
// is absent, the store decrement runs alone and the hash is rebuilt in
// full from the rule snapshot, so the cache reader can parse it again.
// If the cache itself errors, the manager degrades to store-only.
func (m *StockManager) DecrementStock(ctx context.Context, inv RuleInventory, rule *model.RuleSnapshot) (bool, error) {
	surplus, found, err := inv.RuleSurplus(ctx, rule.ID)
	if err != nil {
		return false, err
	}
	if !found || surplus <= 0 {
		return false, nil
	}

	now := m.clock.Now()
	key := m.keys.RuleDetail(rule.ID, Ymd(now))
	res, err := decrStockScript.Run(ctx, m.rdb, []string{key}).Int64Slice()
	if err != nil || len(res) < 2 {
		zap.L().Warn("redis stock decrement failed, using store only",
			zap.Uint64("rule_id", rule.ID), zap.Error(err))
		return inv.DecrementRuleSurplus(ctx, rule.ID)
	}

	switch res[0] {
	case 1:
		ok, err := inv.DecrementRuleSurplus(ctx, rule.ID)
		if err != nil || !ok {
			// compensate the cache-side decrement
			if rerr := m.rdb.HIncrBy(ctx, key, "surplus_num", 1).Err(); rerr != nil {
				zap.L().Warn("failed to compensate cached stock",
					zap.Uint64("rule_id", rule.ID), zap.Error(rerr))
			}
			return false, err
		}
		return true, nil
	case 2:
		ok, err := inv.DecrementRuleSurplus(ctx, rule.ID)
		if err != nil || !ok {
			return false, err
		}
		// rebuild the full hash from the post-decrement store value so
		// the fast path and the cache reader both work from here on
		snap := *rule
		snap.SurplusNum = surplus - 1
		pipe := m.rdb.Pipeline()
		pipe.HSet(ctx, key, ruleHashFields(snap))
		pipe.Expire(ctx, key, untilTomorrow(now))
		if _, herr := pipe.Exec(ctx); herr != nil {
			zap.L().Warn("failed to initialize cached stock",
				zap.Uint64("rule_id", rule.ID), zap.Error(herr))
		}
		return true, nil
	default:
		// cached counter at or below zero
		return false, nil
	}
}

// DecrementPrizeStock takes one unit of prize stock; store only.
func (m *StockManager) DecrementPrizeStock(ctx context.Context, inv PrizeInventory, prizeID uint64) (bool, error) {
	return inv.DecrementPrizeRemaining(ctx, prizeID)
}

// RollbackStock reverses a committed rule decrement in both layers.  Used
// when a later step of the same draw fails after the decrement was
// durably applied; inventory must not be silently lost.
func (m *StockManager) RollbackStock(ctx context.Context, ruleID uint64) {
	m.RollbackStockCache(ctx, ruleID)
	if err := m.rules.IncrementRuleSurplus(ctx, ruleID); err != nil {
		zap.L().Error("failed to roll back store stock",
			zap.Uint64("rule_id", ruleID), zap.Error(err))
	}
}

// RollbackStockCache reverses only the cache-side decrement.  This is the
// right compensation when the store side is being undone by a transaction
// rollback; incrementing the store as well would double-credit.
func (m *StockManager) RollbackStockCache(ctx context.Context, ruleID uint64) {
	now := m.clock.Now()
	key := m.keys.RuleDetail(ruleID, Ymd(now))
	pipe := m.rdb.Pipeline()
	pipe.HIncrBy(ctx, key, "surplus_num", 1)
	// day-scoped key, keep it bounded even if the increment recreated it
	pipe.Expire(ctx, key, untilTomorrow(now))
	if _, err := pipe.Exec(ctx); err != nil {
		zap.L().Warn("failed to roll back cached stock",
			zap.Uint64("rule_id", ruleID), zap.Error(err))
	}
}

// RollbackPrizeStock reverses a committed prize decrement.
func (m *StockManager) RollbackPrizeStock(ctx context.Context, prizeID uint64) {
	if err := m.prizes.IncrementPrizeRemaining(ctx, prizeID); err != nil {
		zap.L().Error("failed to roll back prize stock",
			zap.Uint64("prize_id", prizeID), zap.Error(err))
	}
}

// RemainingStock reports rule stock for observability, cache first.
func (m *StockManager) RemainingStock(ctx context.Context, ruleID uint64) int64 {
	key := m.keys.RuleDetail(ruleID, Ymd(m.clock.Now()))
	if val, err := m.rdb.HGet(ctx, key, "surplus_num").Int64(); err == nil {
		return val
	}
	surplus, found, err := m.rules.RuleSurplus(ctx, ruleID)
	if err != nil || !found {
		return 0
	}
	return surplus
}

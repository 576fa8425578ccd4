package lottery

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/leolab/lottery-engine/internal/model"
)

// ServiceConfig carries the orchestrator-level knobs.  Everything else is
// configured on the injected components.
type ServiceConfig struct {
	// TestMode bypasses the peak-hour admission gate.
	TestMode bool
	// RecordThanks persists empty consolation outcomes to the store.
	// When false they are only counted by the statistics component.
	RecordThanks bool
	// LockTTL bounds how long one requester's draw may exclude the next.
	LockTTL time.Duration
	// PerfThreshold logs a warning when a draw takes longer than this.
	PerfThreshold time.Duration
}

// DrawResult is the client-facing outcome of one draw.
type DrawResult struct {
	DrawsID   string          `json:"drawsId"`
	IsWin     bool            `json:"isWin"`
	Prize     model.PrizeInfo `json:"prize"`
	Signature string          `json:"signature,omitempty"`
}

const (
	defaultLockTTL       = 30 * time.Second
	defaultPerfThreshold = 500 * time.Millisecond
	wonPrizesTTL         = 48 * time.Hour
)

// errOutOfStock aborts the draw transaction without surfacing an error to
// the caller; the orchestrator resolves it through the fallback path.
var errOutOfStock = errors.New("out of stock")

// Service composes the engine components into the end-to-end draw
// protocol.  One instance serves all requesters concurrently; the only
// serialization it enforces is per requester, through the distributed
// lock.
type Service struct {
	store     Store
	rdb       redis.UniversalClient
	keys      *KeyBuilder
	clock     Clock
	cache     *CacheManager
	lock      *LockManager
	selector  *WeightedSelector
	strategy  DistributionStrategy
	stock     *StockManager
	fallback  *FallbackProvider
	anticheat *AntiCheat
	stats     *Statistics
	encoder   *DrawIDEncoder
	observers []Observer
	cfg       ServiceConfig
}

// NewService wires the orchestrator.  encoder may be nil, in which case
// public draw identifiers are opaque random tokens instead of encoded
// sequential keys.
func NewService(
	store Store,
	rdb redis.UniversalClient,
	keys *KeyBuilder,
	clock Clock,
	cache *CacheManager,
	lock *LockManager,
	selector *WeightedSelector,
	strategy DistributionStrategy,
	stock *StockManager,
	fallback *FallbackProvider,
	anticheat *AntiCheat,
	stats *Statistics,
	encoder *DrawIDEncoder,
	cfg ServiceConfig,
) *Service {
	if clock == nil {
		clock = SystemClock{}
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	if cfg.PerfThreshold <= 0 {
		cfg.PerfThreshold = defaultPerfThreshold
	}
	return &Service{
		store:     store,
		rdb:       rdb,
		keys:      keys,
		clock:     clock,
		cache:     cache,
		lock:      lock,
		selector:  selector,
		strategy:  strategy,
		stock:     stock,
		fallback:  fallback,
		anticheat: anticheat,
		stats:     stats,
		encoder:   encoder,
		cfg:       cfg,
	}
}

// AddObserver registers an outcome observer.  Not safe to call after the
// service starts taking draws.
func (s *Service) AddObserver(o Observer) {
	if o != nil {
		s.observers = append(s.observers, o)
	}
}

// Draw runs one complete draw.  Validation failures and an invalid nonce
// are surfaced as errors; every contention or availability condition
// resolves through the consolation path, so a valid request always gets a
// result.
func (s *Service) Draw(ctx context.Context, requesterID, sourceIP, nonce string) (*DrawResult, error) {
	start := s.clock.Now()

	if err := ValidateRequesterID(requesterID); err != nil {
		return nil, err
	}
	if err := ValidateSourceIP(sourceIP); err != nil {
		return nil, err
	}
	if nonce != "" && !s.anticheat.VerifyNonce(ctx, requesterID, nonce) {
		return nil, newError(CodeInvalidNonce, "nonce invalid or already used", nil)
	}

	lockKey := s.keys.Lock(requesterID)
	lockValue := "lock_" + randomToken(16)
	if !s.lock.Acquire(ctx, lockKey, lockValue, s.cfg.LockTTL) {
		// contention is "try again later", not an error
		return s.finish(s.fallbackDraw(ctx, requesterID, sourceIP), start)
	}
	defer s.lock.Release(ctx, lockKey, lockValue)

	s.anticheat.RecordDrawRequest(ctx, requesterID, sourceIP)

	rules, err := s.cache.GetRules(ctx)
	if err != nil {
		zap.L().Error("rule lookup failed", zap.String("requester_id", requesterID), zap.Error(err))
		return s.finish(s.fallbackDraw(ctx, requesterID, sourceIP), start)
	}

	rule := s.selector.Select(rules)
	if rule == nil {
		return s.finish(s.fallbackDraw(ctx, requesterID, sourceIP), start)
	}
	if !s.stock.CheckStock(ctx, rule.ID) {
		return s.finish(s.fallbackDraw(ctx, requesterID, sourceIP), start)
	}

	prize, err := s.cache.GetPrize(ctx, rule.PrizeID)
	if err != nil || prize == nil {
		if err != nil {
			zap.L().Error("prize lookup failed", zap.Uint64("prize_id", rule.PrizeID), zap.Error(err))
		}
		return s.finish(s.fallbackDraw(ctx, requesterID, sourceIP), start)
	}

	if !s.cfg.TestMode && !s.strategy.CanDistribute(ctx, rule.PrizeID, rule.TotalNum) {
		return s.finish(s.fallbackDraw(ctx, requesterID, sourceIP), start)
	}

	result, err := s.commitWin(ctx, requesterID, sourceIP, rule, prize)
	if errors.Is(err, errOutOfStock) {
		return s.finish(s.fallbackDraw(ctx, requesterID, sourceIP), start)
	}
	if err != nil {
		return nil, newError(CodeDrawFailed, "draw failed, retry later", err)
	}
	return s.finish(result, start)
}

// commitWin applies the winning path: rule and prize decrement plus the
// ledger row in one store transaction, with the cache-side counter
// compensated if the transaction does not commit.
func (s *Service) commitWin(ctx context.Context, requesterID, sourceIP string, rule *model.RuleSnapshot, prize *model.Prize) (*DrawResult, error) {
	rec := &model.DrawRecord{
		RequesterID: requesterID,
		PrizeID:     prize.ID,
		Type:        prize.Type,
		IP:          sourceIP,
		RuleID:      rule.ID,
		CreatedAt:   s.clock.Now(),
	}
	var publicID string
	ruleDecremented := false

	err := s.store.InTx(ctx, func(tx TxStore) error {
		ok, err := s.stock.DecrementStock(ctx, tx, rule)
		if err != nil {
			return err
		}
		if !ok {
			return errOutOfStock
		}
		ruleDecremented = true

		ok, err = s.stock.DecrementPrizeStock(ctx, tx, prize.ID)
		if err != nil {
			return err
		}
		if !ok {
			return errOutOfStock
		}

		if err := tx.InsertDraw(ctx, rec); err != nil {
			return err
		}
		publicID = s.publicDrawID(rec.ID)
		rec.DrawsID = publicID
		return tx.SetDrawPublicID(ctx, rec.ID, publicID)
	})
	if err != nil {
		if ruleDecremented {
			// the tx undid the store side; only the cached counter needs
			// compensation
			s.stock.RollbackStockCache(ctx, rule.ID)
		}
		return nil, err
	}

	s.strategy.RecordDistribution(ctx, prize.ID)
	s.recordWonPrize(ctx, requesterID, prize.ID)
	s.notify(ctx, outcomeFromRecord(rec, publicID, prize.Name, false))

	return &DrawResult{
		DrawsID:   publicID,
		IsWin:     true,
		Prize:     prize.Info(),
		Signature: s.anticheat.SignResult(publicID, requesterID, prize.ID, prize.Name, prize.Type),
	}, nil
}

// fallbackDraw resolves the consolation path.  It always returns a
// result; persistence of the empty thanks outcome is configurable, every
// real consolation prize is always persisted.
func (s *Service) fallbackDraw(ctx context.Context, requesterID, sourceIP string) *DrawResult {
	fp := s.fallback.Pick(s.wonPrizes(ctx, requesterID))

	rec := &model.DrawRecord{
		RequesterID: requesterID,
		PrizeID:     fp.ID,
		Type:        fp.Type,
		IP:          sourceIP,
		RuleID:      0,
		CreatedAt:   s.clock.Now(),
	}

	var publicID string
	if fp.ID > 0 || s.cfg.RecordThanks {
		err := s.store.InTx(ctx, func(tx TxStore) error {
			if err := tx.InsertDraw(ctx, rec); err != nil {
				return err
			}
			publicID = s.publicDrawID(rec.ID)
			rec.DrawsID = publicID
			return tx.SetDrawPublicID(ctx, rec.ID, publicID)
		})
		if err != nil {
			zap.L().Error("failed to persist consolation outcome",
				zap.String("requester_id", requesterID), zap.Error(err))
			publicID = s.randomDrawID()
			rec.DrawsID = publicID
		}
	} else {
		publicID = s.randomDrawID()
		rec.DrawsID = publicID
	}

	if fp.ID > 0 {
		s.recordWonPrize(ctx, requesterID, fp.ID)
	} else {
		s.stats.RecordThanks(ctx, requesterID)
	}
	s.notify(ctx, outcomeFromRecord(rec, publicID, fp.Name, true))

	return &DrawResult{
		DrawsID:   publicID,
		IsWin:     false,
		Prize:     fp.Info(),
		Signature: s.anticheat.SignResult(publicID, requesterID, fp.ID, fp.Name, fp.Type),
	}
}

// VerifyDraw checks a client-side claim against the ledger.  The public
// identifier is decoded when the encoder is wired, otherwise matched
// literally; a requester mismatch is reported as not-found so the
// endpoint does not confirm foreign draw identifiers exist.
func (s *Service) VerifyDraw(ctx context.Context, publicDrawID, requesterID, signature string) (*model.DrawRecord, error) {
	if err := ValidateRequesterID(requesterID); err != nil {
		return nil, err
	}
	if publicDrawID == "" {
		return nil, newError(CodeNotFound, "draw not found", nil)
	}

	var rec *model.DrawRecord
	var err error
	if s.encoder != nil {
		if id, ok := s.encoder.Decode(publicDrawID); ok {
			rec, err = s.store.FindDrawByID(ctx, id)
		}
	}
	if rec == nil && err == nil {
		rec, err = s.store.FindDrawByPublicID(ctx, publicDrawID)
	}
	if err != nil {
		return nil, newError(CodeDrawFailed, "verification unavailable, retry later", err)
	}
	if rec == nil || rec.RequesterID != requesterID {
		return nil, newError(CodeNotFound, "draw not found", nil)
	}

	if signature != "" && s.anticheat.SigningEnabled() {
		prizeName := ""
		if rec.PrizeID > 0 {
			if prize, perr := s.cache.GetPrize(ctx, rec.PrizeID); perr == nil && prize != nil {
				prizeName = prize.Name
			}
		}
		if !s.anticheat.VerifySignature(rec.DrawsID, requesterID, rec.PrizeID, prizeName, rec.Type, signature) {
			return nil, newError(CodeNotFound, "draw not found", nil)
		}
	}
	return rec, nil
}

// GenerateNonce issues a single-use draw token for the requester.
func (s *Service) GenerateNonce(ctx context.Context, requesterID string) (string, error) {
	if err := ValidateRequesterID(requesterID); err != nil {
		return "", err
	}
	return s.anticheat.GenerateNonce(ctx, requesterID)
}

// RequesterStats aggregates the per-requester counters.
func (s *Service) RequesterStats(ctx context.Context, requesterID string) (*RequesterStats, error) {
	if err := ValidateRequesterID(requesterID); err != nil {
		return nil, err
	}
	return s.stats.RequesterSummary(ctx, s.anticheat, requesterID)
}

// ClearPrizeCache invalidates every cached collection after out-of-band
// edits to rules or prizes.
func (s *Service) ClearPrizeCache(ctx context.Context) error {
	return s.cache.ClearAll(ctx)
}

// ClearRuleCache invalidates the cached rule list and, when ruleID is
// non-zero, that rule's detail record.
func (s *Service) ClearRuleCache(ctx context.Context, ruleID uint64) error {
	return s.cache.ClearRules(ctx, ruleID)
}

// ClearPrizeList invalidates only the cached active-prize collection.
func (s *Service) ClearPrizeList(ctx context.Context) error {
	return s.cache.ClearPrizes(ctx)
}

// RuleStock reports a rule's remaining stock for today, cache first.
func (s *Service) RuleStock(ctx context.Context, ruleID uint64) int64 {
	return s.stock.RemainingStock(ctx, ruleID)
}

func (s *Service) publicDrawID(id uint64) string {
	if s.encoder != nil {
		if encoded := s.encoder.Encode(id); encoded != "" {
			return encoded
		}
	}
	return s.randomDrawID()
}

// randomDrawID builds an opaque public identifier: 8 hex chars of the
// current unix time over 24 hex random chars.  The timestamp prefix keeps
// identifiers roughly sortable for operators without leaking the
// sequential key.
func (s *Service) randomDrawID() string {
	return fmt.Sprintf("%08x%s", uint32(s.clock.Now().Unix()), randomToken(12))
}

// wonPrizes returns the prize IDs the requester has already won today,
// from the cache-side append-only list.  Unreadable means empty; the
// consolation pick then simply allows repeats.
func (s *Service) wonPrizes(ctx context.Context, requesterID string) []uint64 {
	key := s.keys.UserDraws(requesterID, Ymd(s.clock.Now()))
	vals, err := s.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil && err != redis.Nil {
		zap.L().Warn("failed to read won-prize list",
			zap.String("requester_id", requesterID), zap.Error(err))
		return nil
	}
	ids := make([]uint64, 0, len(vals))
	for _, v := range vals {
		if id, perr := strconv.ParseUint(v, 10, 64); perr == nil && id > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *Service) recordWonPrize(ctx context.Context, requesterID string, prizeID uint64) {
	key := s.keys.UserDraws(requesterID, Ymd(s.clock.Now()))
	pipe := s.rdb.Pipeline()
	pipe.RPush(ctx, key, strconv.FormatUint(prizeID, 10))
	pipe.Expire(ctx, key, wonPrizesTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		zap.L().Warn("failed to record won prize",
			zap.String("requester_id", requesterID), zap.Error(err))
	}
}

func (s *Service) notify(ctx context.Context, outcome DrawOutcome) {
	for _, o := range s.observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					zap.L().Error("draw observer panicked", zap.Any("panic", r))
				}
			}()
			o.DrawCompleted(ctx, outcome)
		}()
	}
}

// finish logs slow draws against the configured threshold.
func (s *Service) finish(result *DrawResult, start time.Time) (*DrawResult, error) {
	elapsed := s.clock.Now().Sub(start)
	if elapsed > s.cfg.PerfThreshold {
		zap.L().Warn("slow draw",
			zap.String("draws_id", result.DrawsID),
			zap.Duration("elapsed", elapsed))
	}
	return result, nil
}

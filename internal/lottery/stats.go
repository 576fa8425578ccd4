package lottery

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// incrWithExpireScript increments a counter and sets its TTL only on
// first write, so repeated bumps never push the expiry forward.
var incrWithExpireScript = redis.NewScript(`
	local n = redis.call('incr', KEYS[1])
	if n == 1 and tonumber(ARGV[1]) > 0 then
		redis.call('expire', KEYS[1], ARGV[1])
	end
	return n
`)

// WinCounter is the one ledger capability the statistics component
// needs.  Satisfied by the full store.
type WinCounter interface {
	CountWins(ctx context.Context, requesterID string, since, until time.Time) (int64, error)
}

// Statistics accumulates draw-outcome counters.  All writes are best
// effort: losing a counter bump must never fail a draw.
type Statistics struct {
	rdb     redis.UniversalClient
	keys    *KeyBuilder
	clock   Clock
	ledger  WinCounter
	enabled bool
}

// NewStatistics wires the counters.  When enabled is false the thanks
// counters are skipped entirely but read paths still work.
func NewStatistics(rdb redis.UniversalClient, keys *KeyBuilder, clock Clock, ledger WinCounter, enabled bool) *Statistics {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Statistics{rdb: rdb, keys: keys, clock: clock, ledger: ledger, enabled: enabled}
}

const dailyStatTTL = 7 * 24 * time.Hour

// RecordThanks bumps the requester's daily and running thanks counters
// plus the global ones.
func (s *Statistics) RecordThanks(ctx context.Context, requesterID string) {
	if !s.enabled {
		return
	}
	date := Ymd(s.clock.Now())
	daily := []string{
		s.keys.ThanksStats(requesterID, date),
		s.keys.GlobalThanksStats(date),
	}
	totals := []string{
		s.keys.ThanksStats(requesterID, ""),
		s.keys.GlobalThanksStats(""),
	}
	ttl := int64(dailyStatTTL / time.Second)
	for _, key := range daily {
		if err := incrWithExpireScript.Run(ctx, s.rdb, []string{key}, ttl).Err(); err != nil {
			zap.L().Warn("failed to bump thanks counter", zap.String("key", key), zap.Error(err))
		}
	}
	for _, key := range totals {
		if err := s.rdb.Incr(ctx, key).Err(); err != nil {
			zap.L().Warn("failed to bump thanks counter", zap.String("key", key), zap.Error(err))
		}
	}
}

// ThanksCount returns the requester's thanks count, daily or running
// total when day is zero.
func (s *Statistics) ThanksCount(ctx context.Context, requesterID string, day time.Time) int64 {
	date := ""
	if !day.IsZero() {
		date = Ymd(day)
	}
	n, err := s.rdb.Get(ctx, s.keys.ThanksStats(requesterID, date)).Int64()
	if err != nil && err != redis.Nil {
		zap.L().Warn("failed to read thanks counter",
			zap.String("requester_id", requesterID), zap.Error(err))
	}
	return n
}

// GlobalThanksCount returns the global thanks count, daily or running
// total when day is zero.
func (s *Statistics) GlobalThanksCount(ctx context.Context, day time.Time) int64 {
	date := ""
	if !day.IsZero() {
		date = Ymd(day)
	}
	n, err := s.rdb.Get(ctx, s.keys.GlobalThanksStats(date)).Int64()
	if err != nil && err != redis.Nil {
		zap.L().Warn("failed to read global thanks counter", zap.Error(err))
	}
	return n
}

// WinCount counts the requester's winning draws on a given day from the
// durable ledger.
func (s *Statistics) WinCount(ctx context.Context, requesterID string, day time.Time) (int64, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return s.ledger.CountWins(ctx, requesterID, start, start.AddDate(0, 0, 1))
}

// RequesterStats is the aggregate exposed on the stats endpoint.
type RequesterStats struct {
	RequesterID string `json:"requesterId"`
	DrawsToday  int64  `json:"drawsToday"`
	WinsToday   int64  `json:"winsToday"`
	ThanksToday int64  `json:"thanksToday"`
	ThanksTotal int64  `json:"thanksTotal"`
}

// RequesterSummary gathers all counters for one requester.  Cache-side
// counters degrade to zero on outage; the win count comes from the
// ledger and surfaces its error.
func (s *Statistics) RequesterSummary(ctx context.Context, anticheat *AntiCheat, requesterID string) (*RequesterStats, error) {
	now := s.clock.Now()
	wins, err := s.WinCount(ctx, requesterID, now)
	if err != nil {
		return nil, err
	}
	return &RequesterStats{
		RequesterID: requesterID,
		DrawsToday:  anticheat.RequestCount(ctx, requesterID, now),
		WinsToday:   wins,
		ThanksToday: s.ThanksCount(ctx, requesterID, now),
		ThanksTotal: s.ThanksCount(ctx, requesterID, time.Time{}),
	}, nil
}

package lottery

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DistributionStrategy decides whether one more unit of a prize may be
// issued right now, independent of raw inventory, and records issuance
// after the fact.
type DistributionStrategy interface {
	CanDistribute(ctx context.Context, prizeID uint64, total int64) bool
	RecordDistribution(ctx context.Context, prizeID uint64)
}

// DefaultHotHours is the default peak window, 09:00 through 21:59.
var DefaultHotHours = []int{9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21}

// PeakHoursStrategy rate-shapes issuance across the day.  Inside a hot
// hour the full remaining quantity is spread evenly over the hot hours
// still ahead; outside hot hours only OffPeakRatio of the remaining
// quantity is spread over the off-peak hours still ahead.  Once the day
// is past its last hot hour everything left is admitted unconditionally.
//
// Issuance counts live in a per-prize, per-day Redis hash bucketed by
// hour, mutated with HINCRBY so concurrent draws never read-modify-write.
type PeakHoursStrategy struct {
	rdb          redis.UniversalClient
	keys         *KeyBuilder
	clock        Clock
	hotHours     []int
	peakRatio    float64
	offPeakRatio float64
}

// NewPeakHoursStrategy builds the strategy.  An empty hotHours selects
// DefaultHotHours; ratios outside (0, 1] fall back to 1.0 and 0.2.
func NewPeakHoursStrategy(rdb redis.UniversalClient, keys *KeyBuilder, clock Clock, hotHours []int, peakRatio, offPeakRatio float64) *PeakHoursStrategy {
	if len(hotHours) == 0 {
		hotHours = DefaultHotHours
	}
	// index arithmetic below assumes ascending hours
	hotHours = append([]int(nil), hotHours...)
	sort.Ints(hotHours)
	if peakRatio <= 0 || peakRatio > 1 {
		peakRatio = 1.0
	}
	if offPeakRatio <= 0 || offPeakRatio > 1 {
		offPeakRatio = 0.2
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &PeakHoursStrategy{
		rdb:          rdb,
		keys:         keys,
		clock:        clock,
		hotHours:     hotHours,
		peakRatio:    peakRatio,
		offPeakRatio: offPeakRatio,
	}
}

// CanDistribute reports whether the current hour may still emit one more
// unit of the prize given the day's cumulative issuance.  A cache error
// reads as "nothing issued yet": denying on outage would stall every
// draw, and the stock manager still enforces the hard cap.
func (s *PeakHoursStrategy) CanDistribute(ctx context.Context, prizeID uint64, total int64) bool {
	now := s.clock.Now()
	counts := s.hourCounts(ctx, prizeID, now)
	curHour := now.Hour()

	var daySum int64
	for _, n := range counts {
		daySum += n
	}
	if daySum >= total {
		return false
	}
	residue := total - daySum

	var hourMax int64
	if idx := indexOf(s.hotHours, curHour); idx >= 0 {
		if _, issued := counts[curHour]; !issued {
			// first issuance of this hot hour, let it through
			return true
		}
		residueHours := len(s.hotHours) - idx
		if residueHours == 1 {
			// the last hot hour admits whatever is left
			return true
		}
		hourMax = int64(float64(residue) * s.peakRatio / float64(residueHours))
	} else {
		if curHour > s.hotHours[len(s.hotHours)-1] {
			// past the peak window, no point holding stock back
			return true
		}
		offPeak := offPeakHours(s.hotHours)
		idx := indexOf(offPeak, curHour)
		residueHours := len(offPeak) - idx
		if residueHours <= 0 {
			residueHours = 1
		}
		hourMax = int64(float64(residue) * s.offPeakRatio / float64(residueHours))
	}

	if hourMax <= 0 {
		return false
	}
	if counts[curHour] >= hourMax {
		return false
	}
	return true
}

// RecordDistribution increments the current hour's bucket after a
// successful award.  Best effort: the draw already succeeded, so a cache
// failure here is only logged.
func (s *PeakHoursStrategy) RecordDistribution(ctx context.Context, prizeID uint64) {
	now := s.clock.Now()
	key := s.keys.PrizeDistribution(prizeID, Ymd(now))
	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, key, strconv.Itoa(now.Hour()), 1)
	pipe.Expire(ctx, key, 48*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		zap.L().Warn("failed to record distribution",
			zap.Uint64("prize_id", prizeID), zap.Error(err))
	}
}

// hourCounts loads today's hour->count buckets for the prize.
func (s *PeakHoursStrategy) hourCounts(ctx context.Context, prizeID uint64, now time.Time) map[int]int64 {
	key := s.keys.PrizeDistribution(prizeID, Ymd(now))
	raw, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		zap.L().Warn("failed to read distribution counters",
			zap.Uint64("prize_id", prizeID), zap.Error(err))
		return map[int]int64{}
	}
	counts := make(map[int]int64, len(raw))
	for field, val := range raw {
		h, err := strconv.Atoi(field)
		if err != nil || h < 0 || h > 23 {
			continue
		}
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			continue
		}
		counts[h] = n
	}
	return counts
}

func indexOf(hours []int, h int) int {
	for i, v := range hours {
		if v == h {
			return i
		}
	}
	return -1
}

// offPeakHours returns the hours of the day not in hot, ascending.
func offPeakHours(hot []int) []int {
	hotSet := make(map[int]bool, len(hot))
	for _, h := range hot {
		hotSet[h] = true
	}
	out := make([]int, 0, 24-len(hot))
	for h := 0; h < 24; h++ {
		if !hotSet[h] {
			out = append(out, h)
		}
	}
	return out
}

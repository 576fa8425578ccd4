package config

import (
	"encoding/json"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/leolab/lottery-engine/internal/model"
)

// LotteryConfig holds every engine-level knob.  All values have defaults
// so a bare environment runs with sane behavior; only the signing secret
// and fallback prize list are deployment specific.
type LotteryConfig struct {
	Prefix            string                // cache key prefix
	TestMode          bool                  // bypass the peak-hour admission gate
	RecordThanks      bool                  // persist empty consolation outcomes
	EnableThanksStats bool                  // count thanks outcomes in the cache
	HotHours          []int                 // peak hours, ascending
	PeakRatio         float64               // share of remaining stock per peak hour
	OffPeakRatio      float64               // share of remaining stock outside peak hours
	NoPrizeWeight     float64               // explicit non-winning weight band (0 disables)
	FallbackPrizes    []model.FallbackPrize // consolation prize pool
	AntiCheatSecret   string                // HMAC signing key (empty disables signing)
	NonceTTL          time.Duration         // lifetime of an issued nonce
	EncoderEnabled    bool                  // encode sequential draw IDs
	EncoderKey        uint32                // Feistel round key
	EncoderMinLen     int                   // minimum encoded identifier length
	LockTTL           time.Duration         // per-requester draw lock lifetime
	PerfThreshold     time.Duration         // slow-draw log threshold
}

// LoadLotteryConfig reads the engine knobs from environment variables.
// A malformed fallback-prize list is fatal: silently dropping the
// consolation pool would change every losing outcome.
func LoadLotteryConfig() LotteryConfig {
	cfg := LotteryConfig{
		Prefix:            envStr("LOTTERY_KEY_PREFIX", "lottery"),
		TestMode:          envBool("LOTTERY_TEST_MODE", false),
		RecordThanks:      envBool("LOTTERY_RECORD_THANKS", true),
		EnableThanksStats: envBool("LOTTERY_THANKS_STATS", true),
		HotHours:          parseHours(envStr("LOTTERY_HOT_HOURS", "9-21")),
		PeakRatio:         envFloat("LOTTERY_PEAK_RATIO", 1.0),
		OffPeakRatio:      envFloat("LOTTERY_OFF_PEAK_RATIO", 0.2),
		NoPrizeWeight:     envFloat("LOTTERY_NO_PRIZE_WEIGHT", 0),
		AntiCheatSecret:   os.Getenv("LOTTERY_SIGNING_SECRET"),
		NonceTTL:          envDur("LOTTERY_NONCE_TTL", 5*time.Minute),
		EncoderEnabled:    envBool("LOTTERY_ENCODER_ENABLED", true),
		EncoderKey:        envHexKey("LOTTERY_ENCODER_KEY"),
		EncoderMinLen:     envInt("LOTTERY_ENCODER_MIN_LEN", 8),
		LockTTL:           envDur("LOTTERY_LOCK_TTL", 30*time.Second),
		PerfThreshold:     envDur("LOTTERY_PERF_THRESHOLD", 500*time.Millisecond),
	}
	if raw := os.Getenv("LOTTERY_FALLBACK_PRIZES"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg.FallbackPrizes); err != nil {
			log.Fatalf("invalid LOTTERY_FALLBACK_PRIZES: %v", err)
		}
	}
	return cfg
}

// parseHours accepts either a comma list ("9,10,11") or a range ("9-21")
// and returns the hours sorted and deduplicated.  Out-of-range entries
// are dropped.
func parseHours(s string) []int {
	seen := map[int]bool{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			a, errA := strconv.Atoi(strings.TrimSpace(lo))
			b, errB := strconv.Atoi(strings.TrimSpace(hi))
			if errA != nil || errB != nil {
				continue
			}
			for h := a; h <= b; h++ {
				if h >= 0 && h <= 23 {
					seen[h] = true
				}
			}
			continue
		}
		if h, err := strconv.Atoi(part); err == nil && h >= 0 && h <= 23 {
			seen[h] = true
		}
	}
	hours := make([]int, 0, len(seen))
	for h := range seen {
		hours = append(hours, h)
	}
	sort.Ints(hours)
	return hours
}

func envHexKey(k string) uint32 {
	v := strings.TrimPrefix(os.Getenv(k), "0x")
	if v == "" {
		return 0 // encoder falls back to its built-in key
	}
	n, err := strconv.ParseUint(v, 16, 32)
	if err != nil {
		log.Fatalf("invalid hex key for %s: %q", k, v)
	}
	return uint32(n)
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envFloat(k string, d float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}

package lottery

import (
	"math"
	"math/rand"
	"strconv"
	"strings"

	"github.com/leolab/lottery-engine/internal/model"
)

// WeightedSelector picks one rule from a weighted population, or nothing.
// Fractional weights are handled by scaling every weight with the smallest
// power of ten that makes them all integers, so the cumulative walk never
// accumulates floating-point drift.  The draw is uniform over
// [1, max(100·factor, total scaled weight)]: when the configured weights
// sum to less than that ceiling, the excess band is an implicit
// "no award" outcome.  NoPrizeWeight widens that band explicitly.
type WeightedSelector struct {
	// NoPrizeWeight is an optional explicit non-winning weight band,
	// expressed in the same units as rule weights.  Zero disables it.
	NoPrizeWeight float64

	// randInt draws a uniform integer in [1, n].  Overridable in tests.
	randInt func(n int64) int64
}

// NewWeightedSelector builds a selector with the given explicit no-prize
// band (0 for none).
func NewWeightedSelector(noPrizeWeight float64) *WeightedSelector {
	return &WeightedSelector{
		NoPrizeWeight: noPrizeWeight,
		randInt:       func(n int64) int64 { return rand.Int63n(n) + 1 },
	}
}

// Select returns the chosen rule, or nil when the set is empty, all
// weights are zero, or the draw lands in the non-winning band.  Ties
// resolve to the first rule in iteration order whose cumulative weight
// covers the draw.  Select does not look at inventory; that is the stock
// manager's job.
func (s *WeightedSelector) Select(rules []model.RuleSnapshot) *model.RuleSnapshot {
	if len(rules) == 0 {
		return nil
	}

	weights := make([]float64, 0, len(rules)+1)
	for _, r := range rules {
		weights = append(weights, r.Weight)
	}
	if s.NoPrizeWeight > 0 {
		weights = append(weights, s.NoPrizeWeight)
	}
	factor := scaleFactor(weights)

	scaled := make([]int64, len(rules))
	var sum int64
	for i, r := range rules {
		scaled[i] = int64(math.Round(r.Weight * float64(factor)))
		sum += scaled[i]
	}
	if sum <= 0 {
		return nil
	}
	total := sum + int64(math.Round(s.NoPrizeWeight*float64(factor)))

	maxRand := 100 * factor
	if total > maxRand {
		maxRand = total
	}

	draw := s.randInt(maxRand)
	var running int64
	for i := range rules {
		running += scaled[i]
		if running >= draw {
			picked := rules[i]
			return &picked
		}
	}
	return nil
}

// scaleFactor returns the smallest power of ten that turns every weight
// into an integer, capped at 10^8 to keep the scaled sum well inside
// int64 range.
func scaleFactor(weights []float64) int64 {
	factor := int64(1)
	for _, w := range weights {
		d := decimalDigits(w)
		f := int64(math.Pow10(d))
		if f > factor {
			factor = f
		}
	}
	return factor
}

// decimalDigits counts significant fraction digits of w, ignoring
// trailing zeros.
func decimalDigits(w float64) int {
	s := strconv.FormatFloat(w, 'f', -1, 64)
	dot := strings.IndexByte(s, '.')
	if dot < 0 {
		return 0
	}
	frac := strings.TrimRight(s[dot+1:], "0")
	if len(frac) > 8 {
		return 8
	}
	return len(frac)
}

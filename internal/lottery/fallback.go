package lottery

import (
	"math/rand"
	"sync"

	"github.com/leolab/lottery-engine/internal/model"
)

// FallbackProvider hands out consolation prizes when the weighted draw
// lands on the no-prize band or a selected prize runs out mid-draw.
// Fallback prizes live in configuration, not in inventory, so they can
// never be exhausted.
type FallbackProvider struct {
	mu      sync.Mutex
	prizes  []model.FallbackPrize
	randInt func(int64) int64
}

// NewFallbackProvider copies the configured prize list.  An empty list is
// valid; Pick then returns a bare thanks result.
func NewFallbackProvider(prizes []model.FallbackPrize) *FallbackProvider {
	cp := make([]model.FallbackPrize, len(prizes))
	copy(cp, prizes)
	return &FallbackProvider{
		prizes:  cp,
		randInt: func(n int64) int64 { return rand.Int63n(n) + 1 },
	}
}

// Pick chooses a consolation prize by weight, skipping any prize the
// requester has already won.  When every configured entry is excluded
// the first entry serves as the ultimate default; the thanks
// placeholder is reserved for an empty pool.  A draw always resolves
// to something.
func (p *FallbackProvider) Pick(wonPrizeIDs []uint64) model.FallbackPrize {
	won := make(map[uint64]struct{}, len(wonPrizeIDs))
	for _, id := range wonPrizeIDs {
		won[id] = struct{}{}
	}

	var candidates []model.FallbackPrize
	var total int64
	for _, fp := range p.prizes {
		if fp.Weight <= 0 {
			continue
		}
		if _, dup := won[fp.ID]; dup {
			continue
		}
		candidates = append(candidates, fp)
		total += fp.Weight
	}
	if len(candidates) == 0 || total <= 0 {
		if len(p.prizes) > 0 {
			return p.prizes[0]
		}
		return thanksPrize()
	}

	p.mu.Lock()
	n := p.randInt(total)
	p.mu.Unlock()

	var cum int64
	for _, fp := range candidates {
		cum += fp.Weight
		if n <= cum {
			return fp
		}
	}
	return candidates[len(candidates)-1]
}

// Empty reports whether any fallback prize is configured at all.
func (p *FallbackProvider) Empty() bool { return len(p.prizes) == 0 }

func thanksPrize() model.FallbackPrize {
	return model.FallbackPrize{
		ID:   0,
		Name: "Thanks for participating",
		Type: model.PrizeTypeThanks,
	}
}

// Package lottery implements the draw-orchestration engine: the
// per-requester distributed lock, the dual-layer stock manager, the
// weighted selector, the peak-hour admission strategy, the stampede-safe
// cache manager, the fallback allocator, the anti-replay/signature module
// and the orchestrator that composes them.  The package depends only on
// the capability interfaces below plus a Redis client; concrete adapters
// are injected at the composition root.
package lottery

import (
	"context"
	"time"

	"github.com/leolab/lottery-engine/internal/model"
)

// RuleSource loads the rules that may participate in a draw at a given
// instant.  Implemented by the MySQL repository.
type RuleSource interface {
	ActiveRules(ctx context.Context, at time.Time) ([]model.PrizeRule, error)
}

// PrizeSource loads the prizes that still have stock.
type PrizeSource interface {
	ActivePrizes(ctx context.Context) ([]model.Prize, error)
}

// RuleInventory exposes the durable-store side of rule stock.  The
// decrement is conditional (`WHERE surplus_num > 0`) and reports whether a
// row was actually affected.
type RuleInventory interface {
	RuleSurplus(ctx context.Context, ruleID uint64) (surplus int64, found bool, err error)
	DecrementRuleSurplus(ctx context.Context, ruleID uint64) (bool, error)
	IncrementRuleSurplus(ctx context.Context, ruleID uint64) error
}

// PrizeInventory mirrors RuleInventory for the prize-level counter.
type PrizeInventory interface {
	PrizeRemaining(ctx context.Context, prizeID uint64) (remaining int64, found bool, err error)
	DecrementPrizeRemaining(ctx context.Context, prizeID uint64) (bool, error)
	IncrementPrizeRemaining(ctx context.Context, prizeID uint64) error
}

// DrawLedger persists and looks up draw records.  InsertDraw assigns the
// sequential key to rec.ID; SetDrawPublicID backfills the public
// identifier once it has been derived from that key.
type DrawLedger interface {
	InsertDraw(ctx context.Context, rec *model.DrawRecord) error
	SetDrawPublicID(ctx context.Context, id uint64, publicID string) error
	FindDrawByID(ctx context.Context, id uint64) (*model.DrawRecord, error)
	FindDrawByPublicID(ctx context.Context, publicID string) (*model.DrawRecord, error)
	CountWins(ctx context.Context, requesterID string, since, until time.Time) (int64, error)
}

// TxStore is the slice of store capabilities available inside a single
// durable-store transaction.
type TxStore interface {
	RuleInventory
	PrizeInventory
	DrawLedger
}

// Store is the full durable-store contract the engine needs.  InTx runs fn
// inside one transaction: every write made through the TxStore it receives
// commits or rolls back atomically, so a crash mid-draw cannot leave a
// half-applied state in the store.
type Store interface {
	RuleSource
	PrizeSource
	TxStore
	InTx(ctx context.Context, fn func(tx TxStore) error) error
}

// Clock abstracts wall-clock access so that day-boundary keys and
// peak-hour decisions are testable.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time { return time.Now() }

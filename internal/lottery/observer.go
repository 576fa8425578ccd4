package lottery

import (
	"context"

	"github.com/leolab/lottery-engine/internal/model"
)

// DrawOutcome is the immutable summary handed to observers after a draw
// resolves, win or not.
type DrawOutcome struct {
	DrawsID     string
	RequesterID string
	SourceIP    string
	Won         bool
	PrizeID     uint64
	PrizeName   string
	PrizeType   int
	RuleID      uint64
	Fallback    bool
}

// Observer receives draw outcomes after the result is durable.  Observer
// failures are logged and never affect the draw; implementations should
// return quickly or buffer internally.
type Observer interface {
	DrawCompleted(ctx context.Context, outcome DrawOutcome)
}

// NopObserver discards every outcome.
type NopObserver struct{}

func (NopObserver) DrawCompleted(context.Context, DrawOutcome) {}

func outcomeFromRecord(rec *model.DrawRecord, publicID, name string, fallback bool) DrawOutcome {
	return DrawOutcome{
		DrawsID:     publicID,
		RequesterID: rec.RequesterID,
		SourceIP:    rec.IP,
		Won:         rec.IsWin(),
		PrizeID:     rec.PrizeID,
		PrizeName:   name,
		PrizeType:   rec.Type,
		RuleID:      rec.RuleID,
		Fallback:    fallback,
	}
}

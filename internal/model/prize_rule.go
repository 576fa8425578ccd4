package model

import "time"

// PrizeRule is a time-bounded, weighted entitlement to issue units of a
// specific prize.  Rules are created and edited by an external
// administrative process; the engine only ever mutates surplus_num through
// the stock manager's conditional decrement/rollback operations.
//
// Fields:
//  ID         – primary key identifier.
//  PrizeID    – the prize this rule issues.
//  TotalNum   – configured quantity for the rule.
//  SurplusNum – remaining quantity; never exceeds TotalNum.
//  Weight     – selection weight; may be fractional, never negative.
//  StartTime  – beginning of the validity window (inclusive).
//  EndTime    – end of the validity window (exclusive).
type PrizeRule struct {
	ID         uint64    `json:"id"`          // prize_rules.id
	PrizeID    uint64    `json:"prize_id"`    // prize_rules.prize_id
	TotalNum   int64     `json:"total_num"`   // prize_rules.total_num
	SurplusNum int64     `json:"surplus_num"` // prize_rules.surplus_num
	Weight     float64   `json:"weight"`      // prize_rules.weight
	StartTime  time.Time `json:"start_time"`  // prize_rules.start_time
	EndTime    time.Time `json:"end_time"`    // prize_rules.end_time
}

// EligibleAt reports whether the rule may participate in a draw at t:
// inside its validity window, positive weight and stock left.
func (r PrizeRule) EligibleAt(t time.Time) bool {
	if r.Weight <= 0 || r.SurplusNum <= 0 {
		return false
	}
	return !t.Before(r.StartTime) && t.Before(r.EndTime)
}

// Snapshot strips the rule down to the fields the selector and stock
// manager operate on.
func (r PrizeRule) Snapshot() RuleSnapshot {
	return RuleSnapshot{
		ID:         r.ID,
		PrizeID:    r.PrizeID,
		TotalNum:   r.TotalNum,
		SurplusNum: r.SurplusNum,
		Weight:     r.Weight,
	}
}

// RuleSnapshot is the cached projection of a PrizeRule.  It is what the
// rule-detail hash in Redis holds and what moves between the cache
// manager, the selector and the admission strategy.
type RuleSnapshot struct {
	ID         uint64  `json:"id"`
	PrizeID    uint64  `json:"prize_id"`
	TotalNum   int64   `json:"total_num"`
	SurplusNum int64   `json:"surplus_num"`
	Weight     float64 `json:"weight"`
}

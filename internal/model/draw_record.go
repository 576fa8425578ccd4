package model

import "time"

// DrawRecord is the immutable ledger entry for one draw outcome.  A record
// is written for every terminal outcome, win or consolation, so that a
// later verification can distinguish "no record" (a forged client-side
// claim) from "record exists, did not win".  Once created a record is
// never mutated, except to backfill DrawsID right after the row receives
// its sequential key.
//
// Fields:
//  ID          – sequential primary key, never exposed to clients.
//  DrawsID     – public identifier (encoded ID or opaque random token).
//  RequesterID – who drew.
//  PrizeID     – awarded prize; 0 means "thanks for participating".
//  Type        – prize type at the time of the draw.
//  IP          – requester's source address.
//  RuleID      – originating rule; 0 for fallback outcomes.
//  CreatedAt   – when the outcome was recorded.
type DrawRecord struct {
	ID          uint64    `json:"-"`            // draw_records.id
	DrawsID     string    `json:"draw_id"`      // draw_records.draws_id
	RequesterID string    `json:"requester_id"` // draw_records.requester_id
	PrizeID     uint64    `json:"prize_id"`     // draw_records.prize_id
	Type        int       `json:"prize_type"`   // draw_records.type
	IP          string    `json:"-"`            // draw_records.ip
	RuleID      uint64    `json:"rule_id"`      // draw_records.rule_id
	CreatedAt   time.Time `json:"created_at"`   // draw_records.created_at
}

// IsWin reports whether the record represents a real award.  PrizeID 0 is
// the empty consolation outcome.
func (d DrawRecord) IsWin() bool { return d.PrizeID > 0 }

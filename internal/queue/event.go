// Package queue defines message payloads exchanged over the message broker
// and the publisher that emits them.
package queue

// DrawCompletedEvent is published after every draw reaches a terminal
// outcome.  It carries enough information for downstream consumers to
// log, notify, or feed analytics without querying the primary database.
type DrawCompletedEvent struct {
	DrawID      string `json:"draw_id"`
	RequesterID string `json:"requester_id"`
	SourceIP    string `json:"source_ip"`
	Won         bool   `json:"won"`
	PrizeID     uint64 `json:"prize_id"`
	PrizeName   string `json:"prize_name"`
	PrizeType   int    `json:"prize_type"`
	RuleID      uint64 `json:"rule_id"`
	Fallback    bool   `json:"fallback"`
	CompletedAt string `json:"completed_at"`
}

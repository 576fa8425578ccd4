package lottery

import (
	"fmt"
	"strings"
	"time"
)

// KeyBuilder derives every cache key the engine uses from a single
// configured prefix.  Day-scoped keys embed a yymmdd date so they rotate
// naturally at the day boundary instead of needing explicit cleanup.
type KeyBuilder struct {
	prefix string
}

// NewKeyBuilder normalizes the prefix to end with exactly one colon.
func NewKeyBuilder(prefix string) *KeyBuilder {
	if prefix == "" {
		prefix = "lottery:"
	}
	return &KeyBuilder{prefix: strings.TrimRight(prefix, ":") + ":"}
}

// Prefix returns the normalized key prefix.
func (k *KeyBuilder) Prefix() string { return k.prefix }

// Ymd formats t the way all day-scoped keys expect (yymmdd).
func Ymd(t time.Time) string { return t.Format("060102") }

// RulesList keys the cached list of rule IDs valid on the given day.
func (k *KeyBuilder) RulesList(date string) string {
	return k.prefix + "rules:" + date
}

// RuleDetail keys the per-rule detail hash for the given day.
func (k *KeyBuilder) RuleDetail(ruleID uint64, date string) string {
	return fmt.Sprintf("%srules:%s:%d", k.prefix, date, ruleID)
}

// PrizesList keys the cached active-prize collection.
func (k *KeyBuilder) PrizesList() string {
	return k.prefix + "prizes:active"
}

// UserDraws keys the per-day list of prize IDs a requester has already won.
func (k *KeyBuilder) UserDraws(requesterID, date string) string {
	return k.prefix + "draws:" + requesterID + ":" + date
}

// PrizeDistribution keys the hourly issuance hash for a prize on a day.
func (k *KeyBuilder) PrizeDistribution(prizeID uint64, date string) string {
	return fmt.Sprintf("%sdistribution:%d:%s", k.prefix, prizeID, date)
}

// Lock keys the per-requester draw lock.
func (k *KeyBuilder) Lock(name string) string {
	return k.prefix + "lock:" + name
}

// Mutex keys the short-lived reload mutex used against cache stampedes.
func (k *KeyBuilder) Mutex(kind, date string) string {
	return k.prefix + "mutex:" + kind + ":" + date
}

// Nonce keys a one-time draw token for a requester.
func (k *KeyBuilder) Nonce(requesterID, nonce string) string {
	return k.prefix + "nonce:" + requesterID + ":" + nonce
}

// RequestsUser keys the per-requester daily request counter.
func (k *KeyBuilder) RequestsUser(requesterID, date string) string {
	return k.prefix + "requests:user:" + requesterID + ":" + date
}

// RequestsUserHour keys the per-requester hourly request counter.
func (k *KeyBuilder) RequestsUserHour(requesterID, date string, hour int) string {
	return fmt.Sprintf("%srequests:user:hour:%s:%s:%02d", k.prefix, requesterID, date, hour)
}

// RequestsIP keys the per-IP daily request counter.
func (k *KeyBuilder) RequestsIP(ip, date string) string {
	return k.prefix + "requests:ip:" + ip + ":" + date
}

// ThanksStats keys a requester's thanks-outcome counter.  An empty date
// addresses the running total instead of a single day.
func (k *KeyBuilder) ThanksStats(requesterID, date string) string {
	if date == "" {
		return k.prefix + "stats:thanks:user:" + requesterID
	}
	return k.prefix + "stats:thanks:" + requesterID + ":" + date
}

// GlobalThanksStats keys the global thanks-outcome counter.
func (k *KeyBuilder) GlobalThanksStats(date string) string {
	if date == "" {
		return k.prefix + "stats:thanks:global:total"
	}
	return k.prefix + "stats:thanks:global:" + date
}

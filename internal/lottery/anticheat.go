package lottery

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// consumeNonceScript reads and deletes a nonce in one step so that two
// concurrent draws carrying the same nonce can never both pass.
var consumeNonceScript = redis.NewScript(`
	local val = redis.call('get', KEYS[1])
	if not val then
		return nil
	end
	redis.call('del', KEYS[1])
	return val
`)

const defaultNonceTTL = 5 * time.Minute

// AntiCheat bundles the request-hardening concerns of the draw endpoint:
// single-use nonces, HMAC result signatures, and per-requester counters.
type AntiCheat struct {
	rdb      redis.UniversalClient
	keys     *KeyBuilder
	clock    Clock
	secret   []byte
	nonceTTL time.Duration
}

// NewAntiCheat configures the component.  An empty secret disables
// signing; VerifyNonce then treats a cache outage as a hard failure
// because there is no second line of defense to fall back on.
func NewAntiCheat(rdb redis.UniversalClient, keys *KeyBuilder, clock Clock, secret string, nonceTTL time.Duration) *AntiCheat {
	if clock == nil {
		clock = SystemClock{}
	}
	if nonceTTL <= 0 {
		nonceTTL = defaultNonceTTL
	}
	return &AntiCheat{rdb: rdb, keys: keys, clock: clock, secret: []byte(secret), nonceTTL: nonceTTL}
}

// SigningEnabled reports whether a signing secret is configured.
func (a *AntiCheat) SigningEnabled() bool { return len(a.secret) > 0 }

// GenerateNonce issues a fresh single-use token bound to the requester.
func (a *AntiCheat) GenerateNonce(ctx context.Context, requesterID string) (string, error) {
	nonce := randomToken(16)
	key := a.keys.Nonce(requesterID, nonce)
	if err := a.rdb.Set(ctx, key, "1", a.nonceTTL).Err(); err != nil {
		return "", fmt.Errorf("store nonce: %w", err)
	}
	return nonce, nil
}

// VerifyNonce consumes the nonce.  A nonce that was never issued, has
// expired, or was already consumed fails verification.  When the cache is
// unreachable the call degrades to allow only if signing is enabled; the
// signature still ties the eventual result to this requester.
func (a *AntiCheat) VerifyNonce(ctx context.Context, requesterID, nonce string) bool {
	if nonce == "" {
		return false
	}
	key := a.keys.Nonce(requesterID, nonce)
	_, err := consumeNonceScript.Run(ctx, a.rdb, []string{key}).Result()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		zap.L().Warn("nonce check unavailable",
			zap.String("requester_id", requesterID), zap.Error(err))
		return a.SigningEnabled()
	}
	return true
}

// SignResult computes the HMAC-SHA256 signature over the identifying
// fields of a draw result.
func (a *AntiCheat) SignResult(drawID, requesterID string, prizeID uint64, prizeName string, prizeType int) string {
	if !a.SigningEnabled() {
		return ""
	}
	payload := fmt.Sprintf("%s|%s|%d|%s|%d", drawID, requesterID, prizeID, prizeName, prizeType)
	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature recomputes the signature and compares in constant time.
func (a *AntiCheat) VerifySignature(drawID, requesterID string, prizeID uint64, prizeName string, prizeType int, signature string) bool {
	if !a.SigningEnabled() || signature == "" {
		return false
	}
	want := a.SignResult(drawID, requesterID, prizeID, prizeName, prizeType)
	return hmac.Equal([]byte(want), []byte(signature))
}

// RecordDrawRequest bumps the per-requester, per-requester-hour and
// per-IP counters for the current day.  Best effort; counters are
// observability, not a gate.
func (a *AntiCheat) RecordDrawRequest(ctx context.Context, requesterID, sourceIP string) {
	now := a.clock.Now()
	date := Ymd(now)

	pipe := a.rdb.Pipeline()
	userKey := a.keys.RequestsUser(requesterID, date)
	hourKey := a.keys.RequestsUserHour(requesterID, date, now.Hour())
	ipKey := a.keys.RequestsIP(sourceIP, date)
	pipe.Incr(ctx, userKey)
	pipe.Expire(ctx, userKey, 48*time.Hour)
	pipe.Incr(ctx, hourKey)
	pipe.Expire(ctx, hourKey, 48*time.Hour)
	pipe.Incr(ctx, ipKey)
	pipe.Expire(ctx, ipKey, 48*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		zap.L().Warn("failed to record draw request counters",
			zap.String("requester_id", requesterID), zap.Error(err))
	}
}

// RequestCount returns the requester's draw-request count for a given day.
func (a *AntiCheat) RequestCount(ctx context.Context, requesterID string, day time.Time) int64 {
	n, err := a.rdb.Get(ctx, a.keys.RequestsUser(requesterID, Ymd(day))).Int64()
	if err != nil && err != redis.Nil {
		zap.L().Warn("failed to read request counter",
			zap.String("requester_id", requesterID), zap.Error(err))
	}
	return n
}

// IPRequestCount returns the per-IP draw-request count for a given day.
func (a *AntiCheat) IPRequestCount(ctx context.Context, sourceIP string, day time.Time) int64 {
	n, err := a.rdb.Get(ctx, a.keys.RequestsIP(sourceIP, Ymd(day))).Int64()
	if err != nil && err != redis.Nil {
		zap.L().Warn("failed to read ip request counter",
			zap.String("source_ip", sourceIP), zap.Error(err))
	}
	return n
}

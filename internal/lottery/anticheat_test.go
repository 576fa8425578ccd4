package lottery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNonceSingleUse(t *testing.T) {
	_, rdb := newTestRedis(t)
	ac := NewAntiCheat(rdb, NewKeyBuilder("test"), nil, "secret", time.Minute)
	ctx := context.Background()

	nonce, err := ac.GenerateNonce(ctx, "alice")
	require.NoError(t, err)
	require.NotEmpty(t, nonce)

	assert.True(t, ac.VerifyNonce(ctx, "alice", nonce))
	assert.False(t, ac.VerifyNonce(ctx, "alice", nonce))
}

func TestNonceBoundToRequester(t *testing.T) {
	_, rdb := newTestRedis(t)
	ac := NewAntiCheat(rdb, NewKeyBuilder("test"), nil, "secret", time.Minute)
	ctx := context.Background()

	nonce, err := ac.GenerateNonce(ctx, "alice")
	require.NoError(t, err)

	assert.False(t, ac.VerifyNonce(ctx, "bob", nonce))
	// alice's copy is untouched by bob's attempt
	assert.True(t, ac.VerifyNonce(ctx, "alice", nonce))
}

func TestNonceExpires(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ac := NewAntiCheat(rdb, NewKeyBuilder("test"), nil, "secret", time.Minute)
	ctx := context.Background()

	nonce, err := ac.GenerateNonce(ctx, "alice")
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)
	assert.False(t, ac.VerifyNonce(ctx, "alice", nonce))
}

func TestNonceUnknownAndEmptyFail(t *testing.T) {
	_, rdb := newTestRedis(t)
	ac := NewAntiCheat(rdb, NewKeyBuilder("test"), nil, "secret", time.Minute)
	ctx := context.Background()

	assert.False(t, ac.VerifyNonce(ctx, "alice", ""))
	assert.False(t, ac.VerifyNonce(ctx, "alice", "never-issued"))
}

func TestNonceCacheOutageDegrade(t *testing.T) {
	ctx := context.Background()

	// with a signing secret the signature still ties the result to the
	// requester, so verification degrades to allow
	mr, rdb := newTestRedis(t)
	signed := NewAntiCheat(rdb, NewKeyBuilder("test"), nil, "secret", time.Minute)
	mr.Close()
	assert.True(t, signed.VerifyNonce(ctx, "alice", "whatever"))

	// without one there is no second line of defense: fail closed
	mr2, rdb2 := newTestRedis(t)
	unsigned := NewAntiCheat(rdb2, NewKeyBuilder("test"), nil, "", time.Minute)
	mr2.Close()
	assert.False(t, unsigned.VerifyNonce(ctx, "alice", "whatever"))
}

func TestSignAndVerifySignature(t *testing.T) {
	_, rdb := newTestRedis(t)
	ac := NewAntiCheat(rdb, NewKeyBuilder("test"), nil, "secret", time.Minute)

	sig := ac.SignResult("draw1", "alice", 7, "TV", 1)
	require.NotEmpty(t, sig)

	assert.True(t, ac.VerifySignature("draw1", "alice", 7, "TV", 1, sig))
	assert.False(t, ac.VerifySignature("draw1", "bob", 7, "TV", 1, sig))
	assert.False(t, ac.VerifySignature("draw1", "alice", 8, "TV", 1, sig))
	assert.False(t, ac.VerifySignature("draw1", "alice", 7, "TV", 2, sig))
	assert.False(t, ac.VerifySignature("draw2", "alice", 7, "TV", 1, sig))
	assert.False(t, ac.VerifySignature("draw1", "alice", 7, "TV", 1, "tampered"))
}

func TestSigningDisabledWithoutSecret(t *testing.T) {
	_, rdb := newTestRedis(t)
	ac := NewAntiCheat(rdb, NewKeyBuilder("test"), nil, "", time.Minute)

	assert.False(t, ac.SigningEnabled())
	assert.Empty(t, ac.SignResult("draw1", "alice", 7, "TV", 1))
	assert.False(t, ac.VerifySignature("draw1", "alice", 7, "TV", 1, ""))
}

func TestRecordDrawRequestCounters(t *testing.T) {
	_, rdb := newTestRedis(t)
	clock := clockAt(12)
	ac := NewAntiCheat(rdb, NewKeyBuilder("test"), clock, "secret", time.Minute)
	ctx := context.Background()

	ac.RecordDrawRequest(ctx, "alice", "10.0.0.1")
	ac.RecordDrawRequest(ctx, "alice", "10.0.0.1")
	ac.RecordDrawRequest(ctx, "bob", "10.0.0.1")

	assert.Equal(t, int64(2), ac.RequestCount(ctx, "alice", clock.Now()))
	assert.Equal(t, int64(1), ac.RequestCount(ctx, "bob", clock.Now()))
	assert.Equal(t, int64(3), ac.IPRequestCount(ctx, "10.0.0.1", clock.Now()))
	assert.Equal(t, int64(0), ac.RequestCount(ctx, "carol", clock.Now()))
}

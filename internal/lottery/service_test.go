package lottery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leolab/lottery-engine/internal/model"
)

// memStore is an in-memory Store with snapshot-rollback transactions.
type memStore struct {
	mu        sync.Mutex
	txMu      sync.Mutex
	rules     map[uint64]*model.PrizeRule
	prizes    map[uint64]*model.Prize
	draws     []*model.DrawRecord
	nextID    uint64
	insertErr error
}

func newMemStore() *memStore {
	return &memStore{
		rules:  map[uint64]*model.PrizeRule{},
		prizes: map[uint64]*model.Prize{},
	}
}

func (m *memStore) addRule(r model.PrizeRule) { m.rules[r.ID] = &r }
func (m *memStore) addPrize(p model.Prize)    { m.prizes[p.ID] = &p }

func (m *memStore) ActiveRules(ctx context.Context, at time.Time) ([]model.PrizeRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.PrizeRule
	for _, r := range m.rules {
		if r.EligibleAt(at) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memStore) ActivePrizes(ctx context.Context) ([]model.Prize, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Prize
	for _, p := range m.prizes {
		out = append(out, *p)
	}
	return out, nil
}

func (m *memStore) RuleSurplus(ctx context.Context, ruleID uint64) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[ruleID]
	if !ok {
		return 0, false, nil
	}
	return r.SurplusNum, true, nil
}

func (m *memStore) DecrementRuleSurplus(ctx context.Context, ruleID uint64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[ruleID]
	if !ok || r.SurplusNum <= 0 {
		return false, nil
	}
	r.SurplusNum--
	return true, nil
}

func (m *memStore) IncrementRuleSurplus(ctx context.Context, ruleID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rules[ruleID]; ok && r.SurplusNum < r.TotalNum {
		r.SurplusNum++
	}
	return nil
}

func (m *memStore) PrizeRemaining(ctx context.Context, prizeID uint64) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prizes[prizeID]
	if !ok {
		return 0, false, nil
	}
	return p.Remaining, true, nil
}

func (m *memStore) DecrementPrizeRemaining(ctx context.Context, prizeID uint64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prizes[prizeID]
	if !ok || p.Remaining <= 0 {
		return false, nil
	}
	p.Remaining--
	return true, nil
}

func (m *memStore) IncrementPrizeRemaining(ctx context.Context, prizeID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.prizes[prizeID]; ok && p.Remaining < p.Total {
		p.Remaining++
	}
	return nil
}

func (m *memStore) InsertDraw(ctx context.Context, rec *model.DrawRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.nextID++
	rec.ID = m.nextID
	cp := *rec
	m.draws = append(m.draws, &cp)
	return nil
}

func (m *memStore) SetDrawPublicID(ctx context.Context, id uint64, publicID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.draws {
		if d.ID == id {
			d.DrawsID = publicID
			return nil
		}
	}
	return fmt.Errorf("draw %d not found", id)
}

func (m *memStore) FindDrawByID(ctx context.Context, id uint64) (*model.DrawRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.draws {
		if d.ID == id {
			cp := *d
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) FindDrawByPublicID(ctx context.Context, publicID string) (*model.DrawRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.draws {
		if d.DrawsID == publicID {
			cp := *d
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) CountWins(ctx context.Context, requesterID string, since, until time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, d := range m.draws {
		if d.RequesterID == requesterID && d.PrizeID > 0 &&
			!d.CreatedAt.Before(since) && d.CreatedAt.Before(until) {
			n++
		}
	}
	return n, nil
}

// InTx serializes transactions and restores a snapshot when fn fails.
func (m *memStore) InTx(ctx context.Context, fn func(tx TxStore) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	rules := make(map[uint64]*model.PrizeRule, len(m.rules))
	for id, r := range m.rules {
		cp := *r
		rules[id] = &cp
	}
	prizes := make(map[uint64]*model.Prize, len(m.prizes))
	for id, p := range m.prizes {
		cp := *p
		prizes[id] = &cp
	}
	draws := make([]*model.DrawRecord, len(m.draws))
	copy(draws, m.draws)
	nextID := m.nextID
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.rules = rules
		m.prizes = prizes
		m.draws = draws
		m.nextID = nextID
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memStore) drawCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.draws)
}

func (m *memStore) ruleSurplus(id uint64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rules[id].SurplusNum
}

func (m *memStore) prizeRemaining(id uint64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prizes[id].Remaining
}

type stubStrategy struct {
	mu       sync.Mutex
	allow    bool
	recorded []uint64
}

func (s *stubStrategy) CanDistribute(ctx context.Context, prizeID uint64, total int64) bool {
	return s.allow
}

func (s *stubStrategy) RecordDistribution(ctx context.Context, prizeID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recorded = append(s.recorded, prizeID)
}

type captureObserver struct {
	mu       sync.Mutex
	outcomes []DrawOutcome
}

func (o *captureObserver) DrawCompleted(ctx context.Context, outcome DrawOutcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func (o *captureObserver) last() (DrawOutcome, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.outcomes) == 0 {
		return DrawOutcome{}, false
	}
	return o.outcomes[len(o.outcomes)-1], true
}

type svcFixture struct {
	svc      *Service
	store    *memStore
	mr       *miniredis.Miniredis
	keys     *KeyBuilder
	clock    Clock
	strategy *stubStrategy
	observer *captureObserver
	ac       *AntiCheat
}

func newTestService(t *testing.T, store *memStore, fallback []model.FallbackPrize, cfg ServiceConfig) *svcFixture {
	t.Helper()
	mr, rdb := newTestRedis(t)
	keys := NewKeyBuilder("test")
	clock := clockAt(12)
	lock := NewLockManager(rdb)
	cache := NewCacheManager(rdb, lock, keys, clock, store, store)
	strategy := &stubStrategy{allow: true}
	stock := NewStockManager(rdb, keys, clock, store, store)
	ac := NewAntiCheat(rdb, keys, clock, "test-secret", time.Minute)
	stats := NewStatistics(rdb, keys, clock, store, true)
	encoder := NewDrawIDEncoder(0x5A17C0DE, 6)
	observer := &captureObserver{}

	svc := NewService(store, rdb, keys, clock, cache, lock,
		NewWeightedSelector(0), strategy, stock,
		NewFallbackProvider(fallback), ac, stats, encoder, cfg)
	svc.AddObserver(observer)

	return &svcFixture{svc: svc, store: store, mr: mr, keys: keys,
		clock: clock, strategy: strategy, observer: observer, ac: ac}
}

// sureWinStore holds one always-selected rule (sole rule, full weight)
// backed by a prize with stock.
func sureWinStore(surplus, remaining int64) *memStore {
	st := newMemStore()
	st.addRule(model.PrizeRule{
		ID: 1, PrizeID: 10, TotalNum: surplus, SurplusNum: surplus, Weight: 100,
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.Local),
		EndTime:   time.Date(2027, 1, 1, 0, 0, 0, 0, time.Local),
	})
	st.addPrize(model.Prize{ID: 10, Type: 1, Name: "TV", Total: remaining, Remaining: remaining})
	return st
}

var consolation = []model.FallbackPrize{{ID: 7, Name: "Coupon", Weight: 1, Type: model.PrizeTypeCoupon}}

func TestDrawWinPath(t *testing.T) {
	f := newTestService(t, sureWinStore(5, 5), consolation, ServiceConfig{TestMode: true})
	ctx := context.Background()

	res, err := f.svc.Draw(ctx, "alice", "10.0.0.1", "")
	require.NoError(t, err)
	require.True(t, res.IsWin)
	assert.Equal(t, uint64(10), res.Prize.ID)
	assert.Equal(t, "TV", res.Prize.Name)
	assert.NotEmpty(t, res.Signature)

	// both stock layers took the hit
	assert.Equal(t, int64(4), f.store.ruleSurplus(1))
	assert.Equal(t, int64(4), f.store.prizeRemaining(10))

	// the public identifier round-trips to the ledger row
	rec, err := f.store.FindDrawByPublicID(ctx, res.DrawsID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "alice", rec.RequesterID)
	assert.Equal(t, uint64(10), rec.PrizeID)
	assert.Equal(t, uint64(1), rec.RuleID)

	// the observer saw the win and the distribution was recorded
	out, ok := f.observer.last()
	require.True(t, ok)
	assert.True(t, out.Won)
	assert.False(t, out.Fallback)
	assert.Equal(t, res.DrawsID, out.DrawsID)
	assert.Equal(t, []uint64{10}, f.strategy.recorded)
}

func TestDrawFallbackWhenNoRules(t *testing.T) {
	f := newTestService(t, newMemStore(), consolation, ServiceConfig{TestMode: true})
	ctx := context.Background()

	res, err := f.svc.Draw(ctx, "alice", "10.0.0.1", "")
	require.NoError(t, err)
	assert.False(t, res.IsWin)
	assert.Equal(t, uint64(7), res.Prize.ID)
	assert.NotEmpty(t, res.DrawsID)

	// a real consolation prize is always persisted
	rec, err := f.store.FindDrawByPublicID(ctx, res.DrawsID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, uint64(7), rec.PrizeID)
	assert.Equal(t, uint64(0), rec.RuleID)

	// the coupon was won once, so the next consolation falls through the
	// exclusion to the first configured entry, persisted like any other
	// real consolation prize
	res, err = f.svc.Draw(ctx, "alice", "10.0.0.1", "")
	require.NoError(t, err)
	assert.False(t, res.IsWin)
	assert.Equal(t, uint64(7), res.Prize.ID)
	assert.Equal(t, 2, f.store.drawCount())
}

func TestDrawThanksPersistedWhenConfigured(t *testing.T) {
	f := newTestService(t, newMemStore(), nil, ServiceConfig{TestMode: true, RecordThanks: true})
	ctx := context.Background()

	res, err := f.svc.Draw(ctx, "alice", "10.0.0.1", "")
	require.NoError(t, err)
	assert.False(t, res.IsWin)
	assert.Equal(t, uint64(0), res.Prize.ID)

	rec, err := f.store.FindDrawByPublicID(ctx, res.DrawsID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.False(t, rec.IsWin())
}

func TestDrawLockContentionFallsBack(t *testing.T) {
	f := newTestService(t, sureWinStore(5, 5), consolation, ServiceConfig{TestMode: true})
	ctx := context.Background()

	// another in-flight draw holds alice's lock
	held, err := f.svc.rdb.SetNX(ctx, f.keys.Lock("alice"), "other", time.Minute).Result()
	require.NoError(t, err)
	require.True(t, held)

	res, err := f.svc.Draw(ctx, "alice", "10.0.0.1", "")
	require.NoError(t, err)
	assert.False(t, res.IsWin)
	// nothing was taken from stock
	assert.Equal(t, int64(5), f.store.ruleSurplus(1))
}

func TestDrawOutOfPrizeStockFallsBack(t *testing.T) {
	f := newTestService(t, sureWinStore(5, 0), consolation, ServiceConfig{TestMode: true})
	ctx := context.Background()

	res, err := f.svc.Draw(ctx, "alice", "10.0.0.1", "")
	require.NoError(t, err)
	assert.False(t, res.IsWin)

	// the rule decrement was rolled back in both layers
	assert.Equal(t, int64(5), f.store.ruleSurplus(1))
	date := Ymd(f.clock.Now())
	assert.Equal(t, "5", f.mr.HGet(f.keys.RuleDetail(1, date), "surplus_num"))
}

func TestDrawAdmissionDeniedFallsBack(t *testing.T) {
	f := newTestService(t, sureWinStore(5, 5), consolation, ServiceConfig{})
	f.strategy.allow = false
	ctx := context.Background()

	res, err := f.svc.Draw(ctx, "alice", "10.0.0.1", "")
	require.NoError(t, err)
	assert.False(t, res.IsWin)
	assert.Equal(t, int64(5), f.store.ruleSurplus(1))
}

func TestDrawStoreFailureSurfacesError(t *testing.T) {
	st := sureWinStore(5, 5)
	st.insertErr = errors.New("disk full")
	f := newTestService(t, st, consolation, ServiceConfig{TestMode: true})
	ctx := context.Background()

	_, err := f.svc.Draw(ctx, "alice", "10.0.0.1", "")
	require.Error(t, err)
	le, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeDrawFailed, le.Code)

	// the transaction rolled back and the cached counter was compensated
	assert.Equal(t, int64(5), f.store.ruleSurplus(1))
	date := Ymd(f.clock.Now())
	assert.Equal(t, "5", f.mr.HGet(f.keys.RuleDetail(1, date), "surplus_num"))
}

func TestDrawValidation(t *testing.T) {
	f := newTestService(t, newMemStore(), nil, ServiceConfig{TestMode: true})
	ctx := context.Background()

	_, err := f.svc.Draw(ctx, "no spaces allowed", "10.0.0.1", "")
	le, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeInvalidRequester, le.Code)

	_, err = f.svc.Draw(ctx, "alice", "not-an-ip", "")
	le, ok = AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeInvalidIP, le.Code)
}

func TestDrawNonceFlow(t *testing.T) {
	f := newTestService(t, sureWinStore(5, 5), consolation, ServiceConfig{TestMode: true})
	ctx := context.Background()

	nonce, err := f.svc.GenerateNonce(ctx, "alice")
	require.NoError(t, err)

	res, err := f.svc.Draw(ctx, "alice", "10.0.0.1", nonce)
	require.NoError(t, err)
	assert.True(t, res.IsWin)

	// the nonce was consumed by the first draw
	_, err = f.svc.Draw(ctx, "alice", "10.0.0.1", nonce)
	le, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeInvalidNonce, le.Code)

	_, err = f.svc.Draw(ctx, "alice", "10.0.0.1", "forged")
	le, ok = AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeInvalidNonce, le.Code)
}

func TestVerifyDraw(t *testing.T) {
	f := newTestService(t, sureWinStore(5, 5), consolation, ServiceConfig{TestMode: true})
	ctx := context.Background()

	res, err := f.svc.Draw(ctx, "alice", "10.0.0.1", "")
	require.NoError(t, err)
	require.True(t, res.IsWin)

	rec, err := f.svc.VerifyDraw(ctx, res.DrawsID, "alice", res.Signature)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), rec.PrizeID)
	assert.True(t, rec.IsWin())

	// foreign requester and tampered signature both read as not-found
	_, err = f.svc.VerifyDraw(ctx, res.DrawsID, "mallory", "")
	le, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeNotFound, le.Code)

	_, err = f.svc.VerifyDraw(ctx, res.DrawsID, "alice", "tampered")
	le, ok = AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeNotFound, le.Code)

	_, err = f.svc.VerifyDraw(ctx, "zzzzzz", "alice", "")
	le, ok = AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeNotFound, le.Code)
}

func TestConcurrentDrawsConserveStock(t *testing.T) {
	f := newTestService(t, sureWinStore(3, 3), consolation, ServiceConfig{TestMode: true})
	ctx := context.Background()

	const n = 10
	results := make([]*DrawResult, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.svc.Draw(ctx, fmt.Sprintf("user%02d", i), "10.0.0.1", "")
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, res := range results {
		require.NotNil(t, res)
		if res.IsWin {
			wins++
		}
	}
	assert.LessOrEqual(t, wins, 3)
	assert.GreaterOrEqual(t, f.store.ruleSurplus(1), int64(0))
	assert.GreaterOrEqual(t, f.store.prizeRemaining(10), int64(0))
	assert.Equal(t, int64(3-int64(wins)), f.store.prizeRemaining(10))
}

func TestRequesterStatsViaService(t *testing.T) {
	f := newTestService(t, sureWinStore(5, 5), consolation, ServiceConfig{TestMode: true})
	ctx := context.Background()

	_, err := f.svc.Draw(ctx, "alice", "10.0.0.1", "")
	require.NoError(t, err)

	stats, err := f.svc.RequesterStats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.DrawsToday)
	assert.Equal(t, int64(1), stats.WinsToday)
	assert.Equal(t, int64(0), stats.ThanksToday)
}

type panickyObserver struct{}

func (panickyObserver) DrawCompleted(context.Context, DrawOutcome) { panic("boom") }

func TestDrawObserverPanicIsolated(t *testing.T) {
	f := newTestService(t, sureWinStore(5, 5), consolation, ServiceConfig{TestMode: true})
	f.svc.AddObserver(panickyObserver{})
	f.svc.AddObserver(NopObserver{})

	res, err := f.svc.Draw(context.Background(), "alice", "10.0.0.1", "")
	require.NoError(t, err)
	assert.True(t, res.IsWin)
}

func TestRuleStockReporting(t *testing.T) {
	f := newTestService(t, sureWinStore(5, 5), consolation, ServiceConfig{TestMode: true})
	ctx := context.Background()

	assert.Equal(t, int64(5), f.svc.RuleStock(ctx, 1))
	assert.Equal(t, int64(0), f.svc.RuleStock(ctx, 99))

	res, err := f.svc.Draw(ctx, "alice", "10.0.0.1", "")
	require.NoError(t, err)
	assert.True(t, res.IsWin)
	assert.Equal(t, int64(4), f.svc.RuleStock(ctx, 1))
}

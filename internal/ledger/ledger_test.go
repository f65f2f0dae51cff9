package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/apperr"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/plans"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore serializes UpdateLocked calls the way a row lock would.
type memStore struct {
	mu       sync.Mutex
	profiles map[uuid.UUID]models.Profile
}

func newMemStore(profiles ...models.Profile) *memStore {
	s := &memStore{profiles: make(map[uuid.UUID]models.Profile)}
	for _, p := range profiles {
		s.profiles[p.UserID] = p
	}
	return s
}

func (s *memStore) Get(_ context.Context, userID uuid.UUID) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &p, nil
}

func (s *memStore) UpdateLocked(_ context.Context, userID uuid.UUID, fn func(p *models.Profile) error) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	if err := fn(&p); err != nil {
		return nil, err
	}
	s.profiles[userID] = p
	return &p, nil
}

type memCache struct {
	mu      sync.Mutex
	entries map[uuid.UUID]Summary
	deletes int
}

func newMemCache() *memCache { return &memCache{entries: make(map[uuid.UUID]Summary)} }

func (c *memCache) Get(_ context.Context, id uuid.UUID) (*Summary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.entries[id]
	return &s, ok
}

func (c *memCache) Set(_ context.Context, id uuid.UUID, s Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = s
}

func (c *memCache) Delete(_ context.Context, id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
	c.deletes++
}

func freeProfile(used, purchased int64) models.Profile {
	return models.Profile{
		UserID:        uuid.New(),
		Plan:          plans.Free,
		WordsLimit:    1000,
		PlanWordsUsed: used,
		WordBalance:   purchased,
	}
}

func TestDeductScenario(t *testing.T) {
	p := freeProfile(950, 200)
	store := newMemStore(p)
	l := New(store, nil)
	ctx := context.Background()

	d, err := l.Deduct(ctx, p.UserID, 100)
	require.NoError(t, err)
	assert.Equal(t, SourceMixed, d.AppliedFrom)
	assert.Equal(t, int64(50), d.FromPlan)
	assert.Equal(t, int64(50), d.FromPurchased)
	assert.Equal(t, int64(1000), d.Profile.PlanWordsUsed)
	assert.Equal(t, int64(150), d.Profile.WordBalance)
	assert.Equal(t, int64(150), d.Summary.TotalRemaining)

	_, err = l.Deduct(ctx, p.UserID, 200)
	require.ErrorIs(t, err, apperr.ErrInsufficientBalance)

	after, err := store.Get(ctx, p.UserID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), after.PlanWordsUsed)
	assert.Equal(t, int64(150), after.WordBalance)
	assert.Equal(t, int64(100), after.TotalWordsUsed)
}

func TestDeductFailureLeavesProfileUnchanged(t *testing.T) {
	cases := []struct {
		name            string
		used, purchased int64
		request         int64
	}{
		{"no purchased", 900, 0, 101},
		{"exhausted plan", 1000, 10, 11},
		{"both empty", 1000, 0, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := freeProfile(tc.used, tc.purchased)
			store := newMemStore(p)
			_, err := New(store, nil).Deduct(context.Background(), p.UserID, tc.request)
			require.ErrorIs(t, err, apperr.ErrInsufficientBalance)

			after, _ := store.Get(context.Background(), p.UserID)
			assert.Equal(t, p, *after)
		})
	}
}

func TestDeductConservesWords(t *testing.T) {
	for _, request := range []int64{1, 49, 50, 51, 250} {
		p := freeProfile(950, 200)
		store := newMemStore(p)
		d, err := New(store, nil).Deduct(context.Background(), p.UserID, request)
		require.NoError(t, err)

		planDelta := d.Profile.PlanWordsUsed - p.PlanWordsUsed
		purchasedDelta := p.WordBalance - d.Profile.WordBalance
		assert.Equal(t, request, planDelta+purchasedDelta)
		if purchasedDelta > 0 {
			assert.Equal(t, p.WordsLimit, d.Profile.PlanWordsUsed, "purchased words touched before plan words ran out")
		}
	}
}

func TestDeductSources(t *testing.T) {
	p := freeProfile(0, 500)
	d, err := New(newMemStore(p), nil).Deduct(context.Background(), p.UserID, 10)
	require.NoError(t, err)
	assert.Equal(t, SourcePlan, d.AppliedFrom)

	p = freeProfile(1000, 500)
	d, err = New(newMemStore(p), nil).Deduct(context.Background(), p.UserID, 10)
	require.NoError(t, err)
	assert.Equal(t, SourcePurchased, d.AppliedFrom)
}

func TestDeductRejectsNonPositive(t *testing.T) {
	p := freeProfile(0, 0)
	_, err := New(newMemStore(p), nil).Deduct(context.Background(), p.UserID, 0)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestDeductUnknownUser(t *testing.T) {
	_, err := New(newMemStore(), nil).Deduct(context.Background(), uuid.New(), 5)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestExpiredPlanUsesPurchasedOnly(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	p := models.Profile{
		UserID: uuid.New(), Plan: plans.Pro, WordsLimit: 10000, PlanWordsUsed: 0,
		WordBalance: 30, PlanExpiresAt: &past,
	}
	l := New(newMemStore(p), nil)

	_, err := l.Deduct(context.Background(), p.UserID, 31)
	require.ErrorIs(t, err, apperr.ErrInsufficientBalance)

	d, err := l.Deduct(context.Background(), p.UserID, 30)
	require.NoError(t, err)
	assert.Equal(t, SourcePurchased, d.AppliedFrom)
}

func TestConcurrentDeductionsDoNotOverdraw(t *testing.T) {
	p := freeProfile(900, 0)
	store := newMemStore(p)
	l := New(store, nil)

	var wg sync.WaitGroup
	results := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Deduct(context.Background(), p.UserID, 60)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, apperr.ErrInsufficientBalance)
		}
	}
	assert.Equal(t, 1, succeeded)

	after, _ := store.Get(context.Background(), p.UserID)
	assert.Equal(t, int64(960), after.PlanWordsUsed)
}

func TestRefundRestoresPools(t *testing.T) {
	p := freeProfile(950, 200)
	store := newMemStore(p)
	l := New(store, nil)

	d, err := l.Deduct(context.Background(), p.UserID, 100)
	require.NoError(t, err)
	_, err = l.Refund(context.Background(), p.UserID, d.Split)
	require.NoError(t, err)

	after, _ := store.Get(context.Background(), p.UserID)
	assert.Equal(t, p, *after)
}

func TestBalanceUsesCache(t *testing.T) {
	p := freeProfile(100, 5)
	cache := newMemCache()
	l := New(newMemStore(p), cache)

	s, err := l.Balance(context.Background(), p.UserID)
	require.NoError(t, err)
	assert.Equal(t, int64(905), s.TotalRemaining)
	assert.Contains(t, cache.entries, p.UserID)

	_, err = l.Deduct(context.Background(), p.UserID, 5)
	require.NoError(t, err)
	assert.NotContains(t, cache.entries, p.UserID)

	s, err = l.Balance(context.Background(), p.UserID)
	require.NoError(t, err)
	assert.Equal(t, int64(900), s.TotalRemaining)
}

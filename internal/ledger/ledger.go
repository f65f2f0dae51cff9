package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/apperr"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/models"
	"github.com/google/uuid"
)

type Deduction struct {
	Split
	Profile *models.Profile
	Summary Summary
}

type Ledger struct {
	store Store
	cache Cache
	now   func() time.Time
}

func New(store Store, cache Cache) *Ledger {
	if cache == nil {
		cache = NopCache{}
	}
	return &Ledger{store: store, cache: cache, now: time.Now}
}

// Deduct charges words to the user atomically. On ErrInsufficientBalance no
// field of the profile changes.
func (l *Ledger) Deduct(ctx context.Context, userID uuid.UUID, words int64) (*Deduction, error) {
	if words <= 0 {
		return nil, apperr.Invalid("words to deduct must be positive")
	}
	now := l.now()
	var split Split
	p, err := l.store.UpdateLocked(ctx, userID, func(p *models.Profile) error {
		s, err := Allocate(p, words, now)
		if err != nil {
			return err
		}
		Apply(p, s)
		split = s
		return nil
	})
	if err != nil {
		if errors.Is(err, apperr.ErrInsufficientBalance) {
			metrics.DeductionsRejectedTotal.Inc()
		}
		return nil, err
	}
	l.cache.Delete(ctx, userID)

	metrics.WordsDeductedTotal.WithLabelValues(string(SourcePlan)).Add(float64(split.FromPlan))
	metrics.WordsDeductedTotal.WithLabelValues(string(SourcePurchased)).Add(float64(split.FromPurchased))

	return &Deduction{Split: split, Profile: p, Summary: Summarize(p, now)}, nil
}

// Refund reverses a deduction split back into the pools it came from.
func (l *Ledger) Refund(ctx context.Context, userID uuid.UUID, s Split) (*models.Profile, error) {
	p, err := l.store.UpdateLocked(ctx, userID, func(p *models.Profile) error {
		p.PlanWordsUsed = max(p.PlanWordsUsed-s.FromPlan, 0)
		p.WordBalance += s.FromPurchased
		p.TotalWordsUsed = max(p.TotalWordsUsed-s.FromPlan-s.FromPurchased, 0)
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.cache.Delete(ctx, userID)
	return p, nil
}

func (l *Ledger) Balance(ctx context.Context, userID uuid.UUID) (*Summary, error) {
	if s, ok := l.cache.Get(ctx, userID); ok {
		return s, nil
	}
	p, err := l.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	s := Summarize(p, l.now())
	l.cache.Set(ctx, userID, s)
	return &s, nil
}

func (l *Ledger) Invalidate(ctx context.Context, userID uuid.UUID) {
	l.cache.Delete(ctx, userID)
}

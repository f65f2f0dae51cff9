package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/apperr"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store persists profiles. UpdateLocked must run fn while holding an
// exclusive lock on the user's profile row and persist the profile only
// when fn returns nil.
type Store interface {
	Get(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	UpdateLocked(ctx context.Context, userID uuid.UUID, fn func(p *models.Profile) error) (*models.Profile, error)
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Get(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	var p models.Profile
	if err := s.db.WithContext(ctx).First(&p, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	return &p, nil
}

func (s *GormStore) UpdateLocked(ctx context.Context, userID uuid.UUID, fn func(p *models.Profile) error) (*models.Profile, error) {
	var out models.Profile
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := LockProfile(tx, userID)
		if err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
		if err := SaveProfile(tx, p); err != nil {
			return err
		}
		out = *p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// LockProfile loads a profile with SELECT ... FOR UPDATE inside tx.
func LockProfile(tx *gorm.DB, userID uuid.UUID) (*models.Profile, error) {
	var p models.Profile
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&p, "user_id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock profile: %w", err)
	}
	return &p, nil
}

// SaveProfile writes the entitlement columns, zero values included.
func SaveProfile(tx *gorm.DB, p *models.Profile) error {
	err := tx.Model(&models.Profile{}).
		Where("user_id = ?", p.UserID).
		Select("plan", "words_limit", "plan_words_used", "word_balance", "total_words_used", "plan_expires_at").
		Updates(map[string]interface{}{
			"plan":             p.Plan,
			"words_limit":      p.WordsLimit,
			"plan_words_used":  p.PlanWordsUsed,
			"word_balance":     p.WordBalance,
			"total_words_used": p.TotalWordsUsed,
			"plan_expires_at":  p.PlanExpiresAt,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

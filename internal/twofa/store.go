package twofa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/apperr"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Check inspects the locked settings and reports whether the code matched.
// Changes it makes to the settings are saved only on a match.
type Check func(s *models.TwoFASettings) (bool, error)

// Store persists second-factor settings and attempts. Attempt must, in one
// transaction holding the settings row lock, refuse with
// apperr.ErrTooManyAttempts once limit failures fall at or after since, run
// check, record the attempt and save the settings on a match.
type Store interface {
	Get(ctx context.Context, userID uuid.UUID) (*models.TwoFASettings, error)
	Save(ctx context.Context, s *models.TwoFASettings) error
	Delete(ctx context.Context, userID uuid.UUID) error
	Attempt(ctx context.Context, a *models.TwoFAAttempt, since time.Time, limit int64, check Check) (bool, error)
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Get(ctx context.Context, userID uuid.UUID) (*models.TwoFASettings, error) {
	var settings models.TwoFASettings
	if err := s.db.WithContext(ctx).First(&settings, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load 2fa settings: %w", err)
	}
	return &settings, nil
}

func (s *GormStore) Save(ctx context.Context, settings *models.TwoFASettings) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"secret", "enabled", "backup_codes", "updated_at"}),
	}).Create(settings).Error
	if err != nil {
		return fmt.Errorf("failed to save 2fa settings: %w", err)
	}
	return nil
}

func (s *GormStore) Delete(ctx context.Context, userID uuid.UUID) error {
	return s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.TwoFASettings{}).Error
}

func (s *GormStore) Attempt(ctx context.Context, a *models.TwoFAAttempt, since time.Time, limit int64, check Check) (bool, error) {
	matched := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var settings models.TwoFASettings
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&settings, "user_id = ?", a.UserID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock 2fa settings: %w", err)
		}

		var failures int64
		err = tx.Model(&models.TwoFAAttempt{}).
			Where("user_id = ? AND success = false AND created_at >= ?", a.UserID, since).
			Count(&failures).Error
		if err != nil {
			return fmt.Errorf("failed to count 2fa failures: %w", err)
		}
		if failures >= limit {
			return apperr.ErrTooManyAttempts
		}

		ok, err := check(&settings)
		if err != nil {
			return err
		}
		a.Success = ok
		if err := tx.Create(a).Error; err != nil {
			return fmt.Errorf("failed to record 2fa attempt: %w", err)
		}
		if !ok {
			return nil
		}
		matched = true
		return tx.Model(&settings).Updates(map[string]interface{}{
			"enabled":        settings.Enabled,
			"backup_codes":   settings.BackupCodes,
			"last_used_at":   settings.LastUsedAt,
			"last_totp_step": settings.LastTOTPStep,
			"updated_at":     settings.UpdatedAt,
		}).Error
	})
	if err != nil {
		return false, err
	}
	return matched, nil
}

func decodeHashes(raw datatypes.JSON) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var codes []string
	if err := json.Unmarshal(raw, &codes); err != nil {
		return nil, fmt.Errorf("corrupt backup codes: %w", err)
	}
	return codes, nil
}

func removeHash(codes []string, hash string) ([]string, bool) {
	for i, c := range codes {
		if c == hash {
			out := make([]string, 0, len(codes)-1)
			out = append(out, codes[:i]...)
			return append(out, codes[i+1:]...), true
		}
	}
	return codes, false
}

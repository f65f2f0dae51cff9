package retention

import (
	"context"
	"time"

	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/session"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Store interface {
	ExpiredUsers(ctx context.Context, now time.Time) ([]uuid.UUID, error)
	ExpiredHistory(ctx context.Context, userID uuid.UUID, now time.Time) ([]models.History, error)
	DeleteHistory(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error)
	PurgeAnalytics(ctx context.Context, before time.Time) (int64, error)
	PurgeSystemLogs(ctx context.Context, before time.Time) (int64, error)
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) ExpiredUsers(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.WithContext(ctx).Model(&models.History{}).
		Where("retention_expires_at < ?", now).
		Distinct().
		Pluck("user_id", &ids).Error
	return ids, err
}

func (s *GormStore) ExpiredHistory(ctx context.Context, userID uuid.UUID, now time.Time) ([]models.History, error) {
	var rows []models.History
	err := s.db.WithContext(ctx).
		Select("id", "user_id", "audio_key", "retention_expires_at").
		Scopes(session.ForUser(userID)).
		Where("retention_expires_at < ?", now).
		Find(&rows).Error
	return rows, err
}

func (s *GormStore) DeleteHistory(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Scopes(session.ForUser(userID)).
		Where("id IN ?", ids).
		Delete(&models.History{})
	return res.RowsAffected, res.Error
}

func (s *GormStore) PurgeAnalytics(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("created_at < ?", before).Delete(&models.Analytics{})
	return res.RowsAffected, res.Error
}

func (s *GormStore) PurgeSystemLogs(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("timestamp < ?", before).Delete(&models.SystemLog{})
	return res.RowsAffected, res.Error
}

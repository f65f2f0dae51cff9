package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/apperr"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/session"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type HistoryStore interface {
	Create(ctx context.Context, h *models.History) error
	List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.History, int64, error)
	Get(ctx context.Context, userID, id uuid.UUID) (*models.History, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
}

type DailyTotal struct {
	Day         time.Time `json:"day"`
	Generations int64     `json:"generations"`
	Words       int64     `json:"words"`
}

type AnalyticsStore interface {
	Record(ctx context.Context, a *models.Analytics) error
	DailyTotals(ctx context.Context, userID uuid.UUID, since time.Time) ([]DailyTotal, error)
}

type GormHistoryStore struct {
	db *gorm.DB
}

func NewGormHistoryStore(db *gorm.DB) *GormHistoryStore {
	return &GormHistoryStore{db: db}
}

func (s *GormHistoryStore) Create(ctx context.Context, h *models.History) error {
	if err := s.db.WithContext(ctx).Create(h).Error; err != nil {
		return fmt.Errorf("failed to create history: %w", err)
	}
	return nil
}

func (s *GormHistoryStore) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.History, int64, error) {
	var items []models.History
	var total int64

	db := s.db.WithContext(ctx)
	if err := db.Model(&models.History{}).Scopes(session.ForUser(userID)).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count history: %w", err)
	}
	err := db.Scopes(session.ForUser(userID)).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&items).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list history: %w", err)
	}
	return items, total, nil
}

func (s *GormHistoryStore) Get(ctx context.Context, userID, id uuid.UUID) (*models.History, error) {
	var h models.History
	err := s.db.WithContext(ctx).Scopes(session.ForUser(userID)).First(&h, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	return &h, nil
}

func (s *GormHistoryStore) Delete(ctx context.Context, userID, id uuid.UUID) error {
	result := s.db.WithContext(ctx).Scopes(session.ForUser(userID)).Where("id = ?", id).Delete(&models.History{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete history: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

type GormAnalyticsStore struct {
	db *gorm.DB
}

func NewGormAnalyticsStore(db *gorm.DB) *GormAnalyticsStore {
	return &GormAnalyticsStore{db: db}
}

func (s *GormAnalyticsStore) Record(ctx context.Context, a *models.Analytics) error {
	return s.db.WithContext(ctx).Create(a).Error
}

func (s *GormAnalyticsStore) DailyTotals(ctx context.Context, userID uuid.UUID, since time.Time) ([]DailyTotal, error) {
	var rows []DailyTotal
	err := s.db.WithContext(ctx).Model(&models.Analytics{}).
		Select("date_trunc('day', created_at) AS day, COUNT(*) AS generations, COALESCE(SUM(word_count), 0) AS words").
		Scopes(session.ForUser(userID)).
		Where("event = ? AND created_at >= ?", models.EventGeneration, since).
		Group("day").
		Order("day ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate analytics: %w", err)
	}
	return rows, nil
}

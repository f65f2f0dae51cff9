package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// History is one generated audio artifact. RetentionExpiresAt is fixed at
// creation from the plan the user had then.
type History struct {
	ID                 uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID             uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	OriginalText       string         `gorm:"type:text;not null" json:"original_text"`
	Language           string         `gorm:"size:10;not null" json:"language"`
	VoiceID            string         `gorm:"size:100;not null" json:"voice_id"`
	WordCount          int64          `gorm:"not null" json:"word_count"`
	AudioKey           string         `gorm:"size:255" json:"-"`
	VoiceSettings      datatypes.JSON `gorm:"type:jsonb;default:'{}'" json:"voice_settings"`
	PlanAtCreation     string         `gorm:"size:20;not null" json:"plan_at_creation"`
	RetentionExpiresAt time.Time      `gorm:"not null;index" json:"retention_expires_at"`
	CreatedAt          time.Time      `gorm:"index" json:"created_at"`
}

func (History) TableName() string {
	return "history"
}

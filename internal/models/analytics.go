package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventGeneration = "generation"
	EventDownload   = "download"
)

type Analytics struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	Event     string    `gorm:"size:50;not null" json:"event"`
	WordCount int64     `gorm:"not null;default:0" json:"word_count"`
	Language  string    `gorm:"size:10" json:"language"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (Analytics) TableName() string {
	return "analytics"
}

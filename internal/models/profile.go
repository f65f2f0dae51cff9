package models

import (
	"time"

	"github.com/google/uuid"
)

// Profile carries a user's plan and word entitlements.
//
// WordsLimit and PlanWordsUsed describe the plan quota, which resets on every
// subscription payment. WordBalance holds purchased words and never expires.
type Profile struct {
	UserID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"user_id"`
	Plan           string     `gorm:"size:20;not null;default:'free'" json:"plan"`
	WordsLimit     int64      `gorm:"not null;default:0" json:"words_limit"`
	PlanWordsUsed  int64      `gorm:"not null;default:0" json:"plan_words_used"`
	WordBalance    int64      `gorm:"not null;default:0" json:"word_balance"`
	TotalWordsUsed int64      `gorm:"not null;default:0" json:"total_words_used"`
	PlanExpiresAt  *time.Time `json:"plan_expires_at"`
	Country        string     `gorm:"size:2" json:"country"`
	LastLoginAt    *time.Time `json:"last_login_at"`
	LastLoginIP    string     `gorm:"size:45" json:"-"`
	LoginCount     int        `gorm:"not null;default:0" json:"login_count"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// TwoFASettings stores the TOTP secret and the sha256 hashes of the
// remaining single-use backup codes. LastTOTPStep is the time step of the
// last accepted TOTP code; codes from that step or earlier are refused.
type TwoFASettings struct {
	UserID       uuid.UUID      `gorm:"type:uuid;primaryKey" json:"user_id"`
	Secret       string         `gorm:"size:64;not null" json:"-"`
	Enabled      bool           `gorm:"not null;default:false" json:"enabled"`
	BackupCodes  datatypes.JSON `gorm:"type:jsonb;default:'[]'" json:"-"`
	LastUsedAt   *time.Time     `json:"last_used_at"`
	LastTOTPStep int64          `gorm:"column:last_totp_step;not null;default:0" json:"-"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (TwoFASettings) TableName() string {
	return "user_2fa_settings"
}

type TwoFAAttempt struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index:idx_2fa_attempts_user_time,priority:1" json:"user_id"`
	Success   bool      `gorm:"not null" json:"success"`
	IsBackup  bool      `gorm:"not null;default:false" json:"is_backup"`
	IP        string    `gorm:"size:45" json:"ip"`
	CreatedAt time.Time `gorm:"index:idx_2fa_attempts_user_time,priority:2" json:"created_at"`
}

func (TwoFAAttempt) TableName() string {
	return "user_2fa_attempts"
}

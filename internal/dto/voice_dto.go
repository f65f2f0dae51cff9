package dto

import (
	"encoding/json"
	"time"

	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/ledger"
	"github.com/google/uuid"
)

type GenerateVoiceRequest struct {
	Text          string          `json:"text"`
	Language      string          `json:"language"`
	VoiceID       string          `json:"voice_id"`
	VoiceSettings json.RawMessage `json:"voice_settings,omitempty"`
}

type GenerateVoiceResponse struct {
	Success            bool           `json:"success"`
	AudioContent       string         `json:"audioContent"`
	WordsUsed          int64          `json:"wordsUsed"`
	HistoryID          uuid.UUID      `json:"historyId"`
	AppliedFrom        string         `json:"appliedFrom"`
	RetentionExpiresAt time.Time      `json:"retentionExpiresAt"`
	Balance            ledger.Summary `json:"balance"`
}

type PageResponse struct {
	Success bool        `json:"success"`
	Items   interface{} `json:"items"`
	Total   int64       `json:"total"`
	Page    int         `json:"page"`
	Limit   int         `json:"limit"`
}

package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/apperr"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/ledger"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/plans"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/storage"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/voice"
	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const MaxWordsPerRequest = 5000

// CountWords counts whitespace-separated words.
func CountWords(text string) int64 {
	return int64(len(strings.Fields(text)))
}

type GenerationService struct {
	ledger    *ledger.Ledger
	synth     voice.Synthesizer
	blobs     storage.BlobStore
	catalog   *plans.Catalog
	history   HistoryStore
	analytics AnalyticsStore
	now       func() time.Time
}

func NewGenerationService(
	l *ledger.Ledger,
	synth voice.Synthesizer,
	blobs storage.BlobStore,
	catalog *plans.Catalog,
	history HistoryStore,
	analytics AnalyticsStore,
) *GenerationService {
	return &GenerationService{
		ledger:    l,
		synth:     synth,
		blobs:     blobs,
		catalog:   catalog,
		history:   history,
		analytics: analytics,
		now:       time.Now,
	}
}

// Generate charges the words, synthesizes the audio and stores it as a
// history record. Nothing is synthesized or stored when the charge fails,
// and the charge is refunded when a later step fails.
func (s *GenerationService) Generate(ctx context.Context, userID uuid.UUID, req *dto.GenerateVoiceRequest) (*dto.GenerateVoiceResponse, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, apperr.Invalid("text is required")
	}
	if req.VoiceID == "" {
		return nil, apperr.Invalid("voice_id is required")
	}
	words := CountWords(text)
	if words > MaxWordsPerRequest {
		return nil, apperr.Invalid(fmt.Sprintf("text exceeds %d words", MaxWordsPerRequest))
	}
	settings, err := resolveSettings(req.VoiceSettings)
	if err != nil {
		return nil, err
	}
	settingsJSON, err := encodeSettings(settings)
	if err != nil {
		return nil, err
	}
	language := req.Language
	if language == "" {
		language = "en"
	}

	deduction, err := s.ledger.Deduct(ctx, userID, words)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	audio, err := s.synth.Synthesize(ctx, voice.Request{
		Text: text, VoiceID: req.VoiceID, Language: language, Settings: settings,
	})
	metrics.GenerationDurationSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		s.refund(userID, deduction.Split)
		return nil, apperr.Upstream("speech synthesis", err)
	}

	id := uuid.New()
	key := fmt.Sprintf("%s/%s.mp3", userID, id)
	if err := s.blobs.Upload(ctx, key, audio); err != nil {
		s.refund(userID, deduction.Split)
		return nil, apperr.Upstream("audio storage", err)
	}

	now := s.now()
	plan := deduction.Profile.Plan
	if ledger.PlanExpired(deduction.Profile, now) {
		plan = plans.Free
	}
	record := &models.History{
		ID:                 id,
		UserID:             userID,
		OriginalText:       text,
		Language:           language,
		VoiceID:            req.VoiceID,
		WordCount:          words,
		AudioKey:           key,
		VoiceSettings:      settingsJSON,
		PlanAtCreation:     plan,
		RetentionExpiresAt: now.Add(s.catalog.Retention(plan)),
		CreatedAt:          now,
	}
	if err := s.history.Create(ctx, record); err != nil {
		if delErr := s.blobs.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			slog.Warn("orphaned audio blob", "key", key, "error", delErr)
		}
		s.refund(userID, deduction.Split)
		return nil, err
	}

	s.track(ctx, &models.Analytics{
		ID: uuid.New(), UserID: userID, Event: models.EventGeneration,
		WordCount: words, Language: language, CreatedAt: now,
	})

	return &dto.GenerateVoiceResponse{
		Success:            true,
		AudioContent:       base64.StdEncoding.EncodeToString(audio),
		WordsUsed:          words,
		HistoryID:          id,
		AppliedFrom:        string(deduction.AppliedFrom),
		RetentionExpiresAt: record.RetentionExpiresAt,
		Balance:            deduction.Summary,
	}, nil
}

// resolveSettings overlays the requested voice settings on the defaults, so
// omitted fields keep their default values.
func resolveSettings(raw json.RawMessage) (voice.Settings, error) {
	settings := voice.DefaultSettings()
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &settings); err != nil {
			return settings, apperr.Invalid("voice_settings must be an object of numeric fields")
		}
	}
	if err := settings.Validate(); err != nil {
		return settings, apperr.Invalid(err.Error())
	}
	return settings, nil
}

func encodeSettings(settings voice.Settings) (datatypes.JSON, error) {
	data, err := json.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to encode voice settings: %w", err)
	}
	return datatypes.JSON(data), nil
}

func (s *GenerationService) refund(userID uuid.UUID, split ledger.Split) {
	if _, err := s.ledger.Refund(context.Background(), userID, split); err != nil {
		slog.Error("word refund failed", "user_id", userID.String(), "action", "refund",
			"from_plan", split.FromPlan, "from_purchased", split.FromPurchased, "error", err)
		sentry.CaptureException(err)
	}
}

// track records an analytics event. Failures never reach the caller.
func (s *GenerationService) track(ctx context.Context, a *models.Analytics) {
	if err := s.analytics.Record(context.WithoutCancel(ctx), a); err != nil {
		slog.Warn("analytics insert failed", "user_id", a.UserID.String(), "event", a.Event, "error", err)
	}
}

type HistoryService struct {
	history   HistoryStore
	analytics AnalyticsStore
	blobs     storage.BlobStore
	now       func() time.Time
}

func NewHistoryService(history HistoryStore, analytics AnalyticsStore, blobs storage.BlobStore) *HistoryService {
	return &HistoryService{history: history, analytics: analytics, blobs: blobs, now: time.Now}
}

func (s *HistoryService) List(ctx context.Context, userID uuid.UUID, page, limit int) ([]models.History, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return s.history.List(ctx, userID, limit, (page-1)*limit)
}

func (s *HistoryService) Get(ctx context.Context, userID, id uuid.UUID) (*models.History, error) {
	return s.history.Get(ctx, userID, id)
}

// Audio returns the stored MP3 for a history record owned by userID.
func (s *HistoryService) Audio(ctx context.Context, userID, id uuid.UUID) ([]byte, error) {
	h, err := s.history.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if h.AudioKey == "" {
		return nil, apperr.ErrNotFound
	}
	audio, err := s.blobs.Download(ctx, h.AudioKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, apperr.Upstream("audio storage", err)
	}
	if err := s.analytics.Record(context.WithoutCancel(ctx), &models.Analytics{
		ID: uuid.New(), UserID: userID, Event: models.EventDownload, Language: h.Language, CreatedAt: s.now(),
	}); err != nil {
		slog.Warn("analytics insert failed", "user_id", userID.String(), "event", models.EventDownload, "error", err)
	}
	return audio, nil
}

// Delete removes the blob (best effort) and then the record.
func (s *HistoryService) Delete(ctx context.Context, userID, id uuid.UUID) error {
	h, err := s.history.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if h.AudioKey != "" {
		if err := s.blobs.Delete(ctx, h.AudioKey); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
			slog.Warn("audio delete failed", "user_id", userID.String(), "key", h.AudioKey, "error", err)
		}
	}
	return s.history.Delete(ctx, userID, id)
}

// DailyUsage returns per-day generation totals for the last days days (7..90).
func (s *HistoryService) DailyUsage(ctx context.Context, userID uuid.UUID, days int) ([]DailyTotal, error) {
	days = min(max(days, 7), 90)
	since := s.now().AddDate(0, 0, -days)
	return s.analytics.DailyTotals(ctx, userID, since)
}

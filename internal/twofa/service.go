// Package twofa implements TOTP second-factor enrolment and verification
// with single-use backup codes and a failed-attempt limit.
package twofa

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/apperr"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/session"
	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"gorm.io/datatypes"
)

const (
	MaxFailedAttempts = 5
	AttemptWindow     = 5 * time.Minute
	BackupCodeCount   = 10
)

var (
	ErrInvalidCode   = apperr.New(apperr.ErrAuthentication, "invalid verification code")
	ErrNotEnabled    = apperr.New(apperr.ErrInvalidInput, "two-factor authentication is not enabled")
	ErrNotSetUp      = apperr.New(apperr.ErrInvalidInput, "two-factor setup has not been started")
	ErrAlreadyActive = apperr.New(apperr.ErrConflict, "two-factor authentication is already enabled")
)

var validateOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// TokenIssuer mints session tokens once the second factor is verified.
type TokenIssuer interface {
	IssueTokens(ctx context.Context, userID uuid.UUID, mfaState string) (*dto.AuthResponse, error)
}

type Service struct {
	store  Store
	tokens TokenIssuer
	issuer string
	now    func() time.Time
}

func NewService(store Store, tokens TokenIssuer, issuer string) *Service {
	return &Service{store: store, tokens: tokens, issuer: issuer, now: time.Now}
}

// Setup creates a new secret and backup codes. 2FA stays disabled until
// Enable confirms a code from the authenticator.
func (s *Service) Setup(ctx context.Context, userID uuid.UUID, email string) (*dto.TwoFASetupResponse, error) {
	existing, err := s.store.Get(ctx, userID)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	if existing != nil && existing.Enabled {
		return nil, ErrAlreadyActive
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: email,
		Period:      validateOpts.Period,
		Digits:      validateOpts.Digits,
		Algorithm:   validateOpts.Algorithm,
	})
	if err != nil {
		return nil, err
	}

	codes, hashes, err := newBackupCodes(BackupCodeCount)
	if err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(hashes)
	if err != nil {
		return nil, err
	}

	now := s.now()
	settings := &models.TwoFASettings{
		UserID:      userID,
		Secret:      key.Secret(),
		Enabled:     false,
		BackupCodes: datatypes.JSON(encoded),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Save(ctx, settings); err != nil {
		return nil, err
	}

	return &dto.TwoFASetupResponse{
		Success:     true,
		Secret:      key.Secret(),
		OTPAuthURL:  key.URL(),
		BackupCodes: codes,
	}, nil
}

func (s *Service) Enable(ctx context.Context, userID uuid.UUID, code, ip string) error {
	settings, err := s.store.Get(ctx, userID)
	if errors.Is(err, apperr.ErrNotFound) {
		return ErrNotSetUp
	}
	if err != nil {
		return err
	}
	if settings.Enabled {
		return ErrAlreadyActive
	}
	return s.checkCode(ctx, userID, code, false, ip, func(locked *models.TwoFASettings) {
		locked.Enabled = true
	})
}

// Verify checks a TOTP or backup code for a pending session and returns a
// token pair with the mfa claim set to verified.
func (s *Service) Verify(ctx context.Context, userID uuid.UUID, code string, isBackup bool, ip string) (*dto.AuthResponse, error) {
	settings, err := s.enabled(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.checkCode(ctx, settings.UserID, code, isBackup, ip, nil); err != nil {
		return nil, err
	}
	return s.tokens.IssueTokens(ctx, userID, session.MFAVerified)
}

func (s *Service) Disable(ctx context.Context, userID uuid.UUID, code string, isBackup bool, ip string) error {
	settings, err := s.enabled(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.checkCode(ctx, settings.UserID, code, isBackup, ip, nil); err != nil {
		return err
	}
	slog.Info("two-factor disabled", "user_id", userID.String(), "action", "2fa_disable")
	return s.store.Delete(ctx, userID)
}

func (s *Service) Status(ctx context.Context, userID uuid.UUID) (*dto.TwoFAStatusResponse, error) {
	settings, err := s.store.Get(ctx, userID)
	if errors.Is(err, apperr.ErrNotFound) {
		return &dto.TwoFAStatusResponse{Success: true}, nil
	}
	if err != nil {
		return nil, err
	}
	codes, err := decodeHashes(settings.BackupCodes)
	if err != nil {
		return nil, err
	}
	return &dto.TwoFAStatusResponse{
		Success:          true,
		Enabled:          settings.Enabled,
		BackupCodesCount: len(codes),
	}, nil
}

func (s *Service) enabled(ctx context.Context, userID uuid.UUID) (*models.TwoFASettings, error) {
	settings, err := s.store.Get(ctx, userID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, ErrNotEnabled
	}
	if err != nil {
		return nil, err
	}
	if !settings.Enabled {
		return nil, ErrNotEnabled
	}
	return settings, nil
}

// checkCode validates a code and records the attempt as one locked step.
// Once MaxFailedAttempts failures fall inside AttemptWindow every further
// attempt is refused until they age out. onMatch may amend the settings
// saved with a successful attempt.
func (s *Service) checkCode(ctx context.Context, userID uuid.UUID, code string, isBackup bool, ip string, onMatch func(*models.TwoFASettings)) error {
	now := s.now()
	attempt := &models.TwoFAAttempt{
		ID:        uuid.New(),
		UserID:    userID,
		IsBackup:  isBackup,
		IP:        ip,
		CreatedAt: now,
	}
	ok, err := s.store.Attempt(ctx, attempt, now.Add(-AttemptWindow), MaxFailedAttempts, func(settings *models.TwoFASettings) (bool, error) {
		var matched bool
		if isBackup {
			var err error
			if matched, err = spendBackupCode(settings, code); err != nil {
				return false, err
			}
		} else {
			matched = acceptTOTP(settings, code, now)
		}
		if matched {
			settings.LastUsedAt = &now
			settings.UpdatedAt = now
			if onMatch != nil {
				onMatch(settings)
			}
		}
		return matched, nil
	})
	if errors.Is(err, apperr.ErrTooManyAttempts) {
		metrics.TwoFAAttemptsTotal.WithLabelValues("limited").Inc()
		slog.Warn("2fa attempt limit reached", "user_id", userID.String(), "ip", ip)
		return err
	}
	if err != nil {
		return err
	}
	if !ok {
		metrics.TwoFAAttemptsTotal.WithLabelValues("failure").Inc()
		return ErrInvalidCode
	}
	metrics.TwoFAAttemptsTotal.WithLabelValues("success").Inc()
	return nil
}

// acceptTOTP matches code against the steps inside the allowed skew. Steps
// at or before the last accepted one are skipped, so each code works once.
func acceptTOTP(settings *models.TwoFASettings, code string, now time.Time) bool {
	code = strings.TrimSpace(code)
	if len(code) != validateOpts.Digits.Length() {
		return false
	}
	period := int64(validateOpts.Period)
	current := now.Unix() / period
	skew := int64(validateOpts.Skew)
	for step := current - skew; step <= current+skew; step++ {
		if step <= settings.LastTOTPStep {
			continue
		}
		expected, err := totp.GenerateCodeCustom(settings.Secret, time.Unix(step*period, 0).UTC(), validateOpts)
		if err != nil {
			return false
		}
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
			settings.LastTOTPStep = step
			return true
		}
	}
	return false
}

// spendBackupCode removes the code's hash from the settings if present.
func spendBackupCode(settings *models.TwoFASettings, code string) (bool, error) {
	hashes, err := decodeHashes(settings.BackupCodes)
	if err != nil {
		return false, err
	}
	remaining, ok := removeHash(hashes, HashBackupCode(code))
	if !ok {
		return false, nil
	}
	encoded, err := json.Marshal(remaining)
	if err != nil {
		return false, err
	}
	settings.BackupCodes = datatypes.JSON(encoded)
	return true, nil
}

const backupAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func newBackupCodes(n int) (codes, hashes []string, err error) {
	codes = make([]string, n)
	hashes = make([]string, n)
	buf := make([]byte, 8)
	for i := range codes {
		if _, err := rand.Read(buf); err != nil {
			return nil, nil, err
		}
		var b strings.Builder
		for j, c := range buf {
			if j == 4 {
				b.WriteByte('-')
			}
			b.WriteByte(backupAlphabet[int(c)%len(backupAlphabet)])
		}
		codes[i] = b.String()
		hashes[i] = HashBackupCode(codes[i])
	}
	return codes, hashes, nil
}

// HashBackupCode normalizes a code (case, dashes, spaces) and hashes it.
func HashBackupCode(code string) string {
	normalized := strings.ToUpper(strings.NewReplacer("-", "", " ", "").Replace(code))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

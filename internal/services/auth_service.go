package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/apperr"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/plans"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/session"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrEmailTaken         = apperr.New(apperr.ErrConflict, "email already registered")
	ErrInvalidCredentials = apperr.New(apperr.ErrAuthentication, "invalid email or password")
	ErrInvalidToken       = apperr.New(apperr.ErrAuthentication, "invalid or expired refresh token")
	ErrUserNotFound       = apperr.New(apperr.ErrNotFound, "user not found")
)

type AuthService struct {
	db      *gorm.DB
	cfg     *config.Config
	catalog *plans.Catalog
}

func NewAuthService(db *gorm.DB, cfg *config.Config, catalog *plans.Catalog) *AuthService {
	return &AuthService{db: db, cfg: cfg, catalog: catalog}
}

// Register creates the user together with a free-plan profile.
func (s *AuthService) Register(ctx context.Context, req *dto.RegisterRequest, ip string) (*dto.AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || len(req.Password) < 8 {
		return nil, apperr.Invalid("email required and password must be at least 8 characters")
	}

	db := s.db.WithContext(ctx)
	var existing models.User
	if err := db.Where("email = ?", email).First(&existing).Error; err == nil {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	var wordsLimit int64
	if free := s.catalog.Get(plans.Free); free != nil {
		wordsLimit = free.WordsLimit
	}

	now := time.Now()
	user := models.User{
		ID:       uuid.New(),
		Email:    email,
		Password: string(hash),
		Role:     "user",
	}
	profile := models.Profile{
		UserID:      user.ID,
		Plan:        plans.Free,
		WordsLimit:  wordsLimit,
		Country:     strings.ToUpper(req.Country),
		LastLoginAt: &now,
		LastLoginIP: ip,
		LoginCount:  1,
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
		if err := tx.Create(&profile).Error; err != nil {
			return fmt.Errorf("failed to create profile: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.generateTokenPair(ctx, &user, session.MFANone)
}

// Login checks the password and records login metadata. Users with 2FA
// enabled get a pending session that only the 2FA endpoints accept.
func (s *AuthService) Login(ctx context.Context, req *dto.LoginRequest, ip string) (*dto.AuthResponse, error) {
	db := s.db.WithContext(ctx)
	var user models.User
	if err := db.Where("email = ?", strings.ToLower(strings.TrimSpace(req.Email))).First(&user).Error; err != nil {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	err := db.Model(&models.Profile{}).Where("user_id = ?", user.ID).Updates(map[string]interface{}{
		"last_login_at": time.Now(),
		"last_login_ip": ip,
		"login_count":   gorm.Expr("login_count + 1"),
	}).Error
	if err != nil {
		slog.Warn("failed to record login", "user_id", user.ID.String(), "error", err)
	}

	state := session.MFANone
	var settings models.TwoFASettings
	if err := db.Select("enabled").First(&settings, "user_id = ?", user.ID).Error; err == nil && settings.Enabled {
		state = session.MFAPending
	}

	resp, err := s.generateTokenPair(ctx, &user, state)
	if err != nil {
		return nil, err
	}
	resp.MFARequired = state == session.MFAPending
	return resp, nil
}

func (s *AuthService) Refresh(ctx context.Context, req *dto.RefreshRequest) (*dto.AuthResponse, error) {
	db := s.db.WithContext(ctx)
	tokenHash := hashToken(req.RefreshToken)

	var stored models.RefreshToken
	if err := db.Where("token_hash = ? AND revoked = false", tokenHash).First(&stored).Error; err != nil {
		return nil, ErrInvalidToken
	}

	db.Model(&stored).Update("revoked", true)
	if time.Now().After(stored.ExpiresAt) {
		return nil, ErrInvalidToken
	}

	var user models.User
	if err := db.First(&user, "id = ?", stored.UserID).Error; err != nil {
		return nil, ErrUserNotFound
	}

	resp, err := s.generateTokenPair(ctx, &user, stored.MFAState)
	if err != nil {
		return nil, err
	}
	resp.MFARequired = stored.MFAState == session.MFAPending
	return resp, nil
}

func (s *AuthService) Logout(ctx context.Context, req *dto.LogoutRequest) error {
	return s.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("token_hash = ?", hashToken(req.RefreshToken)).
		Update("revoked", true).Error
}

// IssueTokens mints a fresh token pair with the given mfa state.
func (s *AuthService) IssueTokens(ctx context.Context, userID uuid.UUID, mfaState string) (*dto.AuthResponse, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		return nil, ErrUserNotFound
	}
	return s.generateTokenPair(ctx, &user, mfaState)
}

func (s *AuthService) Profile(ctx context.Context, userID uuid.UUID) (*dto.ProfileResponse, error) {
	db := s.db.WithContext(ctx)
	var user models.User
	if err := db.First(&user, "id = ?", userID).Error; err != nil {
		return nil, ErrUserNotFound
	}
	var profile models.Profile
	if err := db.First(&profile, "user_id = ?", userID).Error; err != nil {
		return nil, ErrUserNotFound
	}
	return &dto.ProfileResponse{
		ID:          user.ID,
		Email:       user.Email,
		Plan:        profile.Plan,
		Country:     profile.Country,
		LoginCount:  profile.LoginCount,
		LastLoginAt: profile.LastLoginAt,
		CreatedAt:   user.CreatedAt,
	}, nil
}

// DeleteAccount revokes credentials and soft-deletes the user. History rows
// stay until the retention sweeper removes them with their audio.
func (s *AuthService) DeleteAccount(ctx context.Context, userID uuid.UUID, password string) error {
	db := s.db.WithContext(ctx)
	var user models.User
	if err := db.First(&user, "id = ?", userID).Error; err != nil {
		return ErrUserNotFound
	}

	if password == "" {
		return apperr.Invalid("password is required")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&models.RefreshToken{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", userID).Delete(&models.TwoFASettings{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", userID).Delete(&models.TwoFAAttempt{}).Error; err != nil {
			return err
		}
		return tx.Delete(&user).Error
	})
}

func (s *AuthService) generateTokenPair(ctx context.Context, user *models.User, mfaState string) (*dto.AuthResponse, error) {
	if mfaState == "" {
		mfaState = session.MFANone
	}
	accessToken, err := s.generateAccessToken(user, mfaState)
	if err != nil {
		return nil, err
	}

	refreshToken, err := s.generateRefreshToken(ctx, user, mfaState)
	if err != nil {
		return nil, err
	}

	return &dto.AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User: dto.UserResponse{
			ID:    user.ID,
			Email: user.Email,
			Role:  user.Role,
		},
	}, nil
}

func (s *AuthService) generateAccessToken(user *models.User, mfaState string) (string, error) {
	return SignAccessToken(s.cfg.JWTSecret, s.cfg.JWTAccessExpiry, user.ID, user.Email, mfaState)
}

// SignAccessToken builds the HS256 access token read by middleware.JWTProtected.
func SignAccessToken(secret string, ttl time.Duration, userID uuid.UUID, email, mfaState string) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is not configured")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   userID.String(),
		"email": email,
		"mfa":   mfaState,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func (s *AuthService) generateRefreshToken(ctx context.Context, user *models.User, mfaState string) (string, error) {
	rawBytes := make([]byte, 32)
	if _, err := rand.Read(rawBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	rawToken := base64.URLEncoding.EncodeToString(rawBytes)

	record := models.RefreshToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: hashToken(rawToken),
		ExpiresAt: time.Now().Add(s.cfg.JWTRefreshExpiry),
		MFAState:  mfaState,
	}

	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return "", fmt.Errorf("failed to store refresh token: %w", err)
	}

	return rawToken, nil
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return fmt.Sprintf("%x", h)
}

package middleware

import (
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/session"
	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/fiber/v2"
)

func JWTProtected(cfg *config.Config) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey: jwtware.SigningKey{Key: []byte(cfg.JWTSecret)},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Success: false,
				Error:   "Unauthorized: invalid or expired token",
			})
		},
	})
}

// RequireMFA rejects sessions that still owe a second factor. It must run
// after JWTProtected.
func RequireMFA() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if session.GetMFAState(c) == session.MFAPending {
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
				Success: false,
				Error:   "Two-factor verification required",
			})
		}
		return c.Next()
	}
}

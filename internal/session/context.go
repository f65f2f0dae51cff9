// Package session reads the authenticated identity out of a Fiber request.
package session

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Values of the "mfa" access-token claim.
const (
	MFANone     = "none"
	MFAPending  = "pending"
	MFAVerified = "verified"
)

var ErrNoSession = errors.New("invalid token in context")

func claims(c *fiber.Ctx) (jwt.MapClaims, error) {
	token, ok := c.Locals("user").(*jwt.Token)
	if !ok || token == nil {
		return nil, ErrNoSession
	}
	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid claims")
	}
	return mc, nil
}

// GetUserID extracts the user UUID from JWT claims in context.
func GetUserID(c *fiber.Ctx) (uuid.UUID, error) {
	mc, err := claims(c)
	if err != nil {
		return uuid.Nil, err
	}
	sub, ok := mc["sub"].(string)
	if !ok {
		return uuid.Nil, errors.New("missing sub claim")
	}
	return uuid.Parse(sub)
}

// GetEmail returns the email claim, or "" when absent.
func GetEmail(c *fiber.Ctx) string {
	mc, err := claims(c)
	if err != nil {
		return ""
	}
	email, _ := mc["email"].(string)
	return email
}

// GetMFAState returns the mfa claim. Tokens minted without one count as MFANone.
func GetMFAState(c *fiber.Ctx) string {
	mc, err := claims(c)
	if err != nil {
		return ""
	}
	state, ok := mc["mfa"].(string)
	if !ok || state == "" {
		return MFANone
	}
	return state
}

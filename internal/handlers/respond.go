package handlers

import (
	"log/slog"
	"strconv"

	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/apperr"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/session"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// respondError writes the error envelope. Server-side failures are logged
// and their details withheld from the client.
func respondError(c *fiber.Ctx, err error) error {
	status := apperr.Status(err)
	msg := err.Error()
	switch {
	case status == fiber.StatusBadGateway:
		slog.Error("upstream failure", "method", c.Method(), "path", c.Path(), "error", err)
		msg = "Upstream service unavailable, please try again"
	case status >= fiber.StatusInternalServerError:
		slog.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
		msg = "Internal server error"
	}
	return c.Status(status).JSON(dto.ErrorResponse{Success: false, Error: msg})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Success: false, Error: msg})
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Success: false, Error: "Unauthorized"})
}

// currentUser resolves the session user or answers 401.
func currentUser(c *fiber.Ctx) (uuid.UUID, bool) {
	userID, err := session.GetUserID(c)
	if err != nil {
		return uuid.Nil, false
	}
	return userID, true
}

func pathID(c *fiber.Ctx) (uuid.UUID, error) {
	return uuid.Parse(c.Params("id"))
}

func queryInt(c *fiber.Ctx, key string, fallback int) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return fallback
	}
	return n
}

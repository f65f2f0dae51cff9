package handlers

import (
	"time"

	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/retention"
	"github.com/gofiber/fiber/v2"
)

type RetentionHandler struct {
	sweeper *retention.Sweeper
}

func NewRetentionHandler(sweeper *retention.Sweeper) *RetentionHandler {
	return &RetentionHandler{sweeper: sweeper}
}

// Cleanup runs one retention pass on demand (external scheduler hook).
func (h *RetentionHandler) Cleanup(c *fiber.Ctx) error {
	report := h.sweeper.Sweep(c.UserContext(), time.Now())
	return c.JSON(fiber.Map{"success": true, "report": report})
}

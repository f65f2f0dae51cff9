package handlers

import (
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/session"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/twofa"
	"github.com/gofiber/fiber/v2"
)

type TwoFAHandler struct {
	twofa *twofa.Service
}

func NewTwoFAHandler(svc *twofa.Service) *TwoFAHandler {
	return &TwoFAHandler{twofa: svc}
}

func (h *TwoFAHandler) Setup(c *fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}

	resp, err := h.twofa.Setup(c.UserContext(), userID, session.GetEmail(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(resp)
}

func (h *TwoFAHandler) Enable(c *fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}

	var req dto.TwoFACodeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	if err := h.twofa.Enable(c.UserContext(), userID, req.Code, c.IP()); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

func (h *TwoFAHandler) Verify(c *fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}

	var req dto.TwoFACodeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	tokens, err := h.twofa.Verify(c.UserContext(), userID, req.Code, req.IsBackup, c.IP())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.TwoFAVerifyResponse{
		Success:      true,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	})
}

func (h *TwoFAHandler) Disable(c *fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}

	var req dto.TwoFACodeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	if err := h.twofa.Disable(c.UserContext(), userID, req.Code, req.IsBackup, c.IP()); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

func (h *TwoFAHandler) Status(c *fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}

	resp, err := h.twofa.Status(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(resp)
}

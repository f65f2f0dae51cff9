package handlers

import (
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/services"
	"github.com/gofiber/fiber/v2"
)

type VoiceHandler struct {
	generation *services.GenerationService
	history    *services.HistoryService
}

func NewVoiceHandler(generation *services.GenerationService, history *services.HistoryService) *VoiceHandler {
	return &VoiceHandler{generation: generation, history: history}
}

func (h *VoiceHandler) Generate(c *fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}

	var req dto.GenerateVoiceRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	resp, err := h.generation.Generate(c.UserContext(), userID, &req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(resp)
}

func (h *VoiceHandler) ListHistory(c *fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}

	page := queryInt(c, "page", 1)
	limit := queryInt(c, "limit", 20)
	items, total, err := h.history.List(c.UserContext(), userID, page, limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.PageResponse{Success: true, Items: items, Total: total, Page: page, Limit: limit})
}

func (h *VoiceHandler) GetHistory(c *fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	id, err := pathID(c)
	if err != nil {
		return badRequest(c, "Invalid history id")
	}

	item, err := h.history.Get(c.UserContext(), userID, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "item": item})
}

func (h *VoiceHandler) HistoryAudio(c *fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	id, err := pathID(c)
	if err != nil {
		return badRequest(c, "Invalid history id")
	}

	audio, err := h.history.Audio(c.UserContext(), userID, id)
	if err != nil {
		return respondError(c, err)
	}
	c.Set(fiber.HeaderContentType, "audio/mpeg")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+id.String()+`.mp3"`)
	return c.Send(audio)
}

func (h *VoiceHandler) DeleteHistory(c *fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	id, err := pathID(c)
	if err != nil {
		return badRequest(c, "Invalid history id")
	}

	if err := h.history.Delete(c.UserContext(), userID, id); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

func (h *VoiceHandler) AnalyticsSummary(c *fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}

	days := queryInt(c, "days", 30)
	totals, err := h.history.DailyUsage(c.UserContext(), userID, days)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "days": totals})
}

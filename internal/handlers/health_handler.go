package handlers

import (
	"time"

	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/database"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/plans"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
)

type HealthHandler struct {
	catalog *plans.Catalog
	nc      *nats.Conn
}

func NewHealthHandler(catalog *plans.Catalog, nc *nats.Conn) *HealthHandler {
	return &HealthHandler{catalog: catalog, nc: nc}
}

func (h *HealthHandler) Check(c *fiber.Ctx) error {
	dbStatus := "ok"
	if err := database.Ping(); err != nil {
		dbStatus = "unhealthy: " + err.Error()
	}

	storageStatus := "unavailable"
	if h.nc != nil {
		storageStatus = h.nc.Status().String()
	}

	return c.JSON(dto.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		DB:        dbStatus,
		Storage:   storageStatus,
		PlanCount: len(h.catalog.All()),
	})
}

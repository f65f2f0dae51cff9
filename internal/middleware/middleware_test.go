package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/services"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/session"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func protectedApp(cfg *config.Config) *fiber.App {
	app := fiber.New()
	app.Get("/open", JWTProtected(cfg), func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/gated", JWTProtected(cfg), RequireMFA(), func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Post("/cron", CronSecret(cfg), func(c *fiber.Ctx) error { return c.SendString("ok") })
	return app
}

func call(t *testing.T, app *fiber.App, method, path, bearer string) int {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestRequireMFA(t *testing.T) {
	cfg := &config.Config{JWTSecret: "secret"}
	app := protectedApp(cfg)

	pending, err := services.SignAccessToken(cfg.JWTSecret, time.Minute, uuid.New(), "a@b.c", session.MFAPending)
	require.NoError(t, err)
	verified, err := services.SignAccessToken(cfg.JWTSecret, time.Minute, uuid.New(), "a@b.c", session.MFAVerified)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusUnauthorized, call(t, app, "GET", "/open", ""))
	assert.Equal(t, fiber.StatusOK, call(t, app, "GET", "/open", pending))
	assert.Equal(t, fiber.StatusForbidden, call(t, app, "GET", "/gated", pending))
	assert.Equal(t, fiber.StatusOK, call(t, app, "GET", "/gated", verified))
}

func TestCronSecret(t *testing.T) {
	app := protectedApp(&config.Config{JWTSecret: "secret", CronSecret: "cron-key"})
	assert.Equal(t, fiber.StatusUnauthorized, call(t, app, "POST", "/cron", "wrong"))
	assert.Equal(t, fiber.StatusOK, call(t, app, "POST", "/cron", "cron-key"))

	closed := protectedApp(&config.Config{JWTSecret: "secret"})
	assert.Equal(t, fiber.StatusForbidden, call(t, closed, "POST", "/cron", ""))
}

package routes

import (
	"time"

	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/models"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Handlers struct {
	Auth      *handlers.AuthHandler
	Health    *handlers.HealthHandler
	Voice     *handlers.VoiceHandler
	Billing   *handlers.BillingHandler
	TwoFA     *handlers.TwoFAHandler
	Retention *handlers.RetentionHandler
}

func Setup(app *fiber.App, cfg *config.Config, reg *prometheus.Registry, h Handlers) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	api := app.Group("/api")

	// General API rate limiter: 60 req/min per IP
	api.Use(limiter.New(limiter.Config{
		Max:               60,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))

	api.Get("/health", h.Health.Check)

	// Auth-specific rate limit: 10 req/min per IP (stricter)
	auth := api.Group("/auth")
	auth.Use(limiter.New(limiter.Config{
		Max:               10,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))
	auth.Post("/register", h.Auth.Register)
	auth.Post("/login", h.Auth.Login)
	auth.Post("/refresh", h.Auth.Refresh)

	// Webhooks are signature-authenticated, no JWT
	api.Post("/webhooks/stripe", h.Billing.StripeWebhook)

	api.Post("/cleanup-old-data", middleware.CronSecret(cfg), h.Retention.Cleanup)

	// 2FA accepts pending sessions so the second factor can be completed
	jwt := middleware.JWTProtected(cfg)
	twofa := api.Group("/2fa", jwt)
	twofa.Post("/setup", h.TwoFA.Setup)
	twofa.Post("/enable", h.TwoFA.Enable)
	twofa.Post("/verify", h.TwoFA.Verify)
	twofa.Post("/disable", h.TwoFA.Disable)
	twofa.Get("/status", h.TwoFA.Status)
	api.Post("/verify-2fa", jwt, h.TwoFA.Verify)

	// Everything else requires a fully verified session.
	// Middleware is applied per route so public routes stay untouched.
	protected := []fiber.Handler{jwt, middleware.RequireMFA()}
	with := func(handler fiber.Handler) []fiber.Handler {
		return append(append([]fiber.Handler{}, protected...), handler)
	}

	api.Post("/auth/logout", with(h.Auth.Logout)...)
	api.Delete("/auth/account", with(h.Auth.DeleteAccount)...)
	api.Get("/profile", with(h.Auth.Profile)...)
	api.Get("/profile/balance", with(h.Auth.Balance)...)

	api.Post("/generate-voice", with(h.Voice.Generate)...)
	api.Get("/history", with(h.Voice.ListHistory)...)
	api.Get("/history/:id", with(h.Voice.GetHistory)...)
	api.Get("/history/:id/audio", with(h.Voice.HistoryAudio)...)
	api.Delete("/history/:id", with(h.Voice.DeleteHistory)...)
	api.Get("/analytics/summary", with(h.Voice.AnalyticsSummary)...)

	api.Post("/create-checkout", with(h.Billing.CreateCheckout)...)
	api.Post("/purchase-words", with(h.Billing.PurchaseWords)...)
	api.Post("/verify-stripe-payment", with(h.Billing.Verify(models.GatewayStripe))...)
	api.Post("/verify-instamojo-payment", with(h.Billing.Verify(models.GatewayInstamojo))...)
	api.Post("/verify-razorpay-payment", with(h.Billing.Verify(models.GatewayRazorpay))...)
	api.Get("/payments", with(h.Billing.Payments)...)
	api.Get("/payments/:id/invoice", with(h.Billing.Invoice)...)
}

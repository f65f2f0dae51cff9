package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryfiber "github.com/getsentry/sentry-go/fiber"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/billing"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/database"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/ledger"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/logging"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/plans"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/retention"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/routes"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/services"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/storage"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/twofa"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/voice"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

func main() {
	cfg := config.Load()

	// Structured logging (JSON to stdout)
	logging.Setup(cfg.LogLevel)

	if cfg.JWTSecret == "" {
		slog.Error("JWT_SECRET environment variable is required")
		os.Exit(1)
	}
	if cfg.DBPassword == "" {
		slog.Error("DB_PASSWORD environment variable is required")
		os.Exit(1)
	}

	// Plan catalog
	catalog, err := plans.LoadFromFile(cfg.PlansConfigPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Error("failed to load plan catalog", "path", cfg.PlansConfigPath, "error", err)
			os.Exit(1)
		}
		slog.Warn("plans config not found, using built-in catalog", "path", cfg.PlansConfigPath)
		catalog = plans.Default()
	}
	slog.Info("plan catalog loaded", "plans", len(catalog.All()))

	// Database
	if err := database.Connect(cfg); err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	if err := database.Migrate(database.DB); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}

	// PostgreSQL log handler (ERROR+ async batch)
	pgLogHandler := logging.NewPGHandler(database.DB)
	logging.Setup(cfg.LogLevel, pgLogHandler)

	// Blob storage
	nc, err := nats.Connect(cfg.NATSURL, nats.Name("voiceclone-backend"), nats.MaxReconnects(-1))
	if err != nil {
		slog.Error("nats connection failed", "url", cfg.NATSURL, "error", err)
		os.Exit(1)
	}
	js, err := nc.JetStream()
	if err != nil {
		slog.Error("jetstream context failed", "error", err)
		os.Exit(1)
	}
	audioStore, err := storage.New(js, cfg.AudioBucket)
	if err != nil {
		slog.Error("audio bucket unavailable", "bucket", cfg.AudioBucket, "error", err)
		os.Exit(1)
	}
	invoiceStore, err := storage.New(js, cfg.InvoiceBucket)
	if err != nil {
		slog.Error("invoice bucket unavailable", "bucket", cfg.InvoiceBucket, "error", err)
		os.Exit(1)
	}

	// Balance cache (optional)
	var balanceCache ledger.Cache = ledger.NopCache{}
	if cfg.RedisURL != "" {
		rdb, err := ledger.NewRedisClient(context.Background(), cfg.RedisURL)
		if err != nil {
			slog.Warn("redis unavailable, balance cache disabled", "error", err)
		} else {
			defer rdb.Close()
			balanceCache = ledger.NewRedisCache(rdb)
		}
	}

	// Speech synthesis
	var synth voice.Synthesizer = voice.SilentSynthesizer{}
	if cfg.TTSAPIKey != "" {
		synth = voice.NewElevenLabsClient(cfg.TTSAPIURL, cfg.TTSAPIKey, cfg.TTSModelID, cfg.TTSTimeout)
	} else {
		slog.Warn("TTS_API_KEY not set, using silent synthesizer")
	}

	// Payment gateways, enabled by configuration
	var gateways []billing.Gateway
	if cfg.StripeSecretKey != "" {
		gateways = append(gateways, billing.NewStripeGateway(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.FrontendURL))
	}
	if cfg.InstamojoAPIKey != "" {
		gateways = append(gateways, billing.NewInstamojoGateway(
			cfg.InstamojoAPIURL, cfg.InstamojoAPIKey, cfg.InstamojoAuthToken, cfg.FrontendURL, cfg.GatewayTimeout))
	}
	if cfg.RazorpayKeyID != "" {
		gateways = append(gateways, billing.NewRazorpayGateway(
			cfg.RazorpayAPIURL, cfg.RazorpayKeyID, cfg.RazorpayKeySecret, cfg.GatewayTimeout))
	}
	slog.Info("payment gateways configured", "count", len(gateways))

	// Services
	words := ledger.New(ledger.NewGormStore(database.DB), balanceCache)
	historyStore := services.NewGormHistoryStore(database.DB)
	analyticsStore := services.NewGormAnalyticsStore(database.DB)

	authService := services.NewAuthService(database.DB, cfg, catalog)
	generationService := services.NewGenerationService(words, synth, audioStore, catalog, historyStore, analyticsStore)
	historyService := services.NewHistoryService(historyStore, analyticsStore, audioStore)
	billingService := billing.NewService(billing.NewGormStore(database.DB), catalog, words, invoiceStore, gateways...)
	twofaService := twofa.NewService(twofa.NewGormStore(database.DB), authService, cfg.TOTPIssuer)
	sweeper := retention.NewSweeper(retention.NewGormStore(database.DB), audioStore)

	// Retention cleanup
	cleanupDone := make(chan struct{})
	sweeper.Start(cfg.RetentionInterval, cleanupDone)

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.MustRegister(registry)

	// Sentry error tracking
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              dsn,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      os.Getenv("APP_ENV"),
		}); err != nil {
			slog.Error("sentry init failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit:    4 * 1024 * 1024,
		ErrorHandler: customErrorHandler,
	})

	// Sentry middleware
	app.Use(sentryfiber.New(sentryfiber.Options{
		Repanic:         true,
		WaitForDelivery: false,
	}))

	// Global middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path}\n",
	}))
	app.Use(middleware.CORS(cfg))
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-XSS-Protection", "1; mode=block")
		return c.Next()
	})

	// Routes
	routes.Setup(app, cfg, registry, routes.Handlers{
		Auth:      handlers.NewAuthHandler(authService, words),
		Health:    handlers.NewHealthHandler(catalog, nc),
		Voice:     handlers.NewVoiceHandler(generationService, historyService),
		Billing:   handlers.NewBillingHandler(billingService),
		TwoFA:     handlers.NewTwoFAHandler(twofaService),
		Retention: handlers.NewRetentionHandler(sweeper),
	})

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	slog.Info("shutting down server...")

	close(cleanupDone)

	if err := app.Shutdown(); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	pgLogHandler.Stop()
	sentry.Flush(2 * time.Second)

	if err := nc.Drain(); err != nil {
		slog.Error("nats drain error", "error", err)
	}

	// Close database connections
	if sqlDB, err := database.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			slog.Error("database close error", "error", err)
		}
	}

	slog.Info("server stopped")
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	}

	// Only expose error details for client errors (4xx), not server errors (5xx)
	if code >= 500 {
		slog.Error("unhandled server error", "method", c.Method(), "path", c.Path(), "error", err.Error())
		message = "Internal server error"
	}

	return c.Status(code).JSON(dto.ErrorResponse{Success: false, Error: message})
}

package config

import (
	"os"
	"time"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// JWT
	JWTSecret        string
	JWTAccessExpiry  time.Duration
	JWTRefreshExpiry time.Duration

	// TOTP issuer shown in authenticator apps
	TOTPIssuer string

	// Speech synthesis
	TTSAPIKey  string
	TTSAPIURL  string
	TTSModelID string
	TTSTimeout time.Duration

	// Payments
	StripeSecretKey     string
	StripeWebhookSecret string
	InstamojoAPIKey     string
	InstamojoAuthToken  string
	InstamojoAPIURL     string
	RazorpayKeyID       string
	RazorpayKeySecret   string
	RazorpayAPIURL      string
	FrontendURL         string
	GatewayTimeout      time.Duration

	// Blob storage (NATS JetStream object store)
	NATSURL       string
	AudioBucket   string
	InvoiceBucket string

	// Balance cache (optional)
	RedisURL string

	// Retention
	RetentionInterval time.Duration
	CronSecret        string

	// Server
	Port        string
	CORSOrigins string

	// Plan catalog
	PlansConfigPath string

	LogLevel string
}

func Load() *Config {
	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "voiceclone_db"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		JWTSecret:        getEnv("JWT_SECRET", ""),
		JWTAccessExpiry:  parseDuration(getEnv("JWT_ACCESS_EXPIRY", "15m"), 15*time.Minute),
		JWTRefreshExpiry: parseDuration(getEnv("JWT_REFRESH_EXPIRY", "168h"), 168*time.Hour),

		TOTPIssuer: getEnv("TOTP_ISSUER", "VoiceClone"),

		TTSAPIKey:  getEnv("TTS_API_KEY", ""),
		TTSAPIURL:  getEnv("TTS_API_URL", "https://api.elevenlabs.io"),
		TTSModelID: getEnv("TTS_MODEL_ID", "eleven_multilingual_v2"),
		TTSTimeout: parseDuration(getEnv("TTS_TIMEOUT", "60s"), 60*time.Second),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		InstamojoAPIKey:     getEnv("INSTAMOJO_API_KEY", ""),
		InstamojoAuthToken:  getEnv("INSTAMOJO_AUTH_TOKEN", ""),
		InstamojoAPIURL:     getEnv("INSTAMOJO_API_URL", "https://www.instamojo.com/api/1.1"),
		RazorpayKeyID:       getEnv("RAZORPAY_KEY_ID", ""),
		RazorpayKeySecret:   getEnv("RAZORPAY_KEY_SECRET", ""),
		RazorpayAPIURL:      getEnv("RAZORPAY_API_URL", "https://api.razorpay.com/v1"),
		FrontendURL:         getEnv("FRONTEND_URL", "http://localhost:5173"),
		GatewayTimeout:      parseDuration(getEnv("GATEWAY_TIMEOUT", "15s"), 15*time.Second),

		NATSURL:       getEnv("NATS_URL", "nats://127.0.0.1:4222"),
		AudioBucket:   getEnv("AUDIO_BUCKET", "audio"),
		InvoiceBucket: getEnv("INVOICE_BUCKET", "invoices"),

		RedisURL: getEnv("REDIS_URL", ""),

		RetentionInterval: parseDuration(getEnv("RETENTION_INTERVAL", "24h"), 24*time.Hour),
		CronSecret:        getEnv("CRON_SECRET", ""),

		Port:        getEnv("PORT", "8080"),
		CORSOrigins: getEnv("CORS_ORIGINS", "*"),

		PlansConfigPath: getEnv("PLANS_CONFIG_PATH", "plans.toml"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

func (c *Config) DSN() string {
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode +
		" TimeZone=UTC"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

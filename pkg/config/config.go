package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the trade journal server.
type Config struct {
	Port string

	// Database
	DBPath string

	// Auth
	JWTSecret string

	// Quote providers
	AShareQuoteURL string
	ForexQuoteURL  string
	ProviderTimeout time.Duration

	// Price cache / monitor
	PriceTTL           time.Duration
	MonitorTickInterval time.Duration
	AlertCoolDown      time.Duration

	// Consistency auditor
	ConsistencyInterval time.Duration

	// Billing
	BillingEnabled bool

	// SMTP (default notification transport)
	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	SMTPFrom string

	// SendGrid (alternate notification transport, used when API key is set)
	SendGridAPIKey string

	// Admin bootstrap credentials
	AdminUsername string
	AdminPassword string

	// Reporting timezone: one zone per deployment, fixed at startup.
	ReportingTimezone string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	dbPath := getEnv("DB_PATH", "")
	if dbPath == "" {
		dbPath = getEnv("DATABASE_PATH", "./data/journal.db")
	}

	return &Config{
		Port:                getEnv("PORT", "8080"),
		DBPath:              dbPath,
		JWTSecret:           getEnv("JWT_SECRET", "dev-secret"),
		AShareQuoteURL:      getEnv("ASHARE_QUOTE_URL", "https://hq.sinajs.cn/list="),
		ForexQuoteURL:       getEnv("FOREX_QUOTE_URL", "https://api.exchangerate.host/latest"),
		ProviderTimeout:     getEnvDuration("PROVIDER_TIMEOUT", 5*time.Second),
		PriceTTL:            getEnvDuration("PRICE_TTL", 30*time.Second),
		MonitorTickInterval: getEnvDuration("MONITOR_TICK_INTERVAL", 10*time.Second),
		AlertCoolDown:       getEnvDuration("ALERT_COOLDOWN", 10*time.Second),
		ConsistencyInterval: getEnvDuration("CONSISTENCY_INTERVAL", 5*time.Minute),
		BillingEnabled:      getEnv("BILLING_ENABLED", "false") == "true",
		SMTPHost:            getEnv("SMTP_HOST", "localhost"),
		SMTPPort:            getEnvInt("SMTP_PORT", 25),
		SMTPUser:            os.Getenv("SMTP_USER"),
		SMTPPass:            os.Getenv("SMTP_PASS"),
		SMTPFrom:            getEnv("SMTP_FROM", "alerts@tradejournal.local"),
		SendGridAPIKey:      os.Getenv("SENDGRID_API_KEY"),
		AdminUsername:       getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:       os.Getenv("ADMIN_PASSWORD"),
		ReportingTimezone:   getEnv("REPORTING_TIMEZONE", "Asia/Shanghai"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

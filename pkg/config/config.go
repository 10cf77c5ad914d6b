package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string

	JWTSecret     string
	JWTIssuer     string
	JWTTTLMinutes int

	// HH platform API.
	HHBaseURL   string
	HHUserAgent string

	// Scheduler cadence and safety margins.
	TickSpec            string // cron spec for the processing tick
	ReconcileSpec       string // cron spec for the status sync pass
	SubmitDelaySeconds  int    // spacing between submissions on one credential
	QuotaBackoffMinutes int    // reschedule delay when no budget remains
	MaxConsecutiveFails int    // search-level failures before status=error
	UserParallelism     int    // distinct users processed concurrently

	OpenRouterAPIKey   string
	OpenRouterBase     string
	OpenRouterModel    string
	OpenRouterAppTitle string
	OpenRouterReferer  string
}

// Load reads environment variables, optionally from a .env file if present.
func Load() Config {
	// Try to load .env if it exists; ignore error if file not found
	_ = godotenv.Load()

	return Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379/0"),

		JWTSecret:     getEnv("JWT_SECRET", "dev-secret-change"),
		JWTIssuer:     getEnv("JWT_ISSUER", "hhpilot"),
		JWTTTLMinutes: getEnvInt("JWT_TTL_MINUTES", 60),

		HHBaseURL:   getEnv("HH_BASE_URL", "https://api.hh.ru"),
		HHUserAgent: getEnv("HH_USER_AGENT", "hhpilot/1.0"),

		TickSpec:            getEnv("SCHEDULER_TICK_SPEC", "@every 1m"),
		ReconcileSpec:       getEnv("SCHEDULER_RECONCILE_SPEC", "@every 30m"),
		SubmitDelaySeconds:  getEnvInt("SUBMIT_DELAY_SECONDS", 3),
		QuotaBackoffMinutes: getEnvInt("QUOTA_BACKOFF_MINUTES", 60),
		MaxConsecutiveFails: getEnvInt("MAX_CONSECUTIVE_FAILS", 5),
		UserParallelism:     getEnvInt("USER_PARALLELISM", 4),

		OpenRouterAPIKey:   os.Getenv("OPENROUTER_API_KEY"),
		OpenRouterBase:     os.Getenv("OPENROUTER_BASE_URL"),
		OpenRouterModel:    os.Getenv("OPENROUTER_MODEL"),
		OpenRouterAppTitle: getEnv("OPENROUTER_APP_TITLE", "hhpilot"),
		OpenRouterReferer:  os.Getenv("OPENROUTER_REFERER"),
	}
}

func (c Config) SubmitDelay() time.Duration {
	return time.Duration(c.SubmitDelaySeconds) * time.Second
}

func (c Config) QuotaBackoff() time.Duration {
	return time.Duration(c.QuotaBackoffMinutes) * time.Minute
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	DB_USERNAME string
	DB_PASSWORD string
	DB_HOST     string
	DB_PORT     string
	DB_NAME     string
	DISABLE_TLS string

	HTTP_ADDR       string
	ALLOWED_HEADERS string
	PUBLIC_URL      string

	// Google login
	GOOGLE_CLIENT_ID     string
	GOOGLE_CLIENT_SECRET string
	GOOGLE_CALLBACK_URL  string
	ALLOWED_EMAIL_DOMAIN string
	// Comma separated; these users are created as owners on first login
	OWNER_EMAILS         string

	SESSION_SECRET    string
	SESSION_TTL_HOURS int
	STATE_SECRET      string

	// Shared secret presented by the scheduler on sync/backfill endpoints
	CRON_SECRET string

	// ServiceTitan
	ST_CLIENT_ID     string
	ST_CLIENT_SECRET string
	ST_TENANT_ID     string
	ST_APP_KEY       string
	ST_BASE_URL      string
	ST_AUTH_URL      string

	// Task management ids used when pushing collection tasks
	ST_TASK_TYPE_ID   int
	ST_TASK_SOURCE_ID int

	SLACK_WEBHOOK_URL string
	REDIS_URL         string

	UPLOAD_DIR      string
	UPLOAD_BASE_URL string

	SYNC_CRON     string
	BACKFILL_CRON string

	// Otel
	OTEL_EXPORTER_OTLP_ENDPOINT string
}

func ReadConfig() *Config {
	return &Config{
		DB_USERNAME: os.Getenv("DB_USERNAME"),
		DB_PASSWORD: os.Getenv("DB_PASSWORD"),
		DB_HOST:     os.Getenv("DB_HOST"),
		DB_PORT:     os.Getenv("DB_PORT"),
		DB_NAME:     os.Getenv("DB_NAME"),
		DISABLE_TLS: os.Getenv("DISABLE_TLS"),

		HTTP_ADDR:       getEnvOrDefault("HTTP_ADDR", "0.0.0.0:6060"),
		ALLOWED_HEADERS: getEnvOrDefault("ALLOWED_HEADERS", "Content-Type,Authorization"),
		PUBLIC_URL:      getEnvOrDefault("PUBLIC_URL", "http://localhost:3000"),

		GOOGLE_CLIENT_ID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GOOGLE_CLIENT_SECRET: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GOOGLE_CALLBACK_URL:  os.Getenv("GOOGLE_CALLBACK_URL"),
		ALLOWED_EMAIL_DOMAIN: os.Getenv("ALLOWED_EMAIL_DOMAIN"),
		OWNER_EMAILS:         os.Getenv("OWNER_EMAILS"),

		SESSION_SECRET:    os.Getenv("SESSION_SECRET"),
		SESSION_TTL_HOURS: getIntOrDefault("SESSION_TTL_HOURS", 168),
		STATE_SECRET:      os.Getenv("STATE_SECRET"),

		CRON_SECRET: os.Getenv("CRON_SECRET"),

		ST_CLIENT_ID:     os.Getenv("ST_CLIENT_ID"),
		ST_CLIENT_SECRET: os.Getenv("ST_CLIENT_SECRET"),
		ST_TENANT_ID:     os.Getenv("ST_TENANT_ID"),
		ST_APP_KEY:       os.Getenv("ST_APP_KEY"),
		ST_BASE_URL:      getEnvOrDefault("ST_BASE_URL", "https://api.servicetitan.io"),
		ST_AUTH_URL:      getEnvOrDefault("ST_AUTH_URL", "https://auth.servicetitan.io/connect/token"),

		ST_TASK_TYPE_ID:   getIntOrDefault("ST_TASK_TYPE_ID", 0),
		ST_TASK_SOURCE_ID: getIntOrDefault("ST_TASK_SOURCE_ID", 0),

		SLACK_WEBHOOK_URL: os.Getenv("SLACK_WEBHOOK_URL"),
		REDIS_URL:         os.Getenv("REDIS_URL"),

		UPLOAD_DIR:      getEnvOrDefault("UPLOAD_DIR", "./uploads"),
		UPLOAD_BASE_URL: getEnvOrDefault("UPLOAD_BASE_URL", "/uploads"),

		SYNC_CRON:     getEnvOrDefault("SYNC_CRON", "0 */30 * * * *"),
		BACKFILL_CRON: getEnvOrDefault("BACKFILL_CRON", "0 */5 * * * *"),

		OTEL_EXPORTER_OTLP_ENDPOINT: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}
}

// ServiceTitanEnabled reports whether enough credentials are present to talk to ServiceTitan.
func (c *Config) ServiceTitanEnabled() bool {
	return c.ST_CLIENT_ID != "" && c.ST_CLIENT_SECRET != "" && c.ST_TENANT_ID != ""
}

// OwnerEmails returns the lower-cased OWNER_EMAILS list.
func (c *Config) OwnerEmails() []string {
	var out []string
	for _, e := range strings.Split(c.OWNER_EMAILS, ",") {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			out = append(out, e)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return defaultValue
}

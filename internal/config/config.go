package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ModeStandalone = "standalone"
	ModeHandler    = "handler"
)

// Config holds the application configuration.
type Config struct {
	Env      string
	Port     string
	AppName  string
	LogLevel string

	DatabaseURL string

	SessionSecret        string
	SessionSecretDerived bool // true when SESSION_SECRET was not provided
	SessionStore         string
	SessionCookieName    string
	SessionMaxAge        time.Duration
	SessionTouchAfter    time.Duration
	SessionSweepSchedule string

	VercelURL string
	HostURL   string

	CORSOrigins []string
}

// Load loads configuration from environment variables or sets defaults.
// A .env file in the working directory is read first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	maxAge, err := getDuration("SESSION_MAX_AGE", 7*24*time.Hour)
	if err != nil {
		return nil, err
	}
	touchAfter, err := getDuration("SESSION_TOUCH_AFTER", 24*time.Hour)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Env:                  getEnv("NODE_ENV", getEnv("APP_ENV", "development")),
		Port:                 getEnv("PORT", "3000"),
		AppName:              getEnv("APP_NAME", "Notes"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		DatabaseURL:          getEnv("ATLAS_URL", getEnv("DATABASE_URL", "notes.db")),
		SessionSecret:        os.Getenv("SESSION_SECRET"),
		SessionStore:         getEnv("SESSION_STORE", "sqlite"),
		SessionCookieName:    getEnv("SESSION_COOKIE_NAME", "notes.sid"),
		SessionMaxAge:        maxAge,
		SessionTouchAfter:    touchAfter,
		SessionSweepSchedule: getEnv("SESSION_SWEEP_SCHEDULE", "@every 1h"),
		VercelURL:            os.Getenv("VERCEL_URL"),
		HostURL:              os.Getenv("HOST_URL"),
		CORSOrigins:          splitList(getEnv("CORS_ORIGINS", "*")),
	}

	if cfg.SessionSecret == "" {
		secret, err := randomSecret()
		if err != nil {
			return nil, err
		}
		cfg.SessionSecret = secret
		cfg.SessionSecretDerived = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports configuration values that cannot work together.
func (c *Config) Validate() error {
	switch c.SessionStore {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("unknown SESSION_STORE %q (want sqlite or memory)", c.SessionStore)
	}
	if c.SessionMaxAge <= 0 {
		return fmt.Errorf("SESSION_MAX_AGE must be positive, got %s", c.SessionMaxAge)
	}
	if c.SessionTouchAfter < 0 {
		return fmt.Errorf("SESSION_TOUCH_AFTER must not be negative, got %s", c.SessionTouchAfter)
	}
	return nil
}

// Production reports whether the app runs with NODE_ENV=production.
func (c *Config) Production() bool {
	return c.Env == "production"
}

// Mode returns the execution mode selected by the environment.
func (c *Config) Mode() string {
	if c.Production() {
		return ModeHandler
	}
	return ModeStandalone
}

// ListenAddr is the address the standalone listener binds to.
func (c *Config) ListenAddr() string {
	return "0.0.0.0:" + c.Port
}

// BaseURL resolves the canonical base URL of the application.
// An externally assigned hostname wins, then an explicit host and port,
// then whatever the incoming request says about itself.
func (c *Config) BaseURL(r *http.Request) string {
	if c.VercelURL != "" {
		return "https://" + c.VercelURL
	}
	if c.HostURL != "" {
		return c.HostURL + ":" + c.Port
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// Helper to get an environment variable with a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

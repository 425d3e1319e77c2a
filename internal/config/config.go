package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

const envPrefix = "LEARNHUB_"

// Config holds the server configuration.
type Config struct {
	// PostgreSQL DSN. Empty runs on the in-memory store.
	DatabaseURL string

	// Server bind address (host:port)
	HTTPAddr string

	// HMAC key for session cookies. Empty in dev mode; the server then
	// generates a throwaway key.
	SessionSecret string

	// Lifetime of a session cookie
	SessionTTL time.Duration

	// Enable debug logging
	Debug bool

	// Initial registry flags; adjustable at runtime through the admin API
	LoginBlocked        bool
	MaxSessions         int
	RejectExternalEntry bool

	// Supported locales and the fallback used for guests and unknown preferences
	Locales       []string
	DefaultLocale string

	// Invitations never activated within this age are swept
	InvitationMaxAge time.Duration

	// Cron spec for the in-process sweep. Empty leaves sweeping to an external trigger.
	SweepSchedule string

	// Substring identifying external single sign-on cookies expired on logout
	SSOCookieMarker string

	// Upper bound for the reverse DNS lookup made during login
	DNSTimeout time.Duration

	// Per-client login attempts per second and burst
	LoginRate  float64
	LoginBurst int

	// Sessions idle longer than this are logged off
	SessionIdleTimeout time.Duration

	// Optional administrator provisioned at startup
	AdminName     string
	AdminPassword string
}

// Load reads configuration from LEARNHUB_* environment variables with fallback defaults.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:         getEnv("PG_DSN", ""),
		HTTPAddr:            getEnv("HTTP_ADDR", ":8080"),
		SessionSecret:       getEnv("SESSION_SECRET", ""),
		SessionTTL:          getEnvDuration("SESSION_TTL", 12*time.Hour),
		Debug:               getEnvBool("DEBUG", false),
		LoginBlocked:        getEnvBool("LOGIN_BLOCKED", false),
		MaxSessions:         getEnvInt("MAX_SESSIONS", 0),
		RejectExternalEntry: getEnvBool("REJECT_EXTERNAL_ENTRY", false),
		Locales:             getEnvList("LOCALES", []string{"en", "de", "fr"}),
		DefaultLocale:       getEnv("DEFAULT_LOCALE", "en"),
		InvitationMaxAge:    getEnvDuration("INVITATION_MAX_AGE", 6*time.Hour),
		SweepSchedule:       os.Getenv(envPrefix + "SWEEP_SCHEDULE"),
		SSOCookieMarker:     getEnv("SSO_COOKIE_MARKER", "_shibsession_"),
		DNSTimeout:          getEnvDuration("DNS_TIMEOUT", 2*time.Second),
		LoginRate:           getEnvFloat("LOGIN_RATE", 5),
		LoginBurst:          getEnvInt("LOGIN_BURST", 10),
		SessionIdleTimeout:  getEnvDuration("SESSION_IDLE_TIMEOUT", 2*time.Hour),
		AdminName:           getEnv("ADMIN_NAME", ""),
		AdminPassword:       getEnv("ADMIN_PASSWORD", ""),
	}
	if _, set := os.LookupEnv(envPrefix + "SWEEP_SCHEDULE"); !set {
		cfg.SweepSchedule = "@every 1h"
	}

	if cfg.HTTPAddr == "" {
		return nil, fmt.Errorf("%sHTTP_ADDR is required", envPrefix)
	}
	if cfg.MaxSessions < 0 {
		return nil, fmt.Errorf("%sMAX_SESSIONS must not be negative", envPrefix)
	}
	if cfg.SessionSecret != "" && len(cfg.SessionSecret) < 32 {
		return nil, fmt.Errorf("%sSESSION_SECRET must be at least 32 bytes", envPrefix)
	}
	if cfg.InvitationMaxAge <= 0 {
		return nil, fmt.Errorf("%sINVITATION_MAX_AGE must be positive", envPrefix)
	}
	if cfg.LoginRate <= 0 || cfg.LoginBurst <= 0 {
		return nil, fmt.Errorf("%sLOGIN_RATE and %sLOGIN_BURST must be positive", envPrefix, envPrefix)
	}
	if (cfg.AdminName == "") != (cfg.AdminPassword == "") {
		return nil, fmt.Errorf("%sADMIN_NAME and %sADMIN_PASSWORD must be set together", envPrefix, envPrefix)
	}
	return cfg, nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(envPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(envPrefix + key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(envPrefix + key); value != "" {
		var result float64
		if _, err := fmt.Sscanf(value, "%g", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(envPrefix + key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(envPrefix + key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(envPrefix + key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

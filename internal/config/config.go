package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"loginway/internal/auth"
)

// Session delivery modes.
const (
	DeliveryCookie = "cookie"
	DeliveryBody   = "body"
	DeliveryBoth   = "both"
)

// Apple verification modes.
const (
	AppleUnverified = "unverified"
	AppleJWKS       = "jwks"
)

// Config aggregates runtime configuration for the login gateway.
type Config struct {
	Environment    string
	HTTPPort       int
	LogLevel       string
	LogFormat      string
	AllowedOrigins []string

	DataStore   string
	DatabaseURL string
	SQLitePath  string

	GoogleIOSClientID  string
	GoogleWebClientID  string
	GoogleClientSecret string
	GoogleRedirectURL  string
	FrontendURL        string

	AppleClientID     string
	AppleVerification string
	AppleJWKSURL      string

	SessionCookieName      string
	CookieDomain           string
	CookieSecure           bool
	SessionTTL             time.Duration
	SessionDelivery        string
	SessionCleanupInterval time.Duration
	VerifyTimeout          time.Duration
	BcryptCost             int

	// Development-only password account created at startup on the memory store.
	SeedEmail    string
	SeedPassword string
}

// Load reads configuration from environment variables with sensible defaults for local development.
func Load() (Config, error) {
	databaseURL, err := getEnvOrFile("DATABASE_URL", "/run/secrets/loginway_database_url")
	if err != nil {
		return Config{}, err
	}

	clientSecret, err := getEnvOrFile("GOOGLE_CLIENT_SECRET", "/run/secrets/loginway_google_client_secret")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Environment:    strings.ToLower(getEnv("APP_ENV", "development")),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:      strings.ToLower(getEnv("LOG_FORMAT", "text")),
		AllowedOrigins: parseCSV(getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:8080")),

		DataStore:   strings.ToLower(getEnv("DATA_STORE", "memory")),
		DatabaseURL: strings.TrimSpace(databaseURL),
		SQLitePath:  getEnv("SQLITE_PATH", "loginway.db"),

		GoogleIOSClientID:  strings.TrimSpace(os.Getenv("GOOGLE_IOS_CLIENT_ID")),
		GoogleWebClientID:  strings.TrimSpace(os.Getenv("GOOGLE_WEB_CLIENT_ID")),
		GoogleClientSecret: strings.TrimSpace(clientSecret),
		GoogleRedirectURL:  strings.TrimSpace(os.Getenv("GOOGLE_REDIRECT_URL")),
		FrontendURL:        strings.TrimRight(strings.TrimSpace(getEnv("FRONTEND_URL", "http://localhost:3000")), "/"),

		AppleClientID:     strings.TrimSpace(os.Getenv("APPLE_CLIENT_ID")),
		AppleVerification: strings.ToLower(getEnv("APPLE_VERIFICATION", AppleUnverified)),
		AppleJWKSURL:      getEnv("APPLE_JWKS_URL", auth.AppleJWKSURL),

		SessionCookieName: getEnv("SESSION_COOKIE_NAME", "session"),
		CookieDomain:      strings.TrimSpace(os.Getenv("COOKIE_DOMAIN")),
		SessionDelivery:   strings.ToLower(getEnv("SESSION_DELIVERY", DeliveryBoth)),

		SeedEmail:    strings.TrimSpace(os.Getenv("DEV_SEED_EMAIL")),
		SeedPassword: os.Getenv("DEV_SEED_PASSWORD"),
	}

	portValue := getEnv("PORT", getEnv("HTTP_PORT", "8080"))
	port, err := strconv.Atoi(portValue)
	if err != nil || port <= 0 || port > 65535 {
		return Config{}, fmt.Errorf("invalid port %q", portValue)
	}
	cfg.HTTPPort = port

	if cfg.CookieSecure, err = parseBool("COOKIE_SECURE", true); err != nil {
		return Config{}, err
	}
	if cfg.SessionTTL, err = parseDuration("SESSION_TTL", auth.DefaultSessionTTL); err != nil {
		return Config{}, err
	}
	if cfg.SessionTTL <= 0 {
		return Config{}, fmt.Errorf("SESSION_TTL must be positive")
	}
	if cfg.VerifyTimeout, err = parseDuration("VERIFY_TIMEOUT", auth.DefaultVerifyTimeout); err != nil {
		return Config{}, err
	}
	if cfg.VerifyTimeout <= 0 {
		return Config{}, fmt.Errorf("VERIFY_TIMEOUT must be positive")
	}
	if cfg.SessionCleanupInterval, err = parseDuration("SESSION_CLEANUP_INTERVAL", 15*time.Minute); err != nil {
		return Config{}, err
	}

	costValue := getEnv("BCRYPT_COST", strconv.Itoa(bcrypt.DefaultCost))
	cost, err := strconv.Atoi(costValue)
	if err != nil || cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return Config{}, fmt.Errorf("invalid BCRYPT_COST %q", costValue)
	}
	cfg.BcryptCost = cost

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.DataStore {
	case "memory", "sqlite":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATA_STORE is postgres but DATABASE_URL is not set")
		}
	default:
		return fmt.Errorf("unsupported DATA_STORE %q", c.DataStore)
	}

	switch c.SessionDelivery {
	case DeliveryCookie, DeliveryBody, DeliveryBoth:
	default:
		return fmt.Errorf("unsupported SESSION_DELIVERY %q", c.SessionDelivery)
	}

	switch c.AppleVerification {
	case AppleUnverified:
	case AppleJWKS:
		if c.AppleClientID == "" {
			return fmt.Errorf("APPLE_VERIFICATION is jwks but APPLE_CLIENT_ID is not set")
		}
	default:
		return fmt.Errorf("unsupported APPLE_VERIFICATION %q", c.AppleVerification)
	}

	if strings.TrimSpace(c.SessionCookieName) == "" {
		return fmt.Errorf("SESSION_COOKIE_NAME must not be empty")
	}

	if !c.IsDevelopment() {
		if len(c.AllowedOrigins) == 0 {
			return fmt.Errorf("ALLOWED_ORIGINS must define at least one origin outside development")
		}
		for _, origin := range c.AllowedOrigins {
			if origin == "*" {
				return fmt.Errorf("ALLOWED_ORIGINS cannot contain * outside development")
			}
		}
	}
	return nil
}

// HTTPAddress returns the address the HTTP server should bind to.
func (c Config) HTTPAddress() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// IsDevelopment reports whether the gateway runs in a development environment.
func (c Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev" || c.Environment == "local"
}

// Google returns the Google client settings.
func (c Config) Google() auth.GoogleConfig {
	return auth.GoogleConfig{
		IOSClientID:  c.GoogleIOSClientID,
		WebClientID:  c.GoogleWebClientID,
		ClientSecret: c.GoogleClientSecret,
		RedirectURL:  c.GoogleRedirectURL,
		Timeout:      c.VerifyTimeout,
	}
}

// SeedEnabled reports whether a development account should be created at startup.
func (c Config) SeedEnabled() bool {
	return c.IsDevelopment() && c.DataStore == "memory" && c.SeedEmail != "" && c.SeedPassword != ""
}

// GoogleEnabled reports whether at least one Google audience is configured.
func (c Config) GoogleEnabled() bool {
	return c.GoogleIOSClientID != "" || c.GoogleWebClientID != ""
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseBool(key string, fallback bool) (bool, error) {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return b, nil
}

func parseDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return d, nil
}

func getEnvOrFile(key, defaultPath string) (string, error) {
	if value := os.Getenv(key); value != "" {
		return value, nil
	}

	fileKey := key + "_FILE"
	if path := os.Getenv(fileKey); path != "" {
		return readSecret(path, fileKey)
	}

	if defaultPath != "" {
		return readSecret(defaultPath, key)
	}

	return "", nil
}

func readSecret(path, name string) (string, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("config: reading %s (%s): %w", name, path, err)
	}

	value := strings.TrimSpace(string(contents))
	if value == "" {
		return "", fmt.Errorf("config: %s (%s) is empty", name, path)
	}
	return value, nil
}

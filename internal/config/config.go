package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variable names recognized by the loader.
const (
	EnvConfigPath        = "CONFIG_PATH"
	EnvDBConnection      = "DB_CONNECTION"
	EnvBaseURL           = "BASE_URL"
	EnvSessionServiceURL = "SESSION_SERVICE_URL"
	EnvSessionSecret     = "SESSION_SECRET"
	EnvSessionExpiry     = "SESSION_EXPIRY"
	EnvRedisAddr         = "REDIS_ADDR"
	EnvResetSecret       = "RESET_SECRET"
	EnvStripeSecretKey   = "STRIPE_SECRET_KEY"
	EnvStripePriceBase   = "STRIPE_PRICE_ID_BASE"
	EnvStripePricePro    = "STRIPE_PRICE_ID_PRO"
	EnvGoogleClientID    = "GOOGLE_CLIENT_ID"
	EnvGoogleSecret      = "GOOGLE_CLIENT_SECRET"
	EnvMicrosoftClientID = "MICROSOFT_CLIENT_ID"
	EnvMicrosoftSecret   = "MICROSOFT_CLIENT_SECRET"
)

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string
}

// LoadFromEnv loads app config from environment variables.
func LoadFromEnv() (AppConfig, error) {
	return AppConfig{ConfigPath: ResolveConfigPath(os.Getenv(EnvConfigPath))}, nil
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// ErrMissingDatabaseDSN indicates no database DSN is present in the config file.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file)")

// OAuthClient holds one provider's client registration.
type OAuthClient struct {
	ClientID     string `yaml:"client-id"`
	ClientSecret string `yaml:"client-secret"`
}

// SessionConfig holds local session cookie settings.
type SessionConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// StripeConfig holds billing provider settings.
type StripeConfig struct {
	SecretKey   string `yaml:"secret-key"`
	PriceIDBase string `yaml:"price-id-base"`
	PriceIDPro  string `yaml:"price-id-pro"`
}

// Settings is the full application configuration.
type Settings struct {
	BaseURL           string        `yaml:"base-url"`
	SessionServiceURL string        `yaml:"session-service-url"`
	RedisAddr         string        `yaml:"redis-addr"`
	ResetSecret       string        `yaml:"reset-secret"`
	Session           SessionConfig `yaml:"session"`
	Stripe            StripeConfig  `yaml:"stripe"`
	Google            OAuthClient   `yaml:"google"`
	Microsoft         OAuthClient   `yaml:"microsoft"`
}

// LoadDatabaseDSN reads the database DSN from the YAML config file.
// The DB_CONNECTION environment variable wins over the file.
func LoadDatabaseDSN(configPath string) (string, error) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		return dsn, nil
	}

	// fileConfig maps the YAML fields needed for DSN resolution.
	type fileConfig struct {
		DatabaseDSN string `yaml:"database-dsn"`
		Database    struct {
			DSN string `yaml:"dsn"`
		} `yaml:"database"`
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("read config file: %w", err)
	}

	var cfg fileConfig
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return "", fmt.Errorf("parse config file: %w", errUnmarshal)
	}

	if dsn := strings.TrimSpace(cfg.DatabaseDSN); dsn != "" {
		return dsn, nil
	}
	if dsn := strings.TrimSpace(cfg.Database.DSN); dsn != "" {
		return dsn, nil
	}
	return "", ErrMissingDatabaseDSN
}

// defaultSessionExpiry is used when the config omits or invalidates
// the session expiry.
const defaultSessionExpiry = 7 * 24 * time.Hour

// LoadSettings loads application settings from the YAML config file
// with environment overrides on top.
func LoadSettings(configPath string) (Settings, error) {
	result := Settings{Session: SessionConfig{Expiry: defaultSessionExpiry}}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		if errUnmarshal := yaml.Unmarshal(data, &result); errUnmarshal != nil {
			return Settings{}, fmt.Errorf("parse config file: %w", errUnmarshal)
		}
	}

	applyEnv(&result.BaseURL, EnvBaseURL)
	applyEnv(&result.SessionServiceURL, EnvSessionServiceURL)
	applyEnv(&result.RedisAddr, EnvRedisAddr)
	applyEnv(&result.ResetSecret, EnvResetSecret)
	applyEnv(&result.Session.Secret, EnvSessionSecret)
	applyEnv(&result.Stripe.SecretKey, EnvStripeSecretKey)
	applyEnv(&result.Stripe.PriceIDBase, EnvStripePriceBase)
	applyEnv(&result.Stripe.PriceIDPro, EnvStripePricePro)
	applyEnv(&result.Google.ClientID, EnvGoogleClientID)
	applyEnv(&result.Google.ClientSecret, EnvGoogleSecret)
	applyEnv(&result.Microsoft.ClientID, EnvMicrosoftClientID)
	applyEnv(&result.Microsoft.ClientSecret, EnvMicrosoftSecret)

	if expiryRaw := strings.TrimSpace(os.Getenv(EnvSessionExpiry)); expiryRaw != "" {
		if expiry, errParse := time.ParseDuration(expiryRaw); errParse == nil && expiry > 0 {
			result.Session.Expiry = expiry
		}
	}
	if result.Session.Expiry <= 0 {
		result.Session.Expiry = defaultSessionExpiry
	}
	return result, nil
}

// applyEnv overwrites target when the environment variable is set.
func applyEnv(target *string, envName string) {
	if value := strings.TrimSpace(os.Getenv(envName)); value != "" {
		*target = value
	}
}

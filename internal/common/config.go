// Package common provides shared utilities for Gatekeep
package common

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	defaultJWTSecret        = "dev-jwt-secret-change-in-production"
	defaultJWTRefreshSecret = "dev-jwt-refresh-secret-change-in-production"
	defaultStateSecret      = "dev-state-secret-change-in-production"
)

// Config holds all configuration for Gatekeep
type Config struct {
	Environment string           `toml:"environment"`
	Server      ServerConfig     `toml:"server"`
	Storage     StorageConfig    `toml:"storage"`
	Redis       RedisConfig      `toml:"redis"`
	Auth        AuthConfig       `toml:"auth"`
	Federation  FederationConfig `toml:"federation"`
	Mail        MailConfig       `toml:"mail"`
	Logging     LoggingConfig    `toml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host        string `toml:"host"`
	Port        int    `toml:"port"`
	FrontendURL string `toml:"frontend_url"` // base URL used in verification and reset links
}

// StorageConfig selects and configures the credential store backend.
type StorageConfig struct {
	Backend   string `toml:"backend"` // "surrealdb" (default) or "memory"
	Address   string `toml:"address"`
	Namespace string `toml:"namespace"`
	Database  string `toml:"database"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
}

// RedisConfig configures the access-token denylist. When disabled an
// in-process denylist is used, which does not survive restarts.
type RedisConfig struct {
	Enabled  bool   `toml:"enabled"`
	Address  string `toml:"address"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Prefix   string `toml:"prefix"`
}

// AuthConfig holds session token configuration.
type AuthConfig struct {
	JWTSecret           string `toml:"jwt_secret"`
	JWTExpiresIn        string `toml:"jwt_expires_in"` // e.g. "15m"
	JWTRefreshSecret    string `toml:"jwt_refresh_secret"`
	JWTRefreshExpiresIn string `toml:"jwt_refresh_expires_in"` // e.g. "7d"
	BcryptCost          int    `toml:"bcrypt_cost"`
	StateSecret         string `toml:"state_secret"` // signs federated login state
}

// GetAccessExpiry returns the session access token lifetime.
func (c *AuthConfig) GetAccessExpiry() time.Duration {
	return ParseExpiration(c.JWTExpiresIn, 15*time.Minute)
}

// GetRefreshExpiry returns the session refresh token lifetime.
func (c *AuthConfig) GetRefreshExpiry() time.Duration {
	return ParseExpiration(c.JWTRefreshExpiresIn, 7*24*time.Hour)
}

// FederationConfig holds external identity provider settings.
type FederationConfig struct {
	GitHub   ProviderConfig `toml:"github"`
	DingTalk ProviderConfig `toml:"dingtalk"`
}

// ProviderConfig holds OAuth client credentials for an external provider.
type ProviderConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	CallbackURL  string `toml:"callback_url"`
	BaseURL      string `toml:"base_url"` // API base URL override, used by tests
	RateLimit    int    `toml:"rate_limit"`
	Timeout      string `toml:"timeout"`
}

// Enabled reports whether the provider has credentials configured.
func (c *ProviderConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// GetTimeout parses and returns the timeout duration
func (c *ProviderConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 15 * time.Second
	}
	return d
}

// MailConfig holds SMTP settings. When disabled, mails are written to the log.
type MailConfig struct {
	Enabled  bool   `toml:"enabled"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	From     string `toml:"from"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        3000,
			FrontendURL: "http://localhost:3001",
		},
		Storage: StorageConfig{
			Backend:   "surrealdb",
			Address:   "ws://localhost:8000/rpc",
			Namespace: "gatekeep",
			Database:  "gatekeep",
			Username:  "root",
			Password:  "root",
		},
		Redis: RedisConfig{
			Address: "localhost:6379",
			Prefix:  "gatekeep",
		},
		Auth: AuthConfig{
			JWTSecret:           defaultJWTSecret,
			JWTExpiresIn:        "15m",
			JWTRefreshSecret:    defaultJWTRefreshSecret,
			JWTRefreshExpiresIn: "7d",
			BcryptCost:          12,
			StateSecret:         defaultStateSecret,
		},
		Federation: FederationConfig{
			GitHub: ProviderConfig{
				RateLimit: 10,
				Timeout:   "15s",
			},
			DingTalk: ProviderConfig{
				RateLimit: 10,
				Timeout:   "15s",
			},
		},
		Mail: MailConfig{
			Port: 587,
			From: "Gatekeep <noreply@localhost>",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Later files override earlier ones
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	envString("GATEKEEP_ENV", &config.Environment)
	envString("GATEKEEP_HOST", &config.Server.Host)
	envInt("GATEKEEP_PORT", &config.Server.Port)
	envString("GATEKEEP_FRONTEND_URL", &config.Server.FrontendURL)
	envString("GATEKEEP_LOG_LEVEL", &config.Logging.Level)
	envString("GATEKEEP_LOG_FORMAT", &config.Logging.Format)

	envString("GATEKEEP_STORAGE_BACKEND", &config.Storage.Backend)
	envString("GATEKEEP_STORAGE_ADDRESS", &config.Storage.Address)
	envString("GATEKEEP_STORAGE_NAMESPACE", &config.Storage.Namespace)
	envString("GATEKEEP_STORAGE_DATABASE", &config.Storage.Database)
	envString("GATEKEEP_STORAGE_USERNAME", &config.Storage.Username)
	envString("GATEKEEP_STORAGE_PASSWORD", &config.Storage.Password)

	envBool("GATEKEEP_REDIS_ENABLED", &config.Redis.Enabled)
	envString("GATEKEEP_REDIS_ADDRESS", &config.Redis.Address)
	envString("GATEKEEP_REDIS_PASSWORD", &config.Redis.Password)
	envInt("GATEKEEP_REDIS_DB", &config.Redis.DB)

	// Auth overrides
	envString("GATEKEEP_JWT_SECRET", &config.Auth.JWTSecret)
	envString("GATEKEEP_JWT_EXPIRES_IN", &config.Auth.JWTExpiresIn)
	envString("GATEKEEP_JWT_REFRESH_SECRET", &config.Auth.JWTRefreshSecret)
	envString("GATEKEEP_JWT_REFRESH_EXPIRES_IN", &config.Auth.JWTRefreshExpiresIn)
	envInt("GATEKEEP_BCRYPT_COST", &config.Auth.BcryptCost)
	envString("GATEKEEP_STATE_SECRET", &config.Auth.StateSecret)

	envString("GATEKEEP_GITHUB_CLIENT_ID", &config.Federation.GitHub.ClientID)
	envString("GATEKEEP_GITHUB_CLIENT_SECRET", &config.Federation.GitHub.ClientSecret)
	envString("GATEKEEP_GITHUB_CALLBACK_URL", &config.Federation.GitHub.CallbackURL)
	envString("GATEKEEP_DINGTALK_APP_KEY", &config.Federation.DingTalk.ClientID)
	envString("GATEKEEP_DINGTALK_APP_SECRET", &config.Federation.DingTalk.ClientSecret)
	envString("GATEKEEP_DINGTALK_CALLBACK_URL", &config.Federation.DingTalk.CallbackURL)

	envBool("GATEKEEP_MAIL_ENABLED", &config.Mail.Enabled)
	envString("GATEKEEP_MAIL_HOST", &config.Mail.Host)
	envInt("GATEKEEP_MAIL_PORT", &config.Mail.Port)
	envString("GATEKEEP_MAIL_USER", &config.Mail.User)
	envString("GATEKEEP_MAIL_PASSWORD", &config.Mail.Password)
	envString("GATEKEEP_MAIL_FROM", &config.Mail.From)
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// Validate rejects configurations that are unsafe to serve with.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" || c.Auth.JWTRefreshSecret == "" {
		return errors.New("auth: jwt_secret and jwt_refresh_secret are required")
	}
	if c.Auth.JWTSecret == c.Auth.JWTRefreshSecret {
		return errors.New("auth: jwt_secret and jwt_refresh_secret must differ")
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		return fmt.Errorf("auth: bcrypt_cost %d out of range", c.Auth.BcryptCost)
	}
	if c.IsProduction() {
		if c.Auth.JWTSecret == defaultJWTSecret || c.Auth.JWTRefreshSecret == defaultJWTRefreshSecret {
			return errors.New("auth: default jwt secrets are not allowed in production")
		}
		if c.Auth.StateSecret == defaultStateSecret {
			return errors.New("auth: default state_secret is not allowed in production")
		}
	}
	switch c.Storage.Backend {
	case "", "surrealdb", "memory":
	default:
		return fmt.Errorf("storage: unknown backend %q (supported: surrealdb, memory)", c.Storage.Backend)
	}
	return nil
}

var expirationPattern = regexp.MustCompile(`^(\d+)([smhd])$`)

// ParseExpiration parses compact durations such as "15m" or "7d". Standard Go
// duration strings are accepted as well. Invalid or non-positive input yields def.
func ParseExpiration(s string, def time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if m := expirationPattern.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			return def
		}
		unit := map[string]time.Duration{
			"s": time.Second,
			"m": time.Minute,
			"h": time.Hour,
			"d": 24 * time.Hour,
		}[m[2]]
		return time.Duration(n) * unit
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return def
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates runtime configuration for the tasktrack API.
type Config struct {
	Server   ServerConfig
	Postgres PostgresConfig
	Auth     AuthConfig
	Metrics  MetricsConfig
}

// ServerConfig parameterizes the HTTP server.
type ServerConfig struct {
	Host         string
	Port         int
	BasePath     string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Address returns the listen address in host:port form.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// PostgresConfig contains PostgreSQL connection details.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	URL      string
	MaxConns int32
	Migrate  bool
}

// DSN returns the PostgreSQL DSN string. An explicit URL wins over the parts.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}

// AuthConfig groups authentication-related settings.
type AuthConfig struct {
	AccessTokenSecret  string
	RefreshTokenSecret string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	BcryptCost         int
}

// Validate reports settings that would break the separation between token classes.
func (a AuthConfig) Validate() error {
	if strings.TrimSpace(a.AccessTokenSecret) == "" || strings.TrimSpace(a.RefreshTokenSecret) == "" {
		return errors.New("access and refresh token secrets must be set")
	}
	if a.AccessTokenSecret == a.RefreshTokenSecret {
		return errors.New("access and refresh token secrets must differ")
	}
	if a.AccessTokenTTL <= 0 || a.RefreshTokenTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	return nil
}

// MetricsConfig groups observability settings.
type MetricsConfig struct {
	PrometheusPath string
}

// ClientConfig parameterizes the command-line client.
type ClientConfig struct {
	BaseURL      string
	SessionPath  string
	Timeout      time.Duration
	RetryBase    time.Duration
	RetryAttempt int
}

// Load reads configuration values from environment variables, applying defaults.
func Load() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Host:         getString("TASKTRACK_API_HOST", "0.0.0.0"),
			Port:         getInt("TASKTRACK_API_PORT", 3001),
			BasePath:     getString("TASKTRACK_API_BASE_PATH", "/api"),
			ReadTimeout:  getDuration("TASKTRACK_API_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getDuration("TASKTRACK_API_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getDuration("TASKTRACK_API_IDLE_TIMEOUT", 60*time.Second),
		},
		Postgres: PostgresConfig{
			Host:     getString("POSTGRES_HOST", "localhost"),
			Port:     getInt("POSTGRES_PORT", 5432),
			User:     getString("POSTGRES_USER", "tasktrack"),
			Password: getString("POSTGRES_PASSWORD", "change-me"),
			Database: getString("POSTGRES_DB", "tasktrack"),
			SSLMode:  strings.ToLower(getString("POSTGRES_SSL_MODE", "disable")),
			URL:      getString("DATABASE_URL", ""),
			MaxConns: int32(getInt("POSTGRES_MAX_CONNS", 10)),
			Migrate:  getBool("TASKTRACK_MIGRATE", true),
		},
		Auth: loadAuthConfig(),
		Metrics: MetricsConfig{
			PrometheusPath: getString("TASKTRACK_METRICS_PATH", "/metrics"),
		},
	}

	if err := cfg.Auth.Validate(); err != nil {
		return Config{}, fmt.Errorf("auth config: %w", err)
	}

	return cfg, nil
}

// LoadClient reads the command-line client settings.
func LoadClient() ClientConfig {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	return ClientConfig{
		BaseURL:      strings.TrimRight(getString("TASKTRACK_API_URL", "http://localhost:3001/api"), "/"),
		SessionPath:  getString("TASKTRACK_SESSION_FILE", home+"/.tasktrack.db"),
		Timeout:      getDuration("TASKTRACK_CLIENT_TIMEOUT", 10*time.Second),
		RetryBase:    getDuration("TASKTRACK_CLIENT_RETRY_BASE", time.Second),
		RetryAttempt: getInt("TASKTRACK_CLIENT_RETRIES", 3),
	}
}

func getString(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.ToLower(strings.TrimSpace(val))
		switch val {
		case "1", "true", "t", "yes", "y":
			return true
		case "0", "false", "f", "no", "n":
			return false
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func loadAuthConfig() AuthConfig {
	cost := getInt("TASKTRACK_AUTH_BCRYPT_COST", 12)
	if cost < 4 || cost > 31 {
		cost = 12
	}

	return AuthConfig{
		AccessTokenSecret:  getString("JWT_ACCESS_SECRET", "access_secret_key"),
		RefreshTokenSecret: getString("JWT_REFRESH_SECRET", "refresh_secret_key"),
		AccessTokenTTL:     getDuration("TASKTRACK_AUTH_ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL:    getDuration("TASKTRACK_AUTH_REFRESH_TOKEN_TTL", 7*24*time.Hour),
		BcryptCost:         cost,
	}
}

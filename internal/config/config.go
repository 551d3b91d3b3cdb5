// Package config loads the application configuration from config/config.yaml
// with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Storage     StorageConfig     `yaml:"storage"`
	Session     SessionConfig     `yaml:"session"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Push        PushConfig        `yaml:"push"`
	OAuth       OAuthConfig       `yaml:"oauth"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
	CORSOrigins []string          `yaml:"cors_origins"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// DatabaseConfig configures the Postgres connection.
type DatabaseConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// RedisConfig configures the optional session cache.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// StorageConfig configures the local image store.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// SessionConfig configures session cookies.
type SessionConfig struct {
	CookieName string        `yaml:"cookie_name"`
	TTL        time.Duration `yaml:"ttl"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	VoyageAPIKey string `yaml:"voyage_api_key"`
	Model        string `yaml:"model"`
}

// PushConfig configures FCM delivery.
type PushConfig struct {
	ProjectID       string `yaml:"project_id"`
	CredentialsFile string `yaml:"credentials_file"`
}

// OAuthProvider holds one provider's client credentials.
type OAuthProvider struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// OAuthConfig holds OAuth client credentials per provider.
type OAuthConfig struct {
	Google OAuthProvider `yaml:"google"`
	Twitch OAuthProvider `yaml:"twitch"`
}

// RateLimitConfig configures the per-client request limiter.
type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	Burst             int `yaml:"burst"`
}

// MaintenanceConfig configures the nightly maintenance job.
type MaintenanceConfig struct {
	// Schedule is a cron expression. Empty disables the job.
	Schedule string `yaml:"schedule"`
}

// Load reads config/config.yaml relative to the working directory.
func Load() (*Config, error) {
	return LoadFromPath(filepath.Join("config", "config.yaml"))
}

// LoadFromPath reads the configuration file at path, applies environment
// overrides and validates the result. A missing file is not an error; the
// configuration then comes entirely from the environment.
func LoadFromPath(path string) (*Config, error) {
	// .env is optional and only fills in unset variables.
	_ = godotenv.Load()

	cfg := defaults()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case os.IsNotExist(err):
		// Environment-only configuration.
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	applyEnv(cfg)

	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database dsn is required (DATABASE_URL)")
	}
	if cfg.Storage.Path == "" {
		return nil, fmt.Errorf("storage path is required (STORAGE_PATH)")
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server:   ServerConfig{Address: ":3000"},
		Database: DatabaseConfig{MaxOpenConns: 16},
		Session:  SessionConfig{CookieName: "HALOGIN-SESSION", TTL: 90 * 24 * time.Hour},
		Embedding: EmbeddingConfig{
			Model: "voyage-large-2",
		},
		RateLimit:   RateLimitConfig{RequestsPerSecond: 25, Burst: 50},
		Maintenance: MaintenanceConfig{Schedule: "0 4 * * *"},
		CORSOrigins: []string{"*"},
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("REDIS_ADDRESS"); v != "" {
		cfg.Redis.Address = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = n
		}
	}
	if v := os.Getenv("STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("VOYAGE_API_KEY"); v != "" {
		cfg.Embedding.VoyageAPIKey = v
	}
	if v := os.Getenv("FCM_PROJECT_ID"); v != "" {
		cfg.Push.ProjectID = v
	}
	if v := os.Getenv("FCM_CREDENTIALS_FILE"); v != "" {
		cfg.Push.CredentialsFile = v
	}
	if v := os.Getenv("GOOGLE_CLIENT_ID"); v != "" {
		cfg.OAuth.Google.ClientID = v
	}
	if v := os.Getenv("GOOGLE_CLIENT_SECRET"); v != "" {
		cfg.OAuth.Google.ClientSecret = v
	}
	if v := os.Getenv("TWITCH_CLIENT_ID"); v != "" {
		cfg.OAuth.Twitch.ClientID = v
	}
	if v := os.Getenv("TWITCH_CLIENT_SECRET"); v != "" {
		cfg.OAuth.Twitch.ClientSecret = v
	}
}

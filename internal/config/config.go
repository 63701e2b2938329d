// Package config loads application configuration from command-line flags, environment
// variables and an optional .env file.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/listenupapp/coverfinder-server/internal/validation"
)

// Config holds the application configuration.
type Config struct {
	App      AppConfig
	Logger   LoggerConfig
	Data     DataConfig
	Server   ServerConfig
	Tracking TrackingConfig
	ITunes   ITunesConfig
	Sitemap  SitemapConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string `env:"ENV" validate:"oneof=development staging production"`
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string `env:"LOG_LEVEL" validate:"oneof=debug info warn error"`
}

// DataConfig holds on-disk storage configuration.
type DataConfig struct {
	BasePath string `env:"DATA_PATH" validate:"required"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Name         string        `env:"SERVER_NAME"`
	Port         string        `env:"SERVER_PORT" validate:"required,numeric"`
	PublicURL    string        `env:"PUBLIC_URL" validate:"required,url"` // canonical site origin used in the sitemap
	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" validate:"gt=0"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" validate:"gt=0"`
	CORSOrigins  []string      `env:"CORS_ORIGINS"`

	// Inbound per-IP limit on every /api/v1 route.
	RateLimitPerMinute int `env:"RATE_LIMIT_PER_MINUTE" validate:"gt=0"`

	// Stricter keyed limit on the tracking endpoints.
	TrackRateLimitPerMinute int `env:"TRACK_RATE_LIMIT_PER_MINUTE" validate:"gt=0"`
	TrackRateLimitBurst     int `env:"TRACK_RATE_LIMIT_BURST" validate:"gt=0"`
}

// TrackingConfig holds search-activity tracking configuration.
type TrackingConfig struct {
	// Persist disables the durable store when false; tracking then lives in memory only.
	Persist             bool          `env:"TRACKING_PERSIST"`
	BatchSaveInterval   time.Duration `env:"TRACKING_BATCH_SAVE_INTERVAL" validate:"gt=0"`
	MinSaveInterval     time.Duration `env:"TRACKING_MIN_SAVE_INTERVAL" validate:"gte=0"`
	MaxPendingMutations int           `env:"TRACKING_MAX_PENDING_MUTATIONS" validate:"gte=0"`
	MaxSearchQueries    int           `env:"TRACKING_MAX_SEARCH_QUERIES" validate:"gt=0"`
	MaxAlbumPages       int           `env:"TRACKING_MAX_ALBUM_PAGES" validate:"gt=0"`
	QueueSize           int           `env:"TRACKING_QUEUE_SIZE" validate:"gt=0"`
	CleanupInterval     time.Duration `env:"TRACKING_CLEANUP_INTERVAL" validate:"gte=0"` // 0 disables the job
	MaintenanceToken    string        `env:"MAINTENANCE_TOKEN"`
}

// ITunesConfig holds iTunes Search API configuration.
type ITunesConfig struct {
	BaseURL           string        `env:"ITUNES_BASE_URL" validate:"required,url"`
	Country           string        `env:"ITUNES_COUNTRY" validate:"len=2"`
	RequestsPerMinute int           `env:"ITUNES_REQUESTS_PER_MINUTE" validate:"gt=0"`
	Burst             int           `env:"ITUNES_BURST" validate:"gt=0"`
	Timeout           time.Duration `env:"ITUNES_TIMEOUT" validate:"gt=0"`
}

// SitemapConfig bounds the dynamic part of the sitemap.
type SitemapConfig struct {
	MaxQueries int `env:"SITEMAP_MAX_QUERIES" validate:"gte=0"`
	MaxAlbums  int `env:"SITEMAP_MAX_ALBUMS" validate:"gte=0"`
}

// LoadConfig loads configuration with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig(args []string) (*Config, error) {
	fs := flag.NewFlagSet("coverfinder", flag.ContinueOnError)

	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	dataPath := fs.String("data-path", "", "Base path for the database")
	serverPort := fs.String("port", "", "Server port (default: 8080)")
	publicURL := fs.String("public-url", "", "Canonical public site URL")
	persist := fs.String("tracking-persist", "", "Persist tracked activity (default: true)")
	envFile := fs.String("env-file", ".env", "Path to .env file")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	// Missing .env is fine; existing env vars win over file values.
	_ = godotenv.Load(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: strings.ToLower(getConfigValue(*logLevel, "LOG_LEVEL", "info")),
		},
		Data: DataConfig{
			BasePath: getConfigValue(*dataPath, "DATA_PATH", ""),
		},
		Server: ServerConfig{
			Name:               getConfigValue("", "SERVER_NAME", "Cover Finder"),
			Port:               getConfigValue(*serverPort, "SERVER_PORT", "8080"),
			PublicURL:          strings.TrimRight(getConfigValue(*publicURL, "PUBLIC_URL", "http://localhost:8080"), "/"),
			CORSOrigins:        getListConfigValue("CORS_ORIGINS", []string{"*"}),
			RateLimitPerMinute: getIntConfigValue("", "RATE_LIMIT_PER_MINUTE", 120),

			TrackRateLimitPerMinute: getIntConfigValue("", "TRACK_RATE_LIMIT_PER_MINUTE", 30),
			TrackRateLimitBurst:     getIntConfigValue("", "TRACK_RATE_LIMIT_BURST", 10),
		},
		Tracking: TrackingConfig{
			Persist:             getBoolConfigValue(*persist, "TRACKING_PERSIST", true),
			MaxPendingMutations: getIntConfigValue("", "TRACKING_MAX_PENDING_MUTATIONS", 200),
			MaxSearchQueries:    getIntConfigValue("", "TRACKING_MAX_SEARCH_QUERIES", 1000),
			MaxAlbumPages:       getIntConfigValue("", "TRACKING_MAX_ALBUM_PAGES", 2000),
			QueueSize:           getIntConfigValue("", "TRACKING_QUEUE_SIZE", 4096),
			MaintenanceToken:    getConfigValue("", "MAINTENANCE_TOKEN", ""),
		},
		ITunes: ITunesConfig{
			BaseURL:           strings.TrimRight(getConfigValue("", "ITUNES_BASE_URL", "https://itunes.apple.com"), "/"),
			Country:           strings.ToUpper(getConfigValue("", "ITUNES_COUNTRY", "US")),
			RequestsPerMinute: getIntConfigValue("", "ITUNES_REQUESTS_PER_MINUTE", 20),
			Burst:             getIntConfigValue("", "ITUNES_BURST", 5),
		},
		Sitemap: SitemapConfig{
			MaxQueries: getIntConfigValue("", "SITEMAP_MAX_QUERIES", 100),
			MaxAlbums:  getIntConfigValue("", "SITEMAP_MAX_ALBUMS", 500),
		},
	}

	durations := []struct {
		dst      *time.Duration
		envKey   string
		fallback string
	}{
		{&cfg.Server.ReadTimeout, "SERVER_READ_TIMEOUT", "15s"},
		{&cfg.Server.WriteTimeout, "SERVER_WRITE_TIMEOUT", "15s"},
		{&cfg.Server.IdleTimeout, "SERVER_IDLE_TIMEOUT", "60s"},
		{&cfg.Tracking.BatchSaveInterval, "TRACKING_BATCH_SAVE_INTERVAL", "30s"},
		{&cfg.Tracking.MinSaveInterval, "TRACKING_MIN_SAVE_INTERVAL", "5s"},
		{&cfg.Tracking.CleanupInterval, "TRACKING_CLEANUP_INTERVAL", "24h"},
		{&cfg.ITunes.Timeout, "ITUNES_TIMEOUT", "30s"},
	}
	for _, d := range durations {
		raw := getConfigValue("", d.envKey, d.fallback)
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", d.envKey, raw, err)
		}
		*d.dst = parsed
	}

	if err := cfg.expandDataPath(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all config values are present and within range.
func (c *Config) Validate() error {
	if c.Data.BasePath == "" {
		return errors.New("data base path cannot be empty after expansion")
	}
	return validation.New().Validate(c)
}

// DatabasePath is where the Badger database lives.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Data.BasePath, "db")
}

// expandPath expands ~ and makes the path absolute.
// If path is empty, defaultPath is returned untouched.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

func (c *Config) expandDataPath() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	expanded, err := expandPath(c.Data.BasePath, filepath.Join(homeDir, "CoverFinder", "data"))
	if err != nil {
		return err
	}
	c.Data.BasePath = expanded
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getBoolConfigValue accepts "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// getIntConfigValue returns an int from flag, env var, or default. Unparseable values fall back to the default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	result, err := strconv.Atoi(strings.TrimSpace(strValue))
	if err != nil {
		return defaultValue
	}
	return result
}

// getListConfigValue splits a comma-separated env var, dropping blanks.
func getListConfigValue(envKey string, defaultValue []string) []string {
	raw := os.Getenv(envKey)
	if raw == "" {
		return defaultValue
	}
	var out []string
	for part := range strings.SplitSeq(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

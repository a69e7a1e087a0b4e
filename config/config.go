package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrInvalidConfig      = errors.New("invalid configuration")
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Security SecurityConfig `json:"security"`
	Monitor  MonitorConfig  `json:"monitor"`
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Timezone string         `json:"timezone"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `json:"path"`
}

// SecurityConfig contains security settings
type SecurityConfig struct {
	APIKey string `json:"api_key"`
}

// MonitorConfig contains evaluation loop settings
type MonitorConfig struct {
	IntervalSeconds int `json:"interval_seconds"`
	CooldownMinutes int `json:"cooldown_minutes"`
	// ApplyGrants controls whether active grant-time minutes raise the daily
	// limit during evaluation. Defaults to true.
	ApplyGrants *bool `json:"apply_grants"`
}

// TelegramConfig contains parent notification settings
type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	ChatID  int64  `json:"chat_id"`
}

// LoggingConfig contains log output settings
type LoggingConfig struct {
	Format string `json:"format"` // "json" or "text"
	Level  string `json:"level"`
}

// Interval returns the monitor tick interval
func (m MonitorConfig) Interval() time.Duration {
	if m.IntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(m.IntervalSeconds) * time.Second
}

// Cooldown returns the warning de-duplication window
func (m MonitorConfig) Cooldown() time.Duration {
	if m.CooldownMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(m.CooldownMinutes) * time.Minute
}

// GrantsApplied resolves the ApplyGrants switch, defaulting to true
func (m MonitorConfig) GrantsApplied() bool {
	if m.ApplyGrants == nil {
		return true
	}
	return *m.ApplyGrants
}

// Location resolves the configured timezone, defaulting to the host's local zone
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q", ErrInvalidConfig, c.Timezone)
	}
	return loc, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: invalid server port", ErrInvalidConfig)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("%w: database path is required", ErrInvalidConfig)
	}

	if c.Security.APIKey == "" {
		return fmt.Errorf("%w: API key is required", ErrInvalidConfig)
	}

	if c.Telegram.Enabled && c.Telegram.Token == "" {
		return fmt.Errorf("%w: telegram token is required when telegram is enabled", ErrInvalidConfig)
	}

	if _, err := c.Location(); err != nil {
		return err
	}

	return nil
}

// Load loads configuration from a JSON file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigFileNotFound
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// LoadFromEnv loads configuration from environment variables
// This is useful for containerized deployments
func LoadFromEnv() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Host: getEnv("SCREENWISE_HOST", "0.0.0.0"),
			Port: getEnvInt("SCREENWISE_PORT", 8080),
		},
		Database: DatabaseConfig{
			Path: getEnv("SCREENWISE_DB_PATH", "./screenwise.db"),
		},
		Security: SecurityConfig{
			APIKey: getEnv("SCREENWISE_API_KEY", ""),
		},
		Monitor: MonitorConfig{
			IntervalSeconds: getEnvInt("SCREENWISE_MONITOR_INTERVAL_SECONDS", 30),
			CooldownMinutes: getEnvInt("SCREENWISE_COOLDOWN_MINUTES", 5),
		},
		Telegram: TelegramConfig{
			Enabled: getEnvBool("SCREENWISE_TELEGRAM_ENABLED", false),
			Token:   getEnv("SCREENWISE_TELEGRAM_TOKEN", ""),
			ChatID:  int64(getEnvInt("SCREENWISE_TELEGRAM_CHAT_ID", 0)),
		},
		Logging: LoggingConfig{
			Format: getEnv("SCREENWISE_LOG_FORMAT", "json"),
			Level:  getEnv("SCREENWISE_LOG_LEVEL", "info"),
		},
		Timezone: getEnv("SCREENWISE_TIMEZONE", ""),
	}

	if v := getEnv("SCREENWISE_APPLY_GRANTS", ""); v != "" {
		applyGrants := v == "true" || v == "1"
		config.Monitor.ApplyGrants = &applyGrants
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		fmt.Sscanf(value, "%d", &intVal)
		return intVal
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

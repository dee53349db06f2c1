package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	MediaServer MediaServerConfig `yaml:"media_server"`
	TMDB        TMDBConfig        `yaml:"tmdb"`
	Douban      DoubanConfig      `yaml:"douban"`
	Translator  TranslatorConfig  `yaml:"translator"`
	Reconcile   ReconcileConfig   `yaml:"reconcile"`
	Schedule    ScheduleConfig    `yaml:"schedule"`
	Backup      BackupConfig      `yaml:"backup"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port     int    `yaml:"port"`
	BasePath string `yaml:"base_path"`
	APIToken string `yaml:"api_token"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// MediaServerConfig holds connection settings for the live media server.
type MediaServerConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
	UserID string `yaml:"user_id"`
}

// TMDBConfig holds settings for the primary metadata provider.
type TMDBConfig struct {
	APIKey string `yaml:"api_key"`
}

// DoubanConfig holds settings for the regional metadata provider.
type DoubanConfig struct {
	// CooldownMS is the enforced pause between consecutive calls.
	CooldownMS int `yaml:"cooldown_ms"`
}

// TranslatorConfig holds translation engine settings.
type TranslatorConfig struct {
	Enabled bool   `yaml:"enabled"`
	Mode    string `yaml:"mode"` // "cached" or "direct"
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
	Prompt  string `yaml:"prompt"`
}

// ReconcileConfig holds cast reconciliation settings.
type ReconcileConfig struct {
	MaxCastSize        int      `yaml:"max_cast_size"`
	MinScoreForReview  float64  `yaml:"min_score_for_review"`
	DelayBetweenItemMS int      `yaml:"delay_between_items_ms"`
	Libraries          []string `yaml:"libraries"`
}

// ScheduleConfig holds the periodic full-library run schedule.
type ScheduleConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
}

// BackupConfig holds database snapshot settings.
type BackupConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Path           string `yaml:"path"`
	RetentionCount int    `yaml:"retention_count"`
	IntervalHours  int    `yaml:"interval_hours"`
}

// MaintenanceConfig holds periodic database optimize settings.
type MaintenanceConfig struct {
	Enabled       bool `yaml:"enabled"`
	IntervalHours int  `yaml:"interval_hours"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level          string `yaml:"level"`
	Format         string `yaml:"format"`
	FilePath       string `yaml:"file_path"`
	FileMaxSizeMB  int    `yaml:"file_max_size_mb"`
	FileMaxFiles   int    `yaml:"file_max_files"`
	FileMaxAgeDays int    `yaml:"file_max_age_days"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:     8687,
			BasePath: "",
		},
		Database: DatabaseConfig{
			Path: "/data/playbill.db",
		},
		Douban: DoubanConfig{
			CooldownMS: 300,
		},
		Translator: TranslatorConfig{
			Mode:  "cached",
			Model: "gpt-4o-mini",
		},
		Reconcile: ReconcileConfig{
			MaxCastSize:        30,
			MinScoreForReview:  6.0,
			DelayBetweenItemMS: 500,
		},
		Schedule: ScheduleConfig{
			Cron: "0 3 * * *",
		},
		Backup: BackupConfig{
			RetentionCount: 7,
			IntervalHours:  24,
		},
		Maintenance: MaintenanceConfig{
			Enabled:       true,
			IntervalHours: 24,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads config from a YAML file (if it exists) and overrides with
// environment variables. Environment variables take precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	cfg.loadFromEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) loadFromEnv() {
	if v := os.Getenv("PB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("PB_BASE_PATH"); v != "" {
		c.Server.BasePath = v
	}
	if v := os.Getenv("PB_API_TOKEN"); v != "" {
		c.Server.APIToken = v
	}
	if v := os.Getenv("PB_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("PB_MEDIA_SERVER_URL"); v != "" {
		c.MediaServer.URL = v
	}
	if v := os.Getenv("PB_MEDIA_SERVER_API_KEY"); v != "" {
		c.MediaServer.APIKey = v
	}
	if v := os.Getenv("PB_MEDIA_SERVER_USER_ID"); v != "" {
		c.MediaServer.UserID = v
	}
	if v := os.Getenv("PB_TMDB_API_KEY"); v != "" {
		c.TMDB.APIKey = v
	}
	if v := os.Getenv("PB_TRANSLATOR_API_KEY"); v != "" {
		c.Translator.APIKey = v
	}
	if v := os.Getenv("PB_TRANSLATOR_MODE"); v != "" {
		c.Translator.Mode = v
	}
	if v := os.Getenv("PB_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("PB_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Translator.Mode != "cached" && c.Translator.Mode != "direct" {
		return fmt.Errorf("invalid translator mode: %q", c.Translator.Mode)
	}
	if c.Reconcile.MaxCastSize <= 0 {
		c.Reconcile.MaxCastSize = 30
	}
	if c.Douban.CooldownMS <= 0 {
		c.Douban.CooldownMS = 300
	}
	if c.Backup.IntervalHours <= 0 {
		c.Backup.IntervalHours = 24
	}
	if c.Maintenance.IntervalHours <= 0 {
		c.Maintenance.IntervalHours = 24
	}
	c.Server.BasePath = strings.TrimRight(c.Server.BasePath, "/")
	return nil
}

package config

import (
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // business timezone must resolve on slim images

	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "configs/config.yaml"

type Config struct {
	Service struct {
		BaseURL           string  `yaml:"base_url"`
		APIKey            string  `yaml:"api_key"`
		TimeoutSeconds    int     `yaml:"timeout_seconds"`
		CacheTTLSeconds   int     `yaml:"cache_ttl_seconds"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
	} `yaml:"service"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	HTTP struct {
		Port int `yaml:"port"`
	} `yaml:"http"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Booking struct {
		Timezone             string `yaml:"timezone"`
		ActivationMinutes    int    `yaml:"activation_minutes"`
		SweepIntervalSeconds int    `yaml:"sweep_interval_seconds"`
		CatalogPath          string `yaml:"catalog_path"`
	} `yaml:"booking"`

	// bcrypt hashes contain '$'; supply password_hash through an ${ENV} placeholder.
	Auth struct {
		Username     string `yaml:"username"`
		PasswordHash string `yaml:"password_hash"`
		Role         string `yaml:"role"`
	} `yaml:"auth"`

	Journal struct {
		Path string `yaml:"path"`
	} `yaml:"journal"`

	Backup BackupConfig `yaml:"backup"`

	Telegram struct {
		BotToken string  `yaml:"bot_token"`
		Managers []int64 `yaml:"managers"`
	} `yaml:"telegram"`

	Sheets struct {
		CredentialsFile string `yaml:"credentials_file"`
		SpreadsheetID   string `yaml:"spreadsheet_id"`
		Range           string `yaml:"range"`
	} `yaml:"sheets"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// BackupConfig controls periodic copies of the reconciliation journal.
type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	IntervalHours int    `yaml:"interval_hours"`
	RetentionDays int    `yaml:"retention_days"`
}

func (b BackupConfig) Interval() time.Duration {
	return time.Duration(b.IntervalHours) * time.Hour
}

func (b BackupConfig) Retention() time.Duration {
	return time.Duration(b.RetentionDays) * 24 * time.Hour
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = defaultConfigPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config, expanding ${ENV_VAR} placeholders first.
func Parse(data []byte) (*Config, error) {
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	c.Service.BaseURL = strings.TrimRight(c.Service.BaseURL, "/")
	if c.Service.TimeoutSeconds <= 0 {
		c.Service.TimeoutSeconds = 10
	}
	if c.Service.Burst <= 0 {
		c.Service.Burst = 5
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.Monitoring.HealthCheckPort == 0 {
		c.Monitoring.HealthCheckPort = 8090
	}
	if c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Booking.Timezone == "" {
		c.Booking.Timezone = "Asia/Kolkata"
	}
	if c.Auth.Role == "" {
		c.Auth.Role = "admin"
	}
	if c.Journal.Path == "" {
		c.Journal.Path = "data/journal.db"
	}
	if c.Backup.Path == "" {
		c.Backup.Path = "backups"
	}
	if c.Backup.IntervalHours <= 0 {
		c.Backup.IntervalHours = 24
	}
	if c.Backup.RetentionDays <= 0 {
		c.Backup.RetentionDays = 14
	}
	if c.Sheets.Range == "" {
		c.Sheets.Range = "Bookings!A1"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.Service.BaseURL == "" {
		return fmt.Errorf("service.base_url is required")
	}
	if !strings.HasPrefix(c.Service.BaseURL, "http://") && !strings.HasPrefix(c.Service.BaseURL, "https://") {
		return fmt.Errorf("service.base_url must be an http(s) URL, got %q", c.Service.BaseURL)
	}
	if c.Service.RequestsPerSecond < 0 {
		return fmt.Errorf("service.requests_per_second cannot be negative")
	}
	if c.Booking.ActivationMinutes < 0 {
		return fmt.Errorf("booking.activation_minutes cannot be negative")
	}
	if _, err := time.LoadLocation(c.Booking.Timezone); err != nil {
		return fmt.Errorf("booking.timezone: %w", err)
	}
	if c.Auth.Username == "" || c.Auth.PasswordHash == "" {
		return fmt.Errorf("auth.username and auth.password_hash are required")
	}
	return nil
}

func (c *Config) ServiceTimeout() time.Duration {
	return time.Duration(c.Service.TimeoutSeconds) * time.Second
}

func (c *Config) CacheTTL() time.Duration {
	if c.Service.CacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Service.CacheTTLSeconds) * time.Second
}

func (c *Config) ActivationWindow() time.Duration {
	if c.Booking.ActivationMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(c.Booking.ActivationMinutes) * time.Minute
}

func (c *Config) SweepInterval() time.Duration {
	if c.Booking.SweepIntervalSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.Booking.SweepIntervalSeconds) * time.Second
}

// Location returns the business timezone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Booking.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && len(c.Telegram.Managers) > 0
}

func (c *Config) SheetsEnabled() bool {
	return c.Sheets.CredentialsFile != "" && c.Sheets.SpreadsheetID != ""
}

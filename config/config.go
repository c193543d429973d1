// Package config loads and validates the monitor configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ngenohkevin/hivedeck-monitor/internal/alerts"
	"github.com/ngenohkevin/hivedeck-monitor/internal/process"
)

// ServerConfig holds the local dashboard API settings
type ServerConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Host      string `json:"host" yaml:"host" validate:"required"`
	Port      int    `json:"port" yaml:"port" validate:"min=1,max=65535"`
	APIKey    string `json:"api_key" yaml:"api_key" validate:"required_if=Enabled true"`
	JWTSecret string `json:"jwt_secret" yaml:"jwt_secret"`
	// TokenTTL is the lifetime of issued bearer tokens in seconds.
	TokenTTL       int      `json:"token_ttl" yaml:"token_ttl" validate:"min=60"`
	RateLimitRPS   int      `json:"rate_limit_rps" yaml:"rate_limit_rps" validate:"min=1"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
}

// Config holds every recognised setting. Durations are in seconds unless
// the name says otherwise.
type Config struct {
	UpdateInterval int               `json:"update_interval" yaml:"update_interval" validate:"min=1,max=60"`
	HistorySize    int               `json:"history_size" yaml:"history_size" validate:"min=1,max=86400"`
	Thresholds     alerts.Thresholds `json:"thresholds" yaml:"thresholds"`
	AlertEnabled   bool              `json:"alert_enabled" yaml:"alert_enabled"`
	AlertCooldown  int               `json:"alert_cooldown" yaml:"alert_cooldown" validate:"min=0"`
	ProcessLimit   int               `json:"process_limit" yaml:"process_limit" validate:"min=0,max=1000"`
	ProcessSort    string            `json:"process_sort" yaml:"process_sort" validate:"oneof=cpu memory name"`

	LoggingEnabled  bool   `json:"logging_enabled" yaml:"logging_enabled"`
	LogFormat       string `json:"log_format" yaml:"log_format" validate:"oneof=csv jsonl"`
	LogDir          string `json:"log_dir" yaml:"log_dir" validate:"required"`
	LogMaxEntries   int    `json:"log_max_entries" yaml:"log_max_entries" validate:"min=1"`
	ExportDir       string `json:"export_dir" yaml:"export_dir" validate:"required"`
	AutoExport      bool   `json:"auto_export" yaml:"auto_export"`
	ExportInterval  int    `json:"export_interval" yaml:"export_interval" validate:"min=1"`
	ExportQueueSize int    `json:"export_queue_size" yaml:"export_queue_size" validate:"min=1,max=100000"`

	ReadTimeoutMS     int    `json:"read_timeout_ms" yaml:"read_timeout_ms" validate:"min=10,max=60000"`
	DiskPath          string `json:"disk_path" yaml:"disk_path" validate:"required"`
	ShowNotifications bool   `json:"show_notifications" yaml:"show_notifications"`
	LogLevel          string `json:"log_level" yaml:"log_level" validate:"oneof=debug info warn error"`

	Server ServerConfig `json:"server" yaml:"server"`
}

// Default returns the stock configuration
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}

	return &Config{
		UpdateInterval:    2,
		HistorySize:       60,
		Thresholds:        alerts.DefaultThresholds(),
		AlertEnabled:      true,
		AlertCooldown:     300,
		ProcessLimit:      10,
		ProcessSort:       string(process.SortCPU),
		LoggingEnabled:    false,
		LogFormat:         "csv",
		LogDir:            filepath.Join(home, "Documents", "ResourceMonitor_Logs"),
		LogMaxEntries:     1000,
		ExportDir:         filepath.Join(home, "Documents", "ResourceMonitor_Exports"),
		AutoExport:        false,
		ExportInterval:    3600,
		ExportQueueSize:   64,
		ReadTimeoutMS:     2000,
		DiskPath:          "/",
		ShowNotifications: true,
		LogLevel:          "info",
		Server: ServerConfig{
			Enabled:        false,
			Host:           "127.0.0.1",
			Port:           8091,
			TokenTTL:       3600,
			RateLimitRPS:   20,
			AllowedOrigins: []string{"http://127.0.0.1:8091", "http://localhost:8091"},
		},
	}
}

// DefaultPath returns MONITOR_CONFIG or ~/.config/resource_monitor/config.json
func DefaultPath() string {
	if p := os.Getenv("MONITOR_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.json"
	}
	return filepath.Join(home, ".config", "resource_monitor", "config.json")
}

// Load builds a configuration from defaults, the file at path (if it
// exists) and MONITOR_* environment overrides, then validates it.
func Load(path string) (*Config, error) {
	_, cfg, err := load(path)
	return cfg, err
}

// load also returns the defaults-plus-file layer before env overrides.
func load(path string) (file, cfg *Config, err error) {
	// Load .env file if it exists
	_ = godotenv.Load(envFile())

	file = Default()
	if err := file.readFile(path); err != nil {
		return nil, nil, err
	}
	cfg = file.Clone()
	if err := cfg.applyEnv(); err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return file, cfg, nil
}

func envFile() string {
	if f := os.Getenv("ENV_FILE"); f != "" {
		return f
	}
	return ".env"
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// readFile merges the file over c. A missing file is not an error.
func (c *Config) readFile(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if isYAML(path) {
		err = yaml.Unmarshal(data, c)
	} else {
		err = json.Unmarshal(data, c)
	}
	if err != nil {
		return &ValidationError{Fields: map[string]string{"file": err.Error()}}
	}
	return nil
}

// Save writes c to path as JSON or YAML depending on the extension.
func (c *Config) Save(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace config: %w", err)
	}
	return nil
}

// Clone returns a deep copy of c
func (c *Config) Clone() *Config {
	cp := *c
	cp.Server.AllowedOrigins = append([]string(nil), c.Server.AllowedOrigins...)
	return &cp
}

// Interval returns the sampling period
func (c *Config) Interval() time.Duration {
	return time.Duration(c.UpdateInterval) * time.Second
}

// Cooldown returns the minimum time between two alerts of one metric
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.AlertCooldown) * time.Second
}

// ReadTimeout returns the upper bound of one metric read
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutMS) * time.Millisecond
}

// ExportEvery returns the auto-export period
func (c *Config) ExportEvery() time.Duration {
	return time.Duration(c.ExportInterval) * time.Second
}

// AlertPolicy returns the alert rules in effect
func (c *Config) AlertPolicy() alerts.Policy {
	return alerts.Policy{
		Thresholds: c.Thresholds,
		Enabled:    c.AlertEnabled,
		Cooldown:   c.Cooldown(),
	}
}

// SortKey returns the process ordering
func (c *Config) SortKey() process.SortKey {
	return process.SortKey(c.ProcessSort)
}

// TokenLifetime returns how long issued bearer tokens stay valid
func (c *Config) TokenLifetime() time.Duration {
	return time.Duration(c.Server.TokenTTL) * time.Second
}

// Addr returns the dashboard API address string
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config holds all configuration for dosetrack
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Security      SecurityConfig      `mapstructure:"security"`

	mu sync.RWMutex
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Address      string `mapstructure:"address"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// StorageConfig holds database settings
type StorageConfig struct {
	DataDir    string `mapstructure:"data_dir"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// SchedulerConfig holds the dose-polling cadence and windows
type SchedulerConfig struct {
	PollIntervalMin    int `mapstructure:"poll_interval_min"`
	DueWindowMin       int `mapstructure:"due_window_min"`
	EscalationDelayMin int `mapstructure:"escalation_delay_min"`
}

// NotificationsConfig holds notification housekeeping settings
type NotificationsConfig struct {
	RetentionDays int `mapstructure:"retention_days"`
}

// SecurityConfig holds auth settings
type SecurityConfig struct {
	JWTSecret     string   `mapstructure:"jwt_secret"`
	TokenTTLHours int      `mapstructure:"token_ttl_hours"`
	AllowOrigins  []string `mapstructure:"allow_origins"`
}

// PollInterval returns the poll cadence as a duration
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Scheduler.PollIntervalMin) * time.Minute
}

// DueWindow returns the due-now window as a duration
func (c *Config) DueWindow() time.Duration {
	return time.Duration(c.Scheduler.DueWindowMin) * time.Minute
}

// EscalationDelay returns how long a dose stays missed before caretakers are alerted
func (c *Config) EscalationDelay() time.Duration {
	return time.Duration(c.Scheduler.EscalationDelayMin) * time.Minute
}

// RetentionDays reads the notification retention under the reload lock
func (c *Config) RetentionDays() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Notifications.RetentionDays
}

// Load loads configuration from file, env, and defaults
func Load(configPath, dataDir string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if dataDir == "" {
		dataDir = getDefaultDataDir()
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	v.Set("storage.data_dir", dataDir)
	v.Set("storage.sqlite_path", filepath.Join(dataDir, "dosetrack.db"))

	if configPath == "" {
		configPath = filepath.Join(dataDir, "dosetrack.yaml")
	}

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// Environment variables (DOSETRACK_SERVER_PORT, DOSETRACK_SECURITY_JWT_SECRET, etc.)
	v.SetEnvPrefix("DOSETRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	loadEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	cfg.watchFile(v)

	return &cfg, nil
}

// watchFile reloads the notification retention when the config file changes.
// Scheduler windows and server settings stay fixed for the process lifetime.
func (c *Config) watchFile(v *viper.Viper) {
	if v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		var next Config
		if err := v.Unmarshal(&next); err != nil {
			zap.L().Warn("Ignoring config reload", zap.String("file", e.Name), zap.Error(err))
			return
		}
		if next.Notifications.RetentionDays <= 0 {
			return
		}
		c.mu.Lock()
		c.Notifications.RetentionDays = next.Notifications.RetentionDays
		c.mu.Unlock()
		zap.L().Info("Config reloaded",
			zap.String("file", e.Name),
			zap.Int("retention_days", next.Notifications.RetentionDays),
		)
	})
	v.WatchConfig()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)

	v.SetDefault("scheduler.poll_interval_min", 5)
	v.SetDefault("scheduler.due_window_min", 5)
	v.SetDefault("scheduler.escalation_delay_min", 60)

	v.SetDefault("notifications.retention_days", 30)

	v.SetDefault("security.token_ttl_hours", 168)
	v.SetDefault("security.allow_origins", []string{"*"})
}

func getDefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "dosetrack")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}

	return filepath.Join(home, ".local", "share", "dosetrack")
}

// loadEnvOverrides handles env vars for settings viper misses when no config file exists
func loadEnvOverrides(cfg *Config) {
	cfg.Server.Address = GetEnvDefault("DOSETRACK_SERVER_ADDRESS", cfg.Server.Address)
	if port := GetEnvWithFallback("DOSETRACK_SERVER_PORT", "PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	cfg.Storage.DataDir = GetEnvDefault("DOSETRACK_STORAGE_DATA_DIR", cfg.Storage.DataDir)

	if secret := GetEnvWithFallback("DOSETRACK_SECURITY_JWT_SECRET", "DOSETRACK_JWT_SECRET"); secret != "" {
		cfg.Security.JWTSecret = secret
	}

	if mins := os.Getenv("DOSETRACK_SCHEDULER_POLL_INTERVAL_MIN"); mins != "" {
		if m, err := strconv.Atoi(mins); err == nil && m > 0 {
			cfg.Scheduler.PollIntervalMin = m
		}
	}
}

func validate(cfg *Config) error {
	if cfg.Scheduler.PollIntervalMin <= 0 {
		return fmt.Errorf("scheduler.poll_interval_min must be positive")
	}
	if cfg.Scheduler.DueWindowMin <= 0 {
		return fmt.Errorf("scheduler.due_window_min must be positive")
	}
	if cfg.Scheduler.EscalationDelayMin < cfg.Scheduler.DueWindowMin {
		return fmt.Errorf("scheduler.escalation_delay_min must cover the due window")
	}
	if cfg.Notifications.RetentionDays <= 0 {
		return fmt.Errorf("notifications.retention_days must be positive")
	}

	if cfg.Security.JWTSecret == "" {
		cfg.Security.JWTSecret = generateRandomString(32)
	}

	return nil
}

func generateRandomString(n int) string {
	bytes := make([]byte, n)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)[:n]
}

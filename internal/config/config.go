// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store backends
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// Config holds application configuration
type Config struct {
	DataDir      string `yaml:"data_dir"` // Base directory for the store and backups (always absolute)
	Port         int    `yaml:"port"`
	LogLevel     string `yaml:"log_level"`
	LogFile      string `yaml:"log_file"` // Optional rotated JSON log file
	DevMode      bool   `yaml:"dev_mode"`
	StoreBackend string `yaml:"store_backend"` // sqlite, badger or memory

	// AllowedOrigins lists browser origins (e.g. https://app.example.com) allowed
	// by CORS and the trade stream. Empty allows any origin over CORS and only
	// same-host origins on the stream.
	AllowedOrigins []string `yaml:"allowed_origins"`

	Settlement SettlementConfig `yaml:"settlement"`
	Backup     BackupConfig     `yaml:"backup"`
}

// SettlementConfig tunes the settlement engine
type SettlementConfig struct {
	MaxAttempts      int           `yaml:"max_attempts"`
	BaseBackoff      time.Duration `yaml:"base_backoff"`
	MaxBackoff       time.Duration `yaml:"max_backoff"`
	LockTimeout      time.Duration `yaml:"lock_timeout"`
	CommitTimeout    time.Duration `yaml:"commit_timeout"`
	RecordRejections bool          `yaml:"record_rejections"`
}

// BackupConfig holds S3-compatible backup settings
type BackupConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Schedule        string `yaml:"schedule"` // cron expression, seconds field first
	Bucket          string `yaml:"bucket"`
	Endpoint        string `yaml:"endpoint"` // empty for AWS S3
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Prefix          string `yaml:"prefix"`
	RetentionCount  int    `yaml:"retention_count"` // 0 keeps everything
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		DataDir:      "./data",
		Port:         8001,
		LogLevel:     "info",
		StoreBackend: BackendSQLite,
		Settlement: SettlementConfig{
			MaxAttempts:      5,
			BaseBackoff:      10 * time.Millisecond,
			MaxBackoff:       500 * time.Millisecond,
			LockTimeout:      5 * time.Second,
			CommitTimeout:    10 * time.Second,
			RecordRejections: true,
		},
		Backup: BackupConfig{
			Schedule:       "0 0 3 * * *",
			Region:         "auto",
			Prefix:         "tradeledger",
			RetentionCount: 14,
		},
	}
}

// Load reads configuration from defaults, the optional CONFIG_FILE and then
// environment variables, in increasing precedence.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	absDataDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	cfg.DataDir = absDataDir

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// EnsureDataDir creates the data directory if it does not exist
func (c *Config) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.DataDir = getEnv("TRADELEDGER_DATA_DIR", c.DataDir)
	c.Port = getEnvAsInt("PORT", c.Port)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFile = getEnv("LOG_FILE", c.LogFile)
	c.DevMode = getEnvAsBool("DEV_MODE", c.DevMode)
	c.StoreBackend = getEnv("STORE_BACKEND", c.StoreBackend)
	c.AllowedOrigins = getEnvAsList("ALLOWED_ORIGINS", c.AllowedOrigins)

	s := &c.Settlement
	s.MaxAttempts = getEnvAsInt("SETTLEMENT_MAX_ATTEMPTS", s.MaxAttempts)
	s.BaseBackoff = getEnvAsDuration("SETTLEMENT_BASE_BACKOFF", s.BaseBackoff)
	s.MaxBackoff = getEnvAsDuration("SETTLEMENT_MAX_BACKOFF", s.MaxBackoff)
	s.LockTimeout = getEnvAsDuration("SETTLEMENT_LOCK_TIMEOUT", s.LockTimeout)
	s.CommitTimeout = getEnvAsDuration("SETTLEMENT_COMMIT_TIMEOUT", s.CommitTimeout)
	s.RecordRejections = getEnvAsBool("SETTLEMENT_RECORD_REJECTIONS", s.RecordRejections)

	b := &c.Backup
	b.Enabled = getEnvAsBool("BACKUP_ENABLED", b.Enabled)
	b.Schedule = getEnv("BACKUP_SCHEDULE", b.Schedule)
	b.Bucket = getEnv("BACKUP_BUCKET", b.Bucket)
	b.Endpoint = getEnv("BACKUP_ENDPOINT", b.Endpoint)
	b.Region = getEnv("BACKUP_REGION", b.Region)
	b.AccessKeyID = getEnv("BACKUP_ACCESS_KEY_ID", b.AccessKeyID)
	b.SecretAccessKey = getEnv("BACKUP_SECRET_ACCESS_KEY", b.SecretAccessKey)
	b.Prefix = getEnv("BACKUP_PREFIX", b.Prefix)
	b.RetentionCount = getEnvAsInt("BACKUP_RETENTION_COUNT", b.RetentionCount)
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendSQLite, BackendBadger, BackendMemory:
	default:
		return fmt.Errorf("unknown store backend %q (want sqlite, badger or memory)", c.StoreBackend)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}

	s := c.Settlement
	if s.MaxAttempts < 1 {
		return fmt.Errorf("settlement max_attempts must be at least 1, got %d", s.MaxAttempts)
	}
	if s.BaseBackoff < 0 || s.MaxBackoff < s.BaseBackoff {
		return fmt.Errorf("settlement backoff must satisfy 0 <= base (%s) <= max (%s)", s.BaseBackoff, s.MaxBackoff)
	}
	if s.LockTimeout <= 0 || s.CommitTimeout <= 0 {
		return fmt.Errorf("settlement lock_timeout and commit_timeout must be positive")
	}

	if c.Backup.Enabled {
		if c.Backup.Bucket == "" {
			return fmt.Errorf("backup enabled but no bucket configured")
		}
		if c.Backup.Schedule == "" {
			return fmt.Errorf("backup enabled but no schedule configured")
		}
		if c.StoreBackend == BackendMemory {
			return fmt.Errorf("backup requires a persistent store backend")
		}
	}
	if c.Backup.RetentionCount < 0 {
		return fmt.Errorf("backup retention_count must not be negative")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var list []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}

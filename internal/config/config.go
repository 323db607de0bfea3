package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Telegram TelegramConfig `yaml:"telegram"`
	Database DatabaseConfig `yaml:"database"`
	Worker   WorkerConfig   `yaml:"worker"`
	Log      LogConfig      `yaml:"log"`
}

type HTTPConfig struct {
	Listen        string        `yaml:"listen"`
	SessionTTL    time.Duration `yaml:"session_ttl"`
	SecureCookies bool          `yaml:"secure_cookies"`
}

type TelegramConfig struct {
	APIID   int    `yaml:"api_id"`
	APIHash string `yaml:"api_hash"`
	// PhonePrefix restricts which numbers may be linked, e.g. "+91". Empty allows any.
	PhonePrefix      string        `yaml:"phone_prefix,omitempty"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	FloodWaitRetries uint          `yaml:"flood_wait_retries"`
	RateLimit        time.Duration `yaml:"rate_limit"`
	RateBurst        int           `yaml:"rate_burst"`
	MediaDir         string        `yaml:"media_dir"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type WorkerConfig struct {
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
	LogRetention      time.Duration `yaml:"log_retention"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Listen:     ":5000",
			SessionTTL: 24 * time.Hour,
		},
		Telegram: TelegramConfig{
			RequestTimeout:   30 * time.Second,
			FloodWaitRetries: 5,
			RateLimit:        100 * time.Millisecond,
			RateBurst:        5,
			MediaDir:         "media_tmp",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "forwarder.db",
		},
		Worker: WorkerConfig{
			ReconcileInterval: 10 * time.Second,
			RetryDelay:        10 * time.Second,
			LogRetention:      30 * 24 * time.Hour,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func GetConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	if runtime.GOOS == "windows" {
		return filepath.Join(homeDir, "AppData", "Local", "forwarder")
	}
	return filepath.Join(homeDir, ".config", "forwarder")
}

func GetConfigPath() string {
	return filepath.Join(GetConfigDir(), "config.yaml")
}

// Load reads the YAML file at path (or the default location when path is
// empty), then applies .env and environment overrides. A missing file is not
// an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = GetConfigPath()
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
	default:
		return nil, fmt.Errorf("error reading config: %w", err)
	}

	// .env is optional; variables may come from the process environment.
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("API_ID"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid API_ID %q: %w", v, err)
		}
		c.Telegram.APIID = id
	}
	if v := os.Getenv("API_HASH"); v != "" {
		c.Telegram.APIHash = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.DSN = v
		if strings.HasPrefix(v, "postgres://") || strings.HasPrefix(v, "postgresql://") {
			c.Database.Driver = "postgres"
		}
	}
	if v := os.Getenv("PORT"); v != "" {
		c.HTTP.Listen = ":" + v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("SESSION_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid SESSION_TTL %q: %w", v, err)
		}
		c.HTTP.SessionTTL = ttl
	}
	return nil
}

// ValidateTelegram reports whether the API credentials needed to reach
// Telegram are present.
func (c *Config) ValidateTelegram() error {
	if c.Telegram.APIID == 0 || c.Telegram.APIHash == "" {
		return fmt.Errorf("telegram api_id and api_hash are required (set API_ID and API_HASH)")
	}
	return nil
}

func Save(cfg *Config, path string) error {
	if path == "" {
		path = GetConfigPath()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	return os.WriteFile(path, data, 0600)
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the CLI tools. It is constructed
// once at process start and passed to the client and store constructors.
type Config struct {
	URL        string
	Username   string
	Password   string
	DataPath   string
	FilePrefix string
	Retries    int
	Interval   int
	Digits     int
	Timeout    time.Duration
	RateLimit  float64
	CacheSize  int
	Logging    LoggingConfig
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads configuration from the environment, with an optional .env
// file in the working directory loaded first. All variables carry the
// IOTAWATT_ prefix and have usable defaults for a stock device.
func Load() (Config, error) {
	// Missing .env is the normal case.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("IOTAWATT")
	v.AutomaticEnv()
	setDefaults(v)

	cfg := Config{
		URL:        strings.TrimRight(v.GetString("url"), "/"),
		Username:   v.GetString("username"),
		Password:   v.GetString("password"),
		DataPath:   v.GetString("data_path"),
		FilePrefix: v.GetString("file_prefix"),
		Retries:    v.GetInt("retries"),
		Interval:   v.GetInt("interval"),
		Digits:     v.GetInt("digits"),
		Timeout:    v.GetDuration("timeout"),
		RateLimit:  v.GetFloat64("rate_limit"),
		CacheSize:  v.GetInt("cache_size"),
		Logging: LoggingConfig{
			Level:  v.GetString("log_level"),
			Format: v.GetString("log_format"),
		},
	}

	dataPath, err := expandHome(cfg.DataPath)
	if err != nil {
		return Config{}, fmt.Errorf("failed to resolve data path: %w", err)
	}
	cfg.DataPath = dataPath

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("url", "http://iotawatt.local")
	v.SetDefault("username", "admin")
	v.SetDefault("password", "")
	v.SetDefault("data_path", "~/IotaWatt_Data")
	v.SetDefault("file_prefix", "iotawatt")

	v.SetDefault("retries", 3)
	v.SetDefault("interval", 5)
	v.SetDefault("digits", 3)
	v.SetDefault("timeout", "30s")
	v.SetDefault("rate_limit", 2.0)
	v.SetDefault("cache_size", 32)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

func (c Config) validate() error {
	if c.URL == "" {
		return fmt.Errorf("device URL must not be empty")
	}
	if c.Retries < 1 {
		return fmt.Errorf("retries must be at least 1, got %d", c.Retries)
	}
	if c.Interval < 5 || c.Interval%5 != 0 {
		return fmt.Errorf("interval must be a positive multiple of 5, got %d", c.Interval)
	}
	if c.Digits < 0 {
		return fmt.Errorf("digits must not be negative, got %d", c.Digits)
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("rate limit must be positive, got %g", c.RateLimit)
	}
	return nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

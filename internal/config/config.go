// Package config loads runtime configuration for farmdeck.
package config

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/frudas24/farmdeck/internal/geometry"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

const (
	defaultListenAddr       = "0.0.0.0:8787"
	defaultDataDir          = "./data"
	defaultRequestTimeoutMs = 5000
	defaultMJPEGIntervalMs  = 0
	defaultLogLevel         = "info"
)

// Config holds runtime configuration values.
type Config struct {
	ListenAddr       string
	UIPassword       string
	DataDir          string
	ProviderURL      string
	ProviderToken    string
	InventoryPath    string
	CanvasHeight     float64
	RequestTimeoutMs int
	MJPEGIntervalMs  int
	LogLevel         string
}

// RequestTimeout returns the provider request timeout.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

// MJPEGInterval returns the minimum interval between relayed frames.
func (c Config) MJPEGInterval() time.Duration {
	return time.Duration(c.MJPEGIntervalMs) * time.Millisecond
}

// keys maps each config key to its environment variable.
var keys = map[string]string{
	"listen_addr":        "LISTEN_ADDR",
	"data_dir":           "DATA_DIR",
	"ui_password":        "UI_PASSWORD",
	"provider_url":       "PROVIDER_URL",
	"provider_token":     "PROVIDER_TOKEN",
	"inventory_path":     "INVENTORY_PATH",
	"canvas_height":      "CANVAS_HEIGHT",
	"request_timeout_ms": "REQUEST_TIMEOUT_MS",
	"mjpeg_interval_ms":  "MJPEG_INTERVAL_MS",
	"log_level":          "LOG_LEVEL",
}

// Load reads the server configuration from the environment, <DATA_DIR>/.env and an optional YAML file.
// Environment variables win over the .env file, which wins over the YAML file.
func Load(path string) (Config, error) {
	cfg, err := read(path)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadClient reads the configuration for one-shot provider commands, which need no viewer password.
func LoadClient(path string) (Config, error) {
	cfg, err := read(path)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.ValidateProvider(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// read merges every configuration layer without validating.
func read(path string) (Config, error) {
	envDir := strings.TrimSpace(os.Getenv("DATA_DIR"))
	if envDir == "" {
		envDir = defaultDataDir
	}
	if err := loadEnvFile(filepath.Join(envDir, ".env")); err != nil {
		return Config{}, errors.Wrap(err, "load .env")
	}

	v := viper.New()
	v.SetDefault("listen_addr", defaultListenAddr)
	v.SetDefault("data_dir", defaultDataDir)
	v.SetDefault("canvas_height", geometry.DefaultCanvasHeight)
	v.SetDefault("request_timeout_ms", defaultRequestTimeoutMs)
	v.SetDefault("mjpeg_interval_ms", defaultMJPEGIntervalMs)
	v.SetDefault("log_level", defaultLogLevel)
	for key, env := range keys {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, errors.Wrapf(err, "bind %s", env)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "read config %s", path)
		}
	}

	cfg := Config{
		ListenAddr:    strings.TrimSpace(v.GetString("listen_addr")),
		UIPassword:    strings.TrimSpace(v.GetString("ui_password")),
		DataDir:       strings.TrimSpace(v.GetString("data_dir")),
		ProviderURL:   strings.TrimRight(strings.TrimSpace(v.GetString("provider_url")), "/"),
		ProviderToken: strings.TrimSpace(v.GetString("provider_token")),
		InventoryPath: strings.TrimSpace(v.GetString("inventory_path")),
		LogLevel:      strings.TrimSpace(v.GetString("log_level")),
	}
	if cfg.InventoryPath == "" {
		cfg.InventoryPath = filepath.Join(cfg.DataDir, "devices.yaml")
	}

	var err error
	if cfg.CanvasHeight, err = floatKey(v, "canvas_height"); err != nil {
		return Config{}, err
	}
	if cfg.RequestTimeoutMs, err = intKey(v, "request_timeout_ms"); err != nil {
		return Config{}, err
	}
	if cfg.MJPEGIntervalMs, err = intKey(v, "mjpeg_interval_ms"); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks every server setting.
func (c Config) Validate() error {
	if c.UIPassword == "" {
		return errors.New("UI_PASSWORD is required")
	}
	return c.ValidateProvider()
}

// ValidateProvider checks the provider connection and geometry settings.
func (c Config) ValidateProvider() error {
	if c.ProviderURL == "" {
		return errors.New("PROVIDER_URL is required")
	}
	u, err := url.Parse(c.ProviderURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.Errorf("PROVIDER_URL must be an http(s) url, got %q", c.ProviderURL)
	}
	if c.CanvasHeight <= 0 {
		return errors.New("CANVAS_HEIGHT must be > 0")
	}
	if c.RequestTimeoutMs <= 0 {
		return errors.New("REQUEST_TIMEOUT_MS must be > 0")
	}
	if c.MJPEGIntervalMs < 0 {
		return errors.New("MJPEG_INTERVAL_MS must be >= 0")
	}
	return nil
}

// intKey reads an integer key, rejecting values that are not numbers.
func intKey(v *viper.Viper, key string) (int, error) {
	n, err := cast.ToIntE(v.Get(key))
	if err != nil {
		return 0, errors.Wrapf(err, "%s must be an integer", keys[key])
	}
	return n, nil
}

// floatKey reads a float key, rejecting values that are not numbers.
func floatKey(v *viper.Viper, key string) (float64, error) {
	f, err := cast.ToFloat64E(v.Get(key))
	if err != nil {
		return 0, errors.Wrapf(err, "%s must be a number", keys[key])
	}
	return f, nil
}

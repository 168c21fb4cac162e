// Package config reads and writes the terminal's config.yaml and resolves
// every setting with the order env > file > default.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configFile = "config.yaml"
	lockFile   = "config.yaml.lock"
)

// Defaults
const (
	DefaultWriteTimeout  = 10 * time.Second
	DefaultProbeInterval = 15 * time.Second
	DefaultExchange      = "kasir.orders"
)

// RemoteConfig selects the shared document store
type RemoteConfig struct {
	URL            string `yaml:"url,omitempty"`
	Username       string `yaml:"username,omitempty"`
	Password       string `yaml:"password,omitempty"`
	Namespace      string `yaml:"namespace,omitempty"`
	Database       string `yaml:"database,omitempty"`
	ConnectTimeout string `yaml:"connect_timeout,omitempty"`
}

// SyncConfig tunes the background sync
type SyncConfig struct {
	WriteTimeout  string `yaml:"write_timeout,omitempty"`  // duration, default 10s
	ProbeInterval string `yaml:"probe_interval,omitempty"` // duration, default 15s
}

// EventsConfig configures order event fan-out
type EventsConfig struct {
	AMQPURL       string `yaml:"amqp_url,omitempty"`
	Exchange      string `yaml:"exchange,omitempty"`
	WebhookURL    string `yaml:"webhook_url,omitempty"`
	WebhookSecret string `yaml:"webhook_secret,omitempty"`
}

// Config is <dataDir>/config.yaml
type Config struct {
	Branch       string          `yaml:"branch,omitempty"`
	DeviceID     string          `yaml:"device_id,omitempty"`
	Prefix       string          `yaml:"prefix,omitempty"`
	Remote       RemoteConfig    `yaml:"remote,omitempty"`
	Sync         SyncConfig      `yaml:"sync,omitempty"`
	Events       EventsConfig    `yaml:"events,omitempty"`
	FeatureFlags map[string]bool `yaml:"feature_flags,omitempty"`
}

// DataDir returns the data directory: KASIR_DATA_DIR, else ~/.kasir.
func DataDir() (string, error) {
	if v := os.Getenv("KASIR_DATA_DIR"); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".kasir"), nil
}

// Load reads the config file as written, without env overrides. A missing
// file is an empty config.
func Load(dataDir string) (*Config, error) {
	data, err := os.ReadFile(filepath.Join(dataDir, configFile))
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configFile, err)
	}
	return &cfg, nil
}

// Resolve loads the config and applies KASIR_* environment overrides.
func Resolve(dataDir string) (*Config, error) {
	cfg, err := Load(dataDir)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	overrides := []struct {
		env string
		dst *string
	}{
		{"KASIR_BRANCH", &c.Branch},
		{"KASIR_DEVICE_ID", &c.DeviceID},
		{"KASIR_REMOTE_URL", &c.Remote.URL},
		{"KASIR_REMOTE_USER", &c.Remote.Username},
		{"KASIR_REMOTE_PASS", &c.Remote.Password},
		{"KASIR_AMQP_URL", &c.Events.AMQPURL},
		{"KASIR_WEBHOOK_URL", &c.Events.WebhookURL},
		{"KASIR_WEBHOOK_SECRET", &c.Events.WebhookSecret},
		{"KASIR_WRITE_TIMEOUT", &c.Sync.WriteTimeout},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.dst = v
		}
	}
}

// Save writes the config atomically (temp file + rename).
func Save(dataDir string, cfg *Config) error {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dataDir, "config-*.yaml.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	// credentials may live here
	if err := os.Chmod(tmpName, 0600); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, filepath.Join(dataDir, configFile))
}

// Update applies fn to the file config under the config lock and saves it.
func Update(dataDir string, fn func(*Config) error) error {
	return withConfigLock(dataDir, func() error {
		cfg, err := Load(dataDir)
		if err != nil {
			return err
		}
		if err := fn(cfg); err != nil {
			return err
		}
		return Save(dataDir, cfg)
	})
}

// withConfigLock serializes access to config.yaml using flock
func withConfigLock(dataDir string, fn func() error) error {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(dataDir, lockFile), os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return err
	}
	defer syscall.Flock(int(f.Fd()), syscall.LOCK_UN)

	return fn()
}

// SetBranch persists the active branch
func SetBranch(dataDir, branch string) error {
	return Update(dataDir, func(c *Config) error {
		c.Branch = strings.TrimSpace(branch)
		return nil
	})
}

// DeviceID returns the terminal id, generating and persisting one on first
// use. KASIR_DEVICE_ID wins when set.
func DeviceID(dataDir string) (string, error) {
	if v := os.Getenv("KASIR_DEVICE_ID"); v != "" {
		return v, nil
	}
	var id string
	err := Update(dataDir, func(c *Config) error {
		if c.DeviceID == "" {
			generated, err := GenerateDeviceID()
			if err != nil {
				return err
			}
			c.DeviceID = generated
		}
		id = c.DeviceID
		return nil
	})
	return id, err
}

// GenerateDeviceID creates a new random device ID (8 bytes hex).
func GenerateDeviceID() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// WriteTimeout returns the remote write deadline.
func (c *Config) WriteTimeout() time.Duration {
	return parseDuration(c.Sync.WriteTimeout, DefaultWriteTimeout)
}

// ProbeInterval returns the connectivity probe period.
func (c *Config) ProbeInterval() time.Duration {
	return parseDuration(c.Sync.ProbeInterval, DefaultProbeInterval)
}

// ConnectTimeout returns the remote dial deadline; zero means the backend
// default.
func (c *Config) ConnectTimeout() time.Duration {
	return parseDuration(c.Remote.ConnectTimeout, 0)
}

// Exchange returns the AMQP exchange for order events.
func (c *Config) Exchange() string {
	if c.Events.Exchange != "" {
		return c.Events.Exchange
	}
	return DefaultExchange
}

func parseDuration(raw string, def time.Duration) time.Duration {
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	// bare numbers are seconds
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return def
}

// GetFeatureFlag returns a feature flag from the config file.
// The second return value indicates whether the flag is explicitly set.
func GetFeatureFlag(dataDir, name string) (bool, bool, error) {
	cfg, err := Load(dataDir)
	if err != nil {
		return false, false, err
	}
	value, ok := cfg.FeatureFlags[name]
	return value, ok, nil
}

// SetFeatureFlag persists a feature flag.
func SetFeatureFlag(dataDir, name string, enabled bool) error {
	return Update(dataDir, func(c *Config) error {
		if c.FeatureFlags == nil {
			c.FeatureFlags = make(map[string]bool)
		}
		c.FeatureFlags[name] = enabled
		return nil
	})
}

// UnsetFeatureFlag removes an explicitly-set feature flag.
func UnsetFeatureFlag(dataDir, name string) error {
	return Update(dataDir, func(c *Config) error {
		delete(c.FeatureFlags, name)
		if len(c.FeatureFlags) == 0 {
			c.FeatureFlags = nil
		}
		return nil
	})
}

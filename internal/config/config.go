// Package config loads fintrack settings from defaults, a YAML file,
// FINTRACK_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Keys shared by flags, environment and the config file.
const (
	KeyDataDir       = "data_dir"
	KeyAPIURL        = "api_url"
	KeyTimeout       = "timeout"
	KeyMaxRetries    = "max_retries"
	KeyRetryBackoff  = "retry_backoff"
	KeyRateLimit     = "rate_limit"
	KeySyncInterval  = "sync_interval"
	KeyDashboardPort = "dashboard_port"
	KeyLogFile       = "log_file"
	KeyServerAddr    = "server.addr"
	KeyServerDriver  = "server.driver"
	KeyServerDSN     = "server.dsn"
)

// EnvPrefix is prepended to every environment variable, e.g. FINTRACK_API_URL.
const EnvPrefix = "FINTRACK"

// Server drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the resolved configuration.
type Config struct {
	DataDir       string        `mapstructure:"data_dir"`
	APIURL        string        `mapstructure:"api_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxRetries    int           `mapstructure:"max_retries"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
	RateLimit     float64       `mapstructure:"rate_limit"`
	SyncInterval  time.Duration `mapstructure:"sync_interval"`
	DashboardPort int           `mapstructure:"dashboard_port"`
	LogFile       string        `mapstructure:"log_file"`
	Server        ServerConfig  `mapstructure:"server"`

	// File is the config file that was read, empty when none existed.
	File string `mapstructure:"-"`
}

// ServerConfig configures the reference API server.
type ServerConfig struct {
	Addr   string `mapstructure:"addr"`
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// DefaultDataDir returns ~/.fintrack, or .fintrack in the working directory
// when the home directory is unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".fintrack"
	}
	return filepath.Join(home, ".fintrack")
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault(KeyDataDir, DefaultDataDir())
	v.SetDefault(KeyAPIURL, "http://localhost:8080")
	v.SetDefault(KeyTimeout, 10*time.Second)
	v.SetDefault(KeyMaxRetries, 0)
	v.SetDefault(KeyRetryBackoff, 500*time.Millisecond)
	v.SetDefault(KeyRateLimit, 0)
	v.SetDefault(KeySyncInterval, 5*time.Minute)
	v.SetDefault(KeyDashboardPort, 8090)
	v.SetDefault(KeyLogFile, "")
	v.SetDefault(KeyServerAddr, ":8080")
	v.SetDefault(KeyServerDriver, DriverSQLite)
	v.SetDefault(KeyServerDSN, "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads configFile, or <data_dir>/config.yaml when configFile is empty,
// and returns the merged configuration. A missing default file is not an
// error; a missing explicit file is.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	explicit := configFile != ""
	if !explicit {
		configFile = filepath.Join(v.GetString(KeyDataDir), "config.yaml")
	}

	read := false
	if _, err := os.Stat(configFile); err == nil {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
		read = true
	} else if explicit || !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	if read {
		cfg.File = configFile
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("%s must not be empty", KeyDataDir)
	}
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an http(s) URL (got %q)", KeyAPIURL, c.APIURL)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%s must be positive (got %s)", KeyTimeout, c.Timeout)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%s must not be negative (got %d)", KeyMaxRetries, c.MaxRetries)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("%s must not be negative (got %v)", KeyRateLimit, c.RateLimit)
	}
	if c.SyncInterval <= 0 {
		return fmt.Errorf("%s must be positive (got %s)", KeySyncInterval, c.SyncInterval)
	}
	switch c.Server.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("%s must be %s or %s (got %q)", KeyServerDriver, DriverSQLite, DriverPostgres, c.Server.Driver)
	}
	return nil
}

// DatabasePath is the local SQLite file.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "fintrack.db")
}

// SessionPath is the session file written by login.
func (c *Config) SessionPath() string {
	return filepath.Join(c.DataDir, "session.toml")
}

// LockPath is the daemon's single-instance lock.
func (c *Config) LockPath() string {
	return filepath.Join(c.DataDir, "daemon.lock")
}

// ServerDatabasePath is the API server's SQLite file when no DSN is set.
func (c *Config) ServerDatabasePath() string {
	if c.Server.DSN != "" {
		return c.Server.DSN
	}
	return filepath.Join(c.DataDir, "server.db")
}

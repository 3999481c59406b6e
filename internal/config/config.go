// Package config loads the server and client settings from environment
// variables and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Server holds the configuration of cmd/server. Every field maps 1:1 to an
// env var.
type Server struct {
	Port int `mapstructure:"PORT"`

	// Database
	DBDriver    string `mapstructure:"DB_DRIVER"` // sqlite | postgres
	DBPath      string `mapstructure:"DB_PATH"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// Change feed. Empty uses the in-memory broker.
	RedisURL string `mapstructure:"REDIS_URL"`

	StaticPath string `mapstructure:"STATIC_PATH"`

	// Device tokens
	DeviceTokenSecret   string `mapstructure:"DEVICE_TOKEN_SECRET"`
	DeviceTokenTTLHours int    `mapstructure:"DEVICE_TOKEN_TTL_HOURS"`

	// Receipt extraction. Empty URL disables the service.
	ExtractionURL            string `mapstructure:"EXTRACTION_URL"`
	ExtractionAPIKey         string `mapstructure:"EXTRACTION_API_KEY"`
	ExtractionTimeoutSeconds int    `mapstructure:"EXTRACTION_TIMEOUT_SECONDS"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"` // text | json
}

// Client holds the configuration of cmd/tabsplit.
type Client struct {
	ServerURL  string `mapstructure:"TABSPLIT_SERVER_URL"`
	StateDir   string `mapstructure:"TABSPLIT_STATE_DIR"`
	TipPercent string `mapstructure:"TABSPLIT_TIP_PERCENT"`
	LogLevel   string `mapstructure:"LOG_LEVEL"`
}

// LoadServer reads the server configuration. dir is searched for a .env
// file; a missing file is not an error.
func LoadServer(dir string) (*Server, error) {
	v := newViper(dir)
	v.SetDefault("PORT", 8080)
	v.SetDefault("DB_DRIVER", "sqlite")
	v.SetDefault("DB_PATH", "./data/tabsplit.db")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("STATIC_PATH", "./static")
	v.SetDefault("DEVICE_TOKEN_SECRET", "")
	v.SetDefault("DEVICE_TOKEN_TTL_HOURS", 24*30)
	v.SetDefault("EXTRACTION_URL", "")
	v.SetDefault("EXTRACTION_API_KEY", "")
	v.SetDefault("EXTRACTION_TIMEOUT_SECONDS", 60)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")

	if err := readOptional(v); err != nil {
		return nil, err
	}
	cfg := &Server{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that have no usable default.
func (c *Server) Validate() error {
	var errs []error
	switch c.DBDriver {
	case "sqlite":
		if c.DBPath == "" {
			errs = append(errs, errors.New("DB_PATH is required for sqlite"))
		}
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", c.DBDriver))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT out of range: %d", c.Port))
	}
	if c.DeviceTokenTTLHours <= 0 {
		errs = append(errs, errors.New("DEVICE_TOKEN_TTL_HOURS must be positive"))
	}
	return errors.Join(errs...)
}

// DeviceTokenTTL returns the lifetime of issued device tokens.
func (c *Server) DeviceTokenTTL() time.Duration {
	return time.Duration(c.DeviceTokenTTLHours) * time.Hour
}

// ExtractionTimeout returns the HTTP timeout of the extraction endpoint.
func (c *Server) ExtractionTimeout() time.Duration {
	return time.Duration(c.ExtractionTimeoutSeconds) * time.Second
}

// LoadClient reads the client configuration. dir is searched for a .env
// file; a missing file is not an error.
func LoadClient(dir string) (*Client, error) {
	v := newViper(dir)
	v.SetDefault("TABSPLIT_SERVER_URL", "http://localhost:8080")
	v.SetDefault("TABSPLIT_STATE_DIR", defaultStateDir())
	v.SetDefault("TABSPLIT_TIP_PERCENT", "10")
	v.SetDefault("LOG_LEVEL", "info")

	if err := readOptional(v); err != nil {
		return nil, err
	}
	cfg := &Client{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if _, err := cfg.Tip(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Tip returns the tip percentage applied to every diner.
func (c *Client) Tip() (decimal.Decimal, error) {
	tip, err := decimal.NewFromString(strings.TrimSpace(c.TipPercent))
	if err != nil || tip.IsNegative() {
		return decimal.Zero, fmt.Errorf("TABSPLIT_TIP_PERCENT must be a non-negative number, got %q", c.TipPercent)
	}
	return tip, nil
}

// LogPath is the file the terminal UI logs to.
func (c *Client) LogPath() string {
	return filepath.Join(c.StateDir, "tabsplit.log")
}

func newViper(dir string) *viper.Viper {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	if dir == "" {
		dir = "."
	}
	v.AddConfigPath(dir)
	v.AutomaticEnv()
	return v
}

func readOptional(v *viper.Viper) error {
	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if err != nil && !errors.As(err, &notFound) {
		return fmt.Errorf("read .env: %w", err)
	}
	return nil
}

func defaultStateDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "tabsplit")
	}
	return ".tabsplit"
}

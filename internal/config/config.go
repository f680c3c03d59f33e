package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/Veraticus/claimflow/internal/common"
	"github.com/spf13/viper"
)

// Storage drivers.
const (
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Config is the resolved application configuration.
type Config struct {
	Backend BackendConfig
	Storage StorageConfig
	Redis   RedisConfig
	Logging LoggingConfig
	UserID  string
	Serve   ServeConfig
}

// BackendConfig locates the claim-processing service.
type BackendConfig struct {
	URL     string
	Timeout time.Duration
}

// StorageConfig selects the durable store.
type StorageConfig struct {
	Driver    string
	Path      string
	Namespace string
}

// RedisConfig configures the redis store driver.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	TTL      time.Duration
}

// LoggingConfig configures slog.
type LoggingConfig struct {
	Level  string
	Format string
}

// ServeConfig configures the local console.
type ServeConfig struct {
	Addr string
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("backend.url", "http://localhost:8000")
	v.SetDefault("backend.timeout", "60s")
	v.SetDefault("storage.driver", DriverSQLite)
	v.SetDefault("storage.path", filepath.Join(DefaultDataDir(), "claimflow.db"))
	v.SetDefault("storage.namespace", "default")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "0s")
	v.SetDefault("serve.addr", "127.0.0.1:8088")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Load reads and validates configuration from v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Backend: BackendConfig{
			URL:     strings.TrimRight(strings.TrimSpace(v.GetString("backend.url")), "/"),
			Timeout: v.GetDuration("backend.timeout"),
		},
		Storage: StorageConfig{
			Driver:    strings.ToLower(strings.TrimSpace(v.GetString("storage.driver"))),
			Path:      ExpandPath(v.GetString("storage.path")),
			Namespace: strings.TrimSpace(v.GetString("storage.namespace")),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Username: v.GetString("redis.username"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			TTL:      v.GetDuration("redis.ttl"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
		UserID: strings.TrimSpace(v.GetString("user.id")),
		Serve:  ServeConfig{Addr: v.GetString("serve.addr")},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Backend.URL == "" {
		return fmt.Errorf("%w: backend.url", common.ErrMissingConfig)
	}
	u, err := url.Parse(c.Backend.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: backend.url %q must be an http(s) URL", common.ErrInvalidConfig, c.Backend.URL)
	}
	if c.Backend.Timeout < 0 {
		return fmt.Errorf("%w: backend.timeout must not be negative", common.ErrInvalidConfig)
	}

	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.Path == "" {
			return fmt.Errorf("%w: storage.path", common.ErrMissingConfig)
		}
	case DriverRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("%w: redis.addr", common.ErrMissingConfig)
		}
	default:
		return fmt.Errorf("%w: storage.driver %q (want sqlite or redis)", common.ErrInvalidConfig, c.Storage.Driver)
	}

	if _, err := common.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "console", "json", "":
	default:
		return fmt.Errorf("%w: logging.format %q", common.ErrInvalidConfig, c.Logging.Format)
	}
	return nil
}

package infra

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"crypto_terminal/internal/domain"
)

const (
	// DefaultUserAgent is a browser-like user agent string to avoid bot detection
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	envPrefix = "TERMINAL_"
)

// Config holds every setting of the terminal core.
// Values loaded by LoadConfig are overridden by TERMINAL_* environment
// variables, which may also come from a .env file.
type Config struct {
	App struct {
		Name      string `yaml:"name"`
		Version   string `yaml:"version"`
		InboxSize int    `yaml:"inbox_size"`
		DumpPath  string `yaml:"dump_path"`
	} `yaml:"app"`

	Feed struct {
		WSURL            string   `yaml:"ws_url"`
		Subscribe        []string `yaml:"subscribe"` // request names sent after each connect
		Symbols          []string `yaml:"symbols"`
		PingIntervalSec  int      `yaml:"ping_interval_sec"`
		MaxBackoffSec    int      `yaml:"max_backoff_sec"`
		CircuitThreshold int      `yaml:"circuit_threshold"` // consecutive failures before the circuit opens
	} `yaml:"feed"`

	Storage struct {
		Driver string `yaml:"driver"` // "sqlite" or "postgres"
		Path   string `yaml:"path"`   // sqlite file
		DSN    string `yaml:"dsn"`    // postgres DSN
	} `yaml:"storage"`

	Cache struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTLSec   int    `yaml:"ttl_sec"`
	} `yaml:"cache"`

	API struct {
		Enabled bool   `yaml:"enabled"`
		Listen  string `yaml:"listen"`
	} `yaml:"api"`

	Depth struct {
		Levels int `yaml:"levels"`
	} `yaml:"depth"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`

	Profiling struct {
		Enabled       bool   `yaml:"enabled"`
		ServerAddress string `yaml:"server_address"`
	} `yaml:"profiling"`

	Assets struct {
		SyncIcons bool   `yaml:"sync_icons"`
		IconDir   string `yaml:"icon_dir"` // empty means the user config directory
		IconURL   string `yaml:"icon_url"` // printf pattern taking the lower-case asset
	} `yaml:"assets"`
}

// CacheTTL returns the cache entry lifetime.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSec) * time.Second
}

// MaxBackoff returns the reconnect backoff cap.
func (c *Config) MaxBackoff() time.Duration {
	return time.Duration(c.Feed.MaxBackoffSec) * time.Second
}

// LoadConfig reads and parses the configuration file.
func LoadConfig(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &domain.ConfigError{Field: "path", Err: fmt.Errorf("%s: %w", path, domain.ErrConfigNotFound)}
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.InboxSize <= 0 {
		cfg.App.InboxSize = 4096
	}
	if cfg.App.DumpPath == "" {
		cfg.App.DumpPath = "panic_dump.json"
	}
	if cfg.Feed.PingIntervalSec <= 0 {
		cfg.Feed.PingIntervalSec = 30
	}
	if cfg.Feed.MaxBackoffSec <= 0 {
		cfg.Feed.MaxBackoffSec = 60
	}
	if cfg.Feed.CircuitThreshold <= 0 {
		cfg.Feed.CircuitThreshold = 5
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "terminal.db"
	}
	if cfg.Cache.TTLSec <= 0 {
		cfg.Cache.TTLSec = 30
	}
	if cfg.API.Listen == "" {
		cfg.API.Listen = "127.0.0.1:8080"
	}
	if cfg.Depth.Levels <= 0 {
		cfg.Depth.Levels = 20
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "logs"
	}
	if cfg.Assets.IconURL == "" {
		cfg.Assets.IconURL = "https://assets.coincap.io/assets/icons/%s@2x.png"
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.Feed.WSURL == "" || (!strings.HasPrefix(c.Feed.WSURL, "ws://") && !strings.HasPrefix(c.Feed.WSURL, "wss://")) {
		return &domain.ConfigError{Field: "feed.ws_url", Err: fmt.Errorf("invalid websocket URL %q", c.Feed.WSURL)}
	}

	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.Path == "" {
			return &domain.ConfigError{Field: "storage.path", Err: errors.New("sqlite path is required")}
		}
	case "postgres":
		if c.Storage.DSN == "" {
			return &domain.ConfigError{Field: "storage.dsn", Err: errors.New("postgres DSN is required")}
		}
	default:
		return &domain.ConfigError{Field: "storage.driver", Err: fmt.Errorf("unsupported driver %q", c.Storage.Driver)}
	}

	if c.Cache.Enabled && c.Cache.Addr == "" {
		return &domain.ConfigError{Field: "cache.addr", Err: errors.New("redis address is required when cache is enabled")}
	}
	if c.Profiling.Enabled && c.Profiling.ServerAddress == "" {
		return &domain.ConfigError{Field: "profiling.server_address", Err: errors.New("required when profiling is enabled")}
	}
	if c.Depth.Levels > 500 {
		return &domain.ConfigError{Field: "depth.levels", Err: fmt.Errorf("%d exceeds 500", c.Depth.Levels)}
	}

	return nil
}

// overrideWithEnv overwrites settings with TERMINAL_* variables when set.
func overrideWithEnv(cfg *Config) {
	if v := os.Getenv(envPrefix + "WS_URL"); v != "" {
		cfg.Feed.WSURL = v
	}
	if v := os.Getenv(envPrefix + "STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv(envPrefix + "STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv(envPrefix + "REDIS_ADDR"); v != "" {
		cfg.Cache.Addr = v
		cfg.Cache.Enabled = true
	}
	if v := os.Getenv(envPrefix + "REDIS_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv(envPrefix + "API_LISTEN"); v != "" {
		cfg.API.Listen = v
	}
	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(envPrefix + "PYROSCOPE_ADDR"); v != "" {
		cfg.Profiling.ServerAddress = v
		cfg.Profiling.Enabled = true
	}
	if v := os.Getenv(envPrefix + "DEPTH_LEVELS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Depth.Levels = n
		}
	}
}

// Package config loads the proxy configuration: defaults, then an optional
// YAML file, then environment overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/leaguestats/statscache/internal/upstream"
	"github.com/leaguestats/statscache/pkg/cache"
	"github.com/leaguestats/statscache/pkg/chunk"
	"github.com/leaguestats/statscache/pkg/invalidation"
	"github.com/leaguestats/statscache/pkg/logging"
	"github.com/leaguestats/statscache/pkg/middleware"
	"github.com/leaguestats/statscache/pkg/statswindow"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file read when STATSCACHE_CONFIG is unset.
const DefaultPath = "statscache.yaml"

// Config is the complete proxy configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Upstream     UpstreamConfig     `yaml:"upstream"`
	Redis        RedisConfig        `yaml:"redis"`
	Cache        CacheConfig        `yaml:"cache"`
	Chunk        ChunkConfig        `yaml:"chunk"`
	Invalidation InvalidationConfig `yaml:"invalidation"`
	Log          LogConfig          `yaml:"log"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// AdminToken guards /system/admin; empty disables the admin endpoints
	AdminToken string `yaml:"admin_token"`

	// Mode is the gin mode ("release", "debug", "test")
	Mode string `yaml:"mode"`
}

// UpstreamConfig points at the league API.
type UpstreamConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`

	// AccessorRetryMax is the retry budget for stats window lookups
	AccessorRetryMax int `yaml:"accessor_retry_max"`
}

// RedisConfig configures the change feed. An empty URL disables it.
type RedisConfig struct {
	URL           string `yaml:"url"`
	ChannelPrefix string `yaml:"channel_prefix"`
}

// RouteConfig is the caching rule for a path prefix.
type RouteConfig struct {
	Prefix         string        `yaml:"prefix"`
	TTL            time.Duration `yaml:"ttl"`
	Disabled       bool          `yaml:"disabled"`
	PerIdentity    bool          `yaml:"per_identity"`
	MustRevalidate bool          `yaml:"must_revalidate"`
}

// CacheConfig holds store and route settings.
type CacheConfig struct {
	Capacity     int           `yaml:"capacity"`
	DefaultTTL   time.Duration `yaml:"default_ttl"`
	ReapInterval time.Duration `yaml:"reap_interval"`
	Default      RouteConfig   `yaml:"default"`
	Routes       []RouteConfig `yaml:"routes"`
}

// ChunkConfig holds page size limits.
type ChunkConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
}

// InvalidationConfig holds the resource mapping and reconnect backoff.
type InvalidationConfig struct {
	// Mapping replaces the built-in resource mapping when set; nil keeps
	// invalidation.DefaultMapping.
	Mapping          map[string][]string `yaml:"mapping"`
	ReconnectInitial time.Duration       `yaml:"reconnect_initial"`
	ReconnectMax     time.Duration       `yaml:"reconnect_max"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			Mode:            "release",
		},
		Upstream: UpstreamConfig{
			URL:              "http://localhost:3000",
			Timeout:          10 * time.Second,
			AccessorRetryMax: 2,
		},
		Redis: RedisConfig{
			ChannelPrefix: invalidation.DefaultChannelPrefix,
		},
		Cache: CacheConfig{
			Capacity:     cache.DefaultCapacity,
			DefaultTTL:   cache.DefaultTTL,
			ReapInterval: cache.DefaultReapInterval,
			Default: RouteConfig{
				TTL:         30 * time.Second,
				PerIdentity: true,
			},
			Routes: []RouteConfig{
				{Prefix: "/leagues", TTL: 60 * time.Second},
				{Prefix: "/matches", TTL: 30 * time.Second},
				{Prefix: "/players", TTL: 120 * time.Second},
				{Prefix: "/statistics", TTL: 30 * time.Second, MustRevalidate: true},
				{Prefix: "/votes", TTL: 15 * time.Second, MustRevalidate: true},
				{Prefix: "/users", Disabled: true},
				{Prefix: "/auth", Disabled: true},
				{Prefix: "/system", Disabled: true},
			},
		},
		Chunk: ChunkConfig{
			DefaultLimit: chunk.DefaultLimit,
			MaxLimit:     chunk.MaxLimit,
		},
		Invalidation: InvalidationConfig{
			ReconnectInitial: 500 * time.Millisecond,
			ReconnectMax:     30 * time.Second,
		},
		Log: LogConfig{
			Level: string(logging.LevelInfo),
		},
	}
}

// Load reads the config file named by STATSCACHE_CONFIG (default statscache.yaml).
func Load() (Config, error) {
	return LoadFile(getEnv("STATSCACHE_CONFIG", DefaultPath))
}

// LoadFile builds the configuration from defaults, the YAML file at path (if
// it exists) and environment overrides, then validates it.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// defaults only
	default:
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := getEnv("PORT", ""); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		c.Server.Port = port
	}
	c.Upstream.URL = getEnv("UPSTREAM_URL", c.Upstream.URL)
	c.Redis.URL = getEnv("REDIS_URL", c.Redis.URL)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Server.AdminToken = getEnv("ADMIN_TOKEN", c.Server.AdminToken)
	if v := getEnv("LOG_PRETTY", ""); v != "" {
		pretty, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("LOG_PRETTY: %w", err)
		}
		c.Log.Pretty = pretty
	}
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535 (got %d)", c.Server.Port)
	}
	switch c.Server.Mode {
	case "release", "debug", "test":
	default:
		return fmt.Errorf("server.mode must be release, debug or test (got %q)", c.Server.Mode)
	}

	u, err := url.Parse(c.Upstream.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("upstream.url must be an absolute http(s) URL (got %q)", c.Upstream.URL)
	}
	if c.Upstream.Timeout <= 0 {
		return fmt.Errorf("upstream.timeout must be positive")
	}

	if c.Cache.Capacity < 0 {
		return fmt.Errorf("cache.capacity must be >= 0 (got %d)", c.Cache.Capacity)
	}
	if c.Cache.DefaultTTL <= 0 {
		return fmt.Errorf("cache.default_ttl must be positive")
	}
	if c.Cache.ReapInterval < time.Second {
		return fmt.Errorf("cache.reap_interval must be at least 1s (got %s)", c.Cache.ReapInterval)
	}
	for i, r := range c.Cache.Routes {
		if !strings.HasPrefix(r.Prefix, "/") {
			return fmt.Errorf("cache.routes[%d].prefix must start with / (got %q)", i, r.Prefix)
		}
		if r.TTL < 0 {
			return fmt.Errorf("cache.routes[%d].ttl must be >= 0", i)
		}
	}

	if c.Chunk.DefaultLimit < 1 || c.Chunk.MaxLimit < c.Chunk.DefaultLimit {
		return fmt.Errorf("chunk limits must satisfy 1 <= default_limit <= max_limit (got %d, %d)",
			c.Chunk.DefaultLimit, c.Chunk.MaxLimit)
	}

	for rt, patterns := range c.Invalidation.Mapping {
		for _, p := range patterns {
			if _, err := cache.CompilePattern(p); err != nil {
				return fmt.Errorf("invalidation.mapping[%s]: %w", rt, err)
			}
		}
	}

	if c.Redis.URL != "" {
		if _, err := c.RedisOptions(); err != nil {
			return err
		}
	}

	if !logging.LogLevel(c.Log.Level).Valid() {
		return fmt.Errorf("log.level must be debug, info, warn or error (got %q)", c.Log.Level)
	}
	return nil
}

// StoreConfig returns the cache store configuration.
func (c Config) StoreConfig() cache.Config {
	return cache.Config{
		Capacity:   c.Cache.Capacity,
		DefaultTTL: c.Cache.DefaultTTL,
	}
}

// MiddlewareConfig returns the conditional-response middleware configuration.
func (c Config) MiddlewareConfig() middleware.Config {
	routes := make([]middleware.Rule, 0, len(c.Cache.Routes))
	for _, r := range c.Cache.Routes {
		routes = append(routes, r.rule())
	}
	return middleware.Config{
		Rules: middleware.NewRules(c.Cache.Default.rule(), routes...),
		Chunk: chunk.Config{
			DefaultLimit: c.Chunk.DefaultLimit,
			MaxLimit:     c.Chunk.MaxLimit,
		},
	}
}

// BridgeConfig returns the invalidation bridge configuration.
func (c Config) BridgeConfig() invalidation.Config {
	cfg := invalidation.DefaultConfig()
	if len(c.Invalidation.Mapping) > 0 {
		cfg.Mapping = c.Invalidation.Mapping
	}
	cfg.Reconnect.InitialInterval = c.Invalidation.ReconnectInitial
	cfg.Reconnect.MaxInterval = c.Invalidation.ReconnectMax
	return cfg
}

// UpstreamConfig returns the forwarding client configuration.
func (c Config) UpstreamConfig() upstream.Config {
	cfg := upstream.DefaultConfig(c.Upstream.URL)
	cfg.Timeout = c.Upstream.Timeout
	return cfg
}

// AccessorConfig returns the stats window accessor configuration.
func (c Config) AccessorConfig() statswindow.HTTPAccessorConfig {
	return statswindow.HTTPAccessorConfig{
		BaseURL:  c.Upstream.URL,
		Timeout:  c.Upstream.Timeout,
		RetryMax: c.Upstream.AccessorRetryMax,
	}
}

// LoggingConfig returns the logger configuration.
func (c Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.Log.Level)
	cfg.Pretty = c.Log.Pretty
	return cfg
}

// RedisOptions parses Redis.URL. Both redis:// URLs and bare host:port are accepted.
func (c Config) RedisOptions() (*redis.Options, error) {
	if strings.Contains(c.Redis.URL, "://") {
		opts, err := redis.ParseURL(c.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("redis.url: %w", err)
		}
		return opts, nil
	}
	if !strings.Contains(c.Redis.URL, ":") {
		return nil, fmt.Errorf("redis.url must be host:port or a redis:// URL (got %q)", c.Redis.URL)
	}
	return &redis.Options{Addr: c.Redis.URL}, nil
}

func (r RouteConfig) rule() middleware.Rule {
	return middleware.Rule{
		Prefix:         r.Prefix,
		TTL:            r.TTL,
		Disabled:       r.Disabled,
		PerIdentity:    r.PerIdentity,
		MustRevalidate: r.MustRevalidate,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

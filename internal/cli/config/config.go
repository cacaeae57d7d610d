// Package config loads the gateway configuration from defaults, an optional
// gas.yaml, and GAS_ environment variables.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/grundstein/gas/internal/api"
	"github.com/grundstein/gas/internal/logging"
	"github.com/grundstein/gas/internal/web/cache"
	"github.com/grundstein/gas/internal/web/middleware"
)

// EnvPrefix prefixes environment overrides, e.g. GAS_SERVER_PORT
const EnvPrefix = "GAS"

// Config represents the gateway configuration
type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Server  ServerConfig  `mapstructure:"server"`
	CORS    CORSConfig    `mapstructure:"cors"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Log     LogConfig     `mapstructure:"log"`

	// File is the config file that was read, empty when none was found
	File string `mapstructure:"-"`
}

// APIConfig locates the API directory
type APIConfig struct {
	Dir      string `mapstructure:"dir"`
	DataFile string `mapstructure:"data_file"`
	Layout   string `mapstructure:"layout"`
	Watch    bool   `mapstructure:"watch"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	CertDir         string        `mapstructure:"cert_dir"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	Compress        bool          `mapstructure:"compress"`
}

// CORSConfig holds the default CORS headers
type CORSConfig struct {
	Origin  []string `mapstructure:"origin"`
	Headers string   `mapstructure:"headers"`
}

// CacheConfig selects the response cache backend
type CacheConfig struct {
	Backend string        `mapstructure:"backend"`
	TTL     time.Duration `mapstructure:"ttl"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

// RedisConfig holds the Redis connection of the redis cache backend
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Address string `mapstructure:"address"`
	Path    string `mapstructure:"path"`

	// Pprof also serves /debug/pprof on the metrics address
	Pprof bool `mapstructure:"pprof"`
}

// LogConfig configures the logger
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.dir", "api")
	v.SetDefault("api.data_file", "__getData__.yaml")
	v.SetDefault("api.layout", api.MultiTenant.String())
	v.SetDefault("api.watch", false)

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 2351)
	v.SetDefault("server.cert_dir", "")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.max_body_bytes", int64(10<<20))
	v.SetDefault("server.compress", false)

	cors := middleware.DefaultCORSConfig()
	v.SetDefault("cors.origin", cors.AllowedOrigins)
	v.SetDefault("cors.headers", cors.AllowedHeaders)

	v.SetDefault("cache.backend", cache.BackendNone)
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)

	v.SetDefault("metrics.address", "")
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.pprof", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", logging.FormatConsole)
}

// Load reads the configuration. With an empty path gas.yaml (or gas.yml)
// is looked up in the working directory and may be missing; an explicit
// path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("gas")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	cfg.CORS.Origin = middleware.ParseOrigins(cfg.CORS.Origin...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail late
func (c *Config) Validate() error {
	if c.API.Dir == "" {
		return errors.New("api.dir must not be empty")
	}
	if c.API.DataFile == "" {
		return errors.New("api.data_file must not be empty")
	}
	if _, err := api.ParseLayout(c.API.Layout); err != nil {
		return fmt.Errorf("api.layout: %w", err)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	switch c.Cache.Backend {
	case "", cache.BackendNone, cache.BackendMemory, cache.BackendRedis:
	default:
		return fmt.Errorf("cache.backend must be one of none, memory, redis, got %q", c.Cache.Backend)
	}
	if c.Metrics.Address != "" && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/', got %q", c.Metrics.Path)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", logging.FormatConsole, logging.FormatJSON:
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	return nil
}

// Address returns the listen address of the api server
func (c *Config) Address() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// Layout returns the parsed api layout
func (c *Config) Layout() api.Layout {
	layout, _ := api.ParseLayout(c.API.Layout)
	return layout
}

// CORSPolicy returns the CORS defaults for the dispatcher
func (c *Config) CORSPolicy() middleware.CORSConfig {
	return middleware.CORSConfig{
		AllowedOrigins: c.CORS.Origin,
		AllowedHeaders: c.CORS.Headers,
	}
}

// CacheOptions returns the options for cache.New
func (c *Config) CacheOptions() cache.Options {
	return cache.Options{
		Backend: c.Cache.Backend,
		TTL:     c.Cache.TTL,
		Redis: cache.RedisConfig{
			Addr:     c.Cache.Redis.Addr,
			Password: c.Cache.Redis.Password,
			DB:       c.Cache.Redis.DB,
		},
	}
}

// Logging returns the logger configuration
func (c *Config) Logging() logging.Config {
	return logging.Config{Level: c.Log.Level, Format: c.Log.Format}
}

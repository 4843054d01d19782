// Package config loads service configuration from defaults, an optional config
// file and IMG_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"imgopt-gateway/internal/cache"
	"imgopt-gateway/internal/transform"
)

const EnvPrefix = "IMG"

type Config struct {
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`

	Server    ServerConfig    `mapstructure:"server"`
	Optimizer OptimizerConfig `mapstructure:"optimizer"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Redis     RedisConfig     `mapstructure:"redis"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

type OptimizerConfig struct {
	MaxWidth        int    `mapstructure:"max_width"`
	MaxHeight       int    `mapstructure:"max_height"`
	ThumbnailWidth  int    `mapstructure:"thumbnail_width"`
	ThumbnailHeight int    `mapstructure:"thumbnail_height"`
	ThumbnailFill   bool   `mapstructure:"thumbnail_fill"`
	DefaultFormat   string `mapstructure:"default_format"`
	WebPQuality     int    `mapstructure:"webp_quality"`
	JPEGQuality     int    `mapstructure:"jpeg_quality"`
	AVIFQuality     int    `mapstructure:"avif_quality"`
	MaxBatchSize    int    `mapstructure:"max_batch_size"`
	Dedupe          bool   `mapstructure:"dedupe"`
}

type FetchConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxFileBytes int64         `mapstructure:"max_file_bytes"`
	UserAgent    string        `mapstructure:"user_agent"`
	Retries      int           `mapstructure:"retries"`
	HostInterval time.Duration `mapstructure:"host_interval"`
}

type CacheConfig struct {
	Backend         string        `mapstructure:"backend"`
	TTL             time.Duration `mapstructure:"ttl"`
	Prefix          string        `mapstructure:"prefix"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type RedisConfig struct {
	// URL takes precedence over Addr/Password/DB/TLS when set.
	URL      string `mapstructure:"url"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	TLS      bool   `mapstructure:"tls"`
}

// envBindings maps config keys to their environment variable names.
var envBindings = map[string]string{
	"env":       "ENV",
	"log_level": "LOG_LEVEL",

	"server.port":             "PORT",
	"server.request_timeout":  "REQUEST_TIMEOUT",
	"server.shutdown_timeout": "SHUTDOWN_TIMEOUT",
	"server.max_body_bytes":   "MAX_BODY_BYTES",
	"server.allowed_origins":  "ALLOWED_ORIGINS",

	"optimizer.max_width":        "MAX_WIDTH",
	"optimizer.max_height":       "MAX_HEIGHT",
	"optimizer.thumbnail_width":  "THUMB_WIDTH",
	"optimizer.thumbnail_height": "THUMB_HEIGHT",
	"optimizer.thumbnail_fill":   "THUMB_FILL",
	"optimizer.default_format":   "DEFAULT_FORMAT",
	"optimizer.webp_quality":     "WEBP_QUALITY",
	"optimizer.jpeg_quality":     "JPEG_QUALITY",
	"optimizer.avif_quality":     "AVIF_QUALITY",
	"optimizer.max_batch_size":   "MAX_BATCH_SIZE",
	"optimizer.dedupe":           "DEDUPE",

	"fetch.timeout":        "DOWNLOAD_TIMEOUT",
	"fetch.max_file_bytes": "MAX_FILE_SIZE",
	"fetch.user_agent":     "USER_AGENT",
	"fetch.retries":        "FETCH_RETRIES",
	"fetch.host_interval":  "FETCH_HOST_INTERVAL",

	"cache.backend":          "CACHE_BACKEND",
	"cache.ttl":              "CACHE_TTL",
	"cache.prefix":           "CACHE_PREFIX",
	"cache.cleanup_interval": "CACHE_CLEANUP_INTERVAL",

	"redis.url":      "REDIS_URL",
	"redis.addr":     "REDIS_ADDR",
	"redis.password": "REDIS_PASSWORD",
	"redis.db":       "REDIS_DB",
	"redis.tls":      "REDIS_TLS",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "")
	v.SetDefault("log_level", "info")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", 5*time.Minute)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("optimizer.max_width", 1920)
	v.SetDefault("optimizer.max_height", 1080)
	v.SetDefault("optimizer.thumbnail_width", 800)
	v.SetDefault("optimizer.thumbnail_height", 800)
	v.SetDefault("optimizer.thumbnail_fill", false)
	v.SetDefault("optimizer.default_format", string(transform.WEBP))
	v.SetDefault("optimizer.webp_quality", 85)
	v.SetDefault("optimizer.jpeg_quality", 90)
	v.SetDefault("optimizer.avif_quality", 80)
	v.SetDefault("optimizer.max_batch_size", 20)
	v.SetDefault("optimizer.dedupe", true)

	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("fetch.max_file_bytes", 15<<20)
	v.SetDefault("fetch.user_agent", "imgopt-gateway/1.0")
	v.SetDefault("fetch.retries", 1)
	v.SetDefault("fetch.host_interval", 100*time.Millisecond)

	v.SetDefault("cache.backend", cache.BackendMemory)
	v.SetDefault("cache.ttl", cache.DefaultTTL)
	v.SetDefault("cache.prefix", "")
	v.SetDefault("cache.cleanup_interval", time.Minute)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.tls", false)
}

// applyProfile overrides defaults for the named environment. Explicit
// settings from the file or environment still win.
func applyProfile(v *viper.Viper, env string) {
	switch normalizeEnv(env) {
	case "development":
		v.SetDefault("optimizer.webp_quality", 75)
		v.SetDefault("cache.ttl", time.Hour)
		v.SetDefault("fetch.max_file_bytes", 5<<20)
	case "production":
		v.SetDefault("optimizer.webp_quality", 90)
		v.SetDefault("cache.ttl", 30*24*time.Hour)
		v.SetDefault("fetch.max_file_bytes", 20<<20)
	}
}

func normalizeEnv(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "development":
		return "development"
	case "prod", "production":
		return "production"
	}
	return ""
}

// Load reads configuration. cfgFile is optional; a missing file at the default
// search path is not an error, but an explicit cfgFile must exist.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("imgopt")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/imgopt")
	}

	for key, env := range envBindings {
		if err := v.BindEnv(key, EnvPrefix+"_"+env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", key, err)
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	applyProfile(v, v.GetString("env"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Env = normalizeEnv(cfg.Env)
	cfg.Optimizer.DefaultFormat = strings.ToUpper(strings.TrimSpace(cfg.Optimizer.DefaultFormat))
	cfg.Cache.Backend = strings.ToLower(strings.TrimSpace(cfg.Cache.Backend))

	if err := cfg.check(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// check rejects settings the service cannot start with. Softer problems are
// reported by Validate and surfaced on /health.
func (c *Config) check() error {
	switch c.Cache.Backend {
	case cache.BackendMemory, cache.BackendRedis, cache.BackendNone:
	default:
		return fmt.Errorf("validating config: unknown cache backend %q", c.Cache.Backend)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("validating config: invalid port %d", c.Server.Port)
	}
	if c.Fetch.Retries < 0 {
		return fmt.Errorf("validating config: fetch retries must not be negative")
	}
	return nil
}

// Validate lists configuration problems; an empty result means valid.
func (c *Config) Validate() []string {
	issues := []string{}
	o := c.Optimizer

	if o.MaxWidth < 100 || o.MaxWidth > 4000 {
		issues = append(issues, "max_width must be between 100 and 4000")
	}
	if o.MaxHeight < 100 || o.MaxHeight > 4000 {
		issues = append(issues, "max_height must be between 100 and 4000")
	}
	qualities := []struct {
		name  string
		value int
	}{
		{"webp_quality", o.WebPQuality},
		{"jpeg_quality", o.JPEGQuality},
		{"avif_quality", o.AVIFQuality},
	}
	for _, q := range qualities {
		if q.value < 1 || q.value > 100 {
			issues = append(issues, q.name+" must be between 1 and 100")
		}
	}
	if !transform.Codec(o.DefaultFormat).Valid() {
		issues = append(issues, fmt.Sprintf("default_format must be one of %v", transform.Codecs))
	}
	if o.MaxBatchSize < 1 {
		issues = append(issues, "max_batch_size must be at least 1")
	}
	if c.Fetch.MaxFileBytes <= 0 {
		issues = append(issues, "max_file_size must be positive")
	}
	return issues
}

// Qualities returns the configured default quality per codec.
func (c *Config) Qualities() map[transform.Codec]int {
	return map[transform.Codec]int{
		transform.WEBP: c.Optimizer.WebPQuality,
		transform.JPEG: c.Optimizer.JPEGQuality,
		transform.AVIF: c.Optimizer.AVIFQuality,
		transform.PNG:  transform.PNG.DefaultQuality(),
	}
}

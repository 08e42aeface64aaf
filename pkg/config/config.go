package config

import (
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

// Cache backends.
const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Application environments.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// Config is the full service configuration.
type Config struct {
	App      AppConfig      `yaml:"app"`
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Cache    CacheConfig    `yaml:"cache"`
	Log      LogConfig      `yaml:"log"`
}

type AppConfig struct {
	Name string `yaml:"name"`
	Env  string `yaml:"env"`
}

type HTTPConfig struct {
	Addr            string   `yaml:"addr"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	// URL selects the driver by scheme: postgres:// or postgresql:// use
	// lib/pq, sqlite3://, sqlite:// and file: use go-sqlite3.
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

type CacheConfig struct {
	Backend   string   `yaml:"backend"`
	RedisURL  string   `yaml:"redis_url"`
	TTL       Duration `yaml:"ttl"`
	Namespace string   `yaml:"namespace"`
	// Capacity bounds the memory backend.
	Capacity             int      `yaml:"capacity"`
	QueryTimeout         Duration `yaml:"query_timeout"`
	InvalidationAttempts uint     `yaml:"invalidation_attempts"`
	InvalidationBackoff  Duration `yaml:"invalidation_backoff"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when nothing else is provided.
func Default() Config {
	return Config{
		App: AppConfig{
			Name: "usersd",
			Env:  EnvDevelopment,
		},
		HTTP: HTTPConfig{
			Addr:            ":8000",
			ReadTimeout:     Duration(10 * time.Second),
			WriteTimeout:    Duration(10 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Database: DatabaseConfig{
			MaxOpenConns: 10,
		},
		Cache: CacheConfig{
			Backend:              BackendRedis,
			RedisURL:             "redis://localhost:6379/0",
			TTL:                  Duration(60 * time.Second),
			Namespace:            "users",
			Capacity:             10000,
			QueryTimeout:         Duration(5 * time.Second),
			InvalidationAttempts: 3,
			InvalidationBackoff:  Duration(50 * time.Millisecond),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds a Config from defaults, the optional YAML file at path and
// the process environment, in that order, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.MergeFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// MergeFile overlays the YAML document at path onto c. Keys absent from
// the file keep their current value.
func (c *Config) MergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read config %s", path)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.Wrapf(err, "parse config %s", path)
	}
	return nil
}

// LookupFunc resolves an environment variable.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overlays the supported environment variables onto c.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	str("APP_NAME", &c.App.Name)
	if v, ok := lookup("APP_ENV"); ok && strings.TrimSpace(v) != "" {
		c.App.Env = strings.ToLower(strings.TrimSpace(v))
	}
	str("HTTP_ADDR", &c.HTTP.Addr)
	str("DATABASE_URL", &c.Database.URL)
	str("REDIS_URL", &c.Cache.RedisURL)
	if v, ok := lookup("CACHE_BACKEND"); ok && strings.TrimSpace(v) != "" {
		c.Cache.Backend = strings.ToLower(strings.TrimSpace(v))
	}
	str("CACHE_NAMESPACE", &c.Cache.Namespace)
	if v, ok := lookup("LOG_LEVEL"); ok && strings.TrimSpace(v) != "" {
		c.Log.Level = strings.ToLower(strings.TrimSpace(v))
	}

	if v, ok := lookup("CACHE_TTL"); ok && strings.TrimSpace(v) != "" {
		d, err := ParseDuration(v)
		if err != nil {
			return errors.Wrap(err, "CACHE_TTL")
		}
		c.Cache.TTL = Duration(d)
	}
	return nil
}

// Validate checks the configuration for missing or out of range values.
func (c Config) Validate() error {
	err := validation.Errors{
		"app": validation.ValidateStruct(&c.App,
			validation.Field(&c.App.Name, validation.Required),
			validation.Field(&c.App.Env, validation.Required, validation.In(EnvDevelopment, EnvProduction, EnvTest)),
		),
		"http": validation.ValidateStruct(&c.HTTP,
			validation.Field(&c.HTTP.Addr, validation.Required),
			validation.Field(&c.HTTP.ShutdownTimeout, validation.Min(Duration(0))),
		),
		"database": validation.ValidateStruct(&c.Database,
			validation.Field(&c.Database.URL, validation.Required, validation.By(checkDatabaseURL)),
			validation.Field(&c.Database.MaxOpenConns, validation.Min(0)),
		),
		"cache": validation.ValidateStruct(&c.Cache,
			validation.Field(&c.Cache.Backend, validation.Required, validation.In(BackendRedis, BackendMemory)),
			validation.Field(&c.Cache.RedisURL, validation.When(c.Cache.Backend == BackendRedis, validation.Required)),
			validation.Field(&c.Cache.TTL, validation.Required, validation.Min(Duration(time.Second))),
			validation.Field(&c.Cache.Namespace, validation.Required),
			validation.Field(&c.Cache.Capacity, validation.When(c.Cache.Backend == BackendMemory, validation.Required, validation.Min(1))),
			validation.Field(&c.Cache.InvalidationAttempts, validation.Required),
		),
		"log": validation.ValidateStruct(&c.Log,
			validation.Field(&c.Log.Level, validation.Required, validation.In("debug", "info", "warn", "error")),
		),
	}.Filter()
	if err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	return nil
}

// IsDevelopment reports whether the service runs with development defaults.
func (c Config) IsDevelopment() bool {
	return c.App.Env == EnvDevelopment
}

// DatabaseDriver returns "postgres" or "sqlite3" for the configured URL.
func (c DatabaseConfig) DatabaseDriver() (string, error) {
	return driverFor(c.URL)
}

func driverFor(url string) (string, error) {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return "postgres", nil
	case strings.HasPrefix(url, "sqlite3://"), strings.HasPrefix(url, "sqlite://"), strings.HasPrefix(url, "file:"):
		return "sqlite3", nil
	}
	return "", errors.Newf("unsupported database url scheme in %q", redactURL(url))
}

func checkDatabaseURL(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := driverFor(s); err != nil {
		return errors.New("must start with postgres://, postgresql://, sqlite3://, sqlite:// or file:")
	}
	return nil
}

// redactURL hides credentials in a connection URL.
func redactURL(url string) string {
	at := strings.LastIndex(url, "@")
	scheme := strings.Index(url, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return url
	}
	return url[:scheme+3] + "***" + url[at:]
}

package cache

import (
	"time"

	"github.com/goliatone/go-user-cache/internal/cacheinfra"
	"github.com/redis/go-redis/v9"
)

// Config exposes the in-process store options for consumers of the cache package.
type Config struct {
	Capacity           int
	NumShards          int
	TTL                time.Duration
	EvictionPercentage int
	EvictionInterval   time.Duration
}

// RedisConfig tunes the Redis backed store.
type RedisConfig struct {
	QueryTimeout time.Duration
	ScanCount    int64
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return convertFromInternal(cacheinfra.DefaultConfig())
}

// DefaultRedisConfig returns the production Redis settings: 5s query
// timeout and a SCAN COUNT hint of 200.
func DefaultRedisConfig() RedisConfig {
	cfg := cacheinfra.DefaultRedisConfig()
	return RedisConfig{QueryTimeout: cfg.QueryTimeout, ScanCount: cfg.ScanCount}
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	return c.toInternal().Validate()
}

// Validate checks whether the configuration values are valid.
func (c RedisConfig) Validate() error {
	return c.toInternal().Validate()
}

// NewMemoryStore constructs the sturdyc backed store. Entries expire after
// cfg.TTL regardless of the ttl passed to Set.
func NewMemoryStore(cfg Config) (*cacheinfra.MemoryStore, error) {
	return cacheinfra.NewMemoryStore(cfg.toInternal())
}

// NewRedisStore constructs a store on top of client. The caller keeps
// ownership of client and must close it.
func NewRedisStore(client redis.UniversalClient, cfg RedisConfig) (*cacheinfra.RedisStore, error) {
	return cacheinfra.NewRedisStore(client, cfg.toInternal())
}

var (
	_ Store  = (*cacheinfra.MemoryStore)(nil)
	_ Closer = (*cacheinfra.MemoryStore)(nil)
	_ Store  = (*cacheinfra.RedisStore)(nil)
)

func (c Config) toInternal() cacheinfra.Config {
	return cacheinfra.Config{
		Capacity:           c.Capacity,
		NumShards:          c.NumShards,
		TTL:                c.TTL,
		EvictionPercentage: c.EvictionPercentage,
		EvictionInterval:   c.EvictionInterval,
	}
}

func (c RedisConfig) toInternal() cacheinfra.RedisConfig {
	return cacheinfra.RedisConfig{
		QueryTimeout: c.QueryTimeout,
		ScanCount:    c.ScanCount,
	}
}

func convertFromInternal(cfg cacheinfra.Config) Config {
	return Config{
		Capacity:           cfg.Capacity,
		NumShards:          cfg.NumShards,
		TTL:                cfg.TTL,
		EvictionPercentage: cfg.EvictionPercentage,
		EvictionInterval:   cfg.EvictionInterval,
	}
}

package di

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/goliatone/go-user-cache/cache"
	"github.com/goliatone/go-user-cache/pkg/config"
	"github.com/goliatone/go-user-cache/repositorycache"
	"github.com/goliatone/go-user-cache/users"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Container owns the shared resources of the service: the database handle,
// the cache store and the cache layer built on them.
//
// Resources are created by Init and released by Shutdown. Accessors used
// before Init hand out a layer that fails with users.ErrNotInitialized.
type Container struct {
	cfg    config.Config
	logger *zap.Logger

	mu     sync.Mutex
	db     *bun.DB
	redis  redis.UniversalClient
	store  cache.Store
	repo   *users.BunRepository
	layer  *repositorycache.CachedUsers
	inited bool
}

// NewContainer validates cfg and returns a container ready for Init.
// A nil logger disables logging.
func NewContainer(cfg config.Config, logger *zap.Logger) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Container{
		cfg:    cfg,
		logger: logger,
		layer:  repositorycache.New(nil, nil, repositorycache.Options{Logger: logger}),
	}, nil
}

// Init opens the database, bootstraps the schema, connects the cache
// backend and starts the cache layer. On failure every resource opened so
// far is released.
func (c *Container) Init(ctx context.Context) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inited {
		return nil
	}

	defer func() {
		if err != nil {
			if cerr := c.release(); cerr != nil {
				c.logger.Warn("release after failed init", zap.Error(cerr))
			}
		}
	}()

	db, err := OpenDB(c.cfg.Database, c.logger)
	if err != nil {
		return err
	}
	c.db = db

	if err := db.PingContext(ctx); err != nil {
		return users.Unavailable(err, "ping database")
	}
	if err := users.CreateSchema(ctx, db); err != nil {
		return err
	}
	c.repo = users.NewBunRepository(db)

	store, err := c.openStore()
	if err != nil {
		return err
	}
	c.store = store

	layer := repositorycache.New(c.repo, c.store, repositorycache.Options{
		TTL:                  c.cfg.Cache.TTL.Std(),
		Namespace:            c.cfg.Cache.Namespace,
		Logger:               c.logger,
		InvalidationAttempts: c.cfg.Cache.InvalidationAttempts,
		InvalidationBackoff:  c.cfg.Cache.InvalidationBackoff.Std(),
	})
	if err := layer.Start(ctx); err != nil {
		return err
	}
	c.layer = layer
	c.inited = true

	c.logger.Info("container initialized",
		zap.String("cache_backend", c.cfg.Cache.Backend),
		zap.Duration("cache_ttl", c.cfg.Cache.TTL.Std()),
		zap.String("namespace", c.cfg.Cache.Namespace),
	)
	return nil
}

func (c *Container) openStore() (cache.Store, error) {
	switch c.cfg.Cache.Backend {
	case config.BackendMemory:
		mcfg := cache.DefaultConfig()
		mcfg.Capacity = c.cfg.Cache.Capacity
		mcfg.TTL = c.cfg.Cache.TTL.Std()
		store, err := cache.NewMemoryStore(mcfg)
		if err != nil {
			return nil, errors.Wrap(err, "memory cache")
		}
		return store, nil

	case config.BackendRedis:
		opts, err := redis.ParseURL(c.cfg.Cache.RedisURL)
		if err != nil {
			return nil, errors.Wrap(err, "parse redis url")
		}
		client := redis.NewClient(opts)
		c.redis = client

		rcfg := cache.DefaultRedisConfig()
		if c.cfg.Cache.QueryTimeout > 0 {
			rcfg.QueryTimeout = c.cfg.Cache.QueryTimeout.Std()
		}
		store, err := cache.NewRedisStore(client, rcfg)
		if err != nil {
			return nil, errors.Wrap(err, "redis cache")
		}
		return store, nil
	}
	return nil, errors.Newf("unknown cache backend %q", c.cfg.Cache.Backend)
}

// Shutdown closes the cache layer, the cache store, the redis client and
// the database, in that order. It is safe to call more than once.
func (c *Container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.release()
	c.inited = false
	if err != nil {
		c.logger.Error("container shutdown", zap.Error(err))
		return err
	}
	c.logger.Info("container shut down")
	return nil
}

func (c *Container) release() error {
	var err error
	if c.layer != nil {
		err = errors.CombineErrors(err, c.layer.Close())
	}
	if c.store != nil {
		err = errors.CombineErrors(err, cache.CloseStore(c.store))
		c.store = nil
	}
	if c.redis != nil {
		err = errors.CombineErrors(err, errors.Wrap(c.redis.Close(), "close redis"))
		c.redis = nil
	}
	if c.db != nil {
		err = errors.CombineErrors(err, errors.Wrap(c.db.Close(), "close database"))
		c.db = nil
	}
	c.repo = nil
	return err
}

// Users returns the cache layer. Before Init, or after Shutdown, every call
// on it fails with users.ErrNotInitialized.
func (c *Container) Users() *repositorycache.CachedUsers {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.layer
}

// Store returns the cache store, or nil before Init.
func (c *Container) Store() cache.Store {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store
}

// DB returns the database handle, or nil before Init.
func (c *Container) DB() *bun.DB {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db
}

// Config returns a copy of the configuration used by this container.
func (c *Container) Config() config.Config {
	return c.cfg
}

// Logger returns the container logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Health pings the database and the cache store. The returned map always
// holds both components; a nil value means healthy.
func (c *Container) Health(ctx context.Context) map[string]error {
	c.mu.Lock()
	db, layer := c.db, c.layer
	c.mu.Unlock()

	report := map[string]error{
		"database": users.ErrNotInitialized,
		"cache":    layer.Ping(ctx),
	}
	if db != nil {
		report["database"] = users.Unavailable(db.PingContext(ctx), "ping database")
	}
	return report
}

package repositorycache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/goliatone/go-user-cache/cache"
	"github.com/goliatone/go-user-cache/users"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultTTL is applied to every cache entry when Options.TTL is zero.
	DefaultTTL = 60 * time.Second

	DefaultInvalidationAttempts = 3
	DefaultInvalidationBackoff  = 50 * time.Millisecond
	DefaultInvalidationTimeout  = 5 * time.Second
)

const (
	stateNew int32 = iota
	stateReady
	stateClosed
)

// Options configures CachedUsers. Zero values take the defaults.
type Options struct {
	TTL time.Duration
	// Namespace prefixes every key, see cache.KeySerializer.
	Namespace string
	Logger    *zap.Logger

	InvalidationAttempts uint
	InvalidationBackoff  time.Duration
	// InvalidationTimeout bounds all invalidation attempts of one mutation.
	// Invalidation is detached from caller cancellation.
	InvalidationTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.InvalidationAttempts == 0 {
		o.InvalidationAttempts = DefaultInvalidationAttempts
	}
	if o.InvalidationBackoff <= 0 {
		o.InvalidationBackoff = DefaultInvalidationBackoff
	}
	if o.InvalidationTimeout <= 0 {
		o.InvalidationTimeout = DefaultInvalidationTimeout
	}
	return o
}

// CachedUsers decorates a users.Repository with a read-through cache and
// write-invalidate consistency. The cache is only mutated after the entity
// store call succeeded.
type CachedUsers struct {
	repo   users.Repository
	store  cache.Store
	keys   cache.KeySerializer
	opts   Options
	logger *zap.Logger
	stats  *counters
	state  atomic.Int32
}

// New creates a CachedUsers layer over repo and store. The layer must be
// started with Start before use.
func New(repo users.Repository, store cache.Store, opts Options) *CachedUsers {
	opts = opts.withDefaults()
	return &CachedUsers{
		repo:   repo,
		store:  store,
		keys:   cache.NewKeySerializer(opts.Namespace),
		opts:   opts,
		logger: opts.Logger.Named("usercache"),
		stats:  newCounters(),
	}
}

// Start verifies the cache store is reachable and marks the layer ready.
// Calling Start on a ready layer is a no-op; a closed layer cannot restart.
func (c *CachedUsers) Start(ctx context.Context) error {
	switch c.state.Load() {
	case stateReady:
		return nil
	case stateClosed:
		return errors.Wrap(users.ErrNotInitialized, "cache layer closed")
	}
	if c.repo == nil || c.store == nil {
		return errors.Wrap(users.ErrNotInitialized, "cache layer missing collaborators")
	}
	if err := c.store.Ping(ctx); err != nil {
		return users.Unavailable(err, "ping cache store")
	}
	if !c.state.CompareAndSwap(stateNew, stateReady) && c.state.Load() != stateReady {
		return errors.Wrap(users.ErrNotInitialized, "cache layer closed")
	}
	c.logger.Debug("cache layer ready", zap.Duration("ttl", c.opts.TTL), zap.String("namespace", c.keys.Namespace()))
	return nil
}

// Close moves the layer to its terminal state. Later calls fail with
// users.ErrNotInitialized. Close does not close the store.
func (c *CachedUsers) Close() error {
	c.state.Store(stateClosed)
	return nil
}

// Ready reports whether the layer accepts calls.
func (c *CachedUsers) Ready() bool {
	return c.state.Load() == stateReady
}

// Ping checks the layer state and the cache store.
func (c *CachedUsers) Ping(ctx context.Context) error {
	if err := c.ready(); err != nil {
		return err
	}
	if err := c.store.Ping(ctx); err != nil {
		return users.Unavailable(err, "ping cache store")
	}
	return nil
}

// Stats returns a snapshot of the layer counters.
func (c *CachedUsers) Stats() Stats {
	return c.stats.snapshot()
}

// ResetStats zeroes the layer counters.
func (c *CachedUsers) ResetStats() {
	c.stats.reset()
}

// Keys exposes the key serializer in use.
func (c *CachedUsers) Keys() cache.KeySerializer {
	return c.keys
}

func (c *CachedUsers) ready() error {
	if c == nil || c.state.Load() != stateReady {
		return users.ErrNotInitialized
	}
	return nil
}

// GetByID returns the user with id, serving it from the cache when present.
func (c *CachedUsers) GetByID(ctx context.Context, id uuid.UUID) (*users.User, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	key := c.keys.PointKey(id.String())

	data, found, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, users.Unavailable(err, "cache get")
	}
	if found {
		u, err := decodeUser(data)
		if err == nil {
			c.stats.hits.Inc()
			c.logger.Debug("cache hit", zap.String("key", key))
			return u, nil
		}
		c.decodeFailed(key, err)
	}
	c.stats.misses.Inc()
	c.logger.Debug("cache miss", zap.String("key", key))

	u, err := c.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	encoded, err := encodeUser(u)
	if err != nil {
		return nil, err
	}
	if err := c.store.Set(ctx, key, encoded, c.opts.TTL); err != nil {
		return nil, users.Unavailable(err, "cache set")
	}
	return u, nil
}

// List returns one page of users ordered by name. Empty pages are cached too.
func (c *CachedUsers) List(ctx context.Context, limit, offset int) ([]*users.User, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	key := c.keys.ListKey(limit, offset)

	data, found, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, users.Unavailable(err, "cache get")
	}
	if found {
		page, err := decodeUsers(data)
		if err == nil {
			c.stats.hits.Inc()
			c.logger.Debug("cache hit", zap.String("key", key))
			return page, nil
		}
		c.decodeFailed(key, err)
	}
	c.stats.misses.Inc()
	c.logger.Debug("cache miss", zap.String("key", key))

	page, err := c.repo.ListPage(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	if page == nil {
		page = []*users.User{}
	}

	encoded, err := encodeUsers(page)
	if err != nil {
		return nil, err
	}
	if err := c.store.Set(ctx, key, encoded, c.opts.TTL); err != nil {
		return nil, users.Unavailable(err, "cache set")
	}
	return page, nil
}

// Create inserts a user and invalidates the cached listings. A duplicate
// email returns users.ErrConflict and leaves the cache untouched.
//
// When invalidation fails after the insert, the created user is returned
// together with ErrInvalidationFailed.
func (c *CachedUsers) Create(ctx context.Context, in users.CreateUser) (*users.User, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	created, err := c.repo.Insert(ctx, in)
	if err != nil {
		return nil, err
	}

	if err := c.invalidate(ctx, created.ID); err != nil {
		return created, err
	}
	return created, nil
}

// Update applies the present fields of in to the user with id. The lookup
// always goes to the entity store, never the cache.
func (c *CachedUsers) Update(ctx context.Context, id uuid.UUID, in users.UpdateUser) (*users.User, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	current, err := c.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updated, err := c.repo.ApplyPartialUpdate(ctx, current, in)
	if err != nil {
		return nil, err
	}

	if err := c.invalidate(ctx, id); err != nil {
		return updated, err
	}
	return updated, nil
}

// Delete removes the user with id and its cache entries.
func (c *CachedUsers) Delete(ctx context.Context, id uuid.UUID) error {
	if err := c.ready(); err != nil {
		return err
	}

	current, err := c.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := c.repo.Remove(ctx, current); err != nil {
		return err
	}

	return c.invalidate(ctx, id)
}

func (c *CachedUsers) decodeFailed(key string, err error) {
	c.stats.decodeFailures.Inc()
	c.logger.Warn("discarding undecodable cache entry", zap.String("key", key), zap.Error(err))
}

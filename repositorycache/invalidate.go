package repositorycache

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/cockroachdb/errors"
	"github.com/goliatone/go-user-cache/users"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrInvalidationFailed is returned by a mutation that reached the entity
// store but could not purge the affected cache entries. The write is
// durable; readers may see the previous value until the entries expire.
var ErrInvalidationFailed = errors.Mark(errors.New("cache invalidation failed"), users.ErrStoreUnavailable)

// invalidate drops every cached list page and the point entry of id,
// retrying with exponential backoff. The write it follows is already
// durable, so it runs to completion even when ctx is canceled.
func (c *CachedUsers) invalidate(parent context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), c.opts.InvalidationTimeout)
	defer cancel()

	prefix := c.keys.ListPrefix()
	point := c.keys.PointKey(id.String())

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.InvalidationBackoff
	b.MaxInterval = 10 * c.opts.InvalidationBackoff

	attempt := 0
	deleted, err := backoff.Retry(ctx, func() (int, error) {
		attempt++
		n, err := c.store.DeleteByPrefix(ctx, prefix)
		if err != nil {
			return 0, err
		}
		if err := c.store.Delete(ctx, point); err != nil {
			return 0, err
		}
		return n, nil
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(c.opts.InvalidationAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Warn("cache invalidation retry",
				zap.String("prefix", prefix),
				zap.String("key", point),
				zap.Int("attempt", attempt),
				zap.Duration("next", next),
				zap.Error(err),
			)
		}),
	)
	if err != nil {
		c.stats.invalidationFailures.Inc()
		c.logger.Error("cache invalidation failed",
			zap.String("prefix", prefix),
			zap.String("key", point),
			zap.Int("attempts", attempt),
			zap.Error(err),
		)
		return errors.WithSecondaryError(errors.Wrapf(ErrInvalidationFailed, "user %s", id), err)
	}

	c.stats.invalidations.Inc()
	c.logger.Debug("cache invalidated",
		zap.String("prefix", prefix),
		zap.String("key", point),
		zap.Int("list_pages", deleted),
	)
	return nil
}

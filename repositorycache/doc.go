// Package repositorycache keeps a key-value cache consistent with the users
// entity store.
//
// # Overview
//
// CachedUsers wraps a users.Repository and a cache.Store. Reads go through
// the cache; writes go to the entity store first and then invalidate the
// affected entries:
//
//	repo := users.NewBunRepository(db)
//	store, _ := cache.NewMemoryStore(cache.DefaultConfig())
//
//	layer := repositorycache.New(repo, store, repositorycache.Options{
//		TTL:    time.Minute,
//		Logger: logger,
//	})
//	if err := layer.Start(ctx); err != nil {
//		return err
//	}
//	defer layer.Close()
//
//	u, err := layer.GetByID(ctx, id)
//	page, err := layer.List(ctx, 10, 0)
//
// # Caching Behavior
//
// GetByID and List follow a read-through pattern:
//
//  1. Look up the point key (users:<id>) or page key (users:list:<limit>:<offset>)
//  2. On a hit, decode and return without touching the entity store
//  3. On a miss, read from the entity store, cache the encoded result with the
//     configured TTL and return it
//
// Entries that fail to decode (unknown envelope version, truncated payload,
// foreign writer) count as misses and are overwritten.
//
// # Invalidation
//
// Create, Update and Delete never mutate the cache unless the entity store
// call succeeded. After a successful write every page under users:list: and
// the point key of the affected id are removed. Update and Delete look the
// user up in the entity store, not the cache.
//
// Invalidation is retried with exponential backoff. If all attempts fail the
// mutation has still been applied, and the caller receives
// ErrInvalidationFailed, which satisfies errors.Is(err, users.ErrStoreUnavailable).
//
// # Lifecycle
//
// A layer is created in the new state, becomes ready after Start and is
// closed by Close. Every operation outside the ready state fails with
// users.ErrNotInitialized.
//
// # Serialization
//
// Values are stored as a one byte envelope version followed by a msgpack
// array of id, name, email and age (or an array of those for list pages).
//
// # See Also
//
// For key format and store backends, see the cache package.
// For wiring with a database and configuration, see the pkg/di package.
package repositorycache

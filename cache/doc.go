// Package cache defines the cache Store contract and the exact key format
// used for user entries.
//
// # Overview
//
// The package exports:
//
//   - Store: a byte oriented key-value cache with prefix deletion
//   - KeySerializer: builds point keys, list page keys and the list prefix
//   - NewMemoryStore / NewRedisStore: the two bundled backends
//
// # Keys
//
// Keys are shared with any other process reading the same Redis, so they are
// plain strings rather than hashes:
//
//	keys := cache.NewKeySerializer("users")
//	keys.PointKey(id)        // users:<id>
//	keys.ListKey(10, 0)      // users:list:10:0
//	keys.ListPrefix()        // users:list:
//
// # Backends
//
// The Redis store issues GET, SET with expiry and DEL. Prefix deletion walks
// the keyspace with SCAN MATCH and deletes in batches; KEYS is never used.
// The go-redis client belongs to the caller.
//
// The memory store is a sharded sturdyc client. It has a single TTL for every
// entry, taken from Config.TTL, and ignores the ttl argument of Set. It is
// meant for development, tests and single process deployments.
//
// # See Also
//
// The repositorycache package builds the read-through and invalidation logic
// on top of Store.
package cache

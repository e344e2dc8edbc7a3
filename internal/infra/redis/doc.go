// Package redis backs the optional authorization decision cache.
//
// It provides three components:
//   - Client: connection management with TLS, pooling and connect retry
//   - Cache[T]: type-safe JSON values under a key prefix with a fixed TTL
//   - VersionStore: global and per-user counters folded into cache keys
//
// Decisions are never invalidated by key. A mutation bumps a counter
// after it commits, and readers build keys from the current counters:
//
//	gv, uv, err := versions.Versions(ctx, userID)
//	key := fmt.Sprintf("%s:%s:%s:%d.%d", userID, org, permType, gv, uv)
//	cached, err := decisions.Get(ctx, key)
//	if errors.Is(err, redis.ErrCacheMiss) {
//		// resolve against the database, then Set
//	}
//
// Every error from this package is a cache failure; callers fall through
// to the database.
package redis

// Package cache provides field-values cache implementations used by the
// caching fetcher.
//
// Implementations:
//   - redis: Redis with JSON serialization and TTL, shared across instances
//   - memory: In-memory with TTL
package cache

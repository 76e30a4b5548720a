// Package storage provides snapshot store implementations.
//
// Implementations:
//   - redis: Redis with JSON serialization and TTL
//   - memory: In-memory, single process
package storage

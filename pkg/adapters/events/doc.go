// Package events provides event bus implementations.
//
// Implementations:
//   - redis: Redis Streams with consumer groups, for multi-instance fan-out
//   - memory: In-process delivery
package events

package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aescanero/varflow/pkg/domain"
)

const snapshotKeyPrefix = "varflow:snapshot:"

// SnapshotStore implements SnapshotStore using Redis
type SnapshotStore struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewSnapshotStore creates a new Redis snapshot store. Each save refreshes
// the key's ttl; zero keeps keys until deleted.
func NewSnapshotStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *SnapshotStore {
	return &SnapshotStore{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

// Save persists the latest snapshot of a session
func (s *SnapshotStore) Save(ctx context.Context, snap *domain.Snapshot) error {
	if snap == nil || snap.SessionID == "" {
		return fmt.Errorf("snapshot without session id")
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := s.client.Set(ctx, getSnapshotKey(snap.SessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	s.logger.Debug("snapshot saved",
		zap.String("session_id", snap.SessionID),
		zap.Uint64("sequence", snap.Sequence))

	return nil
}

// Load retrieves the latest snapshot of a session
func (s *SnapshotStore) Load(ctx context.Context, sessionID string) (*domain.Snapshot, error) {
	data, err := s.client.Get(ctx, getSnapshotKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
		}
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return &snap, nil
}

// Delete removes the snapshot of a session
func (s *SnapshotStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, getSnapshotKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// List returns the ids of every session with a stored snapshot
func (s *SnapshotStore) List(ctx context.Context) ([]string, error) {
	var cursor uint64
	var keys []string

	for {
		var batch []string
		var err error

		batch, cursor, err = s.client.Scan(ctx, cursor, snapshotKeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan keys: %w", err)
		}

		keys = append(keys, batch...)

		if cursor == 0 {
			break
		}
	}

	sessionIDs := make([]string, 0, len(keys))
	for _, key := range keys {
		if id := strings.TrimPrefix(key, snapshotKeyPrefix); id != "" && id != key {
			sessionIDs = append(sessionIDs, id)
		}
	}
	sort.Strings(sessionIDs)

	return sessionIDs, nil
}

// getSnapshotKey returns the Redis key for a session snapshot
func getSnapshotKey(sessionID string) string {
	return snapshotKeyPrefix + sessionID
}

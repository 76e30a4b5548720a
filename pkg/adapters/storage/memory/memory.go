package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aescanero/varflow/pkg/domain"
)

// InMemorySnapshotStore implements SnapshotStore using an in-memory map.
// Snapshots are only visible to the process that saved them.
type InMemorySnapshotStore struct {
	snapshots map[string]storedSnapshot
	ttl       time.Duration
	now       func() time.Time
	mu        sync.RWMutex
}

type storedSnapshot struct {
	snap      *domain.Snapshot
	expiresAt time.Time
}

// NewInMemorySnapshotStore creates a new in-memory snapshot store. A zero
// ttl keeps snapshots until they are deleted.
func NewInMemorySnapshotStore(ttl time.Duration) *InMemorySnapshotStore {
	return &InMemorySnapshotStore{
		snapshots: make(map[string]storedSnapshot),
		ttl:       ttl,
		now:       time.Now,
	}
}

// Save stores a copy of the snapshot, replacing the session's previous one
func (s *InMemorySnapshotStore) Save(ctx context.Context, snap *domain.Snapshot) error {
	if snap == nil || snap.SessionID == "" {
		return fmt.Errorf("snapshot without session id")
	}

	entry := storedSnapshot{snap: snap.Clone()}
	if s.ttl > 0 {
		entry.expiresAt = s.now().Add(s.ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots[snap.SessionID] = entry
	return nil
}

// Load retrieves the latest snapshot of a session
func (s *InMemorySnapshotStore) Load(ctx context.Context, sessionID string) (*domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.snapshots[sessionID]
	if !ok || s.expired(entry) {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}

	return entry.snap.Clone(), nil
}

// Delete removes the snapshot of a session
func (s *InMemorySnapshotStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.snapshots, sessionID)
	return nil
}

// List returns the ids of every session with a live snapshot
func (s *InMemorySnapshotStore) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessionIDs := make([]string, 0, len(s.snapshots))
	for id, entry := range s.snapshots {
		if s.expired(entry) {
			delete(s.snapshots, id)
			continue
		}
		sessionIDs = append(sessionIDs, id)
	}
	sort.Strings(sessionIDs)

	return sessionIDs, nil
}

func (s *InMemorySnapshotStore) expired(entry storedSnapshot) bool {
	return !entry.expiresAt.IsZero() && !s.now().Before(entry.expiresAt)
}

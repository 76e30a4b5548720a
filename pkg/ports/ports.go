// Package ports declares the interfaces varflow's application layer depends
// on. Adapters under pkg/adapters implement them.
package ports

import (
	"context"
	"time"

	"github.com/aescanero/varflow/pkg/domain"
)

// EventType names an event published on the bus.
type EventType string

const (
	EventTypeSnapshot      EventType = "variables.snapshot"
	EventTypeSessionOpened EventType = "session.created"
	EventTypeSessionClosed EventType = "session.closed"
)

// Topics used by varflow.
const (
	TopicSnapshots = "variables.snapshots"
	TopicSessions  = "session.events"
)

// Event is the envelope carried by an EventBus.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	SessionID string                 `json:"session_id"`
	Snapshot  *domain.Snapshot       `json:"snapshot,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// EventHandler processes one event.
type EventHandler func(ctx context.Context, event Event) error

// EventBus publishes events to topic subscribers.
type EventBus interface {
	Publish(ctx context.Context, topic string, event Event) error
	Subscribe(ctx context.Context, topic string, handler EventHandler) error
	Unsubscribe(ctx context.Context, topic string) error
	Close() error
}

// FieldValuesFetcher fetches distinct field values from the values backend.
type FieldValuesFetcher interface {
	FetchFieldValues(ctx context.Context, req *domain.FieldValuesRequest) ([]domain.FieldValues, error)
}

// ValuesCache caches field-values responses by key.
type ValuesCache interface {
	Get(ctx context.Context, key string) ([]domain.FieldValues, bool, error)
	Set(ctx context.Context, key string, rows []domain.FieldValues) error
}

// SnapshotStore keeps the latest snapshot of each session.
type SnapshotStore interface {
	Save(ctx context.Context, snap *domain.Snapshot) error
	Load(ctx context.Context, sessionID string) (*domain.Snapshot, error)
	Delete(ctx context.Context, sessionID string) error
	List(ctx context.Context) ([]string, error)
}

// MetricsCollector records engine metrics.
type MetricsCollector interface {
	RecordSession(event string)
	SetActiveSessions(count int)
	RecordCycle(trigger string)
	RecordLoad(kind domain.Kind, outcome string, duration time.Duration)
	RecordFetch(outcome string, duration time.Duration)
	RecordCacheLookup(hit bool)
	RecordSnapshot()
	RecordWorkerPoolStatus(idle, busy, stopped int)
	SetQueueDepth(depth int)
}

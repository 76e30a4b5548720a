package orchestrator

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aescanero/varflow/pkg/domain"
	"github.com/aescanero/varflow/pkg/ports"
)

// Emitter publishes a session's snapshots to the event bus and the snapshot
// store. Snapshots reach it from several goroutines; one older than the
// last published snapshot is dropped, so subscribers never go backwards.
type Emitter struct {
	sessionID string
	bus       ports.EventBus
	store     ports.SnapshotStore
	metrics   ports.MetricsCollector
	logger    *zap.Logger

	mu        sync.Mutex
	published uint64
	closed    bool
}

// NewEmitter creates an emitter for one session.
func NewEmitter(
	sessionID string,
	bus ports.EventBus,
	store ports.SnapshotStore,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
) *Emitter {
	return &Emitter{
		sessionID: sessionID,
		bus:       bus,
		store:     store,
		metrics:   metrics,
		logger:    logger,
	}
}

// Emit publishes snap unless a newer snapshot was already published or the
// emitter is closed.
func (e *Emitter) Emit(ctx context.Context, snap *domain.Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || snap.Sequence <= e.published {
		return
	}
	e.published = snap.Sequence

	event := ports.Event{
		ID:        uuid.New().String(),
		Type:      ports.EventTypeSnapshot,
		Timestamp: snap.EmittedAt,
		SessionID: e.sessionID,
		Snapshot:  snap,
	}

	if err := e.bus.Publish(ctx, ports.TopicSnapshots, event); err != nil {
		e.logger.Error("failed to publish snapshot",
			zap.String("session_id", e.sessionID),
			zap.Uint64("sequence", snap.Sequence),
			zap.Error(err))
	}

	if err := e.store.Save(ctx, snap); err != nil {
		e.logger.Error("failed to save snapshot",
			zap.String("session_id", e.sessionID),
			zap.Uint64("sequence", snap.Sequence),
			zap.Error(err))
	}

	e.metrics.RecordSnapshot()
}

// Published returns the sequence of the last published snapshot.
func (e *Emitter) Published() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.published
}

// Close stops publication. It returns after any Emit in progress, so the
// store holds nothing newer once Close returns.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
}

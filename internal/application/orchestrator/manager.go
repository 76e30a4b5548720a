package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aescanero/varflow/internal/application/resolvers"
	"github.com/aescanero/varflow/pkg/domain"
	"github.com/aescanero/varflow/pkg/ports"
)

// Manager owns the open sessions
type Manager struct {
	eventBus  ports.EventBus
	store     ports.SnapshotStore
	metrics   ports.MetricsCollector
	resolvers *resolvers.Set
	runner    Submitter
	logger    *zap.Logger

	// Track open sessions
	sessions sync.Map // map[string]*Session

	// Configuration
	idleTimeout   time.Duration
	sweepInterval time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// CreateSessionRequest describes a new session.
type CreateSessionRequest struct {
	Variables     []domain.VariableConfig
	InitialValues domain.InitialValues
	TimeRange     domain.TimeRange
}

// NewManager creates a new session manager
func NewManager(
	eventBus ports.EventBus,
	store ports.SnapshotStore,
	metrics ports.MetricsCollector,
	resolverSet *resolvers.Set,
	runner Submitter,
	logger *zap.Logger,
	idleTimeout, sweepInterval time.Duration,
) *Manager {
	return &Manager{
		eventBus:      eventBus,
		store:         store,
		metrics:       metrics,
		resolvers:     resolverSet,
		runner:        runner,
		logger:        logger,
		idleTimeout:   idleTimeout,
		sweepInterval: sweepInterval,
		stopCh:        make(chan struct{}),
	}
}

// Start starts the idle session sweeper. A non-positive idle timeout or
// sweep interval disables expiry.
func (m *Manager) Start() {
	if m.idleTimeout <= 0 || m.sweepInterval <= 0 {
		return
	}

	m.wg.Add(1)
	go m.monitorSessions()
}

// CreateSession configures a new session and starts its first resolution
// cycle.
func (m *Manager) CreateSession(ctx context.Context, req *CreateSessionRequest) (*Session, error) {
	sessionID := uuid.New().String()
	emitter := NewEmitter(sessionID, m.eventBus, m.store, m.metrics, m.logger)
	sess := newSession(sessionID, req.TimeRange, m.resolvers, m.runner, emitter, m.metrics, m.logger)

	if err := sess.Configure(req.Variables, req.InitialValues); err != nil {
		sess.Close()
		m.metrics.RecordSession("rejected")
		m.logger.Warn("session configuration rejected", zap.Error(err))
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	m.sessions.Store(sessionID, sess)
	m.metrics.RecordSession("created")
	m.metrics.SetActiveSessions(m.count())

	m.publish(ctx, sessionID, ports.EventTypeSessionOpened, map[string]interface{}{
		"variables": len(req.Variables),
	})

	m.logger.Info("session created",
		zap.String("session_id", sessionID),
		zap.Int("variables", len(req.Variables)))

	return sess, nil
}

// Session returns an open session.
func (m *Manager) Session(sessionID string) (*Session, error) {
	val, ok := m.sessions.Load(sessionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	return val.(*Session), nil
}

// GetSnapshot returns the latest snapshot of a session, falling back to the
// snapshot store for sessions that are not open on this instance.
func (m *Manager) GetSnapshot(ctx context.Context, sessionID string) (*domain.Snapshot, error) {
	if sess, err := m.Session(sessionID); err == nil {
		return sess.Snapshot(), nil
	}

	snap, err := m.store.Load(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return snap, nil
}

// ListSessions returns the ids of open and stored sessions.
func (m *Manager) ListSessions(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	m.sessions.Range(func(key, _ interface{}) bool {
		seen[key.(string)] = true
		return true
	})

	stored, err := m.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	for _, id := range stored {
		seen[id] = true
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Reconfigure replaces a session's variables.
func (m *Manager) Reconfigure(ctx context.Context, sessionID string, configs []domain.VariableConfig, initial domain.InitialValues) error {
	sess, err := m.Session(sessionID)
	if err != nil {
		return err
	}
	if err := sess.Configure(configs, initial); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// SetTimeRange re-resolves a session over tr.
func (m *Manager) SetTimeRange(ctx context.Context, sessionID string, tr domain.TimeRange) error {
	sess, err := m.Session(sessionID)
	if err != nil {
		return err
	}
	sess.ResolveAll(tr)
	return nil
}

// SetValue applies a user edit to one variable of a session.
func (m *Manager) SetValue(ctx context.Context, sessionID, name string, value domain.Value) error {
	sess, err := m.Session(sessionID)
	if err != nil {
		return err
	}
	return sess.SetValue(name, value)
}

// CloseSession closes a session and removes its stored snapshot.
func (m *Manager) CloseSession(ctx context.Context, sessionID string) error {
	return m.closeSession(ctx, sessionID, "closed")
}

func (m *Manager) closeSession(ctx context.Context, sessionID, reason string) error {
	val, ok := m.sessions.LoadAndDelete(sessionID)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}

	sess := val.(*Session)
	sess.Close()

	if err := m.store.Delete(ctx, sessionID); err != nil {
		m.logger.Error("failed to delete snapshot",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}

	m.metrics.RecordSession(reason)
	m.metrics.SetActiveSessions(m.count())

	m.publish(ctx, sessionID, ports.EventTypeSessionClosed, map[string]interface{}{
		"reason": reason,
	})

	m.logger.Info("session closed",
		zap.String("session_id", sessionID),
		zap.String("reason", reason))

	return nil
}

// monitorSessions expires sessions idle for longer than idleTimeout
func (m *Manager) monitorSessions() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.expireIdle(time.Now())
		}
	}
}

func (m *Manager) expireIdle(now time.Time) {
	var expired []string
	m.sessions.Range(func(key, value interface{}) bool {
		sess := value.(*Session)
		if now.Sub(sess.IdleSince()) > m.idleTimeout {
			expired = append(expired, key.(string))
		}
		return true
	})

	for _, id := range expired {
		m.logger.Info("session idle timeout", zap.String("session_id", id))
		if err := m.closeSession(context.Background(), id, "expired"); err != nil &&
			!errors.Is(err, domain.ErrSessionNotFound) {
			m.logger.Error("failed to expire session",
				zap.String("session_id", id),
				zap.Error(err))
		}
	}
}

func (m *Manager) publish(ctx context.Context, sessionID string, eventType ports.EventType, data map[string]interface{}) {
	event := ports.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		SessionID: sessionID,
		Data:      data,
	}

	if err := m.eventBus.Publish(ctx, ports.TopicSessions, event); err != nil {
		m.logger.Error("failed to publish session event",
			zap.String("session_id", sessionID),
			zap.String("type", string(eventType)),
			zap.Error(err))
	}
}

func (m *Manager) count() int {
	n := 0
	m.sessions.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}

// Shutdown stops the sweeper and closes every session
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("shutting down session manager")

	m.stopOnce.Do(func() { close(m.stopCh) })

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout: %w", ctx.Err())
	}

	var ids []string
	m.sessions.Range(func(key, _ interface{}) bool {
		ids = append(ids, key.(string))
		return true
	})
	for _, id := range ids {
		_ = m.closeSession(ctx, id, "shutdown")
	}

	m.logger.Info("session manager shut down complete")
	return nil
}

package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aescanero/varflow/pkg/domain"
	"github.com/aescanero/varflow/pkg/ports"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// SnapshotSource returns the latest snapshot of a session.
type SnapshotSource interface {
	GetSnapshot(ctx context.Context, sessionID string) (*domain.Snapshot, error)
}

// Handler handles WebSocket connections
type Handler struct {
	sessions SnapshotSource
	eventBus ports.EventBus
	logger   *zap.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(sessions SnapshotSource, eventBus ports.EventBus, logger *zap.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		eventBus: eventBus,
		logger:   logger,
	}
}

// HandleSessionStream streams the snapshots of one session. The latest
// snapshot is sent first; afterwards only snapshots with a higher sequence
// are sent. The stream ends when the session is closed.
func (h *Handler) HandleSessionStream(c *gin.Context) {
	sessionID := c.Param("id")

	if _, err := h.sessions.GetSnapshot(c.Request.Context(), sessionID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrSessionNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": gin.H{"code": "SESSION_NOT_FOUND", "message": err.Error()}})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	h.logger.Info("WebSocket connection established",
		zap.String("session_id", sessionID),
		zap.String("client", c.ClientIP()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream := newSnapshotStream(sessionID)
	if err := h.subscribe(ctx, stream); err != nil {
		h.logger.Error("failed to subscribe to snapshots",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return
	}

	// Subscribed before reading, so nothing published in between is lost
	if snap, err := h.sessions.GetSnapshot(ctx, sessionID); err == nil {
		stream.offer(snap)
	}

	go h.readPump(conn, cancel)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	var lastSent uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-stream.closed:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
			return
		case <-stream.ready:
			snap := stream.take()
			if snap == nil || snap.Sequence <= lastSent {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(snap); err != nil {
				h.logger.Debug("failed to write snapshot",
					zap.String("session_id", sessionID),
					zap.Error(err))
				return
			}
			lastSent = snap.Sequence
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Handler) subscribe(ctx context.Context, stream *snapshotStream) error {
	onSnapshot := func(_ context.Context, event ports.Event) error {
		if event.SessionID == stream.sessionID && event.Snapshot != nil {
			stream.offer(event.Snapshot)
		}
		return nil
	}
	if err := h.eventBus.Subscribe(ctx, ports.TopicSnapshots, onSnapshot); err != nil {
		return err
	}

	onSession := func(_ context.Context, event ports.Event) error {
		if event.SessionID == stream.sessionID && event.Type == ports.EventTypeSessionClosed {
			stream.close()
		}
		return nil
	}
	return h.eventBus.Subscribe(ctx, ports.TopicSessions, onSession)
}

// readPump discards client messages and cancels the stream once the client
// goes away.
func (h *Handler) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// snapshotStream keeps only the newest snapshot offered to it, so a slow
// client skips intermediate states instead of blocking publishers.
type snapshotStream struct {
	sessionID string
	ready     chan struct{}
	closed    chan struct{}

	mu        sync.Mutex
	latest    *domain.Snapshot
	closeOnce sync.Once
}

func newSnapshotStream(sessionID string) *snapshotStream {
	return &snapshotStream{
		sessionID: sessionID,
		ready:     make(chan struct{}, 1),
		closed:    make(chan struct{}),
	}
}

func (s *snapshotStream) offer(snap *domain.Snapshot) {
	s.mu.Lock()
	if s.latest == nil || snap.Sequence > s.latest.Sequence {
		s.latest = snap
	}
	s.mu.Unlock()

	select {
	case s.ready <- struct{}{}:
	default:
	}
}

func (s *snapshotStream) take() *domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

func (s *snapshotStream) close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

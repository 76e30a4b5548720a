package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	memoryevents "github.com/aescanero/varflow/pkg/adapters/events/memory"
	"github.com/aescanero/varflow/pkg/domain"
	"github.com/aescanero/varflow/pkg/ports"
)

type fakeSource struct {
	mu    sync.Mutex
	snaps map[string]*domain.Snapshot
}

func (f *fakeSource) GetSnapshot(_ context.Context, sessionID string) (*domain.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.snaps[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return snap, nil
}

func snapshot(sessionID string, seq uint64, region string) *domain.Snapshot {
	v := domain.NewVariable(domain.VariableConfig{Name: "region", Kind: domain.KindCustom})
	v.State = domain.StateResolved
	v.Value = domain.ScalarValue(region)
	return domain.NewSnapshot(sessionID, seq, domain.TimeRange{}, []*domain.Variable{v})
}

func newStreamServer(t *testing.T) (*httptest.Server, *memoryevents.InMemoryEventBus) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zaptest.NewLogger(t)
	bus := memoryevents.NewInMemoryEventBus(logger)
	source := &fakeSource{snaps: map[string]*domain.Snapshot{
		"s1": snapshot("s1", 3, "us-east"),
	}}

	router := gin.New()
	router.GET("/api/v1/sessions/:id/ws", NewHandler(source, bus, logger).HandleSessionStream)

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		_ = bus.Close()
	})
	return srv, bus
}

func dial(t *testing.T, srv *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/sessions/" + sessionID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readSnapshot(t *testing.T, conn *websocket.Conn) *domain.Snapshot {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var snap domain.Snapshot
	require.NoError(t, conn.ReadJSON(&snap))
	return &snap
}

func publishSnapshot(t *testing.T, bus ports.EventBus, snap *domain.Snapshot) {
	t.Helper()
	require.NoError(t, bus.Publish(context.Background(), ports.TopicSnapshots, ports.Event{
		Type:      ports.EventTypeSnapshot,
		SessionID: snap.SessionID,
		Snapshot:  snap,
	}))
}

func TestStreamStartsWithLatestSnapshot(t *testing.T) {
	srv, _ := newStreamServer(t)
	conn := dial(t, srv, "s1")

	snap := readSnapshot(t, conn)
	assert.Equal(t, "s1", snap.SessionID)
	assert.Equal(t, uint64(3), snap.Sequence)

	region, ok := snap.Variable("region")
	require.True(t, ok)
	assert.Equal(t, []string{"us-east"}, region.Value.Items)
}

func TestStreamSkipsOlderSnapshots(t *testing.T) {
	srv, bus := newStreamServer(t)
	conn := dial(t, srv, "s1")
	readSnapshot(t, conn)

	publishSnapshot(t, bus, snapshot("s1", 2, "stale"))
	publishSnapshot(t, bus, snapshot("other", 9, "other"))
	publishSnapshot(t, bus, snapshot("s1", 5, "eu-west"))

	snap := readSnapshot(t, conn)
	assert.Equal(t, uint64(5), snap.Sequence)
	region, ok := snap.Variable("region")
	require.True(t, ok)
	assert.Equal(t, []string{"eu-west"}, region.Value.Items)
}

func TestStreamEndsWhenSessionCloses(t *testing.T) {
	srv, bus := newStreamServer(t)
	conn := dial(t, srv, "s1")
	readSnapshot(t, conn)

	require.NoError(t, bus.Publish(context.Background(), ports.TopicSessions, ports.Event{
		Type:      ports.EventTypeSessionClosed,
		SessionID: "s1",
	}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), err.Error())
}

func TestStreamUnknownSession(t *testing.T) {
	srv, _ := newStreamServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/sessions/missing/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/sessions/missing/ws"
	_, wsResp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, wsResp)
	assert.Equal(t, http.StatusNotFound, wsResp.StatusCode)
}

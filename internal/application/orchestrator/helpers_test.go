package orchestrator

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/aescanero/varflow/internal/application/resolvers"
	"github.com/aescanero/varflow/internal/application/workers"
	memoryevents "github.com/aescanero/varflow/pkg/adapters/events/memory"
	metrics "github.com/aescanero/varflow/pkg/adapters/metrics/prometheus"
	memorystorage "github.com/aescanero/varflow/pkg/adapters/storage/memory"
	"github.com/aescanero/varflow/pkg/domain"
)

// fakeFetcher answers with fixed keys per field. A gate blocks every request
// whose query contains its key until the gate is closed, regardless of
// cancellation, to simulate a slow backend.
type fakeFetcher struct {
	mu       sync.Mutex
	values   map[string][]string
	byQuery  map[string][]string
	errs     map[string]error
	gates    map[string]chan struct{}
	requests []*domain.FieldValuesRequest
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		values:  make(map[string][]string),
		byQuery: make(map[string][]string),
		errs:    make(map[string]error),
		gates:   make(map[string]chan struct{}),
	}
}

func (f *fakeFetcher) FetchFieldValues(_ context.Context, req *domain.FieldValuesRequest) ([]domain.FieldValues, error) {
	field := req.Fields[0]

	f.mu.Lock()
	f.requests = append(f.requests, req)
	keys := f.values[field]
	for fragment, k := range f.byQuery {
		if strings.Contains(req.QueryContext, fragment) {
			keys = k
		}
	}
	err := f.errs[field]
	var gate chan struct{}
	for fragment, g := range f.gates {
		if strings.Contains(req.QueryContext, fragment) {
			gate = g
		}
	}
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}

	row := domain.FieldValues{Field: field}
	for _, k := range keys {
		row.Values = append(row.Values, domain.FieldValue{Key: k, Count: 1})
	}
	return []domain.FieldValues{row}, nil
}

func (f *fakeFetcher) requestsFor(field string) []*domain.FieldValuesRequest {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*domain.FieldValuesRequest
	for _, r := range f.requests {
		if r.Fields[0] == field {
			out = append(out, r)
		}
	}
	return out
}

type testEnv struct {
	manager *Manager
	bus     *memoryevents.InMemoryEventBus
	store   *memorystorage.InMemorySnapshotStore
	fetcher *fakeFetcher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := zaptest.NewLogger(t)
	collector := metrics.NewCollector(prometheus.NewRegistry())
	fetcher := newFakeFetcher()

	pool := workers.NewPool(4, 16, collector, logger, 0)
	require.NoError(t, pool.Start())

	bus := memoryevents.NewInMemoryEventBus(logger)
	store := memorystorage.NewInMemorySnapshotStore(0)

	mgr := NewManager(bus, store, collector, resolvers.NewSet(fetcher, logger), pool, logger, 0, 0)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mgr.Shutdown(ctx)
		_ = pool.Shutdown(ctx)
		_ = bus.Close()
	})

	return &testEnv{manager: mgr, bus: bus, store: store, fetcher: fetcher}
}

func validRange() domain.TimeRange {
	end := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return domain.TimeRange{Start: end.Add(-time.Hour), End: end}
}

func waitSettled(t *testing.T, sess *Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sess.Wait(ctx))
}

func variable(t *testing.T, snap *domain.Snapshot, name string) *domain.Variable {
	t.Helper()
	v, ok := snap.Variable(name)
	require.True(t, ok, "variable %s missing from snapshot", name)
	return v
}

func regionVar() domain.VariableConfig {
	return domain.VariableConfig{
		Name: "region",
		Kind: domain.KindCustom,
		Options: []domain.OptionConfig{
			{Label: "US East", Value: "us-east"},
			{Label: "EU West", Value: "eu-west"},
		},
	}
}

func hostVar() domain.VariableConfig {
	return domain.VariableConfig{
		Name: "host",
		Kind: domain.KindQueryValues,
		QueryData: &domain.QueryData{
			Stream: "logs",
			Field:  "host",
			Filter: []domain.QueryFilter{{Name: "region", Operator: "=", Value: "$region"}},
		},
	}
}

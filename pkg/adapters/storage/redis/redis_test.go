package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/aescanero/varflow/pkg/domain"
)

func newTestStore(t *testing.T, ttl time.Duration) (*SnapshotStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSnapshotStore(client, ttl, zaptest.NewLogger(t)), mr
}

func testSnapshot(id string) *domain.Snapshot {
	host := domain.NewVariable(domain.VariableConfig{Name: "host", Kind: domain.KindCustom, MultiSelect: true})
	host.State = domain.StateResolved
	host.Value = domain.ListValue("a", "b")
	host.Options = []domain.Option{{Label: "a", Value: "a"}, {Label: "b", Value: "b"}}

	end := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return domain.NewSnapshot(id, 3, domain.TimeRange{Start: end.Add(-time.Hour), End: end}, []*domain.Variable{host})
}

func TestSaveAndLoad(t *testing.T) {
	store, _ := newTestStore(t, 0)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testSnapshot("s1")))

	got, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), got.Sequence)
	assert.False(t, got.IsVariablesLoading)

	host, ok := got.Variable("host")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, host.Value.Items)
	assert.Equal(t, domain.StateResolved, host.State)
	assert.Len(t, host.Options, 2)
}

func TestLoadMissing(t *testing.T) {
	store, _ := newTestStore(t, 0)
	_, err := store.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestListAndDelete(t *testing.T) {
	store, _ := newTestStore(t, 0)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testSnapshot("s2")))
	require.NoError(t, store.Save(ctx, testSnapshot("s1")))

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, ids)

	require.NoError(t, store.Delete(ctx, "s1"))
	ids, err = store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s2"}, ids)
}

func TestSnapshotTTL(t *testing.T) {
	store, mr := newTestStore(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testSnapshot("s1")))
	assert.Equal(t, time.Minute, mr.TTL("varflow:snapshot:s1"))

	mr.FastForward(2 * time.Minute)
	_, err := store.Load(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aescanero/varflow/pkg/domain"
)

func snapshotFor(id string, seq uint64) *domain.Snapshot {
	v := domain.NewVariable(domain.VariableConfig{Name: "env", Kind: domain.KindConstant, Value: "prod"})
	v.State = domain.StateResolved
	v.Value = domain.ScalarValue("prod")
	return domain.NewSnapshot(id, seq, domain.TimeRange{}, []*domain.Variable{v})
}

func TestSaveLoadDelete(t *testing.T) {
	store := NewInMemorySnapshotStore(0)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, snapshotFor("s1", 1)))
	require.NoError(t, store.Save(ctx, snapshotFor("s1", 2)))

	got, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got.Sequence)

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, ids)

	require.NoError(t, store.Delete(ctx, "s1"))
	_, err = store.Load(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestLoadReturnsCopy(t *testing.T) {
	store := NewInMemorySnapshotStore(0)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, snapshotFor("s1", 1)))

	got, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	got.Values[0].Value = domain.ScalarValue("changed")

	again, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"prod"}, again.Values[0].Value.Items)
}

func TestSnapshotsExpire(t *testing.T) {
	store := NewInMemorySnapshotStore(time.Minute)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, snapshotFor("s1", 1)))
	now = now.Add(2 * time.Minute)

	_, err := store.Load(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSaveRejectsAnonymousSnapshot(t *testing.T) {
	store := NewInMemorySnapshotStore(0)
	assert.Error(t, store.Save(context.Background(), &domain.Snapshot{}))
}

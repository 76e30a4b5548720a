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

func TestValuesCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	cache := NewValuesCache(client, 30*time.Second, zaptest.NewLogger(t))
	ctx := context.Background()

	_, ok, err := cache.Get(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, ok)

	rows := []domain.FieldValues{{
		Field:  "region",
		Values: []domain.FieldValue{{Key: "us-east", Count: 10}, {Key: "eu-west", Count: 2}},
	}}
	require.NoError(t, cache.Set(ctx, "abc", rows))
	assert.Equal(t, 30*time.Second, mr.TTL("varflow:values:abc"))

	got, ok, err := cache.Get(ctx, "abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rows, got)

	mr.FastForward(time.Minute)
	_, ok, err = cache.Get(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValuesCacheCorruptEntry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	require.NoError(t, mr.Set("varflow:values:bad", "not json"))

	cache := NewValuesCache(client, time.Minute, zaptest.NewLogger(t))
	_, ok, err := cache.Get(context.Background(), "bad")
	assert.Error(t, err)
	assert.False(t, ok)
}

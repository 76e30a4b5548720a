package fetcher

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	cache "github.com/aescanero/varflow/pkg/adapters/cache/memory"
	metrics "github.com/aescanero/varflow/pkg/adapters/metrics/prometheus"
	"github.com/aescanero/varflow/pkg/domain"
)

type countingFetcher struct {
	calls atomic.Int32
	err   error
}

func (f *countingFetcher) FetchFieldValues(_ context.Context, req *domain.FieldValuesRequest) ([]domain.FieldValues, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return []domain.FieldValues{{
		Field:  req.Fields[0],
		Values: []domain.FieldValue{{Key: "a", Count: 1}},
	}}, nil
}

func request(query, trace string) *domain.FieldValuesRequest {
	end := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &domain.FieldValuesRequest{
		Stream:       "logs",
		Fields:       []string{"host"},
		TimeRange:    domain.TimeRange{Start: end.Add(-time.Hour), End: end},
		QueryContext: query,
		Size:         10,
		TraceID:      trace,
	}
}

func newCaching(t *testing.T, next *countingFetcher) *Caching {
	return NewCaching(next, cache.NewInMemoryValuesCache(time.Minute),
		metrics.NewCollector(prometheus.NewRegistry()), zaptest.NewLogger(t))
}

func TestCachingServesRepeatedRequests(t *testing.T) {
	next := &countingFetcher{}
	c := newCaching(t, next)
	ctx := context.Background()

	first, err := c.FetchFieldValues(ctx, request("q", "t1"))
	require.NoError(t, err)
	second, err := c.FetchFieldValues(ctx, request("q", "t2"))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), next.calls.Load())

	_, err = c.FetchFieldValues(ctx, request("other", "t3"))
	require.NoError(t, err)
	assert.Equal(t, int32(2), next.calls.Load())
}

func TestCachingDoesNotCacheErrors(t *testing.T) {
	next := &countingFetcher{err: errors.New("backend down")}
	c := newCaching(t, next)
	ctx := context.Background()

	_, err := c.FetchFieldValues(ctx, request("q", "t1"))
	require.Error(t, err)
	_, err = c.FetchFieldValues(ctx, request("q", "t1"))
	require.Error(t, err)
	assert.Equal(t, int32(2), next.calls.Load())
}

func TestCacheKey(t *testing.T) {
	a := request("q", "t1")
	b := request("q", "t2")
	assert.Equal(t, CacheKey(a), CacheKey(b), "trace id must not affect the key")

	c := request("q", "t1")
	c.TimeRange.End = c.TimeRange.End.Add(time.Second)
	assert.NotEqual(t, CacheKey(a), CacheKey(c))

	d := request("q", "t1")
	d.Size = 20
	assert.NotEqual(t, CacheKey(a), CacheKey(d))
}

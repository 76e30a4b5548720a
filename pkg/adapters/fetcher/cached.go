package fetcher

import (
	"context"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/aescanero/varflow/pkg/domain"
	"github.com/aescanero/varflow/pkg/ports"
)

// Caching serves repeated field-values requests from a cache.
type Caching struct {
	next    ports.FieldValuesFetcher
	cache   ports.ValuesCache
	metrics ports.MetricsCollector
	logger  *zap.Logger
}

// NewCaching wraps next with cache.
func NewCaching(next ports.FieldValuesFetcher, cache ports.ValuesCache, metrics ports.MetricsCollector, logger *zap.Logger) *Caching {
	return &Caching{
		next:    next,
		cache:   cache,
		metrics: metrics,
		logger:  logger,
	}
}

// FetchFieldValues returns cached rows for an identical request, otherwise
// fetches and caches them. Cache failures fall through to the backend.
func (c *Caching) FetchFieldValues(ctx context.Context, req *domain.FieldValuesRequest) ([]domain.FieldValues, error) {
	key := CacheKey(req)

	rows, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("values cache lookup failed",
			zap.String("trace_id", req.TraceID),
			zap.Error(err))
	}
	c.metrics.RecordCacheLookup(ok)
	if ok {
		c.logger.Debug("values cache hit",
			zap.String("stream", req.Stream),
			zap.String("trace_id", req.TraceID))
		return rows, nil
	}

	rows, err = c.next.FetchFieldValues(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(ctx, key, rows); err != nil {
		c.logger.Warn("failed to cache values",
			zap.String("trace_id", req.TraceID),
			zap.Error(err))
	}

	return rows, nil
}

// CacheKey hashes every request field that affects the response. The trace
// id is excluded.
func CacheKey(req *domain.FieldValuesRequest) string {
	d := xxhash.New()
	write := func(s string) {
		_, _ = d.WriteString(s)
		_, _ = d.Write([]byte{0})
	}

	write(req.Stream)
	write(req.StreamType)
	for _, f := range req.Fields {
		write(f)
	}
	write(strconv.FormatInt(req.TimeRange.StartMicros(), 10))
	write(strconv.FormatInt(req.TimeRange.EndMicros(), 10))
	write(req.QueryContext)
	write(strconv.Itoa(req.Size))

	return strconv.FormatUint(d.Sum64(), 16)
}

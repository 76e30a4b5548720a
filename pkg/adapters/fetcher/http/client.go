// Package http fetches distinct field values from the values API.
package http

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/aescanero/varflow/pkg/domain"
	"github.com/aescanero/varflow/pkg/ports"
)

// maxResponseBytes bounds the body read from the values API.
const maxResponseBytes = 16 << 20

// Config configures the values API client.
type Config struct {
	BaseURL   string
	Org       string
	Timeout   time.Duration
	RateLimit float64
	Burst     int
}

// Client implements FieldValuesFetcher over the values API
type Client struct {
	baseURL string
	org     string
	http    *http.Client
	limiter *rate.Limiter
	metrics ports.MetricsCollector
	logger  *zap.Logger
}

// NewClient creates a values API client. A non-positive rate limit
// disables limiting.
func NewClient(cfg Config, metrics ports.MetricsCollector, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("values API URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid values API URL: %w", err)
	}
	if cfg.Org == "" {
		return nil, fmt.Errorf("values API organization is required")
	}

	limit := rate.Inf
	burst := cfg.Burst
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
		if burst <= 0 {
			burst = 1
		}
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		org:     cfg.Org,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, burst),
		metrics: metrics,
		logger:  logger,
	}, nil
}

// FetchFieldValues calls the _values endpoint of req.Stream
func (c *Client) FetchFieldValues(ctx context.Context, req *domain.FieldValuesRequest) ([]domain.FieldValues, error) {
	start := time.Now()
	rows, err := c.fetch(ctx, req)

	outcome := "success"
	if err != nil {
		outcome = "error"
		if ctx.Err() != nil {
			outcome = "cancelled"
		}
	}
	c.metrics.RecordFetch(outcome, time.Since(start))

	return rows, err
}

func (c *Client) fetch(ctx context.Context, req *domain.FieldValuesRequest) ([]domain.FieldValues, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	traceID := req.TraceID
	if traceID == "" {
		traceID = uuid.New().String()
	}

	endpoint := c.buildURL(req)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Trace-Id", traceID)

	c.logger.Debug("requesting field values",
		zap.String("stream", req.Stream),
		zap.Strings("fields", req.Fields),
		zap.String("trace_id", traceID))

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call values API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read values response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := gjson.GetBytes(body, "message").String()
		if msg == "" {
			msg = strings.TrimSpace(string(body))
		}
		return nil, fmt.Errorf("values API returned %d: %s", resp.StatusCode, msg)
	}

	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("values API returned invalid JSON")
	}

	return parseHits(body), nil
}

func (c *Client) buildURL(req *domain.FieldValuesRequest) string {
	q := url.Values{}
	q.Set("fields", strings.Join(req.Fields, ","))
	q.Set("size", strconv.Itoa(req.Size))
	q.Set("start_time", strconv.FormatInt(req.TimeRange.StartMicros(), 10))
	q.Set("end_time", strconv.FormatInt(req.TimeRange.EndMicros(), 10))
	if req.QueryContext != "" {
		q.Set("sql", base64.StdEncoding.EncodeToString([]byte(req.QueryContext)))
	}
	streamType := req.StreamType
	if streamType == "" {
		streamType = "logs"
	}
	q.Set("type", streamType)

	return fmt.Sprintf("%s/api/%s/%s/_values?%s",
		c.baseURL, url.PathEscape(c.org), url.PathEscape(req.Stream), q.Encode())
}

// parseHits reads hits[].field and hits[].values[].{zo_sql_key,zo_sql_num}.
func parseHits(body []byte) []domain.FieldValues {
	hits := gjson.GetBytes(body, "hits").Array()
	rows := make([]domain.FieldValues, 0, len(hits))

	for _, hit := range hits {
		row := domain.FieldValues{Field: hit.Get("field").String()}
		for _, v := range hit.Get("values").Array() {
			row.Values = append(row.Values, domain.FieldValue{
				Key:   keyString(v.Get("zo_sql_key")),
				Count: v.Get("zo_sql_num").Int(),
			})
		}
		rows = append(rows, row)
	}

	return rows
}

// keyString renders a key of any JSON type; null becomes the empty string.
func keyString(r gjson.Result) string {
	switch r.Type {
	case gjson.Null:
		return ""
	case gjson.String:
		return r.Str
	default:
		return r.Raw
	}
}

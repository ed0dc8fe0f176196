package external

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjannette/trahn-analytics/internal/httputil"
	"github.com/kjannette/trahn-analytics/internal/metrics"
)

// ErrUpstream marks a failure reported by an analytics backend, as opposed to
// a local decoding or validation problem.
var ErrUpstream = errors.New("analytics upstream error")

const continueWait = "Continue wait"

type CubeOptions struct {
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	PollInterval time.Duration
	MaxPolls     int
	CacheTTL     time.Duration
}

type CubeClient struct {
	baseURL      string
	apiKey       string
	httpClient   *http.Client
	retry        httputil.RetryConfig
	pollInterval time.Duration
	maxPolls     int

	cache    Cache
	cacheTTL time.Duration
	log      *zap.Logger
}

// NewCubeClient builds a client for the Cube REST API. cache may be nil.
func NewCubeClient(opts CubeOptions, cache Cache, log *zap.Logger) *CubeClient {
	if log == nil {
		log = zap.NewNop()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = 2 * time.Second
	}
	maxPolls := opts.MaxPolls
	if maxPolls <= 0 {
		maxPolls = 30
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &CubeClient{
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		apiKey:       opts.APIKey,
		httpClient:   &http.Client{Timeout: timeout},
		pollInterval: poll,
		maxPolls:     maxPolls,
		cache:        cache,
		cacheTTL:     ttl,
		log:          log.Named("cube"),
		retry: httputil.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   2 * time.Second,
			MaxDelay:    15 * time.Second,
			Log:         log.Named("cube"),
		},
	}
}

type loadResponse struct {
	Data  []map[string]any `json:"data"`
	Error string           `json:"error"`
}

// Load runs q and returns the raw result rows. Cube answers long queries with
// "Continue wait"; Load re-posts until data arrives or MaxPolls is spent.
func (c *CubeClient) Load(ctx context.Context, q Query) ([]map[string]any, error) {
	body, err := json.Marshal(map[string]Query{"query": q})
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}
	key := cacheKey(body)

	if rows, ok := c.cached(ctx, key); ok {
		return rows, nil
	}

	start := time.Now()
	rows, err := c.poll(ctx, body)
	metrics.ObserveQuery("cube", queryName(q), start, err)
	if err != nil {
		return nil, err
	}

	c.store(ctx, key, rows)
	return rows, nil
}

func (c *CubeClient) poll(ctx context.Context, body []byte) ([]map[string]any, error) {
	for attempt := 1; attempt <= c.maxPolls; attempt++ {
		res, err := c.post(ctx, body)
		if err != nil {
			return nil, err
		}
		switch {
		case res.Error == continueWait:
			c.log.Debug("query still running", zap.Int("poll", attempt))
		case res.Error != "":
			return nil, fmt.Errorf("%w: %s", ErrUpstream, res.Error)
		default:
			if res.Data == nil {
				res.Data = []map[string]any{}
			}
			return res.Data, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
	return nil, fmt.Errorf("%w: query still pending after %d polls", ErrUpstream, c.maxPolls)
}

func (c *CubeClient) post(ctx context.Context, body []byte) (*loadResponse, error) {
	resp, err := httputil.Do(ctx, c.httpClient, c.retry, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/cubejs-api/v1/load", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("x-api-key", c.apiKey)
		}
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out loadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode load response: %w", err)
	}
	return &out, nil
}

func (c *CubeClient) cached(ctx context.Context, key string) ([]map[string]any, bool) {
	if c.cache == nil {
		return nil, false
	}
	b, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.log.Warn("cache read failed", zap.Error(err))
		metrics.CacheLookups.WithLabelValues("error").Inc()
		return nil, false
	}
	if !ok {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}
	var rows []map[string]any
	if err := json.Unmarshal(b, &rows); err != nil {
		c.log.Warn("discarding unreadable cache entry", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return rows, true
}

func (c *CubeClient) store(ctx context.Context, key string, rows []map[string]any) {
	if c.cache == nil {
		return
	}
	b, err := json.Marshal(rows)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, b, c.cacheTTL); err != nil {
		c.log.Warn("cache write failed", zap.Error(err))
	}
}

func cacheKey(body []byte) string {
	sum := sha256.Sum256(body)
	return "cube:" + hex.EncodeToString(sum[:])
}

// queryName labels metrics with the cube the query targets.
func queryName(q Query) string {
	members := append(append([]string{}, q.Measures...), q.Dimensions...)
	for _, m := range members {
		if i := strings.IndexByte(m, '.'); i > 0 {
			return m[:i]
		}
	}
	return "unknown"
}

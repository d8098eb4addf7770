// Package aiclient talks to the out-of-process AI extraction service. Every
// call resolves to a structured result — extraction paths never return Go
// errors to the orchestrator, they categorize them instead.
package aiclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/poolspel/matchdata-crawler/internal/metrics"
	"github.com/poolspel/matchdata-crawler/internal/scrape"
)

// The remote service gives a page 45 seconds plus retry margin; the
// client-side timeout must be strictly longer or we abort work the service
// would have finished.
const (
	DefaultTimeout     = 60 * time.Second
	DefaultHealthTTL   = 30 * time.Second
	DefaultMaxParallel = 3
)

// Config controls the client.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	HealthTTL   time.Duration
	MaxParallel int
}

// Client implements scrape.RemoteExtractor over the service's HTTP API.
type Client struct {
	cfg    Config
	http   *resty.Client
	clock  scrape.Clock
	logger *zap.Logger

	mu            sync.Mutex
	healthOK      bool
	healthAt      time.Time
	restartNeeded bool
}

// New builds a client. Zero config values fall back to defaults.
func New(cfg Config, clock scrape.Clock, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HealthTTL <= 0 {
		cfg.HealthTTL = DefaultHealthTTL
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = DefaultMaxParallel
	}
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")
	return &Client{
		cfg:    cfg,
		http:   httpClient,
		clock:  clock,
		logger: logger,
	}
}

type scrapeRequest struct {
	URL      string `json:"url"`
	DataType string `json:"data_type"`
	GameType string `json:"game_type,omitempty"`
}

type scrapeResponse struct {
	Success bool               `json:"success"`
	Data    any                `json:"data"`
	Tokens  *scrape.TokenUsage `json:"tokens"`
	Error   string             `json:"error"`
}

// Extract runs one extraction. Failures come back categorized, never as an
// error.
func (c *Client) Extract(ctx context.Context, url string, dataType scrape.DataType, gameType scrape.GameType) scrape.ExtractResult {
	body := scrapeRequest{URL: url, DataType: string(dataType), GameType: string(gameType)}
	var out scrapeResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post("/scrape")
	if err != nil {
		return c.failure(err)
	}
	if resp.IsError() {
		return c.failureText(fmt.Sprintf("service returned %s", resp.Status()))
	}
	return c.toResult(out)
}

type batchRequestBody struct {
	Requests      []scrapeRequest `json:"requests"`
	MaxConcurrent int             `json:"max_concurrent"`
}

type batchItemResponse struct {
	Success  bool   `json:"success"`
	Data     any    `json:"data"`
	Error    string `json:"error"`
	URL      string `json:"url"`
	DataType string `json:"data_type"`
}

type batchResponse struct {
	Results   []batchItemResponse `json:"results"`
	Total     int                 `json:"total"`
	Succeeded int                 `json:"succeeded"`
	Failed    int                 `json:"failed"`
}

// BatchItem is one entry of a batch extraction.
type BatchItem struct {
	URL      string
	DataType scrape.DataType
	GameType scrape.GameType
}

// ExtractBatch extracts several URLs in one call. The service bounds its own
// concurrency to MaxParallel; these calls never touch the shared browser or
// the circuit breaker, so parallelism is safe here.
func (c *Client) ExtractBatch(ctx context.Context, items []BatchItem) []scrape.ExtractResult {
	body := batchRequestBody{MaxConcurrent: c.cfg.MaxParallel}
	for _, item := range items {
		body.Requests = append(body.Requests, scrapeRequest{
			URL:      item.URL,
			DataType: string(item.DataType),
			GameType: string(item.GameType),
		})
	}

	var out batchResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post("/scrape-batch")
	if err != nil {
		failed := c.failure(err)
		results := make([]scrape.ExtractResult, len(items))
		for i := range results {
			results[i] = failed
		}
		return results
	}
	if resp.IsError() {
		failed := c.failureText(fmt.Sprintf("service returned %s", resp.Status()))
		results := make([]scrape.ExtractResult, len(items))
		for i := range results {
			results[i] = failed
		}
		return results
	}

	results := make([]scrape.ExtractResult, len(items))
	for i := range items {
		if i >= len(out.Results) {
			results[i] = c.failureText("service returned fewer results than requests")
			continue
		}
		item := out.Results[i]
		results[i] = c.toResult(scrapeResponse{
			Success: item.Success,
			Data:    item.Data,
			Error:   item.Error,
		})
	}
	return results
}

type rawRequest struct {
	URL          string `json:"url"`
	JSExpression string `json:"js_expression"`
}

// EvaluateRaw evaluates a JavaScript expression on the page and returns the
// decoded value, for pulling embedded page-state JSON without a full
// extraction pass.
func (c *Client) EvaluateRaw(ctx context.Context, url, jsExpression string) scrape.ExtractResult {
	var out scrapeResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(rawRequest{URL: url, JSExpression: jsExpression}).
		SetResult(&out).
		Post("/scrape-raw")
	if err != nil {
		return c.failure(err)
	}
	if resp.IsError() {
		return c.failureText(fmt.Sprintf("service returned %s", resp.Status()))
	}
	return c.toResult(out)
}

type healthResponse struct {
	Status string `json:"status"`
}

// Healthy reports whether the service answered "ok" recently. The result is
// cached so the orchestrator can check before every data type without
// hammering the service.
func (c *Client) Healthy(ctx context.Context) bool {
	c.mu.Lock()
	if !c.healthAt.IsZero() && c.clock.Now().Sub(c.healthAt) < c.cfg.HealthTTL {
		ok := c.healthOK
		c.mu.Unlock()
		return ok
	}
	c.mu.Unlock()

	var out healthResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/health")
	ok := err == nil && !resp.IsError() && out.Status == "ok"

	c.mu.Lock()
	c.healthOK = ok
	c.healthAt = c.clock.Now()
	c.mu.Unlock()
	return ok
}

// RestartNeeded reports whether a service-level failure was observed — the
// remote browser process died and the service needs an external restart
// rather than another retry.
func (c *Client) RestartNeeded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.restartNeeded
}

// ClearRestart resets the restart flag once the supervisor acted on it.
func (c *Client) ClearRestart() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.restartNeeded = false
	metrics.SetRemoteRestartNeeded(false)
}

func (c *Client) toResult(resp scrapeResponse) scrape.ExtractResult {
	if resp.Success {
		obj, _ := scrape.FromAny(resp.Data).(scrape.Object)
		return scrape.ExtractResult{Success: true, Data: obj, Tokens: resp.Tokens}
	}
	return c.failureText(resp.Error)
}

// failure categorizes a transport-level error.
func (c *Client) failure(err error) scrape.ExtractResult {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return scrape.ExtractResult{Error: "extraction timed out", Category: scrape.FailureTransient}
	case errors.Is(err, context.Canceled):
		return scrape.ExtractResult{Error: "extraction canceled", Category: scrape.FailureTransient}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return scrape.ExtractResult{Error: "extraction timed out", Category: scrape.FailureTransient}
	}
	return scrape.ExtractResult{Error: err.Error(), Category: scrape.FailureTransient}
}

// failureText categorizes a failure reported by the service itself.
func (c *Client) failureText(msg string) scrape.ExtractResult {
	category := categorize(msg)
	if category == scrape.FailureService {
		// The remote browser died; cached health is now a lie.
		c.mu.Lock()
		c.healthAt = time.Time{}
		c.healthOK = false
		c.restartNeeded = true
		c.mu.Unlock()
		metrics.SetRemoteRestartNeeded(true)
		c.logger.Warn("remote browser failure, restart needed", zap.String("error", msg))
	}
	if msg == "" {
		msg = "extraction failed"
	}
	return scrape.ExtractResult{Error: msg, Category: category}
}

// categorize buckets a service error message. The phrases come from the
// service's underlying browser runtime.
func categorize(msg string) scrape.FailureCategory {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "rate limit"),
		strings.Contains(lower, "too many requests"),
		strings.Contains(lower, "429"):
		return scrape.FailureRateLimited
	case strings.Contains(lower, "browser has been closed"),
		strings.Contains(lower, "browser crashed"),
		strings.Contains(lower, "target closed"),
		strings.Contains(lower, "context or browser has been closed"):
		return scrape.FailureService
	case strings.Contains(lower, "timeout"),
		strings.Contains(lower, "timed out"),
		strings.Contains(lower, "connection refused"),
		strings.Contains(lower, "connection reset"):
		return scrape.FailureTransient
	default:
		return scrape.FailureUnknown
	}
}

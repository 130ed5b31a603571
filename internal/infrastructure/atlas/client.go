package atlas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"probewatch/pkg/cache"
	"probewatch/pkg/circuitbreaker"
	apperrors "probewatch/pkg/errors"
	"probewatch/pkg/retry"

	"go.uber.org/zap"
)

const maxErrorBody = 200

// ClientConfig configures the Atlas REST client.
type ClientConfig struct {
	BaseURL          string
	APIKey           string
	UserAgent        string
	Timeout          time.Duration
	IntervalCacheTTL time.Duration
	Retry            retry.Config
	CircuitBreaker   circuitbreaker.Config
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:          "https://atlas.ripe.net",
		UserAgent:        "probewatch",
		Timeout:          60 * time.Second,
		IntervalCacheTTL: time.Hour,
		Retry:            retry.DefaultConfig(),
		CircuitBreaker:   circuitbreaker.DefaultConfig(),
	}
}

// Client talks to the Atlas REST API. Every request goes through a circuit
// breaker and is retried on transient upstream failures.
type Client struct {
	baseURL    string
	apiKey     string
	userAgent  string
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	retry      retry.Config
	intervals  *cache.Cache[time.Duration]
	logger     *zap.SugaredLogger
}

// NewClient creates a client. A nil httpClient gets a pooled client with cfg.Timeout.
func NewClient(cfg ClientConfig, httpClient *http.Client, logger *zap.SugaredLogger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	rc := cfg.Retry
	rc.ShouldRetry = isTransient

	breaker := circuitbreaker.New("atlas-api", cfg.CircuitBreaker)
	breaker.OnStateChange(func(name string, from, to circuitbreaker.State) {
		logger.Warnw("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
	})

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		userAgent:  cfg.UserAgent,
		httpClient: httpClient,
		breaker:    breaker,
		retry:      rc,
		intervals:  cache.New[time.Duration](cfg.IntervalCacheTTL, cfg.IntervalCacheTTL),
		logger:     logger,
	}
}

// Close releases the interval cache janitor.
func (c *Client) Close() {
	c.intervals.Stop()
}

// BreakerState exposes the breaker state for readiness checks.
func (c *Client) BreakerState() circuitbreaker.State {
	return c.breaker.State()
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	return retry.Retry(ctx, c.retry, func() error {
		return c.breaker.Execute(ctx, func() error {
			return c.doGet(ctx, path, query, out)
		})
	})
}

func (c *Client) doGet(ctx context.Context, path string, query url.Values, out interface{}) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Key "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warnw("atlas request failed",
			"path", path,
			"status", resp.StatusCode,
			"body", string(body),
			"duration", time.Since(start),
		)
		return apperrors.FromUpstreamStatus(resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeBadGateway,
			fmt.Sprintf("failed to decode %s", path), http.StatusBadGateway)
	}
	return nil
}

// isTransient keeps retries to failures another attempt can fix.
func isTransient(err error) bool {
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return false
	}
	if appErr := apperrors.GetAppError(err); appErr != nil {
		return appErr.Retryable() && appErr.Cause == nil
	}
	return true
}

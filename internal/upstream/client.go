// Package upstream is the typed client for the remote accounting API. Every
// payload is parsed into a model type at this boundary; internal logic never
// sees raw JSON.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/fiscalis/proposta-bff/internal/config"
	"github.com/fiscalis/proposta-bff/internal/observability"
	"github.com/fiscalis/proposta-bff/model"
)

// Client talks to the accounting API with retry, backoff, and a circuit
// breaker. It is safe for concurrent use.
type Client struct {
	baseURL         string
	httpClient      *http.Client
	breaker         *gobreaker.CircuitBreaker
	retry           config.RetryConfig
	metrics         *observability.Metrics
	fallbackListing bool

	activityTypes *activityTypeCache
}

// NewClient creates a Client from configuration.
func NewClient(cfg config.UpstreamConfig, metrics *observability.Metrics) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxConnsPerHost:     50,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	cbCfg := cfg.CircuitBreaker
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "accounting-api",
		MaxRequests: cbCfg.MaxRequests,
		Interval:    cbCfg.Interval,
		Timeout:     cbCfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			minReq := cbCfg.MinRequests
			if minReq == 0 {
				minReq = 5
			}
			threshold := cbCfg.FailureThreshold
			if threshold <= 0 {
				threshold = 0.6
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= minReq && failureRatio >= threshold
		},
		OnStateChange: func(_ string, _ gobreaker.State, to gobreaker.State) {
			if metrics != nil {
				metrics.SetBreakerState(breakerStateValue(to))
			}
			slog.Warn("upstream: circuit breaker state changed", "state", to.String())
		},
	})

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		breaker:         breaker,
		retry:           cfg.Retry,
		metrics:         metrics,
		fallbackListing: cfg.FallbackListing,
		activityTypes:   newActivityTypeCache(cfg.ActivityTypeTTL),
	}
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 2
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 0
	}
}

// statusError reports a non-2xx upstream response.
type statusError struct {
	Endpoint string
	Status   int
	Body     string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("upstream %s returned status %d", e.Endpoint, e.Status)
}

// IsAvailabilityError reports whether err looks like an availability problem
// (unreachable backend, timeout, breaker open, unauthorized, or 5xx) rather
// than a data problem. The proposals listing fallback keys off this.
func IsAvailabilityError(err error) bool {
	var ee *model.ErrorEnvelope
	if errors.As(err, &ee) {
		return ee.Code == model.ErrBackendUnavailable || ee.Code == model.ErrBackendTimeout
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.Status == http.StatusUnauthorized || se.Status >= 500
	}
	return false
}

// do executes one upstream request with retry and breaker protection.
// withAuth controls whether the caller's bearer token is forwarded; the
// proposals listing endpoints are documented as unauthenticated.
func (c *Client) do(
	ctx context.Context,
	rctx *model.RequestContext,
	endpoint, method, path string,
	withAuth bool,
	body any,
) ([]byte, error) {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("upstream: marshal body: %w", err)
		}
	}

	maxAttempts := c.retry.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	canRetry := isIdempotentMethod(method) || !c.retry.IdempotentOnly

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := calculateBackoff(c.retry, attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			if c.metrics != nil {
				c.metrics.RecordUpstreamRetry()
			}
		}

		respBody, err := c.executeOnce(ctx, rctx, endpoint, method, path, withAuth, bodyBytes)
		if err != nil {
			lastErr = err
			if canRetry && isRetryableError(err) {
				slog.Debug("upstream: retrying after error",
					"endpoint", endpoint,
					"attempt", attempt+1,
					"max", maxAttempts,
					"error", err,
				)
				continue
			}
			return nil, asAvailabilityError(err)
		}
		return respBody, nil
	}

	return nil, asAvailabilityError(lastErr)
}

// asAvailabilityError converts a 5xx statusError into the backend-unavailable
// envelope once retries are exhausted. 4xx responses stay as statusError so
// callers can map individual statuses such as 404.
func asAvailabilityError(err error) error {
	var se *statusError
	if errors.As(err, &se) && se.Status >= 500 {
		return model.NewBackendUnavailableError()
	}
	return err
}

// executeOnce performs a single HTTP request inside the circuit breaker.
func (c *Client) executeOnce(
	ctx context.Context,
	rctx *model.RequestContext,
	endpoint, method, path string,
	withAuth bool,
	bodyBytes []byte,
) ([]byte, error) {
	start := time.Now()

	result, err := c.breaker.Execute(func() (any, error) {
		var reqBody io.Reader
		if bodyBytes != nil {
			reqBody = bytes.NewReader(bodyBytes)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
		if err != nil {
			return nil, fmt.Errorf("upstream: build request: %w", err)
		}
		req.Header = c.buildHeaders(rctx, method, withAuth)
		observability.InjectTraceHeaders(ctx, req.Header)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if isConnectionError(err) {
				return nil, model.NewBackendUnavailableError()
			}
			if ctx.Err() != nil {
				return nil, model.NewBackendTimeoutError()
			}
			return nil, fmt.Errorf("upstream: request failed: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20)) // 10MB limit
		if err != nil {
			return nil, fmt.Errorf("upstream: read response: %w", err)
		}

		if c.metrics != nil {
			c.metrics.RecordUpstreamRequest(endpoint, resp.StatusCode, time.Since(start))
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			serr := &statusError{Endpoint: endpoint, Status: resp.StatusCode, Body: string(respBody)}
			// 4xx are not infrastructure failures; keep the breaker closed.
			if resp.StatusCode < 500 {
				return respBody, &clientStatusError{serr}
			}
			return nil, serr
		}
		return respBody, nil
	})
	if err != nil {
		var cse *clientStatusError
		if errors.As(err, &cse) {
			return nil, cse.statusError
		}
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, model.NewBackendUnavailableError()
		}
		return nil, err
	}

	respBody, _ := result.([]byte)
	return respBody, nil
}

// clientStatusError wraps a 4xx statusError so gobreaker counts the call as
// a success while the caller still sees the failure.
type clientStatusError struct {
	*statusError
}

func (c *Client) buildHeaders(rctx *model.RequestContext, method string, withAuth bool) http.Header {
	h := make(http.Header)

	h.Set("Accept", "application/json")
	if method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch {
		h.Set("Content-Type", "application/json")
	}

	if rctx != nil {
		if withAuth && rctx.Token != "" {
			h.Set("Authorization", "Bearer "+sanitizeHeader(rctx.Token))
		}
		h.Set("X-Correlation-Id", sanitizeHeader(rctx.CorrelationID))
		h.Set("X-Request-Subject", sanitizeHeader(rctx.SubjectID))
	}

	return h
}

// sanitizeHeader strips newlines and carriage returns to prevent header injection.
func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	return s
}

// decodeList accepts either a bare JSON array or an {"items": [...]} envelope;
// the accounting API serves both shapes depending on the endpoint version.
func decodeList[T any](data []byte) ([]T, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var bare []T
		if err := json.Unmarshal(trimmed, &bare); err != nil {
			return nil, fmt.Errorf("upstream: decode list: %w", err)
		}
		return bare, nil
	}

	var env struct {
		Items []T `json:"items"`
	}
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("upstream: decode list envelope: %w", err)
	}
	return env.Items, nil
}

// --- classification helpers ---

func isIdempotentMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodPut, http.MethodDelete,
		http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	// Breaker-open and timeout envelopes are not retryable within a request.
	var ee *model.ErrorEnvelope
	if errors.As(err, &ee) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		switch se.Status {
		case http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	return true
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return isConnectionError(urlErr.Err)
	}
	return false
}

func calculateBackoff(cfg config.RetryConfig, attempt int) time.Duration {
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = 100 * time.Millisecond
	}
	if cfg.BackoffMultiplier <= 0 {
		cfg.BackoffMultiplier = 2
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 2 * time.Second
	}

	delay := cfg.BackoffInitial
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * cfg.BackoffMultiplier)
		if delay > cfg.BackoffMax {
			delay = cfg.BackoffMax
			break
		}
	}
	return delay
}

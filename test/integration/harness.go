// Package integration provides a reusable test harness for end-to-end
// integration testing of the proposal-console BFF server. It starts a full
// HTTP server with a mock accounting backend, an in-memory draft store, and
// a test JWT issuer.
package integration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fiscalis/proposta-bff/internal/config"
	"github.com/fiscalis/proposta-bff/internal/navigator"
	"github.com/fiscalis/proposta-bff/internal/notification"
	"github.com/fiscalis/proposta-bff/internal/transport"
	"github.com/fiscalis/proposta-bff/internal/upstream"
	"github.com/fiscalis/proposta-bff/internal/wizard"
)

// TestHarness encapsulates a fully wired BFF instance with a mock accounting
// backend for integration testing.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server
	issuer *tokenIssuer

	// Internal components exposed for advanced test scenarios.
	Backend    *MockAccountingAPI
	DraftStore *wizard.MemoryDraftStore
	Navigator  *navigator.Navigator

	cfg *config.Config
}

// HarnessOption configures the test harness.
type HarnessOption func(*config.Config)

// WithUnknownActivityPolicy sets how the wizard treats unresolved activity
// types.
func WithUnknownActivityPolicy(policy config.UnknownActivityPolicy) HarnessOption {
	return func(c *config.Config) {
		c.Wizard.UnknownActivityPolicy = policy
	}
}

// WithFallbackListing enables the demo fallback proposals listing.
func WithFallbackListing() HarnessOption {
	return func(c *config.Config) {
		c.Upstream.FallbackListing = true
	}
}

// WithIntentTTL caps how long an unconsumed navigation intent survives.
func WithIntentTTL(d time.Duration) HarnessOption {
	return func(c *config.Config) {
		c.Navigator.IntentTTL = d
	}
}

// WithRetry overrides the upstream retry settings.
func WithRetry(retry config.RetryConfig) HarnessOption {
	return func(c *config.Config) {
		c.Upstream.Retry = retry
	}
}

// NewTestHarness creates and starts a full BFF test instance. The server is
// automatically cleaned up when the test completes.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	h := &TestHarness{t: t}

	// Step 1: Start the mock accounting backend and the JWT issuer.
	h.Backend = newMockAccountingAPI(t)
	h.issuer = newTokenIssuer(t)

	// Step 2: Build config over production defaults.
	cfg := config.Defaults()
	cfg.Identity = config.IdentityConfig{
		Issuer:       h.issuer.Issuer(),
		Audience:     h.issuer.Audience(),
		JWKSURL:      h.issuer.JWKSURL(),
		JWKSCacheTTL: 1 * time.Hour,
		Algorithms:   []string{"RS256"},
	}
	cfg.Upstream.BaseURL = h.Backend.URL()
	cfg.Upstream.Timeout = 5 * time.Second
	cfg.Upstream.Retry = config.RetryConfig{
		MaxAttempts:       2,
		BackoffInitial:    1 * time.Millisecond,
		BackoffMultiplier: 2,
		BackoffMax:        10 * time.Millisecond,
		IdempotentOnly:    true,
	}
	// Keep the breaker out of the way unless a test trips it on purpose.
	cfg.Upstream.CircuitBreaker.MinRequests = 1000
	cfg.Upstream.CircuitBreaker.FailureThreshold = 0.999
	for _, opt := range opts {
		opt(cfg)
	}
	h.cfg = cfg

	// Step 3: Wire the application the way cmd/bff does.
	backend := upstream.NewClient(cfg.Upstream, nil)
	h.DraftStore = wizard.NewMemoryDraftStore()
	engine := wizard.NewEngine(h.DraftStore, backend, cfg.Wizard, nil, nil)

	h.Navigator = navigator.New(cfg.Navigator.IntentTTL, nil, nil)
	h.Navigator.Subscribe(wizard.NewResetGuard(h.DraftStore, "", nil, nil))

	notifications := notification.NewRouter(backend, h.Navigator, nil, nil)

	jwks := transport.NewJWKSClient(cfg.Identity.JWKSURL, cfg.Identity.JWKSCacheTTL)
	router := transport.NewRouter(transport.Dependencies{
		Config:        cfg,
		Authenticate:  transport.JWTAuthenticator(cfg.Identity, jwks),
		Engine:        engine,
		Navigator:     h.Navigator,
		Notifications: notifications,
		Upstream:      backend,
	})

	// Step 4: Start the test server.
	h.server = httptest.NewServer(router)
	t.Cleanup(h.server.Close)

	return h
}

// BaseURL returns the test server's base URL.
func (h *TestHarness) BaseURL() string {
	return h.server.URL
}

// GenerateToken creates a valid JWT token with the given claims.
func (h *TestHarness) GenerateToken(claims TestClaims) string {
	return h.issuer.GenerateToken(claims)
}

// GenerateExpiredToken creates a JWT that has already expired.
func (h *TestHarness) GenerateExpiredToken(claims TestClaims) string {
	return h.issuer.GenerateExpiredToken(claims)
}

// --- HTTP client helpers ---

// GET performs an authenticated GET request.
func (h *TestHarness) GET(path, token string) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodGet, path, nil, token)
}

// POST performs an authenticated POST request with a JSON body.
func (h *TestHarness) POST(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodPost, path, body, token)
}

// PUT performs an authenticated PUT request with a JSON body.
func (h *TestHarness) PUT(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodPut, path, body, token)
}

func (h *TestHarness) doRequest(method, path string, body any, token string) *http.Response {
	h.t.Helper()

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
		bodyReader = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(context.Background(), method, h.server.URL+path, bodyReader)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

// ParseJSON reads the response body and unmarshals it into the target.
func (h *TestHarness) ParseJSON(resp *http.Response, target any) {
	h.t.Helper()
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		h.t.Fatalf("unmarshal response body: %v\nbody: %s", err, string(data))
	}
}

// AssertStatus checks that the response has the expected status code.
func (h *TestHarness) AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Errorf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
}

// AssertJSON checks that the response has the expected status and parses the body.
func (h *TestHarness) AssertJSON(t *testing.T, resp *http.Response, expected int, target any) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
	h.ParseJSON(resp, target)
}

// --- Default test claims ---

// ManagerClaims returns TestClaims for a proposal manager user.
func ManagerClaims() TestClaims {
	return TestClaims{
		SubjectID:  "emp-ana",
		SessionID:  "sess-ana-1",
		EmployeeID: "7",
		Email:      "ana@fiscalis.example.com",
		Roles:      []string{"proposal_manager"},
	}
}

// SecondSessionClaims returns claims for the same user on another session.
func SecondSessionClaims() TestClaims {
	c := ManagerClaims()
	c.SessionID = "sess-ana-2"
	return c
}

package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fiscalis/proposta-bff/internal/config"
	"github.com/fiscalis/proposta-bff/model"
)

func testConfig(baseURL string) config.UpstreamConfig {
	return config.UpstreamConfig{
		BaseURL: baseURL,
		Timeout: 2 * time.Second,
		Retry: config.RetryConfig{
			MaxAttempts:       3,
			BackoffInitial:    time.Millisecond,
			BackoffMultiplier: 2,
			BackoffMax:        5 * time.Millisecond,
			IdempotentOnly:    true,
		},
		CircuitBreaker: config.CircuitBreakerConfig{
			MaxRequests:      3,
			Interval:         30 * time.Second,
			Timeout:          10 * time.Second,
			MinRequests:      100,
			FailureThreshold: 0.99,
		},
		FallbackListing: true,
		ActivityTypeTTL: time.Minute,
	}
}

func testRequestContext() *model.RequestContext {
	return &model.RequestContext{
		SubjectID:     "emp-42",
		SessionID:     "sess-1",
		Token:         "test-token",
		CorrelationID: "corr-1",
	}
}

func TestDo_RetriesIdempotentOn503(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	_, err := c.do(context.Background(), testRequestContext(), "clients", http.MethodGet, "/clientes", true, nil)
	if err != nil {
		t.Fatalf("do() error = %v, want nil after retries", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server calls = %d, want 3", got)
	}
}

func TestDo_ExhaustedRetriesBecomeBackendUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	_, err := c.do(context.Background(), testRequestContext(), "clients", http.MethodGet, "/clientes", true, nil)

	ee, ok := err.(*model.ErrorEnvelope)
	if !ok {
		t.Fatalf("do() error type = %T, want *model.ErrorEnvelope", err)
	}
	if ee.Code != model.ErrBackendUnavailable {
		t.Errorf("error code = %q, want %q", ee.Code, model.ErrBackendUnavailable)
	}
}

func TestDo_DoesNotRetryPost(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	_, err := c.do(context.Background(), testRequestContext(), "proposals", http.MethodPost, "/propostas", true, map[string]any{})
	if err == nil {
		t.Fatal("do() error = nil, want error")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server calls = %d, want 1 (POST must not retry)", got)
	}
}

func TestDo_DoesNotRetry4xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	_, err := c.do(context.Background(), testRequestContext(), "clients", http.MethodGet, "/clientes", true, nil)
	if err == nil {
		t.Fatal("do() error = nil, want error")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server calls = %d, want 1 (4xx must not retry)", got)
	}
}

func TestDo_ConnectionErrorBecomesBackendUnavailable(t *testing.T) {
	c := NewClient(testConfig("http://127.0.0.1:1"), nil)
	_, err := c.do(context.Background(), testRequestContext(), "clients", http.MethodGet, "/clientes", true, nil)

	ee, ok := err.(*model.ErrorEnvelope)
	if !ok {
		t.Fatalf("do() error type = %T, want *model.ErrorEnvelope", err)
	}
	if ee.Code != model.ErrBackendUnavailable {
		t.Errorf("error code = %q, want %q", ee.Code, model.ErrBackendUnavailable)
	}
}

func TestBuildHeaders_AuthForwarding(t *testing.T) {
	c := NewClient(testConfig("http://example.test"), nil)
	rctx := testRequestContext()

	withAuth := c.buildHeaders(rctx, http.MethodPost, true)
	if got := withAuth.Get("Authorization"); got != "Bearer test-token" {
		t.Errorf("Authorization = %q, want bearer token", got)
	}
	if got := withAuth.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", got)
	}

	withoutAuth := c.buildHeaders(rctx, http.MethodGet, false)
	if got := withoutAuth.Get("Authorization"); got != "" {
		t.Errorf("Authorization = %q, want empty when auth disabled", got)
	}
	if got := withoutAuth.Get("X-Correlation-Id"); got != "corr-1" {
		t.Errorf("X-Correlation-Id = %q, want corr-1", got)
	}
}

func TestSanitizeHeader(t *testing.T) {
	got := sanitizeHeader("abc\r\nX-Injected: evil")
	if got != "abcX-Injected: evil" {
		t.Errorf("sanitizeHeader() = %q, want newlines stripped", got)
	}
}

func TestDecodeList_BothShapes(t *testing.T) {
	bare, err := decodeList[model.Client]([]byte(`[{"id":1,"name":"Acme","active":true}]`))
	if err != nil {
		t.Fatalf("decodeList(bare array) error = %v", err)
	}
	if len(bare) != 1 || bare[0].ID != 1 {
		t.Errorf("bare array decode = %+v, want one client with id 1", bare)
	}

	wrapped, err := decodeList[model.Client]([]byte(`{"items":[{"id":2,"name":"Beta","active":false}]}`))
	if err != nil {
		t.Fatalf("decodeList(envelope) error = %v", err)
	}
	if len(wrapped) != 1 || wrapped[0].ID != 2 {
		t.Errorf("envelope decode = %+v, want one client with id 2", wrapped)
	}

	if _, err := decodeList[model.Client]([]byte(`not json`)); err == nil {
		t.Error("decodeList(garbage) error = nil, want error")
	}
}

func TestCalculateBackoff(t *testing.T) {
	cfg := config.RetryConfig{
		BackoffInitial:    100 * time.Millisecond,
		BackoffMultiplier: 2,
		BackoffMax:        300 * time.Millisecond,
	}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 300 * time.Millisecond},
		{4, 300 * time.Millisecond},
	}
	for _, tc := range cases {
		if got := calculateBackoff(cfg, tc.attempt); got != tc.want {
			t.Errorf("calculateBackoff(attempt=%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestListProposals_Fallback(t *testing.T) {
	c := NewClient(testConfig("http://127.0.0.1:1"), nil)

	listing, err := c.ListProposals(context.Background(), testRequestContext())
	if err != nil {
		t.Fatalf("ListProposals() error = %v, want fallback data", err)
	}
	if listing.Source != model.SourceFallback {
		t.Errorf("listing source = %q, want %q", listing.Source, model.SourceFallback)
	}
	if len(listing.Proposals) == 0 {
		t.Fatal("fallback listing is empty")
	}
	for _, p := range listing.Proposals {
		if p.ID >= 0 {
			t.Errorf("fallback proposal id = %d, want negative", p.ID)
		}
	}
}

func TestListProposals_FallbackDisabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.FallbackListing = false
	c := NewClient(cfg, nil)

	if _, err := c.ListProposals(context.Background(), testRequestContext()); err == nil {
		t.Error("ListProposals() error = nil, want error when fallback disabled")
	}
}

func TestListProposals_LiveOmitsAuth(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode([]model.Proposal{{ID: 7, ClientID: 3, Total: 1500}})
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	listing, err := c.ListProposals(context.Background(), testRequestContext())
	if err != nil {
		t.Fatalf("ListProposals() error = %v", err)
	}
	if gotAuth != "" {
		t.Errorf("listing sent Authorization = %q, want none", gotAuth)
	}
	if listing.Source != model.SourceLive {
		t.Errorf("listing source = %q, want %q", listing.Source, model.SourceLive)
	}
	if len(listing.Proposals) != 1 || listing.Proposals[0].ID != 7 {
		t.Errorf("listing = %+v, want one proposal with id 7", listing.Proposals)
	}
}

func TestCreateProposal_SendsAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q, want bearer token", got)
		}
		var create model.ProposalCreate
		if err := json.NewDecoder(r.Body).Decode(&create); err != nil {
			t.Errorf("decode create payload: %v", err)
		}
		json.NewEncoder(w).Encode(model.Proposal{
			ID:       99,
			ClientID: create.ClientID,
			Status:   "draft",
		})
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	proposal, err := c.CreateProposal(context.Background(), testRequestContext(), model.ProposalCreate{
		ClientID:       3,
		ActivityTypeID: 1,
		TaxRegimeID:    2,
		Services: []model.SelectedService{
			{ServiceID: 101, Quantity: 2, UnitPrice: 100, Subtotal: 200},
		},
	})
	if err != nil {
		t.Fatalf("CreateProposal() error = %v", err)
	}
	if proposal.ID != 99 || proposal.ClientID != 3 {
		t.Errorf("created proposal = %+v, want id 99 client 3", proposal)
	}
}

func TestGetClient_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	_, err := c.GetClient(context.Background(), testRequestContext(), 404)

	ee, ok := err.(*model.ErrorEnvelope)
	if !ok {
		t.Fatalf("GetClient() error type = %T, want *model.ErrorEnvelope", err)
	}
	if ee.Code != model.ErrNotFound {
		t.Errorf("error code = %q, want %q", ee.Code, model.ErrNotFound)
	}
}

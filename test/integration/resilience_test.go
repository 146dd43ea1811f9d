package integration

import (
	"net/http"
	"testing"

	"github.com/fiscalis/proposta-bff/internal/wizard"
	"github.com/fiscalis/proposta-bff/model"
)

func TestProposalListingFallsBackWhenBackendDown(t *testing.T) {
	h := NewTestHarness(t, WithFallbackListing())
	token := h.GenerateToken(ManagerClaims())

	h.Backend.FailWith("/propostas", http.StatusServiceUnavailable)

	var listing struct {
		Proposals []model.Proposal `json:"proposals"`
		Source    model.DataSource `json:"source"`
	}
	h.AssertJSON(t, h.GET("/ui/proposals", token), http.StatusOK, &listing)

	if listing.Source != model.SourceFallback {
		t.Fatalf("source = %q, want fallback", listing.Source)
	}
	if len(listing.Proposals) == 0 {
		t.Fatal("fallback listing is empty")
	}
	for _, p := range listing.Proposals {
		if p.ID >= 0 {
			t.Errorf("fallback proposal ID %d not negative", p.ID)
		}
	}

	// The backend recovers; live data returns.
	h.Backend.FailWith("/propostas", 0)
	h.AssertJSON(t, h.GET("/ui/proposals", token), http.StatusOK, &listing)
	if listing.Source != model.SourceLive {
		t.Errorf("source after recovery = %q, want live", listing.Source)
	}
}

func TestProposalListingErrorsWithoutFallback(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(ManagerClaims())

	h.Backend.FailWith("/propostas", http.StatusServiceUnavailable)

	resp := h.GET("/ui/proposals", token)
	h.AssertStatus(t, resp, http.StatusBadGateway)
}

func TestIdempotentRequestsAreRetried(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(ManagerClaims())

	var clients struct {
		Clients []model.Client `json:"clients"`
	}
	h.AssertJSON(t, h.GET("/ui/clients", token), http.StatusOK, &clients)

	before := len(h.Backend.Requests("/clientes"))
	h.Backend.FailWith("/clientes", http.StatusServiceUnavailable)
	resp := h.GET("/ui/clients", token)
	h.AssertStatus(t, resp, http.StatusBadGateway)
	resp.Body.Close()

	// The harness retry policy allows 2 attempts for idempotent calls.
	attempts := len(h.Backend.Requests("/clientes")) - before
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2 (one retry)", attempts)
	}
}

func TestFinalizationFailureIsRetryable(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(ManagerClaims())

	var result wizard.Result
	h.AssertJSON(t, h.POST("/ui/wizard/start", nil, token), http.StatusOK, &result)
	h.AssertJSON(t, h.POST("/ui/wizard/client", map[string]any{"client_id": 1}, token), http.StatusOK, &result)
	h.AssertJSON(t, h.POST("/ui/wizard/tax-config", map[string]any{
		"activity_type_id": 10,
		"tax_regime_id":    1,
	}, token), http.StatusOK, &result)

	services := map[string]any{
		"services": []map[string]any{{"service_id": 5, "quantity": 1, "unit_price": 100}},
	}

	// The create fails; the session stays on SELECT_SERVICES.
	h.Backend.FailWith("/propostas", http.StatusInternalServerError)
	resp := h.POST("/ui/wizard/services", services, token)
	h.AssertStatus(t, resp, http.StatusBadGateway)
	resp.Body.Close()

	var draft model.ProposalDraft
	h.AssertJSON(t, h.GET("/ui/wizard", token), http.StatusOK, &draft)
	if draft.Step != model.StepSelectServices {
		t.Fatalf("step after failed finalize = %v, want SELECT_SERVICES", draft.Step)
	}

	// Retrying after recovery completes the flow.
	h.Backend.FailWith("/propostas", 0)
	h.AssertJSON(t, h.POST("/ui/wizard/services", services, token), http.StatusOK, &result)
	if result.Finalized == nil {
		t.Fatal("retry after recovery did not finalize")
	}
}

func TestProposalReadsOmitBearerToken(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(ManagerClaims())

	resp := h.GET("/ui/proposals", token)
	h.AssertStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	for _, r := range h.Backend.Requests("/propostas") {
		if r.Method == http.MethodGet && r.Authorization != "" {
			t.Errorf("proposal read sent Authorization %q, want none", r.Authorization)
		}
	}

	// Client reads do forward the token.
	resp = h.GET("/ui/clients", token)
	h.AssertStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	reqs := h.Backend.Requests("/clientes")
	if len(reqs) == 0 {
		t.Fatal("no client requests recorded")
	}
	for _, r := range reqs {
		if r.Authorization == "" {
			t.Error("client read did not forward the bearer token")
		}
	}
}

// --- security controls ---

func TestRequestsWithoutTokenAreRejected(t *testing.T) {
	h := NewTestHarness(t)

	for _, path := range []string{"/ui/wizard", "/ui/proposals", "/ui/notifications", "/ui/navigation"} {
		resp := h.GET(path, "")
		h.AssertStatus(t, resp, http.StatusUnauthorized)
		resp.Body.Close()
	}
}

func TestExpiredTokenIsRejected(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateExpiredToken(ManagerClaims())

	resp := h.GET("/ui/wizard", token)
	h.AssertStatus(t, resp, http.StatusUnauthorized)
}

func TestHealthEndpointsBypassAuth(t *testing.T) {
	h := NewTestHarness(t)

	for _, path := range []string{"/ui/health", "/ui/ready", "/metrics"} {
		resp := h.GET(path, "")
		if resp.StatusCode == http.StatusUnauthorized {
			t.Errorf("%s requires auth, must be public", path)
		}
		resp.Body.Close()
	}
}

func TestErrorEnvelopeShape(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(ManagerClaims())

	resp := h.POST("/ui/wizard/client", map[string]any{"client_id": 1}, token)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}

	var body struct {
		Error *model.ErrorEnvelope `json:"error"`
	}
	h.ParseJSON(resp, &body)
	if body.Error == nil || body.Error.Code != model.ErrWizardInvalidStep {
		t.Errorf("envelope = %+v, want WIZARD_INVALID_STEP", body.Error)
	}
}

package integration

import (
	"net/http"
	"testing"

	"github.com/fiscalis/proposta-bff/internal/config"
	"github.com/fiscalis/proposta-bff/internal/wizard"
	"github.com/fiscalis/proposta-bff/model"
)

func TestWizardFullFlow(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(ManagerClaims())

	// Start from the listing.
	var result wizard.Result
	h.AssertJSON(t, h.POST("/ui/wizard/start", nil, token), http.StatusOK, &result)
	if result.Draft.Step != model.StepSelectClient {
		t.Fatalf("step after start = %v, want SELECT_CLIENT", result.Draft.Step)
	}

	// Confirm an active client.
	h.AssertJSON(t, h.POST("/ui/wizard/client", map[string]any{"client_id": 1}, token), http.StatusOK, &result)
	if result.Draft.Step != model.StepTaxConfig {
		t.Fatalf("step after client = %v, want TAX_CONFIG", result.Draft.Step)
	}
	if result.Draft.Client == nil || result.Draft.Client.ClientID != 1 {
		t.Fatalf("draft client = %+v", result.Draft.Client)
	}

	// Confirm a tax configuration with a company-applicable activity type.
	h.AssertJSON(t, h.POST("/ui/wizard/tax-config", map[string]any{
		"activity_type_id": 10,
		"tax_regime_id":    2,
	}, token), http.StatusOK, &result)
	if result.Draft.Step != model.StepSelectServices {
		t.Fatalf("step after tax config = %v, want SELECT_SERVICES", result.Draft.Step)
	}

	// Confirm services; this finalizes against the backend.
	h.AssertJSON(t, h.POST("/ui/wizard/services", map[string]any{
		"services": []map[string]any{
			{"service_id": 101, "quantity": 2, "unit_price": 350},
			{"service_id": 102, "quantity": 1, "unit_price": 90},
		},
	}, token), http.StatusOK, &result)

	if result.Finalized == nil {
		t.Fatal("services confirmation did not finalize the proposal")
	}
	if result.Finalized.Total != 790 {
		t.Errorf("finalized total = %v, want 790", result.Finalized.Total)
	}
	if result.Draft.Step != model.StepListing {
		t.Errorf("step after finalization = %v, want LISTING", result.Draft.Step)
	}

	// The backend received exactly one create, with the recomputed subtotals.
	created := h.Backend.CreatedProposals()
	if len(created) != 1 {
		t.Fatalf("backend proposals created = %d, want 1", len(created))
	}
	if created[0].ClientID != 1 || created[0].ActivityTypeID != 10 {
		t.Errorf("created proposal = %+v", created[0])
	}

	// The create call carried the caller's bearer token.
	posts := h.Backend.Requests("/propostas")
	var foundAuth bool
	for _, r := range posts {
		if r.Method == http.MethodPost && r.Authorization != "" {
			foundAuth = true
		}
	}
	if !foundAuth {
		t.Error("proposal create did not forward the bearer token")
	}

	// The finalized proposal appears in the listing.
	var listing struct {
		Proposals []model.Proposal `json:"proposals"`
		Source    model.DataSource `json:"source"`
	}
	h.AssertJSON(t, h.GET("/ui/proposals", token), http.StatusOK, &listing)
	if listing.Source != model.SourceLive {
		t.Errorf("listing source = %q, want live", listing.Source)
	}
	var found bool
	for _, p := range listing.Proposals {
		if p.ID == result.Finalized.ID {
			found = true
		}
	}
	if !found {
		t.Error("finalized proposal missing from the listing")
	}
}

func TestWizardNotApplicableActivitySkipsServices(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(ManagerClaims())

	var result wizard.Result
	h.AssertJSON(t, h.POST("/ui/wizard/start", nil, token), http.StatusOK, &result)
	h.AssertJSON(t, h.POST("/ui/wizard/client", map[string]any{"client_id": 2}, token), http.StatusOK, &result)

	// Activity type 20 is not applicable to companies; the flow finalizes
	// immediately with no services.
	h.AssertJSON(t, h.POST("/ui/wizard/tax-config", map[string]any{
		"activity_type_id": 20,
		"tax_regime_id":    1,
	}, token), http.StatusOK, &result)

	if result.Finalized == nil {
		t.Fatal("not-applicable activity type did not finalize directly")
	}
	if len(result.Finalized.Services) != 0 {
		t.Errorf("services = %v, want empty", result.Finalized.Services)
	}
	if result.Draft.Step != model.StepListing {
		t.Errorf("step = %v, want LISTING", result.Draft.Step)
	}
}

func TestWizardUnknownActivityPolicyBlock(t *testing.T) {
	h := NewTestHarness(t, WithUnknownActivityPolicy(config.PolicyBlock))
	token := h.GenerateToken(ManagerClaims())

	var result wizard.Result
	h.AssertJSON(t, h.POST("/ui/wizard/start", nil, token), http.StatusOK, &result)
	h.AssertJSON(t, h.POST("/ui/wizard/client", map[string]any{"client_id": 1}, token), http.StatusOK, &result)

	// Activity type 999 does not exist upstream; block policy rejects it.
	resp := h.POST("/ui/wizard/tax-config", map[string]any{
		"activity_type_id": 999,
		"tax_regime_id":    1,
	}, token)
	h.AssertStatus(t, resp, http.StatusUnprocessableEntity)

	// The session is still on TAX_CONFIG and can retry with a valid type.
	var draft model.ProposalDraft
	h.AssertJSON(t, h.GET("/ui/wizard", token), http.StatusOK, &draft)
	if draft.Step != model.StepTaxConfig {
		t.Errorf("step after rejection = %v, want TAX_CONFIG", draft.Step)
	}
}

func TestWizardUnknownActivityPolicyProceed(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(ManagerClaims())

	var result wizard.Result
	h.AssertJSON(t, h.POST("/ui/wizard/start", nil, token), http.StatusOK, &result)
	h.AssertJSON(t, h.POST("/ui/wizard/client", map[string]any{"client_id": 1}, token), http.StatusOK, &result)

	// Default policy lets an unresolved activity type continue to services.
	h.AssertJSON(t, h.POST("/ui/wizard/tax-config", map[string]any{
		"activity_type_id": 999,
		"tax_regime_id":    1,
	}, token), http.StatusOK, &result)
	if result.Draft.Step != model.StepSelectServices {
		t.Errorf("step = %v, want SELECT_SERVICES under proceed policy", result.Draft.Step)
	}
}

func TestWizardRejectsInactiveClient(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(ManagerClaims())

	var result wizard.Result
	h.AssertJSON(t, h.POST("/ui/wizard/start", nil, token), http.StatusOK, &result)

	resp := h.POST("/ui/wizard/client", map[string]any{"client_id": 3}, token)
	h.AssertStatus(t, resp, http.StatusUnprocessableEntity)
}

func TestWizardStepOrderEnforced(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(ManagerClaims())

	// Confirming services before starting is a conflict.
	resp := h.POST("/ui/wizard/services", map[string]any{
		"services": []map[string]any{{"service_id": 1, "quantity": 1, "unit_price": 10}},
	}, token)
	h.AssertStatus(t, resp, http.StatusConflict)

	// Starting twice is a conflict too.
	var result wizard.Result
	h.AssertJSON(t, h.POST("/ui/wizard/start", nil, token), http.StatusOK, &result)
	resp = h.POST("/ui/wizard/start", nil, token)
	h.AssertStatus(t, resp, http.StatusConflict)
}

func TestWizardBackDiscardsForwardData(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(ManagerClaims())

	var result wizard.Result
	h.AssertJSON(t, h.POST("/ui/wizard/start", nil, token), http.StatusOK, &result)
	h.AssertJSON(t, h.POST("/ui/wizard/client", map[string]any{"client_id": 1}, token), http.StatusOK, &result)
	h.AssertJSON(t, h.POST("/ui/wizard/tax-config", map[string]any{
		"activity_type_id": 10,
		"tax_regime_id":    1,
	}, token), http.StatusOK, &result)

	// Back from SELECT_SERVICES returns to TAX_CONFIG with tax data intact.
	h.AssertJSON(t, h.POST("/ui/wizard/back", nil, token), http.StatusOK, &result)
	if result.Draft.Step != model.StepTaxConfig {
		t.Fatalf("step after back = %v, want TAX_CONFIG", result.Draft.Step)
	}

	// Back again drops the tax configuration. Reset before re-decoding: an
	// omitted "tax_config" key leaves the field untouched by json.Unmarshal.
	result = wizard.Result{}
	h.AssertJSON(t, h.POST("/ui/wizard/back", nil, token), http.StatusOK, &result)
	if result.Draft.Step != model.StepSelectClient {
		t.Fatalf("step after second back = %v, want SELECT_CLIENT", result.Draft.Step)
	}
	if result.Draft.TaxConfig != nil {
		t.Errorf("tax config survived back = %+v", result.Draft.TaxConfig)
	}
}

func TestWizardCancelClearsSession(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(ManagerClaims())

	var result wizard.Result
	h.AssertJSON(t, h.POST("/ui/wizard/start", nil, token), http.StatusOK, &result)
	h.AssertJSON(t, h.POST("/ui/wizard/client", map[string]any{"client_id": 1}, token), http.StatusOK, &result)

	h.AssertJSON(t, h.POST("/ui/wizard/cancel", nil, token), http.StatusOK, &result)
	if result.Draft.Step != model.StepListing {
		t.Errorf("step after cancel = %v, want LISTING", result.Draft.Step)
	}

	// Cancel is idempotent.
	h.AssertJSON(t, h.POST("/ui/wizard/cancel", nil, token), http.StatusOK, &result)

	// Nothing created upstream.
	if created := h.Backend.CreatedProposals(); len(created) != 0 {
		t.Errorf("cancel left %d created proposals", len(created))
	}
}

func TestWizardSessionsAreIsolated(t *testing.T) {
	h := NewTestHarness(t)
	tokenA := h.GenerateToken(ManagerClaims())
	tokenB := h.GenerateToken(SecondSessionClaims())

	var result wizard.Result
	h.AssertJSON(t, h.POST("/ui/wizard/start", nil, tokenA), http.StatusOK, &result)
	h.AssertJSON(t, h.POST("/ui/wizard/client", map[string]any{"client_id": 1}, tokenA), http.StatusOK, &result)

	// The second session is untouched by the first one's progress.
	var draft model.ProposalDraft
	h.AssertJSON(t, h.GET("/ui/wizard", tokenB), http.StatusOK, &draft)
	if draft.Step != model.StepListing || draft.Client != nil {
		t.Errorf("second session draft = %+v, want pristine", draft)
	}
}

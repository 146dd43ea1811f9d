// Package wizard owns the proposal-creation flow: the step machine, the
// per-session draft store, and the reset guard that purges orphaned drafts.
package wizard

import (
	"context"

	"github.com/fiscalis/proposta-bff/model"
)

// Draft field names. A draft is at most these four fields per session;
// ClearAll reports how many of them were present when it ran.
const (
	FieldStep      = "step"
	FieldClient    = "client"
	FieldTaxConfig = "tax_config"
	FieldServices  = "services"
)

// DraftStore persists in-progress proposal drafts keyed by session ID.
//
// Setters write the given value even when it is the zero value; a field once
// written stays present until ClearAll. This is deliberate: stepping back in
// the flow discards data by overwriting it with zero values, and ClearAll is
// the only operation that removes keys.
type DraftStore interface {
	// Step returns the stored wizard step, or StepListing if none was stored.
	Step(ctx context.Context, sessionID string) (model.WizardStep, error)
	SetStep(ctx context.Context, sessionID string, step model.WizardStep) error

	// Client returns the stored client selection, nil when empty.
	Client(ctx context.Context, sessionID string) (*model.ClientSelection, error)
	SetClient(ctx context.Context, sessionID string, sel *model.ClientSelection) error

	// TaxConfig returns the stored tax configuration together with the
	// activity type resolved when it was confirmed. Both are nil when empty.
	TaxConfig(ctx context.Context, sessionID string) (*model.TaxConfiguration, *model.ActivityType, error)
	SetTaxConfig(ctx context.Context, sessionID string, cfg *model.TaxConfiguration, at *model.ActivityType) error

	// Services returns the stored service selection, nil when empty.
	Services(ctx context.Context, sessionID string) ([]model.SelectedService, error)
	SetServices(ctx context.Context, sessionID string, services []model.SelectedService) error

	// HasDraftData reports whether the session holds any non-empty draft
	// data. The step field alone does not count; only client, tax config,
	// and services do.
	HasDraftData(ctx context.Context, sessionID string) (bool, error)

	// ClearAll removes every draft field of the session and returns how many
	// fields were present. Clearing an empty session returns 0 and no error.
	ClearAll(ctx context.Context, sessionID string) (int, error)

	// HealthCheck verifies the store backend is reachable.
	HealthCheck(ctx context.Context) error
}

// LoadDraft assembles the full draft of a session from its stored fields.
func LoadDraft(ctx context.Context, store DraftStore, sessionID string) (model.ProposalDraft, error) {
	var draft model.ProposalDraft

	step, err := store.Step(ctx, sessionID)
	if err != nil {
		return draft, err
	}
	client, err := store.Client(ctx, sessionID)
	if err != nil {
		return draft, err
	}
	taxConfig, activityType, err := store.TaxConfig(ctx, sessionID)
	if err != nil {
		return draft, err
	}
	services, err := store.Services(ctx, sessionID)
	if err != nil {
		return draft, err
	}

	draft.Step = step
	draft.Client = client
	draft.TaxConfig = taxConfig
	draft.ActivityType = activityType
	draft.Services = services
	return draft, nil
}

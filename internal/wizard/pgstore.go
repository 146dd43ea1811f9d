package wizard

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fiscalis/proposta-bff/model"
)

// PgDraftStore is a PostgreSQL-backed DraftStore using pgx/v5. One row per
// session; presence flags record which fields have been written so a zeroed
// field is still counted by ClearAll.
//
// Expected schema:
//
//	CREATE TABLE proposal_drafts (
//	    session_id   text PRIMARY KEY,
//	    step         text,
//	    step_set     boolean NOT NULL DEFAULT false,
//	    client       jsonb,
//	    client_set   boolean NOT NULL DEFAULT false,
//	    tax_config   jsonb,
//	    tax_set      boolean NOT NULL DEFAULT false,
//	    services     jsonb,
//	    services_set boolean NOT NULL DEFAULT false,
//	    updated_at   timestamptz NOT NULL DEFAULT now()
//	);
type PgDraftStore struct {
	pool *pgxpool.Pool
}

// NewPgDraftStore creates a PostgreSQL draft store.
func NewPgDraftStore(pool *pgxpool.Pool) *PgDraftStore {
	return &PgDraftStore{pool: pool}
}

// Step returns the stored step, or StepListing when none was stored.
func (s *PgDraftStore) Step(ctx context.Context, sessionID string) (model.WizardStep, error) {
	var name *string
	err := s.pool.QueryRow(ctx, `
		SELECT step FROM proposal_drafts
		WHERE session_id = $1 AND step_set`,
		sessionID,
	).Scan(&name)
	if err == pgx.ErrNoRows || (err == nil && name == nil) {
		return model.StepListing, nil
	}
	if err != nil {
		return model.StepListing, fmt.Errorf("query draft step: %w", err)
	}

	step, err := model.ParseWizardStep(*name)
	if err != nil {
		return model.StepListing, err
	}
	return step, nil
}

// SetStep stores the wizard step by its canonical name.
func (s *PgDraftStore) SetStep(ctx context.Context, sessionID string, step model.WizardStep) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO proposal_drafts (session_id, step, step_set, updated_at)
		VALUES ($1, $2, true, now())
		ON CONFLICT (session_id) DO UPDATE SET
			step = EXCLUDED.step,
			step_set = true,
			updated_at = now()`,
		sessionID, step.String(),
	)
	if err != nil {
		return fmt.Errorf("upsert draft step: %w", err)
	}
	return nil
}

// Client returns the stored client selection, nil when empty.
func (s *PgDraftStore) Client(ctx context.Context, sessionID string) (*model.ClientSelection, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `
		SELECT client FROM proposal_drafts
		WHERE session_id = $1 AND client_set`,
		sessionID,
	).Scan(&raw)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query draft client: %w", err)
	}
	if raw == nil {
		return nil, nil
	}

	var sel *model.ClientSelection
	if err := json.Unmarshal(raw, &sel); err != nil {
		return nil, fmt.Errorf("unmarshal draft client: %w", err)
	}
	return sel, nil
}

// SetClient stores the client selection, nil included.
func (s *PgDraftStore) SetClient(ctx context.Context, sessionID string, sel *model.ClientSelection) error {
	raw, err := json.Marshal(sel)
	if err != nil {
		return fmt.Errorf("marshal draft client: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO proposal_drafts (session_id, client, client_set, updated_at)
		VALUES ($1, $2, true, now())
		ON CONFLICT (session_id) DO UPDATE SET
			client = EXCLUDED.client,
			client_set = true,
			updated_at = now()`,
		sessionID, raw,
	)
	if err != nil {
		return fmt.Errorf("upsert draft client: %w", err)
	}
	return nil
}

// TaxConfig returns the stored tax configuration and resolved activity type.
func (s *PgDraftStore) TaxConfig(ctx context.Context, sessionID string) (*model.TaxConfiguration, *model.ActivityType, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `
		SELECT tax_config FROM proposal_drafts
		WHERE session_id = $1 AND tax_set`,
		sessionID,
	).Scan(&raw)
	if err == pgx.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("query draft tax config: %w", err)
	}
	if raw == nil {
		return nil, nil, nil
	}

	var entry taxConfigEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, nil, fmt.Errorf("unmarshal draft tax config: %w", err)
	}
	return entry.Config, entry.ActivityType, nil
}

// SetTaxConfig stores the tax configuration and its resolved activity type.
func (s *PgDraftStore) SetTaxConfig(ctx context.Context, sessionID string, cfg *model.TaxConfiguration, at *model.ActivityType) error {
	raw, err := json.Marshal(taxConfigEntry{Config: cfg, ActivityType: at})
	if err != nil {
		return fmt.Errorf("marshal draft tax config: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO proposal_drafts (session_id, tax_config, tax_set, updated_at)
		VALUES ($1, $2, true, now())
		ON CONFLICT (session_id) DO UPDATE SET
			tax_config = EXCLUDED.tax_config,
			tax_set = true,
			updated_at = now()`,
		sessionID, raw,
	)
	if err != nil {
		return fmt.Errorf("upsert draft tax config: %w", err)
	}
	return nil
}

// Services returns the stored service selection, nil when empty.
func (s *PgDraftStore) Services(ctx context.Context, sessionID string) ([]model.SelectedService, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `
		SELECT services FROM proposal_drafts
		WHERE session_id = $1 AND services_set`,
		sessionID,
	).Scan(&raw)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query draft services: %w", err)
	}
	if raw == nil {
		return nil, nil
	}

	var services []model.SelectedService
	if err := json.Unmarshal(raw, &services); err != nil {
		return nil, fmt.Errorf("unmarshal draft services: %w", err)
	}
	if len(services) == 0 {
		return nil, nil
	}
	return services, nil
}

// SetServices stores the service selection, empty slices included.
func (s *PgDraftStore) SetServices(ctx context.Context, sessionID string, services []model.SelectedService) error {
	if services == nil {
		services = []model.SelectedService{}
	}
	raw, err := json.Marshal(services)
	if err != nil {
		return fmt.Errorf("marshal draft services: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO proposal_drafts (session_id, services, services_set, updated_at)
		VALUES ($1, $2, true, now())
		ON CONFLICT (session_id) DO UPDATE SET
			services = EXCLUDED.services,
			services_set = true,
			updated_at = now()`,
		sessionID, raw,
	)
	if err != nil {
		return fmt.Errorf("upsert draft services: %w", err)
	}
	return nil
}

// HasDraftData reports whether the session holds any non-empty draft data
// beyond the step marker.
func (s *PgDraftStore) HasDraftData(ctx context.Context, sessionID string) (bool, error) {
	client, err := s.Client(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if client != nil {
		return true, nil
	}

	cfg, _, err := s.TaxConfig(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if cfg != nil {
		return true, nil
	}

	services, err := s.Services(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return len(services) > 0, nil
}

// ClearAll deletes the session row and returns how many fields it held.
func (s *PgDraftStore) ClearAll(ctx context.Context, sessionID string) (int, error) {
	var stepSet, clientSet, taxSet, servicesSet bool
	err := s.pool.QueryRow(ctx, `
		DELETE FROM proposal_drafts
		WHERE session_id = $1
		RETURNING step_set, client_set, tax_set, services_set`,
		sessionID,
	).Scan(&stepSet, &clientSet, &taxSet, &servicesSet)
	if err == pgx.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("delete draft: %w", err)
	}

	count := 0
	for _, set := range []bool{stepSet, clientSet, taxSet, servicesSet} {
		if set {
			count++
		}
	}
	return count, nil
}

// HealthCheck pings the database.
func (s *PgDraftStore) HealthCheck(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	return nil
}

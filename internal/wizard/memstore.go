package wizard

import (
	"context"
	"sync"

	"github.com/fiscalis/proposta-bff/model"
)

// draftRecord is one session's draft. Each field carries a presence flag so
// a field overwritten with its zero value is still counted by ClearAll.
type draftRecord struct {
	step    model.WizardStep
	stepSet bool

	client    *model.ClientSelection
	clientSet bool

	taxConfig    *model.TaxConfiguration
	activityType *model.ActivityType
	taxSet       bool

	services    []model.SelectedService
	servicesSet bool
}

func (r *draftRecord) presentFields() int {
	n := 0
	if r.stepSet {
		n++
	}
	if r.clientSet {
		n++
	}
	if r.taxSet {
		n++
	}
	if r.servicesSet {
		n++
	}
	return n
}

// MemoryDraftStore is an in-memory DraftStore for testing and
// single-instance deployments.
type MemoryDraftStore struct {
	mu     sync.RWMutex
	drafts map[string]*draftRecord // key: session ID
}

// NewMemoryDraftStore creates a new in-memory draft store.
func NewMemoryDraftStore() *MemoryDraftStore {
	return &MemoryDraftStore{
		drafts: make(map[string]*draftRecord),
	}
}

func (s *MemoryDraftStore) record(sessionID string) *draftRecord {
	if rec, ok := s.drafts[sessionID]; ok {
		return rec
	}
	rec := &draftRecord{}
	s.drafts[sessionID] = rec
	return rec
}

// Step returns the stored step, or StepListing when none was stored.
func (s *MemoryDraftStore) Step(_ context.Context, sessionID string) (model.WizardStep, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.drafts[sessionID]
	if !ok || !rec.stepSet {
		return model.StepListing, nil
	}
	return rec.step, nil
}

// SetStep stores the wizard step.
func (s *MemoryDraftStore) SetStep(_ context.Context, sessionID string, step model.WizardStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.record(sessionID)
	rec.step = step
	rec.stepSet = true
	return nil
}

// Client returns the stored client selection, nil when empty.
func (s *MemoryDraftStore) Client(_ context.Context, sessionID string) (*model.ClientSelection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.drafts[sessionID]
	if !ok || rec.client == nil {
		return nil, nil
	}
	sel := *rec.client
	return &sel, nil
}

// SetClient stores the client selection. A nil selection overwrites any
// previous one; the field stays present.
func (s *MemoryDraftStore) SetClient(_ context.Context, sessionID string, sel *model.ClientSelection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.record(sessionID)
	if sel == nil {
		rec.client = nil
	} else {
		cp := *sel
		rec.client = &cp
	}
	rec.clientSet = true
	return nil
}

// TaxConfig returns the stored tax configuration and resolved activity type.
func (s *MemoryDraftStore) TaxConfig(_ context.Context, sessionID string) (*model.TaxConfiguration, *model.ActivityType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.drafts[sessionID]
	if !ok {
		return nil, nil, nil
	}

	var cfg *model.TaxConfiguration
	if rec.taxConfig != nil {
		cp := *rec.taxConfig
		cfg = &cp
	}
	var at *model.ActivityType
	if rec.activityType != nil {
		cp := *rec.activityType
		at = &cp
	}
	return cfg, at, nil
}

// SetTaxConfig stores the tax configuration and its resolved activity type.
func (s *MemoryDraftStore) SetTaxConfig(_ context.Context, sessionID string, cfg *model.TaxConfiguration, at *model.ActivityType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.record(sessionID)
	if cfg == nil {
		rec.taxConfig = nil
	} else {
		cp := *cfg
		rec.taxConfig = &cp
	}
	if at == nil {
		rec.activityType = nil
	} else {
		cp := *at
		rec.activityType = &cp
	}
	rec.taxSet = true
	return nil
}

// Services returns the stored service selection, nil when empty.
func (s *MemoryDraftStore) Services(_ context.Context, sessionID string) ([]model.SelectedService, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.drafts[sessionID]
	if !ok || len(rec.services) == 0 {
		return nil, nil
	}
	out := make([]model.SelectedService, len(rec.services))
	copy(out, rec.services)
	return out, nil
}

// SetServices stores the service selection. An empty slice overwrites any
// previous selection; the field stays present.
func (s *MemoryDraftStore) SetServices(_ context.Context, sessionID string, services []model.SelectedService) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.record(sessionID)
	rec.services = make([]model.SelectedService, len(services))
	copy(rec.services, services)
	rec.servicesSet = true
	return nil
}

// HasDraftData reports whether the session holds any non-empty draft data
// beyond the step marker.
func (s *MemoryDraftStore) HasDraftData(_ context.Context, sessionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.drafts[sessionID]
	if !ok {
		return false, nil
	}
	return rec.client != nil || rec.taxConfig != nil || len(rec.services) > 0, nil
}

// ClearAll removes the session's draft and returns how many fields were
// present. Clearing an absent session returns 0.
func (s *MemoryDraftStore) ClearAll(_ context.Context, sessionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.drafts[sessionID]
	if !ok {
		return 0, nil
	}
	delete(s.drafts, sessionID)
	return rec.presentFields(), nil
}

// HealthCheck always succeeds for the in-memory store.
func (s *MemoryDraftStore) HealthCheck(_ context.Context) error {
	return nil
}

// Len returns the number of sessions with a draft record. For testing.
func (s *MemoryDraftStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.drafts)
}

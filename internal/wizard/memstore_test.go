package wizard

import (
	"context"
	"testing"

	"github.com/fiscalis/proposta-bff/model"
)

func TestMemoryDraftStore_FieldRoundtrip(t *testing.T) {
	s := NewMemoryDraftStore()
	ctx := context.Background()

	step, err := s.Step(ctx, "s1")
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if step != model.StepListing {
		t.Errorf("Step() on empty session = %v, want StepListing", step)
	}

	if err := s.SetStep(ctx, "s1", model.StepTaxConfig); err != nil {
		t.Fatalf("SetStep() error = %v", err)
	}
	if err := s.SetClient(ctx, "s1", &model.ClientSelection{ClientID: 7}); err != nil {
		t.Fatalf("SetClient() error = %v", err)
	}
	bracket := int64(3)
	cfg := model.TaxConfiguration{ActivityTypeID: 1, TaxRegimeID: 2, RevenueBracketID: &bracket}
	at := model.ActivityType{ID: 1, Code: "COM", ApplicableToCompany: true}
	if err := s.SetTaxConfig(ctx, "s1", &cfg, &at); err != nil {
		t.Fatalf("SetTaxConfig() error = %v", err)
	}
	if err := s.SetServices(ctx, "s1", []model.SelectedService{{ServiceID: 10, Quantity: 2, UnitPrice: 50, Subtotal: 100}}); err != nil {
		t.Fatalf("SetServices() error = %v", err)
	}

	step, _ = s.Step(ctx, "s1")
	if step != model.StepTaxConfig {
		t.Errorf("Step() = %v, want StepTaxConfig", step)
	}
	client, _ := s.Client(ctx, "s1")
	if client == nil || client.ClientID != 7 {
		t.Errorf("Client() = %+v, want client 7", client)
	}
	gotCfg, gotAt, _ := s.TaxConfig(ctx, "s1")
	if gotCfg == nil || gotCfg.ActivityTypeID != 1 || gotCfg.RevenueBracketID == nil || *gotCfg.RevenueBracketID != 3 {
		t.Errorf("TaxConfig() config = %+v, want activity 1 bracket 3", gotCfg)
	}
	if gotAt == nil || gotAt.Code != "COM" {
		t.Errorf("TaxConfig() activity type = %+v, want COM", gotAt)
	}
	services, _ := s.Services(ctx, "s1")
	if len(services) != 1 || services[0].ServiceID != 10 {
		t.Errorf("Services() = %+v, want one service 10", services)
	}

	// Other sessions are isolated.
	other, _ := s.Client(ctx, "s2")
	if other != nil {
		t.Errorf("Client() for other session = %+v, want nil", other)
	}
}

func TestMemoryDraftStore_ZeroWriteKeepsFieldPresent(t *testing.T) {
	s := NewMemoryDraftStore()
	ctx := context.Background()

	if err := s.SetServices(ctx, "s1", []model.SelectedService{{ServiceID: 1, Quantity: 1, UnitPrice: 10, Subtotal: 10}}); err != nil {
		t.Fatalf("SetServices() error = %v", err)
	}
	if err := s.SetServices(ctx, "s1", nil); err != nil {
		t.Fatalf("SetServices(nil) error = %v", err)
	}

	services, _ := s.Services(ctx, "s1")
	if services != nil {
		t.Errorf("Services() after zero write = %+v, want nil", services)
	}

	// The zeroed field still counts when the draft is cleared.
	count, err := s.ClearAll(ctx, "s1")
	if err != nil {
		t.Fatalf("ClearAll() error = %v", err)
	}
	if count != 1 {
		t.Errorf("ClearAll() = %d, want 1 (services field present though zeroed)", count)
	}
}

func TestMemoryDraftStore_ClearAll(t *testing.T) {
	s := NewMemoryDraftStore()
	ctx := context.Background()

	count, err := s.ClearAll(ctx, "missing")
	if err != nil {
		t.Fatalf("ClearAll() on empty session error = %v", err)
	}
	if count != 0 {
		t.Errorf("ClearAll() on empty session = %d, want 0", count)
	}

	s.SetStep(ctx, "s1", model.StepSelectClient)
	s.SetClient(ctx, "s1", &model.ClientSelection{ClientID: 1})
	s.SetTaxConfig(ctx, "s1", &model.TaxConfiguration{ActivityTypeID: 1, TaxRegimeID: 1}, nil)
	s.SetServices(ctx, "s1", []model.SelectedService{{ServiceID: 1, Quantity: 1, UnitPrice: 1, Subtotal: 1}})

	count, err = s.ClearAll(ctx, "s1")
	if err != nil {
		t.Fatalf("ClearAll() error = %v", err)
	}
	if count != 4 {
		t.Errorf("ClearAll() = %d, want 4", count)
	}
	if s.Len() != 0 {
		t.Errorf("Len() after clear = %d, want 0", s.Len())
	}

	// Clearing again is a no-op.
	count, err = s.ClearAll(ctx, "s1")
	if err != nil || count != 0 {
		t.Errorf("second ClearAll() = (%d, %v), want (0, nil)", count, err)
	}
}

func TestMemoryDraftStore_HasDraftData(t *testing.T) {
	s := NewMemoryDraftStore()
	ctx := context.Background()

	has, _ := s.HasDraftData(ctx, "s1")
	if has {
		t.Error("HasDraftData() on empty session = true, want false")
	}

	// The step marker alone is not draft data.
	s.SetStep(ctx, "s1", model.StepSelectClient)
	has, _ = s.HasDraftData(ctx, "s1")
	if has {
		t.Error("HasDraftData() with only a step = true, want false")
	}

	s.SetClient(ctx, "s1", &model.ClientSelection{ClientID: 1})
	has, _ = s.HasDraftData(ctx, "s1")
	if !has {
		t.Error("HasDraftData() with a client = false, want true")
	}

	// Zeroing the client makes the session empty again.
	s.SetClient(ctx, "s1", nil)
	has, _ = s.HasDraftData(ctx, "s1")
	if has {
		t.Error("HasDraftData() after zeroing client = true, want false")
	}
}

func TestLoadDraft(t *testing.T) {
	s := NewMemoryDraftStore()
	ctx := context.Background()

	s.SetStep(ctx, "s1", model.StepSelectServices)
	s.SetClient(ctx, "s1", &model.ClientSelection{ClientID: 9})
	s.SetTaxConfig(ctx, "s1", &model.TaxConfiguration{ActivityTypeID: 2, TaxRegimeID: 1}, &model.ActivityType{ID: 2, Code: "SRV"})

	draft, err := LoadDraft(ctx, s, "s1")
	if err != nil {
		t.Fatalf("LoadDraft() error = %v", err)
	}
	if draft.Step != model.StepSelectServices {
		t.Errorf("draft step = %v, want StepSelectServices", draft.Step)
	}
	if draft.Client == nil || draft.Client.ClientID != 9 {
		t.Errorf("draft client = %+v, want client 9", draft.Client)
	}
	if draft.ActivityType == nil || draft.ActivityType.Code != "SRV" {
		t.Errorf("draft activity type = %+v, want SRV", draft.ActivityType)
	}
	if !draft.HasData() {
		t.Error("draft.HasData() = false, want true")
	}
}

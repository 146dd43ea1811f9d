package wizard

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/fiscalis/proposta-bff/model"
)

func newRedisDraftStore(t *testing.T) (*RedisDraftStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisDraftStore(client, "draft", time.Hour), mr
}

func TestRedisDraftStore_FieldRoundtrip(t *testing.T) {
	s, _ := newRedisDraftStore(t)
	ctx := context.Background()

	step, err := s.Step(ctx, "s1")
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if step != model.StepListing {
		t.Errorf("Step() on empty session = %v, want StepListing", step)
	}

	if err := s.SetStep(ctx, "s1", model.StepSelectServices); err != nil {
		t.Fatalf("SetStep() error = %v", err)
	}
	if err := s.SetClient(ctx, "s1", &model.ClientSelection{ClientID: 42}); err != nil {
		t.Fatalf("SetClient() error = %v", err)
	}
	cfg := model.TaxConfiguration{ActivityTypeID: 5, TaxRegimeID: 2}
	at := model.ActivityType{ID: 5, Code: "IND", ApplicableToCompany: true}
	if err := s.SetTaxConfig(ctx, "s1", &cfg, &at); err != nil {
		t.Fatalf("SetTaxConfig() error = %v", err)
	}
	if err := s.SetServices(ctx, "s1", []model.SelectedService{{ServiceID: 3, Quantity: 4, UnitPrice: 25, Subtotal: 100}}); err != nil {
		t.Fatalf("SetServices() error = %v", err)
	}

	step, _ = s.Step(ctx, "s1")
	if step != model.StepSelectServices {
		t.Errorf("Step() = %v, want StepSelectServices", step)
	}
	client, _ := s.Client(ctx, "s1")
	if client == nil || client.ClientID != 42 {
		t.Errorf("Client() = %+v, want client 42", client)
	}
	gotCfg, gotAt, _ := s.TaxConfig(ctx, "s1")
	if gotCfg == nil || gotCfg.ActivityTypeID != 5 {
		t.Errorf("TaxConfig() config = %+v, want activity 5", gotCfg)
	}
	if gotAt == nil || gotAt.Code != "IND" {
		t.Errorf("TaxConfig() activity type = %+v, want IND", gotAt)
	}
	services, _ := s.Services(ctx, "s1")
	if len(services) != 1 || services[0].Subtotal != 100 {
		t.Errorf("Services() = %+v, want one service with subtotal 100", services)
	}
}

func TestRedisDraftStore_WritesRefreshTTL(t *testing.T) {
	s, mr := newRedisDraftStore(t)
	ctx := context.Background()

	if err := s.SetStep(ctx, "s1", model.StepSelectClient); err != nil {
		t.Fatalf("SetStep() error = %v", err)
	}

	ttl := mr.TTL("draft:s1")
	if ttl <= 0 || ttl > time.Hour {
		t.Errorf("key TTL = %v, want within (0, 1h]", ttl)
	}

	// An expired draft reads back as empty.
	mr.FastForward(2 * time.Hour)
	step, err := s.Step(ctx, "s1")
	if err != nil {
		t.Fatalf("Step() after expiry error = %v", err)
	}
	if step != model.StepListing {
		t.Errorf("Step() after expiry = %v, want StepListing", step)
	}
}

func TestRedisDraftStore_ClearAllCountsFields(t *testing.T) {
	s, _ := newRedisDraftStore(t)
	ctx := context.Background()

	count, err := s.ClearAll(ctx, "missing")
	if err != nil || count != 0 {
		t.Errorf("ClearAll() on empty session = (%d, %v), want (0, nil)", count, err)
	}

	s.SetStep(ctx, "s1", model.StepTaxConfig)
	s.SetClient(ctx, "s1", &model.ClientSelection{ClientID: 1})
	// Zeroed via a setter: the hash field stays and is still counted.
	s.SetServices(ctx, "s1", nil)

	count, err = s.ClearAll(ctx, "s1")
	if err != nil {
		t.Fatalf("ClearAll() error = %v", err)
	}
	if count != 3 {
		t.Errorf("ClearAll() = %d, want 3", count)
	}

	has, _ := s.HasDraftData(ctx, "s1")
	if has {
		t.Error("HasDraftData() after clear = true, want false")
	}
}

func TestRedisDraftStore_HasDraftData(t *testing.T) {
	s, _ := newRedisDraftStore(t)
	ctx := context.Background()

	s.SetStep(ctx, "s1", model.StepSelectClient)
	has, _ := s.HasDraftData(ctx, "s1")
	if has {
		t.Error("HasDraftData() with only a step = true, want false")
	}

	s.SetTaxConfig(ctx, "s1", &model.TaxConfiguration{ActivityTypeID: 1, TaxRegimeID: 1}, nil)
	has, _ = s.HasDraftData(ctx, "s1")
	if !has {
		t.Error("HasDraftData() with a tax config = false, want true")
	}

	s.SetTaxConfig(ctx, "s1", nil, nil)
	has, _ = s.HasDraftData(ctx, "s1")
	if has {
		t.Error("HasDraftData() after zeroing tax config = true, want false")
	}
}

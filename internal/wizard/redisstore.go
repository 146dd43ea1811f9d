package wizard

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fiscalis/proposta-bff/model"
)

// RedisDraftStore keeps each session's draft in a Redis hash, one hash field
// per draft field. Every write refreshes the key TTL so abandoned drafts
// eventually expire even if ClearAll never runs.
type RedisDraftStore struct {
	client    redis.Cmdable
	keyPrefix string
	ttl       time.Duration
}

// NewRedisDraftStore creates a Redis-backed draft store.
func NewRedisDraftStore(client redis.Cmdable, keyPrefix string, ttl time.Duration) *RedisDraftStore {
	if keyPrefix == "" {
		keyPrefix = "draft"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisDraftStore{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

func (s *RedisDraftStore) key(sessionID string) string {
	return fmt.Sprintf("%s:%s", s.keyPrefix, sessionID)
}

func (s *RedisDraftStore) setField(ctx context.Context, sessionID, field string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal draft field %q: %w", field, err)
	}

	key := s.key(sessionID)
	if err := s.client.HSet(ctx, key, field, data).Err(); err != nil {
		return fmt.Errorf("redis hset %q: %w", key, err)
	}
	if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis expire %q: %w", key, err)
	}
	return nil
}

func (s *RedisDraftStore) getField(ctx context.Context, sessionID, field string, out any) (bool, error) {
	raw, err := s.client.HGet(ctx, s.key(sessionID), field).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis hget %q: %w", s.key(sessionID), err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("unmarshal draft field %q: %w", field, err)
	}
	return true, nil
}

// Step returns the stored step, or StepListing when none was stored.
func (s *RedisDraftStore) Step(ctx context.Context, sessionID string) (model.WizardStep, error) {
	var name string
	found, err := s.getField(ctx, sessionID, FieldStep, &name)
	if err != nil || !found {
		return model.StepListing, err
	}
	step, err := model.ParseWizardStep(name)
	if err != nil {
		return model.StepListing, err
	}
	return step, nil
}

// SetStep stores the wizard step by its canonical name.
func (s *RedisDraftStore) SetStep(ctx context.Context, sessionID string, step model.WizardStep) error {
	return s.setField(ctx, sessionID, FieldStep, step.String())
}

// Client returns the stored client selection, nil when empty.
func (s *RedisDraftStore) Client(ctx context.Context, sessionID string) (*model.ClientSelection, error) {
	var sel *model.ClientSelection
	if _, err := s.getField(ctx, sessionID, FieldClient, &sel); err != nil {
		return nil, err
	}
	return sel, nil
}

// SetClient stores the client selection. nil is stored as JSON null so the
// field stays present in the hash.
func (s *RedisDraftStore) SetClient(ctx context.Context, sessionID string, sel *model.ClientSelection) error {
	return s.setField(ctx, sessionID, FieldClient, sel)
}

// taxConfigEntry is the stored value of the tax_config field.
type taxConfigEntry struct {
	Config       *model.TaxConfiguration `json:"config"`
	ActivityType *model.ActivityType     `json:"activity_type"`
}

// TaxConfig returns the stored tax configuration and resolved activity type.
func (s *RedisDraftStore) TaxConfig(ctx context.Context, sessionID string) (*model.TaxConfiguration, *model.ActivityType, error) {
	var entry taxConfigEntry
	found, err := s.getField(ctx, sessionID, FieldTaxConfig, &entry)
	if err != nil || !found {
		return nil, nil, err
	}
	return entry.Config, entry.ActivityType, nil
}

// SetTaxConfig stores the tax configuration and its resolved activity type.
func (s *RedisDraftStore) SetTaxConfig(ctx context.Context, sessionID string, cfg *model.TaxConfiguration, at *model.ActivityType) error {
	return s.setField(ctx, sessionID, FieldTaxConfig, taxConfigEntry{Config: cfg, ActivityType: at})
}

// Services returns the stored service selection, nil when empty.
func (s *RedisDraftStore) Services(ctx context.Context, sessionID string) ([]model.SelectedService, error) {
	var services []model.SelectedService
	if _, err := s.getField(ctx, sessionID, FieldServices, &services); err != nil {
		return nil, err
	}
	if len(services) == 0 {
		return nil, nil
	}
	return services, nil
}

// SetServices stores the service selection, empty slices included.
func (s *RedisDraftStore) SetServices(ctx context.Context, sessionID string, services []model.SelectedService) error {
	if services == nil {
		services = []model.SelectedService{}
	}
	return s.setField(ctx, sessionID, FieldServices, services)
}

// HasDraftData reports whether the session holds any non-empty draft data
// beyond the step marker.
func (s *RedisDraftStore) HasDraftData(ctx context.Context, sessionID string) (bool, error) {
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

// ClearAll deletes the session hash and returns how many fields it held.
func (s *RedisDraftStore) ClearAll(ctx context.Context, sessionID string) (int, error) {
	key := s.key(sessionID)

	count, err := s.client.HLen(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis hlen %q: %w", key, err)
	}
	if count == 0 {
		return 0, nil
	}
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return 0, fmt.Errorf("redis del %q: %w", key, err)
	}
	return int(count), nil
}

// HealthCheck pings the Redis backend.
func (s *RedisDraftStore) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

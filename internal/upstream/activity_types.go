package upstream

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/fiscalis/proposta-bff/model"
)

// activityTypeCache caches the full activity-type catalog. The catalog is
// small and changes rarely, so a single entry with a TTL is enough.
type activityTypeCache struct {
	mu        sync.RWMutex
	ttl       time.Duration
	fetchedAt time.Time
	byID      map[int64]model.ActivityType
}

func newActivityTypeCache(ttl time.Duration) *activityTypeCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &activityTypeCache{ttl: ttl}
}

func (c *activityTypeCache) get(id int64) (model.ActivityType, bool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.byID == nil || time.Since(c.fetchedAt) > c.ttl {
		return model.ActivityType{}, false, false
	}
	at, ok := c.byID[id]
	return at, ok, true
}

func (c *activityTypeCache) put(types []model.ActivityType) {
	byID := make(map[int64]model.ActivityType, len(types))
	for _, at := range types {
		byID[at.ID] = at
	}
	c.mu.Lock()
	c.byID = byID
	c.fetchedAt = time.Now()
	c.mu.Unlock()
}

// ListActivityTypes returns the activity-type catalog, from cache when fresh.
func (c *Client) ListActivityTypes(ctx context.Context, rctx *model.RequestContext) ([]model.ActivityType, error) {
	c.activityTypes.mu.RLock()
	fresh := c.activityTypes.byID != nil && time.Since(c.activityTypes.fetchedAt) <= c.activityTypes.ttl
	var cached []model.ActivityType
	if fresh {
		cached = make([]model.ActivityType, 0, len(c.activityTypes.byID))
		for _, at := range c.activityTypes.byID {
			cached = append(cached, at)
		}
	}
	c.activityTypes.mu.RUnlock()
	if fresh {
		if c.metrics != nil {
			c.metrics.RecordActivityTypeCacheHit()
		}
		return cached, nil
	}

	types, err := c.fetchActivityTypes(ctx, rctx)
	if err != nil {
		return nil, err
	}
	return types, nil
}

// ResolveActivityType looks up an activity type by ID and classifies its
// applicability to company clients. Lookup failures and unknown IDs both map
// to ApplicabilityUnknown; the caller decides whether to proceed or block.
func (c *Client) ResolveActivityType(
	ctx context.Context,
	rctx *model.RequestContext,
	id int64,
) (model.ActivityType, model.Applicability) {
	if at, ok, fresh := c.activityTypes.get(id); fresh {
		if c.metrics != nil {
			c.metrics.RecordActivityTypeCacheHit()
		}
		if !ok {
			return model.ActivityType{}, model.ApplicabilityUnknown
		}
		return at, classifyApplicability(at)
	}

	if _, err := c.fetchActivityTypes(ctx, rctx); err != nil {
		slog.Warn("upstream: activity type lookup failed",
			"activity_type_id", id,
			"error", err,
		)
		return model.ActivityType{}, model.ApplicabilityUnknown
	}

	at, ok, _ := c.activityTypes.get(id)
	if !ok {
		return model.ActivityType{}, model.ApplicabilityUnknown
	}
	return at, classifyApplicability(at)
}

func classifyApplicability(at model.ActivityType) model.Applicability {
	if at.ApplicableToCompany {
		return model.Applicable
	}
	return model.NotApplicable
}

func (c *Client) fetchActivityTypes(ctx context.Context, rctx *model.RequestContext) ([]model.ActivityType, error) {
	if c.metrics != nil {
		c.metrics.RecordActivityTypeCacheMiss()
	}

	body, err := c.do(ctx, rctx, "activity_types", http.MethodGet, "/tipos-atividade", true, nil)
	if err != nil {
		return nil, err
	}
	types, err := decodeList[model.ActivityType](body)
	if err != nil {
		return nil, err
	}
	c.activityTypes.put(types)
	return types, nil
}

// Package notification fetches the caller's notifications and turns
// proposal-linked ones into navigation intents when opened.
package notification

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fiscalis/proposta-bff/internal/observability"
	"github.com/fiscalis/proposta-bff/model"
)

// Backend is the slice of the accounting API the router needs.
type Backend interface {
	ListNotifications(ctx context.Context, rctx *model.RequestContext) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, rctx *model.RequestContext, id int64) error
	MarkAllNotificationsRead(ctx context.Context, rctx *model.RequestContext) error
}

// IntentSink receives navigation intents for a session.
type IntentSink interface {
	DeliverIntent(sessionID string, intent model.NavigationIntent)
}

// Feed is a notifications listing plus its unread count.
type Feed struct {
	Notifications []model.Notification `json:"notifications"`
	UnreadCount   int                  `json:"unread_count"`
}

// OpenResult reports what happened when a notification was opened.
type OpenResult struct {
	Notification model.Notification      `json:"notification"`
	Intent       *model.NavigationIntent `json:"intent,omitempty"`
}

// Router serves the notification feed and routes proposal-linked
// notifications to the proposals page when opened.
type Router struct {
	backend Backend
	intents IntentSink
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewRouter creates a notification router.
func NewRouter(backend Backend, intents IntentSink, metrics *observability.Metrics, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		backend: backend,
		intents: intents,
		metrics: metrics,
		logger:  logger,
	}
}

// Fetch returns the caller's notification feed. Inactive notifications are
// filtered out; the unread count covers only what is returned.
func (r *Router) Fetch(ctx context.Context, rctx *model.RequestContext) (Feed, error) {
	all, err := r.backend.ListNotifications(ctx, rctx)
	if err != nil {
		r.recordFetch(rctx, "error", 0)
		return Feed{}, err
	}

	feed := Feed{Notifications: make([]model.Notification, 0, len(all))}
	for _, n := range all {
		if !n.Active {
			continue
		}
		feed.Notifications = append(feed.Notifications, n)
		if !n.IsRead {
			feed.UnreadCount++
		}
	}

	r.recordFetch(rctx, "success", feed.UnreadCount)
	return feed, nil
}

// Open marks the notification read and, when it links to a proposal, delivers
// a navigation intent that sends the session to the proposals page with the
// proposal's detail modal open. Opening an already-read notification still
// routes; the upstream mark-read is idempotent.
func (r *Router) Open(ctx context.Context, rctx *model.RequestContext, id int64) (OpenResult, error) {
	notif, err := r.find(ctx, rctx, id)
	if err != nil {
		return OpenResult{}, err
	}

	if err := r.backend.MarkNotificationRead(ctx, rctx, id); err != nil {
		return OpenResult{}, err
	}
	notif.IsRead = true

	result := OpenResult{Notification: notif}
	if notif.ProposalID != nil {
		intent := model.NavigationIntent{
			TargetPage: model.PageProposals,
			Options: model.NavigationOptions{
				OpenModal:  true,
				ProposalID: notif.ProposalID,
			},
		}
		r.intents.DeliverIntent(rctx.SessionID, intent)
		result.Intent = &intent

		r.logger.Info("notification routed to proposal",
			zap.String("session_id", rctx.SessionID),
			zap.Int64("notification_id", id),
			zap.Int64("proposal_id", *notif.ProposalID),
		)
	}

	return result, nil
}

// MarkRead marks one notification as read without routing anywhere.
func (r *Router) MarkRead(ctx context.Context, rctx *model.RequestContext, id int64) error {
	if _, err := r.find(ctx, rctx, id); err != nil {
		return err
	}
	return r.backend.MarkNotificationRead(ctx, rctx, id)
}

// MarkAllRead marks the caller's whole feed as read.
func (r *Router) MarkAllRead(ctx context.Context, rctx *model.RequestContext) error {
	if err := r.backend.MarkAllNotificationsRead(ctx, rctx); err != nil {
		return err
	}
	r.recordFetch(rctx, "success", 0)
	return nil
}

// find locates one notification in the caller's feed. Notifications of other
// recipients read as not found.
func (r *Router) find(ctx context.Context, rctx *model.RequestContext, id int64) (model.Notification, error) {
	all, err := r.backend.ListNotifications(ctx, rctx)
	if err != nil {
		return model.Notification{}, err
	}
	for _, n := range all {
		if n.ID == id && n.Active {
			return n, nil
		}
	}
	return model.Notification{}, model.NewNotFoundError(
		fmt.Sprintf("notification %d not found", id),
	)
}

func (r *Router) recordFetch(rctx *model.RequestContext, result string, unread int) {
	if r.metrics == nil {
		return
	}
	r.metrics.RecordNotificationFetch(rctx.EmployeeID, result, unread)
}

package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/fiscalis/proposta-bff/model"
)

// ListNotifications returns the caller's notifications, newest first as
// served by the backend.
func (c *Client) ListNotifications(ctx context.Context, rctx *model.RequestContext) ([]model.Notification, error) {
	body, err := c.do(ctx, rctx, "notifications", http.MethodGet, "/notificacoes", true, nil)
	if err != nil {
		return nil, err
	}
	return decodeList[model.Notification](body)
}

// MarkNotificationRead marks a single notification as read. Marking an
// already-read notification is accepted upstream, so repeat calls are safe.
func (c *Client) MarkNotificationRead(ctx context.Context, rctx *model.RequestContext, id int64) error {
	_, err := c.do(ctx, rctx, "notifications", http.MethodPost, fmt.Sprintf("/notificacoes/%d/ler", id), true, nil)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.Status == http.StatusNotFound {
			return model.NewNotFoundError(fmt.Sprintf("notification %d not found", id))
		}
		return err
	}
	return nil
}

// MarkAllNotificationsRead marks every notification of the caller as read.
func (c *Client) MarkAllNotificationsRead(ctx context.Context, rctx *model.RequestContext) error {
	_, err := c.do(ctx, rctx, "notifications", http.MethodPost, "/notificacoes/ler-todas", true, nil)
	return err
}

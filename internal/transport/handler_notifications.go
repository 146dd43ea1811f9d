package transport

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fiscalis/proposta-bff/model"
)

func (h *handlers) notificationsFeed(w http.ResponseWriter, r *http.Request) {
	rctx := model.MustRequestContext(r.Context())

	feed, err := h.deps.Notifications.Fetch(r.Context(), rctx)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, feed)
}

// notificationsOpen handles a click on a notification: mark it read and, for
// proposal-linked ones, hand the session a deep link to the proposals page.
func (h *handlers) notificationsOpen(w http.ResponseWriter, r *http.Request) {
	rctx := model.MustRequestContext(r.Context())

	var req struct {
		NotificationID int64 `json:"notification_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if req.NotificationID <= 0 {
		WriteValidationError(w, []model.FieldError{
			{Field: "notification_id", Message: "notification_id must be positive"},
		})
		return
	}

	result, err := h.deps.Notifications.Open(r.Context(), rctx, req.NotificationID)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// notificationsClose handles the notification panel being dismissed, which
// marks the whole feed as read.
func (h *handlers) notificationsClose(w http.ResponseWriter, r *http.Request) {
	rctx := model.MustRequestContext(r.Context())

	if err := h.deps.Notifications.MarkAllRead(r.Context(), rctx); err != nil {
		WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) notificationsMarkRead(w http.ResponseWriter, r *http.Request) {
	rctx := model.MustRequestContext(r.Context())

	id, err := strconv.ParseInt(chi.URLParam(r, "notificationId"), 10, 64)
	if err != nil || id <= 0 {
		WriteError(w, model.NewBadRequestError("Invalid notification ID"))
		return
	}

	if err := h.deps.Notifications.MarkRead(r.Context(), rctx, id); err != nil {
		WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) notificationsMarkAllRead(w http.ResponseWriter, r *http.Request) {
	rctx := model.MustRequestContext(r.Context())

	if err := h.deps.Notifications.MarkAllRead(r.Context(), rctx); err != nil {
		WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

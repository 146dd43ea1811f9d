package transport

import (
	"net/http"

	"github.com/fiscalis/proposta-bff/model"
)

// navigationState reports the session's registered page and hands over any
// pending navigation intent. The intent is consumed by this read: acting on
// it is the client's job, and a repeat poll sees nothing.
func (h *handlers) navigationState(w http.ResponseWriter, r *http.Request) {
	rctx := model.MustRequestContext(r.Context())

	type response struct {
		CurrentPage string                  `json:"current_page"`
		Intent      *model.NavigationIntent `json:"intent,omitempty"`
	}
	WriteJSON(w, http.StatusOK, response{
		CurrentPage: h.deps.Navigator.CurrentPage(rctx.SessionID),
		Intent:      h.deps.Navigator.ConsumeIntent(rctx.SessionID),
	})
}

// navigationSetPage registers the page the session navigated to. The reset
// guard runs as a subscriber of this change.
func (h *handlers) navigationSetPage(w http.ResponseWriter, r *http.Request) {
	rctx := model.MustRequestContext(r.Context())

	var req struct {
		Page string `json:"page"`
	}
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if req.Page == "" {
		WriteValidationError(w, []model.FieldError{
			{Field: "page", Message: "page is required"},
		})
		return
	}

	h.deps.Navigator.SetCurrentPage(r.Context(), rctx.SessionID, req.Page)
	w.WriteHeader(http.StatusNoContent)
}

// navigationDeliverIntent lets any initiator (a dashboard quick action, for
// one) push a navigation intent into the session, the same handoff a
// notification click uses.
func (h *handlers) navigationDeliverIntent(w http.ResponseWriter, r *http.Request) {
	rctx := model.MustRequestContext(r.Context())

	var intent model.NavigationIntent
	if err := decodeBody(r, &intent); err != nil {
		WriteError(w, err)
		return
	}
	if intent.TargetPage == "" {
		WriteValidationError(w, []model.FieldError{
			{Field: "target_page", Message: "target_page is required"},
		})
		return
	}

	h.deps.Navigator.DeliverIntent(rctx.SessionID, intent)
	w.WriteHeader(http.StatusAccepted)
}

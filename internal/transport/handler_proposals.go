package transport

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fiscalis/proposta-bff/model"
)

func (h *handlers) listProposals(w http.ResponseWriter, r *http.Request) {
	rctx := model.MustRequestContext(r.Context())

	listing, err := h.deps.Upstream.ListProposals(r.Context(), rctx)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, listing)
}

func (h *handlers) getProposal(w http.ResponseWriter, r *http.Request) {
	rctx := model.MustRequestContext(r.Context())

	id, err := strconv.ParseInt(chi.URLParam(r, "proposalId"), 10, 64)
	if err != nil || id <= 0 {
		WriteError(w, model.NewBadRequestError("Invalid proposal ID"))
		return
	}

	proposal, err := h.deps.Upstream.GetProposal(r.Context(), rctx, id)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, proposal)
}

func (h *handlers) listClients(w http.ResponseWriter, r *http.Request) {
	rctx := model.MustRequestContext(r.Context())

	clients, err := h.deps.Upstream.ListClients(r.Context(), rctx)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"clients": clients})
}

func (h *handlers) listActivityTypes(w http.ResponseWriter, r *http.Request) {
	rctx := model.MustRequestContext(r.Context())

	types, err := h.deps.Upstream.ListActivityTypes(r.Context(), rctx)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"activity_types": types})
}

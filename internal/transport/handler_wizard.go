package transport

import (
	"encoding/json"
	"net/http"

	"github.com/fiscalis/proposta-bff/model"
)

// decodeBody parses a JSON request body into out, rejecting unknown fields.
// Payloads are typed at this boundary; nothing downstream sees raw JSON.
func decodeBody(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return model.NewBadRequestError("Invalid request body: " + err.Error())
	}
	return nil
}

// wizardState returns the session's current step and draft, so a page reload
// resumes in-progress work.
func (h *handlers) wizardState(w http.ResponseWriter, r *http.Request) {
	rctx := model.MustRequestContext(r.Context())

	draft, err := h.deps.Engine.Current(r.Context(), rctx)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, draft)
}

func (h *handlers) wizardStart(w http.ResponseWriter, r *http.Request) {
	rctx := model.MustRequestContext(r.Context())

	result, err := h.deps.Engine.Start(r.Context(), rctx)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

func (h *handlers) wizardConfirmClient(w http.ResponseWriter, r *http.Request) {
	rctx := model.MustRequestContext(r.Context())

	var sel model.ClientSelection
	if err := decodeBody(r, &sel); err != nil {
		WriteError(w, err)
		return
	}
	if sel.ClientID <= 0 {
		WriteValidationError(w, []model.FieldError{
			{Field: "client_id", Message: "client_id must be positive"},
		})
		return
	}

	result, err := h.deps.Engine.ConfirmClient(r.Context(), rctx, sel)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

func (h *handlers) wizardConfirmTaxConfig(w http.ResponseWriter, r *http.Request) {
	rctx := model.MustRequestContext(r.Context())

	var cfg model.TaxConfiguration
	if err := decodeBody(r, &cfg); err != nil {
		WriteError(w, err)
		return
	}
	var details []model.FieldError
	if cfg.ActivityTypeID <= 0 {
		details = append(details, model.FieldError{Field: "activity_type_id", Message: "activity_type_id must be positive"})
	}
	if cfg.TaxRegimeID <= 0 {
		details = append(details, model.FieldError{Field: "tax_regime_id", Message: "tax_regime_id must be positive"})
	}
	if len(details) > 0 {
		WriteValidationError(w, details)
		return
	}

	result, err := h.deps.Engine.ConfirmTaxConfig(r.Context(), rctx, cfg)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

func (h *handlers) wizardConfirmServices(w http.ResponseWriter, r *http.Request) {
	rctx := model.MustRequestContext(r.Context())

	var req struct {
		Services []model.SelectedService `json:"services"`
	}
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, err)
		return
	}

	result, err := h.deps.Engine.ConfirmServices(r.Context(), rctx, req.Services)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

func (h *handlers) wizardBack(w http.ResponseWriter, r *http.Request) {
	rctx := model.MustRequestContext(r.Context())

	result, err := h.deps.Engine.Back(r.Context(), rctx)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

func (h *handlers) wizardCancel(w http.ResponseWriter, r *http.Request) {
	rctx := model.MustRequestContext(r.Context())

	result, err := h.deps.Engine.Cancel(r.Context(), rctx)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

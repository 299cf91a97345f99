package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hexrift/licensor/internal/api/middleware"
	"github.com/hexrift/licensor/internal/api/request"
	"github.com/hexrift/licensor/internal/api/response"
	"github.com/hexrift/licensor/internal/core"
	"github.com/hexrift/licensor/internal/model"
	"github.com/hexrift/licensor/internal/store"
)

// License handles the staff license management endpoints.
type License struct {
	svc    *core.LicenseService
	issuer *core.Issuer
	reset  *core.ResetManager
}

// NewLicense creates a new License handler.
func NewLicense(svc *core.LicenseService, issuer *core.Issuer, reset *core.ResetManager) *License {
	return &License{svc: svc, issuer: issuer, reset: reset}
}

// IssueBatch creates a batch of licenses. Partial failures are reported
// per index; created siblings are kept.
func (h *License) IssueBatch(w http.ResponseWriter, r *http.Request) {
	var req request.IssueBatch
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.issuer.IssueBatch(r.Context(), req.Product, req.Quantity, req.DurationDays, req.Owner)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	type issued struct {
		Index     int        `json:"index"`
		ID        string     `json:"id"`
		Key       string     `json:"key"`
		ExpiresAt *time.Time `json:"expires_at,omitempty"`
	}
	type failed struct {
		Index int    `json:"index"`
		Error string `json:"error"`
	}

	resp := struct {
		Licenses []issued `json:"licenses"`
		Errors   []failed `json:"errors,omitempty"`
	}{Licenses: []issued{}}

	for _, item := range result.Licenses {
		resp.Licenses = append(resp.Licenses, issued{
			Index:     item.Index,
			ID:        item.License.ID,
			Key:       item.License.Key,
			ExpiresAt: item.License.ExpiresAt,
		})
	}
	for _, item := range result.Errors {
		resp.Errors = append(resp.Errors, failed{Index: item.Index, Error: item.Err.Error()})
	}

	status := http.StatusCreated
	if len(resp.Licenses) == 0 {
		status = http.StatusInternalServerError
	}
	response.WriteJSON(w, status, resp)
}

// List lists licenses with optional product/owner filters and cursor
// pagination.
func (h *License) List(w http.ResponseWriter, r *http.Request) {
	pg := request.ParsePagination(r)
	filter := store.ListFilter{
		Product:  r.URL.Query().Get("product"),
		OwnerRef: r.URL.Query().Get("owner"),
		Limit:    pg.Limit,
		Cursor:   pg.Cursor,
	}

	licenses, hasMore, err := h.svc.List(r.Context(), filter)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var nextCursor string
	if hasMore && len(licenses) > 0 {
		nextCursor = licenses[len(licenses)-1].ID
	}
	response.WritePaginated(w, http.StatusOK, licenses, nextCursor, hasMore)
}

// Get retrieves a license by ID.
func (h *License) Get(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	lic, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, lic)
}

// Delete removes a license.
func (h *License) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Ban marks a license banned with a reason.
func (h *License) Ban(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req request.BanLicense
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	lic, err := h.svc.Ban(r.Context(), id, req.Reason)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, lic)
}

// Unban clears a license's ban.
func (h *License) Unban(w http.ResponseWriter, r *http.Request) {
	h.simpleMutation(w, r, h.svc.Unban)
}

// Activate re-enables a license.
func (h *License) Activate(w http.ResponseWriter, r *http.Request) {
	h.simpleMutation(w, r, h.svc.Activate)
}

// Deactivate disables a license.
func (h *License) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.simpleMutation(w, r, h.svc.Deactivate)
}

// AssignOwner sets or clears the license owner.
func (h *License) AssignOwner(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req request.AssignOwner
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	lic, err := h.svc.AssignOwner(r.Context(), id, req.Owner)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, lic)
}

// ResetHWID clears a license's hardware binding. The requester identity is
// the authenticated admin key; the privileged flag bypasses cooldown and
// quota.
func (h *License) ResetHWID(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req request.ResetHWID
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	requester := core.Requester{IsPrivileged: req.Privileged}
	if identity := middleware.IdentityFromContext(r.Context()); identity != nil {
		requester.ID = identity.ID
	}

	result, err := h.reset.Reset(r.Context(), id, requester)
	if err != nil {
		if errors.Is(err, core.ErrStoreUnavailable) {
			response.WriteError(w, http.StatusServiceUnavailable, "reset temporarily unavailable")
			return
		}
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	type resetResponse struct {
		Success    bool   `json:"success"`
		Reason     string `json:"reason,omitempty"`
		RetryAfter string `json:"retry_after,omitempty"`
	}

	if result.Success {
		response.WriteJSON(w, http.StatusOK, resetResponse{Success: true})
		return
	}

	resp := resetResponse{Success: false, Reason: string(result.Reason)}
	status := http.StatusForbidden
	switch result.Reason {
	case core.ReasonNotFound:
		status = http.StatusNotFound
	case core.ReasonCooldownActive:
		status = http.StatusTooManyRequests
		resp.RetryAfter = result.RetryAfter.String()
	}
	response.WriteJSON(w, status, resp)
}

func (h *License) simpleMutation(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id string) (*model.License, error)) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	lic, err := fn(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, lic)
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		response.WriteError(w, http.StatusNotFound, "license not found")
	case errors.Is(err, core.ErrStoreUnavailable):
		response.WriteError(w, http.StatusServiceUnavailable, "store temporarily unavailable")
	default:
		response.WriteError(w, http.StatusInternalServerError, err.Error())
	}
}

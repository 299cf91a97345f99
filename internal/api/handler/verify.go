package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/hexrift/licensor/internal/api/request"
	"github.com/hexrift/licensor/internal/api/response"
	"github.com/hexrift/licensor/internal/core"
	"github.com/hexrift/licensor/internal/metrics"
	"github.com/hexrift/licensor/internal/model"
)

// Verify handles the public license verification endpoint.
type Verify struct {
	engine *core.Engine
}

// NewVerify creates a new Verify handler.
func NewVerify(engine *core.Engine) *Verify {
	return &Verify{engine: engine}
}

// verifyResponse is the wire shape license clients consume.
type verifyResponse struct {
	Valid      bool       `json:"valid"`
	NewBinding bool       `json:"new_binding,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	BanReason  string     `json:"ban_reason,omitempty"`
	Key        string     `json:"key,omitempty"`
	Product    string     `json:"product,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// Post runs the verify/bind decision for a client-presented key and HWID.
// Business rejections are 200 responses with valid=false; only
// infrastructure failures surface as 5xx.
func (h *Verify) Post(w http.ResponseWriter, r *http.Request) {
	var req request.VerifyLicense
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.engine.Verify(r.Context(), req.Key, req.HWID, req.Product)
	if err != nil {
		if errors.Is(err, core.ErrStoreUnavailable) {
			metrics.RecordVerify("store_unavailable")
			response.WriteError(w, http.StatusServiceUnavailable, "verification temporarily unavailable")
			return
		}
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if !result.Valid {
		metrics.RecordVerify(string(result.Reason))
		response.WriteJSON(w, http.StatusOK, verifyResponse{
			Valid:     false,
			Reason:    string(result.Reason),
			BanReason: result.BanReason,
		})
		return
	}

	if result.NewBinding {
		metrics.RecordVerify("bound")
	} else {
		metrics.RecordVerify("verified")
	}
	response.WriteJSON(w, http.StatusOK, verifyResponse{
		Valid:      true,
		NewBinding: result.NewBinding,
		Key:        model.MaskKey(result.License.Key),
		Product:    result.License.Product,
		ExpiresAt:  result.License.ExpiresAt,
	})
}

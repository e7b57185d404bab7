package handlers

import (
	"anchor/internal/domain"
	"anchor/internal/service"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type submitIntentRequest struct {
	UserAddress string          `json:"userAddress"`
	FromToken   string          `json:"fromToken"`
	ToToken     string          `json:"toToken"`
	FromChain   string          `json:"fromChain"`
	ToChain     string          `json:"toChain"`
	Amount      decimal.Decimal `json:"amount"` // "100.5" or 100.5
	Recipient   string          `json:"recipient,omitempty"`
}

type submitIntentResponse struct {
	IntentID string        `json:"intentId"`
	Status   domain.Status `json:"status"`
}

func (h *Handler) SubmitIntent(w http.ResponseWriter, r *http.Request) {
	var req submitIntentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.failErr(w, r, err)
		return
	}

	id, err := h.svc.SubmitIntent(r.Context(), &domain.SwapIntent{
		UserAddress: req.UserAddress,
		FromToken:   req.FromToken,
		ToToken:     req.ToToken,
		FromChain:   req.FromChain,
		ToChain:     req.ToChain,
		Amount:      req.Amount,
		Recipient:   req.Recipient,
	}, service.SourceHTTP)
	if err != nil {
		h.failErr(w, r, err)
		return
	}

	h.ok(w, http.StatusCreated, submitIntentResponse{IntentID: id, Status: domain.StatusPending})
}

// ListIntents supports ?status=pending|matched|settled|failed
func (h *Handler) ListIntents(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListIntents(r.Context(), domain.Status(r.URL.Query().Get("status")))
	if err != nil {
		h.failErr(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, list)
}

func (h *Handler) GetIntent(w http.ResponseWriter, r *http.Request) {
	in, err := h.svc.GetIntent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.failErr(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, in)
}

func (h *Handler) QueueStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.QueueStats(r.Context())
	if err != nil {
		h.failErr(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, st)
}

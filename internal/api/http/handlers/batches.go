package handlers

import (
	"anchor/internal/domain"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type processBatchResponse struct {
	Processed bool                 `json:"processed"`
	BatchID   string               `json:"batchId,omitempty"`
	Summary   *domain.BatchSummary `json:"summary,omitempty"`
	Reason    string               `json:"reason,omitempty"`
}

// ProcessBatch triggers one cycle now; an empty queue is not an error
func (h *Handler) ProcessBatch(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ProcessBatch(r.Context())
	if errors.Is(err, domain.ErrNoPendingIntents) {
		h.ok(w, http.StatusOK, processBatchResponse{Reason: err.Error()})
		return
	}
	if err != nil {
		h.failErr(w, r, err)
		return
	}

	h.ok(w, http.StatusOK, processBatchResponse{Processed: true, BatchID: res.BatchID, Summary: &res.Summary})
}

func (h *Handler) LatestBatch(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.LatestBatch(r.Context())
	if err != nil {
		h.failErr(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, res.Summary)
}

func (h *Handler) BatchSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.GetSummary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.failErr(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, sum)
}

// BatchProofs returns intentId -> proofs, or a single intent's proofs with ?intentId=
func (h *Handler) BatchProofs(w http.ResponseWriter, r *http.Request) {
	proofs, err := h.svc.GetProofs(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.failErr(w, r, err)
		return
	}

	intentID := r.URL.Query().Get("intentId")
	if intentID == "" {
		h.ok(w, http.StatusOK, proofs)
		return
	}

	list, ok := proofs[intentID]
	if !ok {
		h.fail(w, r, http.StatusNotFound, "not_found", "intent "+intentID+" is not part of the batch", nil)
		return
	}
	h.ok(w, http.StatusOK, list)
}

type settledResponse struct {
	BatchID string `json:"batchId"`
	Settled int    `json:"settled"`
}

func (h *Handler) ConfirmSettlement(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	n, err := h.svc.ConfirmSettlement(r.Context(), id)
	if err != nil {
		h.failErr(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, settledResponse{BatchID: id, Settled: n})
}

type verifyProofRequest struct {
	Swap  *domain.MatchedSwap `json:"swap,omitempty"` // optional, rehashed and compared with proof.leaf
	Proof domain.MerkleProof  `json:"proof"`
	Root  string              `json:"root"`
}

func (h *Handler) VerifyProof(w http.ResponseWriter, r *http.Request) {
	var req verifyProofRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, http.StatusBadRequest, "bad_request", err.Error(), nil)
		return
	}

	h.ok(w, http.StatusOK, map[string]bool{"valid": h.svc.VerifyProof(req.Swap, req.Proof, req.Root)})
}

package handlers

import (
	"anchor/internal/domain"
	"anchor/internal/service"
	"anchor/pkg/httputil"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"gitlab.com/nevasik7/alerting/logger"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	log logger.Logger
	svc *service.BatcherService
}

func NewHandler(log logger.Logger, svc *service.BatcherService) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("batcher service is required to the handler")
	}
	return &Handler{log: log, svc: svc}, nil
}

func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	if err := httputil.JSON(w, http.StatusOK, map[string]any{}, nil); err != nil {
		h.log.Errorf("Healthz handler error: %s", err.Error())
	}
}

// Readiness checks the external dependencies
func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	if err := h.svc.CheckDependency(ctx); err != nil {
		h.fail(w, r, http.StatusServiceUnavailable, "dependencies_unhealthy", "dependencies check failed", map[string]any{
			"error": err.Error(),
		})
		return
	}

	h.ok(w, http.StatusOK, map[string]string{"dependencies": "healthy"})
}

func (h *Handler) ok(w http.ResponseWriter, status int, body any) {
	if err := httputil.JSON(w, status, body, nil); err != nil {
		h.log.Errorf("Failed to write response: %v", err)
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, status int, code, msg string, details any) {
	if err := httputil.Error(w, r, status, code, msg, details); err != nil {
		h.log.Errorf("Failed to write error response: %v", err)
	}
}

// failErr maps domain errors to http statuses
func (h *Handler) failErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidIntent):
		h.fail(w, r, http.StatusBadRequest, "invalid_intent", err.Error(), nil)
	case errors.Is(err, domain.ErrNotFound):
		h.fail(w, r, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, domain.ErrInvalidTransition):
		h.fail(w, r, http.StatusConflict, "invalid_transition", err.Error(), nil)
	case errors.Is(err, domain.ErrBatchInProgress):
		h.fail(w, r, http.StatusConflict, "batch_in_progress", err.Error(), nil)
	case errors.Is(err, domain.ErrNettingFailure):
		h.log.Errorf("%s %s failed: %v", r.Method, r.URL.Path, err)
		h.fail(w, r, http.StatusInternalServerError, "netting_failure", err.Error(), nil)
	default:
		h.log.Errorf("%s %s failed: %v", r.Method, r.URL.Path, err)
		h.fail(w, r, http.StatusInternalServerError, "internal", "internal error", nil)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if err := httputil.DecodeJSON(w, r, dst, maxBodyBytes); err != nil {
		return fmt.Errorf("%w: malformed body: %v", domain.ErrInvalidIntent, err)
	}
	return nil
}

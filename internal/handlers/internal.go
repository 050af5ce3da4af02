package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/maplecart/api/internal/platform/httpx"
	"github.com/maplecart/api/internal/services"
)

const maxInternalBodySize = 8 * 1024

// InternalHandlers exposes operator endpoints. The route group is expected to
// sit behind the HMAC middleware; these handlers do no authentication of
// their own.
type InternalHandlers struct {
	payments services.PaymentService
}

// NewInternalHandlers constructs a new InternalHandlers instance.
func NewInternalHandlers(payments services.PaymentService) *InternalHandlers {
	return &InternalHandlers{payments: payments}
}

// Routes registers the /internal endpoints.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/orders/reconcile", h.reconcileOrders)
}

type reconcileRequest struct {
	OlderThanMinutes int    `json:"older_than_minutes"`
	Limit            int    `json:"limit"`
	ActorID          string `json:"actor_id"`
}

type reconcileResponse struct {
	Examined int `json:"examined"`
	Updated  int `json:"updated"`
	Failed   int `json:"failed"`
}

func (h *InternalHandlers) reconcileOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req reconcileRequest
	body, err := readLimitedBody(r, maxInternalBodySize)
	if err != nil && !errors.Is(err, errEmptyBody) {
		writeBodyError(ctx, w, err)
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
			return
		}
	}

	report, err := h.payments.ReconcilePendingOrders(ctx, services.ReconcileOrdersCommand{
		OlderThan: time.Duration(req.OlderThanMinutes) * time.Minute,
		Limit:     req.Limit,
		ActorID:   req.ActorID,
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, reconcileResponse{
		Examined: report.Examined,
		Updated:  report.Updated,
		Failed:   report.Failed,
	})
}

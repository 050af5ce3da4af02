package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/maplecart/api/internal/platform/httpx"
	"github.com/maplecart/api/internal/services"
)

const (
	maxPaymentBodySize = 64 * 1024
	maxWebhookBodySize = 256 * 1024

	razorpaySignatureHeader = "X-Razorpay-Signature"
)

// PaymentHandlers exposes checkout payment endpoints and the gateway webhook.
type PaymentHandlers struct {
	payments services.PaymentService
	limiter  rateLimiter
}

// NewPaymentHandlers constructs a new PaymentHandlers instance.
func NewPaymentHandlers(payments services.PaymentService, limiter rateLimiter) *PaymentHandlers {
	return &PaymentHandlers{
		payments: payments,
		limiter:  limiter,
	}
}

// Routes registers the /payments endpoints.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/order", h.createPaymentIntent)
	r.Post("/verify", h.verifyPayment)
	r.Post("/webhook", h.handleWebhook)
}

type paymentIntentResponse struct {
	Success              bool                  `json:"success"`
	OrderID              string                `json:"orderId"`
	ConfirmationNumber   string                `json:"confirmationNumber,omitempty"`
	GatewayOrder         gatewayOrderPayload   `json:"gatewayOrder"`
	OrderDetails         paymentDetailsPayload `json:"orderDetails"`
	KeyID                string                `json:"keyId,omitempty"`
	DatabaseOrderCreated bool                  `json:"databaseOrderCreated"`
}

type gatewayOrderPayload struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt,omitempty"`
}

type paymentDetailsPayload struct {
	Subtotal    int64 `json:"subtotal"`
	Tax         int64 `json:"tax"`
	Shipping    int64 `json:"shipping"`
	Discount    int64 `json:"discount"`
	TotalAmount int64 `json:"totalAmount"`
}

func (h *PaymentHandlers) createPaymentIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	if h.limiter != nil && !h.limiter.Allow(r.RemoteAddr) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many payment requests", http.StatusTooManyRequests))
		return
	}

	body, err := readLimitedBody(r, maxPaymentBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req createOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	intent, err := h.payments.CreatePaymentIntent(ctx, services.CreatePaymentIntentCommand{
		Order: buildCreateOrderCommand(ctx, req),
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, paymentIntentResponse{
		Success:            true,
		OrderID:            intent.OrderID,
		ConfirmationNumber: intent.ConfirmationNumber,
		GatewayOrder: gatewayOrderPayload{
			ID:       intent.GatewayOrder.ID,
			Amount:   intent.GatewayOrder.Amount,
			Currency: intent.GatewayOrder.Currency,
			Receipt:  intent.GatewayOrder.Receipt,
		},
		OrderDetails:         buildPaymentDetails(intent),
		KeyID:                intent.KeyID,
		DatabaseOrderCreated: intent.DatabaseOrderCreated,
	})
}

func buildPaymentDetails(intent services.PaymentIntent) paymentDetailsPayload {
	return paymentDetailsPayload{
		Subtotal:    intent.Totals.Subtotal,
		Tax:         intent.Totals.Tax,
		Shipping:    intent.Totals.Shipping,
		Discount:    intent.Totals.Discount,
		TotalAmount: intent.Totals.Total,
	}
}

type verifyPaymentRequest struct {
	OrderID          string `json:"orderId"`
	GatewayOrderID   string `json:"gatewayOrderId"`
	GatewayPaymentID string `json:"gatewayPaymentId"`
	Signature        string `json:"signature"`
}

type verifyPaymentResponse struct {
	Success            bool   `json:"success"`
	OrderID            string `json:"orderId"`
	ConfirmationNumber string `json:"confirmationNumber"`
	Status             string `json:"status"`
}

func (h *PaymentHandlers) verifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxPaymentBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req verifyPaymentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	order, err := h.payments.VerifyPayment(ctx, services.VerifyPaymentCommand{
		OrderID:        strings.TrimSpace(req.OrderID),
		GatewayOrderID: strings.TrimSpace(req.GatewayOrderID),
		PaymentID:      strings.TrimSpace(req.GatewayPaymentID),
		Signature:      strings.TrimSpace(req.Signature),
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, verifyPaymentResponse{
		Success:            true,
		OrderID:            order.ID,
		ConfirmationNumber: order.ConfirmationNumber,
		Status:             string(order.Status),
	})
}

type webhookResponse struct {
	Status  string `json:"status"`
	Applied bool   `json:"applied"`
	Reason  string `json:"reason,omitempty"`
}

// handleWebhook receives gateway deliveries. The raw body is read before any
// parsing because the signature covers the exact bytes on the wire.
func (h *PaymentHandlers) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "failed to read webhook body", http.StatusBadRequest))
		return
	}

	outcome, err := h.payments.HandleWebhook(ctx, services.PaymentWebhookCommand{
		Provider:  "razorpay",
		Payload:   body,
		Signature: strings.TrimSpace(r.Header.Get(razorpaySignatureHeader)),
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, webhookResponse{
		Status:  "ok",
		Applied: outcome.Applied,
		Reason:  outcome.Reason,
	})
}

func writePaymentError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrPaymentInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentSignatureInvalid):
		httpx.WriteError(ctx, w, httpx.NewError("signature_invalid", "payment signature verification failed", http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentWebhookUnauthorized):
		httpx.WriteError(ctx, w, httpx.NewError("webhook_unauthorized", "webhook verification failed", http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentGatewayUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("gateway_unavailable", "payment gateway unavailable", http.StatusBadGateway))
	case errors.Is(err, services.ErrOrderInvalidInput), errors.Is(err, services.ErrCouponInvalidCode):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound), errors.Is(err, services.ErrCouponNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("payment_error", "failed to process payment request", http.StatusInternalServerError))
	}
}

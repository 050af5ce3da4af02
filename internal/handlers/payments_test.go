package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/services"
)

type stubPaymentService struct {
	intentFn    func(context.Context, services.CreatePaymentIntentCommand) (services.PaymentIntent, error)
	verifyFn    func(context.Context, services.VerifyPaymentCommand) (services.Order, error)
	webhookFn   func(context.Context, services.PaymentWebhookCommand) (services.WebhookOutcome, error)
	reconcileFn func(context.Context, services.ReconcileOrdersCommand) (services.ReconcileReport, error)
}

func (s *stubPaymentService) CreatePaymentIntent(ctx context.Context, cmd services.CreatePaymentIntentCommand) (services.PaymentIntent, error) {
	if s.intentFn != nil {
		return s.intentFn(ctx, cmd)
	}
	return services.PaymentIntent{}, errors.New("not implemented")
}

func (s *stubPaymentService) VerifyPayment(ctx context.Context, cmd services.VerifyPaymentCommand) (services.Order, error) {
	if s.verifyFn != nil {
		return s.verifyFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubPaymentService) HandleWebhook(ctx context.Context, cmd services.PaymentWebhookCommand) (services.WebhookOutcome, error) {
	if s.webhookFn != nil {
		return s.webhookFn(ctx, cmd)
	}
	return services.WebhookOutcome{}, errors.New("not implemented")
}

func (s *stubPaymentService) ReconcilePendingOrders(ctx context.Context, cmd services.ReconcileOrdersCommand) (services.ReconcileReport, error) {
	if s.reconcileFn != nil {
		return s.reconcileFn(ctx, cmd)
	}
	return services.ReconcileReport{}, errors.New("not implemented")
}

type stubRateLimiter struct {
	allow bool
	keys  []string
}

func (l *stubRateLimiter) Allow(key string) bool {
	l.keys = append(l.keys, key)
	return l.allow
}

func newPaymentRouter(service services.PaymentService, limiter rateLimiter) chi.Router {
	handler := NewPaymentHandlers(service, limiter)
	router := chi.NewRouter()
	router.Route("/payments", handler.Routes)
	return router
}

func TestPaymentHandlersCreateIntentSuccess(t *testing.T) {
	service := &stubPaymentService{
		intentFn: func(ctx context.Context, cmd services.CreatePaymentIntentCommand) (services.PaymentIntent, error) {
			if cmd.Order.Contact.Email != "buyer@example.com" {
				t.Fatalf("expected order command forwarded, got %#v", cmd.Order.Contact)
			}
			return services.PaymentIntent{
				OrderID:            "ord_1",
				ConfirmationNumber: "MC-2026-000007",
				GatewayOrder: domain.GatewayOrder{
					ID:       "order_rzp_1",
					Amount:   75800,
					Currency: "INR",
					Receipt:  "MC-2026-000007",
				},
				Totals:               services.OrderTotals{Subtotal: 60000, Tax: 10800, Shipping: 5000, Total: 75800},
				KeyID:                "rzp_test_key",
				DatabaseOrderCreated: true,
			}, nil
		},
	}

	router := newPaymentRouter(service, &stubRateLimiter{allow: true})
	req := httptest.NewRequest(http.MethodPost, "/payments/order", bytes.NewReader(createOrderBody(t)))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp paymentIntentResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !resp.Success || resp.OrderID != "ord_1" || resp.KeyID != "rzp_test_key" {
		t.Fatalf("unexpected response: %#v", resp)
	}
	if resp.GatewayOrder.ID != "order_rzp_1" || resp.GatewayOrder.Amount != 75800 {
		t.Fatalf("unexpected gateway order: %#v", resp.GatewayOrder)
	}
	if resp.OrderDetails.TotalAmount != 75800 || resp.OrderDetails.Tax != 10800 {
		t.Fatalf("unexpected order details: %#v", resp.OrderDetails)
	}
	if !resp.DatabaseOrderCreated {
		t.Fatalf("expected databaseOrderCreated true")
	}
}

func TestPaymentHandlersCreateIntentFallbackShape(t *testing.T) {
	service := &stubPaymentService{
		intentFn: func(ctx context.Context, cmd services.CreatePaymentIntentCommand) (services.PaymentIntent, error) {
			return services.PaymentIntent{
				OrderID:              "ord_FALLBACK",
				GatewayOrder:         domain.GatewayOrder{ID: "order_rzp_2", Amount: 75800, Currency: "INR", Receipt: "ord_FALLBACK"},
				Totals:               services.OrderTotals{Subtotal: 60000, Tax: 10800, Shipping: 5000, Total: 75800},
				KeyID:                "rzp_test_key",
				DatabaseOrderCreated: false,
			}, nil
		},
	}

	router := newPaymentRouter(service, nil)
	req := httptest.NewRequest(http.MethodPost, "/payments/order", bytes.NewReader(createOrderBody(t)))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rr.Code)
	}

	var resp paymentIntentResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.DatabaseOrderCreated {
		t.Fatalf("expected databaseOrderCreated false")
	}
	if resp.ConfirmationNumber != "" {
		t.Fatalf("expected no confirmation number, got %q", resp.ConfirmationNumber)
	}
	if resp.GatewayOrder.Receipt != "ord_FALLBACK" {
		t.Fatalf("expected order id receipt, got %q", resp.GatewayOrder.Receipt)
	}
}

func TestPaymentHandlersCreateIntentRateLimited(t *testing.T) {
	limiter := &stubRateLimiter{allow: false}
	router := newPaymentRouter(&stubPaymentService{}, limiter)
	req := httptest.NewRequest(http.MethodPost, "/payments/order", bytes.NewReader(createOrderBody(t)))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", rr.Code)
	}
	if len(limiter.keys) != 1 {
		t.Fatalf("expected limiter consulted once, got %d", len(limiter.keys))
	}
}

func TestPaymentHandlersCreateIntentGatewayDown(t *testing.T) {
	service := &stubPaymentService{
		intentFn: func(ctx context.Context, cmd services.CreatePaymentIntentCommand) (services.PaymentIntent, error) {
			return services.PaymentIntent{}, services.ErrPaymentGatewayUnavailable
		},
	}

	router := newPaymentRouter(service, nil)
	req := httptest.NewRequest(http.MethodPost, "/payments/order", bytes.NewReader(createOrderBody(t)))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", rr.Code)
	}
}

func TestPaymentHandlersVerifyPaymentSuccess(t *testing.T) {
	var captured services.VerifyPaymentCommand
	service := &stubPaymentService{
		verifyFn: func(ctx context.Context, cmd services.VerifyPaymentCommand) (services.Order, error) {
			captured = cmd
			return services.Order{ID: cmd.OrderID, ConfirmationNumber: "MC-2026-000007", Status: domain.OrderStatusProcessing}, nil
		},
	}

	router := newPaymentRouter(service, nil)
	body := []byte(`{"orderId":"ord_1","gatewayOrderId":"order_rzp_1","gatewayPaymentId":"pay_1","signature":"abc"}`)
	req := httptest.NewRequest(http.MethodPost, "/payments/verify", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.GatewayOrderID != "order_rzp_1" || captured.PaymentID != "pay_1" || captured.Signature != "abc" {
		t.Fatalf("unexpected command: %#v", captured)
	}

	var resp verifyPaymentResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !resp.Success || resp.Status != string(domain.OrderStatusProcessing) {
		t.Fatalf("unexpected response: %#v", resp)
	}
}

func TestPaymentHandlersVerifyPaymentBadSignature(t *testing.T) {
	service := &stubPaymentService{
		verifyFn: func(ctx context.Context, cmd services.VerifyPaymentCommand) (services.Order, error) {
			return services.Order{}, services.ErrPaymentSignatureInvalid
		},
	}

	router := newPaymentRouter(service, nil)
	body := []byte(`{"orderId":"ord_1","gatewayOrderId":"order_rzp_1","gatewayPaymentId":"pay_1","signature":"bad"}`)
	req := httptest.NewRequest(http.MethodPost, "/payments/verify", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp["error"] != "signature_invalid" {
		t.Fatalf("expected signature_invalid error code, got %v", resp["error"])
	}
}

func TestPaymentHandlersWebhookForwardsRawBody(t *testing.T) {
	rawBody := `{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1"}}}}`
	var captured services.PaymentWebhookCommand
	service := &stubPaymentService{
		webhookFn: func(ctx context.Context, cmd services.PaymentWebhookCommand) (services.WebhookOutcome, error) {
			captured = cmd
			return services.WebhookOutcome{EventType: "payment.captured", OrderID: "ord_1", Applied: true}, nil
		},
	}

	router := newPaymentRouter(service, nil)
	req := httptest.NewRequest(http.MethodPost, "/payments/webhook", strings.NewReader(rawBody))
	req.Header.Set(razorpaySignatureHeader, "sig_123")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.Provider != "razorpay" || captured.Signature != "sig_123" {
		t.Fatalf("unexpected command: provider=%q signature=%q", captured.Provider, captured.Signature)
	}
	if string(captured.Payload) != rawBody {
		t.Fatalf("expected raw body forwarded untouched, got %q", string(captured.Payload))
	}

	var resp webhookResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Status != "ok" || !resp.Applied {
		t.Fatalf("unexpected response: %#v", resp)
	}
}

func TestPaymentHandlersWebhookRedeliveryNoop(t *testing.T) {
	service := &stubPaymentService{
		webhookFn: func(ctx context.Context, cmd services.PaymentWebhookCommand) (services.WebhookOutcome, error) {
			return services.WebhookOutcome{EventType: "payment.captured", Applied: false, Reason: "order already at target status"}, nil
		},
	}

	router := newPaymentRouter(service, nil)
	req := httptest.NewRequest(http.MethodPost, "/payments/webhook", strings.NewReader(`{}`))
	req.Header.Set(razorpaySignatureHeader, "sig_123")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp webhookResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Applied {
		t.Fatalf("expected applied false on redelivery")
	}
	if resp.Reason != "order already at target status" {
		t.Fatalf("unexpected reason: %q", resp.Reason)
	}
}

func TestPaymentHandlersWebhookUnauthorized(t *testing.T) {
	service := &stubPaymentService{
		webhookFn: func(ctx context.Context, cmd services.PaymentWebhookCommand) (services.WebhookOutcome, error) {
			return services.WebhookOutcome{}, services.ErrPaymentWebhookUnauthorized
		},
	}

	router := newPaymentRouter(service, nil)
	req := httptest.NewRequest(http.MethodPost, "/payments/webhook", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

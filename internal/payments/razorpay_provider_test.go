package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
)

type stubOrderAPI struct {
	lastData map[string]interface{}
	response map[string]interface{}
	err      error
}

func (s *stubOrderAPI) Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error) {
	s.lastData = data
	return s.response, s.err
}

type stubPaymentAPI struct {
	lastID   string
	response map[string]interface{}
	err      error
}

func (s *stubPaymentAPI) Fetch(paymentID string, queryParams map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error) {
	s.lastID = paymentID
	return s.response, s.err
}

func newTestProvider(t *testing.T, orders *stubOrderAPI, payments *stubPaymentAPI, webhookSecret string) *RazorpayProvider {
	t.Helper()
	if orders == nil {
		orders = &stubOrderAPI{}
	}
	if payments == nil {
		payments = &stubPaymentAPI{}
	}
	provider, err := NewRazorpayProvider(RazorpayProviderConfig{
		KeySecret:     "test_secret",
		WebhookSecret: webhookSecret,
		Clients:       &razorpayClients{orders: orders, payments: payments},
	})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	return provider
}

func hmacHex(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestRazorpayCreateOrder(t *testing.T) {
	orders := &stubOrderAPI{response: map[string]interface{}{
		"id":       "order_abc",
		"amount":   float64(125000),
		"currency": "INR",
		"receipt":  "MC-2026-000042",
		"status":   "created",
	}}
	provider := newTestProvider(t, orders, nil, "")

	order, err := provider.CreateOrder(context.Background(), CreateOrderRequest{
		Amount:   125000,
		Currency: "inr",
		Receipt:  "MC-2026-000042",
		Notes:    map[string]string{"orderId": "01H"},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.ID != "order_abc" || order.Amount != 125000 || order.Currency != "INR" {
		t.Fatalf("unexpected gateway order: %+v", order)
	}
	if orders.lastData["currency"] != "INR" {
		t.Fatalf("expected currency normalised to INR, got %v", orders.lastData["currency"])
	}
	if orders.lastData["receipt"] != "MC-2026-000042" {
		t.Fatalf("expected receipt forwarded, got %v", orders.lastData["receipt"])
	}
}

func TestRazorpayCreateOrderRejectsInvalidInput(t *testing.T) {
	provider := newTestProvider(t, nil, nil, "")

	if _, err := provider.CreateOrder(context.Background(), CreateOrderRequest{Amount: 0, Currency: "INR"}); err == nil {
		t.Fatalf("expected error for non-positive amount")
	}
	if _, err := provider.CreateOrder(context.Background(), CreateOrderRequest{Amount: 100, Currency: "NOPE"}); err == nil {
		t.Fatalf("expected error for unknown currency")
	}
}

func TestRazorpayCreateOrderMissingID(t *testing.T) {
	orders := &stubOrderAPI{response: map[string]interface{}{"status": "created"}}
	provider := newTestProvider(t, orders, nil, "")

	if _, err := provider.CreateOrder(context.Background(), CreateOrderRequest{Amount: 100, Currency: "INR"}); err == nil {
		t.Fatalf("expected error when response has no id")
	}
}

func TestRazorpayVerifyPaymentSignature(t *testing.T) {
	provider := newTestProvider(t, nil, nil, "")

	valid := hmacHex("test_secret", []byte("order_abc|pay_def"))
	if err := provider.VerifyPaymentSignature("order_abc", "pay_def", valid); err != nil {
		t.Fatalf("expected valid signature to pass: %v", err)
	}

	tampered := []byte(valid)
	if tampered[0] == 'a' {
		tampered[0] = 'b'
	} else {
		tampered[0] = 'a'
	}
	if err := provider.VerifyPaymentSignature("order_abc", "pay_def", string(tampered)); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("expected ErrSignatureMismatch, got %v", err)
	}
	if err := provider.VerifyPaymentSignature("order_other", "pay_def", valid); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("expected mismatch for wrong order id, got %v", err)
	}
	if err := provider.VerifyPaymentSignature("", "pay_def", valid); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("expected mismatch for empty order id, got %v", err)
	}
}

func TestRazorpayVerifyWebhookSignature(t *testing.T) {
	provider := newTestProvider(t, nil, nil, "hook_secret")
	body := []byte(`{"event":"payment.captured"}`)

	if err := provider.VerifyWebhookSignature(body, hmacHex("hook_secret", body)); err != nil {
		t.Fatalf("expected valid signature to pass: %v", err)
	}
	if err := provider.VerifyWebhookSignature(body, hmacHex("wrong_secret", body)); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("expected ErrSignatureMismatch, got %v", err)
	}

	bare := newTestProvider(t, nil, nil, "")
	if err := bare.VerifyWebhookSignature(body, hmacHex("hook_secret", body)); !errors.Is(err, ErrWebhookSecretMissing) {
		t.Fatalf("expected ErrWebhookSecretMissing, got %v", err)
	}
}

func TestRazorpayParseWebhookEvent(t *testing.T) {
	provider := newTestProvider(t, nil, nil, "")

	body := []byte(`{
		"event": "payment.captured",
		"payload": {
			"payment": {
				"entity": {
					"id": "pay_def",
					"order_id": "order_abc",
					"amount": 125000,
					"currency": "INR",
					"status": "captured"
				}
			}
		}
	}`)
	event, err := provider.ParseWebhookEvent(body)
	if err != nil {
		t.Fatalf("parse webhook: %v", err)
	}
	if event.Type != "payment.captured" || event.PaymentID != "pay_def" || event.OrderID != "order_abc" {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.Amount != 125000 || event.Currency != "INR" {
		t.Fatalf("unexpected amount/currency: %+v", event)
	}

	orderOnly := []byte(`{
		"event": "order.paid",
		"payload": {
			"order": {
				"entity": {"id": "order_abc", "amount": 125000, "currency": "INR"}
			}
		}
	}`)
	event, err = provider.ParseWebhookEvent(orderOnly)
	if err != nil {
		t.Fatalf("parse order.paid: %v", err)
	}
	if event.OrderID != "order_abc" || event.Type != "order.paid" {
		t.Fatalf("unexpected order.paid event: %+v", event)
	}

	if _, err := provider.ParseWebhookEvent([]byte(`{"payload":{}}`)); err == nil {
		t.Fatalf("expected error for missing event type")
	}
	if _, err := provider.ParseWebhookEvent([]byte(`not-json`)); err == nil {
		t.Fatalf("expected error for invalid json")
	}
}

func TestRazorpayLookupPayment(t *testing.T) {
	payments := &stubPaymentAPI{response: map[string]interface{}{
		"id":       "pay_def",
		"order_id": "order_abc",
		"amount":   float64(125000),
		"currency": "INR",
		"status":   "captured",
		"captured": true,
		"method":   "upi",
	}}
	provider := newTestProvider(t, nil, payments, "")

	details, err := provider.LookupPayment(context.Background(), "pay_def")
	if err != nil {
		t.Fatalf("lookup payment: %v", err)
	}
	if payments.lastID != "pay_def" {
		t.Fatalf("expected fetch for pay_def, got %q", payments.lastID)
	}
	if details.Status != StatusCaptured || !details.Captured {
		t.Fatalf("expected captured details, got %+v", details)
	}
	if details.OrderID != "order_abc" || details.Method != "upi" {
		t.Fatalf("unexpected details: %+v", details)
	}

	payments.response = map[string]interface{}{"id": "pay_x", "status": "failed"}
	details, err = provider.LookupPayment(context.Background(), "pay_x")
	if err != nil {
		t.Fatalf("lookup failed payment: %v", err)
	}
	if details.Status != StatusFailed || details.Captured {
		t.Fatalf("expected failed details, got %+v", details)
	}
}

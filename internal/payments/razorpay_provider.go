package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	razorpay "github.com/razorpay/razorpay-go"
	"golang.org/x/text/currency"

	"github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/platform/textutil"
)

// RazorpayLogger defines the logging contract for Razorpay provider operations.
type RazorpayLogger func(ctx context.Context, event string, fields map[string]any)

type razorpayOrderAPI interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

type razorpayPaymentAPI interface {
	Fetch(paymentID string, queryParams map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

type razorpayClients struct {
	orders   razorpayOrderAPI
	payments razorpayPaymentAPI
}

// RazorpayProviderConfig configures the RazorpayProvider.
type RazorpayProviderConfig struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
	Logger        RazorpayLogger
	Clock         func() time.Time
	Clients       *razorpayClients
}

// RazorpayProvider implements the Provider interface using Razorpay APIs.
type RazorpayProvider struct {
	api           razorpayClients
	keySecret     string
	webhookSecret string
	clock         func() time.Time
	logger        RazorpayLogger
}

// NewRazorpayProvider constructs a Razorpay Provider using the given configuration.
func NewRazorpayProvider(cfg RazorpayProviderConfig) (*RazorpayProvider, error) {
	keyID := strings.TrimSpace(cfg.KeyID)
	keySecret := strings.TrimSpace(cfg.KeySecret)
	if keySecret == "" {
		return nil, errors.New("razorpay: key secret is required")
	}
	if keyID == "" && cfg.Clients == nil {
		return nil, errors.New("razorpay: key id is required")
	}

	var clients razorpayClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		rc := razorpay.NewClient(keyID, keySecret)
		clients = razorpayClients{
			orders:   rc.Order,
			payments: rc.Payment,
		}
	}
	if clients.orders == nil || clients.payments == nil {
		return nil, errors.New("razorpay: incomplete client configuration")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &RazorpayProvider{
		api:           clients,
		keySecret:     keySecret,
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreateOrder mints a Razorpay order for the supplied amount.
func (p *RazorpayProvider) CreateOrder(ctx context.Context, req CreateOrderRequest) (domain.GatewayOrder, error) {
	if p == nil {
		return domain.GatewayOrder{}, errors.New("razorpay: provider is nil")
	}
	if req.Amount <= 0 {
		return domain.GatewayOrder{}, errors.New("razorpay: amount must be positive")
	}
	code := strings.ToUpper(strings.TrimSpace(req.Currency))
	if _, err := currency.ParseISO(code); err != nil {
		return domain.GatewayOrder{}, fmt.Errorf("razorpay: invalid currency %q: %w", req.Currency, err)
	}

	data := map[string]interface{}{
		"amount":   req.Amount,
		"currency": code,
	}
	if receipt := strings.TrimSpace(req.Receipt); receipt != "" {
		data["receipt"] = receipt
	}
	if cleaned := textutil.NormalizeStringMap(req.Notes); len(cleaned) > 0 {
		notes := make(map[string]interface{}, len(cleaned))
		for k, v := range cleaned {
			notes[k] = v
		}
		data["notes"] = notes
	}

	body, err := p.api.orders.Create(data, nil)
	if err != nil {
		return domain.GatewayOrder{}, fmt.Errorf("razorpay: create order: %w", err)
	}

	order := domain.GatewayOrder{
		ID:       stringField(body, "id"),
		Amount:   int64Field(body, "amount"),
		Currency: stringField(body, "currency"),
		Receipt:  stringField(body, "receipt"),
		Status:   stringField(body, "status"),
	}
	if order.ID == "" {
		return domain.GatewayOrder{}, errors.New("razorpay: create order: response missing id")
	}

	p.logger(ctx, "payments.razorpay.order.created", map[string]any{
		"gatewayOrderId": order.ID,
		"amount":         order.Amount,
		"currency":       order.Currency,
	})
	return order, nil
}

// VerifyPaymentSignature checks the checkout callback signature for an order/payment pair.
func (p *RazorpayProvider) VerifyPaymentSignature(orderID, paymentID, signature string) error {
	if p == nil {
		return errors.New("razorpay: provider is nil")
	}
	if orderID == "" || paymentID == "" || signature == "" {
		return ErrSignatureMismatch
	}
	expected := signPayload(p.keySecret, []byte(orderID+"|"+paymentID))
	if !hmac.Equal([]byte(expected), []byte(strings.TrimSpace(signature))) {
		return ErrSignatureMismatch
	}
	return nil
}

// VerifyWebhookSignature checks the webhook signature over the raw request body.
func (p *RazorpayProvider) VerifyWebhookSignature(body []byte, signature string) error {
	if p == nil {
		return errors.New("razorpay: provider is nil")
	}
	if p.webhookSecret == "" {
		return ErrWebhookSecretMissing
	}
	expected := signPayload(p.webhookSecret, body)
	if !hmac.Equal([]byte(expected), []byte(strings.TrimSpace(signature))) {
		return ErrSignatureMismatch
	}
	return nil
}

// ParseWebhookEvent extracts the event type and payment/order identifiers from a webhook body.
func (p *RazorpayProvider) ParseWebhookEvent(body []byte) (WebhookEvent, error) {
	var payload struct {
		Event   string `json:"event"`
		Payload struct {
			Payment struct {
				Entity map[string]any `json:"entity"`
			} `json:"payment"`
			Order struct {
				Entity map[string]any `json:"entity"`
			} `json:"order"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return WebhookEvent{}, fmt.Errorf("razorpay: parse webhook event: %w", err)
	}
	if payload.Event == "" {
		return WebhookEvent{}, errors.New("razorpay: webhook event type missing")
	}

	event := WebhookEvent{Type: payload.Event}
	if entity := payload.Payload.Payment.Entity; entity != nil {
		event.PaymentID = stringField(entity, "id")
		event.OrderID = stringField(entity, "order_id")
		event.Amount = int64Field(entity, "amount")
		event.Currency = stringField(entity, "currency")
		event.Raw = entity
	}
	if event.OrderID == "" {
		if entity := payload.Payload.Order.Entity; entity != nil {
			event.OrderID = stringField(entity, "id")
			if event.Amount == 0 {
				event.Amount = int64Field(entity, "amount")
			}
			if event.Currency == "" {
				event.Currency = stringField(entity, "currency")
			}
			if event.Raw == nil {
				event.Raw = entity
			}
		}
	}
	return event, nil
}

// LookupPayment retrieves a Razorpay payment for reconciliation.
func (p *RazorpayProvider) LookupPayment(ctx context.Context, paymentID string) (PaymentDetails, error) {
	if p == nil {
		return PaymentDetails{}, errors.New("razorpay: provider is nil")
	}
	if strings.TrimSpace(paymentID) == "" {
		return PaymentDetails{}, errors.New("razorpay: payment id is required")
	}
	body, err := p.api.payments.Fetch(paymentID, nil, nil)
	if err != nil {
		return PaymentDetails{}, fmt.Errorf("razorpay: fetch payment: %w", err)
	}
	return razorpayPaymentDetails(body), nil
}

func razorpayPaymentDetails(body map[string]any) PaymentDetails {
	status := StatusPending
	switch stringField(body, "status") {
	case "captured":
		status = StatusCaptured
	case "failed":
		status = StatusFailed
	case "refunded":
		status = StatusRefunded
	case "created", "authorized":
		status = StatusPending
	}
	captured := false
	if v, ok := body["captured"].(bool); ok {
		captured = v
	}
	return PaymentDetails{
		Provider:  "razorpay",
		PaymentID: stringField(body, "id"),
		OrderID:   stringField(body, "order_id"),
		Status:    status,
		Amount:    int64Field(body, "amount"),
		Currency:  stringField(body, "currency"),
		Captured:  captured || status == StatusCaptured,
		Method:    stringField(body, "method"),
		Raw:       body,
	}
}

func signPayload(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func int64Field(m map[string]any, key string) int64 {
	switch v := m[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
	}
	return 0
}

package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/maplecart/api/internal/domain"
)

// Status enumerates the normalised payment states shared across providers.
type Status string

const (
	// StatusPending indicates the payment is awaiting customer action or gateway confirmation.
	StatusPending Status = "pending"
	// StatusCaptured indicates the gateway reports the payment as successfully captured.
	StatusCaptured Status = "captured"
	// StatusFailed indicates the gateway reports a failure and no further action is possible.
	StatusFailed Status = "failed"
	// StatusRefunded indicates the payment has been refunded (partially or fully).
	StatusRefunded Status = "refunded"
)

// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
var ErrUnsupportedProvider = errors.New("payments: unsupported provider")

// ErrSignatureMismatch is returned when a payment or webhook signature fails verification.
var ErrSignatureMismatch = errors.New("payments: signature mismatch")

// ErrWebhookSecretMissing is returned when webhook verification is attempted without a configured secret.
var ErrWebhookSecretMissing = errors.New("payments: webhook secret not configured")

// CreateOrderRequest captures the payload required to mint a gateway order.
type CreateOrderRequest struct {
	Amount   int64
	Currency string
	Receipt  string
	Notes    map[string]string
}

// WebhookEvent is a gateway webhook payload normalised for dispatch.
type WebhookEvent struct {
	Type      string
	OrderID   string
	PaymentID string
	Amount    int64
	Currency  string
	Raw       map[string]any
}

// PaymentDetails normalises gateway specific payment fields for reconciliation.
type PaymentDetails struct {
	Provider  string
	PaymentID string
	OrderID   string
	Status    Status
	Amount    int64
	Currency  string
	Captured  bool
	Method    string
	Raw       map[string]any
}

// Provider defines the contract for payment gateway adapters to implement.
type Provider interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (domain.GatewayOrder, error)
	VerifyPaymentSignature(orderID, paymentID, signature string) error
	VerifyWebhookSignature(body []byte, signature string) error
	ParseWebhookEvent(body []byte) (WebhookEvent, error)
	LookupPayment(ctx context.Context, paymentID string) (PaymentDetails, error)
}

// Manager coordinates provider selection and exposes the aggregated interface.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
	currencyRoutes  map[string]string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider overrides the default provider for currencies without explicit routing.
func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = provider
	}
}

// WithCurrencyRoutes configures static currency to provider mappings.
func WithCurrencyRoutes(routes map[string]string) ManagerOption {
	return func(m *Manager) {
		if len(routes) == 0 {
			return
		}
		if m.currencyRoutes == nil {
			m.currencyRoutes = make(map[string]string, len(routes))
		}
		for k, v := range routes {
			m.currencyRoutes[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(v)
		}
	}
}

// NewManager constructs a Manager over the supplied providers.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	copyMap := make(map[string]Provider, len(providers))
	for k, v := range providers {
		key := strings.TrimSpace(strings.ToLower(k))
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", k)
		}
		copyMap[key] = v
	}
	m := &Manager{
		providers: copyMap,
	}
	if _, ok := copyMap["razorpay"]; ok {
		m.defaultProvider = "razorpay"
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// PaymentContext defines the hints available when selecting a provider.
type PaymentContext struct {
	PreferredProvider string
	Currency          string
	Metadata          map[string]string
}

func (m *Manager) resolveProvider(ctx PaymentContext) (string, Provider, error) {
	if m == nil {
		return "", nil, errors.New("payments: manager is nil")
	}
	if len(m.providers) == 0 {
		return "", nil, errors.New("payments: no providers registered")
	}
	if provider := strings.TrimSpace(strings.ToLower(ctx.PreferredProvider)); provider != "" {
		if p, ok := m.providers[provider]; ok {
			return provider, p, nil
		}
	}
	currency := strings.ToUpper(strings.TrimSpace(ctx.Currency))
	if currency != "" && m.currencyRoutes != nil {
		if providerKey, ok := m.currencyRoutes[currency]; ok {
			provider := strings.TrimSpace(strings.ToLower(providerKey))
			if p, ok := m.providers[provider]; ok {
				return provider, p, nil
			}
		}
	}
	if def := strings.TrimSpace(strings.ToLower(m.defaultProvider)); def != "" {
		if p, ok := m.providers[def]; ok {
			return def, p, nil
		}
	}
	if len(m.providers) == 1 {
		for key, p := range m.providers {
			return key, p, nil
		}
	}
	return "", nil, ErrUnsupportedProvider
}

// CreateOrder delegates gateway order creation to the resolved provider.
func (m *Manager) CreateOrder(ctx context.Context, paymentCtx PaymentContext, req CreateOrderRequest) (domain.GatewayOrder, error) {
	_, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return domain.GatewayOrder{}, err
	}
	return provider.CreateOrder(ctx, req)
}

// VerifyPaymentSignature delegates to the resolved provider.
func (m *Manager) VerifyPaymentSignature(paymentCtx PaymentContext, orderID, paymentID, signature string) error {
	_, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return err
	}
	return provider.VerifyPaymentSignature(orderID, paymentID, signature)
}

// VerifyWebhookSignature delegates to the resolved provider.
func (m *Manager) VerifyWebhookSignature(paymentCtx PaymentContext, body []byte, signature string) error {
	_, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return err
	}
	return provider.VerifyWebhookSignature(body, signature)
}

// ParseWebhookEvent delegates to the resolved provider.
func (m *Manager) ParseWebhookEvent(paymentCtx PaymentContext, body []byte) (WebhookEvent, error) {
	_, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return WebhookEvent{}, err
	}
	return provider.ParseWebhookEvent(body)
}

// LookupPayment delegates to the resolved provider.
func (m *Manager) LookupPayment(ctx context.Context, paymentCtx PaymentContext, paymentID string) (PaymentDetails, error) {
	_, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return PaymentDetails{}, err
	}
	return provider.LookupPayment(ctx, paymentID)
}

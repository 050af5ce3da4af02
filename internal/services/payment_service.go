package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/payments"
	"github.com/maplecart/api/internal/repositories"
)

var (
	// ErrPaymentInvalidInput indicates the caller supplied invalid payment parameters.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrPaymentSignatureInvalid indicates a checkout or webhook signature failed verification.
	ErrPaymentSignatureInvalid = errors.New("payment: signature verification failed")
	// ErrPaymentWebhookUnauthorized indicates webhook verification could not be performed.
	ErrPaymentWebhookUnauthorized = errors.New("payment: webhook unauthorized")
	// ErrPaymentGatewayUnavailable indicates the payment gateway rejected or failed the request.
	ErrPaymentGatewayUnavailable = errors.New("payment: gateway unavailable")
)

// webhookEventStatusTargets maps gateway event types onto order status targets.
var webhookEventStatusTargets = map[string]domain.OrderStatus{
	"payment.captured": domain.OrderStatusProcessing,
	"order.paid":       domain.OrderStatusProcessing,
	"payment.failed":   domain.OrderStatusCancelled,
}

// paymentGatewayManager abstracts payments.Manager for easier testing.
type paymentGatewayManager interface {
	CreateOrder(ctx context.Context, paymentCtx payments.PaymentContext, req payments.CreateOrderRequest) (domain.GatewayOrder, error)
	VerifyPaymentSignature(paymentCtx payments.PaymentContext, orderID, paymentID, signature string) error
	VerifyWebhookSignature(paymentCtx payments.PaymentContext, body []byte, signature string) error
	ParseWebhookEvent(paymentCtx payments.PaymentContext, body []byte) (payments.WebhookEvent, error)
	LookupPayment(ctx context.Context, paymentCtx payments.PaymentContext, paymentID string) (payments.PaymentDetails, error)
}

// PaymentServiceDeps wires the dependencies required by the payment service.
type PaymentServiceDeps struct {
	Orders          OrderService
	OrderStore      repositories.OrderRepository
	Coupons         CouponService
	Gateway         paymentGatewayManager
	Policy          domain.PricingPolicy
	DefaultCurrency string
	KeyID           string
	Production      bool
	Clock           func() time.Time
	IDGenerator     func() string
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	orders          OrderService
	orderStore      repositories.OrderRepository
	coupons         CouponService
	gateway         paymentGatewayManager
	policy          domain.PricingPolicy
	defaultCurrency string
	keyID           string
	production      bool
	clock           func() time.Time
	newID           func() string
	logger          func(context.Context, string, map[string]any)
}

// NewPaymentService constructs a PaymentService validating required dependencies.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment service: order service is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("payment service: gateway manager is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.DefaultCurrency))
	if currency == "" {
		currency = "INR"
	}

	return &paymentService{
		orders:          deps.Orders,
		orderStore:      deps.OrderStore,
		coupons:         deps.Coupons,
		gateway:         deps.Gateway,
		policy:          deps.Policy,
		defaultCurrency: currency,
		keyID:           strings.TrimSpace(deps.KeyID),
		production:      deps.Production,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// CreatePaymentIntent persists the order and mints the matching gateway order.
// A storage failure does not abort the checkout: the gateway order is created
// against a locally generated order id and the intent reports
// DatabaseOrderCreated false so the client can surface the degraded state.
func (s *paymentService) CreatePaymentIntent(ctx context.Context, cmd CreatePaymentIntentCommand) (PaymentIntent, error) {
	intent := PaymentIntent{KeyID: s.keyID}
	currency := strings.ToUpper(strings.TrimSpace(cmd.Order.Currency))
	if currency == "" {
		currency = s.defaultCurrency
	}

	var amount int64
	order, err := s.orders.Create(ctx, cmd.Order)
	switch {
	case err == nil:
		intent.OrderID = order.ID
		intent.ConfirmationNumber = order.ConfirmationNumber
		intent.DatabaseOrderCreated = true
		intent.Totals = order.Totals
		currency = order.Currency
		amount = order.Totals.Total
	case errors.Is(err, ErrOrderInvalidInput),
		errors.Is(err, ErrOrderConflict),
		errors.Is(err, ErrCouponInvalidCode),
		errors.Is(err, ErrCouponNotFound):
		return PaymentIntent{}, err
	default:
		s.logger(ctx, "payment.intent.order_persist_failed", map[string]any{
			"error": err.Error(),
		})
		intent.OrderID = "ord_" + s.newID()
		intent.DatabaseOrderCreated = false
		totals, fallbackErr := s.fallbackTotals(ctx, cmd.Order)
		if fallbackErr != nil {
			return PaymentIntent{}, fallbackErr
		}
		intent.Totals = totals
		amount = totals.Total
	}

	receipt := intent.ConfirmationNumber
	if receipt == "" {
		receipt = intent.OrderID
	}

	gatewayOrder, err := s.gateway.CreateOrder(ctx, payments.PaymentContext{Currency: currency}, payments.CreateOrderRequest{
		Amount:   amount,
		Currency: currency,
		Receipt:  receipt,
		Notes: map[string]string{
			"orderId":            intent.OrderID,
			"confirmationNumber": intent.ConfirmationNumber,
		},
	})
	if err != nil {
		return PaymentIntent{}, fmt.Errorf("%w: %v", ErrPaymentGatewayUnavailable, err)
	}
	intent.GatewayOrder = gatewayOrder

	s.logger(ctx, "payment.intent.created", map[string]any{
		"orderId":              intent.OrderID,
		"gatewayOrderId":       gatewayOrder.ID,
		"amount":               amount,
		"currency":             currency,
		"databaseOrderCreated": intent.DatabaseOrderCreated,
	})
	return intent, nil
}

// fallbackTotals recomputes order totals without touching order storage.
func (s *paymentService) fallbackTotals(ctx context.Context, cmd CreateOrderCommand) (OrderTotals, error) {
	if len(cmd.Items) == 0 {
		return OrderTotals{}, fmt.Errorf("%w: order must contain at least one item", ErrPaymentInvalidInput)
	}
	var subtotal int64
	for _, item := range cmd.Items {
		if item.Quantity <= 0 || item.UnitPrice < 0 {
			return OrderTotals{}, fmt.Errorf("%w: invalid line item", ErrPaymentInvalidInput)
		}
		subtotal += item.UnitPrice * int64(item.Quantity)
	}

	var coupon *domain.Coupon
	if code := strings.TrimSpace(cmd.CouponCode); code != "" && s.coupons != nil {
		result, err := s.coupons.Validate(ctx, ValidateCouponCommand{Code: code, Subtotal: subtotal})
		if err != nil || !result.Valid {
			s.logger(ctx, "payment.intent.fallback_coupon_skipped", map[string]any{
				"coupon": code,
			})
		} else {
			coupon = &result.Coupon
		}
	}
	return domain.ComputeTotals(cmd.Items, coupon, s.policy), nil
}

// VerifyPayment checks the checkout callback signature and marks the order paid.
func (s *paymentService) VerifyPayment(ctx context.Context, cmd VerifyPaymentCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	gatewayOrderID := strings.TrimSpace(cmd.GatewayOrderID)
	paymentID := strings.TrimSpace(cmd.PaymentID)
	if orderID == "" || gatewayOrderID == "" || paymentID == "" || strings.TrimSpace(cmd.Signature) == "" {
		return Order{}, fmt.Errorf("%w: order id, gateway order id, payment id, and signature are required", ErrPaymentInvalidInput)
	}

	if err := s.gateway.VerifyPaymentSignature(payments.PaymentContext{}, gatewayOrderID, paymentID, cmd.Signature); err != nil {
		s.logger(ctx, "payment.verify.rejected", map[string]any{
			"orderId":        orderID,
			"gatewayOrderId": gatewayOrderID,
		})
		return Order{}, fmt.Errorf("%w: %v", ErrPaymentSignatureInvalid, err)
	}

	order, err := s.orders.AttachPaymentReference(ctx, AttachPaymentCommand{
		OrderID:          orderID,
		PaymentReference: paymentID,
		GatewayOrderID:   gatewayOrderID,
	})
	if err != nil {
		return Order{}, err
	}

	if order.Status == domain.OrderStatusPending {
		order, err = s.orders.UpdateStatus(ctx, UpdateOrderStatusCommand{
			OrderID:      orderID,
			TargetStatus: domain.OrderStatusProcessing,
			ActorID:      "payment-gateway",
		})
		if err != nil {
			return Order{}, err
		}
	}

	s.logger(ctx, "payment.verify.accepted", map[string]any{
		"orderId":   orderID,
		"paymentId": paymentID,
		"status":    string(order.Status),
	})
	return order, nil
}

// HandleWebhook verifies and applies a gateway webhook delivery. Redeliveries
// for orders already at the target status are reported as no-ops so downstream
// notifications are not duplicated.
func (s *paymentService) HandleWebhook(ctx context.Context, cmd PaymentWebhookCommand) (WebhookOutcome, error) {
	paymentCtx := payments.PaymentContext{PreferredProvider: cmd.Provider}

	if err := s.gateway.VerifyWebhookSignature(paymentCtx, cmd.Payload, cmd.Signature); err != nil {
		if errors.Is(err, payments.ErrWebhookSecretMissing) {
			if s.production {
				return WebhookOutcome{}, fmt.Errorf("%w: webhook secret not configured", ErrPaymentWebhookUnauthorized)
			}
			s.logger(ctx, "payment.webhook.secret_missing", map[string]any{
				"provider": cmd.Provider,
			})
		} else {
			return WebhookOutcome{}, fmt.Errorf("%w: %v", ErrPaymentWebhookUnauthorized, err)
		}
	}

	event, err := s.gateway.ParseWebhookEvent(paymentCtx, cmd.Payload)
	if err != nil {
		return WebhookOutcome{}, fmt.Errorf("%w: %v", ErrPaymentInvalidInput, err)
	}

	outcome := WebhookOutcome{EventType: event.Type}

	target, handled := webhookEventStatusTargets[event.Type]
	if !handled {
		s.logger(ctx, "payment.webhook.ignored", map[string]any{
			"eventType": event.Type,
		})
		outcome.Reason = "unhandled event type"
		return outcome, nil
	}

	orderID := orderIDFromWebhookEvent(event)
	if orderID == "" {
		s.logger(ctx, "payment.webhook.order_unresolved", map[string]any{
			"eventType":      event.Type,
			"gatewayOrderId": event.OrderID,
		})
		outcome.Reason = "order reference missing"
		return outcome, nil
	}
	outcome.OrderID = orderID

	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			s.logger(ctx, "payment.webhook.order_missing", map[string]any{
				"orderId":   orderID,
				"eventType": event.Type,
			})
			outcome.Reason = "order not found"
			return outcome, nil
		}
		return WebhookOutcome{}, err
	}

	outcome.Status = order.Status
	if order.Status == target {
		s.logger(ctx, "payment.webhook.redelivery", map[string]any{
			"orderId":   orderID,
			"eventType": event.Type,
			"status":    string(target),
		})
		outcome.Reason = "order already at target status"
		return outcome, nil
	}

	if event.PaymentID != "" && target == domain.OrderStatusProcessing {
		if _, err := s.orders.AttachPaymentReference(ctx, AttachPaymentCommand{
			OrderID:          orderID,
			PaymentReference: event.PaymentID,
			GatewayOrderID:   event.OrderID,
		}); err != nil && !errors.Is(err, ErrOrderConflict) {
			return WebhookOutcome{}, err
		}
	}

	order, err = s.orders.UpdateStatus(ctx, UpdateOrderStatusCommand{
		OrderID:      orderID,
		TargetStatus: target,
		ActorID:      "payment-gateway",
		Reason:       event.Type,
	})
	if err != nil {
		if errors.Is(err, ErrOrderInvalidState) {
			s.logger(ctx, "payment.webhook.transition_rejected", map[string]any{
				"orderId":   orderID,
				"eventType": event.Type,
				"from":      string(outcome.Status),
				"to":        string(target),
			})
			outcome.Reason = "transition not allowed"
			return outcome, nil
		}
		return WebhookOutcome{}, err
	}

	outcome.Status = order.Status
	outcome.Applied = true
	return outcome, nil
}

// ReconcilePendingOrders sweeps orders stuck in pending and re-drives their
// status from the gateway's view of the payment.
func (s *paymentService) ReconcilePendingOrders(ctx context.Context, cmd ReconcileOrdersCommand) (ReconcileReport, error) {
	if s.orderStore == nil {
		return ReconcileReport{}, errors.New("payment service: order repository is required for reconciliation")
	}

	olderThan := cmd.OlderThan
	if olderThan <= 0 {
		olderThan = time.Hour
	}
	limit := cmd.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	cutoff := s.clock().Add(-olderThan)
	page, err := s.orderStore.List(ctx, repositories.OrderListFilter{
		Status:     []string{string(domain.OrderStatusPending)},
		DateRange:  domain.RangeQuery[time.Time]{To: &cutoff},
		Pagination: domain.Pagination{PageSize: limit},
	})
	if err != nil {
		return ReconcileReport{}, err
	}

	report := ReconcileReport{}
	for _, order := range page.Items {
		report.Examined++
		if order.PaymentReference == nil {
			continue
		}

		details, err := s.gateway.LookupPayment(ctx, payments.PaymentContext{Currency: order.Currency}, *order.PaymentReference)
		if err != nil {
			report.Failed++
			s.logger(ctx, "payment.reconcile.lookup_failed", map[string]any{
				"orderId":   order.ID,
				"paymentId": *order.PaymentReference,
				"error":     err.Error(),
			})
			continue
		}

		var target domain.OrderStatus
		switch details.Status {
		case payments.StatusCaptured:
			target = domain.OrderStatusProcessing
		case payments.StatusFailed:
			target = domain.OrderStatusCancelled
		default:
			continue
		}

		if _, err := s.orders.UpdateStatus(ctx, UpdateOrderStatusCommand{
			OrderID:      order.ID,
			TargetStatus: target,
			ActorID:      strings.TrimSpace(cmd.ActorID),
			Reason:       "reconciliation",
		}); err != nil {
			report.Failed++
			s.logger(ctx, "payment.reconcile.update_failed", map[string]any{
				"orderId": order.ID,
				"target":  string(target),
				"error":   err.Error(),
			})
			continue
		}
		report.Updated++
	}

	return report, nil
}

// orderIDFromWebhookEvent resolves the internal order id echoed back in the
// gateway order notes at intent creation time.
func orderIDFromWebhookEvent(event payments.WebhookEvent) string {
	if event.Raw == nil {
		return ""
	}
	notes, ok := event.Raw["notes"].(map[string]any)
	if !ok {
		return ""
	}
	if id, ok := notes["orderId"].(string); ok {
		return strings.TrimSpace(id)
	}
	return ""
}

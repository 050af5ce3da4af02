package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/repositories"
)

const (
	orderEventCreated       = "order.created"
	orderEventStatusChanged = "order.status.changed"
	orderEventCancelled     = "order.cancelled"

	orderIDPrefix = "ord_"

	notificationChannelEmail = "email"
	notificationChannelSMS   = "sms"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates optimistic concurrency conflicts or duplicates.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderCancellationClosed indicates the self-service cancellation window has elapsed.
	ErrOrderCancellationClosed = errors.New("order: cancellation window closed")
)

var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:    {domain.OrderStatusProcessing, domain.OrderStatusCancelled},
	domain.OrderStatusProcessing: {domain.OrderStatusShipped, domain.OrderStatusCancelled},
	domain.OrderStatusShipped:    {domain.OrderStatusDelivered},
}

var cancellableStatuses = map[domain.OrderStatus]bool{
	domain.OrderStatusPending:    true,
	domain.OrderStatusProcessing: true,
}

var statusNotificationTemplates = map[domain.OrderStatus]string{
	domain.OrderStatusProcessing: "order_processing",
	domain.OrderStatusShipped:    "order_shipped",
	domain.OrderStatusDelivered:  "order_delivered",
	domain.OrderStatusCancelled:  "order_cancelled",
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders             repositories.OrderRepository
	Counters           repositories.CounterRepository
	Coupons            CouponService
	UnitOfWork         repositories.UnitOfWork
	Events             OrderEventPublisher
	Notifications      NotificationPublisher
	Clock              func() time.Time
	IDGenerator        func() string
	Logger             func(ctx context.Context, event string, fields map[string]any)
	Policy             domain.PricingPolicy
	DefaultCurrency    string
	ConfirmationPrefix string
	CancellationWindow time.Duration
	SupportEmail       string
}

type orderService struct {
	orders             repositories.OrderRepository
	counters           repositories.CounterRepository
	coupons            CouponService
	unitOfWork         repositories.UnitOfWork
	events             OrderEventPublisher
	notifications      NotificationPublisher
	clock              func() time.Time
	newID              func() string
	logger             func(context.Context, string, map[string]any)
	policy             domain.PricingPolicy
	defaultCurrency    string
	confirmationPrefix string
	cancellationWindow time.Duration
	supportEmail       string
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter repository is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
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

	prefix := strings.TrimSpace(deps.ConfirmationPrefix)
	if prefix == "" {
		prefix = "MC"
	}

	window := deps.CancellationWindow
	if window <= 0 {
		window = 24 * time.Hour
	}

	return &orderService{
		orders:     deps.Orders,
		counters:   deps.Counters,
		coupons:    deps.Coupons,
		unitOfWork: unit,
		events:     deps.Events,
		notifications: deps.Notifications,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:              idGen,
		logger:             logger,
		policy:             deps.Policy,
		defaultCurrency:    currency,
		confirmationPrefix: prefix,
		cancellationWindow: window,
		supportEmail:       strings.TrimSpace(deps.SupportEmail),
	}, nil
}

func (s *orderService) Create(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	order, err := s.buildOrder(ctx, cmd)
	if err != nil {
		return Order{}, err
	}

	number, err := s.generateConfirmationNumber(ctx, order.CreatedAt)
	if err != nil {
		return Order{}, err
	}
	order.ConfirmationNumber = number

	// Redeem before inserting: the coupon lookup is a read and Firestore
	// transactions require every read to happen before the first write.
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if order.CouponCode != nil && s.coupons != nil {
			if err := s.coupons.Redeem(txCtx, *order.CouponCode); err != nil {
				return err
			}
		}
		if err := s.orders.Insert(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEventMessage{
		EventType:          orderEventCreated,
		OrderID:            order.ID,
		ConfirmationNumber: order.ConfirmationNumber,
		CustomerID:         order.CustomerID,
		Status:             string(order.Status),
		OccurredAt:         order.CreatedAt,
	})
	s.notifyOrder(ctx, order, "order_confirmation", nil)

	return order, nil
}

// buildOrder validates the command and assembles an order ready for persistence.
// Totals are always recomputed server side from the submitted items.
func (s *orderService) buildOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	if len(cmd.Items) == 0 {
		return Order{}, fmt.Errorf("%w: order must contain at least one item", ErrOrderInvalidInput)
	}

	email := strings.ToLower(strings.TrimSpace(cmd.Contact.Email))
	if email == "" {
		return Order{}, fmt.Errorf("%w: contact email is required", ErrOrderInvalidInput)
	}

	items := make([]OrderItem, 0, len(cmd.Items))
	for i, item := range cmd.Items {
		productID := strings.TrimSpace(item.ProductID)
		if productID == "" {
			return Order{}, fmt.Errorf("%w: item %d product id is required", ErrOrderInvalidInput, i)
		}
		if item.Quantity <= 0 {
			return Order{}, fmt.Errorf("%w: item %d quantity must be positive", ErrOrderInvalidInput, i)
		}
		if item.UnitPrice < 0 {
			return Order{}, fmt.Errorf("%w: item %d unit price cannot be negative", ErrOrderInvalidInput, i)
		}
		item.ProductID = productID
		item.Name = strings.TrimSpace(item.Name)
		item.Total = item.UnitPrice * int64(item.Quantity)
		items = append(items, item)
	}

	method := cmd.PaymentMethod
	if method == "" {
		method = domain.PaymentMethodGateway
	}
	switch method {
	case domain.PaymentMethodGateway, domain.PaymentMethodCOD:
	default:
		return Order{}, fmt.Errorf("%w: unsupported payment method %q", ErrOrderInvalidInput, method)
	}

	currency := strings.ToUpper(strings.TrimSpace(cmd.Currency))
	if currency == "" {
		currency = s.defaultCurrency
	}

	var coupon *domain.Coupon
	couponCode := strings.ToUpper(strings.TrimSpace(cmd.CouponCode))
	if couponCode != "" {
		if s.coupons == nil {
			return Order{}, fmt.Errorf("%w: coupon %q cannot be applied", ErrOrderInvalidInput, couponCode)
		}
		subtotal := int64(0)
		for _, item := range items {
			subtotal += item.UnitPrice * int64(item.Quantity)
		}
		result, err := s.coupons.Validate(ctx, ValidateCouponCommand{Code: couponCode, Subtotal: subtotal})
		if err != nil {
			return Order{}, err
		}
		if !result.Valid {
			return Order{}, fmt.Errorf("%w: coupon %q: %s", ErrOrderInvalidInput, couponCode, result.Reason)
		}
		coupon = &result.Coupon
	}

	customerID := strings.TrimSpace(cmd.CustomerID)
	guest := false
	if customerID == "" {
		customerID = domain.DeriveGuestID(email, cmd.Contact.Phone)
		guest = true
	}

	billing := cmd.ShippingAddress
	if cmd.BillingAddress != nil {
		billing = *cmd.BillingAddress
	}

	now := s.now()
	return Order{
		ID:         s.nextOrderID(),
		CustomerID: customerID,
		Guest:      guest,
		Contact: OrderContact{
			Email: email,
			Phone: strings.TrimSpace(cmd.Contact.Phone),
		},
		Currency:        currency,
		Items:           items,
		Totals:          domain.ComputeTotals(items, coupon, s.policy),
		CouponCode:      optionalString(couponCode),
		PaymentMethod:   method,
		Status:          domain.OrderStatusPending,
		ShippingAddress: cmd.ShippingAddress,
		BillingAddress:  billing,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) GetByConfirmationNumber(ctx context.Context, confirmationNumber string) (Order, error) {
	confirmationNumber = strings.TrimSpace(confirmationNumber)
	if confirmationNumber == "" {
		return Order{}, fmt.Errorf("%w: confirmation number is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByConfirmationNumber(ctx, confirmationNumber)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) ListByCustomer(ctx context.Context, customerID string, limit int) ([]Order, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, fmt.Errorf("%w: customer id is required", ErrOrderInvalidInput)
	}
	orders, err := s.orders.ListByCustomer(ctx, customerID, limit)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return orders, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if cmd.TargetStatus == "" {
		return Order{}, fmt.Errorf("%w: target status is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	now := s.now()
	prevStatus := order.Status

	if err := s.applyStatusTransition(&order, cmd.TargetStatus, now); err != nil {
		return Order{}, err
	}

	if cmd.TargetStatus == domain.OrderStatusShipped {
		if tracking := strings.TrimSpace(cmd.TrackingNumber); tracking != "" {
			order.TrackingNumber = &tracking
		}
		if cmd.EstimatedDelivery != nil {
			estimated := cmd.EstimatedDelivery.UTC()
			order.EstimatedDelivery = &estimated
		}
	}
	if cmd.TargetStatus == domain.OrderStatusCancelled {
		order.CancelReason = optionalString(strings.TrimSpace(cmd.Reason))
		order.CancelledAt = &now
	}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.publishStatusChange(ctx, order, prevStatus, now)
	return order, nil
}

func (s *orderService) AttachPaymentReference(ctx context.Context, cmd AttachPaymentCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	reference := strings.TrimSpace(cmd.PaymentReference)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if reference == "" {
		return Order{}, fmt.Errorf("%w: payment reference is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	// Redelivered confirmations carry the same reference; nothing to write.
	if order.PaymentReference != nil {
		if *order.PaymentReference == reference {
			return order, nil
		}
		return Order{}, fmt.Errorf("%w: order already references payment %q", ErrOrderConflict, *order.PaymentReference)
	}

	order.PaymentReference = &reference
	order.UpdatedAt = s.now()

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	return order, nil
}

func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if !cancellableStatuses[order.Status] {
		return Order{}, fmt.Errorf("%w: order status %q cannot be cancelled", ErrOrderInvalidState, order.Status)
	}

	now := s.now()
	if now.Sub(order.CreatedAt) > s.cancellationWindow {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderCancellationClosed, s.cancellationClosedMessage())
	}

	prevStatus := order.Status
	order.CancelReason = optionalString(strings.TrimSpace(cmd.Reason))
	order.CancelledAt = &now

	if err := s.applyStatusTransition(&order, domain.OrderStatusCancelled, now); err != nil {
		return Order{}, err
	}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEventMessage{
		EventType:          orderEventCancelled,
		OrderID:            order.ID,
		ConfirmationNumber: order.ConfirmationNumber,
		CustomerID:         order.CustomerID,
		Status:             string(order.Status),
		OccurredAt:         now,
	})
	s.notifyOrder(ctx, order, "order_cancelled", map[string]string{
		"previousStatus": string(prevStatus),
		"reason":         strings.TrimSpace(cmd.Reason),
	})

	return order, nil
}

func (s *orderService) applyStatusTransition(order *Order, target domain.OrderStatus, now time.Time) error {
	current := order.Status
	if current == target {
		return fmt.Errorf("%w: order is already %q", ErrOrderInvalidState, current)
	}
	if !canTransition(current, target) {
		return fmt.Errorf("%w: %s to %s", ErrOrderInvalidState, current, target)
	}
	order.Status = target
	order.UpdatedAt = now
	return nil
}

func (s *orderService) publishStatusChange(ctx context.Context, order Order, prev domain.OrderStatus, now time.Time) {
	s.publishEvent(ctx, OrderEventMessage{
		EventType:          orderEventStatusChanged,
		OrderID:            order.ID,
		ConfirmationNumber: order.ConfirmationNumber,
		CustomerID:         order.CustomerID,
		Status:             string(order.Status),
		OccurredAt:         now,
	})
	if template, ok := statusNotificationTemplates[order.Status]; ok {
		data := map[string]string{"previousStatus": string(prev)}
		if order.TrackingNumber != nil {
			data["trackingNumber"] = *order.TrackingNumber
		}
		s.notifyOrder(ctx, order, template, data)
	}
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *orderService) generateConfirmationNumber(ctx context.Context, now time.Time) (string, error) {
	seq, err := s.counters.Next(ctx, "orders", 1)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%04d-%06d", s.confirmationPrefix, now.Year(), seq), nil
}

func (s *orderService) cancellationClosedMessage() string {
	hours := int(s.cancellationWindow / time.Hour)
	msg := fmt.Sprintf("orders can only be cancelled within %d hours of placement", hours)
	if s.supportEmail != "" {
		msg += "; please contact " + s.supportEmail + " for assistance"
	}
	return msg
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) nextOrderID() string {
	return orderIDPrefix + s.newID()
}

func (s *orderService) publishEvent(ctx context.Context, message OrderEventMessage) {
	if s.events == nil {
		return
	}
	if _, err := s.events.PublishOrderEvent(ctx, message); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   message.EventType,
			"order":  message.OrderID,
			"error":  err.Error(),
			"status": message.Status,
		})
	}
}

func (s *orderService) notifyOrder(ctx context.Context, order Order, template string, data map[string]string) {
	if s.notifications == nil {
		return
	}
	channels := []string{notificationChannelEmail}
	if order.Contact.Phone != "" {
		channels = append(channels, notificationChannelSMS)
	}
	if data == nil {
		data = map[string]string{}
	}
	data["confirmationNumber"] = order.ConfirmationNumber
	data["status"] = string(order.Status)
	if _, err := s.notifications.PublishNotification(ctx, NotificationMessage{
		Template: template,
		OrderID:  order.ID,
		Channels: channels,
		Email:    order.Contact.Email,
		Phone:    order.Contact.Phone,
		Data:     data,
	}); err != nil {
		s.logger(ctx, "order.notification.publish.failed", map[string]any{
			"template": template,
			"order":    order.ID,
			"error":    err.Error(),
		})
	}
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	ref := v
	return &ref
}

func canTransition(current, target domain.OrderStatus) bool {
	if current == target {
		return false
	}
	next, ok := orderStateTransitions[current]
	if !ok {
		return false
	}
	for _, candidate := range next {
		if candidate == target {
			return true
		}
	}
	return false
}

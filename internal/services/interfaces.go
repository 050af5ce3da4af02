package services

import (
	"context"
	"time"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	SortOrder          = domain.SortOrder
	Order              = domain.Order
	OrderStatus        = domain.OrderStatus
	OrderTotals        = domain.OrderTotals
	OrderItem          = domain.OrderItem
	OrderContact       = domain.OrderContact
	Address            = domain.Address
	PaymentMethod      = domain.PaymentMethod
	Cart               = domain.Cart
	CartItem           = domain.CartItem
	Coupon             = domain.Coupon
	DiscountType       = domain.DiscountType
	Wishlist           = domain.Wishlist
	WishlistItem       = domain.WishlistItem
	GatewayOrder       = domain.GatewayOrder
	SystemHealthReport = domain.SystemHealthReport
)

// OrderService encapsulates order lifecycle flows from creation through delivery or cancellation.
type OrderService interface {
	Create(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	GetByConfirmationNumber(ctx context.Context, confirmationNumber string) (Order, error)
	ListByCustomer(ctx context.Context, customerID string, limit int) ([]Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error)
	AttachPaymentReference(ctx context.Context, cmd AttachPaymentCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
}

// PaymentService coordinates gateway order creation, signature verification, and webhook ingestion.
type PaymentService interface {
	CreatePaymentIntent(ctx context.Context, cmd CreatePaymentIntentCommand) (PaymentIntent, error)
	VerifyPayment(ctx context.Context, cmd VerifyPaymentCommand) (Order, error)
	HandleWebhook(ctx context.Context, cmd PaymentWebhookCommand) (WebhookOutcome, error)
	ReconcilePendingOrders(ctx context.Context, cmd ReconcileOrdersCommand) (ReconcileReport, error)
}

// CartService manages session scoped cart state and checkout estimates.
type CartService interface {
	GetOrCreateCart(ctx context.Context, ownerID string) (Cart, error)
	AddOrUpdateItem(ctx context.Context, cmd UpsertCartItemCommand) (Cart, error)
	RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error)
	ClearCart(ctx context.Context, ownerID string) error
	Estimate(ctx context.Context, cmd EstimateCartCommand) (OrderTotals, error)
}

// CouponService exposes coupon validation for checkout and lifecycle operations for admins.
type CouponService interface {
	Validate(ctx context.Context, cmd ValidateCouponCommand) (CouponValidationResult, error)
	Redeem(ctx context.Context, code string) error
	ListCoupons(ctx context.Context, filter CouponListFilter) (domain.CursorPage[Coupon], error)
	CreateCoupon(ctx context.Context, cmd UpsertCouponCommand) (Coupon, error)
	UpdateCoupon(ctx context.Context, cmd UpsertCouponCommand) (Coupon, error)
	DeleteCoupon(ctx context.Context, code string) error
}

// WishlistService manages session scoped wishlists.
type WishlistService interface {
	GetWishlist(ctx context.Context, ownerID string) (Wishlist, error)
	AddItem(ctx context.Context, cmd WishlistItemCommand) (Wishlist, error)
	RemoveItem(ctx context.Context, cmd WishlistItemCommand) (Wishlist, error)
}

// SystemService aggregates utility endpoints (health checks, counters).
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, message OrderEventMessage) (string, error)
}

// NotificationPublisher enqueues customer notifications for the email/SMS dispatch workers.
type NotificationPublisher interface {
	PublishNotification(ctx context.Context, message NotificationMessage) (string, error)
}

// OrderEventMessage captures metadata for emitted order domain events.
type OrderEventMessage struct {
	EventType          string    `json:"eventType"`
	OrderID            string    `json:"orderId"`
	ConfirmationNumber string    `json:"confirmationNumber"`
	CustomerID         string    `json:"customerId,omitempty"`
	Status             string    `json:"status,omitempty"`
	OccurredAt         time.Time `json:"occurredAt"`
}

// NotificationMessage describes a templated customer notification request.
type NotificationMessage struct {
	Template string            `json:"template"`
	OrderID  string            `json:"orderId,omitempty"`
	Channels []string          `json:"channels"`
	Email    string            `json:"email,omitempty"`
	Phone    string            `json:"phone,omitempty"`
	Data     map[string]string `json:"data,omitempty"`
}

// Command and DTO definitions ------------------------------------------------

type OrderListFilter = repositories.OrderListFilter

type CreateOrderCommand struct {
	CustomerID      string
	Contact         OrderContact
	Currency        string
	Items           []OrderItem
	CouponCode      string
	PaymentMethod   PaymentMethod
	ShippingAddress Address
	BillingAddress  *Address
}

type UpdateOrderStatusCommand struct {
	OrderID           string
	TargetStatus      OrderStatus
	TrackingNumber    string
	EstimatedDelivery *time.Time
	ActorID           string
	Reason            string
}

type AttachPaymentCommand struct {
	OrderID          string
	PaymentReference string
	GatewayOrderID   string
}

type CancelOrderCommand struct {
	OrderID string
	ActorID string
	Reason  string
}

type CreatePaymentIntentCommand struct {
	Order CreateOrderCommand
}

// PaymentIntent is returned to the client to launch the gateway checkout.
// DatabaseOrderCreated is false when the local order insert failed and the
// gateway order was minted against a fallback order id.
type PaymentIntent struct {
	OrderID              string
	ConfirmationNumber   string
	GatewayOrder         GatewayOrder
	Totals               OrderTotals
	KeyID                string
	DatabaseOrderCreated bool
}

type VerifyPaymentCommand struct {
	OrderID        string
	GatewayOrderID string
	PaymentID      string
	Signature      string
}

type PaymentWebhookCommand struct {
	Provider  string
	Payload   []byte
	Signature string
}

// WebhookOutcome reports how a webhook delivery was handled.
type WebhookOutcome struct {
	EventType string
	OrderID   string
	Status    OrderStatus
	Applied   bool
	Reason    string
}

type ReconcileOrdersCommand struct {
	OlderThan time.Duration
	Limit     int
	ActorID   string
}

// ReconcileReport summarises a reconciliation sweep over stuck pending orders.
type ReconcileReport struct {
	Examined int
	Updated  int
	Failed   int
}

type UpsertCartItemCommand struct {
	OwnerID   string
	ProductID string
	Name      string
	UnitPrice int64
	Quantity  int
	ImageURL  string
}

type RemoveCartItemCommand struct {
	OwnerID   string
	ProductID string
}

type EstimateCartCommand struct {
	OwnerID    string
	CouponCode string
}

type ValidateCouponCommand struct {
	Code     string
	Subtotal int64
}

// CouponValidationResult reports the discount a coupon yields for a given subtotal.
type CouponValidationResult struct {
	Coupon   Coupon
	Discount int64
	Valid    bool
	Reason   string
}

type CouponListFilter struct {
	ActiveOnly bool
	Pagination Pagination
}

type UpsertCouponCommand struct {
	Coupon  Coupon
	ActorID string
}

type WishlistItemCommand struct {
	OwnerID   string
	ProductID string
	Name      string
	UnitPrice int64
	ImageURL  string
}

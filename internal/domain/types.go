package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// Address is an immutable postal address snapshot stored on carts and orders.
type Address struct {
	FullName   string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
	Phone      string
}

// PaymentMethod enumerates how a customer pays for an order.
type PaymentMethod string

const (
	// PaymentMethodGateway indicates online payment through the payment gateway.
	PaymentMethodGateway PaymentMethod = "gateway"
	// PaymentMethodCOD indicates cash on delivery.
	PaymentMethodCOD PaymentMethod = "cod"
)

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order has been created and awaits payment confirmation.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusProcessing indicates payment is confirmed and fulfilment has started.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped indicates the order has been handed to a carrier.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates the order reached the customer.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled indicates the order was cancelled before shipment.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// OrderTotals holds rolled-up monetary fields in the smallest currency unit.
type OrderTotals struct {
	Subtotal int64
	Tax      int64
	Shipping int64
	Discount int64
	Total    int64
}

// OrderItem mirrors a cart line at the time of checkout. Unit price is the
// snapshot captured when the item entered the cart, never live-repriced.
type OrderItem struct {
	ProductID string
	Name      string
	SKU       string
	Quantity  int
	UnitPrice int64
	Total     int64
	ImageURL  string
}

// OrderContact stores the customer contact snapshot used for notifications
// and guest order lookup.
type OrderContact struct {
	Email string
	Phone string
}

// Order captures an order record returned to handlers and services. Orders are
// never hard-deleted; cancellation is a status, not a removal.
type Order struct {
	ID                 string
	ConfirmationNumber string
	CustomerID         string
	Guest              bool
	Contact            OrderContact
	Currency           string
	Items              []OrderItem
	Totals             OrderTotals
	CouponCode         *string
	PaymentMethod      PaymentMethod
	PaymentReference   *string
	Status             OrderStatus
	TrackingNumber     *string
	EstimatedDelivery  *time.Time
	ShippingAddress    Address
	BillingAddress     Address
	CancelReason       *string
	CancelledAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// CartItem stores a single product entry within a cart.
type CartItem struct {
	ProductID string
	Name      string
	SKU       string
	Quantity  int
	UnitPrice int64
	ImageURL  string
	AddedAt   time.Time
}

// Cart aggregates the mutable shopping state keyed by a session identifier for
// guests or an authenticated user id.
type Cart struct {
	ID        string
	OwnerKey  string
	Currency  string
	Items     []CartItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Subtotal returns the sum of quantity times unit price across all items.
func (c Cart) Subtotal() int64 {
	var total int64
	for _, item := range c.Items {
		total += int64(item.Quantity) * item.UnitPrice
	}
	return total
}

// DiscountType enumerates how a coupon reduces the order subtotal.
type DiscountType string

const (
	// DiscountTypePercentage applies a percentage of the subtotal.
	DiscountTypePercentage DiscountType = "percentage"
	// DiscountTypeFixed subtracts a fixed amount.
	DiscountTypeFixed DiscountType = "fixed"
)

// Coupon describes a discount rule managed by administrators. Monetary fields
// are minor currency units; Value is a whole percentage for percentage coupons.
type Coupon struct {
	ID             string
	Code           string
	Description    string
	Type           DiscountType
	Value          int64
	MinOrderAmount int64
	MaxDiscount    int64
	Active         bool
	StartsAt       *time.Time
	ExpiresAt      *time.Time
	UsageLimit     *int
	UsedCount      int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// WishlistItem stores a saved product reference keyed by the wishlist session.
type WishlistItem struct {
	ProductID string
	Name      string
	UnitPrice int64
	ImageURL  string
	AddedAt   time.Time
}

// Wishlist holds saved products for a session or authenticated user.
type Wishlist struct {
	ID        string
	OwnerKey  string
	Items     []WishlistItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

// GatewayOrder is the external payment processor's record representing an
// authorized amount awaiting capture.
type GatewayOrder struct {
	ID       string
	Amount   int64
	Currency string
	Receipt  string
	Status   string
}

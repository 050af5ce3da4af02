package repositories

import (
	"context"
	"time"

	domain "github.com/maplecart/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Carts() CartRepository
	Coupons() CouponRepository
	Wishlists() WishlistRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository persists order documents and provides query helpers for
// customers and admins. Orders carry their line items inline so the header and
// items persist together or not at all.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByConfirmationNumber(ctx context.Context, number string) (domain.Order, error)
	ListByCustomer(ctx context.Context, customerID string, limit int) ([]domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// OrderListFilter controls admin order listings.
type OrderListFilter struct {
	CustomerID string
	Status     []string
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

// CartRepository owns cart persistence keyed by the session or user owner key.
type CartRepository interface {
	UpsertCart(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	GetCart(ctx context.Context, ownerKey string) (domain.Cart, error)
	ReplaceItems(ctx context.Context, ownerKey string, items []domain.CartItem) (domain.Cart, error)
	DeleteCart(ctx context.Context, ownerKey string) error
}

// CouponRepository maintains coupon definitions and usage counters.
type CouponRepository interface {
	Insert(ctx context.Context, coupon domain.Coupon) error
	Update(ctx context.Context, coupon domain.Coupon) error
	Delete(ctx context.Context, couponID string) error
	FindByCode(ctx context.Context, code string) (domain.Coupon, error)
	IncrementUsage(ctx context.Context, couponID string) error
	List(ctx context.Context, filter CouponListFilter) (domain.CursorPage[domain.Coupon], error)
}

// CouponListFilter controls admin coupon listings.
type CouponListFilter struct {
	ActiveOnly bool
	Pagination domain.Pagination
}

// WishlistRepository stores saved products keyed by the wishlist owner key.
type WishlistRepository interface {
	GetWishlist(ctx context.Context, ownerKey string) (domain.Wishlist, error)
	ReplaceItems(ctx context.Context, ownerKey string, items []domain.WishlistItem) (domain.Wishlist, error)
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// CounterConfig customises increment behaviour and bounds for a counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

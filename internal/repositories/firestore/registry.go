package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/maplecart/api/internal/platform/firestore"
	"github.com/maplecart/api/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind the
// repositories.Registry contract so the service layer can be wired from a
// single dependency.
type Registry struct {
	provider  *pfirestore.Provider
	orders    *OrderRepository
	carts     *CartRepository
	coupons   *CouponRepository
	wishlists *WishlistRepository
	counters  *CounterRepository
	health    repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// RegistryOption customises optional registry collaborators.
type RegistryOption func(*Registry)

// WithHealthRepository attaches the dependency health repository exposed via
// Health(). Probes are assembled by the caller because they reach beyond
// Firestore.
func WithHealthRepository(repo repositories.HealthRepository) RegistryOption {
	return func(r *Registry) {
		r.health = repo
	}
}

// NewRegistry constructs every Firestore repository against the shared provider.
func NewRegistry(provider *pfirestore.Provider, opts ...RegistryOption) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	carts, err := NewCartRepository(provider)
	if err != nil {
		return nil, err
	}
	coupons, err := NewCouponRepository(provider)
	if err != nil {
		return nil, err
	}
	wishlists, err := NewWishlistRepository(provider)
	if err != nil {
		return nil, err
	}
	counters, err := NewCounterRepository(provider)
	if err != nil {
		return nil, err
	}

	registry := &Registry{
		provider:  provider,
		orders:    orders,
		carts:     carts,
		coupons:   coupons,
		wishlists: wishlists,
		counters:  counters,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(registry)
		}
	}
	return registry, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

func (r *Registry) Orders() repositories.OrderRepository {
	return r.orders
}

func (r *Registry) Carts() repositories.CartRepository {
	return r.carts
}

func (r *Registry) Coupons() repositories.CouponRepository {
	return r.coupons
}

func (r *Registry) Wishlists() repositories.WishlistRepository {
	return r.wishlists
}

func (r *Registry) Counters() repositories.CounterRepository {
	return r.counters
}

func (r *Registry) Health() repositories.HealthRepository {
	return r.health
}

// RunInTx executes fn inside a Firestore transaction. The context passed to
// fn carries the transaction, so repository reads and writes made through it
// are staged on the transaction and commit or roll back together. Firestore
// requires every read inside fn to happen before the first write.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil || r.provider == nil {
		return errors.New("registry not initialised")
	}
	if fn == nil {
		return errors.New("registry: transaction function is required")
	}
	return r.provider.RunTransaction(ctx, func(txCtx context.Context, _ *firestore.Transaction) error {
		return fn(txCtx)
	})
}
